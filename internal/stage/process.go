package stage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flarebyte/mipforge/internal/config"
)

const (
	defaultTermGrace = 2 * time.Second
	maxLineBytes     = 1 << 20
	failedMarker     = "FAILED"
)

var infoLine = regexp.MustCompile(`^\s*(\w[\w\s]*?)\s*=\s*(.*)$`)

// RunOptions tunes RunProcess.
type RunOptions struct {
	Dir string
	// Timeout kills the process group when positive.
	Timeout time.Duration
	// TermGrace is the delay between SIGTERM and SIGKILL.
	TermGrace time.Duration
	// OnError receives every error line as soon as it is read.
	OnError func(line string)
	// OnOutput receives ordinary stdout lines.
	OnOutput func(line string)
}

// RunOutcome is what one process produced.
type RunOutcome struct {
	Info     map[string]string
	Errors   []string
	ExitCode int
	TimedOut bool
	Canceled bool
}

// Failed reports whether the task must be counted as failed: a non-zero
// exit, a FAILED marker or any stderr line.
func (o RunOutcome) Failed() bool {
	return o.ExitCode != 0 || len(o.Errors) > 0
}

type stream int

const (
	streamStdout stream = iota
	streamStderr
)

type outputLine struct {
	stream stream
	text   string
}

// RunProcess runs command through sh and parses its output according to
// kind. Both streams are read concurrently until EOF and only then is the
// process waited, so no buffered output is lost. Failures are reported in the
// outcome, never as an error.
func RunProcess(ctx context.Context, command string, kind config.Kind, opts RunOptions) RunOutcome {
	out := RunOutcome{Info: map[string]string{}}
	if err := ctx.Err(); err != nil {
		out.ExitCode = -1
		out.Canceled = true
		out.addError(opts, "canceled before start")
		return out
	}

	handle, err := handlerFor(kind)
	if err != nil {
		out.ExitCode = -1
		out.addError(opts, err.Error())
		return out
	}

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = opts.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return startFailure(out, opts, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return startFailure(out, opts, err)
	}
	if err := cmd.Start(); err != nil {
		return startFailure(out, opts, err)
	}

	done := make(chan struct{})
	reason := watchProcess(ctx, cmd, opts, done)

	lines := make(chan outputLine, 64)
	var g errgroup.Group
	g.Go(func() error { return scanLines(stdout, streamStdout, lines) })
	g.Go(func() error { return scanLines(stderr, streamStderr, lines) })
	readErr := make(chan error, 1)
	go func() {
		readErr <- g.Wait()
		close(lines)
	}()

	for ln := range lines {
		handle(&out, opts, ln)
	}
	if err := <-readErr; err != nil {
		out.addError(opts, "read output: "+err.Error())
	}

	waitErr := cmd.Wait()
	close(done)
	switch <-reason {
	case "timeout":
		out.TimedOut = true
		out.addError(opts, fmt.Sprintf("timeout after %s", opts.Timeout))
	case "canceled":
		out.Canceled = true
		out.addError(opts, "canceled")
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			if out.ExitCode > 0 {
				out.addError(opts, fmt.Sprintf("exit status %d", out.ExitCode))
			}
		} else {
			out.ExitCode = -1
			out.addError(opts, waitErr.Error())
		}
	}
	if (out.TimedOut || out.Canceled) && out.ExitCode == 0 {
		out.ExitCode = -1
	}
	return out
}

func startFailure(out RunOutcome, opts RunOptions, err error) RunOutcome {
	out.ExitCode = -1
	out.addError(opts, "start: "+err.Error())
	return out
}

func (o *RunOutcome) addError(opts RunOptions, line string) {
	o.Errors = append(o.Errors, line)
	if opts.OnError != nil {
		opts.OnError(line)
	}
}

// handleDiagnoseLine records "key = value" stdout lines, last one wins.
func handleDiagnoseLine(out *RunOutcome, opts RunOptions, ln outputLine) {
	if ln.stream == streamStderr {
		out.addError(opts, ln.text)
		return
	}
	if m := infoLine.FindStringSubmatch(ln.text); m != nil {
		key := strings.TrimSpace(m[1])
		value := strings.TrimSpace(m[2])
		if key != "" && value != "" {
			out.Info[key] = value
			return
		}
	}
	if opts.OnOutput != nil {
		opts.OnOutput(ln.text)
	}
}

func handleTransformLine(out *RunOutcome, opts RunOptions, ln outputLine) {
	if ln.stream == streamStderr || strings.Contains(ln.text, failedMarker) {
		out.addError(opts, ln.text)
		return
	}
	if opts.OnOutput != nil {
		opts.OnOutput(ln.text)
	}
}

// scanLines forwards every line of r. On a scan error the rest of r is
// drained so the child never blocks on a full pipe.
func scanLines(r io.Reader, s stream, lines chan<- outputLine) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		lines <- outputLine{stream: s, text: text}
	}
	if err := sc.Err(); err != nil {
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}

// watchProcess terminates the process group on timeout or cancellation. The
// returned channel yields "timeout", "canceled" or "" once done is closed.
func watchProcess(ctx context.Context, cmd *exec.Cmd, opts RunOptions, done <-chan struct{}) <-chan string {
	res := make(chan string, 1)
	go func() {
		var timer <-chan time.Time
		if opts.Timeout > 0 {
			t := time.NewTimer(opts.Timeout)
			defer t.Stop()
			timer = t.C
		}
		why := ""
		select {
		case <-done:
			res <- ""
			return
		case <-ctx.Done():
			why = "canceled"
		case <-timer:
			why = "timeout"
		}
		signalProcess(cmd, syscall.SIGTERM)
		grace := opts.TermGrace
		if grace <= 0 {
			grace = defaultTermGrace
		}
		g := time.NewTimer(grace)
		defer g.Stop()
		select {
		case <-done:
		case <-g.C:
			signalProcess(cmd, syscall.SIGKILL)
		}
		res <- why
	}()
	return res
}

// signalProcess signals the whole process group, falling back to the
// process itself.
func signalProcess(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if pid > 0 {
		if err := syscall.Kill(-pid, sig); err == nil {
			return
		}
	}
	_ = cmd.Process.Signal(sig)
}
