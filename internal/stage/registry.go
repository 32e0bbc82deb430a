package stage

import (
	"fmt"

	"github.com/flarebyte/mipforge/internal/config"
)

// lineFunc interprets one output line of a running tool.
type lineFunc func(out *RunOutcome, opts RunOptions, ln outputLine)

var handlers = map[config.Kind]lineFunc{}

func registerKind(kind config.Kind, h lineFunc) {
	handlers[kind] = h
}

func init() {
	registerKind(config.KindDiagnose, handleDiagnoseLine)
	registerKind(config.KindTransform, handleTransformLine)
}

// ErrUnknownKind is returned for a tool kind with no output handler.
type ErrUnknownKind struct{ kind config.Kind }

func (e ErrUnknownKind) Error() string { return fmt.Sprintf("unknown tool kind: %q", string(e.kind)) }

func handlerFor(kind config.Kind) (lineFunc, error) {
	h, ok := handlers[kind]
	if !ok {
		return nil, ErrUnknownKind{kind: kind}
	}
	return h, nil
}
