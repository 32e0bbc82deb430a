package check

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/flarebyte/mipforge/internal/config"
)

// NewCmd creates the `mipforge check` command: it loads and validates a
// configuration and prints the stage chain it describes.
func NewCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:           "check",
		Short:         "Validate a config and print its stage chain",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath == "" {
				return fmt.Errorf("missing required flag: --config")
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return printChain(cmd.OutOrStdout(), cfg, runtime.NumCPU())
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to config file (.cue, .json, .yaml)")
	return cmd
}

func printChain(w io.Writer, cfg config.Config, cpus int) error {
	if _, err := fmt.Fprintf(w, "config: %s\n", cfg.Path); err != nil {
		return err
	}
	previous := "${path}"
	for i, t := range cfg.StageTools() {
		threads, err := config.ResolveThreads(cfg.ThreadSpec(t), cpus)
		if err != nil {
			return err
		}
		source := t.Source
		if source == "" {
			source = previous
			if t.Kind == config.KindDiagnose {
				source = "${path}"
			}
		}
		line := fmt.Sprintf("%d. %s (%s) threads=%d source=%s", i+1, t.Name, t.Kind, threads, source)
		if t.Kind == config.KindTransform {
			line += " destination=" + t.Destination
			previous = t.Destination
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "recipes: %d\n", len(cfg.Recipes))
	return err
}
