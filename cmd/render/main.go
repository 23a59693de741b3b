package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/harlantwood/convo/internal/observability"
	"github.com/harlantwood/convo/internal/render"
)

type renderFlags struct {
	priority []string
	unwrap   []string
	lang     string
	escape   bool
	logLevel string
}

func main() {
	observability.InitLoggerTo(os.Stderr, "warn", false)
	if err := newRootCmd().Execute(); err != nil {
		logger := observability.GetLogger()
		logger.Error().Err(err).Msg("render failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags renderFlags

	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Render a JSON or YAML document as an HTML fragment",
		Long: `render reads a JSON or YAML document and prints it as nested HTML lists.
Reads stdin when no file or "-" is given.

Example:
  render report.json --priority name,age
  cat report.yaml | render --unwrap items --escape`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			observability.InitLoggerTo(cmd.ErrOrStderr(), flags.logLevel, false)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args, flags)
		},
	}

	cmd.Flags().StringSliceVarP(&flags.priority, "priority", "p", nil, "Keys to render first, in order")
	cmd.Flags().StringSliceVarP(&flags.unwrap, "unwrap", "u", []string{"items"}, "Single-key envelope names to unwrap (empty disables)")
	cmd.Flags().StringVar(&flags.lang, "lang", "", "BCP 47 language tag for key collation")
	cmd.Flags().BoolVar(&flags.escape, "escape", false, "Escape HTML in keys and strings")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "warn", "Log level for diagnostics on stderr")
	return cmd
}

func runRender(cmd *cobra.Command, args []string, flags renderFlags) error {
	logger := observability.Component("render-cli")

	doc, source, err := readInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	logger.Debug().Str("source", source).Int("bytes", len(doc)).Msg("Read document")

	value, err := render.Decode(doc)
	if err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}
	opts, err := render.ParseOptions(flags.priority, flags.unwrap, flags.lang, flags.escape)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), render.Render(value, opts))
	return err
}

func readInput(stdin io.Reader, args []string) ([]byte, string, error) {
	if len(args) == 0 || args[0] == "-" {
		doc, err := io.ReadAll(stdin)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return doc, "stdin", nil
	}

	doc, err := os.ReadFile(args[0])
	if err != nil {
		return nil, "", fmt.Errorf("failed to read input: %w", err)
	}
	return doc, args[0], nil
}
