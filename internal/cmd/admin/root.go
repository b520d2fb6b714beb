package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/sharedlog/internal/config"
)

// NewRoot constructs the `sharedlog` root command.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "sharedlog",
		Short:         "Shared append-only log containers: repair, inspection and daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Config file (JSON or YAML)")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})
	root.AddCommand(
		newTruncateCommand(),
		newDumpCommand(),
		newCreateCommand(),
		newDeleteCommand(),
		newStreamCommand(),
		newServeCommand(),
		newHealthCommand(),
	)
	return root
}

// Execute runs the CLI with args, printing diagnostics to stderr, and
// returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRoot()
	root.SetArgs(NormalizeArgs(args))
	root.SetOut(stdout)
	root.SetErr(stderr)
	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return ExitOK
	}
	code := ExitCode(err)
	var ue *usageError
	if errors.As(err, &ue) || isUnknownCommand(err) {
		code = ExitUsage
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		if cmd == nil {
			cmd = root
		}
		fmt.Fprint(stderr, cmd.UsageString())
		return code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return code
}

func isUnknownCommand(err error) bool {
	return strings.HasPrefix(err.Error(), "unknown command")
}

// loadServeConfig is Load plus the env overlay, without Validate so flags
// can still fix the result.
func loadServeConfig(path string) (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	return cfg, nil
}
