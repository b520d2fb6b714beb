package admin

import (
	"github.com/spf13/cobra"

	serverrun "github.com/rzbill/sharedlog/internal/cmd/server"
)

// newServeCommand constructs `serve`, the daemon mode.
func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Host the configured containers behind gRPC health and HTTP",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := loadServeConfig(path)
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("grpc"); v != "" {
				cfg.Serve.GRPCAddr = v
			}
			if v, _ := cmd.Flags().GetString("http"); v != "" {
				cfg.Serve.HTTPAddr = v
			}
			if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
				cfg.DataDir = v
			}
			if err := cfg.Validate(); err != nil {
				return usagef("%v", err)
			}
			return serverrun.Run(cmd.Context(), serverrun.Options{Config: cfg})
		},
	}
	cmd.Flags().String("grpc", "", "gRPC listen address (default from config)")
	cmd.Flags().String("http", "", "HTTP listen address (default from config)")
	cmd.Flags().String("data-dir", "", "Directory relative container paths resolve against")
	return cmd
}
