package admin

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rzbill/sharedlog/internal/logmanager"
	"github.com/rzbill/sharedlog/internal/runtime"
)

// newCreateCommand constructs `create`, which lays out a new container.
func newCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create an empty container",
		Example: "  sharedlog create -l /var/lib/sharedlog/c1 --extent-size 1048576 --max-extents 256",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			co := logmanager.CreateOptions{ExtentSize: cfg.Storage.ExtentSize, MaxExtents: cfg.Storage.MaxExtents}
			if cmd.Flags().Changed("extent-size") {
				co.ExtentSize, _ = cmd.Flags().GetUint32("extent-size")
			}
			if cmd.Flags().Changed("max-extents") {
				co.MaxExtents, _ = cmd.Flags().GetUint32("max-extents")
			}
			return withSession(cmd, &co, func(sess *session) error {
				u := sess.container.Usage()
				fmt.Fprintf(cmd.OutOrStdout(), "Created container %s at %s: %d extents of %d bytes\n",
					sess.container.ID().Braced(), sess.container.Path(), u.MaxExtents, u.ExtentSize)
				return nil
			})
		},
	}
	addContainerFlags(cmd)
	cmd.Flags().Uint32("extent-size", 0, "Extent size in bytes (default from config)")
	cmd.Flags().Uint32("max-extents", 0, "Number of extents (default from config)")
	return cmd
}

// newDeleteCommand constructs `delete`, which removes a container after
// checking its id.
func newDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a container and its metadata",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				return usagef("refusing to delete without --confirm")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			t, err := parseTarget(cmd)
			if err != nil {
				return err
			}
			mopts, err := runtime.ManagerOptions(cfg, commandLogger(cfg), nil)
			if err != nil {
				return err
			}
			h, err := logmanager.New(mopts).Open(ctx, logmanager.KindDefault)
			if err != nil {
				return err
			}
			defer h.Close(ctx)
			if err := h.DeletePhysicalLog(ctx, t.path, t.id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted container %s at %s\n", t.id.Braced(), t.path)
			return nil
		},
	}
	addContainerFlags(cmd)
	cmd.Flags().Bool("confirm", false, "Confirm deletion")
	return cmd
}
