package admin

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rzbill/sharedlog/internal/physlog"
)

// newTruncateCommand constructs `truncate`, the emergency tail repair.
func newTruncateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "truncate",
		Short: "Report a stream's length or truncate its tail",
		Long: "Opens the container without creating it, prints the stream length and,\n" +
			"when -r is given, discards every byte at or above that offset. The offset\n" +
			"must be below the current length and not below the stream head.",
		Example: "  sharedlog truncate -l /var/lib/sharedlog/c1 -s {968b1b07-0478-48a4-b2be-b2a42c1f0fb3} -r 4096\n" +
			"  sharedlog truncate -l:/var/lib/sharedlog/c1 -s:journal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, _ := cmd.Flags().GetString("stream")
			truncateTo, _ := cmd.Flags().GetUint64("truncate-to")
			apply := cmd.Flags().Changed("truncate-to")
			if ref == "" {
				return usagef("missing required -s/--stream")
			}
			return withSession(cmd, nil, func(sess *session) error {
				return truncateStream(cmd, sess, ref, truncateTo, apply)
			})
		},
	}
	addContainerFlags(cmd)
	cmd.Flags().StringP("stream", "s", "", "Stream id or alias (required)")
	cmd.Flags().Uint64P("truncate-to", "r", 0, "New tail offset; omit to only report the length")
	return cmd
}

func truncateStream(cmd *cobra.Command, sess *session, ref string, truncateTo uint64, apply bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	c := sess.container

	sid, err := resolveStream(c, ref)
	if err != nil {
		return err
	}
	if _, err := lookupStream(c, sid); err != nil {
		return err
	}
	st, err := c.OpenLogicalStream(ctx, sid, "")
	if err != nil {
		return fmt.Errorf("open stream %s: %w", sid.Braced(), err)
	}
	length := st.Length()
	fmt.Fprintf(out, "Stream %s length: %d (head %d)\n", sid.Braced(), length, st.Head())
	if !apply {
		return st.Close(ctx)
	}
	if truncateTo >= length {
		_ = st.Close(ctx)
		return rejectedf("truncation offset %d is not below the current length %d; stream left unchanged", truncateTo, length)
	}
	if err := st.TruncateTail(ctx, truncateTo); err != nil {
		_ = st.Close(ctx)
		if errors.Is(err, physlog.ErrWouldOrphanHead) || errors.Is(err, physlog.ErrInvalidRange) {
			return &rejectedError{err: fmt.Errorf("stream left unchanged: %w", err)}
		}
		return err
	}
	if err := st.Close(ctx); err != nil {
		return err
	}

	// The truncated handle is stale; a fresh open observes the new tail.
	st, err = c.OpenLogicalStream(ctx, sid, "")
	if err != nil {
		return fmt.Errorf("reopen stream %s: %w", sid.Braced(), err)
	}
	fmt.Fprintf(out, "Stream %s length after truncation: %d\n", sid.Braced(), st.Length())
	return st.Close(ctx)
}
