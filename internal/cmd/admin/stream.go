package admin

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rzbill/sharedlog/pkg/id"
)

// newStreamCommand constructs the `stream` command group.
func newStreamCommand() *cobra.Command {
	streamCmd := &cobra.Command{Use: "stream", Short: "Logical stream operations"}
	streamCmd.PersistentFlags().StringP("container", "l", "", "Container path (required)")
	streamCmd.PersistentFlags().StringP("container-id", "g", DefaultContainerID, "Container id")
	streamCmd.AddCommand(
		newStreamCreateCommand(),
		newStreamDeleteCommand(),
		newStreamAliasCommand(),
		newStreamAppendCommand(),
		newStreamCatCommand(),
	)
	return streamCmd
}

func newStreamCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a stream; a fresh id is generated when -s is omitted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, _ := cmd.Flags().GetString("stream")
			alias, _ := cmd.Flags().GetString("alias")
			sid := id.NewGenerator().Next()
			if raw != "" {
				var err error
				if sid, err = id.Parse(raw); err != nil {
					return usagef("invalid stream id %q: %v", raw, err)
				}
			}
			return withSession(cmd, nil, func(sess *session) error {
				if err := sess.container.CreateLogicalStream(cmd.Context(), sid, alias); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created stream %s\n", sid.Braced())
				return nil
			})
		},
	}
	cmd.Flags().StringP("stream", "s", "", "Stream id")
	cmd.Flags().StringP("alias", "a", "", "Alias to bind")
	return cmd
}

func newStreamDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a stream and return its extents to the container",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, _ := cmd.Flags().GetString("stream")
			return withSession(cmd, nil, func(sess *session) error {
				sid, err := resolveStream(sess.container, ref)
				if err != nil {
					return err
				}
				if err := sess.container.DeleteLogicalStream(cmd.Context(), sid); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted stream %s\n", sid.Braced())
				return nil
			})
		},
	}
	cmd.Flags().StringP("stream", "s", "", "Stream id or alias (required)")
	return cmd
}

func newStreamAliasCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alias NAME",
		Short: "Bind NAME to a stream, or remove it with --remove",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usagef("alias takes exactly one NAME, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, _ := cmd.Flags().GetString("stream")
			remove, _ := cmd.Flags().GetBool("remove")
			name := args[0]
			return withSession(cmd, nil, func(sess *session) error {
				ctx := cmd.Context()
				if remove {
					if err := sess.container.RemoveAlias(ctx, name); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed alias %s\n", name)
					return nil
				}
				sid, err := resolveStream(sess.container, ref)
				if err != nil {
					return err
				}
				if err := sess.container.AssignAlias(ctx, name, sid); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Alias %s -> %s\n", name, sid.Braced())
				return nil
			})
		},
	}
	cmd.Flags().StringP("stream", "s", "", "Stream id or alias")
	cmd.Flags().Bool("remove", false, "Remove the alias instead of binding it")
	return cmd
}

func newStreamAppendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append --data, or stdin, to a stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, _ := cmd.Flags().GetString("stream")
			record, _ := cmd.Flags().GetBool("record")
			var payload []byte
			if cmd.Flags().Changed("data") {
				data, _ := cmd.Flags().GetString("data")
				payload = []byte(data)
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				payload = b
			}
			return withSession(cmd, nil, func(sess *session) error {
				ctx := cmd.Context()
				sid, err := resolveStream(sess.container, ref)
				if err != nil {
					return err
				}
				st, err := sess.container.OpenLogicalStream(ctx, sid, "")
				if err != nil {
					return err
				}
				start := st.Tail()
				var tail uint64
				if record {
					tail, err = st.AppendRecord(ctx, payload)
				} else {
					tail, err = st.Append(ctx, payload)
				}
				cerr := st.Close(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Appended %d bytes at offset %d; tail is %d\n", tail-start, start, tail)
				return cerr
			})
		},
	}
	cmd.Flags().StringP("stream", "s", "", "Stream id or alias (required)")
	cmd.Flags().String("data", "", "Bytes to append; stdin when omitted")
	cmd.Flags().Bool("record", false, "Frame the payload as a length-prefixed record")
	return cmd
}

func newStreamCatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat",
		Short: "Copy stream bytes, or framed records with --records, to stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, _ := cmd.Flags().GetString("stream")
			offset, _ := cmd.Flags().GetUint64("offset")
			records, _ := cmd.Flags().GetBool("records")
			return withSession(cmd, nil, func(sess *session) error {
				ctx := cmd.Context()
				sid, err := resolveStream(sess.container, ref)
				if err != nil {
					return err
				}
				si, err := lookupStream(sess.container, sid)
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("offset") {
					offset = si.Head
				}
				st, err := sess.container.OpenLogicalStream(ctx, sid, "")
				if err != nil {
					return err
				}
				defer st.Close(ctx)
				if !records {
					_, err = io.Copy(cmd.OutOrStdout(), st.NewReader(ctx, offset))
					return err
				}
				w := bufio.NewWriter(cmd.OutOrStdout())
				rr := st.NewRecordReader(ctx, offset, 0)
				for {
					rec, err := rr.Next()
					if errors.Is(err, io.EOF) {
						return w.Flush()
					}
					if err != nil {
						_ = w.Flush()
						return err
					}
					fmt.Fprintln(w, base64.StdEncoding.EncodeToString(rec))
				}
			})
		},
	}
	cmd.Flags().StringP("stream", "s", "", "Stream id or alias (required)")
	cmd.Flags().Uint64("offset", 0, "Start offset (default: stream head)")
	cmd.Flags().Bool("records", false, "Decode length-prefixed records, one base64 line each")
	return cmd
}
