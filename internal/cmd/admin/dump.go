package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/sharedlog/internal/physlog"
)

type dumpStream struct {
	ID        string    `json:"id"`
	Alias     string    `json:"alias,omitempty"`
	Head      uint64    `json:"head"`
	Tail      uint64    `json:"tail"`
	Length    uint64    `json:"length"`
	Extents   []uint32  `json:"extents"`
	CreatedAt time.Time `json:"createdAt"`
}

type dumpReport struct {
	ID          string       `json:"id"`
	Path        string       `json:"path"`
	ExtentSize  uint32       `json:"extentSize"`
	MaxExtents  uint32       `json:"maxExtents"`
	FreeExtents uint32       `json:"freeExtents"`
	Generation  uint64       `json:"generation"`
	Capacity    uint64       `json:"capacity"`
	Free        uint64       `json:"free"`
	Streams     []dumpStream `json:"streams"`
}

// newDumpCommand constructs `dump`, which prints the container header and
// its stream directory.
func newDumpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print container usage and its stream directory",
		Example: "  sharedlog dump -l /var/lib/sharedlog/c1\n" +
			"  sharedlog dump -l /var/lib/sharedlog/c1 --filter 'length > 1048576 || alias.startsWith(\"tx\")' --json",
		RunE: func(cmd *cobra.Command, _ []string) error {
			expr, _ := cmd.Flags().GetString("filter")
			asJSON, _ := cmd.Flags().GetBool("json")
			filter, err := newStreamFilter(expr)
			if err != nil {
				return usagef("invalid --filter: %v", err)
			}
			return withSession(cmd, nil, func(sess *session) error {
				rep := buildReport(sess, filter)
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(rep)
				}
				return writeReport(cmd.OutOrStdout(), rep)
			})
		},
	}
	addContainerFlags(cmd)
	cmd.Flags().StringP("filter", "f", "", "CEL filter over id, alias, head, tail, length, extents, open")
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func buildReport(sess *session, filter streamFilter) dumpReport {
	c := sess.container
	u := c.Usage()
	rep := dumpReport{
		ID:          c.ID().Braced(),
		Path:        c.Path(),
		ExtentSize:  u.ExtentSize,
		MaxExtents:  u.MaxExtents,
		FreeExtents: u.FreeExtents,
		Generation:  u.Generation,
		Capacity:    u.Capacity,
		Free:        u.Free,
		Streams:     []dumpStream{},
	}
	for _, si := range c.Streams() {
		if !filter.Match(si) {
			continue
		}
		rep.Streams = append(rep.Streams, newDumpStream(si))
	}
	return rep
}

func newDumpStream(si physlog.StreamInfo) dumpStream {
	return dumpStream{
		ID:        si.ID.Braced(),
		Alias:     si.Alias,
		Head:      si.Head,
		Tail:      si.Tail,
		Length:    si.Tail - si.Head,
		Extents:   si.Extents,
		CreatedAt: si.CreatedAt.UTC(),
	}
}

func writeReport(w io.Writer, rep dumpReport) error {
	fmt.Fprintf(w, "Container %s at %s\n", rep.ID, rep.Path)
	fmt.Fprintf(w, "  extents: %d of %d free (%d bytes each)\n", rep.FreeExtents, rep.MaxExtents, rep.ExtentSize)
	fmt.Fprintf(w, "  payload: %d of %d bytes free\n", rep.Free, rep.Capacity)
	fmt.Fprintf(w, "  generation: %d\n", rep.Generation)
	fmt.Fprintf(w, "  streams: %d\n\n", len(rep.Streams))
	if len(rep.Streams) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STREAM\tALIAS\tHEAD\tTAIL\tLENGTH\tEXTENTS")
	for _, s := range rep.Streams {
		alias := s.Alias
		if alias == "" {
			alias = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", s.ID, alias, s.Head, s.Tail, s.Length, formatExtents(s.Extents))
	}
	return tw.Flush()
}

func formatExtents(list []uint32) string {
	parts := make([]string, len(list))
	for i, e := range list {
		parts[i] = fmt.Sprint(e)
	}
	return strings.Join(parts, ",")
}
