package packager

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/oshokin/quaso-pack/internal/domain/pack"
)

// digestWidth is how much of a digest the summary shows.
const digestWidth = 19

// WriteSummary renders one row per archive.
func WriteSummary(w io.Writer, releases []*pack.Release) error {
	tbl := tablewriter.NewTable(
		w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Borders:  tw.BorderNone,
			Settings: tw.Settings{Separators: tw.Separators{BetweenColumns: tw.On, BetweenRows: tw.On}},
		})),
	)

	tbl.Header([]string{"Template", "Platform", "Archive", "Files", "Size", "Digest"})

	data := make([][]string, 0, len(releases))
	for _, r := range releases {
		data = append(data, []string{
			r.Template,
			r.Label,
			r.Archive,
			strconv.Itoa(r.Files),
			humanSize(r.Size),
			shortDigest(r.Digest),
		})
	}

	if err := tbl.Bulk(data); err != nil {
		return err
	}

	return tbl.Render()
}

func humanSize(size int64) string {
	const unit = 1024

	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}

func shortDigest(d string) string {
	if len(d) <= digestWidth {
		return d
	}

	return d[:digestWidth]
}
