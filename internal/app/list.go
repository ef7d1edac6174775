package app

import (
	"context"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/oshokin/quaso-pack/internal/domain/pack"
	"github.com/oshokin/quaso-pack/internal/ops"
	"github.com/oshokin/quaso-pack/internal/resolver"
)

// list prints every template with its platforms and archive names.
func (a *App) list(_ context.Context, _ ops.Args) error {
	r := resolver.New(a.cfg, a.goos)

	templates, err := r.Templates()
	if err != nil {
		return err
	}

	data := make([][]string, 0, len(templates))

	for _, tpl := range templates {
		platforms := make([]string, 0, len(tpl.Platforms))
		archives := make([]string, 0, len(tpl.Platforms)+1)

		for _, p := range tpl.Platforms {
			res, err := r.Resolve(string(p), tpl.Name)
			if err != nil {
				return err
			}

			platforms = append(platforms, string(p))
			archives = append(archives, pack.ArchiveName(tpl.Name, res.Target.Label))
		}

		archives = append(archives, pack.SourceArchiveName(tpl.Name))
		data = append(data, []string{tpl.Name, strings.Join(platforms, ", "), strings.Join(archives, ", ")})
	}

	tbl := tablewriter.NewTable(
		a.out,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Borders:  tw.BorderNone,
			Settings: tw.Settings{Separators: tw.Separators{BetweenColumns: tw.On, BetweenRows: tw.On}},
		})),
	)

	tbl.Header([]string{"Template", "Platforms", "Archives"})

	if err = tbl.Bulk(data); err != nil {
		return err
	}

	return tbl.Render()
}
