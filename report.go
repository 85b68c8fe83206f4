package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/Limetric/schemacrawl/internal/catalog"
	"github.com/Limetric/schemacrawl/internal/crawl"
)

// crawlSummary counts the objects a crawl kept.
type crawlSummary struct {
	Schemas          int
	DataTypes        int
	Tables           int
	Views            int
	Columns          int
	GeneratedColumns int
	Indexes          int
	ForeignKeys      int
	Constraints      int
	Triggers         int
	Routines         int
	Sequences        int
	Synonyms         int
}

// writeCatalog prints every kept object, tables in dependency order, and
// returns the object counts.
func writeCatalog(w io.Writer, res *crawl.Result) (crawlSummary, error) {
	sum := crawlSummary{Schemas: len(res.Catalog.Schemas())}
	if err := writeSchemas(w, res.Catalog); err != nil {
		return sum, err
	}
	h := catalog.HandlerFuncs{
		OnStart: func(kind catalog.Kind) error {
			_, err := fmt.Fprintf(w, "# %s\n", kind)
			return err
		},
		OnHandle: func(obj catalog.Object) error {
			line := obj.FullName()
			switch o := obj.(type) {
			case *catalog.ColumnDataType:
				sum.DataTypes++
				if len(o.EnumValues) > 0 {
					line += " enum(" + strings.Join(o.EnumValues, ", ") + ")"
				}
			case *catalog.Table:
				sum.Tables++
				if o.IsView() {
					sum.Views++
				}
				sum.Columns += len(o.Columns())
				for _, c := range o.Columns() {
					if c.Generated {
						sum.GeneratedColumns++
					}
				}
				sum.Indexes += len(o.Indexes())
				sum.ForeignKeys += len(o.ImportedForeignKeys())
				sum.Constraints += len(o.Constraints())
				sum.Triggers += len(o.Triggers())
				line = fmt.Sprintf("%s %s (%d cols, %d indexes, %d fks)",
					o.Type, o.FullName(), len(o.Columns()), len(o.Indexes()), len(o.ImportedForeignKeys()))
			case *catalog.Routine:
				sum.Routines++
				line = fmt.Sprintf("%s %s (%d params)", o.RoutineKind, o.FullName(), len(o.Parameters))
			case *catalog.Sequence:
				sum.Sequences++
			case *catalog.Synonym:
				sum.Synonyms++
				if o.ReferencedObject != "" {
					line += " -> " + o.ReferencedObject
				}
			}
			_, err := fmt.Fprintf(w, "  %s\n", line)
			return err
		},
	}
	if err := catalog.Traverse(res.Catalog, &res.Ordering, h); err != nil {
		return sum, err
	}
	return sum, nil
}

// writeSchemas prints each schema with the number of tables kept in it.
func writeSchemas(w io.Writer, cat *catalog.Catalog) error {
	if _, err := fmt.Fprintf(w, "# %s\n", catalog.KindSchema); err != nil {
		return err
	}
	for _, s := range cat.Schemas() {
		if _, err := fmt.Fprintf(w, "  %s (%d tables)\n", s.FullName(), len(cat.TablesIn(s))); err != nil {
			return err
		}
	}
	return nil
}

// collectCrawlWarnings lists what the crawl could not fully resolve: metadata
// the database does not expose, foreign key cycles and references to tables
// outside the crawl.
func collectCrawlWarnings(res *crawl.Result) []string {
	if res == nil || res.Catalog == nil {
		return nil
	}

	var warnings []string
	for _, diag := range res.Catalog.Diagnostics() {
		warnings = append(warnings, diag.Error())
	}
	if res.Ordering.Cyclic {
		for _, comp := range res.Ordering.Components {
			if len(comp) < 2 {
				continue
			}
			names := make([]string, len(comp))
			for i, t := range comp {
				names[i] = t.FullName()
			}
			warnings = append(warnings, fmt.Sprintf("foreign key cycle between %s; these tables are ordered together",
				strings.Join(names, ", ")))
		}
	}
	for _, t := range res.Catalog.Tables() {
		for _, fk := range t.ImportedForeignKeys() {
			if fk.Parent != nil && !fk.Filtered {
				continue
			}
			warnings = append(warnings, fmt.Sprintf("foreign key %s on %s references %s, which is outside the crawl",
				fk.Name, t.FullName(), fk.ParentFullName()))
		}
	}
	return warnings
}
