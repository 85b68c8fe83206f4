// Package catalog holds the in-memory model assembled by a crawl: schemas,
// tables and their parts, routines, sequences and synonyms, plus foreign key
// ordering and traversal.
package catalog

import (
	"slices"
	"strings"
	"sync"
)

// Catalog is the root of a crawled database model. Collections are safe to
// populate concurrently; everything else assumes a single goroutine.
type Catalog struct {
	Info *DatabaseInfo

	nameCase  NameCase
	schemas   *ObjectList[*Schema]
	tables    *ObjectList[*Table]
	dataTypes *ObjectList[*ColumnDataType]
	routines  *ObjectList[*Routine]
	sequences *ObjectList[*Sequence]
	synonyms  *ObjectList[*Synonym]

	mu          sync.Mutex
	diagnostics []error
}

// New creates an empty catalog whose lookups fold names with nc.
func New(nc NameCase) *Catalog {
	return &Catalog{
		Info:      &DatabaseInfo{},
		nameCase:  nc,
		schemas:   NewObjectList[*Schema](nc),
		tables:    NewObjectList[*Table](nc),
		dataTypes: NewObjectList[*ColumnDataType](nc),
		routines:  NewObjectList[*Routine](nc),
		sequences: NewObjectList[*Sequence](nc),
		synonyms:  NewObjectList[*Synonym](nc),
	}
}

func (c *Catalog) NameCase() NameCase { return c.nameCase }

func (c *Catalog) Schemas() []*Schema                 { return c.schemas.Values() }
func (c *Catalog) Tables() []*Table                   { return c.tables.Values() }
func (c *Catalog) ColumnDataTypes() []*ColumnDataType { return c.dataTypes.Values() }
func (c *Catalog) Routines() []*Routine               { return c.routines.Values() }
func (c *Catalog) Sequences() []*Sequence             { return c.sequences.Values() }
func (c *Catalog) Synonyms() []*Synonym               { return c.synonyms.Values() }

// The list accessors expose the live collections for population and
// reduction.
func (c *Catalog) SchemaList() *ObjectList[*Schema]     { return c.schemas }
func (c *Catalog) TableList() *ObjectList[*Table]       { return c.tables }
func (c *Catalog) RoutineList() *ObjectList[*Routine]   { return c.routines }
func (c *Catalog) SequenceList() *ObjectList[*Sequence] { return c.sequences }
func (c *Catalog) SynonymList() *ObjectList[*Synonym]   { return c.synonyms }

func (c *Catalog) AddSchema(s *Schema) bool     { return c.schemas.Add(s) }
func (c *Catalog) AddTable(t *Table) bool       { return c.tables.Add(t) }
func (c *Catalog) AddRoutine(r *Routine) bool   { return c.routines.Add(r) }
func (c *Catalog) AddSequence(s *Sequence) bool { return c.sequences.Add(s) }
func (c *Catalog) AddSynonym(s *Synonym) bool   { return c.synonyms.Add(s) }

// LookupSchema finds a schema by catalog and schema name.
func (c *Catalog) LookupSchema(catalogName, schemaName string) (*Schema, bool) {
	return c.schemas.Lookup(qualify(catalogName, schemaName))
}

// LookupTable finds a table by its qualified name parts.
func (c *Catalog) LookupTable(name TableName) (*Table, bool) {
	return c.tables.Lookup(qualify(name.Catalog, name.Schema, name.Name))
}

// TablesIn returns the tables of one schema, sorted by name.
func (c *Catalog) TablesIn(s *Schema) []*Table {
	var out []*Table
	for _, t := range c.tables.Values() {
		if t.Schema == s {
			out = append(out, t)
		}
	}
	return out
}

// LookupOrCreateColumnDataType returns the data type registered under
// schema and name, creating it first when needed. A nil schema denotes a
// system type.
func (c *Catalog) LookupOrCreateColumnDataType(schema *Schema, name string) *ColumnDataType {
	return c.RegisterColumnDataType(&ColumnDataType{Schema: schema, Name: name, UserDefined: schema != nil})
}

// RegisterColumnDataType returns the registered data type with the same
// full name as dt, or registers dt. Enum values and the base type of dt
// fill in whatever the registered type is missing.
func (c *Catalog) RegisterColumnDataType(dt *ColumnDataType) *ColumnDataType {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dt.BaseType == "" {
		dt.BaseType = dt.Name
	}
	existing, ok := c.dataTypes.Lookup(dt.FullName())
	if !ok {
		c.dataTypes.Add(dt)
		return dt
	}
	if len(existing.EnumValues) == 0 && len(dt.EnumValues) > 0 {
		existing.EnumValues = slices.Clone(dt.EnumValues)
	}
	if existing.BaseType == existing.Name && dt.BaseType != dt.Name {
		existing.BaseType = dt.BaseType
	}
	existing.UserDefined = existing.UserDefined || dt.UserDefined
	return existing
}

// LinkForeignKeys resolves foreign key parents against the crawled tables,
// rebuilds every table's exported keys and flags key columns. Keys whose
// parent was not crawled stay partial with a nil Parent.
func (c *Catalog) LinkForeignKeys() {
	tables := c.tables.Values()
	for _, t := range tables {
		t.exported = nil
	}
	for _, t := range tables {
		for _, fk := range t.imported {
			fk.Child = t
			parent, ok := c.LookupTable(fk.ParentName)
			if !ok {
				fk.Parent = nil
				continue
			}
			fk.Parent = parent
			parent.exported = append(parent.exported, fk)
			for _, ref := range fk.References {
				if col, ok := t.Column(ref.ForeignKeyColumn, c.nameCase); ok {
					col.PartOfForeignKey = true
				}
			}
		}
	}
	for _, t := range tables {
		slices.SortFunc(t.exported, func(a, b *ForeignKey) int {
			return strings.Compare(a.FullName(), b.FullName())
		})
	}
}

// MarkFilteredForeignKeys flags every foreign key whose child or resolved
// parent is no longer part of the catalog, and clears the flag on the rest.
// Partial keys are never flagged.
func (c *Catalog) MarkFilteredForeignKeys() {
	for _, t := range c.tables.Values() {
		for _, fk := range t.imported {
			fk.Filtered = fk.Parent != nil && !c.tables.Contains(fk.Parent)
		}
		for _, fk := range t.exported {
			fk.Filtered = fk.Child == nil || !c.tables.Contains(fk.Child)
		}
	}
}

// AddDiagnostic records a recoverable problem met during the crawl.
func (c *Catalog) AddDiagnostic(err error) {
	c.mu.Lock()
	c.diagnostics = append(c.diagnostics, err)
	c.mu.Unlock()
}

// Diagnostics returns the recorded problems in the order they occurred.
func (c *Catalog) Diagnostics() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.diagnostics)
}
