package catalog

import (
	"slices"
	"strings"
)

// DatabaseInfo describes the database product behind a crawl.
type DatabaseInfo struct {
	ProductName    string
	ProductVersion string
	UserName       string
	Properties     map[string]string
}

// Schema is a namespace of tables and routines. Catalog is blank for vendors
// without a catalog level above schemas.
type Schema struct {
	Catalog string
	Name    string
	Remarks string
}

func (s *Schema) FullName() string {
	if s == nil {
		return ""
	}
	return qualify(s.Catalog, s.Name)
}

func (s *Schema) Kind() Kind     { return KindSchema }
func (s *Schema) catalogObject() {}
func (s *Schema) String() string { return s.FullName() }

// ColumnDataType is a data type referenced by columns. System types have a
// nil Schema.
type ColumnDataType struct {
	Schema      *Schema
	Name        string
	BaseType    string
	UserDefined bool
	EnumValues  []string
}

func (d *ColumnDataType) FullName() string {
	if d == nil {
		return ""
	}
	if d.Schema == nil {
		return d.Name
	}
	return qualify(d.Schema.FullName(), d.Name)
}

func (d *ColumnDataType) Kind() Kind     { return KindColumnDataType }
func (d *ColumnDataType) catalogObject() {}
func (d *ColumnDataType) String() string { return d.FullName() }

// Common table type names, normalized to upper case.
const (
	TableTypeTable = "TABLE"
	TableTypeView  = "VIEW"
)

// Table is a physical table or a view.
type Table struct {
	Schema     *Schema
	Name       string
	Type       string // TABLE, VIEW, or a vendor-specific type name
	Remarks    string
	Definition string // view definition, when retrieved
	PrimaryKey *PrimaryKey
	Attributes map[string]any

	columns     []*Column
	indexes     []*Index
	imported    []*ForeignKey // this table holds the foreign key columns
	exported    []*ForeignKey // other tables reference this one
	triggers    []*Trigger
	constraints []*TableConstraint
	privileges  []*Privilege
}

func (t *Table) FullName() string {
	if t == nil {
		return ""
	}
	return qualify(t.Schema.FullName(), t.Name)
}

func (t *Table) Kind() Kind     { return KindTable }
func (t *Table) catalogObject() {}
func (t *Table) String() string { return t.FullName() }

// IsView reports whether the table is a view.
func (t *Table) IsView() bool {
	return strings.Contains(strings.ToUpper(t.Type), TableTypeView)
}

func (t *Table) Columns() []*Column                 { return t.columns }
func (t *Table) Indexes() []*Index                  { return t.indexes }
func (t *Table) ImportedForeignKeys() []*ForeignKey { return t.imported }
func (t *Table) ExportedForeignKeys() []*ForeignKey { return t.exported }
func (t *Table) Triggers() []*Trigger               { return t.triggers }
func (t *Table) Constraints() []*TableConstraint    { return t.constraints }
func (t *Table) Privileges() []*Privilege           { return t.privileges }

// Column looks up a column by name using the given case convention.
func (t *Table) Column(name string, nc NameCase) (*Column, bool) {
	key := nc.Normalize(name)
	for _, c := range t.columns {
		if nc.Normalize(c.Name) == key {
			return c, true
		}
	}
	return nil, false
}

// SetColumns replaces the column list, ordered by ordinal position.
func (t *Table) SetColumns(cols []*Column) {
	for _, c := range cols {
		c.Table = t
	}
	slices.SortStableFunc(cols, func(a, b *Column) int { return a.Ordinal - b.Ordinal })
	t.columns = cols
}

// SetIndexes replaces the index list.
func (t *Table) SetIndexes(idxs []*Index) {
	for _, idx := range idxs {
		idx.Table = t
	}
	t.indexes = idxs
}

// SetForeignKeys replaces the foreign keys held by this table.
func (t *Table) SetForeignKeys(fks []*ForeignKey) {
	for _, fk := range fks {
		fk.Child = t
	}
	t.imported = fks
}

// SetTriggers replaces the trigger list.
func (t *Table) SetTriggers(trs []*Trigger) {
	t.triggers = trs
}

// SetConstraints replaces the check and unique constraints, sorted by name.
func (t *Table) SetConstraints(cs []*TableConstraint) {
	for _, c := range cs {
		c.Table = t
	}
	slices.SortStableFunc(cs, func(a, b *TableConstraint) int { return strings.Compare(a.Name, b.Name) })
	t.constraints = cs
}

// SetPrivileges replaces the privilege list.
func (t *Table) SetPrivileges(privs []*Privilege) {
	t.privileges = privs
}

// RelatedTables returns the resolved parents (tables this one references)
// or children (tables referencing this one), skipping filtered keys.
func (t *Table) RelatedTables(parents bool) []*Table {
	seen := make(map[*Table]bool)
	var related []*Table
	fks := t.exported
	if parents {
		fks = t.imported
	}
	for _, fk := range fks {
		if fk.Filtered {
			continue
		}
		other := fk.Child
		if parents {
			other = fk.Parent
		}
		if other == nil || other == t || seen[other] {
			continue
		}
		seen[other] = true
		related = append(related, other)
	}
	return related
}

// Column is a table column.
type Column struct {
	Table            *Table
	Name             string
	Ordinal          int
	DataType         *ColumnDataType
	ColumnType       string // full declared type, e.g. "varchar(255)"
	Size             int64
	DecimalDigits    int64
	Nullable         bool
	Default          *string
	AutoIncrement    bool
	Generated        bool
	Remarks          string
	PartOfPrimaryKey bool
	PartOfForeignKey bool
}

func (c *Column) FullName() string {
	if c == nil {
		return ""
	}
	return qualify(c.Table.FullName(), c.Name)
}

func (c *Column) String() string { return c.FullName() }

// PrimaryKey is the primary key constraint of a table.
type PrimaryKey struct {
	Name    string
	Columns []string
}

// IndexColumn is one key part of an index.
type IndexColumn struct {
	Name       string
	Descending bool
}

// Index is a table index.
type Index struct {
	Table         *Table
	Name          string
	Unique        bool
	Type          string // BTREE, HASH, ...
	Columns       []IndexColumn
	HasExpression bool
	Definition    string
	Cardinality   int64
}

func (i *Index) FullName() string {
	if i == nil {
		return ""
	}
	return qualify(i.Table.FullName(), i.Name)
}

// ColumnReference pairs a foreign key column with the primary key column it
// references.
type ColumnReference struct {
	ForeignKeyColumn string
	PrimaryKeyColumn string
}

// ForeignKey references a parent table from a child table. The parent may
// be unresolved (nil) when it was not crawled; ParentName still records it.
type ForeignKey struct {
	Name       string
	Child      *Table
	Parent     *Table
	ParentName TableName
	References []ColumnReference
	UpdateRule string
	DeleteRule string
	// Filtered is set when one end of the key was reduced away.
	Filtered bool
}

func (fk *ForeignKey) FullName() string {
	if fk == nil {
		return ""
	}
	return qualify(fk.Child.FullName(), fk.Name)
}

// ParentFullName names the referenced table, resolved or not.
func (fk *ForeignKey) ParentFullName() string {
	if fk.Parent != nil {
		return fk.Parent.FullName()
	}
	return qualify(fk.ParentName.Catalog, fk.ParentName.Schema, fk.ParentName.Name)
}

// TableName identifies a table that may not be part of the catalog.
type TableName struct {
	Catalog string
	Schema  string
	Name    string
}

// Trigger is a table trigger.
type Trigger struct {
	Name            string
	Event           string // INSERT, UPDATE, DELETE
	Timing          string // BEFORE, AFTER, INSTEAD OF
	Orientation     string // ROW, STATEMENT
	ActionStatement string
}

// ConstraintType is the kind of a table constraint.
type ConstraintType string

const (
	CheckConstraint  ConstraintType = "CHECK"
	UniqueConstraint ConstraintType = "UNIQUE"
)

// TableConstraint is a check or unique constraint. Primary and foreign keys
// are kept on the table separately.
type TableConstraint struct {
	Table      *Table
	Name       string
	Type       ConstraintType
	Columns    []string
	Definition string // check clause
}

func (c *TableConstraint) FullName() string {
	if c == nil {
		return ""
	}
	return qualify(c.Table.FullName(), c.Name)
}

// Privilege is a grant on a table.
type Privilege struct {
	Name      string
	Grantor   string
	Grantee   string
	Grantable bool
}

// RoutineKind distinguishes procedures from functions.
type RoutineKind string

const (
	Procedure RoutineKind = "PROCEDURE"
	Function  RoutineKind = "FUNCTION"
)

// Routine is a stored procedure or function.
type Routine struct {
	Schema       *Schema
	Name         string
	SpecificName string
	RoutineKind  RoutineKind
	ReturnType   string
	Definition   string
	Remarks      string
	Parameters   []*RoutineParameter
}

func (r *Routine) FullName() string {
	if r == nil {
		return ""
	}
	name := r.Name
	if r.SpecificName != "" && r.SpecificName != r.Name {
		name = r.SpecificName
	}
	return qualify(r.Schema.FullName(), name)
}

func (r *Routine) Kind() Kind     { return KindRoutine }
func (r *Routine) catalogObject() {}
func (r *Routine) String() string { return r.FullName() }

// RoutineParameter is a parameter or result column of a routine.
type RoutineParameter struct {
	Name     string
	Ordinal  int
	Mode     string // IN, OUT, INOUT
	DataType string
}

// Sequence is a sequence generator.
type Sequence struct {
	Schema    *Schema
	Name      string
	Start     int64
	Increment int64
	Minimum   int64
	Maximum   int64
	Cycle     bool
}

func (s *Sequence) FullName() string {
	if s == nil {
		return ""
	}
	return qualify(s.Schema.FullName(), s.Name)
}

func (s *Sequence) Kind() Kind     { return KindSequence }
func (s *Sequence) catalogObject() {}
func (s *Sequence) String() string { return s.FullName() }

// Synonym is an alias for another database object.
type Synonym struct {
	Schema           *Schema
	Name             string
	ReferencedObject string
}

func (s *Synonym) FullName() string {
	if s == nil {
		return ""
	}
	return qualify(s.Schema.FullName(), s.Name)
}

func (s *Synonym) Kind() Kind     { return KindSynonym }
func (s *Synonym) catalogObject() {}
func (s *Synonym) String() string { return s.FullName() }
