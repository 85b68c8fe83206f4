package catalog

// Kind identifies a top-level catalog object variant.
type Kind int

const (
	KindSchema Kind = iota
	KindColumnDataType
	KindTable
	KindRoutine
	KindSequence
	KindSynonym
)

func (k Kind) String() string {
	switch k {
	case KindSchema:
		return "schema"
	case KindColumnDataType:
		return "column data type"
	case KindTable:
		return "table"
	case KindRoutine:
		return "routine"
	case KindSequence:
		return "sequence"
	case KindSynonym:
		return "synonym"
	default:
		return "unknown"
	}
}

// NamedObject is anything identified by a fully qualified name. A nil
// object reports an empty name.
type NamedObject interface {
	FullName() string
}

// Object is the closed set of top-level catalog objects: *Schema,
// *ColumnDataType, *Table, *Routine, *Sequence and *Synonym. Consumers
// dispatch on it with a type switch.
type Object interface {
	NamedObject
	Kind() Kind
	catalogObject()
}

// HasColumns is implemented by objects that own an ordered column list.
type HasColumns interface {
	Columns() []*Column
}

// HasForeignKeys is implemented by objects that take part in foreign keys.
type HasForeignKeys interface {
	ImportedForeignKeys() []*ForeignKey
	ExportedForeignKeys() []*ForeignKey
}

// HasTriggers is implemented by objects that own triggers.
type HasTriggers interface {
	Triggers() []*Trigger
}

var (
	_ Object = (*Schema)(nil)
	_ Object = (*ColumnDataType)(nil)
	_ Object = (*Table)(nil)
	_ Object = (*Routine)(nil)
	_ Object = (*Sequence)(nil)
	_ Object = (*Synonym)(nil)

	_ HasColumns     = (*Table)(nil)
	_ HasForeignKeys = (*Table)(nil)
	_ HasTriggers    = (*Table)(nil)
)
