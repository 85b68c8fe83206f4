package catalog

import "fmt"

// Handler receives catalog objects from Traverse, one kind at a time.
type Handler interface {
	Start(kind Kind) error
	Handle(obj Object) error
	End(kind Kind) error
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	OnStart  func(kind Kind) error
	OnHandle func(obj Object) error
	OnEnd    func(kind Kind) error
}

func (h HandlerFuncs) Start(kind Kind) error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(kind)
}

func (h HandlerFuncs) Handle(obj Object) error {
	if h.OnHandle == nil {
		return nil
	}
	return h.OnHandle(obj)
}

func (h HandlerFuncs) End(kind Kind) error {
	if h.OnEnd == nil {
		return nil
	}
	return h.OnEnd(kind)
}

// Traverse walks column data types, tables, routines, sequences and synonyms
// in that order. Tables follow ordering, or a fresh OrderTables result when
// ordering is nil; tables reduced away since the ordering was computed are
// skipped. The first handler error stops the walk.
func Traverse(c *Catalog, ordering *Ordering, h Handler) error {
	if ordering == nil {
		o := OrderTables(c.Tables())
		ordering = &o
	}
	var tables []Object
	for _, t := range ordering.Tables {
		if c.tables.Contains(t) {
			tables = append(tables, t)
		}
	}

	sections := []struct {
		kind    Kind
		objects []Object
	}{
		{KindColumnDataType, objects(c.ColumnDataTypes())},
		{KindTable, tables},
		{KindRoutine, objects(c.Routines())},
		{KindSequence, objects(c.Sequences())},
		{KindSynonym, objects(c.Synonyms())},
	}
	for _, s := range sections {
		if err := h.Start(s.kind); err != nil {
			return fmt.Errorf("start %s: %w", s.kind, err)
		}
		for _, obj := range s.objects {
			if err := h.Handle(obj); err != nil {
				return fmt.Errorf("handle %s %s: %w", s.kind, obj.FullName(), err)
			}
		}
		if err := h.End(s.kind); err != nil {
			return fmt.Errorf("end %s: %w", s.kind, err)
		}
	}
	return nil
}

func objects[T Object](in []T) []Object {
	out := make([]Object, len(in))
	for i, o := range in {
		out[i] = o
	}
	return out
}
