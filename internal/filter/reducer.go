package filter

import (
	"go.uber.org/zap"

	"github.com/Limetric/schemacrawl/internal/catalog"
)

// Reducer removes the members of a list that its filter rejects and
// remembers them, so that Undo can put exactly those members back.
type Reducer[T catalog.NamedObject] struct {
	filter  Filter[T]
	removed []T
}

func NewReducer[T catalog.NamedObject](f Filter[T]) *Reducer[T] {
	return &Reducer[T]{filter: f}
}

// Reduce removes rejected members and returns how many were removed. The
// members removed by an earlier Reduce are forgotten.
func (r *Reducer[T]) Reduce(list *catalog.ObjectList[T]) int {
	r.removed = nil
	for _, obj := range list.Values() {
		if !r.filter.Include(obj) {
			list.Remove(obj)
			r.removed = append(r.removed, obj)
		}
	}
	return len(r.removed)
}

// Undo restores the members removed by the last Reduce.
func (r *Reducer[T]) Undo(list *catalog.ObjectList[T]) {
	for _, obj := range r.removed {
		list.Add(obj)
	}
	r.removed = nil
}

// Removed returns the members removed by the last Reduce.
func (r *Reducer[T]) Removed() []T { return r.removed }

// Step is one reduction of a catalog.
type Step interface {
	Reduce(c *catalog.Catalog) int
	Undo(c *catalog.Catalog)
}

type boundReducer[T catalog.NamedObject] struct {
	reducer *Reducer[T]
	list    func(*catalog.Catalog) *catalog.ObjectList[T]
}

// Bind attaches a reducer to one collection of the catalog, for example
// Bind(r, (*catalog.Catalog).RoutineList).
func Bind[T catalog.NamedObject](r *Reducer[T], list func(*catalog.Catalog) *catalog.ObjectList[T]) Step {
	return &boundReducer[T]{reducer: r, list: list}
}

func (b *boundReducer[T]) Reduce(c *catalog.Catalog) int { return b.reducer.Reduce(b.list(c)) }
func (b *boundReducer[T]) Undo(c *catalog.Catalog)       { b.reducer.Undo(b.list(c)) }

// TableReducer reduces the tables of a catalog. Tables whose schema was
// reduced away are dropped too. Tables within ParentDepth foreign key hops
// towards parents, or ChildDepth hops towards children, of a kept table are
// kept as well.
type TableReducer struct {
	filter      Filter[*catalog.Table]
	parentDepth int
	childDepth  int
	removed     []*catalog.Table
	logger      *zap.Logger
}

func NewTableReducer(f Filter[*catalog.Table], parentDepth, childDepth int, logger *zap.Logger) *TableReducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableReducer{
		filter:      f,
		parentDepth: max(parentDepth, 0),
		childDepth:  max(childDepth, 0),
		logger:      logger,
	}
}

func (r *TableReducer) Reduce(c *catalog.Catalog) int {
	all := c.Tables()
	keep := make(map[string]bool, len(all))
	var seeds []string
	for _, t := range all {
		if t.Schema != nil && !c.SchemaList().Contains(t.Schema) {
			continue
		}
		if r.filter.Include(t) {
			keep[t.FullName()] = true
			seeds = append(seeds, t.FullName())
		}
	}

	if r.parentDepth > 0 || r.childDepth > 0 {
		parents := catalog.DependencyGraph(all)
		children := parents.Transpose()
		for _, seed := range seeds {
			for _, name := range parents.SubGraph(seed, r.parentDepth).VertexSet() {
				keep[name] = true
			}
			for _, name := range children.SubGraph(seed, r.childDepth).VertexSet() {
				keep[name] = true
			}
		}
	}

	r.removed = nil
	for _, t := range all {
		if keep[t.FullName()] {
			continue
		}
		c.TableList().Remove(t)
		r.removed = append(r.removed, t)
	}
	c.MarkFilteredForeignKeys()
	r.logger.Debug("reduced tables",
		zap.Int("kept", len(all)-len(r.removed)),
		zap.Int("removed", len(r.removed)))
	return len(r.removed)
}

func (r *TableReducer) Undo(c *catalog.Catalog) {
	for _, t := range r.removed {
		c.TableList().Add(t)
	}
	r.removed = nil
	c.MarkFilteredForeignKeys()
}

// Pipeline runs reducers in order and undoes them in reverse order.
type Pipeline struct {
	steps []Step
}

func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Reduce applies every step and returns the total number of objects
// removed.
func (p *Pipeline) Reduce(c *catalog.Catalog) int {
	removed := 0
	for _, s := range p.steps {
		removed += s.Reduce(c)
	}
	c.MarkFilteredForeignKeys()
	return removed
}

// Undo restores the catalog to its state before Reduce.
func (p *Pipeline) Undo(c *catalog.Catalog) {
	for i := len(p.steps) - 1; i >= 0; i-- {
		p.steps[i].Undo(c)
	}
	c.MarkFilteredForeignKeys()
}
