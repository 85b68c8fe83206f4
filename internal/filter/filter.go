package filter

import (
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/Limetric/schemacrawl/internal/catalog"
)

// Filter decides whether an object stays in the catalog. Filters never fail.
type Filter[T catalog.NamedObject] interface {
	Include(obj T) bool
}

// Func adapts a function to Filter.
type Func[T catalog.NamedObject] func(obj T) bool

func (f Func[T]) Include(obj T) bool { return f(obj) }

// isNil reports whether obj is a nil interface or a typed nil pointer.
func isNil[T catalog.NamedObject](obj T) bool {
	v := reflect.ValueOf(obj)
	if !v.IsValid() {
		return true
	}
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// RuleFilter applies an InclusionRule to each object's full name.
type RuleFilter[T catalog.NamedObject] struct {
	rule   InclusionRule
	logger *zap.Logger
}

// NewRuleFilter wraps rule. A nil rule includes everything.
func NewRuleFilter[T catalog.NamedObject](rule InclusionRule, logger *zap.Logger) *RuleFilter[T] {
	if rule == nil {
		rule = IncludeAll
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleFilter[T]{rule: rule, logger: logger}
}

func (f *RuleFilter[T]) Include(obj T) bool {
	if isNil(obj) {
		return false
	}
	name := obj.FullName()
	ok := f.rule.Include(name)
	if !ok {
		f.logger.Debug("excluded by rule", zap.String("object", name))
	}
	return ok
}

// ChainedFilter includes an object when any of its filters does. An empty
// chain includes nothing.
type ChainedFilter[T catalog.NamedObject] struct {
	filters []Filter[T]
}

func Chain[T catalog.NamedObject](filters ...Filter[T]) *ChainedFilter[T] {
	return &ChainedFilter[T]{filters: filters}
}

func (f *ChainedFilter[T]) Include(obj T) bool {
	if isNil(obj) {
		return false
	}
	for _, flt := range f.filters {
		if flt.Include(obj) {
			return true
		}
	}
	return false
}

// AllOf includes an object only when every filter does. The crawl uses it
// to stack the table rule, the table type set and grep.
type AllOf[T catalog.NamedObject] []Filter[T]

func (f AllOf[T]) Include(obj T) bool {
	if isNil(obj) {
		return false
	}
	for _, flt := range f {
		if !flt.Include(obj) {
			return false
		}
	}
	return true
}

// Pass includes every object.
type Pass[T catalog.NamedObject] struct{}

func (Pass[T]) Include(T) bool { return true }

// TableTypeFilter includes tables whose type is one of an accepted set,
// compared case-insensitively. An empty set accepts all tables.
type TableTypeFilter struct {
	types map[string]struct{}
}

func NewTableTypeFilter(types ...string) *TableTypeFilter {
	f := &TableTypeFilter{types: make(map[string]struct{}, len(types))}
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			f.types[strings.ToUpper(t)] = struct{}{}
		}
	}
	return f
}

func (f *TableTypeFilter) Include(t *catalog.Table) bool {
	if t == nil {
		return false
	}
	if len(f.types) == 0 {
		return true
	}
	_, ok := f.types[strings.ToUpper(t.Type)]
	return ok
}
