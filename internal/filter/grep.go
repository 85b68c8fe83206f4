package filter

import (
	"go.uber.org/zap"

	"github.com/Limetric/schemacrawl/internal/catalog"
)

// GrepOptions selects tables by their content rather than their name.
type GrepOptions struct {
	Tables      Pattern // table full names
	Columns     Pattern // column full names, "schema.table.column"
	Definitions Pattern // table remarks, view definitions and trigger actions
	Invert      bool
	// OnlyMatching keeps only the matching tables: the parent and child
	// expansion depths are forced to zero.
	OnlyMatching bool
}

// IsSet reports whether any grep pattern is configured.
func (o GrepOptions) IsSet() bool {
	return o.Tables.IsSet() || o.Columns.IsSet() || o.Definitions.IsSet()
}

// NewGrepOptions compiles grep patterns. OnlyMatching without any pattern
// is rejected.
func NewGrepOptions(tables, columns, definitions string, invert, onlyMatching bool) (GrepOptions, error) {
	var (
		o   = GrepOptions{Invert: invert, OnlyMatching: onlyMatching}
		err error
	)
	if o.Tables, err = NewPattern("grep.tables", tables); err != nil {
		return GrepOptions{}, err
	}
	if o.Columns, err = NewPattern("grep.columns", columns); err != nil {
		return GrepOptions{}, err
	}
	if o.Definitions, err = NewPattern("grep.definitions", definitions); err != nil {
		return GrepOptions{}, err
	}
	if onlyMatching && !o.IsSet() {
		return GrepOptions{}, &ConfigurationError{
			Option: "grep.only_matching",
			Err:    errOnlyMatchingWithoutPattern,
		}
	}
	return o, nil
}

// GrepFilter includes tables that have a column, definition or name
// matching the grep patterns. With no patterns it includes every table.
type GrepFilter struct {
	opts    GrepOptions
	signals *ChainedFilter[*catalog.Table]
	logger  *zap.Logger
}

func NewGrepFilter(opts GrepOptions, logger *zap.Logger) *GrepFilter {
	if logger == nil {
		logger = zap.NewNop()
	}
	var signals []Filter[*catalog.Table]
	if opts.Tables.IsSet() {
		signals = append(signals, Func[*catalog.Table](func(t *catalog.Table) bool {
			return opts.Tables.Match(t.FullName())
		}))
	}
	if opts.Columns.IsSet() {
		signals = append(signals, Func[*catalog.Table](func(t *catalog.Table) bool {
			for _, col := range t.Columns() {
				if opts.Columns.Match(col.FullName()) {
					return true
				}
			}
			return false
		}))
	}
	if opts.Definitions.IsSet() {
		signals = append(signals, Func[*catalog.Table](func(t *catalog.Table) bool {
			if opts.Definitions.Match(t.Remarks) || opts.Definitions.Match(t.Definition) {
				return true
			}
			for _, tr := range t.Triggers() {
				if opts.Definitions.Match(tr.ActionStatement) {
					return true
				}
			}
			return false
		}))
	}
	return &GrepFilter{opts: opts, signals: Chain(signals...), logger: logger}
}

func (f *GrepFilter) Include(t *catalog.Table) bool {
	if t == nil {
		return false
	}
	if !f.opts.IsSet() {
		return true
	}
	matched := f.signals.Include(t)
	if !matched {
		f.logger.Debug("no grep match", zap.String("table", t.FullName()), zap.Bool("invert", f.opts.Invert))
	}
	if f.opts.Invert {
		return !matched
	}
	return matched
}
