package crawl

import (
	"fmt"
	"strings"
	"time"

	"github.com/Limetric/schemacrawl/internal/filter"
)

// InfoLevel selects how much metadata a crawl retrieves. Levels are
// cumulative.
type InfoLevel int

const (
	Minimum InfoLevel = iota
	Standard
	Detailed
	Maximum
)

var infoLevelNames = []string{"minimum", "standard", "detailed", "maximum"}

func (l InfoLevel) String() string {
	if l < Minimum || l > Maximum {
		return fmt.Sprintf("InfoLevel(%d)", int(l))
	}
	return infoLevelNames[l]
}

// ParseInfoLevel parses a level name, ignoring case.
func ParseInfoLevel(s string) (InfoLevel, error) {
	for i, name := range infoLevelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return InfoLevel(i), nil
		}
	}
	return Minimum, &filter.ConfigurationError{
		Option: "info_level",
		Err:    fmt.Errorf("%q must be one of %s", s, strings.Join(infoLevelNames, ", ")),
	}
}

// Options control one crawl. Rules are matched against full names: "schema"
// for schemas, "schema.table" for tables, "schema.table.column" for columns
// and "schema.name" for routines, sequences and synonyms. A nil rule
// includes everything.
type Options struct {
	InfoLevel InfoLevel

	Schemas   filter.InclusionRule
	Tables    filter.InclusionRule
	Columns   filter.InclusionRule
	Routines  filter.InclusionRule
	Sequences filter.InclusionRule
	Synonyms  filter.InclusionRule

	// TableTypes limits tables by type; empty accepts all.
	TableTypes []string
	Grep       filter.GrepOptions

	ParentDepth int
	ChildDepth  int

	// Workers is the number of parallel per-table workers.
	Workers int
	// Timeout bounds the whole crawl; zero means no limit.
	Timeout time.Duration
}

// DefaultOptions returns options crawling everything at the standard level.
func DefaultOptions() *Options {
	return &Options{
		InfoLevel: Standard,
		Workers:   1,
	}
}

// Validate checks option combinations that filters cannot check alone.
func (o *Options) Validate() error {
	if o.InfoLevel < Minimum || o.InfoLevel > Maximum {
		return &filter.ConfigurationError{Option: "info_level", Err: fmt.Errorf("unknown level %d", o.InfoLevel)}
	}
	if o.Grep.OnlyMatching && !o.Grep.IsSet() {
		return &filter.ConfigurationError{Option: "grep.only_matching", Err: fmt.Errorf("requires a grep pattern")}
	}
	if o.ParentDepth < 0 || o.ChildDepth < 0 {
		return &filter.ConfigurationError{Option: "parent_depth/child_depth", Err: fmt.Errorf("must be >= 0")}
	}
	if o.Workers < 1 {
		return &filter.ConfigurationError{Option: "workers", Err: fmt.Errorf("must be >= 1")}
	}
	return nil
}

func rule(r filter.InclusionRule) filter.InclusionRule {
	if r == nil {
		return filter.IncludeAll
	}
	return r
}
