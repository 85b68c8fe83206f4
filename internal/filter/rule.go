// Package filter decides which catalog objects a crawl keeps: inclusion
// rules over names, composable filters, and reversible reducers that apply
// them to a populated catalog.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// InclusionRule decides whether a name is part of the crawl.
type InclusionRule interface {
	Include(name string) bool
}

// RegularExpressionRule is an (include, exclude) pattern pair. Patterns must
// match the whole name. The exclude pattern wins over the include pattern.
type RegularExpressionRule struct {
	include *regexp.Regexp
	exclude *regexp.Regexp // nil matches nothing
}

// IncludeAll accepts every non-blank name.
var IncludeAll = &RegularExpressionRule{include: regexp.MustCompile(`^(?s:.*)$`)}

// ExcludeAll rejects every name.
var ExcludeAll = &RegularExpressionRule{
	include: regexp.MustCompile(`^(?s:.*)$`),
	exclude: regexp.MustCompile(`^(?s:.*)$`),
}

// NewRegularExpressionRule compiles a rule. An empty include pattern means
// ".*"; an empty exclude pattern excludes nothing.
func NewRegularExpressionRule(include, exclude string) (*RegularExpressionRule, error) {
	if include == "" {
		include = ".*"
	}
	in, err := compileFull(include)
	if err != nil {
		return nil, &ConfigurationError{Option: "include", Err: err}
	}
	r := &RegularExpressionRule{include: in}
	if exclude != "" {
		if r.exclude, err = compileFull(exclude); err != nil {
			return nil, &ConfigurationError{Option: "exclude", Err: err}
		}
	}
	return r, nil
}

func compileFull(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?s:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", pattern, err)
	}
	return re, nil
}

func (r *RegularExpressionRule) Include(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	if r.exclude != nil && r.exclude.MatchString(name) {
		return false
	}
	return r.include.MatchString(name)
}

func (r *RegularExpressionRule) String() string {
	exclude := ""
	if r.exclude != nil {
		exclude = r.exclude.String()
	}
	return fmt.Sprintf("+/%s/ -/%s/", r.include, exclude)
}

// Pattern is a single optional full-match pattern, used by grep options.
type Pattern struct {
	re *regexp.Regexp
}

// NewPattern compiles pattern. An empty pattern yields an unset Pattern.
func NewPattern(option, pattern string) (Pattern, error) {
	if pattern == "" {
		return Pattern{}, nil
	}
	re, err := compileFull(pattern)
	if err != nil {
		return Pattern{}, &ConfigurationError{Option: option, Err: err}
	}
	return Pattern{re: re}, nil
}

// IsSet reports whether a pattern was configured.
func (p Pattern) IsSet() bool { return p.re != nil }

// Match reports whether s matches the pattern. An unset pattern matches
// nothing.
func (p Pattern) Match(s string) bool {
	return p.re != nil && p.re.MatchString(s)
}
