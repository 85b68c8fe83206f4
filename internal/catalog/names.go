package catalog

import "strings"

// NameCase describes how a vendor folds identifiers, which decides when two
// names refer to the same object.
type NameCase int

const (
	// CaseSensitive compares names exactly.
	CaseSensitive NameCase = iota
	// LowerCase folds names to lower case before comparing.
	LowerCase
	// UpperCase folds names to upper case before comparing.
	UpperCase
)

func (c NameCase) String() string {
	switch c {
	case LowerCase:
		return "lower"
	case UpperCase:
		return "upper"
	default:
		return "sensitive"
	}
}

// Normalize folds name according to the case convention.
func (c NameCase) Normalize(name string) string {
	switch c {
	case LowerCase:
		return strings.ToLower(name)
	case UpperCase:
		return strings.ToUpper(name)
	default:
		return name
	}
}

// qualify joins non-blank name parts with dots.
func qualify(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(p)
	}
	return b.String()
}
