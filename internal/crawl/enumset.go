package crawl

import (
	"fmt"
	"strings"
)

// parseMySQLEnumSetValues extracts the value list of an enum(...) or
// set(...) column type. Values may use '' or \' to escape quotes.
func parseMySQLEnumSetValues(columnType string) ([]string, error) {
	lparen := strings.IndexByte(columnType, '(')
	rparen := strings.LastIndexByte(columnType, ')')
	if lparen < 0 || rparen <= lparen {
		return nil, fmt.Errorf("invalid enum/set column type %q", columnType)
	}

	list := columnType[lparen+1 : rparen]
	var values []string
	i := 0
	for i < len(list) {
		for i < len(list) && (list[i] == ' ' || list[i] == ',') {
			i++
		}
		if i >= len(list) {
			break
		}
		if list[i] != '\'' {
			return nil, fmt.Errorf("invalid enum/set value list in %q", columnType)
		}
		i++

		var b strings.Builder
		closed := false
		for i < len(list) && !closed {
			c := list[i]
			switch {
			case c == '\\':
				if i+1 >= len(list) {
					return nil, fmt.Errorf("invalid escape in %q", columnType)
				}
				b.WriteByte(list[i+1])
				i += 2
			case c == '\'' && i+1 < len(list) && list[i+1] == '\'':
				b.WriteByte('\'')
				i += 2
			case c == '\'':
				closed = true
				i++
			default:
				b.WriteByte(c)
				i++
			}
		}
		if !closed {
			return nil, fmt.Errorf("unterminated value in %q", columnType)
		}
		values = append(values, b.String())
	}
	return values, nil
}
