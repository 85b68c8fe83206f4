package connection

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Script is connection setup SQL: files read at initialization time plus
// inline statements, executed in that order.
type Script struct {
	Files      []string
	Statements []string
}

// Empty reports whether the script has nothing to run.
func (s Script) Empty() bool {
	return len(s.Files) == 0 && len(s.Statements) == 0
}

// ScriptInitializer returns an Initializer executing every statement of
// script on the connection.
func ScriptInitializer(script Script, logger *zap.Logger) Initializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, conn *Conn) error {
		for _, f := range script.Files {
			data, err := os.ReadFile(f)
			if err != nil {
				return fmt.Errorf("init script: read %s: %w", f, err)
			}
			stmts := SplitStatements(string(data))
			logger.Info("running init script", zap.String("file", f), zap.Int("statements", len(stmts)))
			if err := execAll(ctx, conn, f, stmts); err != nil {
				return err
			}
		}
		var inline []string
		for _, s := range script.Statements {
			inline = append(inline, SplitStatements(s)...)
		}
		return execAll(ctx, conn, "init_statements", inline)
	}
}

func execAll(ctx context.Context, conn *Conn, origin string, stmts []string) error {
	for i, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init script: %s: statement %d: %w\nSQL: %s", origin, i+1, err, stmt)
		}
	}
	return nil
}

// SplitStatements splits SQL text on semicolons, ignoring empty entries
// and semicolons inside quotes, comments and dollar-quoted blocks.
func SplitStatements(sql string) []string {
	var stmts []string
	var current strings.Builder
	inSingleQuote := false
	inDoubleQuote := false
	inBacktick := false
	inLineComment := false
	blockCommentDepth := 0
	dollarTag := ""

	for i := 0; i < len(sql); i++ {
		c := sql[i]

		if inLineComment {
			current.WriteByte(c)
			if c == '\n' {
				inLineComment = false
			}
			continue
		}

		// Nested /* ... */ comments
		if blockCommentDepth > 0 {
			current.WriteByte(c)
			if c == '/' && i+1 < len(sql) && sql[i+1] == '*' {
				current.WriteByte(sql[i+1])
				i++
				blockCommentDepth++
				continue
			}
			if c == '*' && i+1 < len(sql) && sql[i+1] == '/' {
				current.WriteByte(sql[i+1])
				i++
				blockCommentDepth--
			}
			continue
		}

		if inSingleQuote || inDoubleQuote || inBacktick {
			current.WriteByte(c)
			quote := byte('\'')
			switch {
			case inDoubleQuote:
				quote = '"'
			case inBacktick:
				quote = '`'
			}
			if c == quote {
				// Doubled quote is an escape
				if i+1 < len(sql) && sql[i+1] == quote {
					current.WriteByte(sql[i+1])
					i++
				} else {
					inSingleQuote, inDoubleQuote, inBacktick = false, false, false
				}
			}
			continue
		}

		if dollarTag != "" {
			if strings.HasPrefix(sql[i:], dollarTag) {
				current.WriteString(dollarTag)
				i += len(dollarTag) - 1
				dollarTag = ""
				continue
			}
			current.WriteByte(c)
			continue
		}

		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			current.WriteByte(c)
			current.WriteByte(sql[i+1])
			i++
			inLineComment = true
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			current.WriteByte(c)
			current.WriteByte(sql[i+1])
			i++
			blockCommentDepth = 1
		case c == '\'':
			current.WriteByte(c)
			inSingleQuote = true
		case c == '"':
			current.WriteByte(c)
			inDoubleQuote = true
		case c == '`':
			current.WriteByte(c)
			inBacktick = true
		case c == '$':
			if tag, ok := parseDollarTag(sql, i); ok {
				current.WriteString(tag)
				i += len(tag) - 1
				dollarTag = tag
				continue
			}
			current.WriteByte(c)
		case c == ';':
			if s := strings.TrimSpace(current.String()); s != "" {
				stmts = append(stmts, s)
			}
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}

func parseDollarTag(sql string, i int) (string, bool) {
	if i >= len(sql) || sql[i] != '$' {
		return "", false
	}
	if i+1 < len(sql) && sql[i+1] == '$' {
		return "$$", true
	}

	// $tag$ where tag is an identifier
	j := i + 1
	if j >= len(sql) || !isDollarTagStart(sql[j]) {
		return "", false
	}
	for j < len(sql) && isDollarTagChar(sql[j]) {
		j++
	}
	if j < len(sql) && sql[j] == '$' {
		return sql[i : j+1], true
	}
	return "", false
}

func isDollarTagStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDollarTagChar(c byte) bool {
	return isDollarTagStart(c) || (c >= '0' && c <= '9')
}
