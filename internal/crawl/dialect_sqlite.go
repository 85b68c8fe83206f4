package crawl

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/Limetric/schemacrawl/internal/catalog"
)

// sqliteDialect reads sqlite_master and the introspection pragmas. Each
// attached database is a schema; "main" is always present.
type sqliteDialect struct{}

func (s *sqliteDialect) Name() string { return "SQLite" }

// OpenDB opens the database read-only. Credentials are ignored.
func (s *sqliteDialect) OpenDB(dsn, _, _ string) (*sql.DB, error) {
	uri, err := sqliteReadOnlyURI(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func (s *sqliteDialect) NameCase() catalog.NameCase { return catalog.LowerCase }
func (s *sqliteDialect) MaxWorkers() int            { return 1 }

func (s *sqliteDialect) QuoteIdentifier(name string) string {
	return fmt.Sprintf("\"%s\"", strings.ReplaceAll(name, "\"", "\"\""))
}

// sqliteReadOnlyURI turns a path or file: URI into a read-only URI.
func sqliteReadOnlyURI(dsn string) (string, error) {
	if dsn == ":memory:" || dsn == "file::memory:" ||
		strings.Contains(dsn, "mode=memory") {
		return "", fmt.Errorf("in-memory SQLite databases are not supported (each connection gets a separate database)")
	}

	if !strings.HasPrefix(dsn, "file:") {
		return "file:" + dsn + "?mode=ro", nil
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse sqlite URI: %w", err)
	}
	q := u.Query()
	q.Set("mode", "ro")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *sqliteDialect) DatabaseInfo(ctx context.Context, q Querier) (*catalog.DatabaseInfo, error) {
	versions, err := collectStringRows(ctx, q, "SELECT sqlite_version()")
	if err != nil {
		return nil, err
	}
	info := &catalog.DatabaseInfo{ProductName: s.Name()}
	if len(versions) > 0 {
		info.ProductVersion = versions[0]
	}
	return info, nil
}

func (s *sqliteDialect) Schemas(ctx context.Context, q Querier) ([]*catalog.Schema, error) {
	rows, err := q.QueryContext(ctx, "PRAGMA database_list")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemas []*catalog.Schema
	for rows.Next() {
		var seq int
		var name string
		var file sql.NullString
		if err := rows.Scan(&seq, &name, &file); err != nil {
			return nil, err
		}
		if name == "temp" {
			continue
		}
		schemas = append(schemas, &catalog.Schema{Name: name})
	}
	return schemas, rows.Err()
}

// master returns the quoted sqlite_master table of a schema.
func (s *sqliteDialect) master(schema *catalog.Schema) string {
	return s.QuoteIdentifier(schema.Name) + ".sqlite_master"
}

// pragma formats a schema-qualified table pragma.
func (s *sqliteDialect) pragma(name string, schema *catalog.Schema, arg string) string {
	return fmt.Sprintf("PRAGMA %s.%s(%s)", s.QuoteIdentifier(schema.Name), name, s.QuoteIdentifier(arg))
}

func (s *sqliteDialect) Tables(ctx context.Context, q Querier, schema *catalog.Schema) ([]*catalog.Table, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(
		"SELECT name, type FROM %s WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%%' ORDER BY name",
		s.master(schema)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []*catalog.Table
	for rows.Next() {
		var name, tableType string
		if err := rows.Scan(&name, &tableType); err != nil {
			return nil, err
		}
		tables = append(tables, &catalog.Table{Schema: schema, Name: name, Type: strings.ToUpper(tableType)})
	}
	return tables, rows.Err()
}

func (s *sqliteDialect) Columns(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.Column, error) {
	rows, err := q.QueryContext(ctx, s.pragma("table_xinfo", table.Schema, table.Name))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		cols    []*catalog.Column
		pkCount int
	)
	for rows.Next() {
		var cid, pk, notnull, hidden int
		var name, colType string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notnull, &dflt, &pk, &hidden); err != nil {
			return nil, err
		}
		// hidden: 1 = hidden (virtual tables), 2 = generated stored, 3 = generated virtual
		if hidden == 1 {
			continue
		}

		dataType := strings.ToLower(normalizeAffinity(colType))
		col := &catalog.Column{
			Name:             name,
			Ordinal:          cid + 1,
			ColumnType:       strings.ToLower(colType),
			Nullable:         notnull == 0,
			Generated:        hidden == 2 || hidden == 3,
			PartOfPrimaryKey: pk > 0,
			DataType:         &catalog.ColumnDataType{Name: dataType, BaseType: dataType},
		}
		if dflt.Valid {
			col.Default = &dflt.String
		}
		col.Size, col.DecimalDigits = parseSQLiteTypeParams(colType)
		if pk > 0 {
			pkCount++
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	autoIncrCols, err := s.autoIncrementColumns(ctx, q, table)
	if err != nil {
		return nil, err
	}
	for _, c := range cols {
		// A lone INTEGER PRIMARY KEY is a rowid alias.
		rowid := pkCount == 1 && c.PartOfPrimaryKey && c.ColumnType == "integer"
		c.AutoIncrement = rowid || autoIncrCols[strings.ToLower(c.Name)]
	}
	return cols, nil
}

// normalizeAffinity extracts the base type name of a declared type.
func normalizeAffinity(declaredType string) string {
	dt := strings.TrimSpace(declaredType)
	if dt == "" {
		return "blob" // no declared type = BLOB affinity
	}
	if idx := strings.IndexByte(dt, '('); idx >= 0 {
		dt = dt[:idx]
	}
	return strings.TrimSpace(dt)
}

// parseSQLiteTypeParams reads size and scale from "NUMERIC(10,2)".
func parseSQLiteTypeParams(declaredType string) (size, scale int64) {
	lparen := strings.IndexByte(declaredType, '(')
	rparen := strings.LastIndexByte(declaredType, ')')
	if lparen < 0 || rparen <= lparen {
		return 0, 0
	}
	parts := strings.Split(declaredType[lparen+1:rparen], ",")
	fmt.Sscanf(strings.TrimSpace(parts[0]), "%d", &size)
	if len(parts) >= 2 {
		fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &scale)
	}
	return size, scale
}

// autoIncrementColumns finds the column declared AUTOINCREMENT in the
// table's CREATE statement. Names are lower-cased.
func (s *sqliteDialect) autoIncrementColumns(ctx context.Context, q Querier, table *catalog.Table) (map[string]bool, error) {
	result := make(map[string]bool)
	createSQL, err := collectStringPairs(ctx, q, fmt.Sprintf(
		"SELECT name, sql FROM %s WHERE type = 'table' AND name = ?", s.master(table.Schema)), table.Name)
	if err != nil {
		return nil, err
	}
	stmt := createSQL[table.Name]
	idx := strings.Index(strings.ToUpper(stmt), "AUTOINCREMENT")
	if idx <= 0 {
		return result, nil
	}
	// The column name precedes "INTEGER PRIMARY KEY".
	tokens := strings.Fields(stmt[:idx])
	for i := len(tokens) - 1; i >= 0; i-- {
		switch strings.ToUpper(tokens[i]) {
		case "INTEGER", "PRIMARY", "KEY":
			continue
		}
		if name := strings.Trim(tokens[i], ",(\n\r\t \"`[]"); name != "" {
			result[strings.ToLower(name)] = true
		}
		break
	}
	return result, nil
}

// SQLite has no user-defined types.
func (s *sqliteDialect) ColumnDataTypes(context.Context, Querier, *catalog.Schema) ([]*catalog.ColumnDataType, error) {
	return nil, nil
}

func (s *sqliteDialect) PrimaryKey(ctx context.Context, q Querier, table *catalog.Table) (*catalog.PrimaryKey, error) {
	rows, err := q.QueryContext(ctx, s.pragma("table_info", table.Schema, table.Name))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type pkCol struct {
		name  string
		pkPos int
	}
	var pkCols []pkCol
	for rows.Next() {
		var cid, notnull, pk int
		var name, colType string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		if pk > 0 {
			pkCols = append(pkCols, pkCol{name: name, pkPos: pk})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(pkCols) == 0 {
		return nil, nil
	}

	slices.SortFunc(pkCols, func(a, b pkCol) int { return a.pkPos - b.pkPos })
	pk := &catalog.PrimaryKey{Name: "PRIMARY"}
	for _, pc := range pkCols {
		pk.Columns = append(pk.Columns, pc.name)
	}
	return pk, nil
}

func (s *sqliteDialect) Indexes(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.Index, error) {
	rows, err := q.QueryContext(ctx, s.pragma("index_list", table.Schema, table.Name))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []*catalog.Index
	for rows.Next() {
		var seq int
		var name, origin string
		var unique, partial int
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return nil, err
		}
		// Primary key indexes are reported as the table's primary key.
		if origin == "pk" {
			continue
		}
		indexes = append(indexes, &catalog.Index{
			Table:         table,
			Name:          name,
			Unique:        unique == 1,
			Type:          "BTREE",
			HasExpression: partial == 1,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	definitions, err := collectStringPairs(ctx, q, fmt.Sprintf(
		"SELECT name, sql FROM %s WHERE type = 'index' AND tbl_name = ?", s.master(table.Schema)), table.Name)
	if err != nil {
		return nil, err
	}
	for _, idx := range indexes {
		idx.Definition = definitions[idx.Name]
		if err := s.indexColumns(ctx, q, table.Schema, idx); err != nil {
			return nil, fmt.Errorf("index %s: %w", idx.Name, err)
		}
	}
	slices.SortFunc(indexes, func(a, b *catalog.Index) int { return strings.Compare(a.Name, b.Name) })
	return indexes, nil
}

func (s *sqliteDialect) indexColumns(ctx context.Context, q Querier, schema *catalog.Schema, idx *catalog.Index) error {
	rows, err := q.QueryContext(ctx, s.pragma("index_xinfo", schema, idx.Name))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var seqno, cid, desc, key int
		var colName, collation sql.NullString
		if err := rows.Scan(&seqno, &cid, &colName, &desc, &collation, &key); err != nil {
			return err
		}
		// Auxiliary columns (the rowid) are not part of the key.
		if key == 0 {
			continue
		}
		if !colName.Valid {
			idx.HasExpression = true
			continue
		}
		idx.Columns = append(idx.Columns, catalog.IndexColumn{Name: colName.String, Descending: desc == 1})
	}
	return rows.Err()
}

func (s *sqliteDialect) ForeignKeys(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.ForeignKey, error) {
	rows, err := q.QueryContext(ctx, s.pragma("foreign_key_list", table.Schema, table.Name))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fkMap := make(map[int]*catalog.ForeignKey)
	var fks []*catalog.ForeignKey
	for rows.Next() {
		var id, seq int
		var refTable, from, onUpdate, onDelete, match string
		var to sql.NullString
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}

		fk, ok := fkMap[id]
		if !ok {
			fk = &catalog.ForeignKey{
				// SQLite does not keep constraint names.
				Name:       fmt.Sprintf("fk_%s_%d", table.Name, id),
				Child:      table,
				ParentName: catalog.TableName{Schema: table.Schema.Name, Name: refTable},
				UpdateRule: normalizeRule(onUpdate),
				DeleteRule: normalizeRule(onDelete),
			}
			fkMap[id] = fk
			fks = append(fks, fk)
		}
		// A NULL target column references the parent's primary key.
		fk.References = append(fk.References, catalog.ColumnReference{ForeignKeyColumn: from, PrimaryKeyColumn: to.String})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(fks, func(a, b *catalog.ForeignKey) int { return strings.Compare(a.Name, b.Name) })
	return fks, nil
}

func normalizeRule(rule string) string {
	rule = strings.ToUpper(strings.TrimSpace(rule))
	if rule == "" {
		return "NO ACTION"
	}
	return rule
}

func (s *sqliteDialect) TableRemarks(context.Context, Querier, *catalog.Schema) (map[string]string, error) {
	return nil, fmt.Errorf("table remarks: %w", ErrUnsupported)
}

func (s *sqliteDialect) ViewDefinitions(ctx context.Context, q Querier, schema *catalog.Schema) (map[string]string, error) {
	return collectStringPairs(ctx, q, fmt.Sprintf("SELECT name, sql FROM %s WHERE type = 'view'", s.master(schema)))
}

func (s *sqliteDialect) ColumnRemarks(context.Context, Querier, *catalog.Table) (map[string]string, error) {
	return nil, fmt.Errorf("column remarks: %w", ErrUnsupported)
}

const sqliteIdent = `(?:"(?:[^"]|"")*"|\[[^\]]*\]|` + "`(?:[^`]|``)*`" + `|'(?:[^']|'')*'|[\w$]+)`

// sqliteTriggerHead matches up to the event, past the trigger name.
var sqliteTriggerHead = regexp.MustCompile(`(?is)^\s*CREATE\s+(?:TEMP(?:ORARY)?\s+)?TRIGGER\s+(?:IF\s+NOT\s+EXISTS\s+)?` +
	sqliteIdent + `(?:\s*\.\s*` + sqliteIdent + `)?\s+(?:(BEFORE|AFTER|INSTEAD\s+OF)\s+)?(INSERT|UPDATE|DELETE)\b`)

var (
	sqliteTriggerBody = regexp.MustCompile(`(?is)\bBEGIN\b.*$`)
	whitespace        = regexp.MustCompile(`\s+`)
)

func (s *sqliteDialect) Triggers(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.Trigger, error) {
	defs, err := collectStringPairs(ctx, q, fmt.Sprintf(
		"SELECT name, sql FROM %s WHERE type = 'trigger' AND tbl_name = ?", s.master(table.Schema)), table.Name)
	if err != nil {
		return nil, err
	}
	triggers := make([]*catalog.Trigger, 0, len(defs))
	for name, def := range defs {
		triggers = append(triggers, parseSQLiteTrigger(name, def))
	}
	slices.SortFunc(triggers, func(a, b *catalog.Trigger) int { return strings.Compare(a.Name, b.Name) })
	return triggers, nil
}

// parseSQLiteTrigger reads timing, event and body from a CREATE TRIGGER
// statement. SQLite triggers default to BEFORE and always fire per row.
func parseSQLiteTrigger(name, def string) *catalog.Trigger {
	tr := &catalog.Trigger{Name: name, Timing: "BEFORE", Orientation: "ROW", ActionStatement: def}
	rest := def
	if m := sqliteTriggerHead.FindStringSubmatch(def); m != nil {
		if m[1] != "" {
			tr.Timing = strings.ToUpper(whitespace.ReplaceAllString(m[1], " "))
		}
		tr.Event = strings.ToUpper(m[2])
		rest = def[len(m[0]):]
	}
	if body := sqliteTriggerBody.FindString(rest); body != "" {
		tr.ActionStatement = body
	}
	return tr
}

// TableConstraints reports UNIQUE constraints through their automatic
// indexes and CHECK clauses parsed from the CREATE TABLE statement.
// Unnamed checks are numbered in declaration order.
func (s *sqliteDialect) TableConstraints(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.TableConstraint, error) {
	rows, err := q.QueryContext(ctx, s.pragma("index_list", table.Schema, table.Name))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uniques []*catalog.Index
	for rows.Next() {
		var seq int
		var name, origin string
		var unique, partial int
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return nil, err
		}
		if origin == "u" {
			uniques = append(uniques, &catalog.Index{Table: table, Name: name, Unique: true})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	var constraints []*catalog.TableConstraint
	for _, idx := range uniques {
		if err := s.indexColumns(ctx, q, table.Schema, idx); err != nil {
			return nil, fmt.Errorf("index %s: %w", idx.Name, err)
		}
		c := &catalog.TableConstraint{Table: table, Name: idx.Name, Type: catalog.UniqueConstraint}
		for _, col := range idx.Columns {
			c.Columns = append(c.Columns, col.Name)
		}
		constraints = append(constraints, c)
	}

	ddl, err := collectStringRows(ctx, q, fmt.Sprintf(
		"SELECT sql FROM %s WHERE type = 'table' AND name = ?", s.master(table.Schema)), table.Name)
	if err != nil {
		return nil, err
	}
	for _, stmt := range ddl {
		for i, check := range sqliteCheckConstraints(stmt) {
			name := check.name
			if name == "" {
				name = fmt.Sprintf("ck_%s_%d", table.Name, i+1)
			}
			constraints = append(constraints, &catalog.TableConstraint{
				Table:      table,
				Name:       name,
				Type:       catalog.CheckConstraint,
				Definition: check.clause,
			})
		}
	}
	return constraints, nil
}

type sqliteCheck struct {
	name   string
	clause string // parenthesized expression
}

// sqliteCheckConstraints finds the CHECK clauses of a CREATE TABLE
// statement, skipping quoted text and comments. A clause is named by a
// CONSTRAINT keyword directly before it.
func sqliteCheckConstraints(ddl string) []sqliteCheck {
	var checks []sqliteCheck
	pending := ""
	i := 0
	for i < len(ddl) {
		c := ddl[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			_, i = sqliteUnquote(ddl, i)
		case strings.HasPrefix(ddl[i:], "--"):
			if n := strings.IndexByte(ddl[i:], '\n'); n >= 0 {
				i += n + 1
			} else {
				i = len(ddl)
			}
		case strings.HasPrefix(ddl[i:], "/*"):
			if n := strings.Index(ddl[i+2:], "*/"); n >= 0 {
				i += n + 4
			} else {
				i = len(ddl)
			}
		case isSQLiteIdentByte(c):
			start := i
			for i < len(ddl) && isSQLiteIdentByte(ddl[i]) {
				i++
			}
			word := ddl[start:i]
			switch {
			case strings.EqualFold(word, "CONSTRAINT"):
				pending, i = sqliteName(ddl, i)
			case strings.EqualFold(word, "CHECK"):
				j := skipSpace(ddl, i)
				if j < len(ddl) && ddl[j] == '(' {
					end := sqliteGroupEnd(ddl, j)
					checks = append(checks, sqliteCheck{name: pending, clause: ddl[j:end]})
					i = end
				}
				pending = ""
			default:
				pending = ""
			}
		default:
			i++
		}
	}
	return checks
}

func isSQLiteIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func skipSpace(s string, i int) int {
	return i + len(s[i:]) - len(strings.TrimLeft(s[i:], " \t\r\n"))
}

// sqliteUnquote reads the quoted identifier or string starting at s[i] and
// returns its text and the index just past it. Doubled quotes are escapes.
func sqliteUnquote(s string, i int) (string, int) {
	closer := s[i]
	if closer == '[' {
		closer = ']'
	}
	var b strings.Builder
	j := i + 1
	for j < len(s) {
		if s[j] == closer {
			if closer != ']' && j+1 < len(s) && s[j+1] == closer {
				b.WriteByte(closer)
				j += 2
				continue
			}
			return b.String(), j + 1
		}
		b.WriteByte(s[j])
		j++
	}
	return b.String(), len(s)
}

// sqliteName reads the identifier following position i.
func sqliteName(s string, i int) (string, int) {
	i = skipSpace(s, i)
	if i >= len(s) {
		return "", i
	}
	switch s[i] {
	case '\'', '"', '`', '[':
		return sqliteUnquote(s, i)
	}
	start := i
	for i < len(s) && isSQLiteIdentByte(s[i]) {
		i++
	}
	return s[start:i], i
}

// sqliteGroupEnd returns the index just past the parenthesis closing the
// one at s[i].
func sqliteGroupEnd(s string, i int) int {
	depth := 0
	for i < len(s) {
		switch s[i] {
		case '\'', '"', '`', '[':
			_, i = sqliteUnquote(s, i)
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
		i++
	}
	return len(s)
}

func (s *sqliteDialect) Routines(context.Context, Querier, *catalog.Schema) ([]*catalog.Routine, error) {
	return nil, fmt.Errorf("routines: %w", ErrUnsupported)
}

func (s *sqliteDialect) RoutineParameters(context.Context, Querier, *catalog.Routine) ([]*catalog.RoutineParameter, error) {
	return nil, fmt.Errorf("routine parameters: %w", ErrUnsupported)
}

func (s *sqliteDialect) Sequences(context.Context, Querier, *catalog.Schema) ([]*catalog.Sequence, error) {
	return nil, fmt.Errorf("sequences: %w", ErrUnsupported)
}

func (s *sqliteDialect) Synonyms(context.Context, Querier, *catalog.Schema) ([]*catalog.Synonym, error) {
	return nil, fmt.Errorf("synonyms: %w", ErrUnsupported)
}

func (s *sqliteDialect) TablePrivileges(context.Context, Querier, *catalog.Table) ([]*catalog.Privilege, error) {
	return nil, fmt.Errorf("table privileges: %w", ErrUnsupported)
}

// TableAttributes counts rows exactly; SQLite keeps no estimate.
func (s *sqliteDialect) TableAttributes(ctx context.Context, q Querier, table *catalog.Table) (map[string]any, error) {
	if table.IsView() {
		return nil, nil
	}
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s.%s",
		s.QuoteIdentifier(table.Schema.Name), s.QuoteIdentifier(table.Name)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attrs := map[string]any{}
	if rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		attrs["row_count"] = n
	}
	return attrs, rows.Err()
}
