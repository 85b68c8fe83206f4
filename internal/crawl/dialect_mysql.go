package crawl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/Limetric/schemacrawl/internal/catalog"
)

// mysqlDialect reads INFORMATION_SCHEMA. MySQL databases are reported as
// schemas; when the DSN names a database only that one is crawled.
type mysqlDialect struct {
	database string
}

func (m *mysqlDialect) Name() string { return "MySQL" }

func (m *mysqlDialect) OpenDB(dsn, user, password string) (*sql.DB, error) {
	dsn, err := mysqlDSNWithCredentials(dsn, user, password)
	if err != nil {
		return nil, err
	}
	cfg, _ := mysql.ParseDSN(dsn)
	m.database = cfg.DBName
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return db, nil
}

// mysqlDSNWithCredentials sets the read options the crawler relies on and
// injects credentials that override the DSN's.
func mysqlDSNWithCredentials(baseDSN, user, password string) (string, error) {
	cfg, err := mysql.ParseDSN(baseDSN)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	if user != "" {
		cfg.User = user
	}
	if password != "" {
		cfg.Passwd = password
	}
	cfg.ParseTime = true
	cfg.InterpolateParams = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

func (m *mysqlDialect) NameCase() catalog.NameCase { return catalog.CaseSensitive }
func (m *mysqlDialect) MaxWorkers() int            { return 0 }

func (m *mysqlDialect) QuoteIdentifier(name string) string {
	return fmt.Sprintf("`%s`", strings.ReplaceAll(name, "`", "``"))
}

func (m *mysqlDialect) DatabaseInfo(ctx context.Context, q Querier) (*catalog.DatabaseInfo, error) {
	rows, err := q.QueryContext(ctx, `SELECT VERSION(), CURRENT_USER(), @@version_comment, @@lower_case_table_names`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	info := &catalog.DatabaseInfo{ProductName: m.Name(), Properties: map[string]string{}}
	if rows.Next() {
		var comment, lowerCase string
		if err := rows.Scan(&info.ProductVersion, &info.UserName, &comment, &lowerCase); err != nil {
			return nil, err
		}
		info.Properties["version_comment"] = comment
		info.Properties["lower_case_table_names"] = lowerCase
	}
	return info, rows.Err()
}

var mysqlSystemSchemas = []string{"information_schema", "mysql", "performance_schema", "sys"}

func (m *mysqlDialect) Schemas(ctx context.Context, q Querier) ([]*catalog.Schema, error) {
	var (
		names []string
		err   error
	)
	if m.database != "" {
		names, err = collectStringRows(ctx, q,
			`SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?`, m.database)
	} else {
		names, err = collectStringRows(ctx, q,
			`SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA
			 WHERE SCHEMA_NAME NOT IN (?, ?, ?, ?)
			 ORDER BY SCHEMA_NAME`,
			mysqlSystemSchemas[0], mysqlSystemSchemas[1], mysqlSystemSchemas[2], mysqlSystemSchemas[3])
	}
	if err != nil {
		return nil, err
	}
	schemas := make([]*catalog.Schema, len(names))
	for i, n := range names {
		schemas[i] = &catalog.Schema{Name: n}
	}
	return schemas, nil
}

func (m *mysqlDialect) Tables(ctx context.Context, q Querier, schema *catalog.Schema) ([]*catalog.Table, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT TABLE_NAME, TABLE_TYPE FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_SCHEMA = ?
		 ORDER BY TABLE_NAME`,
		schema.Name,
	)
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
		tables = append(tables, &catalog.Table{Schema: schema, Name: name, Type: normalizeTableType(tableType)})
	}
	return tables, rows.Err()
}

// normalizeTableType maps INFORMATION_SCHEMA table types to TABLE / VIEW.
func normalizeTableType(t string) string {
	switch strings.ToUpper(t) {
	case "BASE TABLE":
		return catalog.TableTypeTable
	default:
		return strings.ToUpper(t)
	}
}

func (m *mysqlDialect) Columns(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.Column, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE,
		        COALESCE(CHARACTER_MAXIMUM_LENGTH, 0),
		        COALESCE(NUMERIC_PRECISION, 0),
		        COALESCE(NUMERIC_SCALE, 0),
		        IS_NULLABLE, COLUMN_DEFAULT, EXTRA, ORDINAL_POSITION
		 FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		 ORDER BY ORDINAL_POSITION`,
		table.Schema.Name, table.Name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []*catalog.Column
	for rows.Next() {
		var (
			c                         catalog.Column
			dataType, nullable, extra string
			charLen, precision, scale int64
			dflt                      sql.NullString
		)
		if err := rows.Scan(
			&c.Name, &dataType, &c.ColumnType,
			&charLen, &precision, &scale,
			&nullable, &dflt, &extra, &c.Ordinal,
		); err != nil {
			return nil, err
		}
		dataType = strings.ToLower(dataType)
		c.ColumnType = strings.ToLower(c.ColumnType)
		c.Nullable = nullable == "YES"
		if dflt.Valid {
			c.Default = &dflt.String
		}
		c.Size = max(charLen, precision)
		c.DecimalDigits = scale
		c.AutoIncrement = strings.Contains(strings.ToLower(extra), "auto_increment")
		c.Generated = isMySQLGeneratedExtra(extra)
		c.DataType = mysqlColumnDataType(dataType, c.ColumnType)
		cols = append(cols, &c)
	}
	return cols, rows.Err()
}

func isMySQLGeneratedExtra(extra string) bool {
	extra = strings.ToLower(extra)
	return strings.Contains(extra, "virtual generated") || strings.Contains(extra, "stored generated")
}

// mysqlColumnDataType names enum and set types by their full column type,
// so each distinct value list is its own data type.
func mysqlColumnDataType(dataType, columnType string) *catalog.ColumnDataType {
	if dataType != "enum" && dataType != "set" {
		return &catalog.ColumnDataType{Name: dataType, BaseType: dataType}
	}
	dt := &catalog.ColumnDataType{Name: columnType, BaseType: dataType}
	if values, err := parseMySQLEnumSetValues(columnType); err == nil {
		dt.EnumValues = values
	}
	return dt
}

func (m *mysqlDialect) Routines(ctx context.Context, q Querier, schema *catalog.Schema) ([]*catalog.Routine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ROUTINE_NAME, SPECIFIC_NAME, ROUTINE_TYPE,
		       COALESCE(DTD_IDENTIFIER, ''), COALESCE(ROUTINE_DEFINITION, ''), ROUTINE_COMMENT
		FROM INFORMATION_SCHEMA.ROUTINES
		WHERE ROUTINE_SCHEMA = ?
		ORDER BY ROUTINE_TYPE, ROUTINE_NAME
	`, schema.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routines []*catalog.Routine
	for rows.Next() {
		r := &catalog.Routine{Schema: schema}
		var routineType string
		if err := rows.Scan(&r.Name, &r.SpecificName, &routineType, &r.ReturnType, &r.Definition, &r.Remarks); err != nil {
			return nil, err
		}
		r.RoutineKind = routineKind(routineType)
		routines = append(routines, r)
	}
	return routines, rows.Err()
}

func routineKind(t string) catalog.RoutineKind {
	if strings.EqualFold(t, "PROCEDURE") {
		return catalog.Procedure
	}
	return catalog.Function
}

// MySQL has no user-defined types; enum and set types come from columns.
func (m *mysqlDialect) ColumnDataTypes(context.Context, Querier, *catalog.Schema) ([]*catalog.ColumnDataType, error) {
	return nil, nil
}

func (m *mysqlDialect) PrimaryKey(ctx context.Context, q Querier, table *catalog.Table) (*catalog.PrimaryKey, error) {
	cols, err := collectStringRows(ctx, q, `
		SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND INDEX_NAME = 'PRIMARY'
		ORDER BY SEQ_IN_INDEX
	`, table.Schema.Name, table.Name)
	if err != nil || len(cols) == 0 {
		return nil, err
	}
	return &catalog.PrimaryKey{Name: "PRIMARY", Columns: cols}, nil
}

func (m *mysqlDialect) Indexes(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.Index, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT INDEX_NAME, COLUMN_NAME, NON_UNIQUE, SEQ_IN_INDEX, INDEX_TYPE, COLLATION, CARDINALITY
		 FROM INFORMATION_SCHEMA.STATISTICS
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND INDEX_NAME <> 'PRIMARY'
		 ORDER BY INDEX_NAME, SEQ_IN_INDEX`,
		table.Schema.Name, table.Name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	indexMap := make(map[string]*catalog.Index)
	var indexes []*catalog.Index
	for rows.Next() {
		var idxName, indexType string
		var colName, collation sql.NullString
		var cardinality sql.NullInt64
		var nonUnique, seqInIndex int
		if err := rows.Scan(&idxName, &colName, &nonUnique, &seqInIndex, &indexType, &collation, &cardinality); err != nil {
			return nil, err
		}

		idx, ok := indexMap[idxName]
		if !ok {
			idx = &catalog.Index{
				Table:  table,
				Name:   idxName,
				Unique: nonUnique == 0,
				Type:   strings.ToUpper(indexType),
			}
			indexMap[idxName] = idx
			indexes = append(indexes, idx)
		}
		if cardinality.Valid {
			idx.Cardinality = max(idx.Cardinality, cardinality.Int64)
		}
		if !colName.Valid {
			idx.HasExpression = true
			continue
		}
		idx.Columns = append(idx.Columns, catalog.IndexColumn{
			Name:       colName.String,
			Descending: collation.Valid && strings.EqualFold(collation.String, "D"),
		})
	}
	return indexes, rows.Err()
}

func (m *mysqlDialect) ForeignKeys(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.ForeignKey, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT kcu.CONSTRAINT_NAME, kcu.COLUMN_NAME,
		        kcu.REFERENCED_TABLE_SCHEMA, kcu.REFERENCED_TABLE_NAME, kcu.REFERENCED_COLUMN_NAME,
		        rc.UPDATE_RULE, rc.DELETE_RULE
		 FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		 JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
		   ON kcu.CONSTRAINT_NAME = rc.CONSTRAINT_NAME
		   AND kcu.TABLE_SCHEMA = rc.CONSTRAINT_SCHEMA
		 WHERE kcu.TABLE_SCHEMA = ? AND kcu.TABLE_NAME = ?
		   AND kcu.REFERENCED_TABLE_NAME IS NOT NULL
		 ORDER BY kcu.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`,
		table.Schema.Name, table.Name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fkMap := make(map[string]*catalog.ForeignKey)
	var fks []*catalog.ForeignKey
	for rows.Next() {
		var fkName, colName, refSchema, refTable, refCol, updateRule, deleteRule string
		if err := rows.Scan(&fkName, &colName, &refSchema, &refTable, &refCol, &updateRule, &deleteRule); err != nil {
			return nil, err
		}

		fk, ok := fkMap[fkName]
		if !ok {
			fk = &catalog.ForeignKey{
				Name:       fkName,
				Child:      table,
				ParentName: catalog.TableName{Schema: refSchema, Name: refTable},
				UpdateRule: updateRule,
				DeleteRule: deleteRule,
			}
			fkMap[fkName] = fk
			fks = append(fks, fk)
		}
		fk.References = append(fk.References, catalog.ColumnReference{ForeignKeyColumn: colName, PrimaryKeyColumn: refCol})
	}
	return fks, rows.Err()
}

func (m *mysqlDialect) TableRemarks(ctx context.Context, q Querier, schema *catalog.Schema) (map[string]string, error) {
	return collectStringPairs(ctx, q, `
		SELECT TABLE_NAME, TABLE_COMMENT FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_COMMENT <> ''
	`, schema.Name)
}

func (m *mysqlDialect) ViewDefinitions(ctx context.Context, q Querier, schema *catalog.Schema) (map[string]string, error) {
	return collectStringPairs(ctx, q, `
		SELECT TABLE_NAME, VIEW_DEFINITION FROM INFORMATION_SCHEMA.VIEWS
		WHERE TABLE_SCHEMA = ?
	`, schema.Name)
}

func (m *mysqlDialect) ColumnRemarks(ctx context.Context, q Querier, table *catalog.Table) (map[string]string, error) {
	return collectStringPairs(ctx, q, `
		SELECT COLUMN_NAME, COLUMN_COMMENT FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND COLUMN_COMMENT <> ''
	`, table.Schema.Name, table.Name)
}

func (m *mysqlDialect) Triggers(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.Trigger, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT TRIGGER_NAME, EVENT_MANIPULATION, ACTION_TIMING, ACTION_ORIENTATION, ACTION_STATEMENT
		FROM INFORMATION_SCHEMA.TRIGGERS
		WHERE EVENT_OBJECT_SCHEMA = ? AND EVENT_OBJECT_TABLE = ?
		ORDER BY TRIGGER_NAME
	`, table.Schema.Name, table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []*catalog.Trigger
	for rows.Next() {
		tr := &catalog.Trigger{}
		if err := rows.Scan(&tr.Name, &tr.Event, &tr.Timing, &tr.Orientation, &tr.ActionStatement); err != nil {
			return nil, err
		}
		triggers = append(triggers, tr)
	}
	return triggers, rows.Err()
}

// TableConstraints needs INFORMATION_SCHEMA.CHECK_CONSTRAINTS, added in
// MySQL 8.0.16; older servers fail the query.
func (m *mysqlDialect) TableConstraints(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.TableConstraint, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT tc.CONSTRAINT_NAME, tc.CONSTRAINT_TYPE, kcu.COLUMN_NAME, cc.CHECK_CLAUSE
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		LEFT JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		  ON kcu.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA
		  AND kcu.TABLE_NAME = tc.TABLE_NAME
		  AND kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
		LEFT JOIN INFORMATION_SCHEMA.CHECK_CONSTRAINTS cc
		  ON tc.CONSTRAINT_TYPE = 'CHECK'
		  AND cc.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA
		  AND cc.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
		WHERE tc.TABLE_SCHEMA = ? AND tc.TABLE_NAME = ?
		  AND tc.CONSTRAINT_TYPE IN ('CHECK', 'UNIQUE')
		ORDER BY tc.CONSTRAINT_NAME, kcu.ORDINAL_POSITION
	`, table.Schema.Name, table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byName := make(map[string]*catalog.TableConstraint)
	var constraints []*catalog.TableConstraint
	for rows.Next() {
		var name, constraintType string
		var column, clause sql.NullString
		if err := rows.Scan(&name, &constraintType, &column, &clause); err != nil {
			return nil, err
		}
		c, ok := byName[name]
		if !ok {
			c = &catalog.TableConstraint{
				Table:      table,
				Name:       name,
				Type:       catalog.ConstraintType(constraintType),
				Definition: clause.String,
			}
			byName[name] = c
			constraints = append(constraints, c)
		}
		if column.Valid {
			c.Columns = append(c.Columns, column.String)
		}
	}
	return constraints, rows.Err()
}

func (m *mysqlDialect) RoutineParameters(ctx context.Context, q Querier, routine *catalog.Routine) ([]*catalog.RoutineParameter, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT COALESCE(PARAMETER_NAME, ''), ORDINAL_POSITION, COALESCE(PARAMETER_MODE, ''), DTD_IDENTIFIER
		FROM INFORMATION_SCHEMA.PARAMETERS
		WHERE SPECIFIC_SCHEMA = ? AND SPECIFIC_NAME = ?
		ORDER BY ORDINAL_POSITION
	`, routine.Schema.Name, routine.SpecificName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var params []*catalog.RoutineParameter
	for rows.Next() {
		p := &catalog.RoutineParameter{}
		if err := rows.Scan(&p.Name, &p.Ordinal, &p.Mode, &p.DataType); err != nil {
			return nil, err
		}
		// Ordinal 0 is a function's return value.
		if p.Ordinal == 0 {
			p.Mode = "RETURN"
		}
		params = append(params, p)
	}
	return params, rows.Err()
}

func (m *mysqlDialect) Sequences(context.Context, Querier, *catalog.Schema) ([]*catalog.Sequence, error) {
	return nil, fmt.Errorf("sequences: %w", ErrUnsupported)
}

func (m *mysqlDialect) Synonyms(context.Context, Querier, *catalog.Schema) ([]*catalog.Synonym, error) {
	return nil, fmt.Errorf("synonyms: %w", ErrUnsupported)
}

func (m *mysqlDialect) TablePrivileges(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.Privilege, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT PRIVILEGE_TYPE, GRANTEE, IS_GRANTABLE
		FROM INFORMATION_SCHEMA.TABLE_PRIVILEGES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY GRANTEE, PRIVILEGE_TYPE
	`, table.Schema.Name, table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var privs []*catalog.Privilege
	for rows.Next() {
		p := &catalog.Privilege{}
		var grantable string
		if err := rows.Scan(&p.Name, &p.Grantee, &grantable); err != nil {
			return nil, err
		}
		p.Grantable = grantable == "YES"
		privs = append(privs, p)
	}
	return privs, rows.Err()
}

func (m *mysqlDialect) TableAttributes(ctx context.Context, q Querier, table *catalog.Table) (map[string]any, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT COALESCE(TABLE_ROWS, 0), COALESCE(ENGINE, ''), COALESCE(DATA_LENGTH, 0)
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
	`, table.Schema.Name, table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attrs := map[string]any{}
	if rows.Next() {
		var rowsEstimate, dataLength int64
		var engine string
		if err := rows.Scan(&rowsEstimate, &engine, &dataLength); err != nil {
			return nil, err
		}
		attrs["row_estimate"] = rowsEstimate
		attrs["engine"] = engine
		attrs["data_length"] = dataLength
	}
	return attrs, rows.Err()
}
