package crawl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/Limetric/schemacrawl/internal/catalog"
)

// postgresDialect reads information_schema and pg_catalog through pgx's
// database/sql adapter.
type postgresDialect struct{}

func (p *postgresDialect) Name() string { return "PostgreSQL" }

func (p *postgresDialect) OpenDB(dsn, user, password string) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if user != "" {
		cfg.User = user
	}
	if password != "" {
		cfg.Password = password
	}
	return stdlib.OpenDB(*cfg), nil
}

func (p *postgresDialect) NameCase() catalog.NameCase { return catalog.CaseSensitive }
func (p *postgresDialect) MaxWorkers() int            { return 0 }

func (p *postgresDialect) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (p *postgresDialect) DatabaseInfo(ctx context.Context, q Querier) (*catalog.DatabaseInfo, error) {
	rows, err := q.QueryContext(ctx, `SELECT current_setting('server_version'), current_user, current_database(), version()`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	info := &catalog.DatabaseInfo{ProductName: p.Name(), Properties: map[string]string{}}
	if rows.Next() {
		var database, full string
		if err := rows.Scan(&info.ProductVersion, &info.UserName, &database, &full); err != nil {
			return nil, err
		}
		info.Properties["database"] = database
		info.Properties["version"] = full
	}
	return info, rows.Err()
}

func (p *postgresDialect) Schemas(ctx context.Context, q Querier) ([]*catalog.Schema, error) {
	names, err := collectStringRows(ctx, q, `
		SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema')
		  AND schema_name NOT LIKE 'pg\_toast%'
		  AND schema_name NOT LIKE 'pg\_temp\_%'
		ORDER BY schema_name
	`)
	if err != nil {
		return nil, err
	}
	schemas := make([]*catalog.Schema, len(names))
	for i, n := range names {
		schemas[i] = &catalog.Schema{Name: n}
	}
	return schemas, nil
}

func (p *postgresDialect) Tables(ctx context.Context, q Querier, schema *catalog.Schema) ([]*catalog.Table, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT table_name, table_type FROM information_schema.tables
		WHERE table_schema = $1
		ORDER BY table_name
	`, schema.Name)
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

func (p *postgresDialect) Columns(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.Column, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT column_name, ordinal_position, data_type, udt_schema, udt_name,
		       COALESCE(character_maximum_length, numeric_precision, datetime_precision, 0),
		       COALESCE(numeric_scale, 0),
		       is_nullable, column_default, is_identity, is_generated
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, table.Schema.Name, table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []*catalog.Column
	for rows.Next() {
		var (
			c                             catalog.Column
			dataType, udtSchema, udtName  string
			nullable, identity, generated string
			dflt                          sql.NullString
		)
		if err := rows.Scan(
			&c.Name, &c.Ordinal, &dataType, &udtSchema, &udtName,
			&c.Size, &c.DecimalDigits,
			&nullable, &dflt, &identity, &generated,
		); err != nil {
			return nil, err
		}
		c.ColumnType = dataType
		c.Nullable = nullable == "YES"
		if dflt.Valid {
			c.Default = &dflt.String
		}
		c.AutoIncrement = identity == "YES" || strings.HasPrefix(dflt.String, "nextval(")
		c.Generated = generated == "ALWAYS"
		c.DataType = postgresColumnDataType(dataType, udtSchema, udtName)
		cols = append(cols, &c)
	}
	return cols, rows.Err()
}

// postgresColumnDataType names user-defined types by their udt and keeps
// their schema, so they resolve to the types found by ColumnDataTypes.
func postgresColumnDataType(dataType, udtSchema, udtName string) *catalog.ColumnDataType {
	switch dataType {
	case "USER-DEFINED":
		return &catalog.ColumnDataType{Schema: &catalog.Schema{Name: udtSchema}, Name: udtName}
	case "ARRAY":
		return &catalog.ColumnDataType{Name: udtName, BaseType: "array"}
	default:
		return &catalog.ColumnDataType{Name: dataType, BaseType: dataType}
	}
}

func (p *postgresDialect) Routines(ctx context.Context, q Querier, schema *catalog.Schema) ([]*catalog.Routine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT r.routine_name, r.specific_name, COALESCE(r.routine_type, 'FUNCTION'),
		       COALESCE(r.data_type, ''), COALESCE(r.routine_definition, ''),
		       COALESCE(obj_description(pr.oid, 'pg_proc'), '')
		FROM information_schema.routines r
		JOIN pg_catalog.pg_namespace n ON n.nspname = r.specific_schema
		JOIN pg_catalog.pg_proc pr ON pr.pronamespace = n.oid
		  AND r.specific_name = pr.proname || '_' || pr.oid
		WHERE r.routine_schema = $1
		ORDER BY r.routine_name, r.specific_name
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

// ColumnDataTypes lists enum and domain types.
func (p *postgresDialect) ColumnDataTypes(ctx context.Context, q Querier, schema *catalog.Schema) ([]*catalog.ColumnDataType, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT t.typname, e.enumlabel
		FROM pg_catalog.pg_type t
		JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
		JOIN pg_catalog.pg_enum e ON e.enumtypid = t.oid
		WHERE n.nspname = $1
		ORDER BY t.typname, e.enumsortorder
	`, schema.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []*catalog.ColumnDataType
	byName := make(map[string]*catalog.ColumnDataType)
	for rows.Next() {
		var name, label string
		if err := rows.Scan(&name, &label); err != nil {
			return nil, err
		}
		dt, ok := byName[name]
		if !ok {
			dt = &catalog.ColumnDataType{Schema: schema, Name: name, BaseType: "enum"}
			byName[name] = dt
			types = append(types, dt)
		}
		dt.EnumValues = append(dt.EnumValues, label)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	domains, err := collectStringPairs(ctx, q, `
		SELECT domain_name, data_type FROM information_schema.domains
		WHERE domain_schema = $1
	`, schema.Name)
	if err != nil {
		return nil, err
	}
	for name, base := range domains {
		types = append(types, &catalog.ColumnDataType{Schema: schema, Name: name, BaseType: base})
	}
	return types, nil
}

func (p *postgresDialect) PrimaryKey(ctx context.Context, q Querier, table *catalog.Table) (*catalog.PrimaryKey, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT tc.constraint_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_schema = tc.constraint_schema
		  AND kcu.constraint_name = tc.constraint_name
		  AND kcu.table_name = tc.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1 AND tc.table_name = $2
		ORDER BY kcu.ordinal_position
	`, table.Schema.Name, table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pk *catalog.PrimaryKey
	for rows.Next() {
		var name, column string
		if err := rows.Scan(&name, &column); err != nil {
			return nil, err
		}
		if pk == nil {
			pk = &catalog.PrimaryKey{Name: name}
		}
		pk.Columns = append(pk.Columns, column)
	}
	return pk, rows.Err()
}

func (p *postgresDialect) Indexes(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.Index, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT i.relname, ix.indisunique, am.amname, a.attname,
		       (ix.indoption[(k.ord - 1)::int] & 1) = 1,
		       pg_get_indexdef(ix.indexrelid), ix.indpred IS NOT NULL
		FROM pg_catalog.pg_index ix
		JOIN pg_catalog.pg_class t ON t.oid = ix.indrelid
		JOIN pg_catalog.pg_class i ON i.oid = ix.indexrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_catalog.pg_am am ON am.oid = i.relam
		CROSS JOIN LATERAL unnest(ix.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord)
		LEFT JOIN pg_catalog.pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum AND k.attnum > 0
		WHERE n.nspname = $1 AND t.relname = $2 AND NOT ix.indisprimary
		  AND k.ord <= ix.indnkeyatts
		ORDER BY i.relname, k.ord
	`, table.Schema.Name, table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	indexMap := make(map[string]*catalog.Index)
	var indexes []*catalog.Index
	for rows.Next() {
		var name, method, definition string
		var unique, descending, partial bool
		var column sql.NullString
		if err := rows.Scan(&name, &unique, &method, &column, &descending, &definition, &partial); err != nil {
			return nil, err
		}
		idx, ok := indexMap[name]
		if !ok {
			idx = &catalog.Index{
				Table:         table,
				Name:          name,
				Unique:        unique,
				Type:          strings.ToUpper(method),
				Definition:    definition,
				HasExpression: partial,
			}
			indexMap[name] = idx
			indexes = append(indexes, idx)
		}
		if !column.Valid {
			idx.HasExpression = true
			continue
		}
		idx.Columns = append(idx.Columns, catalog.IndexColumn{Name: column.String, Descending: descending})
	}
	return indexes, rows.Err()
}

var postgresRules = map[string]string{
	"a": "NO ACTION",
	"r": "RESTRICT",
	"c": "CASCADE",
	"n": "SET NULL",
	"d": "SET DEFAULT",
}

func (p *postgresDialect) ForeignKeys(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.ForeignKey, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT c.conname, a.attname, pn.nspname, pc.relname, pa.attname,
		       c.confupdtype::text, c.confdeltype::text
		FROM pg_catalog.pg_constraint c
		JOIN pg_catalog.pg_class t ON t.oid = c.conrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_catalog.pg_class pc ON pc.oid = c.confrelid
		JOIN pg_catalog.pg_namespace pn ON pn.oid = pc.relnamespace
		CROSS JOIN LATERAL unnest(c.conkey, c.confkey) WITH ORDINALITY AS k(col, refcol, ord)
		JOIN pg_catalog.pg_attribute a ON a.attrelid = c.conrelid AND a.attnum = k.col
		JOIN pg_catalog.pg_attribute pa ON pa.attrelid = c.confrelid AND pa.attnum = k.refcol
		WHERE c.contype = 'f' AND n.nspname = $1 AND t.relname = $2
		ORDER BY c.conname, k.ord
	`, table.Schema.Name, table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fkMap := make(map[string]*catalog.ForeignKey)
	var fks []*catalog.ForeignKey
	for rows.Next() {
		var name, column, refSchema, refTable, refColumn, onUpdate, onDelete string
		if err := rows.Scan(&name, &column, &refSchema, &refTable, &refColumn, &onUpdate, &onDelete); err != nil {
			return nil, err
		}
		fk, ok := fkMap[name]
		if !ok {
			fk = &catalog.ForeignKey{
				Name:       name,
				Child:      table,
				ParentName: catalog.TableName{Schema: refSchema, Name: refTable},
				UpdateRule: postgresRules[onUpdate],
				DeleteRule: postgresRules[onDelete],
			}
			fkMap[name] = fk
			fks = append(fks, fk)
		}
		fk.References = append(fk.References, catalog.ColumnReference{ForeignKeyColumn: column, PrimaryKeyColumn: refColumn})
	}
	return fks, rows.Err()
}

func (p *postgresDialect) TableRemarks(ctx context.Context, q Querier, schema *catalog.Schema) (map[string]string, error) {
	return collectStringPairs(ctx, q, `
		SELECT c.relname, obj_description(c.oid, 'pg_class')
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relkind IN ('r', 'p', 'v', 'm', 'f')
	`, schema.Name)
}

func (p *postgresDialect) ViewDefinitions(ctx context.Context, q Querier, schema *catalog.Schema) (map[string]string, error) {
	return collectStringPairs(ctx, q, `
		SELECT table_name, view_definition FROM information_schema.views
		WHERE table_schema = $1
	`, schema.Name)
}

func (p *postgresDialect) ColumnRemarks(ctx context.Context, q Querier, table *catalog.Table) (map[string]string, error) {
	return collectStringPairs(ctx, q, `
		SELECT a.attname, col_description(a.attrelid, a.attnum)
		FROM pg_catalog.pg_attribute a
		JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2 AND a.attnum > 0 AND NOT a.attisdropped
	`, table.Schema.Name, table.Name)
}

func (p *postgresDialect) Triggers(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.Trigger, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT trigger_name, event_manipulation, action_timing, action_orientation, action_statement
		FROM information_schema.triggers
		WHERE event_object_schema = $1 AND event_object_table = $2
		ORDER BY trigger_name, event_manipulation
	`, table.Schema.Name, table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// information_schema reports one row per event; merge them.
	byName := make(map[string]*catalog.Trigger)
	var triggers []*catalog.Trigger
	for rows.Next() {
		var name, event, timing, orientation, statement string
		if err := rows.Scan(&name, &event, &timing, &orientation, &statement); err != nil {
			return nil, err
		}
		if tr, ok := byName[name]; ok {
			tr.Event += "," + event
			continue
		}
		tr := &catalog.Trigger{Name: name, Event: event, Timing: timing, Orientation: orientation, ActionStatement: statement}
		byName[name] = tr
		triggers = append(triggers, tr)
	}
	return triggers, rows.Err()
}

var postgresConstraintTypes = map[string]catalog.ConstraintType{
	"c": catalog.CheckConstraint,
	"u": catalog.UniqueConstraint,
}

func (p *postgresDialect) TableConstraints(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.TableConstraint, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT c.conname, c.contype::text, a.attname,
		       CASE WHEN c.contype = 'c' THEN pg_get_constraintdef(c.oid) END
		FROM pg_catalog.pg_constraint c
		JOIN pg_catalog.pg_class t ON t.oid = c.conrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = t.relnamespace
		LEFT JOIN LATERAL unnest(c.conkey) WITH ORDINALITY AS k(col, ord) ON true
		LEFT JOIN pg_catalog.pg_attribute a ON a.attrelid = c.conrelid AND a.attnum = k.col
		WHERE c.contype IN ('c', 'u') AND n.nspname = $1 AND t.relname = $2
		ORDER BY c.conname, k.ord
	`, table.Schema.Name, table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byName := make(map[string]*catalog.TableConstraint)
	var constraints []*catalog.TableConstraint
	for rows.Next() {
		var name, contype string
		var column, def sql.NullString
		if err := rows.Scan(&name, &contype, &column, &def); err != nil {
			return nil, err
		}
		c, ok := byName[name]
		if !ok {
			c = &catalog.TableConstraint{
				Table:      table,
				Name:       name,
				Type:       postgresConstraintTypes[contype],
				Definition: strings.TrimPrefix(def.String, "CHECK "),
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

func (p *postgresDialect) RoutineParameters(ctx context.Context, q Querier, routine *catalog.Routine) ([]*catalog.RoutineParameter, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT COALESCE(parameter_name, ''), ordinal_position, COALESCE(parameter_mode, ''), data_type
		FROM information_schema.parameters
		WHERE specific_schema = $1 AND specific_name = $2
		ORDER BY ordinal_position
	`, routine.Schema.Name, routine.SpecificName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var params []*catalog.RoutineParameter
	for rows.Next() {
		prm := &catalog.RoutineParameter{}
		if err := rows.Scan(&prm.Name, &prm.Ordinal, &prm.Mode, &prm.DataType); err != nil {
			return nil, err
		}
		params = append(params, prm)
	}
	return params, rows.Err()
}

func (p *postgresDialect) Sequences(ctx context.Context, q Querier, schema *catalog.Schema) ([]*catalog.Sequence, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT sequencename, start_value, increment_by, min_value, max_value, cycle
		FROM pg_catalog.pg_sequences
		WHERE schemaname = $1
		ORDER BY sequencename
	`, schema.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seqs []*catalog.Sequence
	for rows.Next() {
		seq := &catalog.Sequence{Schema: schema}
		if err := rows.Scan(&seq.Name, &seq.Start, &seq.Increment, &seq.Minimum, &seq.Maximum, &seq.Cycle); err != nil {
			return nil, err
		}
		seqs = append(seqs, seq)
	}
	return seqs, rows.Err()
}

func (p *postgresDialect) Synonyms(context.Context, Querier, *catalog.Schema) ([]*catalog.Synonym, error) {
	return nil, fmt.Errorf("synonyms: %w", ErrUnsupported)
}

func (p *postgresDialect) TablePrivileges(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.Privilege, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT privilege_type, grantor, grantee, is_grantable
		FROM information_schema.table_privileges
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY grantee, privilege_type
	`, table.Schema.Name, table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var privs []*catalog.Privilege
	for rows.Next() {
		prv := &catalog.Privilege{}
		var grantable string
		if err := rows.Scan(&prv.Name, &prv.Grantor, &prv.Grantee, &grantable); err != nil {
			return nil, err
		}
		prv.Grantable = grantable == "YES"
		privs = append(privs, prv)
	}
	return privs, rows.Err()
}

func (p *postgresDialect) TableAttributes(ctx context.Context, q Querier, table *catalog.Table) (map[string]any, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT c.reltuples::bigint, pg_total_relation_size(c.oid), c.relkind::text
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2
	`, table.Schema.Name, table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attrs := map[string]any{}
	if rows.Next() {
		var estimate, size int64
		var kind string
		if err := rows.Scan(&estimate, &size, &kind); err != nil {
			return nil, err
		}
		attrs["row_estimate"] = estimate
		attrs["total_bytes"] = size
		attrs["relkind"] = kind
	}
	return attrs, rows.Err()
}
