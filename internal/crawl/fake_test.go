package crawl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/Limetric/schemacrawl/internal/catalog"
	"github.com/Limetric/schemacrawl/internal/connection"
)

// fakeTable describes one table served by fakeDialect.
type fakeTable struct {
	schema, name, tableType string
	columns                 []string
	remarks                 map[string]string // column remarks
	parents                 map[string]string // fk column -> parent "schema.table"
	definition              string
}

// fakeDialect serves metadata from memory and never touches the Querier.
type fakeDialect struct {
	nameCase   catalog.NameCase
	maxWorkers int
	schemas    []string
	tables     []fakeTable
	routines   map[string][]string // schema -> routine names
	sequences  map[string][]string
	failures   map[string]error // stage -> error
	delay      time.Duration

	mu     sync.Mutex
	calls  map[string]int
	active atomic.Int32
	peak   atomic.Int32
}

// newShopDialect serves shop.customers <- shop.orders <- shop.order_items
// and an unrelated audit.audit_log.
func newShopDialect() *fakeDialect {
	return &fakeDialect{
		nameCase: catalog.LowerCase,
		schemas:  []string{"shop", "audit"},
		tables: []fakeTable{
			{schema: "shop", name: "customers", columns: []string{"id", "email"},
				remarks: map[string]string{"email": "contact address"}},
			{schema: "shop", name: "orders", columns: []string{"id", "customer_id", "status"},
				parents: map[string]string{"customer_id": "shop.customers"}},
			{schema: "shop", name: "order_items", columns: []string{"order_id", "sku"},
				parents: map[string]string{"order_id": "shop.orders"}},
			{schema: "shop", name: "open_orders", tableType: catalog.TableTypeView, columns: []string{"id"},
				definition: "SELECT id FROM orders WHERE status = 'open'"},
			{schema: "audit", name: "audit_log", columns: []string{"id", "entry"}},
		},
		routines:  map[string][]string{"shop": {"place_order"}},
		sequences: map[string][]string{"shop": {"order_seq"}},
	}
}

func (f *fakeDialect) record(stage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[stage]++
	return f.failures[stage]
}

func (f *fakeDialect) called(stage string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[stage]
}

func (f *fakeDialect) enter() func() {
	n := f.active.Add(1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { f.active.Add(-1) }
}

func (f *fakeDialect) find(t *catalog.Table) fakeTable {
	for _, ft := range f.tables {
		if ft.schema == t.Schema.Name && ft.name == t.Name {
			return ft
		}
	}
	return fakeTable{}
}

func (f *fakeDialect) Name() string                       { return "Fake" }
func (f *fakeDialect) NameCase() catalog.NameCase         { return f.nameCase }
func (f *fakeDialect) MaxWorkers() int                    { return f.maxWorkers }
func (f *fakeDialect) QuoteIdentifier(name string) string { return `"` + name + `"` }

func (f *fakeDialect) OpenDB(string, string, string) (*sql.DB, error) {
	return nil, ErrUnsupported
}

func (f *fakeDialect) DatabaseInfo(context.Context, Querier) (*catalog.DatabaseInfo, error) {
	if err := f.record(StageDatabaseInfo); err != nil {
		return nil, err
	}
	return &catalog.DatabaseInfo{ProductName: "Fake", ProductVersion: "1.0"}, nil
}

func (f *fakeDialect) Schemas(context.Context, Querier) ([]*catalog.Schema, error) {
	if err := f.record(StageSchemas); err != nil {
		return nil, err
	}
	var out []*catalog.Schema
	for _, s := range f.schemas {
		out = append(out, &catalog.Schema{Name: s})
	}
	return out, nil
}

func (f *fakeDialect) Tables(_ context.Context, _ Querier, schema *catalog.Schema) ([]*catalog.Table, error) {
	if err := f.record(StageTables); err != nil {
		return nil, err
	}
	var out []*catalog.Table
	for _, ft := range f.tables {
		if ft.schema != schema.Name {
			continue
		}
		tableType := ft.tableType
		if tableType == "" {
			tableType = catalog.TableTypeTable
		}
		out = append(out, &catalog.Table{Schema: schema, Name: ft.name, Type: tableType})
	}
	return out, nil
}

func (f *fakeDialect) Columns(_ context.Context, _ Querier, t *catalog.Table) ([]*catalog.Column, error) {
	defer f.enter()()
	if err := f.record(StageColumns); err != nil {
		return nil, err
	}
	var out []*catalog.Column
	for i, name := range f.find(t).columns {
		dataType := "integer"
		if name == "status" {
			out = append(out, &catalog.Column{Name: name, Ordinal: i + 1,
				DataType: &catalog.ColumnDataType{Name: "order_status", Schema: &catalog.Schema{Name: t.Schema.Name}}})
			continue
		}
		if name == "email" || name == "entry" || name == "sku" {
			dataType = "text"
		}
		out = append(out, &catalog.Column{Name: name, Ordinal: i + 1, DataType: &catalog.ColumnDataType{Name: dataType}})
	}
	return out, nil
}

func (f *fakeDialect) Routines(_ context.Context, _ Querier, schema *catalog.Schema) ([]*catalog.Routine, error) {
	if err := f.record(StageRoutines); err != nil {
		return nil, err
	}
	var out []*catalog.Routine
	for _, name := range f.routines[schema.Name] {
		out = append(out, &catalog.Routine{Schema: schema, Name: name, SpecificName: name, RoutineKind: catalog.Procedure})
	}
	return out, nil
}

func (f *fakeDialect) ColumnDataTypes(_ context.Context, _ Querier, schema *catalog.Schema) ([]*catalog.ColumnDataType, error) {
	if err := f.record(StageColumnDataTypes); err != nil {
		return nil, err
	}
	if schema.Name != "shop" {
		return nil, nil
	}
	return []*catalog.ColumnDataType{{Name: "order_status", BaseType: "enum", EnumValues: []string{"open", "shipped"}}}, nil
}

func (f *fakeDialect) PrimaryKey(_ context.Context, _ Querier, t *catalog.Table) (*catalog.PrimaryKey, error) {
	if err := f.record(StagePrimaryKeys); err != nil {
		return nil, err
	}
	if t.IsView() {
		return nil, nil
	}
	return &catalog.PrimaryKey{Name: "pk_" + t.Name, Columns: f.find(t).columns[:1]}, nil
}

func (f *fakeDialect) Indexes(context.Context, Querier, *catalog.Table) ([]*catalog.Index, error) {
	return nil, f.record(StageIndexes)
}

func (f *fakeDialect) ForeignKeys(_ context.Context, _ Querier, t *catalog.Table) ([]*catalog.ForeignKey, error) {
	defer f.enter()()
	if err := f.record(StageForeignKeys); err != nil {
		return nil, err
	}
	var out []*catalog.ForeignKey
	for col, parent := range f.find(t).parents {
		schema, name, _ := strings.Cut(parent, ".")
		out = append(out, &catalog.ForeignKey{
			Name:       fmt.Sprintf("fk_%s_%s", t.Name, col),
			ParentName: catalog.TableName{Schema: schema, Name: name},
			References: []catalog.ColumnReference{{ForeignKeyColumn: col, PrimaryKeyColumn: "id"}},
		})
	}
	return out, nil
}

func (f *fakeDialect) TableRemarks(context.Context, Querier, *catalog.Schema) (map[string]string, error) {
	return nil, f.record(StageTableRemarks)
}

func (f *fakeDialect) ViewDefinitions(_ context.Context, _ Querier, schema *catalog.Schema) (map[string]string, error) {
	if err := f.record(StageViewDefinitions); err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, ft := range f.tables {
		if ft.schema == schema.Name && ft.definition != "" {
			out[ft.name] = ft.definition
		}
	}
	return out, nil
}

func (f *fakeDialect) ColumnRemarks(_ context.Context, _ Querier, t *catalog.Table) (map[string]string, error) {
	if err := f.record(StageColumnRemarks); err != nil {
		return nil, err
	}
	return f.find(t).remarks, nil
}

func (f *fakeDialect) Triggers(context.Context, Querier, *catalog.Table) ([]*catalog.Trigger, error) {
	return nil, f.record(StageTriggers)
}

func (f *fakeDialect) TableConstraints(_ context.Context, _ Querier, t *catalog.Table) ([]*catalog.TableConstraint, error) {
	if err := f.record(StageTableConstraints); err != nil {
		return nil, err
	}
	var out []*catalog.TableConstraint
	for _, col := range f.find(t).columns {
		switch col {
		case "email":
			out = append(out, &catalog.TableConstraint{Name: "uq_" + t.Name + "_email", Type: catalog.UniqueConstraint, Columns: []string{col}})
		case "status":
			out = append(out, &catalog.TableConstraint{Name: "ck_" + t.Name + "_status", Type: catalog.CheckConstraint,
				Columns: []string{col}, Definition: "status IN ('open', 'shipped')"})
		}
	}
	return out, nil
}

func (f *fakeDialect) RoutineParameters(context.Context, Querier, *catalog.Routine) ([]*catalog.RoutineParameter, error) {
	if err := f.record(StageRoutineParameters); err != nil {
		return nil, err
	}
	return []*catalog.RoutineParameter{{Name: "customer_id", Ordinal: 1, Mode: "IN", DataType: "integer"}}, nil
}

func (f *fakeDialect) Sequences(_ context.Context, _ Querier, schema *catalog.Schema) ([]*catalog.Sequence, error) {
	if err := f.record(StageSequences); err != nil {
		return nil, err
	}
	var out []*catalog.Sequence
	for _, name := range f.sequences[schema.Name] {
		out = append(out, &catalog.Sequence{Schema: schema, Name: name, Start: 1, Increment: 1})
	}
	return out, nil
}

func (f *fakeDialect) Synonyms(context.Context, Querier, *catalog.Schema) ([]*catalog.Synonym, error) {
	f.record(StageSynonyms)
	return nil, fmt.Errorf("synonyms: %w", ErrUnsupported)
}

func (f *fakeDialect) TablePrivileges(context.Context, Querier, *catalog.Table) ([]*catalog.Privilege, error) {
	if err := f.record(StageTablePrivileges); err != nil {
		return nil, err
	}
	return []*catalog.Privilege{{Name: "SELECT", Grantee: "crawler"}}, nil
}

func (f *fakeDialect) TableAttributes(context.Context, Querier, *catalog.Table) (map[string]any, error) {
	if err := f.record(StageTableAttributes); err != nil {
		return nil, err
	}
	return map[string]any{"row_estimate": int64(10)}, nil
}

// newMockSource returns a connection source over sqlmock. A maxConns above
// one gives a pooled source.
func newMockSource(t *testing.T, maxConns int) connection.Source {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()
	open := func(string, string) (*sql.DB, error) { return db, nil }
	if maxConns > 1 {
		return connection.New(open, connection.NewMultiUseCredentials("crawler", "pw"),
			connection.Options{MaxConnections: maxConns})
	}
	return connection.New(open, connection.NewSingleUseCredentials("crawler", "pw"), connection.Options{})
}
