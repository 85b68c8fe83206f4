package catalog

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Limetric/schemacrawl/internal/graph"
)

func addTable(c *Catalog, s *Schema, name string, cols ...string) *Table {
	t := &Table{Schema: s, Name: name, Type: TableTypeTable}
	var columns []*Column
	for i, col := range cols {
		columns = append(columns, &Column{Name: col, Ordinal: i + 1})
	}
	t.SetColumns(columns)
	c.AddTable(t)
	return t
}

func foreignKey(name string, s *Schema, parent, fkCol, pkCol string) *ForeignKey {
	return &ForeignKey{
		Name:       name,
		ParentName: TableName{Schema: s.Name, Name: parent},
		References: []ColumnReference{{ForeignKeyColumn: fkCol, PrimaryKeyColumn: pkCol}},
	}
}

// shop builds Orders referencing Customers and Products.
func shop(t *testing.T) (*Catalog, map[string]*Table) {
	t.Helper()
	c := New(LowerCase)
	s := &Schema{Name: "shop"}
	require.True(t, c.AddSchema(s))

	tables := map[string]*Table{
		"Customers": addTable(c, s, "Customers", "id", "email"),
		"Products":  addTable(c, s, "Products", "id", "name"),
		"Orders":    addTable(c, s, "Orders", "id", "customer_id", "product_id"),
	}
	tables["Orders"].SetForeignKeys([]*ForeignKey{
		foreignKey("fk_orders_customer", s, "customers", "customer_id", "id"),
		foreignKey("fk_orders_product", s, "PRODUCTS", "product_id", "id"),
	})
	c.LinkForeignKeys()
	return c, tables
}

func names(tables []*Table) []string {
	out := make([]string, len(tables))
	for i, t := range tables {
		out[i] = t.Name
	}
	return out
}

func TestFullNames(t *testing.T) {
	s := &Schema{Catalog: "db", Name: "shop"}
	tbl := &Table{Schema: s, Name: "orders"}
	col := &Column{Table: tbl, Name: "id"}

	assert.Equal(t, "db.shop", s.FullName())
	assert.Equal(t, "db.shop.orders", tbl.FullName())
	assert.Equal(t, "db.shop.orders.id", col.FullName())
	assert.Equal(t, "main.t", (&Table{Schema: &Schema{Name: "main"}, Name: "t"}).FullName())
	assert.Equal(t, "int", (&ColumnDataType{Name: "int"}).FullName())

	var nilTable *Table
	assert.Empty(t, nilTable.FullName())
	var nilColumn *Column
	assert.Empty(t, nilColumn.FullName())
}

func TestRoutineFullNameUsesSpecificName(t *testing.T) {
	s := &Schema{Name: "public"}
	assert.Equal(t, "public.area", (&Routine{Schema: s, Name: "area"}).FullName())
	assert.Equal(t, "public.area_1234", (&Routine{Schema: s, Name: "area", SpecificName: "area_1234"}).FullName())
}

func TestObjectList(t *testing.T) {
	l := NewObjectList[*Table](LowerCase)
	s := &Schema{Name: "shop"}
	orders := &Table{Schema: s, Name: "Orders"}

	assert.True(t, l.Add(orders))
	assert.False(t, l.Add(&Table{Schema: s, Name: "ORDERS"}), "case-folded duplicate must be rejected")

	got, ok := l.Lookup("SHOP.orders")
	require.True(t, ok)
	assert.Same(t, orders, got)

	l.Add(&Table{Schema: s, Name: "addresses"})
	assert.Equal(t, []string{"addresses", "Orders"}, names(l.Values()))

	assert.True(t, l.Remove(orders))
	assert.False(t, l.Remove(orders))
	assert.False(t, l.Contains(orders))
	assert.Equal(t, 1, l.Len())
}

func TestObjectList_CaseSensitive(t *testing.T) {
	l := NewObjectList[*Schema](CaseSensitive)
	assert.True(t, l.Add(&Schema{Name: "Sales"}))
	assert.True(t, l.Add(&Schema{Name: "sales"}))
	assert.Equal(t, 2, l.Len())
}

func TestObjectList_ConcurrentAdd(t *testing.T) {
	l := NewObjectList[*Table](CaseSensitive)
	s := &Schema{Name: "s"}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Add(&Table{Schema: s, Name: fmt.Sprintf("t%02d", i%25)})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 25, l.Len())
}

func TestLinkForeignKeys(t *testing.T) {
	c, tables := shop(t)

	for _, fk := range tables["Orders"].ImportedForeignKeys() {
		require.NotNil(t, fk.Parent, "fk %s should resolve", fk.Name)
		assert.Same(t, tables["Orders"], fk.Child)
	}
	assert.Len(t, tables["Customers"].ExportedForeignKeys(), 1)
	assert.Len(t, tables["Products"].ExportedForeignKeys(), 1)

	col, ok := tables["Orders"].Column("CUSTOMER_ID", c.NameCase())
	require.True(t, ok)
	assert.True(t, col.PartOfForeignKey)
	id, _ := tables["Orders"].Column("id", c.NameCase())
	assert.False(t, id.PartOfForeignKey)

	assert.Equal(t, []string{"Orders"}, names(tables["Customers"].RelatedTables(false)))
	assert.Equal(t, []string{"Customers", "Products"}, names(tables["Orders"].RelatedTables(true)))
}

func TestLinkForeignKeys_PartialKey(t *testing.T) {
	c := New(CaseSensitive)
	s := &Schema{Name: "hr"}
	c.AddSchema(s)
	emp := addTable(c, s, "employee", "id", "dept_id")
	emp.SetForeignKeys([]*ForeignKey{foreignKey("fk_dept", s, "department", "dept_id", "id")})
	c.LinkForeignKeys()

	fk := emp.ImportedForeignKeys()[0]
	assert.Nil(t, fk.Parent)
	assert.Equal(t, "hr.department", fk.ParentFullName())

	c.MarkFilteredForeignKeys()
	assert.False(t, fk.Filtered, "partial keys are not filtered")
}

func TestMarkFilteredForeignKeys(t *testing.T) {
	c, tables := shop(t)
	require.True(t, c.TableList().Remove(tables["Products"]))

	c.MarkFilteredForeignKeys()
	for _, fk := range tables["Orders"].ImportedForeignKeys() {
		assert.Equal(t, fk.Name == "fk_orders_product", fk.Filtered, fk.Name)
	}

	c.TableList().Add(tables["Products"])
	c.MarkFilteredForeignKeys()
	for _, fk := range tables["Orders"].ImportedForeignKeys() {
		assert.False(t, fk.Filtered, fk.Name)
	}
}

func TestLookupOrCreateColumnDataType(t *testing.T) {
	c := New(UpperCase)
	s := &Schema{Name: "APP"}

	varchar := c.LookupOrCreateColumnDataType(nil, "varchar")
	assert.Same(t, varchar, c.LookupOrCreateColumnDataType(nil, "VARCHAR"))
	assert.False(t, varchar.UserDefined)

	mood := c.LookupOrCreateColumnDataType(s, "mood")
	assert.True(t, mood.UserDefined)
	assert.Equal(t, "APP.mood", mood.FullName())
	assert.Len(t, c.ColumnDataTypes(), 2)
}

func TestDiagnostics(t *testing.T) {
	c := New(CaseSensitive)
	errA := errors.New("a")
	c.AddDiagnostic(errA)
	c.AddDiagnostic(errors.New("b"))

	diags := c.Diagnostics()
	require.Len(t, diags, 2)
	assert.ErrorIs(t, diags[0], errA)
}

func TestOrderTables_Acyclic(t *testing.T) {
	c, _ := shop(t)

	o := OrderTables(c.Tables())
	assert.False(t, o.Cyclic)
	assert.Equal(t, []string{"Customers", "Products", "Orders"}, names(o.Tables))
	assert.Len(t, o.Components, 3)

	strict, err := StrictOrder(c.Tables())
	require.NoError(t, err)
	assert.Equal(t, names(o.Tables), names(strict))
}

func TestOrderTables_Cyclic(t *testing.T) {
	c := New(CaseSensitive)
	s := &Schema{Name: "hr"}
	c.AddSchema(s)
	emp := addTable(c, s, "Employee", "id", "manager_id", "dept_id")
	mgr := addTable(c, s, "Manager", "id", "employee_id")
	addTable(c, s, "Department", "id")
	emp.SetForeignKeys([]*ForeignKey{
		foreignKey("fk_manager", s, "Manager", "manager_id", "id"),
		foreignKey("fk_dept", s, "Department", "dept_id", "id"),
	})
	mgr.SetForeignKeys([]*ForeignKey{foreignKey("fk_employee", s, "Employee", "employee_id", "id")})
	c.LinkForeignKeys()

	assert.True(t, DependencyGraph(c.Tables()).ContainsCycle())

	_, err := StrictOrder(c.Tables())
	var cycleErr *graph.GraphCycleError
	require.ErrorAs(t, err, &cycleErr)

	o := OrderTables(c.Tables())
	assert.True(t, o.Cyclic)
	assert.Equal(t, []string{"Department", "Employee", "Manager"}, names(o.Tables))
	require.Len(t, o.Components, 2)
	assert.Equal(t, []string{"Employee", "Manager"}, names(o.Components[1]))
}

func TestOrderTables_SelfReference(t *testing.T) {
	c := New(CaseSensitive)
	s := &Schema{Name: "hr"}
	emp := addTable(c, s, "employee", "id", "boss_id")
	emp.SetForeignKeys([]*ForeignKey{foreignKey("fk_boss", s, "employee", "boss_id", "id")})
	c.LinkForeignKeys()

	o := OrderTables(c.Tables())
	assert.False(t, o.Cyclic)
	assert.Equal(t, []string{"employee"}, names(o.Tables))
}

func TestOrderTables_SkipsFilteredKeys(t *testing.T) {
	c, tables := shop(t)
	for _, fk := range tables["Orders"].ImportedForeignKeys() {
		fk.Filtered = true
	}
	o := OrderTables(c.Tables())
	assert.Equal(t, []string{"Customers", "Orders", "Products"}, names(o.Tables))
}

type recorder struct {
	events []string
	failOn string
}

func (r *recorder) Start(kind Kind) error {
	r.events = append(r.events, "start "+kind.String())
	return nil
}

func (r *recorder) Handle(obj Object) error {
	if obj.FullName() == r.failOn {
		return errors.New("boom")
	}
	switch o := obj.(type) {
	case *Table:
		r.events = append(r.events, "table "+o.Name)
	case *ColumnDataType:
		r.events = append(r.events, "type "+o.Name)
	case *Routine:
		r.events = append(r.events, "routine "+o.Name)
	case *Sequence:
		r.events = append(r.events, "sequence "+o.Name)
	case *Synonym:
		r.events = append(r.events, "synonym "+o.Name)
	}
	return nil
}

func (r *recorder) End(kind Kind) error {
	r.events = append(r.events, "end "+kind.String())
	return nil
}

func TestTraverse(t *testing.T) {
	c, tables := shop(t)
	s := tables["Orders"].Schema
	c.LookupOrCreateColumnDataType(nil, "int")
	c.AddRoutine(&Routine{Schema: s, Name: "total", RoutineKind: Function})
	c.AddSequence(&Sequence{Schema: s, Name: "order_seq"})

	r := &recorder{}
	require.NoError(t, Traverse(c, nil, r))
	assert.Equal(t, []string{
		"start column data type", "type int", "end column data type",
		"start table", "table Customers", "table Products", "table Orders", "end table",
		"start routine", "routine total", "end routine",
		"start sequence", "sequence order_seq", "end sequence",
		"start synonym", "end synonym",
	}, r.events)
}

func TestTraverse_SkipsReducedTables(t *testing.T) {
	c, tables := shop(t)
	o := OrderTables(c.Tables())
	c.TableList().Remove(tables["Customers"])

	var visited []string
	h := HandlerFuncs{OnHandle: func(obj Object) error {
		if tbl, ok := obj.(*Table); ok {
			visited = append(visited, tbl.Name)
		}
		return nil
	}}
	require.NoError(t, Traverse(c, &o, h))
	assert.Equal(t, []string{"Products", "Orders"}, visited)
}

func TestTraverse_HandlerError(t *testing.T) {
	c, _ := shop(t)
	r := &recorder{failOn: "shop.Products"}
	err := Traverse(c, nil, r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shop.Products")
	assert.NotContains(t, r.events, "end table")
}

func TestTableIsView(t *testing.T) {
	assert.True(t, (&Table{Type: "VIEW"}).IsView())
	assert.True(t, (&Table{Type: "materialized view"}).IsView())
	assert.False(t, (&Table{Type: "BASE TABLE"}).IsView())
}

func TestSetColumnsOrdersByOrdinal(t *testing.T) {
	tbl := &Table{Name: "t"}
	tbl.SetColumns([]*Column{{Name: "b", Ordinal: 2}, {Name: "a", Ordinal: 1}})
	cols := tbl.Columns()
	require.Len(t, cols, 2)
	assert.Equal(t, "a", cols[0].Name)
	assert.Same(t, tbl, cols[1].Table)
}

func TestSetConstraintsSortsByName(t *testing.T) {
	tbl := &Table{Schema: &Schema{Name: "shop"}, Name: "orders"}
	tbl.SetConstraints([]*TableConstraint{
		{Name: "uq_orders_number", Type: UniqueConstraint, Columns: []string{"number"}},
		{Name: "ck_orders_total", Type: CheckConstraint, Definition: "total >= 0"},
	})
	cs := tbl.Constraints()
	require.Len(t, cs, 2)
	assert.Equal(t, "shop.orders.ck_orders_total", cs[0].FullName())
	assert.Same(t, tbl, cs[1].Table)
}

func TestTablesIn(t *testing.T) {
	c := New(LowerCase)
	shopSchema := &Schema{Name: "shop"}
	audit := &Schema{Name: "audit"}
	c.AddSchema(shopSchema)
	c.AddSchema(audit)
	addTable(c, shopSchema, "orders")
	addTable(c, audit, "log")
	addTable(c, shopSchema, "customers")

	var names []string
	for _, tbl := range c.TablesIn(shopSchema) {
		names = append(names, tbl.Name)
	}
	assert.Equal(t, []string{"customers", "orders"}, names)
	assert.Len(t, c.TablesIn(audit), 1)
	assert.Empty(t, c.TablesIn(&Schema{Name: "shop"}), "schemas are matched by identity")
}
