package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Limetric/schemacrawl/internal/catalog"
)

func mustRule(t *testing.T, include, exclude string) *RegularExpressionRule {
	t.Helper()
	r, err := NewRegularExpressionRule(include, exclude)
	require.NoError(t, err)
	return r
}

func TestRegularExpressionRule(t *testing.T) {
	tests := []struct {
		name     string
		include  string
		exclude  string
		input    string
		expected bool
	}{
		{"unset include matches all", "", "", "shop.orders", true},
		{"blank name excluded", "", "", "", false},
		{"whitespace name excluded", "", "", "  ", false},
		{"include full match", `shop\..*`, "", "shop.orders", true},
		{"include partial is not a match", `orders`, "", "shop.orders", false},
		{"exclude wins over include", `shop\..*`, `.*\.orders`, "shop.orders", false},
		{"exclude without include", "", `.*_audit`, "shop.orders_audit", false},
		{"exclude does not match", "", `.*_audit`, "shop.orders", true},
		{"alternation is anchored", `a|b`, "", "ab", false},
		{"alternation matches member", `a|b`, "", "b", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mustRule(t, tt.include, tt.exclude)
			assert.Equal(t, tt.expected, r.Include(tt.input))
		})
	}
}

func TestRegularExpressionRule_InvalidPattern(t *testing.T) {
	_, err := NewRegularExpressionRule("(", "")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "include", cfgErr.Option)

	_, err = NewRegularExpressionRule("", "[a-")
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "exclude", cfgErr.Option)
}

func TestPredefinedRules(t *testing.T) {
	assert.True(t, IncludeAll.Include("anything"))
	assert.False(t, IncludeAll.Include(""))
	assert.False(t, ExcludeAll.Include("anything"))
}

func TestRuleFilter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	f := NewRuleFilter[*catalog.Table](mustRule(t, "", `.*\.tmp_.*`), zap.New(core))
	s := &catalog.Schema{Name: "shop"}

	assert.True(t, f.Include(&catalog.Table{Schema: s, Name: "orders"}))
	assert.False(t, f.Include(&catalog.Table{Schema: s, Name: "tmp_orders"}))
	assert.False(t, f.Include(nil))

	entries := logs.FilterMessage("excluded by rule").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "shop.tmp_orders", entries[0].ContextMap()["object"])
}

func TestRuleFilter_NilRuleIncludesAll(t *testing.T) {
	f := NewRuleFilter[*catalog.Schema](nil, nil)
	assert.True(t, f.Include(&catalog.Schema{Name: "public"}))
}

func TestChainedFilter(t *testing.T) {
	s := &catalog.Schema{Name: "shop"}
	orders := &catalog.Table{Schema: s, Name: "orders"}
	items := &catalog.Table{Schema: s, Name: "items"}

	ordersOnly := NewRuleFilter[*catalog.Table](mustRule(t, `.*orders`, ""), nil)
	itemsOnly := NewRuleFilter[*catalog.Table](mustRule(t, `.*items`, ""), nil)

	chain := Chain[*catalog.Table](ordersOnly, itemsOnly)
	assert.True(t, chain.Include(orders), "OR across components")
	assert.True(t, chain.Include(items))
	assert.False(t, chain.Include(&catalog.Table{Schema: s, Name: "users"}))
	assert.False(t, chain.Include(nil))

	assert.False(t, Chain[*catalog.Table]().Include(orders), "empty chain excludes")
}

func TestAllOf(t *testing.T) {
	s := &catalog.Schema{Name: "shop"}
	f := AllOf[*catalog.Table]{
		NewRuleFilter[*catalog.Table](mustRule(t, `shop\..*`, ""), nil),
		NewTableTypeFilter("TABLE"),
	}
	assert.True(t, f.Include(&catalog.Table{Schema: s, Name: "orders", Type: "TABLE"}))
	assert.False(t, f.Include(&catalog.Table{Schema: s, Name: "v_orders", Type: "VIEW"}))
	assert.True(t, AllOf[*catalog.Table]{}.Include(&catalog.Table{Name: "x"}))
}

func TestPass(t *testing.T) {
	assert.True(t, Pass[*catalog.Routine]{}.Include(&catalog.Routine{Name: "f"}))
}

func TestTableTypeFilter(t *testing.T) {
	f := NewTableTypeFilter("table", " View ")
	assert.True(t, f.Include(&catalog.Table{Name: "a", Type: "TABLE"}))
	assert.True(t, f.Include(&catalog.Table{Name: "b", Type: "view"}))
	assert.False(t, f.Include(&catalog.Table{Name: "c", Type: "SYSTEM TABLE"}))
	assert.False(t, f.Include(nil))

	empty := NewTableTypeFilter()
	assert.True(t, empty.Include(&catalog.Table{Name: "c", Type: "SYSTEM TABLE"}))
}

func customerTable() *catalog.Table {
	tbl := &catalog.Table{Name: "CUSTOMER", Type: catalog.TableTypeTable}
	tbl.SetColumns([]*catalog.Column{
		{Name: "ID", Ordinal: 1},
		{Name: "EMAIL", Ordinal: 2},
	})
	return tbl
}

func mustGrep(t *testing.T, tables, columns, definitions string, invert bool) GrepOptions {
	t.Helper()
	o, err := NewGrepOptions(tables, columns, definitions, invert, false)
	require.NoError(t, err)
	return o
}

func TestGrepFilter_ColumnPattern(t *testing.T) {
	tbl := customerTable()
	require.Equal(t, "CUSTOMER.EMAIL", tbl.Columns()[1].FullName())

	f := NewGrepFilter(mustGrep(t, "", `.*\.EMAIL`, "", false), nil)
	assert.True(t, f.Include(tbl))

	core, logs := observer.New(zapcore.DebugLevel)
	inverted := NewGrepFilter(mustGrep(t, "", `.*\.EMAIL`, "", true), zap.New(core))
	assert.False(t, inverted.Include(tbl))
	assert.Zero(t, logs.FilterMessage("no grep match").Len(), "a match is not logged even when inverted away")
}

func TestGrepFilter_LogsPatternsWithoutMatch(t *testing.T) {
	other := &catalog.Table{Name: "ORDERS", Type: catalog.TableTypeTable}
	other.SetColumns([]*catalog.Column{{Name: "ID", Ordinal: 1}})

	for _, invert := range []bool{false, true} {
		core, logs := observer.New(zapcore.DebugLevel)
		f := NewGrepFilter(mustGrep(t, "", `.*\.EMAIL`, "", invert), zap.New(core))

		assert.Equal(t, invert, f.Include(other))
		entries := logs.FilterMessage("no grep match").All()
		require.Len(t, entries, 1, "invert=%t", invert)
		assert.Equal(t, "ORDERS", entries[0].ContextMap()["table"])
		assert.Equal(t, invert, entries[0].ContextMap()["invert"])
	}
}

func TestGrepFilter(t *testing.T) {
	tbl := &catalog.Table{
		Schema:     &catalog.Schema{Name: "s"},
		Name:       "test_table",
		Remarks:    "test_remarks",
		Definition: "select *\nfrom base",
	}
	tbl.SetColumns([]*catalog.Column{{Name: "test_column", Ordinal: 1}})
	tbl.SetTriggers([]*catalog.Trigger{{Name: "trg", ActionStatement: "test_action_statement"}})

	tests := []struct {
		name        string
		tables      string
		columns     string
		definitions string
		invert      bool
		expected    bool
	}{
		{"no patterns", "", "", "", false, true},
		{"no patterns inverted", "", "", "", true, true},
		{"column match", "", `s\.test_table\.test_column`, "", false, true},
		{"column mismatch", "", `.*\.other`, "", false, false},
		{"table match", `s\.test_table`, "", "", false, true},
		{"table match inverted", `s\.test_table`, "", "", true, false},
		{"table mismatch inverted", `s\.test_table_1`, "", "", true, true},
		{"remarks match", "", "", "test_remarks", false, true},
		{"multi-line definition match", "", "", `select.*base`, false, true},
		{"trigger match", "", "", `.*action.*`, false, true},
		{"definition mismatch", "", "", "nothing", false, false},
		{"any signal suffices", `nope`, `.*test_column`, "nope", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewGrepFilter(mustGrep(t, tt.tables, tt.columns, tt.definitions, tt.invert), nil)
			assert.Equal(t, tt.expected, f.Include(tbl))
		})
	}
}

func TestNewGrepOptions_Errors(t *testing.T) {
	_, err := NewGrepOptions("", "", "", false, true)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "grep.only_matching", cfgErr.Option)

	_, err = NewGrepOptions("", "(", "", false, false)
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "grep.columns", cfgErr.Option)
	assert.True(t, errors.Unwrap(err) != nil)
}
