package crawl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Limetric/schemacrawl/internal/filter"
)

func TestParseInfoLevel(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want InfoLevel
	}{
		{"minimum", Minimum},
		{"Standard", Standard},
		{" DETAILED ", Detailed},
		{"maximum", Maximum},
	} {
		got, err := ParseInfoLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, must(ParseInfoLevel(got.String())))
	}

	_, err := ParseInfoLevel("verbose")
	var cfgErr *filter.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "info_level", cfgErr.Option)
}

func must(level InfoLevel, err error) InfoLevel {
	if err != nil {
		panic(err)
	}
	return level
}

func TestOptionsValidate(t *testing.T) {
	grep, err := filter.NewGrepOptions(".*", "", "", false, true)
	require.NoError(t, err)

	tests := []struct {
		name   string
		modify func(o *Options)
		option string
	}{
		{"defaults", func(*Options) {}, ""},
		{"only matching with pattern", func(o *Options) { o.Grep = grep }, ""},
		{"unknown level", func(o *Options) { o.InfoLevel = Maximum + 1 }, "info_level"},
		{"only matching without pattern", func(o *Options) { o.Grep.OnlyMatching = true }, "grep.only_matching"},
		{"negative depth", func(o *Options) { o.ChildDepth = -1 }, "parent_depth/child_depth"},
		{"no workers", func(o *Options) { o.Workers = 0 }, "workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(opts)
			err := opts.Validate()
			if tt.option == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *filter.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.option, cfgErr.Option)
		})
	}
}

func TestNewDialect(t *testing.T) {
	for typ, name := range map[string]string{"mysql": "MySQL", "sqlite": "SQLite", "postgres": "PostgreSQL"} {
		d, err := NewDialect(typ)
		require.NoError(t, err)
		assert.Equal(t, name, d.Name())
	}
	_, err := NewDialect("oracle")
	assert.Error(t, err)
}
