package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Limetric/schemacrawl/internal/connection"
	"github.com/Limetric/schemacrawl/internal/crawl"
	"github.com/Limetric/schemacrawl/internal/filter"
)

// CrawlConfig holds the full TOML-driven crawl configuration.
type CrawlConfig struct {
	Source      SourceConfig  `toml:"source"`
	InfoLevel   string        `toml:"info_level"` // minimum|standard|detailed|maximum
	Workers     int           `toml:"workers"`
	Timeout     time.Duration `toml:"timeout"`
	LogLevel    string        `toml:"log_level"` // debug|info|warn|error
	TableTypes  []string      `toml:"table_types"`
	ParentDepth int           `toml:"parent_depth"`
	ChildDepth  int           `toml:"child_depth"`

	Schemas   RuleConfig `toml:"schemas"`
	Tables    RuleConfig `toml:"tables"`
	Columns   RuleConfig `toml:"columns"`
	Routines  RuleConfig `toml:"routines"`
	Sequences RuleConfig `toml:"sequences"`
	Synonyms  RuleConfig `toml:"synonyms"`
	Grep      GrepConfig `toml:"grep"`

	// configDir is the directory containing the TOML file, used to resolve relative init_sql paths.
	configDir string
}

// SourceConfig identifies the database engine and how to connect to it.
type SourceConfig struct {
	Type           string   `toml:"type"` // "mysql", "sqlite" or "postgres"
	DSN            string   `toml:"dsn"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	Credentials    string   `toml:"credentials"` // single_use|multi_use
	MaxConnections int      `toml:"max_connections"`
	InitSQL        []string `toml:"init_sql"`
	InitStatements []string `toml:"init_statements"`
}

// RuleConfig is an include/exclude pattern pair matched against full names.
type RuleConfig struct {
	Include string `toml:"include"`
	Exclude string `toml:"exclude"`
}

type GrepConfig struct {
	Tables       string `toml:"tables"`
	Columns      string `toml:"columns"`
	Definitions  string `toml:"definitions"`
	Invert       bool   `toml:"invert"`
	OnlyMatching bool   `toml:"only_matching"`
}

// loadConfig reads a TOML config file and returns a CrawlConfig with defaults applied.
func loadConfig(path string) (*CrawlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := CrawlConfig{
		InfoLevel: "standard",
		LogLevel:  "info",
		Source: SourceConfig{
			Credentials: "multi_use",
		},
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.configDir = filepath.Dir(absPath)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate normalizes enum strings and fills derived defaults. It runs again
// after command line overrides are applied.
func (c *CrawlConfig) validate() error {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers()
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.ParentDepth < 0 || c.ChildDepth < 0 {
		return fmt.Errorf("parent_depth and child_depth must not be negative")
	}

	c.InfoLevel = strings.ToLower(strings.TrimSpace(c.InfoLevel))
	if _, err := crawl.ParseInfoLevel(c.InfoLevel); err != nil {
		return err
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}

	// Source validation
	if c.Source.Type == "" {
		return fmt.Errorf("source.type is required (must be mysql, sqlite or postgres)")
	}
	d, err := crawl.NewDialect(c.Source.Type)
	if err != nil {
		return err
	}
	if c.Source.DSN == "" {
		return fmt.Errorf("source.dsn is required")
	}
	if c.Source.Credentials == "" {
		c.Source.Credentials = "multi_use"
	}
	switch c.Source.Credentials {
	case "single_use", "multi_use":
	default:
		return fmt.Errorf("source.credentials must be one of: single_use, multi_use")
	}

	// Cap workers based on source limits
	if max := d.MaxWorkers(); max > 0 && c.Workers > max {
		c.Workers = max
	}
	if c.Source.MaxConnections <= 0 {
		// One connection drives the crawl, the rest serve per-table workers.
		c.Source.MaxConnections = c.Workers + 1
	}

	for i, t := range c.TableTypes {
		c.TableTypes[i] = strings.ToUpper(strings.TrimSpace(t))
	}
	return nil
}

// resolvePath resolves a path relative to the config file directory.
func (c *CrawlConfig) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.configDir, p)
}

// credentials returns the connection credentials for the source.
func (c *CrawlConfig) credentials() connection.Credentials {
	if c.Source.Credentials == "single_use" {
		return connection.NewSingleUseCredentials(c.Source.User, c.Source.Password)
	}
	return connection.NewMultiUseCredentials(c.Source.User, c.Source.Password)
}

// initScript returns the connection setup SQL with file paths resolved.
func (c *CrawlConfig) initScript() connection.Script {
	script := connection.Script{Statements: c.Source.InitStatements}
	for _, f := range c.Source.InitSQL {
		script.Files = append(script.Files, c.resolvePath(f))
	}
	return script
}

// crawlOptions compiles the configured rules and grep patterns.
func (c *CrawlConfig) crawlOptions() (*crawl.Options, error) {
	level, err := crawl.ParseInfoLevel(c.InfoLevel)
	if err != nil {
		return nil, err
	}
	opts := &crawl.Options{
		InfoLevel:   level,
		TableTypes:  c.TableTypes,
		ParentDepth: c.ParentDepth,
		ChildDepth:  c.ChildDepth,
		Workers:     c.Workers,
		Timeout:     c.Timeout,
	}

	rules := []struct {
		name string
		cfg  RuleConfig
		dst  *filter.InclusionRule
	}{
		{"schemas", c.Schemas, &opts.Schemas},
		{"tables", c.Tables, &opts.Tables},
		{"columns", c.Columns, &opts.Columns},
		{"routines", c.Routines, &opts.Routines},
		{"sequences", c.Sequences, &opts.Sequences},
		{"synonyms", c.Synonyms, &opts.Synonyms},
	}
	for _, r := range rules {
		rule, err := r.cfg.rule(r.name)
		if err != nil {
			return nil, err
		}
		*r.dst = rule
	}

	opts.Grep, err = filter.NewGrepOptions(c.Grep.Tables, c.Grep.Columns, c.Grep.Definitions, c.Grep.Invert, c.Grep.OnlyMatching)
	if err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// rule compiles the pattern pair. An empty pair yields nil, which includes
// everything.
func (r RuleConfig) rule(section string) (filter.InclusionRule, error) {
	if r.Include == "" && r.Exclude == "" {
		return nil, nil
	}
	rule, err := filter.NewRegularExpressionRule(r.Include, r.Exclude)
	if err != nil {
		var cfgErr *filter.ConfigurationError
		if errors.As(err, &cfgErr) {
			cfgErr.Option = section + "." + cfgErr.Option
		}
		return nil, err
	}
	return rule, nil
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	if n > 8 {
		return 8
	}
	return n
}
