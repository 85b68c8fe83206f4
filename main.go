package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Limetric/schemacrawl/internal/connection"
	"github.com/Limetric/schemacrawl/internal/crawl"
)

var (
	configPath string
	verbose    bool
	infoLevel  string
)

var rootCmd = &cobra.Command{
	Use:          "schemacrawl [config.toml]",
	Short:        "Database schema crawler for MySQL, PostgreSQL and SQLite",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runCrawl,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the schemacrawl version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "schemacrawl", versionString())
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to crawl TOML config file")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().StringVar(&infoLevel, "info-level", "", "override info_level: minimum, standard, detailed or maximum")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCrawl(cmd *cobra.Command, args []string) error {
	// Resolve config path: positional arg takes precedence over --config flag
	cfgPath := configPath
	if len(args) > 0 {
		cfgPath = args[0]
	}
	if cfgPath == "" {
		return fmt.Errorf("config file required: schemacrawl <config.toml> or schemacrawl --config <config.toml>")
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if infoLevel != "" {
		cfg.InfoLevel = infoLevel
		if err := cfg.validate(); err != nil {
			return err
		}
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	return crawlAndReport(ctx, cfg, logger, cmd.OutOrStdout())
}

// newLogger builds a production logger, or a development logger at debug level.
func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		config := zap.NewDevelopmentConfig()
		config.OutputPaths = []string{"stderr"}
		return config.Build()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	return config.Build()
}

// crawlAndReport runs one crawl for cfg and writes the catalog to out.
func crawlAndReport(ctx context.Context, cfg *CrawlConfig, logger *zap.Logger, out io.Writer) error {
	opts, err := cfg.crawlOptions()
	if err != nil {
		return err
	}
	d, err := crawl.NewDialect(cfg.Source.Type)
	if err != nil {
		return err
	}

	logger.Info("schemacrawl starting",
		zap.String("version", versionString()),
		zap.String("source", d.Name()),
		zap.Stringer("info_level", opts.InfoLevel),
		zap.Int("workers", opts.Workers),
		zap.Duration("timeout", opts.Timeout),
	)

	open := func(user, password string) (*sql.DB, error) {
		return d.OpenDB(cfg.Source.DSN, user, password)
	}
	srcOpts := connection.Options{MaxConnections: cfg.Source.MaxConnections, Logger: logger}
	if script := cfg.initScript(); !script.Empty() {
		srcOpts.Initializer = connection.ScriptInitializer(script, logger)
	}
	source := connection.New(open, cfg.credentials(), srcOpts)

	start := time.Now()
	res, err := crawl.Crawl(ctx, d, source, opts, logger)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}

	if res.Catalog.Info != nil {
		logger.Info("database",
			zap.String("product", res.Catalog.Info.ProductName),
			zap.String("version", res.Catalog.Info.ProductVersion),
			zap.String("user", res.Catalog.Info.UserName),
		)
	}
	sum, err := writeCatalog(out, res)
	if err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	if warnings := collectCrawlWarnings(res); len(warnings) > 0 {
		logger.Warn("crawl report", zap.Int("warnings", len(warnings)))
		for _, w := range warnings {
			logger.Warn(w)
		}
	}

	logger.Info("crawl completed",
		zap.Int("schemas", sum.Schemas),
		zap.Int("tables", sum.Tables),
		zap.Int("views", sum.Views),
		zap.Int("columns", sum.Columns),
		zap.Int("generated_columns", sum.GeneratedColumns),
		zap.Int("indexes", sum.Indexes),
		zap.Int("foreign_keys", sum.ForeignKeys),
		zap.Int("constraints", sum.Constraints),
		zap.Int("triggers", sum.Triggers),
		zap.Int("routines", sum.Routines),
		zap.Int("sequences", sum.Sequences),
		zap.Int("synonyms", sum.Synonyms),
		zap.Int("reduced", res.Reduced),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
	)
	return nil
}
