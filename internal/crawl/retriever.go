package crawl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Limetric/schemacrawl/internal/catalog"
	"github.com/Limetric/schemacrawl/internal/connection"
	"github.com/Limetric/schemacrawl/internal/filter"
)

// Stage names, as reported in errors, diagnostics and logs.
const (
	StageDatabaseInfo      = "database info"
	StageSchemas           = "schemas"
	StageTables            = "tables"
	StageColumns           = "columns"
	StageRoutines          = "routines"
	StageColumnDataTypes   = "column data types"
	StagePrimaryKeys       = "primary keys"
	StageIndexes           = "indexes"
	StageForeignKeys       = "foreign keys"
	StageTableRemarks      = "table remarks"
	StageColumnRemarks     = "column remarks"
	StageViewDefinitions   = "view definitions"
	StageTriggers          = "triggers"
	StageTableConstraints  = "table constraints"
	StageRoutineParameters = "routine parameters"
	StageSequences         = "sequences"
	StageSynonyms          = "synonyms"
	StageTablePrivileges   = "table privileges"
	StageTableAttributes   = "table attributes"
)

type stage struct {
	name      string
	level     InfoLevel
	mandatory bool
	run       func(ctx context.Context) error
}

// Retriever populates a catalog in stages ordered by cost. Inclusion rules
// are applied while listing, so excluded objects never get child queries.
type Retriever struct {
	dialect Dialect
	source  connection.Source
	conn    Querier
	opts    *Options
	logger  *zap.Logger

	// OnLevel, when set, is called before the first stage of each level.
	OnLevel func(level InfoLevel)

	cat            *catalog.Catalog
	schemaFilter   filter.Filter[*catalog.Schema]
	tableFilter    filter.Filter[*catalog.Table]
	columnFilter   filter.Filter[*catalog.Column]
	routineFilter  filter.Filter[*catalog.Routine]
	sequenceFilter filter.Filter[*catalog.Sequence]
	synonymFilter  filter.Filter[*catalog.Synonym]
}

// NewRetriever creates a retriever querying through conn. Per-table stages
// take extra connections from source when it can supply more than one.
func NewRetriever(d Dialect, source connection.Source, conn Querier, opts *Options, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Retriever{
		dialect:      d,
		source:       source,
		conn:         conn,
		opts:         opts,
		logger:       logger,
		schemaFilter: filter.NewRuleFilter[*catalog.Schema](rule(opts.Schemas), logger),
		tableFilter: filter.AllOf[*catalog.Table]{
			filter.NewRuleFilter[*catalog.Table](rule(opts.Tables), logger),
			filter.NewTableTypeFilter(opts.TableTypes...),
		},
		columnFilter:   filter.NewRuleFilter[*catalog.Column](rule(opts.Columns), logger),
		routineFilter:  filter.NewRuleFilter[*catalog.Routine](rule(opts.Routines), logger),
		sequenceFilter: filter.NewRuleFilter[*catalog.Sequence](rule(opts.Sequences), logger),
		synonymFilter:  filter.NewRuleFilter[*catalog.Synonym](rule(opts.Synonyms), logger),
	}
}

func (r *Retriever) stages() []stage {
	return []stage{
		{StageDatabaseInfo, Minimum, false, r.retrieveDatabaseInfo},
		{StageSchemas, Minimum, true, r.retrieveSchemas},
		{StageTables, Minimum, true, r.retrieveTables},
		{StageColumns, Minimum, true, r.retrieveColumns},
		{StageRoutines, Minimum, false, r.retrieveRoutines},

		{StageColumnDataTypes, Standard, false, r.retrieveColumnDataTypes},
		{StagePrimaryKeys, Standard, false, r.retrievePrimaryKeys},
		{StageIndexes, Standard, false, r.retrieveIndexes},
		{StageForeignKeys, Standard, false, r.retrieveForeignKeys},

		{StageTableRemarks, Detailed, false, r.retrieveTableRemarks},
		{StageColumnRemarks, Detailed, false, r.retrieveColumnRemarks},
		{StageViewDefinitions, Detailed, false, r.retrieveViewDefinitions},
		{StageTriggers, Detailed, false, r.retrieveTriggers},
		{StageTableConstraints, Detailed, false, r.retrieveTableConstraints},
		{StageRoutineParameters, Detailed, false, r.retrieveRoutineParameters},
		{StageSequences, Detailed, false, r.retrieveSequences},
		{StageSynonyms, Detailed, false, r.retrieveSynonyms},

		{StageTablePrivileges, Maximum, false, r.retrieveTablePrivileges},
		{StageTableAttributes, Maximum, false, r.retrieveTableAttributes},
	}
}

// Stages lists the stage names run at level, in order.
func Stages(level InfoLevel) []string {
	var names []string
	for _, s := range (&Retriever{}).stages() {
		if s.level <= level {
			names = append(names, s.name)
		}
	}
	return names
}

// Retrieve runs every stage up to the configured info level. A failed
// mandatory stage returns a *StageError along with the partial catalog;
// failed optional stages are recorded as catalog diagnostics.
func (r *Retriever) Retrieve(ctx context.Context) (*catalog.Catalog, error) {
	r.cat = catalog.New(r.dialect.NameCase())
	current := InfoLevel(-1)
	for _, s := range r.stages() {
		if s.level > r.opts.InfoLevel {
			break
		}
		if s.level != current {
			current = s.level
			if r.OnLevel != nil {
				r.OnLevel(current)
			}
		}
		if err := ctx.Err(); err != nil {
			return r.cat, &StageError{Stage: s.name, Err: err}
		}

		start := time.Now()
		err := s.run(ctx)
		switch {
		case err == nil:
			r.logger.Info("retrieved",
				zap.String("stage", s.name),
				zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
		case s.mandatory || ctx.Err() != nil:
			return r.cat, &StageError{Stage: s.name, Err: err}
		default:
			diag := &UnsupportedMetadataOperationError{Stage: s.name, Dialect: r.dialect.Name(), Err: err}
			r.logger.Warn("metadata not retrieved", zap.String("stage", s.name), zap.Error(err))
			r.cat.AddDiagnostic(diag)
		}
	}
	return r.cat, nil
}

// workers returns how many per-table workers may run. The session already
// holds one of the source's connections.
func (r *Retriever) workers() int {
	n := r.opts.Workers
	if m := r.dialect.MaxWorkers(); m > 0 {
		n = min(n, m)
	}
	if r.source == nil {
		return 1
	}
	return max(min(n, r.source.MaxConnections()-1), 1)
}

// forEachTable calls fn for every crawled table. With more than one worker
// the calls run in parallel, each on its own connection; fn must only
// touch its own table.
func (r *Retriever) forEachTable(ctx context.Context, fn func(ctx context.Context, q Querier, t *catalog.Table) error) error {
	tables := r.cat.Tables()
	workers := r.workers()
	if workers <= 1 {
		for _, t := range tables {
			if err := fn(ctx, r.conn, t); err != nil {
				return fmt.Errorf("%s: %w", t.FullName(), err)
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, t := range tables {
		g.Go(func() error {
			conn, err := r.source.Get(gctx)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := fn(gctx, conn, t); err != nil {
				return fmt.Errorf("%s: %w", t.FullName(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Retriever) retrieveDatabaseInfo(ctx context.Context) error {
	info, err := r.dialect.DatabaseInfo(ctx, r.conn)
	if err != nil {
		return err
	}
	r.cat.Info = info
	return nil
}

func (r *Retriever) retrieveSchemas(ctx context.Context) error {
	schemas, err := r.dialect.Schemas(ctx, r.conn)
	if err != nil {
		return err
	}
	for _, s := range schemas {
		if r.schemaFilter.Include(s) {
			r.cat.AddSchema(s)
		}
	}
	r.logger.Info("schemas", zap.Int("count", len(r.cat.Schemas())))
	return nil
}

func (r *Retriever) retrieveTables(ctx context.Context) error {
	for _, s := range r.cat.Schemas() {
		tables, err := r.dialect.Tables(ctx, r.conn, s)
		if err != nil {
			return fmt.Errorf("%s: %w", s.FullName(), err)
		}
		for _, t := range tables {
			t.Schema = s
			if r.tableFilter.Include(t) {
				r.cat.AddTable(t)
			}
		}
	}
	r.logger.Info("tables", zap.Int("count", len(r.cat.Tables())))
	return nil
}

func (r *Retriever) retrieveColumns(ctx context.Context) error {
	return r.forEachTable(ctx, func(ctx context.Context, q Querier, t *catalog.Table) error {
		cols, err := r.dialect.Columns(ctx, q, t)
		if err != nil {
			return err
		}
		kept := cols[:0]
		for _, c := range cols {
			c.Table = t
			if !r.columnFilter.Include(c) {
				continue
			}
			if r.opts.InfoLevel >= Standard {
				c.DataType = r.resolveDataType(c.DataType)
			} else {
				c.DataType = nil
			}
			kept = append(kept, c)
		}
		t.SetColumns(kept)
		return nil
	})
}

func (r *Retriever) resolveDataType(dt *catalog.ColumnDataType) *catalog.ColumnDataType {
	if dt == nil || dt.Name == "" {
		return nil
	}
	if dt.Schema != nil {
		if s, ok := r.cat.LookupSchema(dt.Schema.Catalog, dt.Schema.Name); ok {
			dt.Schema = s
		}
		dt.UserDefined = true
	}
	return r.cat.RegisterColumnDataType(dt)
}

func (r *Retriever) retrieveRoutines(ctx context.Context) error {
	for _, s := range r.cat.Schemas() {
		routines, err := r.dialect.Routines(ctx, r.conn, s)
		if err != nil {
			return err
		}
		for _, rt := range routines {
			rt.Schema = s
			if r.routineFilter.Include(rt) {
				r.cat.AddRoutine(rt)
			}
		}
	}
	return nil
}

func (r *Retriever) retrieveColumnDataTypes(ctx context.Context) error {
	for _, s := range r.cat.Schemas() {
		types, err := r.dialect.ColumnDataTypes(ctx, r.conn, s)
		if err != nil {
			return err
		}
		for _, dt := range types {
			dt.Schema = s
			dt.UserDefined = true
			r.cat.RegisterColumnDataType(dt)
		}
	}
	return nil
}

func (r *Retriever) retrievePrimaryKeys(ctx context.Context) error {
	nc := r.cat.NameCase()
	return r.forEachTable(ctx, func(ctx context.Context, q Querier, t *catalog.Table) error {
		pk, err := r.dialect.PrimaryKey(ctx, q, t)
		if err != nil || pk == nil {
			return err
		}
		t.PrimaryKey = pk
		for _, name := range pk.Columns {
			if c, ok := t.Column(name, nc); ok {
				c.PartOfPrimaryKey = true
			}
		}
		return nil
	})
}

func (r *Retriever) retrieveIndexes(ctx context.Context) error {
	return r.forEachTable(ctx, func(ctx context.Context, q Querier, t *catalog.Table) error {
		idxs, err := r.dialect.Indexes(ctx, q, t)
		if err != nil {
			return err
		}
		t.SetIndexes(idxs)
		return nil
	})
}

func (r *Retriever) retrieveForeignKeys(ctx context.Context) error {
	defer r.cat.LinkForeignKeys()
	return r.forEachTable(ctx, func(ctx context.Context, q Querier, t *catalog.Table) error {
		fks, err := r.dialect.ForeignKeys(ctx, q, t)
		if err != nil {
			return err
		}
		t.SetForeignKeys(fks)
		return nil
	})
}

// perSchemaText applies a name -> text map from the dialect to the tables
// of every schema.
func (r *Retriever) perSchemaText(
	ctx context.Context,
	query func(context.Context, Querier, *catalog.Schema) (map[string]string, error),
	apply func(t *catalog.Table, text string),
) error {
	for _, s := range r.cat.Schemas() {
		texts, err := query(ctx, r.conn, s)
		if err != nil {
			return err
		}
		for name, text := range texts {
			t, ok := r.cat.LookupTable(catalog.TableName{Catalog: s.Catalog, Schema: s.Name, Name: name})
			if ok {
				apply(t, text)
			}
		}
	}
	return nil
}

func (r *Retriever) retrieveTableRemarks(ctx context.Context) error {
	return r.perSchemaText(ctx, r.dialect.TableRemarks, func(t *catalog.Table, text string) {
		t.Remarks = text
	})
}

func (r *Retriever) retrieveViewDefinitions(ctx context.Context) error {
	return r.perSchemaText(ctx, r.dialect.ViewDefinitions, func(t *catalog.Table, text string) {
		t.Definition = text
	})
}

func (r *Retriever) retrieveColumnRemarks(ctx context.Context) error {
	nc := r.cat.NameCase()
	return r.forEachTable(ctx, func(ctx context.Context, q Querier, t *catalog.Table) error {
		remarks, err := r.dialect.ColumnRemarks(ctx, q, t)
		if err != nil {
			return err
		}
		for name, text := range remarks {
			if c, ok := t.Column(name, nc); ok {
				c.Remarks = text
			}
		}
		return nil
	})
}

func (r *Retriever) retrieveTriggers(ctx context.Context) error {
	return r.forEachTable(ctx, func(ctx context.Context, q Querier, t *catalog.Table) error {
		triggers, err := r.dialect.Triggers(ctx, q, t)
		if err != nil {
			return err
		}
		t.SetTriggers(triggers)
		return nil
	})
}

func (r *Retriever) retrieveTableConstraints(ctx context.Context) error {
	return r.forEachTable(ctx, func(ctx context.Context, q Querier, t *catalog.Table) error {
		if t.IsView() {
			return nil
		}
		cs, err := r.dialect.TableConstraints(ctx, q, t)
		if err != nil {
			return err
		}
		t.SetConstraints(cs)
		return nil
	})
}

func (r *Retriever) retrieveRoutineParameters(ctx context.Context) error {
	for _, rt := range r.cat.Routines() {
		params, err := r.dialect.RoutineParameters(ctx, r.conn, rt)
		if err != nil {
			return fmt.Errorf("%s: %w", rt.FullName(), err)
		}
		rt.Parameters = params
	}
	return nil
}

func (r *Retriever) retrieveSequences(ctx context.Context) error {
	for _, s := range r.cat.Schemas() {
		seqs, err := r.dialect.Sequences(ctx, r.conn, s)
		if err != nil {
			return err
		}
		for _, seq := range seqs {
			seq.Schema = s
			if r.sequenceFilter.Include(seq) {
				r.cat.AddSequence(seq)
			}
		}
	}
	return nil
}

func (r *Retriever) retrieveSynonyms(ctx context.Context) error {
	for _, s := range r.cat.Schemas() {
		syns, err := r.dialect.Synonyms(ctx, r.conn, s)
		if err != nil {
			return err
		}
		for _, syn := range syns {
			syn.Schema = s
			if r.synonymFilter.Include(syn) {
				r.cat.AddSynonym(syn)
			}
		}
	}
	return nil
}

func (r *Retriever) retrieveTablePrivileges(ctx context.Context) error {
	return r.forEachTable(ctx, func(ctx context.Context, q Querier, t *catalog.Table) error {
		privs, err := r.dialect.TablePrivileges(ctx, q, t)
		if err != nil {
			return err
		}
		t.SetPrivileges(privs)
		return nil
	})
}

func (r *Retriever) retrieveTableAttributes(ctx context.Context) error {
	return r.forEachTable(ctx, func(ctx context.Context, q Querier, t *catalog.Table) error {
		attrs, err := r.dialect.TableAttributes(ctx, q, t)
		if err != nil {
			return err
		}
		if t.Attributes == nil {
			t.Attributes = make(map[string]any, len(attrs))
		}
		for k, v := range attrs {
			t.Attributes[k] = v
		}
		return nil
	})
}
