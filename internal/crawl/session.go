package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Limetric/schemacrawl/internal/catalog"
	"github.com/Limetric/schemacrawl/internal/connection"
	"github.com/Limetric/schemacrawl/internal/filter"
)

// State is the lifecycle phase of a Session.
type State int

const (
	NotStarted State = iota
	Connected
	Retrieving
	Filtering
	GraphAnalysis
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Connected:
		return "connected"
	case Retrieving:
		return "retrieving"
	case Filtering:
		return "filtering"
	case GraphAnalysis:
		return "graph analysis"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result is the outcome of a crawl.
type Result struct {
	Catalog  *catalog.Catalog
	Ordering catalog.Ordering
	// Reduced counts objects removed by the filter pipeline.
	Reduced int
	// Pipeline is kept so callers can undo the reduction.
	Pipeline *filter.Pipeline
	Elapsed  time.Duration
}

// Session runs one crawl over one connection source. It moves through
// NotStarted, Connected, Retrieving, Filtering, GraphAnalysis and Ready, and
// ends in Closed from any state.
type Session struct {
	dialect Dialect
	source  connection.Source
	opts    *Options
	logger  *zap.Logger

	mu    sync.Mutex
	state State
	level InfoLevel
	err   error
}

func NewSession(d Dialect, source connection.Source, opts *Options, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Session{dialect: d, source: source, opts: opts, logger: logger}
}

// State returns the current state and, while Retrieving, the info level
// being retrieved.
func (s *Session) State() (State, InfoLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.level
}

// Err returns the error the session closed with, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	s.logger.Debug("session state", zap.Stringer("from", from), zap.Stringer("to", to))
}

// Run crawls, reduces and orders the catalog. It may be called once. The
// connection is released before Run returns; on failure the session is
// closed.
func (s *Session) Run(ctx context.Context) (result *Result, err error) {
	s.mu.Lock()
	if s.state != NotStarted {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("session already %s", state)
	}
	s.mu.Unlock()

	defer func() {
		if err != nil {
			s.closeWith(err)
		}
	}()

	if err := s.opts.Validate(); err != nil {
		return nil, err
	}
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	start := time.Now()

	conn, err := s.source.Get(ctx)
	if err != nil {
		var connErr *connection.ConnectionError
		if !errors.As(err, &connErr) {
			err = &connection.ConnectionError{Op: "acquire", Err: err}
		}
		return nil, err
	}
	defer conn.Close()
	s.transition(Connected)
	s.logger.Info("connected", zap.String("dialect", s.dialect.Name()))

	retriever := NewRetriever(s.dialect, s.source, conn, s.opts, s.logger)
	retriever.OnLevel = func(level InfoLevel) {
		s.mu.Lock()
		s.state, s.level = Retrieving, level
		s.mu.Unlock()
		s.logger.Info("retrieving", zap.Stringer("level", level))
	}
	cat, err := retriever.Retrieve(ctx)
	if err != nil {
		return nil, err
	}
	conn.Close()

	s.transition(Filtering)
	pipeline := s.pipeline()
	reduced := pipeline.Reduce(cat)
	s.logger.Info("filtered", zap.Int("removed", reduced), zap.Int("tables", len(cat.Tables())))

	s.transition(GraphAnalysis)
	ordering := catalog.OrderTables(cat.Tables())
	if ordering.Cyclic {
		s.logger.Warn("foreign keys form cycles; cyclic tables are grouped",
			zap.Int("groups", len(ordering.Components)))
	}

	s.transition(Ready)
	return &Result{
		Catalog:  cat,
		Ordering: ordering,
		Reduced:  reduced,
		Pipeline: pipeline,
		Elapsed:  time.Since(start),
	}, nil
}

// pipeline builds the post-retrieval reducers: schemas, tables (rule, type,
// grep and related-table expansion), routines, sequences and synonyms.
func (s *Session) pipeline() *filter.Pipeline {
	o := s.opts
	parentDepth, childDepth := o.ParentDepth, o.ChildDepth
	if o.Grep.OnlyMatching {
		parentDepth, childDepth = 0, 0
	}
	tables := filter.AllOf[*catalog.Table]{
		filter.NewRuleFilter[*catalog.Table](rule(o.Tables), s.logger),
		filter.NewTableTypeFilter(o.TableTypes...),
		filter.NewGrepFilter(o.Grep, s.logger),
	}
	return filter.NewPipeline(
		filter.Bind(filter.NewReducer[*catalog.Schema](filter.NewRuleFilter[*catalog.Schema](rule(o.Schemas), s.logger)),
			(*catalog.Catalog).SchemaList),
		filter.NewTableReducer(tables, parentDepth, childDepth, s.logger),
		filter.Bind(filter.NewReducer[*catalog.Routine](filter.NewRuleFilter[*catalog.Routine](rule(o.Routines), s.logger)),
			(*catalog.Catalog).RoutineList),
		filter.Bind(filter.NewReducer[*catalog.Sequence](filter.NewRuleFilter[*catalog.Sequence](rule(o.Sequences), s.logger)),
			(*catalog.Catalog).SequenceList),
		filter.Bind(filter.NewReducer[*catalog.Synonym](filter.NewRuleFilter[*catalog.Synonym](rule(o.Synonyms), s.logger)),
			(*catalog.Catalog).SynonymList),
	)
}

func (s *Session) closeWith(err error) {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return
	}
	s.state = Closed
	s.err = err
	s.mu.Unlock()
	if cerr := s.source.Close(); cerr != nil {
		s.logger.Warn("close connection source", zap.Error(cerr))
	}
	if err != nil {
		s.logger.Debug("session closed", zap.Error(err))
	}
}

// Close ends the session and closes its connection source. It is safe to
// call more than once.
func (s *Session) Close() error {
	s.closeWith(nil)
	return nil
}

// Crawl runs a complete session and closes it.
func Crawl(ctx context.Context, d Dialect, source connection.Source, opts *Options, logger *zap.Logger) (*Result, error) {
	s := NewSession(d, source, opts, logger)
	defer s.Close()
	return s.Run(ctx)
}
