// Package connection acquires and releases database connections for a
// crawl, enforcing the credential policy and running connection
// initialization once per physical connection.
package connection

import (
	"context"
	"database/sql"
	"sync"

	"go.uber.org/zap"
)

// Source hands out connections. Every connection obtained from Get must be
// released exactly once, either through ReleaseConnection or Conn.Close.
type Source interface {
	Get(ctx context.Context) (*Conn, error)
	// ReleaseConnection releases conn and reports whether it was still open.
	ReleaseConnection(conn *Conn) bool
	// MaxConnections is the number of connections that may be held at once.
	MaxConnections() int
	Close() error
}

// Opener opens a database handle for the given user and password.
type Opener func(user, password string) (*sql.DB, error)

// Initializer prepares a physical connection, for example with session
// settings. It runs once per connection, before the connection is first
// handed out.
type Initializer func(ctx context.Context, conn *Conn) error

// Options configure a source.
type Options struct {
	// MaxConnections caps a pooled source. Values below 1 mean 1.
	MaxConnections int
	Initializer    Initializer
	Logger         *zap.Logger
}

// New returns a SingleSource for single-use credentials and a PooledSource
// otherwise.
func New(open Opener, creds Credentials, opts Options) Source {
	if creds.SingleUse() {
		return NewSingleSource(open, creds, opts)
	}
	return NewPooledSource(open, creds, opts)
}

// base holds what both sources share: opening the database and running
// the initializer.
type base struct {
	open   Opener
	creds  Credentials
	init   Initializer
	logger *zap.Logger

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

func newBase(open Opener, creds Credentials, opts Options) base {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{open: open, creds: creds, init: opts.Initializer, logger: logger}
}

// openDB opens the database on first use. Callers hold b.mu.
func (b *base) openDB() (*sql.DB, error) {
	if b.db != nil {
		return b.db, nil
	}
	password, err := b.creds.Password()
	if err != nil {
		return nil, &ConnectionError{Op: "credentials", Err: err}
	}
	db, err := b.open(b.creds.User(), password)
	if err != nil {
		return nil, &ConnectionError{Op: "open", Err: err}
	}
	b.db = db
	return db, nil
}

// checkout takes a connection from db and pings it.
func (b *base) checkout(ctx context.Context, db *sql.DB) (*sql.Conn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, &ConnectionError{Op: "acquire", Err: err}
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, &ConnectionError{Op: "ping", Err: err}
	}
	return conn, nil
}

// runInit runs the initializer on c.
func (b *base) runInit(ctx context.Context, c *Conn) error {
	if err := b.init(ctx, c); err != nil {
		return &ConnectionError{Op: "initialize", Err: err}
	}
	b.logger.Debug("connection initialized")
	return nil
}

// SingleSource holds one connection for its whole lifetime. Every Get
// returns a new wrapper around the same connection.
type SingleSource struct {
	base
	conn        *sql.Conn
	initialized bool
}

func NewSingleSource(open Opener, creds Credentials, opts Options) *SingleSource {
	return &SingleSource{base: newBase(open, creds, opts)}
}

func (s *SingleSource) Get(ctx context.Context) (*Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSourceClosed
	}
	if s.conn == nil {
		db, err := s.openDB()
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		conn, err := s.checkout(ctx, db)
		if err != nil {
			return nil, err
		}
		s.conn = conn
		s.logger.Debug("opened single connection")
	}
	c := newConn(s.conn, s)
	if !s.initialized && s.init != nil {
		if err := s.runInit(ctx, c); err != nil {
			c.markClosed()
			return nil, err
		}
	}
	s.initialized = true
	return c, nil
}

// ReleaseConnection closes the wrapper only; the connection stays open
// until Close.
func (s *SingleSource) ReleaseConnection(c *Conn) bool {
	return c.markClosed()
}

func (s *SingleSource) MaxConnections() int { return 1 }

func (s *SingleSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var firstErr error
	if s.conn != nil {
		firstErr = s.conn.Close()
		s.conn = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.db = nil
	}
	s.logger.Debug("single connection closed")
	return firstErr
}

// PooledSource checks out a pooled connection per Get and returns it to the
// pool on release. The initializer runs on each physical connection the
// pool opens, the first time it is checked out.
type PooledSource struct {
	base
	max         int
	initialized map[any]bool // keyed by driver connection
}

func NewPooledSource(open Opener, creds Credentials, opts Options) *PooledSource {
	return &PooledSource{
		base:        newBase(open, creds, opts),
		max:         max(opts.MaxConnections, 1),
		initialized: make(map[any]bool),
	}
}

func (p *PooledSource) Get(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrSourceClosed
	}
	db, err := p.openDB()
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	db.SetMaxOpenConns(p.max)
	db.SetMaxIdleConns(p.max)
	p.mu.Unlock()

	conn, err := p.checkout(ctx, db)
	if err != nil {
		return nil, err
	}
	c := newConn(conn, p)
	if err := p.initConn(ctx, c); err != nil {
		p.ReleaseConnection(c)
		return nil, err
	}
	return c, nil
}

// initConn runs the initializer unless the physical connection behind c
// already ran it. A checked-out connection belongs to one caller, so only
// the bookkeeping needs the lock.
func (p *PooledSource) initConn(ctx context.Context, c *Conn) error {
	if p.init == nil {
		return nil
	}
	key, err := driverConn(c.conn)
	if err != nil {
		return &ConnectionError{Op: "initialize", Err: err}
	}
	p.mu.Lock()
	done := p.initialized[key]
	p.mu.Unlock()
	if done {
		return nil
	}
	if err := p.runInit(ctx, c); err != nil {
		return err
	}
	p.mu.Lock()
	p.initialized[key] = true
	p.mu.Unlock()
	return nil
}

// driverConn returns the driver connection behind conn. It identifies the
// physical connection across checkouts.
func driverConn(conn *sql.Conn) (any, error) {
	var dc any
	err := conn.Raw(func(c any) error {
		dc = c
		return nil
	})
	return dc, err
}

// ReleaseConnection returns the connection to the pool.
func (p *PooledSource) ReleaseConnection(c *Conn) bool {
	if !c.markClosed() {
		return false
	}
	if err := c.conn.Close(); err != nil {
		p.logger.Warn("release connection", zap.Error(err))
	}
	return true
}

func (p *PooledSource) MaxConnections() int { return p.max }

func (p *PooledSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	p.logger.Debug("connection pool closed")
	return err
}
