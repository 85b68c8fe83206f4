package connection

import (
	"context"
	"database/sql"
	"sync"
)

// Conn wraps an acquired *sql.Conn. Close hands the connection back to its
// source instead of closing it; after that every other method fails with
// ErrConnectionClosed.
type Conn struct {
	conn   *sql.Conn
	source Source

	mu     sync.Mutex
	closed bool
}

func newConn(conn *sql.Conn, source Source) *Conn {
	return &Conn{conn: conn, source: source}
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c.IsClosed() {
		return nil, ErrConnectionClosed
	}
	return c.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a query expected to return at most one row.
func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *Row {
	if c.IsClosed() {
		return &Row{err: ErrConnectionClosed}
	}
	return &Row{row: c.conn.QueryRowContext(ctx, query, args...)}
}

func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c.IsClosed() {
		return nil, ErrConnectionClosed
	}
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *Conn) PingContext(ctx context.Context) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}
	return c.conn.PingContext(ctx)
}

// Close releases the connection to its source. Closing twice is a no-op.
func (c *Conn) Close() error {
	c.source.ReleaseConnection(c)
	return nil
}

// IsClosed reports whether this wrapper was released.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Unwrap returns the underlying connection.
func (c *Conn) Unwrap() *sql.Conn { return c.conn }

// markClosed flips the wrapper to closed and reports whether it was open.
func (c *Conn) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

// Row is the result of QueryRowContext.
type Row struct {
	row *sql.Row
	err error
}

func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return r.row.Scan(dest...)
}

func (r *Row) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.row.Err()
}
