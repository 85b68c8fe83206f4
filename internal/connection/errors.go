package connection

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed is returned by every Conn method after the
	// connection was released.
	ErrConnectionClosed = errors.New("connection is closed")
	// ErrSourceClosed is returned by Get after the source was closed.
	ErrSourceClosed = errors.New("connection source is closed")
	// ErrCredentialsExhausted is returned when single-use credentials are
	// asked for a second time.
	ErrCredentialsExhausted = errors.New("single-use credentials already consumed")
)

// ConnectionError is a fatal failure to acquire or initialize a
// connection.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
