package connection

import "sync"

// Credentials supplies the user and password used to open a database.
type Credentials interface {
	User() string
	// Password returns the password, or ErrCredentialsExhausted when the
	// credentials may not be used again.
	Password() (string, error)
	// SingleUse reports whether the credentials allow one connection only.
	SingleUse() bool
}

// SingleUseCredentials hand out the password once and then wipe it.
type SingleUseCredentials struct {
	user string

	mu       sync.Mutex
	password string
	used     bool
}

func NewSingleUseCredentials(user, password string) *SingleUseCredentials {
	return &SingleUseCredentials{user: user, password: password}
}

func (c *SingleUseCredentials) User() string { return c.user }

func (c *SingleUseCredentials) Password() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.used {
		return "", ErrCredentialsExhausted
	}
	pw := c.password
	c.password = ""
	c.used = true
	return pw, nil
}

func (c *SingleUseCredentials) SingleUse() bool { return true }

// MultiUseCredentials may open any number of connections.
type MultiUseCredentials struct {
	user     string
	password string
}

func NewMultiUseCredentials(user, password string) *MultiUseCredentials {
	return &MultiUseCredentials{user: user, password: password}
}

func (c *MultiUseCredentials) User() string              { return c.user }
func (c *MultiUseCredentials) Password() (string, error) { return c.password, nil }
func (c *MultiUseCredentials) SingleUse() bool           { return false }
