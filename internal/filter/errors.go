package filter

import (
	"errors"
	"fmt"
)

var errOnlyMatchingWithoutPattern = errors.New("requires at least one grep pattern")

// ConfigurationError reports invalid filter options, such as a pattern that
// does not compile. It is raised while options are built, before any
// connection is made.
type ConfigurationError struct {
	Option string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s option: %v", e.Option, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
