package crawl

import "fmt"

// StageError aborts a crawl: a mandatory stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// UnsupportedMetadataOperationError records an optional stage that could
// not be retrieved. The crawl continues without that metadata.
type UnsupportedMetadataOperationError struct {
	Stage   string
	Dialect string
	Err     error
}

func (e *UnsupportedMetadataOperationError) Error() string {
	return fmt.Sprintf("%s: could not retrieve %s: %v", e.Dialect, e.Stage, e.Err)
}

func (e *UnsupportedMetadataOperationError) Unwrap() error { return e.Err }
