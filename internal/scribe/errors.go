package scribe

import "fmt"

// UsageError reports a malformed command line.
type UsageError struct {
	Usage string // usage line shown to the user
	Err   error
}

func (e *UsageError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Usage
}

func (e *UsageError) Unwrap() error { return e.Err }

// ModelError wraps a failure of the recognition engine, including results
// that did not pass validation.
type ModelError struct {
	Engine string
	Err    error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%s transcription failed: %v", e.Engine, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// RuntimeError wraps filesystem and I/O failures.
type RuntimeError struct {
	Op   string
	Path string
	Err  error
}

func (e *RuntimeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }
