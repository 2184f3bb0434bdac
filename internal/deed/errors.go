package deed

import "fmt"

// InputError means the document itself was empty or unreadable. Fatal for
// the invocation; no output is written.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return "input error: " + e.Reason
}

// ExtractionError means the reduce phase produced no usable record (for
// example, every chunk degraded). Fatal; no output is written.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return "extraction error: " + e.Reason
}

// PersistenceError wraps a failed write of the main record. Discrepancy
// report writes never produce this; those failures are only logged.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
