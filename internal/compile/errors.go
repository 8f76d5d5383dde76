package compile

import "fmt"

// CompilationError means the answer document could not be produced. No
// partial document is kept when it happens.
type CompilationError struct {
	Stage string
	Err   error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compile %s: %v", e.Stage, e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }
