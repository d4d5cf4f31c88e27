package jobs

import "fmt"

// ReconstructionError is returned by Codec.Decode when a Job cannot be turned
// into a Runner, either because it's malformed or because it names a function
// which isn't registered.
type ReconstructionError struct {
	Signature string
	Err       error
}

func (e *ReconstructionError) Error() string {
	return fmt.Sprintf("reconstructing job runner: %s", e.Err)
}

// Unwrap returns the underlying cause.
func (e *ReconstructionError) Unwrap() error { return e.Err }
