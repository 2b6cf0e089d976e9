package prover

import "fmt"

// VerificationMismatchError reports a freshly generated proof that failed
// its mandatory self-verification. It indicates a key-pair or witness
// inconsistency, never caller input.
type VerificationMismatchError struct {
	CircuitName string
}

func (e *VerificationMismatchError) Error() string {
	return fmt.Sprintf("proof for %s failed self-verification", e.CircuitName)
}

// FileIOError reports a filesystem failure while persisting or loading
// proof data.
type FileIOError struct {
	Path string
	Err  error
}

func (e *FileIOError) Error() string {
	return fmt.Sprintf("file io: %s: %v", e.Path, e.Err)
}

func (e *FileIOError) Unwrap() error {
	return e.Err
}
