// Package setup produces the on-disk artifacts a circuit configuration
// needs before proving: constraint system, witness generator, reference
// string and the Groth16 key pair. The driver orchestrates; the actual
// work is behind small interfaces so each stage can be replaced or faked
// independently.
package setup

import (
	"fmt"

	"zkdraw/draw-prover/artifacts"
)

// CompileResult reports the files a successful compilation produced.
type CompileResult struct {
	R1CSPath       string
	WitnessGenPath string
	NbConstraints  int
}

// Compiler turns a circuit configuration into its constraint system and
// witness generator files, at the paths the layout dictates.
type Compiler interface {
	Compile(layout artifacts.Layout) (CompileResult, error)
}

// ReferenceStringCeremony runs the powers-of-tau phase: a fresh
// accumulator, one or more entropy contributions, then the phase-2
// preparation that finalizes the file. The finalized file is shared by
// every circuit of the same power and is never regenerated implicitly.
type ReferenceStringCeremony interface {
	NewAccumulator(power uint8) error
	Contribute(entropy []byte) error
	PreparePhase2(layout artifacts.Layout) (string, error)
}

// KeyCeremony runs the circuit-specific phase: binding the constraint
// system to the reference string and contributing entropy to produce the
// final proving key file.
type KeyCeremony interface {
	NewProvingKey(r1csPath, ptauPath string) error
	Contribute(entropy []byte, layout artifacts.Layout) (string, error)
}

// KeyExporter extracts the verification key from a finalized proving key
// file, encoded for persistence.
type KeyExporter interface {
	ExportVerificationKey(zkeyPath string) ([]byte, error)
}

// ExternalToolError reports a failure inside one of the setup stages. The
// wrapped error carries the stage's own diagnostics.
type ExternalToolError struct {
	Tool string
	Err  error
}

func (e *ExternalToolError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *ExternalToolError) Unwrap() error {
	return e.Err
}

func toolErrorf(tool, format string, args ...any) *ExternalToolError {
	return &ExternalToolError{Tool: tool, Err: fmt.Errorf(format, args...)}
}
