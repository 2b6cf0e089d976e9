package prover

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkdraw/draw-prover/draw"
)

var (
	sharedOrchestrator *Orchestrator
	orchestratorOnce   sync.Once
	orchestratorErr    error
)

// readyOrchestrator runs the full setup once and shares it across tests;
// the key ceremony dominates test time otherwise.
func readyOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	orchestratorOnce.Do(func() {
		dir, err := os.MkdirTemp("", "draw-prover-test")
		if err != nil {
			orchestratorErr = err
			return
		}
		cfg := CircuitConfig{
			Family:   FamilyDraw,
			Name:     "draw_6_2",
			Range:    draw.RangeSpec{StartValue: 1, PoolSize: 6, NumOutputs: 2},
			Power:    12,
			PtauName: "pot12_final.ptau",
			PtauDir:  filepath.Join(dir, "ptau"),
			BuildDir: filepath.Join(dir, "build"),
		}
		driver, err := DefaultDriver(cfg, []byte("srs test entropy"), []byte("zkey test entropy"))
		if err != nil {
			orchestratorErr = err
			return
		}
		orch, err := NewOrchestrator(cfg, driver)
		if err != nil {
			orchestratorErr = err
			return
		}
		if err := orch.Initialize(); err != nil {
			orchestratorErr = err
			return
		}
		sharedOrchestrator = orch
	})
	require.NoError(t, orchestratorErr)
	return sharedOrchestrator
}

func TestOrchestratorLifecycle(t *testing.T) {
	orch := readyOrchestrator(t)
	assert.Equal(t, StateReady, orch.State())
	// Initialize again: no-op once ready.
	require.NoError(t, orch.Initialize())
}

func TestGenerateProofAutoInitializes(t *testing.T) {
	ready := readyOrchestrator(t)

	// A fresh orchestrator over the same (already built) artifacts: the
	// first GenerateProof must bring it to Ready on its own.
	driver, err := DefaultDriver(ready.Config(), []byte("srs test entropy"), []byte("zkey test entropy"))
	require.NoError(t, err)
	orch, err := NewOrchestrator(ready.Config(), driver)
	require.NoError(t, err)
	require.Equal(t, StateUninitialized, orch.State())

	bundle, err := orch.GenerateProof(draw.Inputs{BlockHash: "42", UserNonce: 1})
	require.NoError(t, err)
	require.NotNil(t, bundle)
	assert.Equal(t, StateReady, orch.State())
}

func TestGenerateProofSelfVerifies(t *testing.T) {
	orch := readyOrchestrator(t)

	bundle, err := orch.GenerateProof(draw.Inputs{
		BlockHash: "12345678901234567890",
		UserNonce: 7,
	})
	require.NoError(t, err)
	require.NotNil(t, bundle)
	assert.NotEmpty(t, bundle.BundleID)
	assert.Equal(t, "draw_6_2", bundle.CircuitName)
	assert.Len(t, bundle.Outputs, 2)
	assert.Len(t, bundle.PublicSignals, 5, "outputs + blockHash + userNonce + extraEntropy")
	assert.Equal(t, bundle.Outputs, bundle.PublicSignals[:2])

	ok, err := orch.VerifyProof(bundle)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGenerateProofIsDeterministicInOutputs(t *testing.T) {
	orch := readyOrchestrator(t)
	in := draw.Inputs{BlockHash: "999", UserNonce: "1"}

	first, err := orch.GenerateProof(in)
	require.NoError(t, err)
	second, err := orch.GenerateProof(in)
	require.NoError(t, err)

	assert.Equal(t, first.Outputs, second.Outputs)
	assert.Equal(t, first.PublicSignals, second.PublicSignals)
	assert.NotEqual(t, first.BundleID, second.BundleID)
}

func TestGenerateProofValidatesInputs(t *testing.T) {
	orch := readyOrchestrator(t)

	_, err := orch.GenerateProof(draw.Inputs{UserNonce: 7})
	var vErr *draw.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Contains(t, vErr.Error(), "blockHash")

	_, err = orch.GenerateProof(draw.Inputs{BlockHash: "abc not a number", UserNonce: 7})
	require.True(t, errors.As(err, &vErr))
}

func TestVerifyProofRejectsTamperedSignals(t *testing.T) {
	orch := readyOrchestrator(t)
	bundle, err := orch.GenerateProof(draw.Inputs{BlockHash: "42", UserNonce: 1})
	require.NoError(t, err)

	tampered := *bundle
	tampered.PublicSignals = append([]string(nil), bundle.PublicSignals...)
	tampered.Outputs = append([]string(nil), bundle.Outputs...)
	tampered.PublicSignals[0] = "5"
	tampered.Outputs[0] = "5"

	ok, err := orch.VerifyProof(&tampered)
	require.NoError(t, err, "a tampered bundle is invalid, not an error")
	assert.False(t, ok)
}

func TestVerifyProofRejectsOutputsDisagreeingWithSignals(t *testing.T) {
	orch := readyOrchestrator(t)
	bundle, err := orch.GenerateProof(draw.Inputs{BlockHash: "42", UserNonce: 1})
	require.NoError(t, err)

	tampered := *bundle
	tampered.Outputs = append([]string(nil), bundle.Outputs...)
	tampered.Outputs[0] = "5"

	ok, err := orch.VerifyProof(&tampered)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyProofRejectsGarbageProof(t *testing.T) {
	orch := readyOrchestrator(t)
	bundle, err := orch.GenerateProof(draw.Inputs{BlockHash: "42", UserNonce: 1})
	require.NoError(t, err)

	tampered := *bundle
	proofCopy := *bundle.Proof
	proofCopy.PiA[0] = "not a number"
	tampered.Proof = &proofCopy

	ok, err := orch.VerifyProof(&tampered)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = orch.VerifyProof(nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveAndLoadProofData(t *testing.T) {
	orch := readyOrchestrator(t)
	bundle, err := orch.GenerateProof(draw.Inputs{BlockHash: "42", UserNonce: 1})
	require.NoError(t, err)

	dir := t.TempDir()
	paths, err := SaveProofData(bundle, dir)
	require.NoError(t, err)
	assert.FileExists(t, paths.ProofPath)
	assert.FileExists(t, paths.PublicPath)
	assert.FileExists(t, paths.OutputsPath)

	loaded, err := LoadProofData(paths)
	require.NoError(t, err)
	assert.Equal(t, bundle.BundleID, loaded.BundleID)
	assert.Equal(t, bundle.Outputs, loaded.Outputs)
	assert.Equal(t, bundle.PublicSignals, loaded.PublicSignals)

	ok, err := orch.VerifyProof(loaded)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadProofDataTamperedOnDisk(t *testing.T) {
	orch := readyOrchestrator(t)
	bundle, err := orch.GenerateProof(draw.Inputs{BlockHash: "42", UserNonce: 1})
	require.NoError(t, err)

	dir := t.TempDir()
	paths, err := SaveProofData(bundle, dir)
	require.NoError(t, err)

	// Flip the first public signal on disk.
	data, err := os.ReadFile(paths.PublicPath)
	require.NoError(t, err)
	var signals []string
	require.NoError(t, json.Unmarshal(data, &signals))
	signals[0] = "5"
	edited, err := json.Marshal(signals)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths.PublicPath, edited, 0o644))

	loaded, err := LoadProofData(paths)
	require.NoError(t, err)
	ok, err := orch.VerifyProof(loaded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadProofDataMissingFile(t *testing.T) {
	_, err := LoadProofData(BundlePathsIn(t.TempDir()))
	var ioErr *FileIOError
	require.True(t, errors.As(err, &ioErr))
}

func TestProofRoundTripThroughMarshal(t *testing.T) {
	orch := readyOrchestrator(t)
	bundle, err := orch.GenerateProof(draw.Inputs{BlockHash: "42", UserNonce: 1})
	require.NoError(t, err)

	proof, err := UnmarshalProof(bundle.Proof)
	require.NoError(t, err)
	again, err := MarshalProof(proof)
	require.NoError(t, err)
	assert.Equal(t, bundle.Proof, again)
}
