package prover

import (
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/google/uuid"

	"zkdraw/draw-prover/artifacts"
	"zkdraw/draw-prover/draw"
	"zkdraw/draw-prover/logging"
	"zkdraw/draw-prover/setup"
)

// State tracks the orchestrator lifecycle.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// Orchestrator owns the full proof workflow of one circuit configuration:
// artifact setup, witness building, proving with mandatory
// self-verification, and standalone verification of persisted bundles.
type Orchestrator struct {
	cfg      CircuitConfig
	driver   *setup.Driver
	registry *artifacts.Registry

	mu     sync.RWMutex
	state  State
	system *ProvingSystem
}

// DefaultDriver wires the gnark-backed setup stages for a configuration.
func DefaultDriver(cfg CircuitConfig, srsEntropy, zkeyEntropy []byte) (*setup.Driver, error) {
	circuit, err := NewCircuit(cfg)
	if err != nil {
		return nil, err
	}
	return &setup.Driver{
		Compiler:    setup.GnarkCompiler{Circuit: circuit},
		Reference:   &setup.GnarkReferenceString{},
		Keys:        &setup.GnarkKeyCeremony{},
		Exporter:    setup.GnarkKeyExporter{},
		Power:       cfg.Power,
		SRSEntropy:  srsEntropy,
		ZKeyEntropy: zkeyEntropy,
	}, nil
}

func NewOrchestrator(cfg CircuitConfig, driver *setup.Driver) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if driver == nil {
		return nil, fmt.Errorf("setup driver is required")
	}
	return &Orchestrator{
		cfg:      cfg,
		driver:   driver,
		registry: artifacts.NewRegistry(cfg.Layout()),
		state:    StateUninitialized,
	}, nil
}

func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) Config() CircuitConfig { return o.cfg }

// Initialize brings every artifact up to date and loads the proving
// system. Safe to call again after a failure; a successful call is
// idempotent.
func (o *Orchestrator) Initialize() error {
	o.mu.Lock()
	if o.state == StateReady {
		o.mu.Unlock()
		return nil
	}
	o.state = StateInitializing
	o.mu.Unlock()

	fail := func(err error) error {
		o.mu.Lock()
		o.state = StateFailed
		o.mu.Unlock()
		return err
	}

	if err := o.driver.EnsureArtifacts(o.registry); err != nil {
		return fail(err)
	}
	system, err := LoadProvingSystem(o.cfg, setup.ReadKeyPair)
	if err != nil {
		return fail(err)
	}

	o.mu.Lock()
	o.system = system
	o.state = StateReady
	o.mu.Unlock()

	logging.Logger().Info().
		Str("circuit", o.cfg.Name).
		Msg("orchestrator ready")
	return nil
}

// ensureReady returns the loaded proving system, initializing first if the
// orchestrator has not reached Ready yet.
func (o *Orchestrator) ensureReady() (*ProvingSystem, error) {
	o.mu.RLock()
	if o.state == StateReady && o.system != nil {
		system := o.system
		o.mu.RUnlock()
		return system, nil
	}
	o.mu.RUnlock()

	if err := o.Initialize(); err != nil {
		return nil, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.state != StateReady || o.system == nil {
		return nil, fmt.Errorf("orchestrator is %s, not ready", o.state)
	}
	return o.system, nil
}

// GenerateProof derives the outputs for the given inputs, proves them and
// self-verifies the proof before returning the bundle. A bundle that comes
// back non-nil has already passed verification. Initializes on first use if
// the caller did not.
func (o *Orchestrator) GenerateProof(in draw.Inputs) (*ProofBundle, error) {
	system, err := o.ensureReady()
	if err != nil {
		return nil, err
	}
	canonical, err := in.Canonical()
	if err != nil {
		return nil, err
	}
	if o.cfg.Family == FamilyMod && canonical.Modulus == nil {
		return nil, &draw.ValidationError{Msg: "modulus is required"}
	}

	outputs, err := ComputeOutputs(o.cfg, canonical)
	if err != nil {
		return nil, err
	}
	assignment, err := NewAssignment(o.cfg, canonical, outputs)
	if err != nil {
		return nil, err
	}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}

	logging.Logger().Info().
		Str("circuit", o.cfg.Name).
		Msg("generating proof")
	proof, err := groth16.Prove(system.ConstraintSystem, system.ProvingKey, w)
	if err != nil {
		return nil, fmt.Errorf("prove: %w", err)
	}

	publicWitness, err := w.Public()
	if err != nil {
		return nil, err
	}
	if err := groth16.Verify(proof, system.VerifyingKey, publicWitness); err != nil {
		logging.Logger().Error().
			Str("circuit", o.cfg.Name).
			Err(err).
			Msg("self-verification failed")
		return nil, &VerificationMismatchError{CircuitName: o.cfg.Name}
	}

	signals, err := PublicSignals(w)
	if err != nil {
		return nil, err
	}
	proofData, err := MarshalProof(proof)
	if err != nil {
		return nil, err
	}

	outputStrings := make([]string, len(outputs))
	for i, out := range outputs {
		outputStrings[i] = out.String()
	}
	return &ProofBundle{
		BundleID:      uuid.New().String(),
		CircuitName:   o.cfg.Name,
		Proof:         proofData,
		PublicSignals: signals,
		Outputs:       outputStrings,
	}, nil
}

// VerifyProof checks a bundle against the loaded verification key. Any
// defect in the bundle itself, including unparseable or tampered content,
// is an invalid proof, not an error; errors are reserved for the verifier
// not being usable at all. Initializes on first use if the caller did not.
func (o *Orchestrator) VerifyProof(bundle *ProofBundle) (bool, error) {
	system, err := o.ensureReady()
	if err != nil {
		return false, err
	}
	if bundle == nil || bundle.Proof == nil {
		return false, nil
	}
	if len(bundle.Outputs) > len(bundle.PublicSignals) {
		return false, nil
	}
	// The outputs file must agree with the leading public signals.
	for i, out := range bundle.Outputs {
		if out != bundle.PublicSignals[i] {
			return false, nil
		}
	}

	proof, err := UnmarshalProof(bundle.Proof)
	if err != nil {
		return false, nil
	}
	publicWitness, err := PublicWitnessFromSignals(o.cfg, bundle.PublicSignals)
	if err != nil {
		return false, nil
	}
	if err := groth16.Verify(proof, system.VerifyingKey, publicWitness); err != nil {
		return false, nil
	}
	return true, nil
}
