package prover

import (
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"

	"zkdraw/draw-prover/artifacts"
	"zkdraw/draw-prover/draw"
	"zkdraw/draw-prover/logging"
)

// CircuitFamily selects which statement a configuration proves.
type CircuitFamily string

const (
	// FamilyDraw proves a no-repeat draw from a contiguous range.
	FamilyDraw CircuitFamily = "draw"
	// FamilyMod proves independent modular reductions of the seed stream.
	FamilyMod CircuitFamily = "mod"
)

// CircuitConfig is one provable circuit configuration. Name doubles as the
// artifact identity: all files of this configuration derive from it.
type CircuitConfig struct {
	Family     CircuitFamily  `json:"family"`
	Name       string         `json:"name"`
	Range      draw.RangeSpec `json:"range"`
	ModOutputs uint32         `json:"modOutputs"`

	Power    uint8  `json:"power"`
	PtauName string `json:"ptauName"`
	PtauDir  string `json:"ptauDir"`
	BuildDir string `json:"buildDir"`
}

func (c CircuitConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("circuit name is required")
	}
	switch c.Family {
	case FamilyDraw:
		return c.Range.Validate()
	case FamilyMod:
		if c.ModOutputs == 0 {
			return fmt.Errorf("modOutputs is required")
		}
		return nil
	default:
		return fmt.Errorf("unknown circuit family %q", c.Family)
	}
}

func (c CircuitConfig) Layout() artifacts.Layout {
	return artifacts.Layout{
		CircuitName: c.Name,
		BuildDir:    c.BuildDir,
		PtauDir:     c.PtauDir,
		PtauName:    c.PtauName,
	}
}

// NumPublicSignals is the count of public witness values, outputs first.
func (c CircuitConfig) NumPublicSignals() int {
	switch c.Family {
	case FamilyMod:
		return int(c.ModOutputs) + 4
	default:
		return int(c.Range.NumOutputs) + 3
	}
}

func (c CircuitConfig) numOutputs() int {
	if c.Family == FamilyMod {
		return int(c.ModOutputs)
	}
	return int(c.Range.NumOutputs)
}

// NewCircuit builds the compile-shape circuit for the configuration.
func NewCircuit(cfg CircuitConfig) (frontend.Circuit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Family {
	case FamilyDraw:
		return &DrawCircuit{
			Outputs:    make([]frontend.Variable, cfg.Range.NumOutputs),
			StartValue: cfg.Range.StartValue,
			PoolSize:   cfg.Range.PoolSize,
			NumOutputs: cfg.Range.NumOutputs,
		}, nil
	case FamilyMod:
		return &ModCircuit{
			Outputs:    make([]frontend.Variable, cfg.ModOutputs),
			NumOutputs: cfg.ModOutputs,
		}, nil
	default:
		return nil, fmt.Errorf("unknown circuit family %q", cfg.Family)
	}
}

// ProvingSystem is a loaded, prove-ready circuit configuration.
type ProvingSystem struct {
	Config           CircuitConfig
	ConstraintSystem constraint.ConstraintSystem
	ProvingKey       groth16.ProvingKey
	VerifyingKey     groth16.VerifyingKey
}

// LoadProvingSystem reads the constraint system and key pair of a
// configuration from its artifact files.
func LoadProvingSystem(cfg CircuitConfig, readKeys func(zkeyPath string) (groth16.ProvingKey, groth16.VerifyingKey, error)) (*ProvingSystem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	layout := cfg.Layout()

	logging.Logger().Info().
		Str("circuit", cfg.Name).
		Str("r1cs", layout.R1CSPath()).
		Msg("loading proving system")

	cs := groth16.NewCS(ecc.BN254)
	f, err := os.Open(layout.R1CSPath())
	if err != nil {
		return nil, &FileIOError{Path: layout.R1CSPath(), Err: err}
	}
	defer f.Close()
	if _, err := cs.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("reading constraint system: %w", err)
	}

	pk, vk, err := readKeys(layout.ZkeyPath())
	if err != nil {
		return nil, err
	}
	return &ProvingSystem{
		Config:           cfg,
		ConstraintSystem: cs,
		ProvingKey:       pk,
		VerifyingKey:     vk,
	}, nil
}

// ComputeOutputs runs the host-side twin of the configured circuit and
// returns the derived outputs as field elements.
func ComputeOutputs(cfg CircuitConfig, in *draw.CanonicalInputs) ([]*big.Int, error) {
	hasher := draw.NewMiMCHasher()
	switch cfg.Family {
	case FamilyDraw:
		picks, err := draw.Draw(hasher, in, cfg.Range)
		if err != nil {
			return nil, err
		}
		outs := make([]*big.Int, len(picks))
		for i, pick := range picks {
			outs[i] = new(big.Int).SetInt64(pick)
		}
		return outs, nil
	case FamilyMod:
		return draw.ModularOutputs(hasher, in, int(cfg.ModOutputs))
	default:
		return nil, fmt.Errorf("unknown circuit family %q", cfg.Family)
	}
}

// NewAssignment builds the full witness assignment for one proof.
func NewAssignment(cfg CircuitConfig, in *draw.CanonicalInputs, outputs []*big.Int) (frontend.Circuit, error) {
	if len(outputs) != cfg.numOutputs() {
		return nil, fmt.Errorf("expected %d outputs, got %d", cfg.numOutputs(), len(outputs))
	}
	vars := make([]frontend.Variable, len(outputs))
	for i, out := range outputs {
		vars[i] = out
	}
	switch cfg.Family {
	case FamilyDraw:
		return &DrawCircuit{
			Outputs:      vars,
			BlockHash:    in.BlockHash,
			UserNonce:    in.UserNonce,
			ExtraEntropy: in.ExtraEntropy,
			StartValue:   cfg.Range.StartValue,
			PoolSize:     cfg.Range.PoolSize,
			NumOutputs:   cfg.Range.NumOutputs,
		}, nil
	case FamilyMod:
		if in.Modulus == nil {
			return nil, fmt.Errorf("modulus is required")
		}
		return &ModCircuit{
			Outputs:      vars,
			BlockHash:    in.BlockHash,
			UserNonce:    in.UserNonce,
			ExtraEntropy: in.ExtraEntropy,
			Modulus:      in.Modulus,
			NumOutputs:   cfg.ModOutputs,
		}, nil
	default:
		return nil, fmt.Errorf("unknown circuit family %q", cfg.Family)
	}
}

// PublicSignals extracts the public witness values as decimal strings, in
// declaration order: outputs first, then the canonical inputs.
func PublicSignals(w witness.Witness) ([]string, error) {
	public, err := w.Public()
	if err != nil {
		return nil, err
	}
	vector, ok := public.Vector().(fr.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected public witness vector type %T", public.Vector())
	}
	signals := make([]string, len(vector))
	for i := range vector {
		var v big.Int
		vector[i].BigInt(&v)
		signals[i] = v.String()
	}
	return signals, nil
}

// PublicWitnessFromSignals rebuilds the public witness a verifier needs
// from persisted decimal signal strings.
func PublicWitnessFromSignals(cfg CircuitConfig, signals []string) (witness.Witness, error) {
	if len(signals) != cfg.NumPublicSignals() {
		return nil, fmt.Errorf("expected %d public signals, got %d", cfg.NumPublicSignals(), len(signals))
	}
	values := make(chan any, len(signals))
	for _, s := range signals {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid public signal %q", s)
		}
		values <- v
	}
	close(values)

	w, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}
	if err := w.Fill(len(signals), 0, values); err != nil {
		return nil, err
	}
	return w, nil
}
