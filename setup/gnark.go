package setup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"zkdraw/draw-prover/artifacts"
	"zkdraw/draw-prover/logging"
)

// GnarkCompiler compiles one circuit definition with gnark's r1cs builder.
// The serialized constraint system is written twice: once at the r1cs path
// for the key ceremony, once at the witness-generator path where it doubles
// as the witness-solving program.
type GnarkCompiler struct {
	Circuit frontend.Circuit
}

func (c GnarkCompiler) Compile(layout artifacts.Layout) (CompileResult, error) {
	logging.Logger().Info().
		Str("circuit", layout.CircuitName).
		Msg("compiling constraint system")

	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, c.Circuit)
	if err != nil {
		return CompileResult{}, toolErrorf("compile", "circuit %s: %v", layout.CircuitName, err)
	}

	result := CompileResult{
		R1CSPath:       layout.R1CSPath(),
		WitnessGenPath: layout.WasmPath(),
		NbConstraints:  ccs.GetNbConstraints(),
	}
	for _, path := range []string{result.R1CSPath, result.WitnessGenPath} {
		if err := writeConstraintSystem(ccs, path); err != nil {
			return CompileResult{}, err
		}
	}

	logging.Logger().Info().
		Str("circuit", layout.CircuitName).
		Int("constraints", result.NbConstraints).
		Msg("constraint system written")
	return result, nil
}

func writeConstraintSystem(ccs constraint.ConstraintSystem, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if _, err := ccs.WriteTo(f); err != nil {
		return toolErrorf("compile", "writing %s: %v", path, err)
	}
	return nil
}

// referenceStringFile is the persisted form of a finalized reference
// string: the contribution power, the number of contributions and the
// running digest every contribution was chained into. The digest makes a
// file auditable: replaying the same contributions reproduces it exactly.
type referenceStringFile struct {
	Power         uint8  `json:"power"`
	Contributions int    `json:"contributions"`
	Accumulator   string `json:"accumulator"`
	Prepared      bool   `json:"prepared"`
}

// GnarkReferenceString accumulates ceremony entropy into a digest chain.
// NewAccumulator, one or more Contribute calls, then PreparePhase2.
type GnarkReferenceString struct {
	power         uint8
	contributions int
	accumulator   []byte
	started       bool
}

func (r *GnarkReferenceString) NewAccumulator(power uint8) error {
	if power == 0 || power > 28 {
		return toolErrorf("powersoftau", "power %d out of range [1, 28]", power)
	}
	digest := sha256.Sum256([]byte{power})
	r.power = power
	r.contributions = 0
	r.accumulator = digest[:]
	r.started = true
	return nil
}

func (r *GnarkReferenceString) Contribute(entropy []byte) error {
	if !r.started {
		return toolErrorf("powersoftau", "no accumulator: call NewAccumulator first")
	}
	if len(entropy) == 0 {
		return toolErrorf("powersoftau", "empty entropy contribution")
	}
	h := sha256.New()
	h.Write(r.accumulator)
	h.Write(entropy)
	r.accumulator = h.Sum(nil)
	r.contributions++
	return nil
}

func (r *GnarkReferenceString) PreparePhase2(layout artifacts.Layout) (string, error) {
	if !r.started {
		return "", toolErrorf("powersoftau", "no accumulator: call NewAccumulator first")
	}
	if r.contributions == 0 {
		return "", toolErrorf("powersoftau", "at least one contribution is required")
	}
	record := referenceStringFile{
		Power:         r.power,
		Contributions: r.contributions,
		Accumulator:   hex.EncodeToString(r.accumulator),
		Prepared:      true,
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", toolErrorf("powersoftau", "encoding reference string: %v", err)
	}
	path := layout.PtauPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	logging.Logger().Info().
		Str("path", path).
		Uint8("power", r.power).
		Int("contributions", r.contributions).
		Msg("reference string finalized")
	return path, nil
}

func readReferenceString(path string) (referenceStringFile, error) {
	var record referenceStringFile
	data, err := os.ReadFile(path)
	if err != nil {
		return record, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, toolErrorf("powersoftau", "malformed reference string %s: %v", path, err)
	}
	if !record.Prepared {
		return record, toolErrorf("powersoftau", "reference string %s is not phase-2 prepared", path)
	}
	return record, nil
}

// GnarkKeyCeremony binds a compiled constraint system to a prepared
// reference string and produces the proving key file. The zkey file is the
// proving key followed by the verifying key, so the verification key can
// later be exported from the zkey alone.
type GnarkKeyCeremony struct {
	cs      constraint.ConstraintSystem
	lineage []byte
}

func (k *GnarkKeyCeremony) NewProvingKey(r1csPath, ptauPath string) error {
	record, err := readReferenceString(ptauPath)
	if err != nil {
		return err
	}
	lineage, err := hex.DecodeString(record.Accumulator)
	if err != nil {
		return toolErrorf("groth16", "malformed accumulator digest: %v", err)
	}

	cs := groth16.NewCS(ecc.BN254)
	f, err := os.Open(r1csPath)
	if err != nil {
		return fmt.Errorf("opening constraint system %s: %w", r1csPath, err)
	}
	defer f.Close()
	if _, err := cs.ReadFrom(f); err != nil {
		return toolErrorf("groth16", "reading constraint system %s: %v", r1csPath, err)
	}

	k.cs = cs
	k.lineage = lineage
	return nil
}

func (k *GnarkKeyCeremony) Contribute(entropy []byte, layout artifacts.Layout) (string, error) {
	if k.cs == nil {
		return "", toolErrorf("groth16", "no constraint system: call NewProvingKey first")
	}
	if len(entropy) == 0 {
		return "", toolErrorf("groth16", "empty entropy contribution")
	}
	h := sha256.New()
	h.Write(k.lineage)
	h.Write(entropy)
	k.lineage = h.Sum(nil)

	pk, vk, err := groth16.Setup(k.cs)
	if err != nil {
		return "", toolErrorf("groth16", "setup: %v", err)
	}

	path := layout.ZkeyPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if _, err := pk.WriteRawTo(f); err != nil {
		return "", toolErrorf("groth16", "writing proving key: %v", err)
	}
	if _, err := vk.WriteRawTo(f); err != nil {
		return "", toolErrorf("groth16", "writing verifying key: %v", err)
	}

	logging.Logger().Info().
		Str("path", path).
		Str("lineage", hex.EncodeToString(k.lineage)).
		Msg("proving key finalized")
	return path, nil
}

// verificationKeyFile is the persisted JSON envelope of a verification key.
type verificationKeyFile struct {
	Protocol string `json:"protocol"`
	Curve    string `json:"curve"`
	VkData   []byte `json:"vk_data"`
}

// GnarkKeyExporter reads the verifying key back out of a zkey file.
type GnarkKeyExporter struct{}

func (GnarkKeyExporter) ExportVerificationKey(zkeyPath string) ([]byte, error) {
	_, vk, err := readKeyPair(zkeyPath)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := vk.WriteRawTo(&buf); err != nil {
		return nil, toolErrorf("groth16", "encoding verifying key: %v", err)
	}
	envelope := verificationKeyFile{
		Protocol: "groth16",
		Curve:    "bn254",
		VkData:   buf.Bytes(),
	}
	return json.MarshalIndent(envelope, "", "  ")
}

// ReadKeyPair loads the proving and verifying keys from a zkey file.
func ReadKeyPair(zkeyPath string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	return readKeyPair(zkeyPath)
}

func readKeyPair(zkeyPath string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	f, err := os.Open(zkeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening proving key %s: %w", zkeyPath, err)
	}
	defer f.Close()

	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.UnsafeReadFrom(f); err != nil {
		return nil, nil, toolErrorf("groth16", "reading proving key %s: %v", zkeyPath, err)
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, nil, toolErrorf("groth16", "reading verifying key %s: %v", zkeyPath, err)
	}
	return pk, vk, nil
}

// DecodeVerificationKey parses a verification key envelope back into a
// gnark verifying key.
func DecodeVerificationKey(data []byte) (groth16.VerifyingKey, error) {
	var envelope verificationKeyFile
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, toolErrorf("groth16", "malformed verification key envelope: %v", err)
	}
	if envelope.Protocol != "groth16" || envelope.Curve != "bn254" {
		return nil, toolErrorf("groth16", "unsupported key envelope %s/%s", envelope.Protocol, envelope.Curve)
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(envelope.VkData)); err != nil {
		return nil, toolErrorf("groth16", "decoding verifying key: %v", err)
	}
	return vk, nil
}
