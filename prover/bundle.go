package prover

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// ProofBundle is everything a verifier needs for one proof: the proof
// itself, the full public signal list in witness order, and the derived
// outputs (a prefix of the signals, kept separately for consumers that
// only care about the draw result).
type ProofBundle struct {
	BundleID      string     `json:"bundleId"`
	CircuitName   string     `json:"circuit"`
	Proof         *ProofData `json:"proof"`
	PublicSignals []string   `json:"publicSignals"`
	Outputs       []string   `json:"outputs"`
}

// BundlePaths names the three files a persisted bundle is split into.
type BundlePaths struct {
	ProofPath   string
	PublicPath  string
	OutputsPath string
}

func BundlePathsIn(dir string) BundlePaths {
	return BundlePaths{
		ProofPath:   filepath.Join(dir, "proof.json"),
		PublicPath:  filepath.Join(dir, "public.json"),
		OutputsPath: filepath.Join(dir, "outputs.json"),
	}
}

type outputsFile struct {
	BundleID string `json:"bundleId"`
	Circuit  string `json:"circuit"`
	// Outputs are the derived values; PublicInputs the canonical inputs
	// that follow them in the public signal order.
	Outputs      []string `json:"outputs"`
	PublicInputs []string `json:"publicInputs"`
}

// SaveProofData persists a bundle into dir as proof.json, public.json and
// outputs.json. The directory is created if needed.
func SaveProofData(bundle *ProofBundle, dir string) (BundlePaths, error) {
	paths := BundlePathsIn(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return paths, &FileIOError{Path: dir, Err: err}
	}
	files := []struct {
		path string
		data any
	}{
		{paths.ProofPath, bundle.Proof},
		{paths.PublicPath, bundle.PublicSignals},
		{paths.OutputsPath, outputsFile{
			BundleID:     bundle.BundleID,
			Circuit:      bundle.CircuitName,
			Outputs:      bundle.Outputs,
			PublicInputs: publicInputsOf(bundle),
		}},
	}
	for _, f := range files {
		encoded, err := json.MarshalIndent(f.data, "", "  ")
		if err != nil {
			return paths, err
		}
		if err := os.WriteFile(f.path, encoded, 0o644); err != nil {
			return paths, &FileIOError{Path: f.path, Err: err}
		}
	}
	return paths, nil
}

// LoadProofData reads a persisted bundle back from its three files.
func LoadProofData(paths BundlePaths) (*ProofBundle, error) {
	bundle := &ProofBundle{Proof: &ProofData{}}

	if err := readJSON(paths.ProofPath, bundle.Proof); err != nil {
		return nil, err
	}
	if err := readJSON(paths.PublicPath, &bundle.PublicSignals); err != nil {
		return nil, err
	}
	var outputs outputsFile
	if err := readJSON(paths.OutputsPath, &outputs); err != nil {
		return nil, err
	}
	bundle.BundleID = outputs.BundleID
	bundle.CircuitName = outputs.Circuit
	bundle.Outputs = outputs.Outputs
	return bundle, nil
}

func publicInputsOf(bundle *ProofBundle) []string {
	if len(bundle.Outputs) > len(bundle.PublicSignals) {
		return nil
	}
	return bundle.PublicSignals[len(bundle.Outputs):]
}

func readJSON(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &FileIOError{Path: path, Err: err}
	}
	if err := json.Unmarshal(data, target); err != nil {
		return &FileIOError{Path: path, Err: err}
	}
	return nil
}
