package setup

import (
	"fmt"
	"os"
	"path/filepath"

	"zkdraw/draw-prover/artifacts"
	"zkdraw/draw-prover/logging"
)

// Driver walks a registry's build plan and runs the stage responsible for
// each planned artifact. Stages that exist on disk and are not stale are
// never rerun; in particular an existing reference string is reused as-is,
// since regenerating it silently would orphan every key derived from it.
type Driver struct {
	Compiler  Compiler
	Reference ReferenceStringCeremony
	Keys      KeyCeremony
	Exporter  KeyExporter

	// Power is the reference-string size exponent (2^Power constraints).
	Power uint8
	// SRSEntropy and ZKeyEntropy are the ceremony contributions for the
	// phase-1 and phase-2 stages respectively.
	SRSEntropy  []byte
	ZKeyEntropy []byte
}

// EnsureArtifacts brings the registry to a complete state, building only
// what the plan requires. On a stage failure the partially written target
// is removed so a later pass sees it as missing rather than valid.
func (d *Driver) EnsureArtifacts(reg *artifacts.Registry) error {
	plan := reg.PlanBuild()
	if len(plan) == 0 {
		logging.Logger().Info().
			Str("circuit", reg.Layout().CircuitName).
			Msg("all artifacts present")
		return nil
	}

	layout := reg.Layout()
	compiled := false
	for _, action := range plan {
		logging.Logger().Info().
			Str("artifact", string(action.Target.Kind)).
			Str("reason", action.Reason).
			Msg("building artifact")

		var err error
		switch action.Target.Kind {
		case artifacts.KindR1CS, artifacts.KindWASM:
			if compiled {
				break
			}
			_, err = d.Compiler.Compile(layout)
			compiled = true
		case artifacts.KindPTAU:
			err = d.buildReferenceString(layout)
		case artifacts.KindZKEY:
			err = d.buildProvingKey(layout)
		case artifacts.KindVKEY:
			err = d.exportVerificationKey(layout)
		default:
			err = fmt.Errorf("unknown artifact kind %q", action.Target.Kind)
		}
		if err != nil {
			// The compile stage writes both files; a mid-write failure can
			// leave the sibling truncated but present.
			switch action.Target.Kind {
			case artifacts.KindR1CS, artifacts.KindWASM:
				removePartial(layout.R1CSPath())
				removePartial(layout.WasmPath())
			default:
				removePartial(action.Target.Path)
			}
			return fmt.Errorf("building %s: %w", action.Target.Kind, err)
		}
		reg.MarkBuilt(action.Target.Kind)
	}

	if v := reg.Validate(); !v.Complete {
		return &artifacts.MissingError{Descriptor: v.Missing[0]}
	}
	return nil
}

func (d *Driver) buildReferenceString(layout artifacts.Layout) error {
	if err := d.Reference.NewAccumulator(d.Power); err != nil {
		return err
	}
	if err := d.Reference.Contribute(d.SRSEntropy); err != nil {
		return err
	}
	_, err := d.Reference.PreparePhase2(layout)
	return err
}

func (d *Driver) buildProvingKey(layout artifacts.Layout) error {
	if err := d.Keys.NewProvingKey(layout.R1CSPath(), layout.PtauPath()); err != nil {
		return err
	}
	_, err := d.Keys.Contribute(d.ZKeyEntropy, layout)
	return err
}

func (d *Driver) exportVerificationKey(layout artifacts.Layout) error {
	data, err := d.Exporter.ExportVerificationKey(layout.ZkeyPath())
	if err != nil {
		return err
	}
	path := layout.VkeyPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}

func removePartial(path string) {
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			logging.Logger().Warn().
				Str("path", path).
				Err(err).
				Msg("could not remove partial artifact")
		}
	}
}
