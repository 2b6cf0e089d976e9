package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLayout(t *testing.T) Layout {
	t.Helper()
	dir := t.TempDir()
	return Layout{
		CircuitName: "draw_35_5",
		BuildDir:    filepath.Join(dir, "build"),
		PtauDir:     filepath.Join(dir, "ptau"),
		PtauName:    "pot12_final.ptau",
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestLayoutPaths(t *testing.T) {
	l := Layout{CircuitName: "draw_35_5", BuildDir: "/b", PtauDir: "/p", PtauName: "pot12_final.ptau"}
	assert.Equal(t, "/b/draw_35_5.r1cs", l.R1CSPath())
	assert.Equal(t, "/b/draw_35_5_js/draw_35_5.wasm", l.WasmPath())
	assert.Equal(t, "/b/draw_35_5_final.zkey", l.ZkeyPath())
	assert.Equal(t, "/b/verification_key.json", l.VkeyPath())
	assert.Equal(t, "/p/pot12_final.ptau", l.PtauPath())
}

func TestValidateReportsAllMissing(t *testing.T) {
	r := NewRegistry(testLayout(t))
	v := r.Validate()
	assert.False(t, v.Complete)
	assert.Len(t, v.Missing, 5)
}

func TestValidateIsIdempotent(t *testing.T) {
	r := NewRegistry(testLayout(t))
	for _, kind := range buildOrder {
		touch(t, r.Descriptor(kind).Path)
	}
	first := r.Validate()
	second := r.Validate()
	assert.True(t, first.Complete)
	assert.True(t, second.Complete)
	assert.Empty(t, second.Missing)
}

func TestPlanBuildFromScratchIsOrdered(t *testing.T) {
	r := NewRegistry(testLayout(t))
	plan := r.PlanBuild()
	require.Len(t, plan, 5)
	var kinds []Kind
	for _, a := range plan {
		kinds = append(kinds, a.Target.Kind)
	}
	assert.Equal(t, []Kind{KindR1CS, KindWASM, KindPTAU, KindZKEY, KindVKEY}, kinds)
}

func TestPlanBuildEmptyWhenComplete(t *testing.T) {
	r := NewRegistry(testLayout(t))
	for _, kind := range buildOrder {
		touch(t, r.Descriptor(kind).Path)
	}
	assert.Empty(t, r.PlanBuild())
}

func TestStalenessPropagates(t *testing.T) {
	r := NewRegistry(testLayout(t))
	for _, kind := range buildOrder {
		touch(t, r.Descriptor(kind).Path)
	}

	r.ForceRebuild(KindR1CS)
	plan := r.PlanBuild()
	require.Len(t, plan, 3)
	assert.Equal(t, KindR1CS, plan[0].Target.Kind)
	assert.Equal(t, "forced", plan[0].Reason)
	assert.Equal(t, KindZKEY, plan[1].Target.Kind)
	assert.Equal(t, KindVKEY, plan[2].Target.Kind)
}

func TestForcedPtauRebuildsKeysButNotCircuit(t *testing.T) {
	r := NewRegistry(testLayout(t))
	for _, kind := range buildOrder {
		touch(t, r.Descriptor(kind).Path)
	}

	r.ForceRebuild(KindPTAU)
	plan := r.PlanBuild()
	require.Len(t, plan, 3)
	assert.Equal(t, KindPTAU, plan[0].Target.Kind)
	assert.Equal(t, KindZKEY, plan[1].Target.Kind)
	assert.Equal(t, KindVKEY, plan[2].Target.Kind)
}

func TestMissingZkeyPlansDownstreamOnly(t *testing.T) {
	r := NewRegistry(testLayout(t))
	for _, kind := range []Kind{KindR1CS, KindWASM, KindPTAU} {
		touch(t, r.Descriptor(kind).Path)
	}
	plan := r.PlanBuild()
	require.Len(t, plan, 2)
	assert.Equal(t, KindZKEY, plan[0].Target.Kind)
	assert.Equal(t, "missing", plan[0].Reason)
	assert.Equal(t, KindVKEY, plan[1].Target.Kind)
}

func TestMarkBuiltClearsForce(t *testing.T) {
	r := NewRegistry(testLayout(t))
	for _, kind := range buildOrder {
		touch(t, r.Descriptor(kind).Path)
	}
	r.ForceRebuild(KindZKEY)
	require.Len(t, r.PlanBuild(), 2)

	r.MarkBuilt(KindZKEY)
	r.MarkBuilt(KindVKEY)
	assert.Empty(t, r.PlanBuild())
}

func TestMissingErrorMessage(t *testing.T) {
	r := NewRegistry(Layout{CircuitName: "draw_35_5", BuildDir: "/b", PtauDir: "/p", PtauName: "pot12_final.ptau"})
	err := &MissingError{Descriptor: r.Descriptor(KindZKEY)}
	assert.Contains(t, err.Error(), "artifact missing")
	assert.Contains(t, err.Error(), "draw_35_5_final.zkey")
}
