// Package artifacts models the five setup artifact kinds and their fixed
// dependency edges, and decides what a setup pass must (re)build. It holds
// no cryptographic logic; it is a dependency-aware scheduler over file
// existence and staleness.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
)

type Kind string

const (
	KindR1CS Kind = "r1cs"
	KindWASM Kind = "wasm"
	KindPTAU Kind = "ptau"
	KindZKEY Kind = "zkey"
	KindVKEY Kind = "verification_key"
)

// buildOrder is the fixed leaves-first topological order of the graph.
var buildOrder = []Kind{KindR1CS, KindWASM, KindPTAU, KindZKEY, KindVKEY}

// Layout maps a circuit identity onto the persisted file layout:
// {circuit}.r1cs, {circuit}_js/{circuit}.wasm, {circuit}_final.zkey and
// verification_key.json inside the build directory, and the shared
// reference-string file {ptauName} inside the ptau directory.
type Layout struct {
	CircuitName string
	BuildDir    string
	PtauDir     string
	PtauName    string
}

func (l Layout) R1CSPath() string {
	return filepath.Join(l.BuildDir, l.CircuitName+".r1cs")
}

func (l Layout) WasmPath() string {
	return filepath.Join(l.BuildDir, l.CircuitName+"_js", l.CircuitName+".wasm")
}

func (l Layout) ZkeyPath() string {
	return filepath.Join(l.BuildDir, l.CircuitName+"_final.zkey")
}

func (l Layout) VkeyPath() string {
	return filepath.Join(l.BuildDir, "verification_key.json")
}

func (l Layout) PtauPath() string {
	return filepath.Join(l.PtauDir, l.PtauName)
}

// Descriptor is one node of the build graph. PresentOnDisk is re-evaluated
// on every Validate pass; the file itself is owned by the filesystem once
// the setup driver has produced it.
type Descriptor struct {
	Kind          Kind
	Identity      string
	Path          string
	DependsOn     []*Descriptor
	PresentOnDisk bool

	forced bool
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s (%s)", d.Kind, d.Path)
}

// MissingError reports a required artifact that is absent and was not
// auto-repairable in the current call.
type MissingError struct {
	Descriptor *Descriptor
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("artifact missing: %s", e.Descriptor)
}

// Registry holds the five descriptors of one circuit configuration.
type Registry struct {
	layout Layout
	nodes  map[Kind]*Descriptor
}

func NewRegistry(layout Layout) *Registry {
	r1cs := &Descriptor{Kind: KindR1CS, Identity: layout.CircuitName, Path: layout.R1CSPath()}
	wasm := &Descriptor{Kind: KindWASM, Identity: layout.CircuitName, Path: layout.WasmPath()}
	ptau := &Descriptor{Kind: KindPTAU, Identity: layout.PtauName, Path: layout.PtauPath()}
	zkey := &Descriptor{
		Kind:      KindZKEY,
		Identity:  layout.CircuitName,
		Path:      layout.ZkeyPath(),
		DependsOn: []*Descriptor{r1cs, ptau},
	}
	vkey := &Descriptor{
		Kind:      KindVKEY,
		Identity:  layout.CircuitName,
		Path:      layout.VkeyPath(),
		DependsOn: []*Descriptor{zkey},
	}
	return &Registry{
		layout: layout,
		nodes: map[Kind]*Descriptor{
			KindR1CS: r1cs,
			KindWASM: wasm,
			KindPTAU: ptau,
			KindZKEY: zkey,
			KindVKEY: vkey,
		},
	}
}

func (r *Registry) Layout() Layout { return r.layout }

func (r *Registry) Descriptor(kind Kind) *Descriptor { return r.nodes[kind] }

// Validation is the outcome of one existence pass over the graph.
type Validation struct {
	Complete bool
	Missing  []*Descriptor
}

// Validate re-checks every node against the filesystem. It never builds
// anything; run it as often as needed.
func (r *Registry) Validate() Validation {
	v := Validation{Complete: true}
	for _, kind := range buildOrder {
		node := r.nodes[kind]
		_, err := os.Stat(node.Path)
		node.PresentOnDisk = err == nil
		if !node.PresentOnDisk {
			v.Complete = false
			v.Missing = append(v.Missing, node)
		}
	}
	return v
}

// ForceRebuild marks the given kinds dirty so the next plan regenerates
// them and everything downstream of them, regardless of what exists on
// disk.
func (r *Registry) ForceRebuild(kinds ...Kind) {
	for _, kind := range kinds {
		if node, ok := r.nodes[kind]; ok {
			node.forced = true
		}
	}
}

// BuildAction is one step of a build plan, in dependency order.
type BuildAction struct {
	Target *Descriptor
	Reason string
}

// PlanBuild computes the ordered list of actions that would bring the graph
// to a complete state. A node is planned when it is absent, forced, or any
// of its dependencies is planned; existence alone is not sufficient
// evidence of validity once an ancestor changed. Planning twice with no
// change in between yields an empty second plan.
func (r *Registry) PlanBuild() []BuildAction {
	r.Validate()

	planned := make(map[Kind]bool)
	var plan []BuildAction
	for _, kind := range buildOrder {
		node := r.nodes[kind]
		reason := ""
		switch {
		case node.forced:
			reason = "forced"
		case !node.PresentOnDisk:
			reason = "missing"
		default:
			for _, dep := range node.DependsOn {
				if planned[dep.Kind] {
					reason = fmt.Sprintf("stale: %s rebuilt", dep.Kind)
					break
				}
			}
		}
		if reason == "" {
			continue
		}
		planned[kind] = true
		plan = append(plan, BuildAction{Target: node, Reason: reason})
	}
	return plan
}

// MarkBuilt records a successful build of one node and clears its forced
// flag. The node's file is expected to exist afterwards; Validate confirms.
func (r *Registry) MarkBuilt(kind Kind) {
	if node, ok := r.nodes[kind]; ok {
		node.forced = false
		node.PresentOnDisk = true
	}
}
