// Package dag layers a task batch by its dependencies.
//
// [Build] validates every dependency reference, rejects cycles, and groups the
// tasks into layers: layer 0 holds every task without dependencies, and layer k
// holds the tasks whose dependencies all sit in layers 0..k-1. Tasks within a
// layer are mutually independent and keep their input order, so the same batch
// always yields the same plan.
package dag

import (
	"github.com/Iron-Ham/paragent/internal/errors"
	"github.com/Iron-Ham/paragent/internal/task"
)

// Plan is the layered execution order of a batch.
type Plan struct {
	layers  [][]task.Spec
	layerOf map[string]int
	total   int
}

// Layers returns the layers in execution order. The returned slices must not
// be modified.
func (p *Plan) Layers() [][]task.Spec {
	if p == nil {
		return nil
	}
	return p.layers
}

// LayerOf returns the layer index assigned to a task id.
func (p *Plan) LayerOf(id string) (int, bool) {
	if p == nil {
		return 0, false
	}
	idx, ok := p.layerOf[id]
	return idx, ok
}

// Len returns the number of tasks in the plan.
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return p.total
}

// IDs returns the task ids of each layer.
func (p *Plan) IDs() [][]string {
	out := make([][]string, 0, len(p.Layers()))
	for _, layer := range p.Layers() {
		ids := make([]string, len(layer))
		for i, spec := range layer {
			ids[i] = spec.ID
		}
		out = append(out, ids)
	}
	return out
}

// Build computes the layered plan for the given specs.
//
// It fails with ErrUnknownDependency when a dependency names an undeclared
// task, and with ErrCycleDetected when the remaining tasks all wait on each
// other. Ties within a layer are broken by input order.
func Build(specs []task.Spec) (*Plan, error) {
	index := make(map[string]int, len(specs))
	for i, spec := range specs {
		index[spec.ID] = i
	}

	// Compute in-degree and reverse edges for the layering
	inDegree := make([]int, len(specs))
	dependents := make([][]int, len(specs))
	for i, spec := range specs {
		for _, depID := range spec.Dependencies {
			depIdx, ok := index[depID]
			if !ok {
				return nil, errors.NewUnknownDependencyError(spec.ID, depID)
			}
			inDegree[i]++
			dependents[depIdx] = append(dependents[depIdx], i)
		}
	}

	var current []int
	for i := range specs {
		if inDegree[i] == 0 {
			current = append(current, i)
		}
	}

	plan := &Plan{layerOf: make(map[string]int, len(specs)), total: len(specs)}
	placed := 0
	for len(current) > 0 {
		layer := make([]task.Spec, len(current))
		for j, idx := range current {
			layer[j] = specs[idx]
			plan.layerOf[specs[idx].ID] = len(plan.layers)
		}
		plan.layers = append(plan.layers, layer)
		placed += len(current)

		// Collect the next layer, then restore input order
		var next []int
		for _, idx := range current {
			for _, dep := range dependents[idx] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		sortInts(next)
		current = next
	}

	if placed != len(specs) {
		var remaining []string
		for i, spec := range specs {
			if inDegree[i] > 0 {
				remaining = append(remaining, spec.ID)
			}
		}
		return nil, errors.NewCycleError(remaining)
	}

	return plan, nil
}

// sortInts sorts indexes ascending using insertion sort since the slices are
// typically small.
func sortInts(ids []int) {
	for i := 1; i < len(ids); i++ {
		key := ids[i]
		j := i - 1
		for j >= 0 && ids[j] > key {
			ids[j+1] = ids[j]
			j--
		}
		ids[j+1] = key
	}
}
