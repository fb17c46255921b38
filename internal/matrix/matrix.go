// Package matrix turns a change set plus an environment/layer/operation
// selection into the ordered list of work items a run executes.
package matrix

import (
	"fmt"

	"github.com/stratum-ci/stratum/internal/changeset"
	"github.com/stratum-ci/stratum/internal/config"
	"github.com/stratum-ci/stratum/internal/errors"
)

// SelectorAll selects every declared layer or environment.
const SelectorAll = "all"

// Operation is one of the named terraform operations a work item performs.
type Operation string

const (
	OperationPlan    Operation = "plan"
	OperationApply   Operation = "apply"
	OperationDestroy Operation = "destroy"
)

// Operations lists all valid operations.
var Operations = []Operation{OperationPlan, OperationApply, OperationDestroy}

// ParseOperation validates an operation name.
func ParseOperation(str string) (Operation, error) {
	for _, op := range Operations {
		if string(op) == str {
			return op, nil
		}
	}

	return "", errors.Errorf("unknown operation %q, must be one of: plan, apply, destroy", str)
}

// WorkItem is one unit of planned work. It has no identity beyond its triple.
type WorkItem struct {
	Layer       string    `json:"layer"`
	Environment string    `json:"environment"`
	Operation   Operation `json:"operation"`
}

// String implements fmt.Stringer; the format shows up in logs and reports.
func (w WorkItem) String() string {
	return fmt.Sprintf("%s %s/%s", w.Operation, w.Environment, w.Layer)
}

// Request selects what a run should cover.
type Request struct {
	// Changes restricts layer selection to changed layers. Nil means no
	// change detection was requested and every layer is in scope.
	Changes *changeset.ChangeSet

	// Environment is a declared environment name or SelectorAll.
	Environment string

	// Layer is a declared layer name or SelectorAll. Selecting a specific
	// layer bypasses change detection and dependency ordering; ordering is
	// then the caller's responsibility.
	Layer string

	// Operation to perform for every emitted work item.
	Operation Operation
}

// Builder emits ordered work items for a request against the fixed
// configuration.
type Builder struct {
	cfg *config.Config

	// propagateDependencies re-plans layers whose transitive upstream
	// dependencies changed even when their own files did not.
	propagateDependencies bool
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithoutDependencyPropagation disables re-planning of layers whose upstream
// dependencies changed.
func WithoutDependencyPropagation() BuilderOption {
	return func(b *Builder) {
		b.propagateDependencies = false
	}
}

// NewBuilder returns a Builder over the given configuration.
func NewBuilder(cfg *config.Config, opts ...BuilderOption) *Builder {
	b := &Builder{
		cfg:                   cfg,
		propagateDependencies: true,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Build emits the ordered work items for the request.
//
// For apply/plan the layers come out in topological order of the dependency
// graph; for destroy the order is the exact reverse, and protected
// environments are rejected before anything is emitted.
func (b *Builder) Build(req Request) ([]WorkItem, error) {
	if _, err := ParseOperation(string(req.Operation)); err != nil {
		return nil, err
	}

	environments, err := b.selectEnvironments(req)
	if err != nil {
		return nil, err
	}

	if req.Operation == OperationDestroy {
		for _, env := range environments {
			if err := CheckDestroyAllowed(env); err != nil {
				return nil, err
			}
		}
	}

	layers, err := b.selectLayers(req)
	if err != nil {
		return nil, err
	}

	items := make([]WorkItem, 0, len(environments)*len(layers))

	for _, env := range environments {
		for _, layerName := range layers {
			items = append(items, WorkItem{
				Layer:       layerName,
				Environment: env.Name,
				Operation:   req.Operation,
			})
		}
	}

	return items, nil
}

func (b *Builder) selectEnvironments(req Request) ([]*config.Environment, error) {
	if req.Environment != SelectorAll {
		env, err := b.cfg.Environment(req.Environment)
		if err != nil {
			return nil, err
		}

		return []*config.Environment{env}, nil
	}

	return b.cfg.Environments, nil
}

// selectLayers returns the layer names in execution order for the request.
func (b *Builder) selectLayers(req Request) ([]string, error) {
	if req.Layer != SelectorAll {
		if _, err := b.cfg.Graph.Layer(req.Layer); err != nil {
			return nil, err
		}

		return []string{req.Layer}, nil
	}

	selected, err := b.selectChanged(req.Changes)
	if err != nil {
		return nil, err
	}

	order := b.cfg.Graph.TopologicalOrder()

	if req.Operation == OperationDestroy {
		reverse(order)
	}

	layers := make([]string, 0, len(selected))

	for _, name := range order {
		if selected[name] {
			layers = append(layers, name)
		}
	}

	return layers, nil
}

// selectChanged computes the set of layers a change set pulls into the run.
func (b *Builder) selectChanged(cs *changeset.ChangeSet) (map[string]bool, error) {
	selected := map[string]bool{}

	if cs == nil || cs.Forced {
		for _, name := range b.cfg.Graph.Names() {
			selected[name] = true
		}

		return selected, nil
	}

	for _, name := range cs.Layers {
		if _, err := b.cfg.Graph.Layer(name); err != nil {
			return nil, err
		}

		selected[name] = true
	}

	// A changed shared module pulls in every layer that declares it.
	for _, name := range b.cfg.Graph.Names() {
		l, _ := b.cfg.Graph.Layer(name)

		for _, module := range l.Modules {
			if cs.ContainsModule(module) {
				selected[name] = true
			}
		}
	}

	if !b.propagateDependencies {
		return selected, nil
	}

	// A layer whose upstream dependency changed is re-planned too, so drift
	// introduced by upstream outputs is caught in the same run.
	for _, name := range b.cfg.Graph.Names() {
		if selected[name] {
			continue
		}

		ancestors, err := b.cfg.Graph.Ancestors(name)
		if err != nil {
			return nil, err
		}

		for _, ancestor := range ancestors {
			if selected[ancestor] {
				selected[name] = true
				break
			}
		}
	}

	return selected, nil
}

func reverse(list []string) {
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
}
