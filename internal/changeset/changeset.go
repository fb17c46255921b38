package changeset

import (
	"context"
	"strings"

	"github.com/stratum-ci/stratum/internal/config"
	"github.com/stratum-ci/stratum/internal/layer"
	"github.com/stratum-ci/stratum/internal/util"
	"github.com/stratum-ci/stratum/pkg/log"
)

// ChangeSet is the result of resolving the diff between two revisions.
// It is ephemeral: computed per invocation, never persisted.
type ChangeSet struct {
	// Layers holds the names of layers with changed files, in graph
	// declaration order. When Forced is true it holds every known layer.
	Layers []string `json:"layers"`

	// Modules holds the names of shared modules with changed files.
	Modules []string `json:"modules"`

	// Forced is set when a workflow-definition file changed (or when the base
	// ref could not be resolved); consumers treat all layers as changed.
	Forced bool `json:"forced"`
}

// ContainsLayer reports whether the named layer is part of the change set.
func (cs *ChangeSet) ContainsLayer(name string) bool {
	return cs.Forced || util.ListContainsElement(cs.Layers, name)
}

// ContainsModule reports whether the named module is part of the change set.
func (cs *ChangeSet) ContainsModule(name string) bool {
	return util.ListContainsElement(cs.Modules, name)
}

// Differ lists changed paths between two refs. *GitRunner is the production
// implementation.
type Differ interface {
	Diff(ctx context.Context, baseRef, headRef string) ([]string, error)
	RefExists(ref string) bool
}

// Resolver attributes changed file paths to layers and modules.
type Resolver struct {
	differ  Differ
	graph   *layer.Graph
	changes config.ChangesConfig
}

// NewResolver returns a Resolver over the given differ and layer graph.
func NewResolver(differ Differ, graph *layer.Graph, changes config.ChangesConfig) *Resolver {
	return &Resolver{
		differ:  differ,
		graph:   graph,
		changes: changes,
	}
}

// Resolve computes the ChangeSet between baseRef and headRef.
//
// When baseRef cannot be resolved (first commit, shallow CI checkout) the
// whole tree is treated as changed: the result carries every known layer and
// the forced flag. That fallback is deliberate policy, not an error.
func (r *Resolver) Resolve(ctx context.Context, l log.Logger, baseRef, headRef string) (*ChangeSet, error) {
	if !r.differ.RefExists(baseRef) {
		l.Warnf("Base ref %q cannot be resolved, treating the entire tree as changed", baseRef)

		return r.forcedChangeSet(), nil
	}

	paths, err := r.differ.Diff(ctx, baseRef, headRef)
	if err != nil {
		return nil, err
	}

	l.Debugf("Resolved %d changed paths between %s and %s", len(paths), baseRef, headRef)

	cs := &ChangeSet{}
	changedLayers := map[string]bool{}

	for _, path := range paths {
		if path == "" {
			continue
		}

		if underRoot(path, r.changes.WorkflowsRoot) {
			l.Debugf("Workflow definition %s changed, forcing all layers", path)

			cs.Forced = true

			continue
		}

		// Each path belongs to at most one layer or module; layer paths win
		// over the generic roots because they are longer prefixes.
		if name, ok := r.attributeLayer(path); ok {
			changedLayers[name] = true
			continue
		}

		if name, ok := r.attributeModule(path); ok {
			if !util.ListContainsElement(cs.Modules, name) {
				cs.Modules = append(cs.Modules, name)
			}
		}
	}

	// Graph declaration order keeps the output deterministic.
	for _, name := range r.graph.Names() {
		if cs.Forced || changedLayers[name] {
			cs.Layers = append(cs.Layers, name)
		}
	}

	return cs, nil
}

func (r *Resolver) forcedChangeSet() *ChangeSet {
	return &ChangeSet{
		Layers: r.graph.Names(),
		Forced: true,
	}
}

// attributeLayer matches the path against each layer root and returns the
// longest match.
func (r *Resolver) attributeLayer(path string) (string, bool) {
	var (
		bestName string
		bestLen  = -1
	)

	for _, name := range r.graph.Names() {
		l, _ := r.graph.Layer(name)

		if underRoot(path, l.Path) && len(l.Path) > bestLen {
			bestName = name
			bestLen = len(l.Path)
		}
	}

	return bestName, bestLen >= 0
}

// attributeModule names the module as the first path segment under the
// modules root.
func (r *Resolver) attributeModule(path string) (string, bool) {
	if !underRoot(path, r.changes.ModulesRoot) {
		return "", false
	}

	rest := strings.TrimPrefix(path, r.changes.ModulesRoot+"/")

	name, _, _ := strings.Cut(rest, "/")
	if name == "" {
		return "", false
	}

	return name, true
}

// underRoot reports whether path is the root itself or below it. Paths come
// from git and always use forward slashes.
func underRoot(path, root string) bool {
	if root == "" {
		return false
	}

	return path == root || strings.HasPrefix(path, root+"/")
}
