// Package layer models the fixed set of infrastructure layers and their
// dependency graph. The graph is declared once in the deployment configuration
// and treated as immutable for the life of the process.
package layer

import (
	"fmt"

	"github.com/stratum-ci/stratum/internal/errors"
)

// Layer is a named grouping of related infrastructure resources with declared
// upstream dependencies.
type Layer struct {
	// Name identifies the layer (e.g. "networking").
	Name string

	// Path is the layer's root directory, relative to the repository root.
	Path string

	// Dependencies lists upstream layer names that must run first.
	Dependencies []string

	// Modules lists shared module names this layer consumes. A change to one
	// of these modules re-plans the layer.
	Modules []string
}

// Graph is the immutable layer dependency graph, built once at startup.
type Graph struct {
	byName map[string]*Layer
	// layers preserves declaration order, used as the deterministic tie-breaker
	// for the topological sort.
	layers []*Layer
}

// ErrUnknownLayer is returned when a layer name is not part of the graph.
var ErrUnknownLayer = errors.Errorf("unknown layer")

// NewGraph builds a Graph from the declared layers. It fails on duplicate
// names, dependencies on undeclared layers, and dependency cycles.
func NewGraph(layers []*Layer) (*Graph, error) {
	g := &Graph{
		byName: make(map[string]*Layer, len(layers)),
		layers: layers,
	}

	for _, l := range layers {
		if _, ok := g.byName[l.Name]; ok {
			return nil, errors.Errorf("layer %q declared more than once", l.Name)
		}

		g.byName[l.Name] = l
	}

	for _, l := range layers {
		for _, dep := range l.Dependencies {
			if _, ok := g.byName[dep]; !ok {
				return nil, errors.Errorf("layer %q depends on undeclared layer %q", l.Name, dep)
			}
		}
	}

	if cycle := g.findCycle(); len(cycle) > 0 {
		return nil, errors.Errorf("dependency cycle between layers: %v", cycle)
	}

	return g, nil
}

// Layer returns the layer with the given name.
func (g *Graph) Layer(name string) (*Layer, error) {
	l, ok := g.byName[name]
	if !ok {
		return nil, errors.Errorf("%w: %q", ErrUnknownLayer, name)
	}

	return l, nil
}

// Names returns all layer names in declaration order.
func (g *Graph) Names() []string {
	names := make([]string, len(g.layers))
	for i, l := range g.layers {
		names[i] = l.Name
	}

	return names
}

// Len returns the number of layers in the graph.
func (g *Graph) Len() int {
	return len(g.layers)
}

// TopologicalOrder returns all layer names sorted so that every layer appears
// after all of its dependencies. Layers with no dependency relationship keep
// their declaration order, which makes the result deterministic.
func (g *Graph) TopologicalOrder() []string {
	order := make([]string, 0, len(g.layers))
	visited := make(map[string]bool, len(g.layers))

	var visit func(l *Layer)

	visit = func(l *Layer) {
		if visited[l.Name] {
			return
		}

		visited[l.Name] = true

		for _, dep := range l.Dependencies {
			visit(g.byName[dep])
		}

		order = append(order, l.Name)
	}

	for _, l := range g.layers {
		visit(l)
	}

	return order
}

// Ancestors returns the transitive upstream dependencies of the named layer,
// not including the layer itself.
func (g *Graph) Ancestors(name string) ([]string, error) {
	l, err := g.Layer(name)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)

	var collect func(l *Layer)

	collect = func(l *Layer) {
		for _, dep := range l.Dependencies {
			if seen[dep] {
				continue
			}

			seen[dep] = true

			collect(g.byName[dep])
		}
	}

	collect(l)

	// Report ancestors in topological order for stable output.
	var out []string

	for _, candidate := range g.TopologicalOrder() {
		if seen[candidate] {
			out = append(out, candidate)
		}
	}

	return out, nil
}

// findCycle returns one dependency cycle if the graph has any, nil otherwise.
func (g *Graph) findCycle() []string {
	const (
		unvisited = iota
		inProgress
		done
	)

	state := make(map[string]int, len(g.layers))

	var cycle []string

	var visit func(l *Layer, path []string) bool

	visit = func(l *Layer, path []string) bool {
		state[l.Name] = inProgress
		path = append(path, l.Name)

		for _, dep := range l.Dependencies {
			switch state[dep] {
			case inProgress:
				cycle = append(path, dep)
				return true
			case unvisited:
				if visit(g.byName[dep], path) {
					return true
				}
			}
		}

		state[l.Name] = done

		return false
	}

	for _, l := range g.layers {
		if state[l.Name] == unvisited && visit(l, nil) {
			return cycle
		}
	}

	return nil
}

// String implements fmt.Stringer for diagnostics.
func (l *Layer) String() string {
	return fmt.Sprintf("layer(%s deps=%v)", l.Name, l.Dependencies)
}
