package engine

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// featureGraph holds the "after" edges between the features of one run.
// Features always execute in declaration order; the graph only validates it.
type featureGraph struct {
	// order is the declaration order of feature names
	order []string

	// position maps feature names to their declaration index
	position map[string]int

	// after maps a feature to the features it declared it runs after
	after map[string][]string
}

func newFeatureGraph(features []Feature, logger zerolog.Logger) *featureGraph {
	g := &featureGraph{
		order:    make([]string, 0, len(features)),
		position: make(map[string]int, len(features)),
		after:    make(map[string][]string, len(features)),
	}
	for i, f := range features {
		g.order = append(g.order, f.Name)
		g.position[f.Name] = i
	}
	for _, f := range features {
		for _, dep := range f.After {
			if _, ok := g.position[dep]; !ok {
				logger.Debug().
					Str("feature", f.Name).
					Str("after", dep).
					Msg("Ignoring ordering hint for absent feature")
				continue
			}
			g.after[f.Name] = append(g.after[f.Name], dep)
		}
	}
	return g
}

// validate rejects cycles and any "after" edge that declaration order contradicts.
func (g *featureGraph) validate() error {
	if err := g.detectCycles(); err != nil {
		return err
	}
	for _, name := range g.order {
		for _, dep := range g.after[name] {
			if g.position[dep] > g.position[name] {
				return NewConfigurationError(
					fmt.Sprintf("feature must run after %q but is declared before it", dep), nil).
					WithCode(ErrCodeOrdering).
					WithFeature(name)
			}
		}
	}
	return nil
}

// detectCycles uses depth-first search to find circular "after" declarations.
func (g *featureGraph) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, name := range g.order {
		if visited[name] {
			continue
		}
		if cycle := g.detectCyclesUtil(name, visited, recStack, nil); cycle != nil {
			return NewConfigurationError(
				fmt.Sprintf("circular feature ordering: %s", strings.Join(cycle, " -> ")), nil).
				WithCode(ErrCodeOrdering).
				WithFeature(cycle[0])
		}
	}
	return nil
}

func (g *featureGraph) detectCyclesUtil(
	name string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) []string {
	visited[name] = true
	recStack[name] = true
	path = append(path, name)

	for _, dep := range g.after[name] {
		if !visited[dep] {
			if cycle := g.detectCyclesUtil(dep, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dep] {
			for i, id := range path {
				if id == dep {
					return append(append([]string(nil), path[i:]...), dep)
				}
			}
		}
	}

	recStack[name] = false
	return nil
}

// FeatureGraphDOT renders the feature order and its "after" edges in DOT format.
func FeatureGraphDOT(features []Feature) string {
	g := newFeatureGraph(features, zerolog.Nop())

	var sb strings.Builder
	sb.WriteString("digraph Features {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for i, name := range g.order {
		sb.WriteString(fmt.Sprintf("  %q [label=\"%d. %s\"];\n", name, i+1, name))
	}
	if len(g.order) > 0 {
		sb.WriteString("\n")
	}
	for i := 1; i < len(g.order); i++ {
		sb.WriteString(fmt.Sprintf("  %q -> %q [style=dotted];\n", g.order[i-1], g.order[i]))
	}
	for _, name := range g.order {
		for _, dep := range g.after[name] {
			sb.WriteString(fmt.Sprintf("  %q -> %q;\n", dep, name))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
