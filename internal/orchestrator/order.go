package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bft-labs/edgevisor/internal/domain"
)

// graph is the dependency graph in declaration order.
type graph struct {
	names []string
	edges map[string][]string
}

// analysis is the result of sorting a graph.
type analysis struct {
	// order lists dependencies before their dependants. Back edges of
	// cycles and missing dependencies are skipped.
	order   []string
	cycles  [][]string
	missing map[string][]string
}

func (a analysis) err() error {
	var errs []error
	for _, c := range a.cycles {
		errs = append(errs, fmt.Errorf("%w: %s", domain.ErrDependencyCycle, strings.Join(c, " -> ")))
	}
	for _, name := range a.order {
		for _, dep := range a.missing[name] {
			errs = append(errs, fmt.Errorf("%w: %s depends on %s", domain.ErrUnknownDependency, name, dep))
		}
	}
	return errors.Join(errs...)
}

// affected returns the causes that make each service unlaunchable.
func (a analysis) affected() map[string]error {
	out := map[string]error{}
	for _, c := range a.cycles {
		err := fmt.Errorf("%w: %s", domain.ErrDependencyCycle, strings.Join(c, " -> "))
		for _, name := range c[:len(c)-1] {
			if _, ok := out[name]; !ok {
				out[name] = err
			}
		}
	}
	for name, deps := range a.missing {
		if _, ok := out[name]; !ok {
			out[name] = fmt.Errorf("%w: %s depends on %s", domain.ErrUnknownDependency, name, strings.Join(deps, ", "))
		}
	}
	return out
}

// sort computes a topological order by depth-first search, visiting
// services and their dependencies in declaration order.
func (g graph) sort() analysis {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.names))
	known := make(map[string]bool, len(g.names))
	for _, n := range g.names {
		known[n] = true
	}
	res := analysis{missing: map[string][]string{}}
	var stack []string

	var visit func(string)
	visit = func(node string) {
		color[node] = grey
		stack = append(stack, node)
		for _, dep := range g.edges[node] {
			if !known[dep] {
				res.missing[node] = append(res.missing[node], dep)
				continue
			}
			switch color[dep] {
			case white:
				visit(dep)
			case grey:
				res.cycles = append(res.cycles, cycleFrom(stack, dep))
			}
		}
		stack = stack[:len(stack)-1]
		color[node] = black
		res.order = append(res.order, node)
	}

	for _, n := range g.names {
		if color[n] == white {
			visit(n)
		}
	}
	return res
}

// cycleFrom returns the path of stack starting at dep, closed by dep.
func cycleFrom(stack []string, dep string) []string {
	for i, n := range stack {
		if n == dep {
			c := append([]string(nil), stack[i:]...)
			return append(c, dep)
		}
	}
	return []string{dep, dep}
}
