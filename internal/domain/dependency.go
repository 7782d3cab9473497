package domain

import (
	"fmt"
	"strings"
)

// DependencyType tells how a dependant reacts to its dependency.
type DependencyType int

const (
	// Hard dependencies gate startup and restart the dependant on failure.
	Hard DependencyType = iota
	// Soft dependencies only gate the dependant's initial start.
	Soft
)

// String returns "HARD" or "SOFT".
func (t DependencyType) String() string {
	if t == Soft {
		return "SOFT"
	}
	return "HARD"
}

// ParseDependencyType matches s case-insensitively against the type names,
// accepting any non-empty prefix ("s", "Har").
func ParseDependencyType(s string) (DependencyType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty dependency type", ErrInvalidDependency)
	}
	upper := strings.ToUpper(s)
	switch {
	case strings.HasPrefix("HARD", upper):
		return Hard, nil
	case strings.HasPrefix("SOFT", upper):
		return Soft, nil
	}
	return 0, fmt.Errorf("%w: unknown dependency type %q", ErrInvalidDependency, s)
}

// Dependency is an edge from a dependant to the named service.
type Dependency struct {
	Name string
	Type DependencyType
}

// String formats d as "name:TYPE".
func (d Dependency) String() string {
	return d.Name + ":" + d.Type.String()
}

// ParseDependency parses "name" or "name:TYPE". The default type is HARD.
func ParseDependency(s string) (Dependency, error) {
	name, typ, found := strings.Cut(strings.TrimSpace(s), ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return Dependency{}, fmt.Errorf("%w: empty name in %q", ErrInvalidDependency, s)
	}
	d := Dependency{Name: name, Type: Hard}
	if found {
		t, err := ParseDependencyType(typ)
		if err != nil {
			return Dependency{}, err
		}
		d.Type = t
	}
	return d, nil
}

// ParseDependencies parses a list of dependency declarations. A service
// named twice keeps the last declared type at its first position.
func ParseDependencies(decls []string) ([]Dependency, error) {
	out := make([]Dependency, 0, len(decls))
	index := make(map[string]int, len(decls))
	for _, decl := range decls {
		d, err := ParseDependency(decl)
		if err != nil {
			return nil, err
		}
		if i, ok := index[d.Name]; ok {
			out[i].Type = d.Type
			continue
		}
		index[d.Name] = len(out)
		out = append(out, d)
	}
	return out, nil
}
