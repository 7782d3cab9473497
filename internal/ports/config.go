package ports

// ChangeKind classifies a configuration change.
type ChangeKind int

// Change kinds.
const (
	ChangeCreated ChangeKind = iota
	ChangeUpdated
	ChangeRemoved
)

// String returns the lower-case kind name.
func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	}
	return "unknown"
}

// Change is delivered to subscribers for every affected leaf.
type Change struct {
	Kind  ChangeKind
	Path  []string
	Value any
}

// ConfigSource is a hierarchical namespace of configuration values.
type ConfigSource interface {
	// Find returns the value at path. Interior nodes are returned as a
	// detached map[string]any copy.
	Find(path ...string) (any, bool)

	// Subscribe calls fn for every change at or below path and returns a
	// function that cancels the subscription. Callbacks run outside the
	// source's locks.
	Subscribe(fn func(Change), path ...string) (cancel func())
}
