package ports

// ResourceSpec holds the resource limits applied to a service.
type ResourceSpec struct {
	// CPUs is the number of CPU cores; zero means unlimited.
	CPUs float64
	// MemoryKB is the memory ceiling in kilobytes; zero means unlimited.
	MemoryKB int64
}

// IsZero reports whether no limit is set.
func (r ResourceSpec) IsZero() bool { return r.CPUs == 0 && r.MemoryKB == 0 }

// ResourceController applies limits and suspends services.
type ResourceController interface {
	Limit(service string, spec ResourceSpec) error
	Pause(service string) error
	Resume(service string) error
	IsPaused(service string) bool
}
