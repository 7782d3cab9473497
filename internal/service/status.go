package service

import "github.com/bft-labs/edgevisor/internal/domain"

// Status is a point-in-time view of a service.
type Status struct {
	Name         string              `json:"name"`
	State        domain.State        `json:"-"`
	StateName    string              `json:"state"`
	Generation   uint64              `json:"generation"`
	Paused       bool                `json:"paused,omitempty"`
	Broken       bool                `json:"broken,omitempty"`
	Code         domain.StatusCode   `json:"status_code,omitempty"`
	Failure      string              `json:"failure,omitempty"`
	FailedStage  domain.Stage        `json:"failed_stage,omitempty"`
	Dependencies []domain.Dependency `json:"-"`
	Faults       uint64              `json:"faults,omitempty"`
}

// Status returns the current status of s.
func (s *Service) Status() Status {
	st := s.State()
	out := Status{
		Name:         s.name,
		State:        st,
		StateName:    st.String(),
		Generation:   s.Generation(),
		Paused:       st == domain.StateRunning && s.Paused(),
		Broken:       st == domain.StateBroken,
		Dependencies: s.Dependencies(),
		Faults:       s.Faults(),
	}
	if f := s.LastFailure(); f != nil {
		out.Code = f.Code
		out.FailedStage = f.Stage
		out.Failure = f.Error()
	}
	return out
}
