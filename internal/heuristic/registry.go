package heuristic

import "github.com/eliteGoblin/bidbot/internal/domain"

// Registry holds detection heuristics in precedence order.
type Registry struct {
	heuristics []Heuristic
}

// NewDefaultRegistry creates a registry with button, timer and status
// heuristics, in that order.
func NewDefaultRegistry() *Registry {
	r := &Registry{}

	r.Register(NewButtonEnabled())
	r.Register(NewTimerExpiry())
	r.Register(NewStatusText())

	return r
}

// NewRegistryWithHeuristics creates a registry with custom heuristics (for testing).
func NewRegistryWithHeuristics(heuristics ...Heuristic) *Registry {
	r := &Registry{}
	for _, h := range heuristics {
		r.Register(h)
	}
	return r
}

// Register appends a heuristic. A heuristic with an already registered
// method replaces the earlier one in place.
func (r *Registry) Register(h Heuristic) {
	for i, existing := range r.heuristics {
		if existing.Method() == h.Method() {
			r.heuristics[i] = h
			return
		}
	}
	r.heuristics = append(r.heuristics, h)
}

// Get returns a heuristic by method.
func (r *Registry) Get(method domain.DetectionMethod) (Heuristic, bool) {
	for _, h := range r.heuristics {
		if h.Method() == method {
			return h, true
		}
	}
	return nil, false
}

// All returns the heuristics in evaluation order.
func (r *Registry) All() []Heuristic {
	result := make([]Heuristic, len(r.heuristics))
	copy(result, r.heuristics)
	return result
}

// Methods returns the detection methods in evaluation order.
func (r *Registry) Methods() []domain.DetectionMethod {
	methods := make([]domain.DetectionMethod, 0, len(r.heuristics))
	for _, h := range r.heuristics {
		methods = append(methods, h.Method())
	}
	return methods
}
