package traffic

import (
	"context"
	"math"
	"math/rand"
	"sort"
)

// Action is one weighted unit of synthetic traffic.
type Action struct {
	Name   string
	Weight float64
	Invoke func(ctx context.Context) Outcome
}

// Selector draws actions proportionally to their weights using a
// cumulative weight table built once.
type Selector struct {
	actions    []Action
	cumulative []float64
	total      float64
}

// NewSelector validates actions and builds the cumulative table.
func NewSelector(actions []Action) (*Selector, error) {
	if len(actions) == 0 {
		return nil, configErr("actions", "at least one action is required")
	}

	s := &Selector{
		actions:    make([]Action, len(actions)),
		cumulative: make([]float64, len(actions)),
	}
	copy(s.actions, actions)

	for i, a := range actions {
		if a.Name == "" {
			return nil, configErr("actions", "action %d has no name", i)
		}
		if a.Invoke == nil {
			return nil, configErr("actions", "action %q has no invoker", a.Name)
		}
		if math.IsNaN(a.Weight) || math.IsInf(a.Weight, 0) || a.Weight < 0 {
			return nil, configErr("actions", "action %q has invalid weight %v", a.Name, a.Weight)
		}
		s.total += a.Weight
		s.cumulative[i] = s.total
	}

	if s.total <= 0 {
		return nil, configErr("actions", "total weight must be positive, got %v", s.total)
	}
	return s, nil
}

// Total is the sum of all weights.
func (s *Selector) Total() float64 { return s.total }

// Actions returns the actions in declaration order.
func (s *Selector) Actions() []Action {
	out := make([]Action, len(s.actions))
	copy(out, s.actions)
	return out
}

// Index maps r in [0, Total) to the first action whose cumulative weight
// exceeds r. Boundary equality goes to the earlier action, and zero weight
// actions are never chosen.
func (s *Selector) Index(r float64) int {
	i := sort.Search(len(s.cumulative), func(i int) bool { return s.cumulative[i] > r })
	if i == len(s.cumulative) {
		// r rounded up to Total; fall back to the last action that has weight.
		for i = len(s.actions) - 1; i > 0 && s.actions[i].Weight == 0; i-- {
		}
	}
	return i
}

// Pick draws one action using rng.
func (s *Selector) Pick(rng *rand.Rand) Action {
	return s.actions[s.Index(rng.Float64()*s.total)]
}
