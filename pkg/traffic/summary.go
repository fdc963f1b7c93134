package traffic

import (
	"sort"
	"time"
)

// ActionStats aggregates the outcomes of one action.
type ActionStats struct {
	Invocations uint64        `json:"invocations"`
	Succeeded   uint64        `json:"succeeded"`
	Failed      uint64        `json:"failed"`
	Skipped     uint64        `json:"skipped"`
	Transport   uint64        `json:"transport"`
	Remote      uint64        `json:"remote"`
	Decode      uint64        `json:"decode"`
	Registry    uint64        `json:"registry"`
	TotalTime   time.Duration `json:"total_time"`
}

// MeanLatency is the average invocation latency.
func (s ActionStats) MeanLatency() time.Duration {
	if s.Invocations == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.Invocations)
}

func (s *ActionStats) add(o Outcome) {
	s.Invocations++
	s.TotalTime += o.Latency
	if o.Succeeded {
		s.Succeeded++
	} else {
		s.Failed++
	}
	switch o.Class {
	case ClassSkipped:
		s.Skipped++
	case ClassTransport:
		s.Transport++
	case ClassRemote:
		s.Remote++
	case ClassDecode:
		s.Decode++
	case ClassRegistry:
		s.Registry++
	}
}

// Summary describes a finished (or running) run.
type Summary struct {
	RunID       string                  `json:"run_id"`
	StartedAt   time.Time               `json:"started_at"`
	Duration    time.Duration           `json:"duration"`
	Iterations  int                     `json:"iterations"`
	Interrupted bool                    `json:"interrupted"`
	Actions     map[string]*ActionStats `json:"actions"`
}

func newSummary(runID string, started time.Time) Summary {
	return Summary{RunID: runID, StartedAt: started, Actions: make(map[string]*ActionStats)}
}

func (s *Summary) add(o Outcome) {
	st, ok := s.Actions[o.Action]
	if !ok {
		st = &ActionStats{}
		s.Actions[o.Action] = st
	}
	st.add(o)
}

// Totals folds every action into one ActionStats.
func (s Summary) Totals() ActionStats {
	var t ActionStats
	for _, st := range s.Actions {
		t.Invocations += st.Invocations
		t.Succeeded += st.Succeeded
		t.Failed += st.Failed
		t.Skipped += st.Skipped
		t.Transport += st.Transport
		t.Remote += st.Remote
		t.Decode += st.Decode
		t.Registry += st.Registry
		t.TotalTime += st.TotalTime
	}
	return t
}

// ActionNames returns the actions seen so far, sorted.
func (s Summary) ActionNames() []string {
	names := make([]string, 0, len(s.Actions))
	for name := range s.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s Summary) clone() Summary {
	out := s
	out.Actions = make(map[string]*ActionStats, len(s.Actions))
	for name, st := range s.Actions {
		cp := *st
		out.Actions[name] = &cp
	}
	return out
}
