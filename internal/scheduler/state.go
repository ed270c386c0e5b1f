package scheduler

import (
	"time"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/config"
)

// State remembers when each global category and each flow was last
// dispatched. A missing entry counts as never run, so everything is due on
// the first tick. State is owned by the scheduler goroutine and is not safe
// for concurrent use.
type State struct {
	globals map[config.Category]time.Time
	flows   map[string]time.Time
}

// NewState returns an empty State.
func NewState() *State {
	return &State{
		globals: make(map[config.Category]time.Time),
		flows:   make(map[string]time.Time),
	}
}

func due(last time.Time, seen bool, now time.Time, interval time.Duration) bool {
	return !seen || now.Sub(last) >= interval
}

// DueGlobals returns the configured global categories whose interval has
// elapsed at now, in configuration order and without duplicates.
func (s *State) DueGlobals(cfg *config.Config, now time.Time) []config.Category {
	var out []config.Category
	picked := make(map[config.Category]struct{}, len(cfg.Components))
	for _, cat := range cfg.Components {
		if _, ok := picked[cat]; ok {
			continue
		}
		last, seen := s.globals[cat]
		if due(last, seen, now, cfg.IntervalFor(cat)) {
			picked[cat] = struct{}{}
			out = append(out, cat)
		}
	}
	return out
}

// FlowDue reports whether flow's interval has elapsed at now.
func (s *State) FlowDue(flow config.FlowSpec, now time.Time) bool {
	last, seen := s.flows[flow.Name]
	return due(last, seen, now, flow.Interval())
}

// MarkGlobals records now as the last run of cats.
func (s *State) MarkGlobals(cats []config.Category, now time.Time) {
	for _, cat := range cats {
		s.globals[cat] = now
	}
}

// MarkFlow records now as the last run of the named flow.
func (s *State) MarkFlow(name string, now time.Time) { s.flows[name] = now }

// LastGlobal returns the last run of cat, if any.
func (s *State) LastGlobal(cat config.Category) (time.Time, bool) {
	t, ok := s.globals[cat]
	return t, ok
}

// LastFlow returns the last run of the named flow, if any.
func (s *State) LastFlow(name string) (time.Time, bool) {
	t, ok := s.flows[name]
	return t, ok
}
