package scheduler

import (
	"slices"
	"strings"
	"time"
)

// Outcome is the result of one entity in a run.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
)

// Skip reasons.
const (
	ReasonNoNewEvents = "no new events"
	ReasonStale       = "stale checkpoint"
	ReasonDeadline    = "deadline"
)

// EntityReport describes what a run did to one entity.
type EntityReport struct {
	EntityID      string  `json:"entityId"`
	Outcome       Outcome `json:"outcome"`
	NewCheckpoint *int64  `json:"newCheckpoint,omitempty"`
	EventsApplied int     `json:"eventsApplied"`
	EventsSkipped int     `json:"eventsSkipped"`
	Reason        string  `json:"reason,omitempty"`
	ErrorCode     string  `json:"errorCode,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Report summarizes one run. Entities are sorted by id.
type Report struct {
	RunID      string         `json:"runId"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Entities   []EntityReport `json:"entities"`
	Untracked  []string       `json:"untracked,omitempty"`
}

// Failed reports whether any entity ended in error.
func (r Report) Failed() bool {
	return slices.ContainsFunc(r.Entities, func(e EntityReport) bool {
		return e.Outcome == OutcomeError
	})
}

// Count returns the number of entities with the given outcome.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, e := range r.Entities {
		if e.Outcome == o {
			n++
		}
	}
	return n
}

// Entity returns the report of one entity.
func (r Report) Entity(id string) (EntityReport, bool) {
	i := slices.IndexFunc(r.Entities, func(e EntityReport) bool { return e.EntityID == id })
	if i < 0 {
		return EntityReport{}, false
	}
	return r.Entities[i], true
}

func sortEntities(entities []EntityReport) {
	slices.SortFunc(entities, func(a, b EntityReport) int {
		return strings.Compare(a.EntityID, b.EntityID)
	})
}
