// Package eventlog is the append-only record of everything the agent
// observes and does: the source of truth an incident's state is folded
// from.
package eventlog

import "time"

// Kind enumerates the event types an incident's log may contain.
type Kind string

const (
	KindFactAsserted         Kind = "fact_asserted"
	KindFactRetracted        Kind = "fact_retracted"
	KindPatternMatched       Kind = "pattern_matched"
	KindPlanSelected         Kind = "plan_selected"
	KindActionIntent         Kind = "action_intent"
	KindActionResult         Kind = "action_result"
	KindSnapshotCaptured     Kind = "snapshot_captured"
	KindCompensationExecuted Kind = "compensation_executed"
	KindBacktrackInitiated   Kind = "backtrack_initiated"
	KindEscalated            Kind = "escalated"
	KindResolved             Kind = "resolved"

	// KindFactSuggested and KindFactSuggestionResolved name events for
	// the Interpreter's follow-up observation suggestions and their later
	// confirmation. No package in this module appends events of these
	// kinds.
	KindFactSuggested          Kind = "fact_suggested"
	KindFactSuggestionResolved Kind = "fact_suggestion_resolved"
)

// Event is one append-only record in an incident's log.
type Event struct {
	ID         int64     `db:"id"`
	IncidentID string    `db:"incident_id"`
	Kind       Kind      `db:"event_type"`
	Description string   `db:"description"`
	Details    string    `db:"details"` // JSON, empty string if absent
	Timestamp  time.Time `db:"timestamp"`
}

// New builds an Event with the current kind/incident/description; the
// caller sets Details and Timestamp before calling Append if needed,
// though Append stamps Timestamp if it is zero.
func New(incidentID string, kind Kind, description string) Event {
	return Event{IncidentID: incidentID, Kind: kind, Description: description}
}

// WithDetails attaches a pre-serialized JSON details blob.
func (e Event) WithDetails(json string) Event {
	e.Details = json
	return e
}
