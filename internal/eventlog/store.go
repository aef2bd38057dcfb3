package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO required

	"github.com/sentineloop/incident-agent/internal/bdierr"
)

const schema = `
CREATE TABLE IF NOT EXISTS schema_versions (
    version    INTEGER PRIMARY KEY,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    incident_id TEXT NOT NULL,
    event_type  TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    details     TEXT NOT NULL DEFAULT '',
    timestamp   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_incident_id ON events(incident_id);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
`

// terminalKinds are the event kinds that close an incident's stream.
var terminalKinds = map[Kind]struct{}{
	KindResolved:  {},
	KindEscalated: {},
}

// Store is the append-only event log.
type Store struct {
	db *sqlx.DB
}

// Open creates or opens a SQLite-backed Store at path in WAL journal
// mode and applies its schema. Pass ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, &bdierr.FatalError{Reason: "open event log", Err: err}
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, &bdierr.FatalError{Reason: "enable WAL on event log", Err: err}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, &bdierr.FatalError{Reason: "apply event log schema", Err: err}
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Append durably persists e and returns its assigned id. The insert
// commits before Append returns, satisfying the write-ahead barrier the
// executor relies on.
func (s *Store) Append(ctx context.Context, e Event) (int64, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO events(incident_id, event_type, description, details, timestamp)
		VALUES(?,?,?,?,?)
	`, e.IncidentID, e.Kind, e.Description, e.Details, e.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	return result.LastInsertId()
}

// EventsForIncident returns every event filed under incidentID, ordered
// by append id ascending — the total order the ordering invariant
// guarantees.
func (s *Store) EventsForIncident(ctx context.Context, incidentID string) ([]Event, error) {
	var events []Event
	err := s.db.SelectContext(ctx, &events, `
		SELECT id, incident_id, event_type, description, details, timestamp
		FROM events WHERE incident_id = ? ORDER BY id ASC
	`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("query events for incident %s: %w", incidentID, err)
	}
	return events, nil
}

// EventsAfter returns every event with id > afterID, ordered by id
// ascending, for tailing consumers such as the websocket push feed.
func (s *Store) EventsAfter(ctx context.Context, afterID int64) ([]Event, error) {
	var events []Event
	err := s.db.SelectContext(ctx, &events, `
		SELECT id, incident_id, event_type, description, details, timestamp
		FROM events WHERE id > ? ORDER BY id ASC
	`, afterID)
	if err != nil {
		return nil, fmt.Errorf("query events after %d: %w", afterID, err)
	}
	return events, nil
}

// ActiveIncidents returns every distinct incident_id that has not yet
// logged a terminal Resolved or Escalated event.
func (s *Store) ActiveIncidents(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT incident_id FROM events e1
		WHERE NOT EXISTS (
			SELECT 1 FROM events e2
			WHERE e2.incident_id = e1.incident_id
			AND e2.event_type IN ('resolved', 'escalated')
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("query active incidents: %w", err)
	}
	return ids, nil
}

// AllIncidents returns every distinct incident_id, most recently active
// first.
func (s *Store) AllIncidents(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT incident_id FROM events
		GROUP BY incident_id
		ORDER BY MAX(timestamp) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query all incidents: %w", err)
	}
	return ids, nil
}

// IsTerminal reports whether kind closes an incident's event stream.
func IsTerminal(kind Kind) bool {
	_, ok := terminalKinds[kind]
	return ok
}
