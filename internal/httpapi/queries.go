package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sentineloop/incident-agent/internal/eventlog"
)

// handleListIncidents is the list_incidents query: every incident id
// the event log has ever seen, most recently active first.
func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	ids, err := s.deps.Events.AllIncidents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list incidents: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": ids})
}

// handleGetBeliefs is the get_beliefs query: the rule engine's current
// derived proposition set. The engine is safe for this concurrent read
// (see internal/rules.Engine's doc comment).
func (s *Server) handleGetBeliefs(w http.ResponseWriter, r *http.Request) {
	result := s.deps.Engine.Run()
	writeJSON(w, http.StatusOK, map[string]any{
		"beliefs":    result.State.Slice(),
		"candidates": result.Candidates,
	})
}

// handleGetTimeline is the get_timeline(incident_id) query: the full,
// append-ordered event history folded into that incident's current
// state.
func (s *Server) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	incidentID := mux.Vars(r)["id"]
	events, err := s.deps.Events.EventsForIncident(r.Context(), incidentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get timeline: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleGetCurrentPlan is the get_current_plan query: the most recent
// PlanSelected event logged for the incident, if any.
func (s *Server) handleGetCurrentPlan(w http.ResponseWriter, r *http.Request) {
	incidentID := mux.Vars(r)["id"]
	events, err := s.deps.Events.EventsForIncident(r.Context(), incidentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get current plan: %v", err)
		return
	}

	plan, ok := lastEventOfKind(events, eventlog.KindPlanSelected)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"plan": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan": decodeDetails(plan)})
}

// handleGetToolCalls is the get_tool_calls query: every action intent
// and result the executor has logged for the incident.
func (s *Server) handleGetToolCalls(w http.ResponseWriter, r *http.Request) {
	incidentID := mux.Vars(r)["id"]
	events, err := s.deps.Events.EventsForIncident(r.Context(), incidentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get tool calls: %v", err)
		return
	}

	var calls []eventlog.Event
	for _, e := range events {
		if e.Kind == eventlog.KindActionIntent || e.Kind == eventlog.KindActionResult {
			calls = append(calls, e)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tool_calls": calls})
}

func lastEventOfKind(events []eventlog.Event, kind eventlog.Kind) (eventlog.Event, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == kind {
			return events[i], true
		}
	}
	return eventlog.Event{}, false
}

func decodeDetails(e eventlog.Event) map[string]any {
	out := map[string]any{"description": e.Description, "timestamp": e.Timestamp}
	if e.Details == "" {
		return out
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(e.Details), &parsed); err != nil {
		return out
	}
	for k, v := range parsed {
		out[k] = v
	}
	return out
}
