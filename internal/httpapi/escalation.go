package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sentineloop/incident-agent/internal/escalation"
)

type escalationResponseBody struct {
	Decision string `json:"decision"` // "approve" | "reject" | "take_over"
	Reason   string `json:"reason"`
}

var decisionsByName = map[string]escalation.Decision{
	"approve":   escalation.Approve,
	"reject":    escalation.Reject,
	"take_over": escalation.TakeOver,
}

// handleRespondToEscalation is the respond_to_escalation(incident_id,
// response) command: delivers a human's decision to the incident's
// pending escalation. The BDI task is already blocked in
// escalation.Channel.Await for this incident, so this call is safe to
// make directly from the HTTP task rather than routing through the
// command queue.
func (s *Server) handleRespondToEscalation(w http.ResponseWriter, r *http.Request) {
	incidentID := mux.Vars(r)["id"]

	var body escalationResponseBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "decode escalation response: %v", err)
		return
	}
	decision, ok := decisionsByName[body.Decision]
	if !ok {
		writeError(w, http.StatusBadRequest, "unrecognized decision %q", body.Decision)
		return
	}

	s.deps.Escalation.Respond(incidentID, escalation.Response{Decision: decision, Reason: body.Reason})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "delivered"})
}
