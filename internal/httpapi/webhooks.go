package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sentineloop/incident-agent/internal/bdi"
	"github.com/sentineloop/incident-agent/internal/fact"
	"github.com/sentineloop/incident-agent/internal/fact/adapter"
	"github.com/sentineloop/incident-agent/internal/metrics"
)

// handleWebhook adapts an inbound third-party payload into one or more
// canonical alerts and enqueues a Fact per alert onto the stream
// multiplexer's webhook source. Validation failures never reach the
// rule engine: 400 with no fact enqueued, matching spec.md §6/§7's
// ValidationError boundary behavior.
func (s *Server) handleWebhook(source string) http.HandlerFunc {
	adapt := adapter.ForSource(source)
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			metrics.WebhookRequests.WithLabelValues(source, "bad_request").Inc()
			_ = s.deps.Audit.LogWebhookRejected(r.Context(), source, err)
			writeError(w, http.StatusBadRequest, "read body: %v", err)
			return
		}

		alerts, err := adapt.Adapt(body)
		if err != nil {
			metrics.WebhookRequests.WithLabelValues(source, "bad_request").Inc()
			_ = s.deps.Audit.LogWebhookRejected(r.Context(), source, err)
			writeError(w, http.StatusBadRequest, "adapt %s payload: %v", source, err)
			return
		}

		facts := make([]fact.Fact, 0, len(alerts))
		for _, a := range alerts {
			f, err := a.ToFact()
			if err != nil {
				metrics.WebhookRequests.WithLabelValues(source, "bad_request").Inc()
				_ = s.deps.Audit.LogWebhookRejected(r.Context(), source, err)
				writeError(w, http.StatusBadRequest, "invalid alert: %v", err)
				return
			}
			facts = append(facts, f)
		}

		if !s.enqueueFacts(facts) {
			metrics.WebhookRequests.WithLabelValues(source, "queue_full").Inc()
			_ = s.deps.Audit.LogWebhookRejected(r.Context(), source, fmt.Errorf("webhook queue full"))
			writeError(w, http.StatusServiceUnavailable, "webhook queue full, retry later")
			return
		}
		metrics.WebhookRequests.WithLabelValues(source, "accepted").Inc()
		_ = s.deps.Audit.LogWebhookReceived(r.Context(), source)
		writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(facts)})
	}
}

// handleUpsertAlertFact is the query-surface equivalent of the generic
// webhook: a UI-originated alert.v1 payload, enqueued the same way.
func (s *Server) handleUpsertAlertFact(w http.ResponseWriter, r *http.Request) {
	var alert fact.CanonicalAlert
	if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
		writeError(w, http.StatusBadRequest, "decode alert: %v", err)
		return
	}
	f, err := alert.ToFact()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert: %v", err)
		return
	}
	if !s.enqueueFacts([]fact.Fact{f}) {
		writeError(w, http.StatusServiceUnavailable, "fact queue full, retry later")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"incident_id": f.IncidentID()})
}

// handleRetractFact withdraws an alert fact by id, routed through the
// command queue so the retraction is sequenced against in-flight fact
// processing rather than racing it.
func (s *Server) handleRetractFact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing fact id")
		return
	}
	cmd := bdi.Command{Kind: bdi.CommandRetractFact, IncidentID: "alert:" + id, FactID: id}
	if !s.enqueueCommand(cmd) {
		writeError(w, http.StatusServiceUnavailable, "command queue full, retry later")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retract enqueued"})
}

// handleReprocessIncident asks the BDI task to re-evaluate the rule
// engine against its current inputs without a new observation.
func (s *Server) handleReprocessIncident(w http.ResponseWriter, r *http.Request) {
	incidentID := mux.Vars(r)["id"]
	cmd := bdi.Command{Kind: bdi.CommandReprocessIncident, IncidentID: incidentID}
	if !s.enqueueCommand(cmd) {
		writeError(w, http.StatusServiceUnavailable, "command queue full, retry later")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reprocess enqueued"})
}

func (s *Server) enqueueFacts(facts []fact.Fact) bool {
	for _, f := range facts {
		select {
		case s.facts <- f:
		default:
			return false
		}
	}
	return true
}

func (s *Server) enqueueCommand(cmd bdi.Command) bool {
	select {
	case s.commands <- cmd:
		return true
	default:
		return false
	}
}
