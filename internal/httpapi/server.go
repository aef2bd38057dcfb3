// Package httpapi is the agent's external interface: webhook ingestion,
// the query/command surface, and a websocket push feed, all stitched
// together the way kubilitics-backend's cmd/server/main.go wires
// gorilla/mux and rs/cors, with the gorilla/websocket connection
// pattern carried over from the teacher's internal/server/websocket.go.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/sentineloop/incident-agent/internal/audit"
	"github.com/sentineloop/incident-agent/internal/bdi"
	"github.com/sentineloop/incident-agent/internal/escalation"
	"github.com/sentineloop/incident-agent/internal/eventlog"
	"github.com/sentineloop/incident-agent/internal/fact"
	"github.com/sentineloop/incident-agent/internal/rules"
	"github.com/sentineloop/incident-agent/internal/streammux"
)

// Deps bundles the components the HTTP surface reads from or enqueues
// work onto. It never calls into *bdi.Loop directly — facts and
// commands are handed to bounded channels the BDI task drains, so the
// HTTP task stays a single writer only to those channels.
type Deps struct {
	Events     *eventlog.Store
	Engine     *rules.Engine
	Escalation *escalation.Channel
	Logger     *zap.Logger
	Audit      audit.Logger

	// AllowedOrigins configures rs/cors; ["*"] allows any origin.
	AllowedOrigins []string
	// FactQueueCapacity bounds the webhook-to-multiplexer channel.
	FactQueueCapacity int
	// CommandQueueCapacity bounds the retract/reprocess command queue.
	CommandQueueCapacity int
}

// Server is the HTTP+websocket listener for the agent's external
// interface.
type Server struct {
	deps Deps

	facts    chan fact.Fact
	commands chan bdi.Command
	hub      *hub

	httpServer *http.Server
}

// New builds a Server. It does not start listening until Start is
// called.
func New(addr string, deps Deps) *Server {
	if deps.FactQueueCapacity <= 0 {
		deps.FactQueueCapacity = streammux.DefaultCapacity
	}
	if deps.CommandQueueCapacity <= 0 {
		deps.CommandQueueCapacity = 64
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewNop()
	}

	s := &Server{
		deps:     deps,
		facts:    make(chan fact.Fact, deps.FactQueueCapacity),
		commands: make(chan bdi.Command, deps.CommandQueueCapacity),
	}
	s.hub = newHub(deps.Events, deps.Logger)

	router := newRouter(s)
	handler := corsHandler(deps.AllowedOrigins).Handler(router)
	handler = recoveryMiddleware(deps.Logger)(handler)
	handler = loggingMiddleware(deps.Logger)(handler)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func corsHandler(allowedOrigins []string) *cors.Cors {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
}

// FactSource exposes the webhook-fed channel as a streammux.Source so
// cmd/server can register it with the stream multiplexer (it is the
// multiplexer's only source there).
func (s *Server) FactSource() streammux.Source {
	return streammux.Source{Name: "webhook", Facts: s.facts}
}

// Commands returns the queue of retract/reprocess requests the BDI
// task should drain on every tick, interleaved with facts off the
// stream multiplexer.
func (s *Server) Commands() <-chan bdi.Command {
	return s.commands
}

// Start runs the push-event hub's poll loop and begins serving HTTP.
// It blocks until ctx is canceled, then gracefully shuts the HTTP
// server down with a 10 second timeout.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("httpapi: listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("httpapi: serve: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("httpapi: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func newRouter(s *Server) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", metricsHandler()).Methods(http.MethodGet)

	router.HandleFunc("/webhook/generic", s.handleWebhook("generic")).Methods(http.MethodPost)
	router.HandleFunc("/webhook/alertmanager", s.handleWebhook("alertmanager")).Methods(http.MethodPost)
	router.HandleFunc("/webhook/datadog", s.handleWebhook("datadog")).Methods(http.MethodPost)
	router.HandleFunc("/webhook/pagerduty", s.handleWebhook("pagerduty")).Methods(http.MethodPost)

	router.HandleFunc("/ws/incidents", s.handleWebsocket)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/incidents", s.handleListIncidents).Methods(http.MethodGet)
	api.HandleFunc("/incidents/{id}/beliefs", s.handleGetBeliefs).Methods(http.MethodGet)
	api.HandleFunc("/incidents/{id}/timeline", s.handleGetTimeline).Methods(http.MethodGet)
	api.HandleFunc("/incidents/{id}/plan", s.handleGetCurrentPlan).Methods(http.MethodGet)
	api.HandleFunc("/incidents/{id}/tool-calls", s.handleGetToolCalls).Methods(http.MethodGet)
	api.HandleFunc("/incidents/{id}/escalation/respond", s.handleRespondToEscalation).Methods(http.MethodPost)
	api.HandleFunc("/incidents/{id}/reprocess", s.handleReprocessIncident).Methods(http.MethodPost)
	api.HandleFunc("/facts/alert", s.handleUpsertAlertFact).Methods(http.MethodPost)
	api.HandleFunc("/facts/{id}/retract", s.handleRetractFact).Methods(http.MethodPost)

	return router
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
