// Package control exposes the orchestrator's runtime controls over HTTP
// (spec.md §4.10, component C11): position and interface-activity
// updates, a forced recompute, and read-only status endpoints. It is
// built on net/http's method-aware ServeMux (Go 1.22+) rather than a
// third-party router: the stdlib mux already expresses the
// "METHOD /path/{param}" routes this surface needs.
package control

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/joshuamhtsang/sine/internal/cerrors"
	"github.com/joshuamhtsang/sine/internal/linkbudget"
	"github.com/joshuamhtsang/sine/internal/logging"
	"github.com/joshuamhtsang/sine/internal/metrics"
	"github.com/joshuamhtsang/sine/internal/orchestrator"
)

// NodeView is one row of the GET /nodes listing.
type NodeView struct {
	Name     string          `json:"name"`
	Position linkbudget.Vec3 `json:"position"`
}

// Server wraps an *orchestrator.Orchestrator with an http.Handler
// exposing spec.md §4.10's endpoints.
type Server struct {
	orch    *orchestrator.Orchestrator
	log     *logging.Logger
	mux     *http.ServeMux
	timeout time.Duration
	query   *metrics.QueryClient
}

// New builds a Server. timeout bounds how long a single request may
// block inside the orchestrator (e.g. waiting on a recompute);
// 0 defaults to 5s. query is optional: when nil, GET /metrics/query
// responds 503 instead of proxying to a Prometheus server.
func New(orch *orchestrator.Orchestrator, log *logging.Logger, timeout time.Duration, query *metrics.QueryClient) *Server {
	if log == nil {
		log = logging.Nop()
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	s := &Server{orch: orch, log: log, mux: http.NewServeMux(), timeout: timeout, query: query}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /nodes", s.handleNodes)
	s.mux.HandleFunc("POST /position", s.handleSetPosition)
	s.mux.HandleFunc("GET /position/{node}", s.handleGetPosition)
	s.mux.HandleFunc("POST /interface", s.handleSetInterfaceActive)
	s.mux.HandleFunc("GET /interface/{node}/{iface}", s.handleGetInterfaceActive)
	s.mux.HandleFunc("POST /recompute", s.handleRecompute)
	s.mux.HandleFunc("GET /metrics/query", s.handleMetricsQuery)
}

type positionUpdate struct {
	Node string  `json:"node"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

type interfaceUpdate struct {
	Node      string `json:"node"`
	Interface string `json:"interface"`
	IsActive  bool   `json:"is_active"`
}

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	running := s.orch.Running()
	status := "degraded"
	if running {
		status = "healthy"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": status, "running": running})
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	summaries := s.orch.Nodes()
	views := make([]NodeView, 0, len(summaries))
	for _, n := range summaries {
		views = append(views, NodeView{Name: n.Name, Position: n.Position})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"nodes": views})
}

func (s *Server) handleSetPosition(w http.ResponseWriter, r *http.Request) {
	var req positionUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	if err := s.orch.SetPositionXYZ(ctx, req.Node, req.X, req.Y, req.Z); err != nil {
		s.writeOrchestratorError(w, "set_position", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"node":     req.Node,
		"position": map[string]float64{"x": req.X, "y": req.Y, "z": req.Z},
	})
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	node := r.PathValue("node")
	pos, err := s.orch.Position(node)
	if err != nil {
		s.writeOrchestratorError(w, "get_position", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"node": node, "position": pos})
}

func (s *Server) handleSetInterfaceActive(w http.ResponseWriter, r *http.Request) {
	var req interfaceUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	if err := s.orch.SetInterfaceActive(ctx, req.Node, req.Interface, req.IsActive); err != nil {
		s.writeOrchestratorError(w, "set_interface_active", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"node":      req.Node,
		"interface": req.Interface,
		"is_active": req.IsActive,
	})
}

func (s *Server) handleGetInterfaceActive(w http.ResponseWriter, r *http.Request) {
	node, iface := r.PathValue("node"), r.PathValue("iface")
	active, err := s.orch.InterfaceActive(node, iface)
	if err != nil {
		s.writeOrchestratorError(w, "get_interface_active", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"node": node, "interface": iface, "is_active": active,
	})
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	snap, err := s.orch.Recompute(ctx)
	if err != nil {
		s.log.Error("forced recompute failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":       "success",
		"message":      "all link channels recomputed",
		"recompute_id": snap.RecomputeID,
	})
}

// handleMetricsQuery proxies an instant PromQL query to the Prometheus
// server configured for this instance, for scenario assertions like
// "SINR on link X is above threshold Y" without a separate Prometheus
// client in the caller.
func (s *Server) handleMetricsQuery(w http.ResponseWriter, r *http.Request) {
	if s.query == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics query client not configured")
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter \"q\"")
		return
	}

	// QueryLatest applies its own QueryConfig.Timeout; the request
	// context is passed through untouched so that deadline governs,
	// rather than being capped by the control surface's unrelated
	// s.timeout (which bounds orchestrator calls, not Prometheus ones).
	results, err := s.query.QueryLatest(r.Context(), q)
	if err != nil {
		s.log.Error("metrics query failed", "query", q, "error", err.Error())
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"query": q, "results": results})
}

// writeOrchestratorError maps a cerrors.Kind to the HTTP status spec.md
// §4.10 expects: unknown entity -> 404, invalid request -> 400, anything
// else -> 500.
func (s *Server) writeOrchestratorError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case cerrors.Is(err, cerrors.KindUnknownEntity):
		status = http.StatusNotFound
	case cerrors.Is(err, cerrors.KindInvalidRequest):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Error("control request failed", "op", op, "error", err.Error())
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Status: "error", Message: message})
}
