package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/haithamq/visaflow/internal/core/domain"
	"github.com/haithamq/visaflow/internal/core/ports"
	"github.com/haithamq/visaflow/internal/observability/metrics"
)

type Router struct {
	workflows ports.WorkflowService
	validator ports.DocumentValidator
	metrics   *metrics.HTTPServerMetrics
}

func NewRouter(workflows ports.WorkflowService, validator ports.DocumentValidator, m *metrics.HTTPServerMetrics) *Router {
	return &Router{
		workflows: workflows,
		validator: validator,
		metrics:   m,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/workflows/start", rt.startWorkflow)
	mux.HandleFunc("/v1/workflows/status/", rt.workflowStatus)
	mux.HandleFunc("/v1/workflows/result/", rt.workflowResult)
	mux.HandleFunc("/v1/workflows/retry/", rt.retryWorkflow)
	mux.HandleFunc("/v1/documents/validate", rt.validateDocument)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) startWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		RequestID        string            `json:"request_id"`
		CountryID        string            `json:"country_id"`
		CountryNameLocal string            `json:"country_name_local"`
		VisaType         string            `json:"visa_type"`
		Travelers        []domain.Traveler `json:"travelers"`
		Documents        []domain.Document `json:"documents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	cmd := domain.RunCommand{
		RequestID:        req.RequestID,
		CountryID:        strings.ToLower(strings.TrimSpace(req.CountryID)),
		CountryNameLocal: req.CountryNameLocal,
		VisaType:         strings.ToLower(strings.TrimSpace(req.VisaType)),
		Travelers:        req.Travelers,
		Documents:        req.Documents,
	}
	if err := rt.workflows.Start(r.Context(), cmd); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"request_id": req.RequestID,
		"status":     "accepted",
	})
}

func (rt *Router) workflowStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/workflows/status/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request id is required"})
		return
	}

	status, err := rt.workflows.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) workflowResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/workflows/result/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request id is required"})
		return
	}

	state, err := rt.workflows.Result(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (rt *Router) retryWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/workflows/retry/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request id is required"})
		return
	}

	if err := rt.workflows.Retry(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"request_id": id,
		"status":     "retry accepted",
	})
}

func (rt *Router) validateDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req domain.Document
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	doc, err := rt.validator.ValidateSingle(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
