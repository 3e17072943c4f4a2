package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"costguard/internal/bridge"
	"costguard/internal/domain/action"
	"costguard/internal/domain/anomaly"
	domainusage "costguard/internal/domain/usage"
	"costguard/internal/services/lifecycle"
	"costguard/internal/services/scan"
	"costguard/internal/services/usage"
	"costguard/pkg/errors"
	"costguard/pkg/logger"
)

// Handler serves the operator API
type Handler struct {
	usageSvc     *usage.Service
	lifecycleSvc *lifecycle.Service
	anomalyRepo  anomaly.Repository
	orchestrator *scan.Orchestrator
	bridge       *bridge.Bridge
	clock        clockwork.Clock
	log          *logger.Logger
}

// NewHandler creates the API handler
func NewHandler(
	usageSvc *usage.Service,
	lifecycleSvc *lifecycle.Service,
	anomalyRepo anomaly.Repository,
	orchestrator *scan.Orchestrator,
	bridgeClient *bridge.Bridge,
	clock clockwork.Clock,
) *Handler {
	return &Handler{
		usageSvc:     usageSvc,
		lifecycleSvc: lifecycleSvc,
		anomalyRepo:  anomalyRepo,
		orchestrator: orchestrator,
		bridge:       bridgeClient,
		clock:        clock,
		log:          logger.Get().With("component", "api"),
	}
}

// IngestUsage handles POST /api/v1/usage
func (h *Handler) IngestUsage(w http.ResponseWriter, r *http.Request) {
	var rec domainusage.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.usageSvc.Ingest(r.Context(), &rec); err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"event_id": rec.EventID})
}

// ListUsage handles GET /api/v1/usage
func (h *Handler) ListUsage(w http.ResponseWriter, r *http.Request) {
	filter := domainusage.Filter{
		Provider: r.URL.Query().Get("provider"),
		Limit:    queryInt(r, "limit"),
	}
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		filter.From = t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		filter.To = t
	}

	records, err := h.usageSvc.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records, "count": len(records)})
}

// MonthSummary handles GET /api/v1/summary
func (h *Handler) MonthSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.usageSvc.MonthSummary(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListAnomalies handles GET /api/v1/anomalies
func (h *Handler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	filter := anomaly.Filter{
		Provider: r.URL.Query().Get("provider"),
		Severity: anomaly.Severity(r.URL.Query().Get("severity")),
		Limit:    queryInt(r, "limit"),
		Offset:   queryInt(r, "offset"),
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}

	anomalies, err := h.anomalyRepo.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"anomalies": anomalies, "count": len(anomalies)})
}

// CreateAnomaly handles POST /api/v1/anomalies (manual submission)
func (h *Handler) CreateAnomaly(w http.ResponseWriter, r *http.Request) {
	var a anomaly.CostAnomaly
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if a.Provider == "" {
		writeError(w, http.StatusBadRequest, "provider is required")
		return
	}
	if !a.Severity.Valid() {
		writeError(w, http.StatusBadRequest, "invalid severity")
		return
	}

	now := h.clock.Now().UTC()
	a.ID = uuid.NewString()
	if a.Timestamp.IsZero() {
		a.Timestamp = now
	}
	a.CreatedAt = now
	if a.Meta == nil {
		a.Meta = []byte(`{}`)
	}

	if err := h.anomalyRepo.Create(r.Context(), &a); err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, a)
}

// GetAnomaly handles GET /api/v1/anomalies/{id}
func (h *Handler) GetAnomaly(w http.ResponseWriter, r *http.Request) {
	a, err := h.anomalyRepo.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListActions handles GET /api/v1/actions
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	filter := action.Filter{
		Status: action.Status(r.URL.Query().Get("status")),
		Risk:   action.Risk(r.URL.Query().Get("risk")),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}

	actions, err := h.lifecycleSvc.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": actions, "count": len(actions)})
}

// CreateAction handles POST /api/v1/actions (manual submission)
func (h *Handler) CreateAction(w http.ResponseWriter, r *http.Request) {
	var a action.OptimizationAction
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if a.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	a.ID = "" // server-assigned
	if err := h.lifecycleSvc.Propose(r.Context(), &a); err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, a)
}

// GetAction handles GET /api/v1/actions/{id}
func (h *Handler) GetAction(w http.ResponseWriter, r *http.Request) {
	a, err := h.lifecycleSvc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ApproveAction handles POST /api/v1/actions/{id}/approve
func (h *Handler) ApproveAction(w http.ResponseWriter, r *http.Request) {
	a, err := h.lifecycleSvc.Approve(r.Context(), r.PathValue("id"), approver(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DenyAction handles POST /api/v1/actions/{id}/deny
func (h *Handler) DenyAction(w http.ResponseWriter, r *http.Request) {
	a, err := h.lifecycleSvc.Deny(r.Context(), r.PathValue("id"), approver(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ExecuteAction handles POST /api/v1/actions/{id}/execute
func (h *Handler) ExecuteAction(w http.ResponseWriter, r *http.Request) {
	a, err := h.lifecycleSvc.Execute(r.Context(), r.PathValue("id"), approver(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// TriggerScan handles POST /api/v1/scan
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	summary, err := h.orchestrator.Run(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// workflowCallback is the external system's status confirmation payload
type workflowCallback struct {
	ActionID string `json:"action_id"`
	Status   string `json:"status"`
}

// WorkflowCallback handles POST /api/v1/callbacks/workflow
func (h *Handler) WorkflowCallback(w http.ResponseWriter, r *http.Request) {
	var cb workflowCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if cb.ActionID == "" {
		writeError(w, http.StatusBadRequest, "action_id is required")
		return
	}
	if cb.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	if err := h.lifecycleSvc.OnExternalStatus(r.Context(), cb.ActionID, cb.Status); err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": "accepted"})
}

// BridgeLog handles GET /api/v1/bridge/log
func (h *Handler) BridgeLog(w http.ResponseWriter, r *http.Request) {
	entries := h.bridge.Log()
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "count": len(entries)})
}

// writeServiceError maps domain errors onto HTTP status codes
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, errors.ErrConflict), errors.Is(err, errors.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errors.ErrScanInProgress):
		writeError(w, http.StatusConflict, "scan already in progress")
	case errors.Is(err, errors.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Errorf("Internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func approver(r *http.Request) string {
	if v := r.URL.Query().Get("approver"); v != "" {
		return v
	}
	return "operator"
}

func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
