package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"dashsync/internal/domain"
)

var errMissingCondition = errors.New("rule condition is required")

// SyncAPI exposes manager operations consumed by the HTTP surface.
// Params: none.
// Returns: registration, toggle, listing, and notification contract.
type SyncAPI interface {
	RegisterSyncTarget(owner string, kind domain.SourceKind, conn domain.Connection) (string, error)
	ToggleSyncTarget(id string, active bool) bool
	RegisterAlertRule(owner, dashboardID string, spec domain.RuleSpec) (string, error)
	ToggleAlertRule(id string, active bool) bool
	DeleteAlertRule(id string) bool
	ListAlertRules(owner string) []domain.AlertRule
	SyncStatus(owner string) domain.SyncStatus
	ListNotifications(owner string, unreadOnly bool) ([]domain.Notification, error)
	MarkNotificationRead(owner, id string) (bool, error)
}

// Handler decodes JSON operation requests and forwards them to the manager.
// Params: manager API and max body limit for mutating requests.
// Returns: HTTP handler for the operations surface.
type Handler struct {
	api         SyncAPI
	maxBodySize int64
}

// NewHandler creates the operations HTTP handler.
// Params: manager API and max request body size in bytes.
// Returns: configured handler.
func NewHandler(api SyncAPI, maxBodySize int64) *Handler {
	return &Handler{api: api, maxBodySize: maxBodySize}
}

// Register mounts all operation routes on the mux.
// Params: target request multiplexer.
// Returns: routes registered with method-scoped patterns.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/targets", h.createTarget)
	mux.HandleFunc("POST /v1/targets/{id}/toggle", h.toggleTarget)
	mux.HandleFunc("POST /v1/rules", h.createRule)
	mux.HandleFunc("POST /v1/rules/{id}/toggle", h.toggleRule)
	mux.HandleFunc("DELETE /v1/rules/{id}", h.deleteRule)
	mux.HandleFunc("GET /v1/rules", h.listRules)
	mux.HandleFunc("GET /v1/status", h.syncStatus)
	mux.HandleFunc("GET /v1/notifications", h.listNotifications)
	mux.HandleFunc("POST /v1/notifications/{id}/read", h.markNotificationRead)
}

type createTargetRequest struct {
	Owner      string            `json:"owner"`
	Kind       string            `json:"kind"`
	Connection domain.Connection `json:"connection"`
}

type createRuleRequest struct {
	Owner         string          `json:"owner"`
	DashboardID   string          `json:"dashboard_id"`
	Name          string          `json:"name"`
	Column        string          `json:"column"`
	Condition     json.RawMessage `json:"condition"`
	NotifyAddress string          `json:"notify_address"`
}

type toggleRequest struct {
	Active bool `json:"active"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// createTarget registers one sync target.
// Params: request with owner, kind, and connection settings.
// Returns: 201 with the new target id or 400 on invalid input.
func (h *Handler) createTarget(writer http.ResponseWriter, request *http.Request) {
	var payload createTargetRequest
	if !h.decodeBody(writer, request, &payload) {
		return
	}
	kind, err := domain.ParseSourceKind(payload.Kind)
	if err != nil {
		writeError(writer, http.StatusBadRequest, err)
		return
	}
	id, err := h.api.RegisterSyncTarget(payload.Owner, kind, payload.Connection)
	if err != nil {
		writeError(writer, http.StatusBadRequest, err)
		return
	}
	writeJSON(writer, http.StatusCreated, map[string]string{"id": id})
}

// toggleTarget activates or pauses one sync target.
// Params: path target id and desired active flag.
// Returns: 200 on toggle or 404 for unknown id.
func (h *Handler) toggleTarget(writer http.ResponseWriter, request *http.Request) {
	var payload toggleRequest
	if !h.decodeBody(writer, request, &payload) {
		return
	}
	if !h.api.ToggleSyncTarget(request.PathValue("id"), payload.Active) {
		writer.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(writer, http.StatusOK, map[string]bool{"active": payload.Active})
}

// createRule registers one alert rule.
// Params: request with owner, dashboard, name, column, condition, and address.
// Returns: 201 with the new rule id or 400 on invalid input.
func (h *Handler) createRule(writer http.ResponseWriter, request *http.Request) {
	var payload createRuleRequest
	if !h.decodeBody(writer, request, &payload) {
		return
	}
	if len(payload.Condition) == 0 {
		writeError(writer, http.StatusBadRequest, errMissingCondition)
		return
	}
	condition, err := domain.ParseCondition(payload.Condition)
	if err != nil {
		writeError(writer, http.StatusBadRequest, err)
		return
	}
	id, err := h.api.RegisterAlertRule(payload.Owner, payload.DashboardID, domain.RuleSpec{
		Name:          payload.Name,
		Column:        payload.Column,
		Condition:     condition,
		NotifyAddress: payload.NotifyAddress,
	})
	if err != nil {
		writeError(writer, http.StatusBadRequest, err)
		return
	}
	writeJSON(writer, http.StatusCreated, map[string]string{"id": id})
}

// toggleRule activates or pauses one alert rule.
// Params: path rule id and desired active flag.
// Returns: 200 on toggle or 404 for unknown id.
func (h *Handler) toggleRule(writer http.ResponseWriter, request *http.Request) {
	var payload toggleRequest
	if !h.decodeBody(writer, request, &payload) {
		return
	}
	if !h.api.ToggleAlertRule(request.PathValue("id"), payload.Active) {
		writer.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(writer, http.StatusOK, map[string]bool{"active": payload.Active})
}

// deleteRule removes one alert rule.
// Params: path rule id.
// Returns: 204 on delete or 404 for unknown id.
func (h *Handler) deleteRule(writer http.ResponseWriter, request *http.Request) {
	if !h.api.DeleteAlertRule(request.PathValue("id")) {
		writer.WriteHeader(http.StatusNotFound)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

// listRules returns one owner's alert rules.
// Params: owner query parameter.
// Returns: 200 with the rule list.
func (h *Handler) listRules(writer http.ResponseWriter, request *http.Request) {
	owner := request.URL.Query().Get("owner")
	rules := h.api.ListAlertRules(owner)
	writeJSON(writer, http.StatusOK, map[string]any{"rules": rules})
}

// syncStatus returns one owner's aggregate sync summary.
// Params: owner query parameter.
// Returns: 200 with active count and sync cursors.
func (h *Handler) syncStatus(writer http.ResponseWriter, request *http.Request) {
	owner := request.URL.Query().Get("owner")
	writeJSON(writer, http.StatusOK, h.api.SyncStatus(owner))
}

// listNotifications returns one owner's notifications newest first.
// Params: owner and optional unread_only query parameters.
// Returns: 200 with the notification list or 500 on store failure.
func (h *Handler) listNotifications(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	owner := query.Get("owner")
	unreadOnly := query.Get("unread_only") == "true"
	list, err := h.api.ListNotifications(owner, unreadOnly)
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	writeJSON(writer, http.StatusOK, map[string]any{"notifications": list})
}

// markNotificationRead marks one owner's notification as read.
// Params: path notification id and owner query parameter.
// Returns: 200 on update or 404 for unknown id.
func (h *Handler) markNotificationRead(writer http.ResponseWriter, request *http.Request) {
	owner := request.URL.Query().Get("owner")
	updated, err := h.api.MarkNotificationRead(owner, request.PathValue("id"))
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	if !updated {
		writer.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(writer, http.StatusOK, map[string]bool{"read": true})
}

// decodeBody reads and decodes a bounded JSON request body.
// Params: response writer, request, and destination value.
// Returns: false when the body is invalid, with status already written.
func (h *Handler) decodeBody(writer http.ResponseWriter, request *http.Request, dst any) bool {
	request.Body = http.MaxBytesReader(writer, request.Body, h.maxBodySize)
	defer request.Body.Close()
	if err := json.NewDecoder(request.Body).Decode(dst); err != nil {
		writeError(writer, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(value)
}

func writeError(writer http.ResponseWriter, status int, err error) {
	writeJSON(writer, status, errorResponse{Error: err.Error()})
}
