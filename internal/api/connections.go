package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/terra"
)

// ConnectionView exposes a provider connection.
type ConnectionView struct {
	ConnectionID   string     `json:"connection_id"`
	Provider       string     `json:"provider"`
	ExternalUserID string     `json:"terra_user_id"`
	Status         string     `json:"status"`
	ConnectedAt    *time.Time `json:"connected_at,omitempty"`
	Error          string     `json:"error,omitempty"`
	Records        int        `json:"records"`
	LastRecordAt   *time.Time `json:"last_record_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ListConnectionsResponse lists the caller's connections.
type ListConnectionsResponse struct {
	Items []ConnectionView `json:"items"`
}

// CreateSessionRequest is the optional body for POST /v1/connections/session.
type CreateSessionRequest struct {
	Providers []string `json:"providers" validate:"omitempty,max=20,dive,required,alphanum,max=32"`
}

// CreateSessionResponse carries the account-linking URL.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

func (h *Handler) listConnections(w http.ResponseWriter, r *http.Request) {
	claims := requireScope(w, r, auth.ScopeHealthRead)
	if claims == nil {
		return
	}
	conns, err := h.connections.ListConnections(r.Context(), claims.Subject)
	if err != nil {
		h.logger.Error("list connections failed", "user_id", claims.Subject, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "connections unavailable")
		return
	}

	items := make([]ConnectionView, 0, len(conns))
	for _, conn := range conns {
		stats, err := h.records.ConnectionStats(r.Context(), conn.ID)
		if err != nil {
			h.logger.Error("connection stats failed", "connection_id", conn.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "server_error", "connections unavailable")
			return
		}
		items = append(items, toConnectionView(conn, stats))
	}
	writeJSON(w, http.StatusOK, ListConnectionsResponse{Items: items})
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	claims := requireScope(w, r, auth.ScopeConnectionsWrite)
	if claims == nil {
		return
	}
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	session, err := h.provider.GenerateWidgetSession(r.Context(), claims.Subject, req.Providers)
	if err != nil {
		h.providerError(w, "generate widget session", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateSessionResponse{SessionID: session.SessionID, URL: session.URL})
}

func (h *Handler) deleteConnection(w http.ResponseWriter, r *http.Request) {
	claims := requireScope(w, r, auth.ScopeConnectionsWrite)
	if claims == nil {
		return
	}
	id := r.PathValue("id")
	if err := h.validate.Var(id, "required,uuid"); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid connection id")
		return
	}

	conn, err := h.connections.GetConnection(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if conn == nil || conn.UserID != claims.Subject {
		writeError(w, http.StatusNotFound, "not_found", domain.ErrConnectionNotFound.Error())
		return
	}

	if err := h.provider.Deauthenticate(r.Context(), conn.ExternalUserID); err != nil {
		h.providerError(w, "deauthenticate", err)
		return
	}
	if err := conn.MarkDisconnected(h.now()); err != nil {
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
		return
	}
	if err := h.connections.SaveConnection(r.Context(), *conn); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	stats, err := h.records.ConnectionStats(r.Context(), conn.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toConnectionView(*conn, stats))
}

func (h *Handler) providerError(w http.ResponseWriter, op string, err error) {
	h.logger.Error("provider call failed", "op", op, "error", err)
	var apiErr *terra.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		writeError(w, http.StatusNotFound, "not_found", "provider account not found")
		return
	}
	writeError(w, http.StatusBadGateway, "provider_error", op+" failed")
}

func toConnectionView(conn domain.Connection, stats domain.ConnectionStats) ConnectionView {
	view := ConnectionView{
		ConnectionID:   conn.ID,
		Provider:       string(conn.Provider),
		ExternalUserID: conn.ExternalUserID,
		Status:         string(conn.Status),
		ConnectedAt:    conn.ConnectedAt,
		Records:        stats.Records,
		LastRecordAt:   stats.LastRecordAt,
		UpdatedAt:      conn.UpdatedAt,
	}
	if conn.Status == domain.ConnectionError {
		if msg, ok := conn.Metadata["error"].(string); ok {
			view.Error = msg
		}
	}
	return view
}
