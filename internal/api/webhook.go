package api

import (
	"errors"
	"io"
	"net/http"

	"example.com/healthsync/internal/ingest"
	"example.com/healthsync/internal/terra"
)

const maxWebhookBody = 10 << 20

// WebhookResponse acknowledges a delivery.
type WebhookResponse struct {
	Status string `json:"status"`
}

// webhook acknowledges every parsed delivery with 200, whatever happened to
// individual records. Only storage or queue failures return 500 so the
// provider redelivers.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "webhook body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to read body")
		return
	}

	if h.verify {
		if err := terra.VerifySignature(h.signingSecret, r.Header.Get(terra.SignatureHeader), body); err != nil {
			h.logger.Warn("webhook signature rejected", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid_signature", err.Error())
			return
		}
	}

	evt, err := ingest.DecodeEvent(body)
	if err != nil {
		h.logger.Warn("webhook body rejected", "error", err)
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	res, err := h.pipeline.Ingest(r.Context(), evt)
	if err != nil {
		h.logger.Error("webhook processing failed", "event_type", string(evt.Type), "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "webhook could not be processed")
		return
	}
	if res.Skipped != "" {
		h.logger.Info("webhook acknowledged without changes", "event_type", string(evt.Type), "reason", res.Skipped)
	}
	writeJSON(w, http.StatusOK, WebhookResponse{Status: "received"})
}
