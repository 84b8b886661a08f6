package server

import (
	"io"
	"net/http"

	"github.com/taskforge/taskforge/webhook"
)

const maxWebhookBody = 25 << 20 // GitHub caps payloads at 25 MB

// handleWebhook receives GitHub deliveries. Processing problems never
// surface as errors; only an unreadable body or a bad signature does.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	event := r.Header.Get(webhook.HeaderEvent)
	log := s.logger.With("event", event, "delivery", r.Header.Get(webhook.HeaderDelivery))

	if !webhook.VerifySignature(s.cfg.Webhook.Secret, body, r.Header.Get(webhook.HeaderSignature)) {
		log.Warn("webhook signature mismatch")
		writeJSON(w, http.StatusUnauthorized, webhook.Result{OK: false, Reason: "invalid signature"})
		return
	}

	res := s.deps.Webhook.Handle(r.Context(), event, body)
	log.Debug("webhook handled", "ok", res.OK, "reason", res.Reason)
	writeJSON(w, http.StatusOK, res)
}
