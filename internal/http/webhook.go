package http

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v61/github"
)

// maxWebhookBody matches GitHub's cap on delivered payloads
const maxWebhookBody = 25 << 20

// GitHubWebhook handles POST /webhooks/github. Nothing is parsed or mutated
// until the payload signature checks out.
func (h *Handler) GitHubWebhook(w http.ResponseWriter, r *http.Request) {
	eventType := github.WebHookType(r)
	deliveryID := github.DeliveryID(r)
	logger := slog.With("event", eventType, "delivery", deliveryID)

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		Error(w, fmt.Errorf("failed to read request body"), http.StatusBadRequest)
		return
	}

	signature := r.Header.Get(github.SHA256SignatureHeader)
	if signature == "" || len(h.webhookSecret) == 0 {
		logger.Warn("Rejected webhook without signature")
		Error(w, fmt.Errorf("missing signature"), http.StatusForbidden)
		return
	}
	if err := github.ValidateSignature(signature, payload, h.webhookSecret); err != nil {
		logger.Warn("Rejected webhook with invalid signature", "error", err)
		Error(w, fmt.Errorf("invalid signature"), http.StatusForbidden)
		return
	}

	switch eventType {
	case "ping":
		JSON(w, http.StatusOK, map[string]string{"message": "pong"})
		return
	case "installation", "installation_repositories":
	default:
		logger.Debug("Ignoring webhook event")
		JSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		logger.Warn("Malformed webhook payload", "error", err)
		Error(w, fmt.Errorf("invalid payload"), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	switch e := event.(type) {
	case *github.InstallationEvent:
		err = h.registry.HandleInstallationEvent(ctx, e)
	case *github.InstallationRepositoriesEvent:
		err = h.registry.HandleInstallationRepositoriesEvent(ctx, e)
	}
	if err != nil {
		logger.Error("Failed to process webhook", "error", err)
		Error(w, err, http.StatusInternalServerError)
		return
	}

	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
