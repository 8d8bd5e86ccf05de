package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/ymahak/cust/internal/domain"
)

// Approver resolves an escalation on behalf of a Slack user.
// *escalation.Service satisfies this interface.
type Approver interface {
	Approve(ctx context.Context, id uuid.UUID, reviewer, response, notes string) (*domain.Escalation, error)
}

// Interactions handles Slack interactive component callbacks for escalation
// posts. Requests must carry a valid Slack signature.
type Interactions struct {
	signingSecret string
	approver      Approver
}

func NewInteractions(signingSecret string, approver Approver) *Interactions {
	return &Interactions{signingSecret: signingSecret, approver: approver}
}

// ServeHTTP is the handler for POST /slack/interactions. Slack only needs a
// 200; failures to resolve are logged and the resolution post never appears.
func (h *Interactions) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if verifyErr := h.verifySignature(r.Header, body); verifyErr != nil {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	// The body was consumed for the signature check.
	r.Body = io.NopCloser(bytes.NewReader(body))
	if parseErr := r.ParseForm(); parseErr != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	payload := r.FormValue("payload")
	if payload == "" {
		http.Error(w, "missing payload", http.StatusBadRequest)
		return
	}

	var callback slacklib.InteractionCallback
	if unmarshalErr := json.Unmarshal([]byte(payload), &callback); unmarshalErr != nil {
		http.Error(w, "invalid payload JSON", http.StatusBadRequest)
		return
	}

	for _, action := range callback.ActionCallback.BlockActions {
		if action.ActionID != ActionApprove {
			continue
		}

		id, parseErr := uuid.Parse(action.Value)
		if parseErr != nil {
			log.Warn().Str("value", action.Value).Msg("slack approve with malformed escalation id")
			continue
		}

		reviewer := "slack:" + callback.User.Name
		if callback.User.Name == "" {
			reviewer = "slack:" + callback.User.ID
		}
		if _, approveErr := h.approver.Approve(r.Context(), id, reviewer, "", ""); approveErr != nil {
			log.Warn().Err(approveErr).Str("escalation_id", id.String()).Msg("slack approve failed")
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Interactions) verifySignature(header http.Header, body []byte) error {
	sv, err := slacklib.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return fmt.Errorf("notify.Interactions.verifySignature: create verifier: %w", err)
	}

	if _, writeErr := sv.Write(body); writeErr != nil {
		return fmt.Errorf("notify.Interactions.verifySignature: write body: %w", writeErr)
	}

	if ensureErr := sv.Ensure(); ensureErr != nil {
		return fmt.Errorf("notify.Interactions.verifySignature: ensure: %w", ensureErr)
	}

	return nil
}
