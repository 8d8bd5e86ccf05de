package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	slacklib "github.com/slack-go/slack"

	"github.com/ymahak/cust/internal/domain"
)

// SlackAPI abstracts the subset of the Slack client used by Slack.
// This allows testing without real HTTP calls.
type SlackAPI interface {
	PostMessage(channelID string, options ...slacklib.MsgOption) (string, string, error)
	UpdateMessage(channelID, timestamp string, options ...slacklib.MsgOption) (string, string, string, error)
}

// Slack posts new escalations to a review channel and edits the original
// post in place once a reviewer resolves it.
type Slack struct {
	api     SlackAPI
	channel string

	mu    sync.Mutex
	posts map[uuid.UUID]string // escalation id -> message ts
}

// Compile-time interface check.
var _ Notifier = (*Slack)(nil) //nolint:gochecknoglobals // compile-time check

func NewSlack(api SlackAPI, channel string) *Slack {
	return &Slack{api: api, channel: channel, posts: make(map[uuid.UUID]string)}
}

func (s *Slack) EscalationCreated(_ context.Context, e *domain.Escalation) error {
	_, ts, err := s.api.PostMessage(s.channel,
		slacklib.MsgOptionText("New escalation: "+e.Reason, false),
		slacklib.MsgOptionBlocks(BuildEscalationBlocks(e)...),
	)
	if err != nil {
		return fmt.Errorf("notify.Slack.EscalationCreated: %w", err)
	}

	s.mu.Lock()
	s.posts[e.ID] = ts
	s.mu.Unlock()

	return nil
}

func (s *Slack) EscalationResolved(_ context.Context, e *domain.Escalation) error {
	s.mu.Lock()
	ts, ok := s.posts[e.ID]
	delete(s.posts, e.ID)
	s.mu.Unlock()

	text := fmt.Sprintf("Escalation %s %s", e.ID, e.Status)
	opts := []slacklib.MsgOption{
		slacklib.MsgOptionText(text, false),
		slacklib.MsgOptionBlocks(BuildResolutionBlocks(e)...),
	}

	if ok {
		if _, _, _, err := s.api.UpdateMessage(s.channel, ts, opts...); err != nil {
			return fmt.Errorf("notify.Slack.EscalationResolved: update: %w", err)
		}
		return nil
	}

	if _, _, err := s.api.PostMessage(s.channel, opts...); err != nil {
		return fmt.Errorf("notify.Slack.EscalationResolved: post: %w", err)
	}
	return nil
}
