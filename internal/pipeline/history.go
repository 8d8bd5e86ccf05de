package pipeline

import (
	"context"
	"fmt"

	"github.com/ymahak/cust/internal/agent"
	"github.com/ymahak/cust/internal/domain"
)

// RepoMessages adapts a domain.MessageRepository to MessageStore.
type RepoMessages struct {
	repo domain.MessageRepository
}

func NewRepoMessages(repo domain.MessageRepository) *RepoMessages {
	return &RepoMessages{repo: repo}
}

func (r *RepoMessages) SaveMessage(ctx context.Context, m *domain.Message) error {
	if err := r.repo.Save(ctx, m); err != nil {
		return fmt.Errorf("pipeline.RepoMessages.SaveMessage: %w", err)
	}
	return nil
}

// RecentHistory returns up to limit turns, oldest first.
func (r *RepoMessages) RecentHistory(ctx context.Context, callerID string, limit int) ([]agent.Turn, error) {
	msgs, err := r.repo.ListRecent(ctx, callerID, limit)
	if err != nil {
		return nil, fmt.Errorf("pipeline.RepoMessages.RecentHistory: %w", err)
	}

	turns := make([]agent.Turn, len(msgs))
	for i, m := range msgs {
		turns[len(msgs)-1-i] = agent.Turn{Text: m.Text, Reply: m.Reply}
	}
	return turns, nil
}
