package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ymahak/cust/internal/domain"
	"github.com/ymahak/cust/internal/store/postgres"
)

// openStore connects to CUST_TEST_DATABASE_URL and skips when it is unset.
func openStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("CUST_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CUST_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := postgres.New(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestEscalationRepo_ListPendingReturnsWholeQueue(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	repo := s.Escalations()

	caller := "queue-" + uuid.NewString()
	const total = 520

	created := make([]uuid.UUID, 0, total)
	for range total {
		e := &domain.Escalation{
			ID:               uuid.New(),
			CallerID:         caller,
			Reason:           "support agent flagged for review: other",
			AgentType:        "support_agent",
			OriginalResponse: "draft",
			Status:           domain.EscalationStatusPending,
			CreatedAt:        time.Now().UTC(),
		}
		require.NoError(t, repo.Create(ctx, e))
		created = append(created, e.ID)
	}
	t.Cleanup(func() {
		for _, id := range created {
			_ = repo.Resolve(context.Background(), id, domain.Resolution{
				Status: domain.EscalationStatusRejected, ReviewedBy: "cleanup", ResolvedAt: time.Now(),
			})
		}
	})

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)

	var ours []uuid.UUID
	for _, e := range pending {
		if e.CallerID == caller {
			ours = append(ours, e.ID)
		}
	}
	assert.Equal(t, created, ours)
}
