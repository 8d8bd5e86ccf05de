package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ymahak/cust/internal/domain"
)

type FeedbackRepo struct {
	pool *pgxpool.Pool
}

func NewFeedbackRepo(pool *pgxpool.Pool) *FeedbackRepo {
	return &FeedbackRepo{pool: pool}
}

func (r *FeedbackRepo) Create(ctx context.Context, f *domain.Feedback) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO feedback (id, escalation_id, reviewer, action, response, original_response, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.EscalationID, f.Reviewer, f.Action, f.Response,
		nilIfEmpty(f.OriginalResponse), nilIfEmpty(f.Notes), f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("feedbackRepo.Create: %w", err)
	}

	return nil
}

func (r *FeedbackRepo) ListByEscalation(ctx context.Context, escalationID uuid.UUID) ([]*domain.Feedback, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, escalation_id, reviewer, action, response, original_response, notes, created_at
		 FROM feedback WHERE escalation_id = $1
		 ORDER BY created_at`,
		escalationID,
	)
	if err != nil {
		return nil, fmt.Errorf("feedbackRepo.ListByEscalation: %w", err)
	}
	defer rows.Close()

	var out []*domain.Feedback
	for rows.Next() {
		var f domain.Feedback
		var original, notes *string
		if err := rows.Scan(
			&f.ID, &f.EscalationID, &f.Reviewer, &f.Action, &f.Response, &original, &notes, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("feedbackRepo.ListByEscalation: scan: %w", err)
		}
		f.OriginalResponse = derefStr(original)
		f.Notes = derefStr(notes)
		out = append(out, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("feedbackRepo.ListByEscalation: rows: %w", err)
	}

	return out, nil
}
