package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ymahak/cust/internal/domain"
)

type EscalationRepo struct {
	pool *pgxpool.Pool
}

func NewEscalationRepo(pool *pgxpool.Pool) *EscalationRepo {
	return &EscalationRepo{pool: pool}
}

const escalationColumns = `id, caller_id, reason, agent_type, original_response, status,
	human_response, reviewed_by, notes, resolved_at, created_at`

func (r *EscalationRepo) Create(ctx context.Context, e *domain.Escalation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO escalations (id, caller_id, reason, agent_type, original_response, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.CallerID, e.Reason, e.AgentType, e.OriginalResponse, e.Status, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("escalationRepo.Create: %w", err)
	}

	return nil
}

func (r *EscalationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Escalation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+escalationColumns+` FROM escalations WHERE id = $1`, id,
	)
	e, err := scanEscalation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("escalationRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("escalationRepo.GetByID: %w", err)
	}

	return e, nil
}

func (r *EscalationRepo) ListPending(ctx context.Context) ([]*domain.Escalation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+escalationColumns+` FROM escalations
		 WHERE status = $1
		 ORDER BY seq`,
		domain.EscalationStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("escalationRepo.ListPending: %w", err)
	}
	defer rows.Close()

	var out []*domain.Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("escalationRepo.ListPending: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escalationRepo.ListPending: rows: %w", err)
	}

	return out, nil
}

// Resolve updates the row only while it is still pending. When no row is
// affected a second lookup tells a missing id apart from a lost race.
func (r *EscalationRepo) Resolve(ctx context.Context, id uuid.UUID, res domain.Resolution) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE escalations
		 SET status = $1, human_response = $2, reviewed_by = $3, notes = $4, resolved_at = $5
		 WHERE id = $6 AND status = $7`,
		res.Status, res.HumanResponse, res.ReviewedBy, nilIfEmpty(res.Notes), res.ResolvedAt,
		id, domain.EscalationStatusPending,
	)
	if err != nil {
		return fmt.Errorf("escalationRepo.Resolve: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM escalations WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("escalationRepo.Resolve: lookup: %w", err)
	}
	if !exists {
		return fmt.Errorf("escalationRepo.Resolve: %w", domain.ErrNotFound)
	}

	return fmt.Errorf("escalationRepo.Resolve: %w", domain.ErrAlreadyResolved)
}

func (r *EscalationRepo) CountByStatus(ctx context.Context) (domain.EscalationCounts, error) {
	var c domain.EscalationCounts

	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM escalations GROUP BY status`)
	if err != nil {
		return c, fmt.Errorf("escalationRepo.CountByStatus: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status domain.EscalationStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return c, fmt.Errorf("escalationRepo.CountByStatus: scan: %w", err)
		}
		switch status {
		case domain.EscalationStatusPending:
			c.Pending = n
		case domain.EscalationStatusApproved:
			c.Approved = n
		case domain.EscalationStatusRejected:
			c.Rejected = n
		case domain.EscalationStatusEdited:
			c.Edited = n
		}
	}
	if err := rows.Err(); err != nil {
		return c, fmt.Errorf("escalationRepo.CountByStatus: rows: %w", err)
	}

	return c, nil
}

func scanEscalation(row pgx.Row) (*domain.Escalation, error) {
	var e domain.Escalation
	var humanResponse, reviewedBy, notes *string

	err := row.Scan(
		&e.ID, &e.CallerID, &e.Reason, &e.AgentType, &e.OriginalResponse, &e.Status,
		&humanResponse, &reviewedBy, &notes, &e.ResolvedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.HumanResponse = derefStr(humanResponse)
	e.ReviewedBy = derefStr(reviewedBy)
	e.Notes = derefStr(notes)

	return &e, nil
}
