package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ymahak/cust/internal/domain"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Save(ctx context.Context, m *domain.Message) error {
	metadata := m.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("messageRepo.Save: marshal metadata: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO messages (id, caller_id, message, response, agent_type, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.CallerID, m.Text, m.Reply, m.AgentType, raw, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("messageRepo.Save: %w", err)
	}

	return nil
}

func (r *MessageRepo) ListRecent(ctx context.Context, callerID string, limit int) ([]*domain.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, caller_id, message, response, agent_type, metadata, created_at
		 FROM messages WHERE caller_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		callerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListRecent: %w", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var m domain.Message
		var raw []byte
		if err := rows.Scan(&m.ID, &m.CallerID, &m.Text, &m.Reply, &m.AgentType, &raw, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("messageRepo.ListRecent: scan: %w", err)
		}
		if err := json.Unmarshal(raw, &m.Metadata); err != nil {
			return nil, fmt.Errorf("messageRepo.ListRecent: unmarshal metadata: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messageRepo.ListRecent: rows: %w", err)
	}

	return out, nil
}
