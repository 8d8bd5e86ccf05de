package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ymahak/cust/internal/domain"
)

type Store struct {
	pool        *pgxpool.Pool
	users       *UserRepo
	messages    *MessageRepo
	escalations *EscalationRepo
	feedback    *FeedbackRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:        pool,
		users:       NewUserRepo(pool),
		messages:    NewMessageRepo(pool),
		escalations: NewEscalationRepo(pool),
		feedback:    NewFeedbackRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Users() domain.UserRepository             { return s.users }
func (s *Store) Messages() domain.MessageRepository       { return s.messages }
func (s *Store) Escalations() domain.EscalationRepository { return s.escalations }
func (s *Store) Feedback() domain.FeedbackRepository      { return s.feedback }
