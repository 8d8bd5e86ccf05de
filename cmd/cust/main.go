package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/ymahak/cust/internal/agent"
	"github.com/ymahak/cust/internal/api/ws"
	"github.com/ymahak/cust/internal/auth"
	"github.com/ymahak/cust/internal/config"
	"github.com/ymahak/cust/internal/domain"
	"github.com/ymahak/cust/internal/escalation"
	"github.com/ymahak/cust/internal/guard"
	"github.com/ymahak/cust/internal/metrics"
	"github.com/ymahak/cust/internal/notify"
	"github.com/ymahak/cust/internal/pipeline"
	"github.com/ymahak/cust/internal/server"
	"github.com/ymahak/cust/internal/store/memory"
	"github.com/ymahak/cust/internal/store/postgres"
	redisstore "github.com/ymahak/cust/internal/store/redis"
	"github.com/ymahak/cust/internal/telemetry"
	"github.com/ymahak/cust/internal/tracing"
)

const (
	serviceName     = "cust"
	serviceVersion  = "0.1.0"
	shutdownTimeout = 10 * time.Second
)

// bus is what escalation events are published to and the websocket feed
// reads from.
type bus interface {
	escalation.Publisher
	ws.Subscriber
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// A missing .env is fine; the environment may already be populated.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer flushCancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	store, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	var (
		events bus = ws.NewLocal()
		redis  server.Pinger
	)
	if cfg.Redis.URL != "" {
		pubsub, err := redisstore.New(ctx, cfg.Redis.URL, cfg.Redis.Password)
		if err != nil {
			return err
		}
		defer pubsub.Close()
		events, redis = pubsub, pubsub
		log.Info().Msg("escalation events published to redis")
	}

	notifiers := notify.NewRegistry()
	if cfg.Slack.BotToken != "" {
		notifiers.Register("slack", notify.NewSlack(slacklib.New(cfg.Slack.BotToken), cfg.Slack.Channel))
		log.Info().Str("channel", cfg.Slack.Channel).Msg("slack notifications enabled")
	}

	backend, err := agent.DefaultRegistry().Create(cfg.LLM.Provider, agent.ProviderConfig{
		Model:   cfg.LLM.Model,
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
	})
	if err != nil {
		return err
	}
	log.Info().Str("provider", cfg.LLM.Provider).Str("model", cfg.LLM.Model).Msg("agent backend ready")

	escalations := escalation.NewService(store.Escalations(), store.Feedback(),
		escalation.WithPublisher(events, redisstore.EscalationChannel),
		escalation.WithNotifier(notifiers),
	)

	tracer := tracing.New(
		tracing.WithRetention(cfg.Pipeline.TraceRetention),
		tracing.WithOTel(telemetry.Tracer(serviceName+"/pipeline")),
	)
	registry := metrics.New(
		metrics.WithMeter(telemetry.Meter(serviceName)),
		metrics.WithEscalations(escalations),
	)

	var policy pipeline.Policy = pipeline.HintPolicy
	if cfg.Pipeline.SensitivePolicy {
		policy = pipeline.SensitivePolicy
	}

	chat := pipeline.New(pipeline.Deps{
		Guard:       guard.New(cfg.Pipeline.GuardMaxLength, cfg.Pipeline.BlockedKeywords),
		Classifier:  backend,
		Responder:   backend,
		Escalations: escalations,
		Tracer:      tracer,
		Metrics:     registry,
	},
		pipeline.WithMessageStore(pipeline.NewRepoMessages(store.Messages())),
		pipeline.WithPolicy(policy),
		pipeline.WithCapabilityTimeout(cfg.LLM.Timeout),
	)

	authSvc := auth.NewService(store.Users(), cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	if cfg.JWT.AdminUsername != "" {
		created, err := authSvc.EnsureAdmin(ctx, cfg.JWT.AdminUsername, cfg.JWT.AdminPassword)
		if err != nil {
			return err
		}
		if created {
			log.Info().Str("username", cfg.JWT.AdminUsername).Msg("admin account created")
		}
	}

	var slackInteractions http.Handler
	if cfg.Slack.SigningSecret != "" {
		slackInteractions = notify.NewInteractions(cfg.Slack.SigningSecret, escalations)
	}

	srv := server.New(ctx, cfg, server.Deps{
		Store:       store,
		Auth:        authSvc,
		Chat:        chat,
		Escalations: escalations,
		Traces:      tracer,
		Metrics:     registry,
		Feed:        events,
		Redis:       redis,
		Tracer:      telemetry.Tracer(serviceName + "/http"),

		SlackInteractions: slackInteractions,
	})

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

func setupLogging(c config.LogConfig) {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil || c.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.Format == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

type dataStore interface {
	server.Store
	Escalations() domain.EscalationRepository
	Feedback() domain.FeedbackRepository
}

// openStore connects to Postgres and applies migrations, or falls back to the
// in-memory store when no database URL is configured.
func openStore(ctx context.Context, c config.DatabaseConfig) (dataStore, func(), error) {
	if c.URL == "" {
		s := memory.New()
		return s, s.Close, nil
	}

	if c.MaxConns > math.MaxInt32 {
		return nil, nil, fmt.Errorf("database max_conns %d out of int32 range", c.MaxConns)
	}

	s, err := postgres.New(ctx, c.URL, int32(c.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return nil, nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, nil, err
	}
	log.Info().Msg("postgres store ready")
	return s, s.Close, nil
}
