package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ymahak/cust/internal/metrics"
	"github.com/ymahak/cust/internal/tracing"
)

const dashboardTraces = 10

type MetricsOutput struct {
	Body struct {
		Metrics         metrics.Overview        `json:"metrics"`
		EscalationStats metrics.EscalationStats `json:"escalation_stats"`
		Timestamp       time.Time               `json:"timestamp"`
	}
}

type TracesInput struct {
	Limit int `query:"limit" minimum:"0" default:"50" doc:"Most recent traces to return; 0 returns all"`
}

type TracesOutput struct {
	Body struct {
		Traces  []*tracing.Span `json:"traces"`
		Summary tracing.Summary `json:"summary"`
	}
}

type TraceIDInput struct {
	ID string `path:"id" doc:"Root span ID"`
}

type TraceOutput struct {
	Body *tracing.Span
}

type DashboardOutput struct {
	Body struct {
		AgentPerformance   map[string]metrics.AgentStats `json:"agent_performance"`
		IntentDistribution map[string]int64              `json:"intent_distribution"`
		Errors             map[string]int64              `json:"errors"`
		EscalationStats    metrics.EscalationStats       `json:"escalation_stats"`
		TraceSummary       tracing.Summary               `json:"trace_summary"`
		RecentTraces       []*tracing.Span               `json:"recent_traces"`
		TotalCalls         int64                         `json:"total_calls"`
		TotalEscalations   int64                         `json:"total_escalations"`
		UptimeSeconds      float64                       `json:"uptime_seconds"`
	}
}

// RegisterMonitoringRoutes registers the read-only observability endpoints.
// Must be mounted behind middleware.Auth and middleware.RequireReviewer.
func RegisterMonitoringRoutes(api huma.API, traces TraceSource, reg MetricsSource) {
	huma.Register(api, huma.Operation{
		OperationID: "get-metrics",
		Method:      http.MethodGet,
		Path:        "/monitoring/metrics",
		Summary:     "Agent performance and escalation counts",
		Tags:        []string{"Monitoring"},
	}, func(ctx context.Context, _ *struct{}) (*MetricsOutput, error) {
		stats, err := reg.EscalationStats(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to count escalations", err)
		}

		out := &MetricsOutput{}
		out.Body.Metrics = reg.Overview()
		out.Body.EscalationStats = stats
		out.Body.Timestamp = time.Now().UTC()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-traces",
		Method:      http.MethodGet,
		Path:        "/monitoring/traces",
		Summary:     "Recent request traces, most recent first",
		Tags:        []string{"Monitoring"},
	}, func(_ context.Context, input *TracesInput) (*TracesOutput, error) {
		out := &TracesOutput{}
		out.Body.Traces = orEmpty(traces.RecentTraces(input.Limit))
		out.Body.Summary = traces.Summary()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-trace",
		Method:      http.MethodGet,
		Path:        "/monitoring/traces/{id}",
		Summary:     "One trace with its span tree",
		Tags:        []string{"Monitoring"},
	}, func(_ context.Context, input *TraceIDInput) (*TraceOutput, error) {
		span, err := traces.GetTrace(tracing.SpanID(input.ID))
		if err != nil {
			if errors.Is(err, tracing.ErrTraceNotFound) {
				return nil, huma.Error404NotFound("trace not found")
			}
			return nil, huma.Error500InternalServerError("failed to get trace", err)
		}
		return &TraceOutput{Body: span}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-dashboard",
		Method:      http.MethodGet,
		Path:        "/monitoring/dashboard",
		Summary:     "Everything the monitoring dashboard shows",
		Tags:        []string{"Monitoring"},
	}, func(ctx context.Context, _ *struct{}) (*DashboardOutput, error) {
		var (
			overview metrics.Overview
			stats    metrics.EscalationStats
			summary  tracing.Summary
			recent   []*tracing.Span
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			stats, err = reg.EscalationStats(gctx)
			return err
		})
		g.Go(func() error {
			overview = reg.Overview()
			return nil
		})
		g.Go(func() error {
			summary = traces.Summary()
			recent = traces.RecentTraces(dashboardTraces)
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, huma.Error500InternalServerError("failed to build dashboard", err)
		}

		out := &DashboardOutput{}
		out.Body.AgentPerformance = overview.Agents
		out.Body.IntentDistribution = overview.IntentDistribution
		out.Body.Errors = overview.Errors
		out.Body.EscalationStats = stats
		out.Body.TraceSummary = summary
		out.Body.RecentTraces = orEmpty(recent)
		out.Body.TotalCalls = overview.TotalCalls
		out.Body.TotalEscalations = overview.TotalEscalations
		out.Body.UptimeSeconds = overview.UptimeSeconds
		return out, nil
	})
}

// RegisterMonitoringAdminRoutes registers destructive monitoring operations.
// Must be mounted behind middleware.Auth and middleware.RequireAdmin.
func RegisterMonitoringAdminRoutes(api huma.API, reg MetricsSource) {
	huma.Register(api, huma.Operation{
		OperationID:   "reset-metrics",
		Method:        http.MethodPost,
		Path:          "/monitoring/reset",
		Summary:       "Reset in-memory agent metrics",
		Tags:          []string{"Monitoring"},
		DefaultStatus: http.StatusNoContent,
	}, func(_ context.Context, _ *struct{}) (*struct{}, error) {
		reg.Reset()
		return nil, nil
	})
}

func orEmpty(s []*tracing.Span) []*tracing.Span {
	if s == nil {
		return []*tracing.Span{}
	}
	return s
}
