package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/ymahak/cust/internal/api/v1"
	"github.com/ymahak/cust/internal/metrics"
	"github.com/ymahak/cust/internal/tracing"
)

func staticMetrics() *mockMetrics {
	return &mockMetrics{
		overviewFunc: func() metrics.Overview {
			return metrics.Overview{
				Agents: map[string]metrics.AgentStats{
					"support_agent": {TotalCalls: 4, Escalations: 1, EscalationRate: 0.25},
				},
				IntentDistribution: map[string]int64{"refund": 3, "greeting": 1},
				Errors:             map[string]int64{},
				TotalCalls:         8,
				TotalEscalations:   1,
			}
		},
		statsFunc: func(context.Context) (metrics.EscalationStats, error) {
			return metrics.EscalationStats{Pending: 1, Resolved: 2, Rejected: 3}, nil
		},
	}
}

func seededTracer(n int) *tracing.Tracer {
	tr := tracing.New()
	for range n {
		root := tr.StartSpan(context.Background(), "chat_request", "")
		child := tr.StartSpan(context.Background(), "guard", root)
		tr.EndSpan(child, tracing.StatusCompleted)
		tr.EndSpan(root, tracing.StatusCompleted)
	}
	return tr
}

func TestGetMetrics(t *testing.T) {
	t.Parallel()

	_, api := humatest.New(t)
	v1.RegisterMonitoringRoutes(api, seededTracer(0), staticMetrics())

	resp := api.GetCtx(reviewerCtx(), "/monitoring/metrics")
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Metrics         metrics.Overview        `json:"metrics"`
		EscalationStats metrics.EscalationStats `json:"escalation_stats"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(4), body.Metrics.Agents["support_agent"].TotalCalls)
	assert.Equal(t, int64(3), body.Metrics.IntentDistribution["refund"])
	assert.Equal(t, metrics.EscalationStats{Pending: 1, Resolved: 2, Rejected: 3}, body.EscalationStats)
}

func TestListTraces(t *testing.T) {
	t.Parallel()

	_, api := humatest.New(t)
	v1.RegisterMonitoringRoutes(api, seededTracer(12), staticMetrics())

	resp := api.GetCtx(reviewerCtx(), "/monitoring/traces?limit=5")
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Traces  []tracing.Span  `json:"traces"`
		Summary tracing.Summary `json:"summary"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Traces, 5)
	assert.Equal(t, 12, body.Summary.Total)
	assert.Equal(t, 12, body.Summary.Completed)
	require.Len(t, body.Traces[0].Children, 1)
	assert.Equal(t, "guard", body.Traces[0].Children[0].Operation)

	resp = api.GetCtx(reviewerCtx(), "/monitoring/traces")
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Traces, 12)
}

func TestGetTrace(t *testing.T) {
	t.Parallel()

	tr := tracing.New()
	root := tr.StartSpan(context.Background(), "chat_request", "")
	tr.EndSpan(root, tracing.StatusFailed)

	_, api := humatest.New(t)
	v1.RegisterMonitoringRoutes(api, tr, staticMetrics())

	resp := api.GetCtx(reviewerCtx(), "/monitoring/traces/"+string(root))
	require.Equal(t, http.StatusOK, resp.Code)

	var span tracing.Span
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&span))
	assert.Equal(t, root, span.ID)
	assert.Equal(t, tracing.StatusFailed, span.Status)

	resp = api.GetCtx(reviewerCtx(), "/monitoring/traces/missing")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestDashboard(t *testing.T) {
	t.Parallel()

	t.Run("aggregates_sources", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterMonitoringRoutes(api, seededTracer(15), staticMetrics())

		resp := api.GetCtx(reviewerCtx(), "/monitoring/dashboard")
		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			AgentPerformance   map[string]metrics.AgentStats `json:"agent_performance"`
			IntentDistribution map[string]int64              `json:"intent_distribution"`
			EscalationStats    metrics.EscalationStats       `json:"escalation_stats"`
			TraceSummary       tracing.Summary               `json:"trace_summary"`
			RecentTraces       []tracing.Span                `json:"recent_traces"`
			TotalCalls         int64                         `json:"total_calls"`
			TotalEscalations   int64                         `json:"total_escalations"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Contains(t, body.AgentPerformance, "support_agent")
		assert.Equal(t, int64(1), body.IntentDistribution["greeting"])
		assert.Equal(t, int64(1), body.EscalationStats.Pending)
		assert.Equal(t, 15, body.TraceSummary.Total)
		assert.Len(t, body.RecentTraces, 10)
		assert.Equal(t, int64(8), body.TotalCalls)
		assert.Equal(t, int64(1), body.TotalEscalations)
	})

	t.Run("escalation_store_error_500", func(t *testing.T) {
		t.Parallel()

		m := staticMetrics()
		m.statsFunc = func(context.Context) (metrics.EscalationStats, error) {
			return metrics.EscalationStats{}, errors.New("db down")
		}

		traces := &mockTraces{
			recentFunc:  func(int) []*tracing.Span { return nil },
			getFunc:     func(tracing.SpanID) (*tracing.Span, error) { return nil, tracing.ErrTraceNotFound },
			summaryFunc: func() tracing.Summary { return tracing.Summary{} },
		}

		_, api := humatest.New(t)
		v1.RegisterMonitoringRoutes(api, traces, m)

		resp := api.GetCtx(reviewerCtx(), "/monitoring/dashboard")
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
	})
}

func TestResetMetrics(t *testing.T) {
	t.Parallel()

	m := staticMetrics()
	_, api := humatest.New(t)
	v1.RegisterMonitoringAdminRoutes(api, m)

	resp := api.PostCtx(reviewerCtx(), "/monitoring/reset")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, 1, m.resetCalls)
}
