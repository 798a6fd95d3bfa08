// Package otel provides OpenTelemetry metrics, tracing setup, and HTTP
// instrumentation for agentgate.
package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentgate"

// Metrics holds all agentgate metric instruments. A nil *Metrics is a
// valid no-op, so tests can run services without a meter provider.
type Metrics struct {
	AuthzDecisions  metric.Int64Counter
	ActionsProposed metric.Int64Counter
	Decisions       metric.Int64Counter
	Executions      metric.Int64Counter
	Rollbacks       metric.Int64Counter
	ActionsExpired  metric.Int64Counter
	ExecDuration    metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.AuthzDecisions, err = meter.Int64Counter("agentgate.authz.decisions",
		metric.WithDescription("Authorization checks, labeled by outcome"))
	if err != nil {
		return nil, err
	}

	m.ActionsProposed, err = meter.Int64Counter("agentgate.actions.proposed",
		metric.WithDescription("Pending actions created"))
	if err != nil {
		return nil, err
	}

	m.Decisions, err = meter.Int64Counter("agentgate.actions.decisions",
		metric.WithDescription("Human decisions, labeled by verdict"))
	if err != nil {
		return nil, err
	}

	m.Executions, err = meter.Int64Counter("agentgate.actions.executions",
		metric.WithDescription("Approved tool executions, labeled by outcome"))
	if err != nil {
		return nil, err
	}

	m.Rollbacks, err = meter.Int64Counter("agentgate.actions.rollbacks",
		metric.WithDescription("Rollback attempts, labeled by outcome"))
	if err != nil {
		return nil, err
	}

	m.ActionsExpired, err = meter.Int64Counter("agentgate.actions.expired",
		metric.WithDescription("Pending actions flipped to EXPIRED"))
	if err != nil {
		return nil, err
	}

	m.ExecDuration, err = meter.Float64Histogram("agentgate.execution.duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// IncAuthz records one authorization decision.
func (m *Metrics) IncAuthz(ctx context.Context, allowed bool, role string) {
	if m == nil {
		return
	}
	m.AuthzDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("allowed", allowed),
		attribute.String("role", role),
	))
}

// IncProposed records one pending action created.
func (m *Metrics) IncProposed(ctx context.Context, toolName string) {
	if m == nil {
		return
	}
	m.ActionsProposed.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", toolName)))
}

// IncDecision records one human decision.
func (m *Metrics) IncDecision(ctx context.Context, verdict string) {
	if m == nil {
		return
	}
	m.Decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
}

// ObserveExecution records an execution outcome and its duration.
func (m *Metrics) ObserveExecution(ctx context.Context, toolName string, d time.Duration, success bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", toolName),
		attribute.Bool("success", success),
	)
	m.Executions.Add(ctx, 1, attrs)
	m.ExecDuration.Record(ctx, d.Seconds(), attrs)
}

// IncRollback records one rollback attempt.
func (m *Metrics) IncRollback(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.Rollbacks.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// AddExpired records pending actions flipped to EXPIRED.
func (m *Metrics) AddExpired(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ActionsExpired.Add(ctx, int64(n))
}
