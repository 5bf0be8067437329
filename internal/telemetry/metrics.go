package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys used by the portal.
const (
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"

	AttrAccessOutcome  = "access.outcome"
	AttrAccessState    = "access.state"
	AttrAccessProvider = "access.provider"

	AttrAuthMethod  = "auth.method"
	AttrAuthSuccess = "auth.success"
)

// ServerMetrics holds metric instruments for HTTP server telemetry.
// Instruments come from the global meter provider; without one they are no-ops.
type ServerMetrics struct {
	RequestCounter  metric.Int64Counter     // Total HTTP requests
	RequestDuration metric.Float64Histogram // HTTP request latency
	ErrorCounter    metric.Int64Counter     // Total HTTP errors (5xx)
}

// NewServerMetrics creates a new ServerMetrics instance with pre-configured instruments.
func NewServerMetrics() (*ServerMetrics, error) {
	meter := otel.Meter("portal/http")

	requestCounter, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	// Buckets: 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s
	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"http.server.error.count",
		metric.WithDescription("Total number of HTTP server errors (5xx)"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &ServerMetrics{
		RequestCounter:  requestCounter,
		RequestDuration: requestDuration,
		ErrorCounter:    errorCounter,
	}, nil
}

// RecordRequest records an HTTP request with method, route, status, and duration.
func (m *ServerMetrics) RecordRequest(ctx context.Context, method, route, status string, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPRoute, route),
		attribute.String(AttrHTTPStatusCode, status),
	)

	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, durationMs, attrs)

	if len(status) > 0 && status[0] == '5' {
		m.ErrorCounter.Add(ctx, 1, attrs)
	}
}

// AccessMetrics counts access decisions.
type AccessMetrics struct {
	Decisions metric.Int64Counter
}

// NewAccessMetrics creates the portal.access.decisions counter.
func NewAccessMetrics() (*AccessMetrics, error) {
	meter := otel.Meter("portal/access")

	decisions, err := meter.Int64Counter(
		"portal.access.decisions",
		metric.WithDescription("Access decisions by outcome and state"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}
	return &AccessMetrics{Decisions: decisions}, nil
}

// RecordDecision counts one decision.
func (a *AccessMetrics) RecordDecision(ctx context.Context, outcome, state, provider string) {
	a.Decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrAccessOutcome, outcome),
		attribute.String(AttrAccessState, state),
		attribute.String(AttrAccessProvider, provider),
	))
}

// AuthMetrics holds metric instruments for login attempts.
type AuthMetrics struct {
	AuthAttempts metric.Int64Counter // Total auth attempts
	AuthFailures metric.Int64Counter // Failed auth attempts
}

// NewAuthMetrics creates metric instruments for authentication telemetry.
func NewAuthMetrics() (*AuthMetrics, error) {
	meter := otel.Meter("portal/auth")

	authAttempts, err := meter.Int64Counter(
		"auth.attempt.count",
		metric.WithDescription("Total number of login attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	authFailures, err := meter.Int64Counter(
		"auth.failure.count",
		metric.WithDescription("Total number of failed login attempts"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{AuthAttempts: authAttempts, AuthFailures: authFailures}, nil
}

// RecordAuth records a login attempt for method (local, oidc).
func (a *AuthMetrics) RecordAuth(ctx context.Context, method string, success bool) {
	attrs := metric.WithAttributes(
		attribute.String(AttrAuthMethod, method),
		attribute.Bool(AttrAuthSuccess, success),
	)

	a.AuthAttempts.Add(ctx, 1, attrs)
	if !success {
		a.AuthFailures.Add(ctx, 1, attrs)
	}
}

// Metrics bundles every instrument set the server records into.
type Metrics struct {
	Server *ServerMetrics
	Access *AccessMetrics
	Auth   *AuthMetrics
}

// NewMetrics creates all instrument sets.
func NewMetrics() (*Metrics, error) {
	server, err := NewServerMetrics()
	if err != nil {
		return nil, err
	}
	access, err := NewAccessMetrics()
	if err != nil {
		return nil, err
	}
	auth, err := NewAuthMetrics()
	if err != nil {
		return nil, err
	}
	return &Metrics{Server: server, Access: access, Auth: auth}, nil
}
