// Package provider fetches message summaries from the user's mailbox.
package provider

import (
	"context"
	"errors"
	"time"

	"mailminder/internal/apperr"
	"mailminder/internal/model"
	"mailminder/pkg/circuitbreaker"
	"mailminder/pkg/metrics"
)

// Credentials 调用方透传的邮箱凭据
type Credentials struct {
	AccessToken string
	Username    string
}

// MessageProvider returns the current important inbox messages.
// Implementations return an empty slice, not an error, when there is nothing
// to show.
type MessageProvider interface {
	Name() string
	Fetch(ctx context.Context, creds Credentials) ([]model.MessageSummary, error)
}

const (
	defaultSubject = "(No Subject)"
	defaultSender  = "(Unknown Sender)"
)

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// guarded 熔断 + 延迟指标
type guarded struct {
	next    MessageProvider
	breaker *circuitbreaker.CircuitBreaker
}

// WithBreaker wraps p with a circuit breaker. Credential rejections do not
// count as provider failures.
func WithBreaker(p MessageProvider, cfg circuitbreaker.Config) MessageProvider {
	cfg.IsFailure = func(err error) bool {
		return !apperr.Is(err, apperr.KindUnauthenticated) && !errors.Is(err, context.Canceled)
	}
	return &guarded{
		next:    p,
		breaker: circuitbreaker.NewCircuitBreaker("provider_"+p.Name(), cfg),
	}
}

func (g *guarded) Name() string { return g.next.Name() }

func (g *guarded) Fetch(ctx context.Context, creds Credentials) ([]model.MessageSummary, error) {
	start := time.Now()
	var out []model.MessageSummary
	err := g.breaker.Execute(func() error {
		var err error
		out, err = g.next.Fetch(ctx, creds)
		return err
	})

	status := "ok"
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen):
		status = "circuit_open"
	case err != nil:
		status = "error"
	}
	metrics.RecordProviderFetchLatency(g.next.Name(), status, time.Since(start))
	return out, err
}
