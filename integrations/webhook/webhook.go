package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"scoreboard/core"
)

// Sink posts domain events to configured HTTP endpoints.
type Sink struct {
	client      *http.Client
	endpoints   []string
	maxAttempts uint
	initial     time.Duration
	log         *slog.Logger
	pending     sync.WaitGroup
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.client = &http.Client{Timeout: d}
		}
	}
}

// WithRetry sets the number of delivery attempts per endpoint and the first retry delay.
func WithRetry(attempts int, initial time.Duration) Option {
	return func(s *Sink) {
		if attempts > 0 {
			s.maxAttempts = uint(attempts)
		}
		if initial > 0 {
			s.initial = initial
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client:      &http.Client{Timeout: 2 * time.Second},
		maxAttempts: 3,
		initial:     200 * time.Millisecond,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// Notify delivers the event on its own goroutine and returns at once, so it is safe to
// subscribe on a synchronous bus. The delivery outlives ctx cancellation; Wait blocks
// until every pending delivery has finished.
func (s *Sink) Notify(ctx context.Context, e core.Event) {
	if len(s.endpoints) == 0 {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.Handle(context.WithoutCancel(ctx), e)
	}()
}

// Wait blocks until deliveries started by Notify are done.
func (s *Sink) Wait() { s.pending.Wait() }

// Handle posts the event JSON to every endpoint, blocking until all attempts are done. It has the event bus handler signature.
// Failures are logged; one endpoint failing does not stop delivery to the others.
func (s *Sink) Handle(ctx context.Context, e core.Event) {
	if len(s.endpoints) == 0 {
		return
	}
	body, err := json.Marshal(e)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to encode webhook payload", "error", err, "event", e.Type)
		return
	}
	for _, ep := range s.endpoints {
		if err := s.deliver(ctx, ep, body); err != nil {
			s.log.WarnContext(ctx, "webhook delivery failed", "endpoint", ep, "event", e.Type, "error", err)
		}
	}
}

func (s *Sink) deliver(ctx context.Context, endpoint string, body []byte) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initial

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		_ = resp.Body.Close()
		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return struct{}{}, fmt.Errorf("endpoint returned %d", resp.StatusCode)
		case resp.StatusCode >= 300:
			return struct{}{}, backoff.Permanent(fmt.Errorf("endpoint returned %d", resp.StatusCode))
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(s.maxAttempts),
	)
	return err
}
