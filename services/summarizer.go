package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dhruvagrawal1080/PDF-Chat/models"
)

// RetryPolicy controls summarization attempts for a single page.
//
// Every attempt, the first included, is preceded by Pacing. After a failed
// attempt with attempts remaining the summarizer waits
// BaseBackoff*2^(attempt-1) plus a uniform jitter in [0, MaxJitter).
type RetryPolicy struct {
	MaxAttempts int
	Pacing      time.Duration
	BaseBackoff time.Duration
	MaxJitter   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Pacing:      2 * time.Second,
		BaseBackoff: 2 * time.Second,
		MaxJitter:   time.Second,
	}
}

// Backoff returns the wait after the given failed attempt, excluding jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseBackoff * time.Duration(1<<(attempt-1))
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Summarizer produces one summary per page using the client pool. Calls for
// different pages may run concurrently.
type Summarizer struct {
	pool    *ClientPool
	policy  RetryPolicy
	log     *zap.Logger
	metrics *Metrics

	sleep  SleepFunc
	jitter func(max time.Duration) time.Duration
}

type SummarizerOption func(*Summarizer)

// WithSleep replaces the wait function, for tests.
func WithSleep(fn SleepFunc) SummarizerOption {
	return func(s *Summarizer) { s.sleep = fn }
}

// WithJitter replaces the jitter source, for tests.
func WithJitter(fn func(max time.Duration) time.Duration) SummarizerOption {
	return func(s *Summarizer) { s.jitter = fn }
}

func WithSummarizerMetrics(m *Metrics) SummarizerOption {
	return func(s *Summarizer) { s.metrics = m }
}

func NewSummarizer(pool *ClientPool, policy RetryPolicy, log *zap.Logger, opts ...SummarizerOption) *Summarizer {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	s := &Summarizer{
		pool:   pool,
		policy: policy,
		log:    log,
		sleep:  sleepContext,
		jitter: randomJitter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

// Summarize summarizes page with the client chosen by index. It returns a
// *SummarizationError once the attempts are used up or ctx is cancelled.
func (s *Summarizer) Summarize(ctx context.Context, page models.Page, index int) (models.SummarizedPage, error) {
	client := s.pool.Pick(index)
	log := s.log.With(zap.Int("page", page.PageNumber), zap.Int("client", index%s.pool.Size()))

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		if err := s.sleep(ctx, s.policy.Pacing); err != nil {
			return models.SummarizedPage{}, s.fail(page, attempts, lastErr, err)
		}

		attempts = attempt
		summary, err := client.Generate(ctx, summarizerSystemPrompt, summarizeUserMessage(page.RawContent))
		if err == nil {
			summary = strings.TrimSpace(summary)
			if summary != "" {
				return models.NewSummarizedPage(page, summary), nil
			}
			err = errors.New("empty summary")
		}
		lastErr = err
		log.Warn("Summarization attempt failed", zap.Int("attempt", attempt), zap.Error(err))

		if ctx.Err() != nil {
			return models.SummarizedPage{}, s.fail(page, attempts, lastErr, ctx.Err())
		}
		if attempt == s.policy.MaxAttempts {
			break
		}

		wait := s.policy.Backoff(attempt) + s.jitter(s.policy.MaxJitter)
		log.Info("Retrying summarization", zap.Duration("backoff", wait))
		if s.metrics != nil {
			s.metrics.SummarizeRetries.Inc()
		}
		if err := s.sleep(ctx, wait); err != nil {
			return models.SummarizedPage{}, s.fail(page, attempts, lastErr, err)
		}
	}
	return models.SummarizedPage{}, &SummarizationError{Page: page.PageNumber, Attempts: attempts, Err: lastErr}
}

// fail reports a cancellation, keeping the last provider error for context.
func (s *Summarizer) fail(page models.Page, attempts int, lastErr, ctxErr error) error {
	err := ctxErr
	if lastErr != nil {
		err = fmt.Errorf("%w (last error: %v)", ctxErr, lastErr)
	}
	return &SummarizationError{Page: page.PageNumber, Attempts: attempts, Err: err}
}
