package llm

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy 定义重试策略配置
type RetryPolicy struct {
	MaxRetries   int           `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`       // 最大重试次数（0 表示不重试）
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay" env:"INITIAL_DELAY"` // 初始延迟时间
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay" env:"MAX_DELAY"`             // 最大延迟时间
	Multiplier   float64       `yaml:"multiplier" json:"multiplier" env:"MULTIPLIER"`          // 指数退避倍增因子
	Jitter       bool          `yaml:"jitter" json:"jitter" env:"JITTER"`                      // 是否添加 ±25% 随机抖动
}

// DefaultRetryPolicy 返回默认的重试策略
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   2,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	return p
}

// delay returns the wait before attempt (1-based):
// initial * multiplier^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) delay(attempt int, rnd func() float64) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d += (rnd()*2 - 1) * d * 0.25
	}
	if d < float64(p.InitialDelay) {
		d = float64(p.InitialDelay)
	}
	return time.Duration(d)
}

// IsRetryable reports whether a failed Submit may succeed when repeated:
// upstream errors marked retryable and transport failures. Malformed
// responses and cancelled contexts are final.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var upstream *Error
	if errors.As(err, &upstream) {
		return upstream.Retryable
	}
	var inf *InferenceError
	if errors.As(err, &inf) {
		return inf.Reason == ReasonRequestFailed || inf.Reason == ReasonIncompleteStream
	}
	return false
}

// RetryBackend repeats retryable jobs with exponential backoff.
type RetryBackend struct {
	next   Backend
	policy RetryPolicy
	logger *zap.Logger
	rnd    func() float64
	sleep  func(ctx context.Context, d time.Duration) error
}

var _ Backend = (*RetryBackend)(nil)

// NewRetryBackend wraps next. A policy with MaxRetries 0 submits once.
func NewRetryBackend(next Backend, policy RetryPolicy, logger *zap.Logger) *RetryBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryBackend{
		next:   next,
		policy: policy.normalized(),
		logger: logger.With(zap.String("component", "llm_retry")),
		rnd:    rand.Float64,
		sleep:  sleepContext,
	}
}

// Submit forwards job until it succeeds, fails permanently or the retries
// are used up. The last error is returned unchanged.
func (b *RetryBackend) Submit(ctx context.Context, job *Job) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= b.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := b.policy.delay(attempt, b.rnd)
			b.logger.Debug("retrying job",
				zap.String("job_id", job.ID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := b.sleep(ctx, delay); err != nil {
				return nil, lastErr
			}
		}

		resp, err := b.next.Submit(ctx, job)
		if err == nil {
			if attempt > 0 {
				b.logger.Info("job succeeded after retry",
					zap.String("job_id", job.ID),
					zap.Int("attempt", attempt))
			}
			return resp, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
	}

	b.logger.Warn("retries exhausted",
		zap.String("job_id", job.ID),
		zap.Int("attempts", b.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	return nil, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
