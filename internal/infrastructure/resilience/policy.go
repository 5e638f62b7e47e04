package resilience

import "time"

// Class tells the executor how to treat a failed attempt.
type Class uint8

const (
	// Permanent failures are returned at once and count against the breaker.
	Permanent Class = iota
	// Transient failures are retried with backoff and count against the breaker.
	Transient
	// Ignored failures are returned at once and leave the breaker untouched:
	// cancellation and requests the dependency rightly refused.
	Ignored
	// Recoverable failures are fixed by the call's recovery hook, after which
	// the call runs once more. They never count against the breaker.
	Recoverable
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Ignored:
		return "ignored"
	case Recoverable:
		return "recoverable"
	default:
		return "permanent"
	}
}

// recorded reports whether the breaker counts the failure.
func (c Class) recorded() bool {
	return c == Permanent || c == Transient
}

type Classifier func(err error) Class

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

type BreakerPolicy struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

type Config struct {
	Retry   RetryPolicy
	Breaker BreakerPolicy

	// OnStateChange is notified after every breaker transition.
	OnStateChange func(operation, from, to string)
}

func DefaultConfig() Config {
	return Config{
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     400 * time.Millisecond,
			Multiplier:     2.0,
		},
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      10,
			FailureRatio:     0.5,
			OpenTimeout:      30 * time.Second,
			HalfOpenMaxCalls: 2,
		},
	}
}

// normalize fills zero or out-of-range knobs from DefaultConfig. Breaker.Enabled
// is taken as given.
func (c Config) normalize() Config {
	def := DefaultConfig()
	out := c

	r := &out.Retry
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = def.Retry.MaxAttempts
	}
	if r.InitialBackoff <= 0 {
		r.InitialBackoff = def.Retry.InitialBackoff
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = def.Retry.MaxBackoff
	}
	r.MaxBackoff = max(r.MaxBackoff, r.InitialBackoff)
	if r.Multiplier < 1.0 {
		r.Multiplier = def.Retry.Multiplier
	}

	b := &out.Breaker
	if b.MinRequests == 0 {
		b.MinRequests = def.Breaker.MinRequests
	}
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		b.FailureRatio = def.Breaker.FailureRatio
	}
	if b.OpenTimeout <= 0 {
		b.OpenTimeout = def.Breaker.OpenTimeout
	}
	if b.HalfOpenMaxCalls == 0 {
		b.HalfOpenMaxCalls = def.Breaker.HalfOpenMaxCalls
	}
	return out
}

// next returns the capped wait after the given one.
func (r RetryPolicy) next(wait time.Duration) time.Duration {
	return min(time.Duration(float64(wait)*r.Multiplier), r.MaxBackoff)
}
