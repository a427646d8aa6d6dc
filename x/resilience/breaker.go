package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow and Do while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

// BreakerState is the breaker's observable state.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold uint32
	// Cooldown is how long the breaker stays open before probing. It doubles
	// on each reopen up to MaxCooldown and resets on a successful probe.
	Cooldown time.Duration
	// MaxCooldown caps the doubling. Zero means 10x Cooldown.
	MaxCooldown time.Duration
	// OnStateChange, when set, observes transitions.
	OnStateChange func(from, to BreakerState)
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Breaker is a mutex-guarded circuit breaker with Closed, Open and HalfOpen
// states and a single in-flight probe in HalfOpen.
type Breaker struct {
	mu sync.Mutex

	cfg      BreakerConfig
	state    BreakerState
	failures uint32
	until    time.Time
	cooldown time.Duration
	probing  bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold == 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.MaxCooldown <= 0 {
		cfg.MaxCooldown = 10 * cfg.Cooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg, state: StateClosed, cooldown: cfg.Cooldown}
}

// Allow reports whether a call may proceed. While Open it fails fast with
// ErrOpen until the cooldown elapses, then admits a single HalfOpen probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.cfg.Now().Before(b.until) {
			return ErrOpen
		}
		b.setState(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

// RecordSuccess resets the breaker after a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	if b.state != StateClosed {
		b.cooldown = b.cfg.Cooldown
		b.setState(StateClosed)
	}
}

// RecordFailure counts a failed call. In Closed it opens the breaker at the
// threshold; in HalfOpen it reopens with a doubled cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.Threshold {
			b.open()
		}
	case StateHalfOpen:
		b.probing = false
		b.cooldown *= 2
		if b.cooldown > b.cfg.MaxCooldown {
			b.cooldown = b.cfg.MaxCooldown
		}
		b.open()
	case StateOpen:
		// Late failures from calls admitted before opening.
	}
}

// State returns the current state, reporting an Open breaker whose cooldown
// has elapsed as HalfOpen. The state itself changes only on the next Allow.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && !b.cfg.Now().Before(b.until) {
		return StateHalfOpen
	}
	return b.state
}

// Do runs fn under the breaker. A rejected call returns a Busy-classified
// error; fn outcomes are returned unchanged, and all but Busy errors are
// recorded as a success or failure first.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.Allow(); err != nil {
		return Busy(err)
	}
	err := fn(ctx)
	if err != nil {
		if Classify(err) == KindBusy {
			b.clearProbe()
			return err
		}
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

func (b *Breaker) clearProbe() {
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

func (b *Breaker) open() {
	b.until = b.cfg.Now().Add(b.cooldown)
	b.failures = 0
	b.setState(StateOpen)
}

func (b *Breaker) setState(to BreakerState) {
	from := b.state
	b.state = to
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
