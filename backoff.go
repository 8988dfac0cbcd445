package groq

import "time"

// Backoff defaults.
const (
	DefaultInitialInterval = time.Second
	DefaultMultiplier      = 2.0
	DefaultMaxInterval     = 60 * time.Second
	DefaultMaxElapsedTime  = time.Hour
)

// Backoff generates deterministic exponential wait durations for one logical
// operation. A Backoff is not safe for concurrent use; the Client copies its
// prototype for every call.
type Backoff struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	// MaxElapsedTime bounds the whole retry loop. Zero means no bound.
	MaxElapsedTime time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	current time.Duration
	start   time.Time
}

// DefaultBackoff returns a Backoff with the default parameters, reset and
// ready for use.
func DefaultBackoff() *Backoff {
	b := &Backoff{
		InitialInterval: DefaultInitialInterval,
		Multiplier:      DefaultMultiplier,
		MaxInterval:     DefaultMaxInterval,
		MaxElapsedTime:  DefaultMaxElapsedTime,
	}
	b.Reset()
	return b
}

// WithMaxAttempts bounds the elapsed budget to roughly five seconds per
// attempt and returns b.
func (b *Backoff) WithMaxAttempts(attempts int) *Backoff {
	b.MaxElapsedTime = time.Duration(attempts) * 5 * time.Second
	return b
}

// Clone returns a fresh, reset copy of b sharing its parameters.
func (b *Backoff) Clone() *Backoff {
	c := &Backoff{
		InitialInterval: b.InitialInterval,
		Multiplier:      b.Multiplier,
		MaxInterval:     b.MaxInterval,
		MaxElapsedTime:  b.MaxElapsedTime,
		Now:             b.Now,
	}
	c.Reset()
	return c
}

// Reset returns b to the initial interval and restarts the elapsed clock.
// Call it only when starting a new logical operation.
func (b *Backoff) Reset() {
	b.current = b.InitialInterval
	b.start = b.now()
}

// Next returns the wait before the next attempt. A positive hint is returned
// verbatim and leaves the exponential state untouched. Otherwise the current
// interval is returned and the state grows by Multiplier, capped at
// MaxInterval. The second result is false once the elapsed time since Reset
// plus the wait would exceed MaxElapsedTime.
func (b *Backoff) Next(hint time.Duration) (time.Duration, bool) {
	if b.start.IsZero() {
		b.Reset()
	}
	var d time.Duration
	if hint > 0 {
		d = hint
	} else {
		d = b.current
		if b.MaxInterval > 0 && d > b.MaxInterval {
			d = b.MaxInterval
		}
		b.advance()
	}
	if b.MaxElapsedTime > 0 && b.Elapsed()+d > b.MaxElapsedTime {
		return 0, false
	}
	return d, true
}

// Elapsed returns the time since the last Reset.
func (b *Backoff) Elapsed() time.Duration {
	return b.now().Sub(b.start)
}

func (b *Backoff) advance() {
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	next := time.Duration(float64(b.current) * mult)
	if b.MaxInterval > 0 && (next > b.MaxInterval || next < b.current) {
		next = b.MaxInterval
	}
	b.current = next
}

func (b *Backoff) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}
