// Package limiter gates outbound device commands behind the vendor's request ceiling.
//
// A Bucket holds Ceiling tokens. Acquire spends one; a spent token comes back
// exactly Window after it was granted, so no rolling Window ever sees more than
// Ceiling grants. Callers that find the bucket empty wait in arrival order.
package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Bucket is a FIFO token bucket shared by every caller of one vendor API key.
//
// Thread Safety: All methods are safe for concurrent use.
type Bucket struct {
	ceiling int
	window  time.Duration
	now     func() time.Time

	mu      sync.Mutex
	grants  []time.Time // grant times inside the current window, oldest first
	waiters []*waiter

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	onWait func(d time.Duration)
}

// waiter is one blocked Acquire call. Fields are guarded by Bucket.mu.
type waiter struct {
	ready     chan struct{}
	granted   bool
	abandoned bool
}

// Option configures a Bucket.
type Option func(*Bucket)

// WithClock replaces time.Now for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Bucket) {
		if now != nil {
			b.now = now
		}
	}
}

// WithWaitObserver registers a callback receiving how long each Acquire waited.
func WithWaitObserver(fn func(d time.Duration)) Option {
	return func(b *Bucket) {
		b.onWait = fn
	}
}

// New creates a full bucket and starts its dispatcher.
// Close must be called to release the dispatcher goroutine.
func New(ceiling int, window time.Duration, opts ...Option) (*Bucket, error) {
	if ceiling < 1 {
		return nil, fmt.Errorf("%w: ceiling %d", ErrInvalidConfig, ceiling)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: window %v", ErrInvalidConfig, window)
	}

	b := &Bucket{
		ceiling: ceiling,
		window:  window,
		now:     time.Now,
		grants:  make([]time.Time, 0, ceiling),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.wg.Add(1)
	go b.dispatch()

	return b, nil
}

// Acquire blocks until a token is available, ctx is done, or the bucket is closed.
//
// Returns:
//   - nil once a token has been granted
//   - ctx.Err() wrapped with ErrCanceled if the caller gave up first
//   - ErrClosed if the bucket shut down while waiting
func (b *Bucket) Acquire(ctx context.Context) error {
	start := b.now()

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		return ErrClosed
	default:
	}

	// Fast path keeps FIFO: only taken when nobody is queued.
	if len(b.waiters) == 0 && b.nextSlotLocked(start) <= 0 {
		b.grantLocked(start)
		b.mu.Unlock()
		b.observe(0)
		return nil
	}

	w := &waiter{ready: make(chan struct{})}
	b.waiters = append(b.waiters, w)
	b.mu.Unlock()
	b.signal()

	select {
	case <-w.ready:
		b.observe(b.now().Sub(start))
		return nil
	case <-ctx.Done():
		if b.abandon(w) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	case <-b.done:
		if b.abandon(w) {
			return nil
		}
		return ErrClosed
	}
}

// abandon marks w as given up. It reports true if the grant won the race,
// in which case the caller holds a token after all.
func (b *Bucket) abandon(w *waiter) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w.granted {
		return true
	}
	w.abandoned = true
	return false
}

// Close releases every pending waiter with ErrClosed and stops the dispatcher.
// It is safe to call more than once.
func (b *Bucket) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
}

// Available returns how many tokens could be granted right now.
func (b *Bucket) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(b.now())
	return b.ceiling - len(b.grants)
}

// Waiting returns the number of callers currently queued.
func (b *Bucket) Waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, w := range b.waiters {
		if !w.abandoned {
			n++
		}
	}
	return n
}

// dispatch grants tokens to queued waiters in arrival order.
func (b *Bucket) dispatch() {
	defer b.wg.Done()

	for {
		b.mu.Lock()
		for len(b.waiters) > 0 && b.waiters[0].abandoned {
			b.waiters = b.waiters[1:]
		}

		if len(b.waiters) == 0 {
			b.mu.Unlock()
			select {
			case <-b.wake:
				continue
			case <-b.done:
				return
			}
		}

		now := b.now()
		wait := b.nextSlotLocked(now)
		if wait <= 0 {
			w := b.waiters[0]
			b.waiters = b.waiters[1:]
			w.granted = true
			b.grantLocked(now)
			close(w.ready)
			b.mu.Unlock()
			continue
		}
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-b.wake:
			timer.Stop()
		case <-b.done:
			timer.Stop()
			return
		}
	}
}

// nextSlotLocked returns how long until a token frees up (<= 0 means now).
func (b *Bucket) nextSlotLocked(now time.Time) time.Duration {
	b.pruneLocked(now)
	if len(b.grants) < b.ceiling {
		return 0
	}
	return b.grants[0].Add(b.window).Sub(now)
}

// pruneLocked forgets grants that have aged out of the window.
func (b *Bucket) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.grants) && !b.grants[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.grants = append(b.grants[:0], b.grants[i:]...)
	}
}

func (b *Bucket) grantLocked(now time.Time) {
	b.grants = append(b.grants, now)
}

// signal nudges the dispatcher without blocking.
func (b *Bucket) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bucket) observe(d time.Duration) {
	if b.onWait != nil {
		b.onWait(d)
	}
}
