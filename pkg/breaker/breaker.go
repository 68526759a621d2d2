package breaker

import (
	"errors"
	"sync"
	"time"
)

type state uint8

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

var ErrOpen = errors.New("circuit breaker is open")

// Breaker is a sliding-window circuit breaker. It trips open when the
// failure ratio over the last windowSize calls reaches tripRatio, stays
// open for cooldown, then lets probe calls through; probes successful
// calls in a row close it again.
type Breaker struct {
	mu sync.Mutex

	st         state
	window     []bool
	pos        int
	tripRatio  float64
	cooldown   time.Duration
	openedAt   time.Time
	probes     int
	probeCount int
}

func New(windowSize int, cooldown time.Duration, tripRatio float64, probes int) *Breaker {
	return &Breaker{
		st:        stateClosed,
		window:    make([]bool, windowSize),
		tripRatio: tripRatio,
		cooldown:  cooldown,
		probes:    probes,
	}
}

func (b *Breaker) Call(fn func() error) error {
	b.mu.Lock()
	if b.st == stateOpen {
		if time.Since(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.st = stateHalfOpen
		b.probeCount = 0
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.window[b.pos] = err != nil
	b.pos = (b.pos + 1) % len(b.window)

	if b.st == stateHalfOpen {
		if err != nil {
			b.trip()
			return err
		}
		b.probeCount++
		if b.probeCount >= b.probes {
			b.reset()
		}
		return nil
	}

	fails := 0
	for _, failed := range b.window {
		if failed {
			fails++
		}
	}
	if float64(fails)/float64(len(b.window)) >= b.tripRatio {
		b.trip()
	}
	return err
}

func (b *Breaker) trip() {
	b.st = stateOpen
	b.openedAt = time.Now()
	b.probeCount = 0
}

func (b *Breaker) reset() {
	for i := range b.window {
		b.window[i] = false
	}
	b.pos = 0
	b.probeCount = 0
	b.st = stateClosed
}
