package core

import (
	"sync"
	"time"
)

// Clock abstracts timer creation so coalescing can be tested without
// sleeping.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the stoppable half of a scheduled callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// coalescer debounces per-key change signals. Each key moves
// idle→pending on its first trigger; further triggers while pending are
// absorbed. When the delay elapses the key fires once and returns to
// idle, so a burst of signals costs one callback and a steady trickle
// costs one callback per delay window.
type coalescer[K comparable] struct {
	delay time.Duration
	clock Clock
	fire  func(key K)

	mu      sync.Mutex
	pending map[K]Timer
	stopped bool
}

func newCoalescer[K comparable](delay time.Duration, clock Clock, fire func(key K)) *coalescer[K] {
	if clock == nil {
		clock = realClock{}
	}
	return &coalescer[K]{
		delay:   delay,
		clock:   clock,
		fire:    fire,
		pending: make(map[K]Timer),
	}
}

// Trigger signals a change for key. The first trigger arms the timer;
// subsequent ones are absorbed until it fires.
func (c *coalescer[K]) Trigger(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if _, armed := c.pending[key]; armed {
		return
	}
	c.pending[key] = c.clock.AfterFunc(c.delay, func() {
		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			return
		}
		delete(c.pending, key)
		c.mu.Unlock()
		c.fire(key)
	})
}

// Stop cancels all armed timers and refuses further triggers.
func (c *coalescer[K]) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for key, timer := range c.pending {
		timer.Stop()
		delete(c.pending, key)
	}
}
