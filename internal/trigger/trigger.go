// Package trigger runs an action periodically, one firing at a time.
package trigger

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
)

var (
	ErrPending = errors.New("trigger firing already pending")
	ErrStopped = errors.New("trigger stopped")
)

type Action func() error

// Trigger has at most one outstanding firing. Next firing is armed
// only after action returned nil, so actions never overlap.
// Failed action stops the trigger and its error goes to Failed().
type Trigger struct {
	mu       sync.Mutex
	idle     *sync.Cond
	clock    Clock
	interval time.Duration
	timer    Timer
	pending  bool // armed or running
	running  bool
	stopped  bool
	failed   chan error
	fired    uint64
}

func New(clock Clock, interval time.Duration) *Trigger {
	if clock == nil {
		clock = Real{}
	}
	self := &Trigger{
		clock:    clock,
		interval: interval,
		failed:   make(chan error, 1),
	}
	self.idle = sync.NewCond(&self.mu)
	return self
}

func (self *Trigger) Interval() time.Duration { return self.interval }

// Start arms first firing after interval.
func (self *Trigger) Start(action Action) error { return self.arm(self.interval, action) }

// SubmitImmediate arms first firing with zero delay.
func (self *Trigger) SubmitImmediate(action Action) error { return self.arm(0, action) }

func (self *Trigger) Failed() <-chan error { return self.failed }

func (self *Trigger) Fired() uint64 { return atomic.LoadUint64(&self.fired) }

func (self *Trigger) Pending() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.pending
}

// Stop cancels pending firing and waits for running action.
// Must not be called from action.
func (self *Trigger) Stop() {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.stopped = true
	if self.timer != nil {
		self.timer.Stop()
		self.timer = nil
	}
	for self.running {
		self.idle.Wait()
	}
	self.pending = false
}

func (self *Trigger) arm(d time.Duration, action Action) error {
	if action == nil {
		return errors.NotValidf("trigger action=nil")
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.stopped {
		return ErrStopped
	}
	if self.pending {
		return ErrPending
	}
	self.pending = true
	self.schedule(d, action)
	return nil
}

// requires self.mu
func (self *Trigger) schedule(d time.Duration, action Action) {
	self.timer = self.clock.AfterFunc(d, func() { self.fire(action) })
}

func (self *Trigger) fire(action Action) {
	self.mu.Lock()
	if self.stopped || !self.pending || self.running {
		self.mu.Unlock()
		return
	}
	self.running = true
	self.timer = nil
	self.mu.Unlock()

	atomic.AddUint64(&self.fired, 1)
	err := action()

	self.mu.Lock()
	self.running = false
	if err != nil {
		self.stopped = true
	}
	if self.stopped {
		self.pending = false
	} else {
		self.schedule(self.interval, action)
	}
	self.idle.Broadcast()
	self.mu.Unlock()

	if err != nil {
		select {
		case self.failed <- err:
		default:
		}
	}
}
