package trigger

import (
	"sort"
	"sync"
	"time"
)

type Timer interface {
	// Stop returns false if timer already fired or was stopped.
	Stop() bool
}

// Clock is the timer facility. f runs on a goroutine chosen by Clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type Real struct{}

func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Manual is deterministic Clock for tests.
// Timers fire only inside Advance, on the caller goroutine.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	clock *Manual
	when  time.Time
	seq   uint64
	f     func()
}

func NewManual(start time.Time) *Manual { return &Manual{now: start} }

func (self *Manual) Now() time.Time {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.now
}

func (self *Manual) AfterFunc(d time.Duration, f func()) Timer {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.seq++
	t := &manualTimer{clock: self, when: self.now.Add(d), seq: self.seq, f: f}
	self.timers = append(self.timers, t)
	return t
}

// Pending returns number of active timers.
func (self *Manual) Pending() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return len(self.timers)
}

// Advance moves time forward by d, firing every timer due until then
// in deadline order, including timers armed by fired callbacks.
// Advance(0) fires zero delay timers.
func (self *Manual) Advance(d time.Duration) {
	self.mu.Lock()
	target := self.now.Add(d)
	self.mu.Unlock()

	for {
		self.mu.Lock()
		sort.Slice(self.timers, func(i, j int) bool {
			a, b := self.timers[i], self.timers[j]
			if a.when.Equal(b.when) {
				return a.seq < b.seq
			}
			return a.when.Before(b.when)
		})
		if len(self.timers) == 0 || self.timers[0].when.After(target) {
			self.now = target
			self.mu.Unlock()
			return
		}
		t := self.timers[0]
		self.timers = self.timers[1:]
		if t.when.After(self.now) {
			self.now = t.when
		}
		self.mu.Unlock()
		t.f()
	}
}

func (self *manualTimer) Stop() bool {
	c := self.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.timers {
		if t == self {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return true
		}
	}
	return false
}
