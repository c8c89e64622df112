package link

import (
	"context"
	"sync"
	"time"

	"github.com/temoto/atomic_clock"
	"github.com/temoto/uplink/log2"
)

type Monitor struct {
	mu     sync.Mutex
	log    *log2.Log
	state  State
	status RegStatus
	// closed while registered, replaced on leaving registered state
	registered chan struct{}
	observers  []func(Event)
	lastEvent  atomic_clock.Clock
}

func NewMonitor(log *log2.Log) *Monitor {
	return &Monitor{
		log:        log,
		status:     NotRegistered,
		registered: make(chan struct{}),
	}
}

// Observe adds event sink. Sinks run on dispatching goroutine and must not block.
func (self *Monitor) Observe(f func(Event)) {
	self.mu.Lock()
	self.observers = append(self.observers, f)
	self.mu.Unlock()
}

func (self *Monitor) Dispatch(e Event) {
	self.lastEvent.SetNow()
	self.mu.Lock()
	if e.Kind == EventRegStatus {
		prev := self.state
		self.status = e.RegStatus
		self.state = e.RegStatus.State()
		switch {
		case !prev.Registered() && self.state.Registered():
			close(self.registered)
		case prev.Registered() && !self.state.Registered():
			self.registered = make(chan struct{})
		}
	}
	observers := self.observers
	self.mu.Unlock()

	if e.Kind == EventRegStatus && !e.RegStatus.State().Registered() {
		self.log.Debugf("%s", e.String())
	} else {
		self.log.Infof("%s", e.String())
	}
	for _, f := range observers {
		f(e)
	}
}

func (self *Monitor) State() State {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.state
}

func (self *Monitor) Status() RegStatus {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.status
}

// SinceLastEvent returns 0 if no event was dispatched yet.
func (self *Monitor) SinceLastEvent() time.Duration {
	if self.lastEvent.IsZero() {
		return 0
	}
	return atomic_clock.Since(&self.lastEvent)
}

// WaitRegistered blocks until home or roaming registration.
// Returns immediately when already registered.
// Only ctx bounds the wait; on ctx done returns *LinkError.
func (self *Monitor) WaitRegistered(ctx context.Context) (State, error) {
	for {
		self.mu.Lock()
		st, ch := self.state, self.registered
		self.mu.Unlock()
		if st.Registered() {
			return st, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return st, &LinkError{Op: "wait registered", Err: ctx.Err()}
		}
	}
}
