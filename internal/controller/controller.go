// Package controller runs link wait, connect and periodic send in sequence.
package controller

import (
	"context"
	"net"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/uplink/internal/link"
	"github.com/temoto/uplink/internal/trigger"
	"github.com/temoto/uplink/internal/uplink"
	"github.com/temoto/uplink/log2"
	"github.com/temoto/uplink/tele"
)

var ErrAlreadyRun = errors.New("controller Run called twice")

// Metrics receives controller observations. Implementations must not block.
type Metrics interface {
	LinkEvent(kind string, registered bool)
	Send(bytes int, err error)
	ControllerState(state int)
}

type Storer interface {
	Store() error
}

type Options struct {
	Log      *log2.Log
	Provider link.Provider // nil disables link control
	Monitor  *link.Monitor
	Dialer   uplink.Dialer
	Clock    trigger.Clock
	Tele     tele.Teler
	Metrics  Metrics
	Totals   *uplink.Totals
	Persist  Storer
	// OnState is called on every transition from the transitioning goroutine.
	OnState func(State, error)
}

type Controller struct {
	alive    *alive.Alive
	log      *log2.Log
	config   Config
	provider link.Provider
	monitor  *link.Monitor
	dialer   uplink.Dialer
	clock    trigger.Clock
	tele     tele.Teler
	metrics  Metrics
	totals   *uplink.Totals
	persist  Storer
	onState  func(State, error)

	mu      sync.Mutex
	started bool
	state   State
	err     error
	session *uplink.Session
	trigger *trigger.Trigger
}

func New(config Config, opt Options) *Controller {
	self := &Controller{
		alive:    alive.NewAlive(),
		log:      opt.Log,
		config:   config,
		provider: opt.Provider,
		monitor:  opt.Monitor,
		dialer:   opt.Dialer,
		clock:    opt.Clock,
		tele:     opt.Tele,
		metrics:  opt.Metrics,
		totals:   opt.Totals,
		persist:  opt.Persist,
		onState:  opt.OnState,
		state:    StateIdle,
	}
	if self.monitor == nil {
		self.monitor = link.NewMonitor(self.log)
	}
	if self.dialer == nil {
		self.dialer = &net.Dialer{}
	}
	if self.clock == nil {
		self.clock = trigger.Real{}
	}
	if self.tele == nil {
		self.tele = tele.Noop{}
	}
	if self.totals == nil {
		self.totals = new(uplink.Totals)
	}
	if !self.config.LinkEnable {
		self.provider = nil
	}
	self.monitor.Observe(self.onLinkEvent)
	return self
}

func (self *Controller) Monitor() *link.Monitor { return self.monitor }
func (self *Controller) Totals() *uplink.Totals { return self.totals }

func (self *Controller) State() State {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.state
}

// Err returns terminal failure.
func (self *Controller) Err() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.err
}

// Run blocks until failure, Shutdown or ctx done.
// Returns nil on Shutdown or ctx cancel, otherwise the fatal error:
// *link.LinkError, *uplink.ConnectError or *uplink.SendError.
// No retry.
func (self *Controller) Run(ctx context.Context) error {
	if err := self.config.validate(); err != nil {
		return self.fail(err)
	}
	self.mu.Lock()
	if self.started {
		self.mu.Unlock()
		return ErrAlreadyRun
	}
	self.started = true
	self.mu.Unlock()
	if !self.alive.Add(1) {
		self.setState(StateStopped, nil)
		return nil
	}
	defer self.alive.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-self.alive.StopChan():
			cancel()
		case <-ctx.Done():
		}
	}()

	self.totals.AddBoot()
	self.store()
	tr := trigger.New(self.clock, self.config.Interval)
	self.mu.Lock()
	self.trigger = tr
	self.mu.Unlock()
	self.setState(StateIdle, nil)

	if self.provider != nil {
		self.setState(StateAwaitingLink, nil)
		if err := self.awaitLink(ctx); err != nil {
			if ctx.Err() != nil {
				return self.stop()
			}
			return self.fail(err)
		}
	}

	self.setState(StateConnecting, nil)
	session, err := uplink.Connect(ctx, self.dialer, self.config.Endpoint, uplink.Options{
		Log:          self.log,
		DialTimeout:  self.config.DialTimeout,
		WriteTimeout: self.config.WriteTimeout,
	})
	if err != nil {
		if ctx.Err() != nil {
			return self.stop()
		}
		self.log.Errorf("not able to connect to TCP server %s", self.config.Endpoint.String())
		return self.fail(err)
	}
	self.mu.Lock()
	self.session = session
	self.mu.Unlock()
	self.totals.AddConnect()
	self.store()

	payload := make([]byte, self.config.PayloadSize)
	if err := tr.SubmitImmediate(func() error { return self.send(session, payload) }); err != nil {
		return self.fail(errors.Annotate(err, "arm trigger"))
	}
	self.setState(StateStreaming, nil)

	select {
	case err := <-tr.Failed():
		if ctx.Err() != nil {
			return self.stop()
		}
		return self.fail(err)
	case <-ctx.Done():
		return self.stop()
	}
}

// Shutdown cancels pending firing, disconnects and waits Run to return.
// Safe in any state, repeatedly and concurrently. Failed state is kept.
func (self *Controller) Shutdown() {
	self.alive.Stop()
	self.alive.Wait()
	self.teardown()
	self.mu.Lock()
	st := self.state
	self.mu.Unlock()
	if !st.Terminal() {
		self.setState(StateStopped, nil)
	}
}

func (self *Controller) awaitLink(ctx context.Context) error {
	if err := link.ConfigureLowPower(self.provider, self.config.LowPower, self.log); err != nil {
		self.log.Infof("unable to set low power configuration, continue")
	}
	if err := self.provider.Connect(self.monitor.Dispatch); err != nil {
		return &link.LinkError{Op: "connect", Err: errors.Annotate(err, "modem configuration")}
	}
	waitCtx := ctx
	if self.config.LinkWaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, self.config.LinkWaitTimeout)
		defer cancel()
	}
	st, err := self.monitor.WaitRegistered(waitCtx)
	if err != nil {
		return err
	}
	self.log.Debugf("link registered state=%s", st.String())
	return nil
}

func (self *Controller) send(session *uplink.Session, payload []byte) error {
	if !self.alive.IsRunning() {
		return nil
	}
	err := session.Send(payload)
	if self.metrics != nil {
		self.metrics.Send(len(payload)+uplink.TCPIPHeaderSize, err)
	}
	if err == nil {
		self.totals.AddSend(len(payload))
		self.store()
	}
	self.tele.Report(session.Telemetry(), self.totals.Snapshot())
	return err
}

func (self *Controller) fail(err error) error {
	self.teardown()
	self.mu.Lock()
	self.err = err
	self.mu.Unlock()
	self.totals.AddFailure()
	self.store()
	self.log.Errorf("controller failed: %v", err)
	self.setState(StateFailed, err)
	return err
}

func (self *Controller) stop() error {
	self.teardown()
	self.setState(StateStopped, nil)
	return nil
}

// teardown closes connection first to unblock a running send.
func (self *Controller) teardown() {
	self.mu.Lock()
	session, tr := self.session, self.trigger
	self.mu.Unlock()
	if session != nil {
		if err := session.Disconnect(); err != nil {
			self.log.Debugf("uplink disconnect err=%v", err)
		}
	}
	if tr != nil {
		tr.Stop()
	}
}

func (self *Controller) setState(s State, err error) {
	self.mu.Lock()
	prev := self.state
	self.state = s
	self.mu.Unlock()
	if err != nil {
		self.log.Infof("controller state %s -> %s err=%v", prev.String(), s.String(), err)
	} else {
		self.log.Infof("controller state %s -> %s", prev.String(), s.String())
	}
	if self.metrics != nil {
		self.metrics.ControllerState(int(s))
	}
	self.tele.State(s.Tele())
	if self.onState != nil {
		self.onState(s, err)
	}
}

func (self *Controller) onLinkEvent(e link.Event) {
	registered := self.monitor.State().Registered()
	if self.metrics != nil {
		self.metrics.LinkEvent(e.Kind.String(), registered)
	}
	self.tele.Link(&tele.Telemetry_Link{
		Kind:       e.Kind.String(),
		Text:       e.String(),
		Registered: registered,
	})
}

func (self *Controller) store() {
	if self.persist == nil {
		return
	}
	if err := self.persist.Store(); err != nil {
		self.log.Errorf("%v", errors.ErrorStack(err))
	}
}
