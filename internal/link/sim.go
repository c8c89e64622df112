package link

import (
	"strconv"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/uplink/log2"
)

type SimConfig struct {
	// AutoRegister is a ParseRegStatus name pushed after Connect, empty disables.
	AutoRegister string
	// Reject* non-zero codes fail corresponding requests with ModemError.
	RejectPSM     int
	RejectEDRX    int
	RejectRAI     int
	RejectConnect int
}

type SimRequest struct {
	Option string
	Enable bool
}

// Sim is in-process modem Provider. Events are pushed by tests or console.
type Sim struct {
	mu       sync.Mutex
	log      *log2.Log
	config   SimConfig
	handler  func(Event)
	requests []SimRequest
	wg       sync.WaitGroup
}

var _ Provider = &Sim{} // compile-time interface test

func NewSim(log *log2.Log, config SimConfig) *Sim {
	return &Sim{log: log, config: config}
}

func (self *Sim) Connect(handler func(Event)) error {
	var auto RegStatus
	if self.config.AutoRegister != "" {
		var err error
		if auto, err = ParseRegStatus(self.config.AutoRegister); err != nil {
			return errors.Annotate(err, "sim auto_register")
		}
	}

	self.mu.Lock()
	defer self.mu.Unlock()
	if self.config.RejectConnect != 0 {
		return ModemError(self.config.RejectConnect)
	}
	if self.handler != nil {
		return errors.Errorf("sim already connected")
	}
	self.handler = handler
	self.log.Debugf("sim connect auto_register=%s", self.config.AutoRegister)

	if self.config.AutoRegister != "" {
		self.wg.Add(1)
		go func() {
			defer self.wg.Done()
			handler(RegStatusEvent(Searching))
			handler(RegStatusEvent(auto))
		}()
	}
	return nil
}

func (self *Sim) RequestPSM(enable bool) error {
	return self.request("psm", enable, self.config.RejectPSM)
}
func (self *Sim) RequestEDRX(enable bool) error {
	return self.request("edrx", enable, self.config.RejectEDRX)
}
func (self *Sim) RequestRAI(enable bool) error {
	return self.request("rai", enable, self.config.RejectRAI)
}

func (self *Sim) request(option string, enable bool, reject int) error {
	self.mu.Lock()
	self.requests = append(self.requests, SimRequest{Option: option, Enable: enable})
	self.mu.Unlock()
	if reject != 0 {
		return ModemError(reject)
	}
	return nil
}

func (self *Sim) Requests() []SimRequest {
	self.mu.Lock()
	defer self.mu.Unlock()
	result := make([]SimRequest, len(self.requests))
	copy(result, self.requests)
	return result
}

// Push delivers e to connected handler on caller goroutine.
func (self *Sim) Push(e Event) error {
	self.mu.Lock()
	h := self.handler
	self.mu.Unlock()
	if h == nil {
		return errors.Errorf("sim not connected")
	}
	h(e)
	return nil
}

// Wait returns after background auto registration is delivered.
func (self *Sim) Wait() { self.wg.Wait() }

var regStatusParse = map[string]RegStatus{
	"none":      NotRegistered,
	"home":      RegisteredHome,
	"searching": Searching,
	"denied":    RegistrationDenied,
	"unknown":   Unknown,
	"roaming":   RegisteredRoaming,
	"emergency": RegisteredEmergency,
	"uicc_fail": UICCFail,
}

func ParseRegStatus(s string) (RegStatus, error) {
	if st, ok := regStatusParse[strings.ToLower(s)]; ok {
		return st, nil
	}
	return NotRegistered, errors.NotValidf("registration status=%s", s)
}

// ParseEvent reads console line:
//
//	reg home|roaming|searching|denied|none|unknown|emergency|uicc_fail
//	psm TAU ACTIVE
//	edrx EDRX PTW
//	rrc connected|idle
//	cell ID TAC
func ParseEvent(line string) (Event, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Event{}, errors.NotValidf("event empty")
	}
	args := parts[1:]
	need := func(n int) error {
		if len(args) != n {
			return errors.NotValidf("event %s requires %d arguments, got %d", parts[0], n, len(args))
		}
		return nil
	}
	switch strings.ToLower(parts[0]) {
	case "reg":
		if err := need(1); err != nil {
			return Event{}, err
		}
		st, err := ParseRegStatus(args[0])
		if err != nil {
			return Event{}, err
		}
		return RegStatusEvent(st), nil

	case "psm":
		if err := need(2); err != nil {
			return Event{}, err
		}
		tau, err1 := strconv.Atoi(args[0])
		active, err2 := strconv.Atoi(args[1])
		if err1 != nil || err2 != nil {
			return Event{}, errors.NotValidf("psm arguments=%v", args)
		}
		return PSMEvent(tau, active), nil

	case "edrx":
		if err := need(2); err != nil {
			return Event{}, err
		}
		edrx, err1 := strconv.ParseFloat(args[0], 32)
		ptw, err2 := strconv.ParseFloat(args[1], 32)
		if err1 != nil || err2 != nil {
			return Event{}, errors.NotValidf("edrx arguments=%v", args)
		}
		return EDRXEvent(float32(edrx), float32(ptw)), nil

	case "rrc":
		if err := need(1); err != nil {
			return Event{}, err
		}
		switch strings.ToLower(args[0]) {
		case "connected":
			return RRCEvent(RRCConnected), nil
		case "idle":
			return RRCEvent(RRCIdle), nil
		}
		return Event{}, errors.NotValidf("rrc mode=%s", args[0])

	case "cell":
		if err := need(2); err != nil {
			return Event{}, err
		}
		id, err1 := strconv.ParseUint(args[0], 0, 32)
		tac, err2 := strconv.ParseUint(args[1], 0, 32)
		if err1 != nil || err2 != nil {
			return Event{}, errors.NotValidf("cell arguments=%v", args)
		}
		return CellEvent(uint32(id), uint32(tac)), nil
	}
	return Event{}, errors.NotValidf("event=%s", parts[0])
}
