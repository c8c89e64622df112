// Package link tracks cellular network registration.
// Events are pushed by a Provider on its own goroutines into Monitor.Dispatch,
// controller code blocks in Monitor.WaitRegistered.
package link

import (
	"fmt"
)

type State uint8

const (
	StateUnregistered State = iota
	StateHome
	StateRoaming
)

func (s State) Registered() bool { return s == StateHome || s == StateRoaming }

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateHome:
		return "home"
	case StateRoaming:
		return "roaming"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// RegStatus values follow 3GPP +CEREG <stat>.
type RegStatus uint8

const (
	NotRegistered       RegStatus = 0
	RegisteredHome      RegStatus = 1
	Searching           RegStatus = 2
	RegistrationDenied  RegStatus = 3
	Unknown             RegStatus = 4
	RegisteredRoaming   RegStatus = 5
	RegisteredEmergency RegStatus = 8
	UICCFail            RegStatus = 90
)

var regStatusNames = map[RegStatus]string{
	NotRegistered:       "not registered",
	RegisteredHome:      "Connected - home network",
	Searching:           "searching",
	RegistrationDenied:  "registration denied",
	Unknown:             "unknown",
	RegisteredRoaming:   "Connected - roaming",
	RegisteredEmergency: "registered emergency",
	UICCFail:            "UICC failure",
}

func (s RegStatus) String() string {
	if name, ok := regStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("RegStatus(%d)", uint8(s))
}

// State maps modem status to link state; only home and roaming count as registered.
func (s RegStatus) State() State {
	switch s {
	case RegisteredHome:
		return StateHome
	case RegisteredRoaming:
		return StateRoaming
	}
	return StateUnregistered
}

type RRCMode uint8

const (
	RRCIdle RRCMode = iota
	RRCConnected
)

func (m RRCMode) String() string {
	if m == RRCConnected {
		return "Connected"
	}
	return "Idle"
}

type EventKind uint8

const (
	EventRegStatus EventKind = iota + 1
	EventPSMUpdate
	EventEDRXUpdate
	EventRRCUpdate
	EventCellUpdate
)

// String values are used as metric labels.
func (k EventKind) String() string {
	switch k {
	case EventRegStatus:
		return "reg_status"
	case EventPSMUpdate:
		return "psm"
	case EventEDRXUpdate:
		return "edrx"
	case EventRRCUpdate:
		return "rrc"
	case EventCellUpdate:
		return "cell"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// PSM timers in seconds.
type PSMConfig struct {
	TAU        int
	ActiveTime int
}

// eDRX cycle and paging time window in seconds.
type EDRXConfig struct {
	EDRX float32
	PTW  float32
}

type Cell struct {
	ID  uint32
	TAC uint32
}

// Event payload fields are valid according to Kind.
type Event struct {
	Kind      EventKind
	RegStatus RegStatus
	PSM       PSMConfig
	EDRX      EDRXConfig
	RRC       RRCMode
	Cell      Cell
}

func RegStatusEvent(s RegStatus) Event { return Event{Kind: EventRegStatus, RegStatus: s} }
func PSMEvent(tau, activeTime int) Event {
	return Event{Kind: EventPSMUpdate, PSM: PSMConfig{TAU: tau, ActiveTime: activeTime}}
}
func EDRXEvent(edrx, ptw float32) Event {
	return Event{Kind: EventEDRXUpdate, EDRX: EDRXConfig{EDRX: edrx, PTW: ptw}}
}
func RRCEvent(m RRCMode) Event { return Event{Kind: EventRRCUpdate, RRC: m} }
func CellEvent(id, tac uint32) Event {
	return Event{Kind: EventCellUpdate, Cell: Cell{ID: id, TAC: tac}}
}

func (e Event) String() string {
	switch e.Kind {
	case EventRegStatus:
		return "Network registration status: " + e.RegStatus.String()
	case EventPSMUpdate:
		return fmt.Sprintf("PSM parameter update: TAU: %d, Active time: %d", e.PSM.TAU, e.PSM.ActiveTime)
	case EventEDRXUpdate:
		return fmt.Sprintf("eDRX parameter update: eDRX: %f, PTW: %f", e.EDRX.EDRX, e.EDRX.PTW)
	case EventRRCUpdate:
		return "RRC mode: " + e.RRC.String()
	case EventCellUpdate:
		return fmt.Sprintf("LTE cell changed: Cell ID: %d, Tracking area: %d", e.Cell.ID, e.Cell.TAC)
	}
	return fmt.Sprintf("link event kind=%d", uint8(e.Kind))
}
