package controller

import (
	"fmt"

	"github.com/temoto/uplink/tele"
)

type State int32

const (
	StateIdle State = iota
	StateAwaitingLink
	StateConnecting
	StateStreaming
	StateFailed
	StateStopped
)

var stateNames = [...]string{"Idle", "AwaitingLink", "Connecting", "Streaming", "Failed", "Stopped"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

func (s State) Terminal() bool { return s == StateFailed || s == StateStopped }

func (s State) Tele() tele.State {
	switch s {
	case StateIdle:
		return tele.State_Boot
	case StateAwaitingLink:
		return tele.State_AwaitingLink
	case StateConnecting:
		return tele.State_Connecting
	case StateStreaming:
		return tele.State_Streaming
	case StateFailed:
		return tele.State_Failed
	case StateStopped:
		return tele.State_Stopped
	}
	return tele.State_Invalid
}
