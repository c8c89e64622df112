package tele

import (
	"context"
	"fmt"

	"github.com/temoto/uplink/log2"
	tele_config "github.com/temoto/uplink/tele/config"
)

// Teler is device side telemetry client.
// Contract:
//   - Init() fails only with invalid config, network issues ignored
//   - public API calls block at most for disk write,
//     network may be slow or absent, messages are delivered in background
//   - telemetry never fails the caller
type Teler interface {
	Init(context.Context, *log2.Log, tele_config.Config) error
	Close()
	State(State)
	Error(error)
	Link(*Telemetry_Link)
	Report(*Telemetry_Session, *Totals)
}

type State int32

const (
	State_Invalid State = iota
	State_Boot
	State_AwaitingLink
	State_Connecting
	State_Streaming
	State_Failed
	State_Stopped
)

var stateNames = [...]string{"Invalid", "Boot", "AwaitingLink", "Connecting", "Streaming", "Failed", "Stopped"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

func TopicState(deviceId int) string     { return fmt.Sprintf("dev%d/w/1s", deviceId) }
func TopicTelemetry(deviceId int) string { return fmt.Sprintf("dev%d/w/1t", deviceId) }
func TopicConnect(deviceId int) string   { return fmt.Sprintf("dev%d/c", deviceId) }
