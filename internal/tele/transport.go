package tele

import (
	"context"

	"github.com/temoto/uplink/log2"
	tele_config "github.com/temoto/uplink/tele/config"
)

// Tele transport contract:
// - Init fails only with invalid config, ignores network errors
// - Send* deliver within timeout or fail; success includes ack from broker
// - hide "connection" concept from upstream API or errors
// - application may start without network available
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, willPayload []byte) error
	SendState(payload []byte) bool
	SendTelemetry(payload []byte) bool
	Close()
}
