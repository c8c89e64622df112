package tele

import (
	"context"

	"github.com/temoto/uplink/log2"
	tele_config "github.com/temoto/uplink/tele/config"
)

type Noop struct{}

var _ Teler = Noop{} // compile-time interface test

func (Noop) Init(context.Context, *log2.Log, tele_config.Config) error { return nil }

func (Noop) Close() {}

func (Noop) State(State) {}

func (Noop) Error(error) {}

func (Noop) Link(*Telemetry_Link) {}

func (Noop) Report(*Telemetry_Session, *Totals) {}
