// Package run is the production command: wait link, connect, stream until failure or signal.
package run

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/uplink/cmd/uplink/subcmd"
	"github.com/temoto/uplink/internal/controller"
	"github.com/temoto/uplink/internal/state"
)

const modName = "run"

var Mod = subcmd.Mod{Name: modName, Usage: "stream to configured server", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)

	ctl, err := NewController(g, func(s controller.State, err error) { Notify(g, s, err) })
	if err != nil {
		return err
	}
	go func() {
		<-g.Alive.StopChan()
		ctl.Shutdown()
	}()

	if err := ctl.Run(ctx); err != nil {
		// no retry, stay up with Failed state reported until stopped
		g.Log.Infof("controller failed, idle until stop")
		<-g.Alive.StopChan()
		return errors.Annotate(err, modName)
	}
	return nil
}

// NewController binds controller to Global collaborators.
func NewController(g *state.Global, onState func(controller.State, error)) (*controller.Controller, error) {
	config, err := controller.NewConfig(g.Config)
	if err != nil {
		return nil, err
	}
	return controller.New(config, controller.Options{
		Log:      g.Log,
		Provider: g.Provider,
		Tele:     g.Tele,
		Metrics:  g.Metrics,
		Totals:   g.Totals,
		Persist:  g.Persist,
		OnState:  onState,
	}), nil
}

// Notify reports controller transitions to systemd.
func Notify(g *state.Global, s controller.State, err error) {
	status := fmt.Sprintf("STATUS=%s", s.String())
	if err != nil {
		status += fmt.Sprintf(" err=%v", err)
	}
	subcmd.SdNotify(g.Log, status)
	if s == controller.StateStreaming {
		subcmd.SdNotify(g.Log, "READY=1")
	}
}
