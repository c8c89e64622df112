// Package sim runs controller against simulated modem driven from console.
package sim

import (
	"context"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/uplink/cmd/uplink/run"
	"github.com/temoto/uplink/cmd/uplink/subcmd"
	"github.com/temoto/uplink/helpers"
	"github.com/temoto/uplink/helpers/cli"
	"github.com/temoto/uplink/internal/controller"
	"github.com/temoto/uplink/internal/link"
	"github.com/temoto/uplink/internal/state"
)

const modName = "sim"

var Mod = subcmd.Mod{Name: modName, Usage: "interactive simulated modem console", Main: Main}

var suggests = []prompt.Suggest{
	{Text: "reg", Description: "reg home|roaming|searching|denied|none|unknown|emergency|uicc_fail"},
	{Text: "psm", Description: "psm TAU ACTIVE_TIME"},
	{Text: "edrx", Description: "edrx EDRX PTW"},
	{Text: "rrc", Description: "rrc connected|idle"},
	{Text: "cell", Description: "cell ID TAC"},
	{Text: "state", Description: "show controller and link state"},
	{Text: "quit", Description: "shutdown and exit"},
}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	config.Link.Enable = true
	config.Link.Provider = state.ProviderSim
	g.MustInit(ctx, config)

	c, err := newConsole(g)
	if err != nil {
		return err
	}
	c.start(ctx)

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- cli.MainLoop(modName, os.Stdin, func(line string) {
			if !c.exec(line) {
				g.Stop()
				// prompt calls exec with terminal restored, keep it so until exit
				select {}
			}
		}, cli.Complete(suggests))
	}()
	select {
	case <-g.Alive.StopChan():
	case err := <-loopDone:
		if err != nil {
			g.Log.Errorf("console err=%v", err)
		}
	}
	return c.stop()
}

type console struct {
	g      *state.Global
	ctl    *controller.Controller
	result *helpers.Future
}

func newConsole(g *state.Global) (*console, error) {
	if g.Sim == nil {
		return nil, errors.NotValidf("sim provider is not configured")
	}
	ctl, err := run.NewController(g, func(s controller.State, err error) { run.Notify(g, s, err) })
	if err != nil {
		return nil, err
	}
	return &console{g: g, ctl: ctl, result: helpers.NewFuture()}, nil
}

func (self *console) start(ctx context.Context) {
	go func() {
		err := self.ctl.Run(ctx)
		self.result.Complete(err)
	}()
}

// stop returns controller failure, nil after clean shutdown.
func (self *console) stop() error {
	self.ctl.Shutdown()
	result, _, _ := self.result.Wait(context.Background())
	if err, ok := result.(error); ok && err != nil {
		return errors.Annotate(err, modName)
	}
	return nil
}

// exec returns false on quit.
func (self *console) exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return false

	case "state":
		self.g.Log.Infof("controller=%s link=%s status=%s since_event=%v",
			self.ctl.State().String(), self.ctl.Monitor().State().String(),
			self.ctl.Monitor().Status().String(), self.ctl.Monitor().SinceLastEvent())
		self.g.Log.Infof("totals %s", self.ctl.Totals().Snapshot().String())
		if self.result.Done() {
			self.g.Log.Infof("controller result=%v", self.result.Result())
		}
		return true
	}

	e, err := link.ParseEvent(line)
	if err != nil {
		self.g.Log.Errorf("console: %v", err)
		return true
	}
	if err := self.g.Sim.Push(e); err != nil {
		self.g.Log.Errorf("console: %v", err)
	}
	return true
}
