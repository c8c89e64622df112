package state

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/uplink/helpers"
	"github.com/temoto/uplink/internal/link"
	"github.com/temoto/uplink/internal/observability"
	"github.com/temoto/uplink/internal/persist"
	"github.com/temoto/uplink/internal/uplink"
	"github.com/temoto/uplink/log2"
	tele_api "github.com/temoto/uplink/tele"
)

// Global holds process wide collaborators shared by commands.
type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Log          *log2.Log
	Tele         tele_api.Teler

	Metrics     *observability.Collector
	MetricsAddr string
	Totals      *uplink.Totals
	Persist     *persist.Persist
	// Provider is nil when link control is disabled.
	Provider link.Provider
	Sim      *link.Sim
}

const ContextKey = "run/state-global"

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	if g.Tele == nil {
		g.Tele = tele_api.Noop{}
	}
	if cfg.LogDebug {
		g.Log.SetLevel(log2.LDebug)
	}
	g.Log.Infof("build version=%s", g.BuildVersion)

	// Since tele is remote error reporting mechanism, it must be inited before anything else
	g.Config.Tele.BuildVersion = g.BuildVersion
	// Tele.Init gets g.Log clone before SetErrorFunc, so Tele.Log.Error doesn't recurse on itself
	if err := g.Tele.Init(ctx, g.Log.Clone(log2.LInfo), g.Config.Tele); err != nil {
		g.Tele = tele_api.Noop{}
		return errors.Annotate(err, "tele init")
	}
	g.Log.SetErrorFunc(g.Tele.Error)

	if g.BuildVersion == "unknown" {
		g.Error(fmt.Errorf("build version is not set, please use script/build"))
	}

	errs := make([]error, 0, 3)
	if err := g.initTotals(); err != nil {
		errs = append(errs, err)
	}
	if err := g.initMetrics(); err != nil {
		errs = append(errs, err)
	}
	if err := g.initProvider(); err != nil {
		errs = append(errs, err)
	}
	return helpers.FoldErrors(errs)
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		// g.Log error hook already forwards to tele
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}

func (g *Global) initTotals() error {
	g.Totals = new(uplink.Totals)
	p, err := persist.New("totals", g.Totals, g.Config.Persist.Root, g.Log)
	if err != nil {
		return errors.Annotate(err, "initTotals")
	}
	g.Persist = p
	g.Log.Debugf("config: persist.root=%s enabled=%t", g.Config.Persist.Root, p.Enabled())
	return errors.Annotate(p.Load(), "initTotals")
}

func (g *Global) initMetrics() error {
	c, err := observability.NewCollector(nil)
	if err != nil {
		return errors.Annotate(err, "initMetrics")
	}
	g.Metrics = c
	if g.Config.Metrics.Listen == "" {
		return nil
	}
	addr, err := c.Serve(g.Alive, g.Config.Metrics.Listen, g.Log)
	if err != nil {
		return errors.Annotate(err, "initMetrics")
	}
	g.MetricsAddr = addr
	return nil
}

func (g *Global) initProvider() error {
	if !g.Config.Link.Enable {
		return nil
	}
	switch g.Config.Link.Provider {
	case ProviderSim:
		sc := g.Config.Link.Sim
		g.Sim = link.NewSim(g.Log, link.SimConfig{
			AutoRegister: sc.AutoRegister,
			RejectPSM:    sc.RejectPSM,
			RejectEDRX:   sc.RejectEDRX,
			RejectRAI:    sc.RejectRAI,
		})
		g.Provider = g.Sim
		return nil
	case ProviderNone:
		return nil
	}
	return errors.NotValidf("link.provider=%s", g.Config.Link.Provider)
}
