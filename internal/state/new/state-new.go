// Sorry, workaround to import cycles.
package state_new

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/temoto/alive/v2"
	"github.com/temoto/uplink/internal/state"
	"github.com/temoto/uplink/log2"
	tele_api "github.com/temoto/uplink/tele"
)

func NewContext(log *log2.Log, teler tele_api.Teler) (context.Context, *state.Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &state.Global{
		Alive: alive.NewAlive(),
		Log:   log,
		Tele:  teler,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, state.ContextKey, g)

	return ctx, g
}

func NewTestContext(t testing.TB, buildVersion string, confString string) (context.Context, *state.Global) {
	fs := state.NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	var log *log2.Log
	if os.Getenv("uplink_test_log_stderr") == "1" {
		log = log2.NewStderr(log2.LDebug) // useful with panics
	} else {
		log = log2.NewTest(t, log2.LDebug)
	}
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log, tele_api.Noop{})
	g.BuildVersion = buildVersion
	g.MustInit(ctx, state.MustReadConfig(log, fs, "test-inline"))
	t.Cleanup(func() { g.StopWait(5 * time.Second) })

	return ctx, g
}
