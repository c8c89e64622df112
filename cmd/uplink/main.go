package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/uplink/cmd/uplink/run"
	"github.com/temoto/uplink/cmd/uplink/sim"
	"github.com/temoto/uplink/cmd/uplink/subcmd"
	"github.com/temoto/uplink/internal/state"
	state_new "github.com/temoto/uplink/internal/state/new"
	"github.com/temoto/uplink/internal/tele"
	"github.com/temoto/uplink/log2"
)

var BuildVersion string = "unknown" // set by ldflags -X

var modules = []subcmd.Mod{
	run.Mod,
	sim.Mod,
}

func main() {
	flagConfig := flag.String("config", "uplink.hcl", "")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-config path] command\nCommands:\n", os.Args[0])
		for _, m := range modules {
			fmt.Fprintf(flag.CommandLine.Output(), "  %-6s %s\n", m.Name, m.Usage)
		}
		flag.PrintDefaults()
	}
	flag.Parse()

	log := log2.NewStderr(log2.LInfo)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LInteractiveFlags)
	} else {
		// assume systemd journal, it has timestamps
		log.SetFlags(log2.LServiceFlags)
	}

	mod, err := subcmd.Parse(flag.Arg(0), modules)
	if err != nil {
		flag.Usage()
		log.Fatal(err)
	}

	ctx, g := state_new.NewContext(log, tele.New())
	g.BuildVersion = BuildVersion

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Infof("signal=%v, stopping", sig)
		subcmd.SdNotify(log, "STOPPING=1")
		g.Stop()
	}()

	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)

	err = mod.Main(ctx, config)
	g.StopWait(5 * time.Second)
	g.Tele.Close()
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
