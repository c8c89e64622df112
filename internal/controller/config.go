package controller

import (
	"time"

	"github.com/juju/errors"
	"github.com/temoto/uplink/internal/link"
	"github.com/temoto/uplink/internal/state"
	"github.com/temoto/uplink/internal/uplink"
)

type Config struct {
	Endpoint     uplink.Endpoint
	PayloadSize  int
	Interval     time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// LinkEnable gates AwaitingLink, also requires Options.Provider.
	LinkEnable      bool
	LowPower        link.LowPower
	LinkWaitTimeout time.Duration
}

func NewConfig(c *state.Config) (Config, error) {
	ep, err := uplink.NewEndpoint(c.Server.Address, c.Server.Port)
	if err != nil {
		return Config{}, errors.Annotate(err, "controller config")
	}
	return Config{
		Endpoint:     ep,
		PayloadSize:  c.Upload.SizeBytes,
		Interval:     c.Interval(),
		DialTimeout:  c.NetworkTimeout(),
		WriteTimeout: c.NetworkTimeout(),
		LinkEnable:   c.Link.Enable && c.Link.Provider != state.ProviderNone,
		LowPower: link.LowPower{
			PSM:  c.Link.PSM,
			EDRX: c.Link.EDRX,
			RAI:  c.Link.RAI,
		},
		LinkWaitTimeout: c.LinkWaitTimeout(),
	}, nil
}

func (self Config) validate() error {
	if self.PayloadSize <= 0 {
		return errors.NotValidf("controller payload size=%d", self.PayloadSize)
	}
	if self.Interval <= 0 {
		return errors.NotValidf("controller interval=%v", self.Interval)
	}
	if !self.Endpoint.Addr.IsValid() || self.Endpoint.Port == 0 {
		return errors.NotValidf("controller endpoint=%s", self.Endpoint.String())
	}
	return nil
}
