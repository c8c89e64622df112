package link

import (
	"github.com/temoto/uplink/helpers"
	"github.com/temoto/uplink/log2"
)

// Provider is the modem link control library.
// Connect starts init and attach in background and returns immediately,
// handler is called from provider goroutines.
type Provider interface {
	Connect(handler func(Event)) error
	RequestPSM(enable bool) error
	RequestEDRX(enable bool) error
	RequestRAI(enable bool) error
}

type LowPower struct {
	PSM  bool
	EDRX bool
	RAI  bool
}

// ConfigureLowPower is best effort: PSM and eDRX are requested both ways,
// RAI is only requested when enabled. Every failure is logged.
// Returned error is informational.
func ConfigureLowPower(p Provider, lp LowPower, log *log2.Log) error {
	errs := make([]error, 0, 3)
	request := func(option string, f func(bool) error, enable bool) {
		if err := f(enable); err != nil {
			ce := &ConfigError{Option: option, Enable: enable, Code: ModemCode(err)}
			log.Errorf("%s", ce.Error())
			errs = append(errs, ce)
		}
	}
	request("psm", p.RequestPSM, lp.PSM)
	request("edrx", p.RequestEDRX, lp.EDRX)
	if lp.RAI {
		request("rai", p.RequestRAI, true)
	}
	return helpers.FoldErrors(errs)
}
