package state

import (
	"net"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/uplink/helpers"
	"github.com/temoto/uplink/log2"
	tele_config "github.com/temoto/uplink/tele/config"
)

const (
	DefaultPayloadSize    = 10
	DefaultIntervalSec    = 60
	DefaultNetworkTimeout = 30 * time.Second

	ProviderNone = "none"
	ProviderSim  = "sim"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	LogDebug bool `hcl:"log_debug"`

	Server struct {
		Address string `hcl:"address"`
		Port    int    `hcl:"port"`
	} `hcl:"server"`

	Upload struct {
		SizeBytes         int `hcl:"size_bytes"`
		IntervalSec       int `hcl:"interval_sec"`
		NetworkTimeoutSec int `hcl:"network_timeout_sec"`
	} `hcl:"upload"`

	Link struct { //nolint:maligned
		Enable         bool   `hcl:"enable"`
		Provider       string `hcl:"provider"`
		WaitTimeoutSec int    `hcl:"wait_timeout_sec"`
		PSM            bool   `hcl:"psm"`
		EDRX           bool   `hcl:"edrx"`
		RAI            bool   `hcl:"rai"`
		Sim            struct {
			AutoRegister string `hcl:"auto_register"`
			RejectPSM    int    `hcl:"reject_psm"`
			RejectEDRX   int    `hcl:"reject_edrx"`
			RejectRAI    int    `hcl:"reject_rai"`
		} `hcl:"sim"`
	} `hcl:"link"`

	Tele tele_config.Config `hcl:"tele"`

	Metrics struct {
		Listen string `hcl:"listen"`
	} `hcl:"metrics"`

	Persist struct {
		Root string `hcl:"root"`
	} `hcl:"persist"`
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.Upload.IntervalSec) * time.Second
}

func (c *Config) NetworkTimeout() time.Duration {
	return helpers.IntSecondDefault(c.Upload.NetworkTimeoutSec, DefaultNetworkTimeout)
}

// LinkWaitTimeout zero means wait forever.
func (c *Config) LinkWaitTimeout() time.Duration {
	return time.Duration(c.Link.WaitTimeoutSec) * time.Second
}

// Validate applies defaults and checks values.
func (c *Config) Validate() error {
	errs := make([]error, 0, 4)
	if c.Server.Address == "" {
		errs = append(errs, errors.NotValidf("config server.address=empty"))
	} else if ip := net.ParseIP(c.Server.Address); ip == nil || ip.To4() == nil {
		errs = append(errs, errors.NotValidf("config server.address=%s must be IPv4 literal", c.Server.Address))
	}
	if c.Server.Port <= 0 || c.Server.Port > 0xffff {
		errs = append(errs, errors.NotValidf("config server.port=%d", c.Server.Port))
	}

	if c.Upload.SizeBytes == 0 {
		c.Upload.SizeBytes = DefaultPayloadSize
	} else if c.Upload.SizeBytes < 0 {
		errs = append(errs, errors.NotValidf("config upload.size_bytes=%d", c.Upload.SizeBytes))
	}
	if c.Upload.IntervalSec == 0 {
		c.Upload.IntervalSec = DefaultIntervalSec
	} else if c.Upload.IntervalSec < 0 {
		errs = append(errs, errors.NotValidf("config upload.interval_sec=%d", c.Upload.IntervalSec))
	}
	if c.Upload.NetworkTimeoutSec < 0 {
		errs = append(errs, errors.NotValidf("config upload.network_timeout_sec=%d", c.Upload.NetworkTimeoutSec))
	}

	if c.Link.Provider == "" {
		c.Link.Provider = ProviderSim
	}
	switch c.Link.Provider {
	case ProviderNone:
		if c.Link.Enable {
			errs = append(errs, errors.NotValidf("config link.enable=true with link.provider=none"))
		}
	case ProviderSim:
	default:
		errs = append(errs, errors.NotValidf("config link.provider=%s", c.Link.Provider))
	}
	if c.Link.WaitTimeoutSec < 0 {
		errs = append(errs, errors.NotValidf("config link.wait_timeout_sec=%d", c.Link.WaitTimeoutSec))
	}

	if c.Tele.Enabled && c.Tele.MqttBroker == "" {
		errs = append(errs, errors.NotValidf("config tele.enable=true mqtt_broker=empty"))
	}
	if c.Tele.Enabled && c.Tele.PersistPath == "" {
		if c.Persist.Root == "" {
			errs = append(errs, errors.NotValidf("config tele.enable=true requires tele.persist_path or persist.root"))
		} else {
			c.Tele.PersistPath = filepath.Join(c.Persist.Root, "tele")
		}
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig reads sources in order, later values overwrite earlier ones.
// Result is validated.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.NotValidf("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
