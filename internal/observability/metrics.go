// Package observability exposes controller metrics in Prometheus format.
package observability

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/temoto/alive/v2"
	"github.com/temoto/uplink/log2"
)

// Collector implements controller.Metrics. Nil *Collector is valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	LinkEvents      *prometheus.CounterVec
	Sends           *prometheus.CounterVec
	SentBytes       prometheus.Counter
	ControllerGauge prometheus.Gauge
	LinkRegistered  prometheus.Gauge
}

// NewCollector registers metrics against reg, nil means global registry.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	linkEvents, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uplink_link_events_total",
		Help: "Network link events by kind.",
	}, []string{"kind"}), "uplink_link_events_total")
	if err != nil {
		return nil, err
	}
	sends, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uplink_sends_total",
		Help: "Payload transmissions by result.",
	}, []string{"result"}), "uplink_sends_total")
	if err != nil {
		return nil, err
	}
	sentBytes, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uplink_sent_bytes_total",
		Help: "Transmitted bytes including TCP/IP header estimate.",
	}), "uplink_sent_bytes_total")
	if err != nil {
		return nil, err
	}
	state, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "uplink_controller_state",
		Help: "Controller state: 0 idle, 1 awaiting link, 2 connecting, 3 streaming, 4 failed, 5 stopped.",
	}), "uplink_controller_state")
	if err != nil {
		return nil, err
	}
	registered, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "uplink_link_registered",
		Help: "1 when registered to home or roaming network.",
	}), "uplink_link_registered")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:        gatherer,
		LinkEvents:      linkEvents,
		Sends:           sends,
		SentBytes:       sentBytes,
		ControllerGauge: state,
		LinkRegistered:  registered,
	}, nil
}

func (c *Collector) LinkEvent(kind string, registered bool) {
	if c == nil {
		return
	}
	c.LinkEvents.WithLabelValues(kind).Inc()
	if registered {
		c.LinkRegistered.Set(1)
	} else {
		c.LinkRegistered.Set(0)
	}
}

func (c *Collector) Send(bytes int, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.Sends.WithLabelValues("error").Inc()
		return
	}
	c.Sends.WithLabelValues("ok").Inc()
	c.SentBytes.Add(float64(bytes))
}

func (c *Collector) ControllerState(state int) {
	if c == nil {
		return
	}
	c.ControllerGauge.Set(float64(state))
}

func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Serve listens on addr and serves /metrics until a stops.
// Returns listen address, useful with port 0.
func (c *Collector) Serve(a *alive.Alive, addr string, log *log2.Log) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", errors.Annotatef(err, "metrics listen=%s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	if !a.Add(1) {
		ln.Close()
		return "", errors.Errorf("metrics serve after stop")
	}
	go func() {
		defer a.Done()
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics serve err=%v", err)
		}
	}()
	go func() {
		<-a.StopChan()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	log.Infof("metrics listen=%s", ln.Addr().String())
	return ln.Addr().String(), nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, errors.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, errors.Annotatef(err, "register %s", name)
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, errors.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, errors.Annotatef(err, "register %s", name)
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, errors.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, errors.Annotatef(err, "register %s", name)
	}
	return gauge, nil
}
