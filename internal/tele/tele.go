// Package tele delivers device telemetry over MQTT.
// Messages go through persistent queue first, so API calls block at most for disk write.
package tele

import (
	"context"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/spq"
	"github.com/temoto/uplink/helpers"
	"github.com/temoto/uplink/log2"
	tele_api "github.com/temoto/uplink/tele"
	tele_config "github.com/temoto/uplink/tele/config"
)

const DefaultNetworkTimeout = 30 * time.Second

const logMsgDisabled = "tele disabled"

// tele contract:
// - Init() fails only with invalid config, network issues ignored
// - public API calls block at most for disk write
// - Close() stops delivery, undelivered messages stay in queue for next start
// - Telemetry and State messages delivered at least once
type tele struct { //nolint:maligned
	alive     *alive.Alive
	config    tele_config.Config
	log       *log2.Log
	transport Transporter
	q         *spq.Queue
	deviceId  int32
	backoff   helpers.Backoff

	mu           sync.Mutex
	currentState tele_api.State
}

func New() tele_api.Teler {
	return &tele{}
}
func NewWithTransporter(trans Transporter) tele_api.Teler {
	return &tele{transport: trans}
}

func (self *tele) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.config = teleConfig
	self.log = log.Clone(log2.LInfo)
	if self.config.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	self.alive = alive.NewAlive()
	if !self.config.Enabled {
		self.log.Debugf(logMsgDisabled)
		return nil
	}
	if self.config.PersistPath == "" {
		return errors.NotValidf("tele persist_path=empty")
	}

	self.deviceId = int32(self.config.DeviceId)
	if self.backoff.Min == 0 {
		self.backoff = helpers.Backoff{Min: time.Second, Max: 5 * time.Minute, K: 2}
	}

	// test code sets .transport
	if self.transport == nil { // production path
		self.transport = &transportMqtt{}
	}
	willPayload := []byte{byte(tele_api.State_Invalid)}
	if err := self.transport.Init(ctx, self.log, teleConfig, willPayload); err != nil {
		return errors.Annotate(err, "tele transport")
	}

	var err error
	self.q, err = spq.Open(self.config.PersistPath)
	if err != nil {
		return errors.Annotate(err, "tele queue")
	}

	self.alive.Add(1)
	go self.qworker()
	return nil
}

func (self *tele) Close() {
	if self.alive == nil {
		return
	}
	self.alive.Stop()
	if self.q != nil {
		if err := self.q.Close(); err != nil {
			self.log.Errorf("tele queue close err=%v", err)
		}
	}
	self.alive.Wait()
	if self.transport != nil && self.config.Enabled {
		self.transport.Close()
	}
}

func (self *tele) State(s tele_api.State) {
	if !self.config.Enabled {
		return
	}
	self.mu.Lock()
	changed := self.currentState != s
	self.currentState = s
	self.mu.Unlock()
	if !changed {
		return
	}
	if err := self.q.Push([]byte{qState, byte(s)}); err != nil {
		self.log.Errorf("CRITICAL tele state=%s err=%v", s.String(), err)
	}
}

// Error must not be called from code which reports tele failures via log.Error,
// error hook would loop.
func (self *tele) Error(e error) {
	if !self.config.Enabled || e == nil {
		return
	}
	tm := &tele_api.Telemetry{
		Error: &tele_api.Telemetry_Error{
			Message: e.Error(),
			Code:    int32(helpers.Errno(e)),
		},
	}
	if err := self.qpushTelemetry(tm); err != nil {
		self.log.Debugf("CRITICAL qpushTelemetry telemetry_error=%#v err=%v", tm.Error, err)
	}
}

func (self *tele) Link(l *tele_api.Telemetry_Link) {
	if !self.config.Enabled {
		return
	}
	if err := self.qpushTelemetry(&tele_api.Telemetry{Link: l}); err != nil {
		self.log.Debugf("CRITICAL qpushTelemetry link=%v err=%v", l, err)
	}
}

func (self *tele) Report(session *tele_api.Telemetry_Session, totals *tele_api.Totals) {
	if !self.config.Enabled {
		return
	}
	tm := &tele_api.Telemetry{Session: session, Totals: totals}
	if err := self.qpushTelemetry(tm); err != nil {
		self.log.Debugf("CRITICAL qpushTelemetry report err=%v", err)
	}
}

// denote value type in persistent queue bytes form
const (
	qState     byte = 1
	qTelemetry byte = 2
)

func (self *tele) qworker() {
	defer self.alive.Done()
	stopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-self.alive.StopChan()
		cancel()
	}()

	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			// success path
			b := box.Bytes()
			var del bool
			del, err = self.qhandle(b)
			if err != nil {
				self.log.Debugf("tele qhandle b=%x err=%v", b, err)
			}
			if del {
				self.backoff.Reset()
				if err = self.q.Delete(box); err != nil {
					self.log.Debugf("tele qhandle Delete b=%x err=%v", b, err)
				}
			} else {
				self.backoff.Failure()
				if err = self.q.DeletePush(box); err != nil {
					self.log.Debugf("tele qhandle DeletePush b=%x err=%v", b, err)
				}
				if self.backoff.Sleep(stopCtx) != nil {
					return
				}
			}

		case spq.ErrClosed:
			select {
			case <-self.alive.StopChan(): // success path
			default:
				self.log.Infof("CRITICAL tele spq closed unexpectedly")
			}
			return

		default:
			self.log.Infof("CRITICAL tele spq err=%v", err)
			if self.alive.IsStopping() {
				return
			}
			self.backoff.Failure()
			if self.backoff.Sleep(stopCtx) != nil {
				return
			}
		}
	}
}

// qhandle returns true when message is delivered or can never be.
func (self *tele) qhandle(b []byte) (bool, error) {
	if len(b) == 0 {
		return true, errors.Errorf("tele spq peek=empty")
	}

	switch b[0] {
	case qState:
		if len(b) != 2 {
			return true, errors.NotValidf("state length=%d", len(b))
		}
		return self.transport.SendState(b[1:]), nil

	case qTelemetry:
		var tm tele_api.Telemetry
		if err := proto.Unmarshal(b[1:], &tm); err != nil {
			return true, errors.Annotate(err, "telemetry unmarshal")
		}
		return self.transport.SendTelemetry(b[1:]), nil

	default:
		return true, errors.Errorf("unknown kind=%d", b[0])
	}
}

func (self *tele) qpushTelemetry(tm *tele_api.Telemetry) error {
	if tm.DeviceId == 0 {
		tm.DeviceId = self.deviceId
	}
	if tm.Time == 0 {
		tm.Time = time.Now().UnixNano()
	}
	if tm.BuildVersion == "" {
		tm.BuildVersion = self.config.BuildVersion
	}
	self.mu.Lock()
	tm.State = int32(self.currentState)
	self.mu.Unlock()
	return self.qpushTagProto(qTelemetry, tm)
}

func (self *tele) qpushTagProto(tag byte, pb proto.Message) error {
	buf := proto.NewBuffer(make([]byte, 0, 256))
	if err := buf.EncodeVarint(uint64(tag)); err != nil {
		return err
	}
	if err := buf.Marshal(pb); err != nil {
		return err
	}
	return self.q.Push(buf.Bytes())
}
