package uplink

import (
	"sync"

	"github.com/golang/protobuf/proto"
	"github.com/juju/errors"
	"github.com/temoto/uplink/tele"
)

// Totals are lifetime counters, persisted across restarts.
type Totals struct {
	mu sync.Mutex
	v  tele.Totals
}

func (self *Totals) AddBoot() { self.update(func(v *tele.Totals) { v.Boots++ }) }
func (self *Totals) AddConnect() {
	self.update(func(v *tele.Totals) { v.Connects++ })
}
func (self *Totals) AddFailure() {
	self.update(func(v *tele.Totals) { v.Failures++ })
}

// AddSend counts payload plus header overhead.
func (self *Totals) AddSend(payloadSize int) {
	self.update(func(v *tele.Totals) {
		v.Sends++
		v.SentBytes += uint64(payloadSize + TCPIPHeaderSize)
	})
}

// Snapshot returns a copy safe for marshal in another goroutine.
func (self *Totals) Snapshot() *tele.Totals {
	self.mu.Lock()
	defer self.mu.Unlock()
	return &tele.Totals{
		Boots:     self.v.Boots,
		Connects:  self.v.Connects,
		Sends:     self.v.Sends,
		SentBytes: self.v.SentBytes,
		Failures:  self.v.Failures,
	}
}

func (self *Totals) MarshalBinary() ([]byte, error) {
	return proto.Marshal(self.Snapshot())
}

func (self *Totals) UnmarshalBinary(b []byte) error {
	var v tele.Totals
	if err := proto.Unmarshal(b, &v); err != nil {
		return errors.Annotate(err, "totals unmarshal")
	}
	self.mu.Lock()
	self.v = v
	self.mu.Unlock()
	return nil
}

func (self *Totals) update(f func(*tele.Totals)) {
	self.mu.Lock()
	f(&self.v)
	self.mu.Unlock()
}
