package uplink

import (
	"context"
	"expvar"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/temoto/atomic_clock"
	"github.com/temoto/uplink/helpers"
	"github.com/temoto/uplink/log2"
	"github.com/temoto/uplink/tele"
)

type SessionState uint8

const (
	Disconnected SessionState = iota
	Connected
	Failed
)

func (s SessionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	}
	return "invalid"
}

type Options struct {
	Log *log2.Log
	// DialTimeout and WriteTimeout zero means no limit.
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// SessionStat counts bytes with TCPIPHeaderSize overhead per write.
type SessionStat struct {
	Sends    expvar.Int
	Bytes    expvar.Int
	LastSend atomic_clock.Clock
}

// Session conn exists iff state is Connected.
// mu only makes Disconnect safe from another goroutine, sends must not overlap.
type Session struct {
	mu           sync.Mutex
	log          *log2.Log
	id           uuid.UUID
	endpoint     Endpoint
	conn         net.Conn
	w            io.Writer
	state        SessionState
	writeTimeout time.Duration
	stat         SessionStat
}

// Connect never retries. Failure is *ConnectError.
func Connect(ctx context.Context, d Dialer, ep Endpoint, opt Options) (*Session, error) {
	if opt.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opt.DialTimeout)
		defer cancel()
	}
	conn, err := d.DialContext(ctx, ep.network(), ep.String())
	if err != nil {
		err = &ConnectError{Endpoint: ep, Code: helpers.Errno(err), Err: err}
		opt.Log.Errorf("%s", err.Error())
		return nil, err
	}

	self := &Session{
		log:          opt.Log,
		id:           uuid.New(),
		endpoint:     ep,
		conn:         conn,
		state:        Connected,
		writeTimeout: opt.WriteTimeout,
	}
	self.w = helpers.NewStatWriter(conn, &self.stat.Bytes, TCPIPHeaderSize)
	self.log.Infof("successfully connected to TCP server: %s on port %d session=%s",
		ep.Addr.String(), ep.Port, self.id.String())
	return self, nil
}

func (self *Session) ID() string         { return self.id.String() }
func (self *Session) Endpoint() Endpoint { return self.endpoint }
func (self *Session) Stat() *SessionStat { return &self.stat }
func (self *Session) State() SessionState {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.state
}

// Send writes the whole payload. On failure connection is closed,
// state becomes Failed and error is *SendError.
func (self *Session) Send(payload []byte) error {
	self.mu.Lock()
	conn, w, state := self.conn, self.w, self.state
	self.mu.Unlock()
	if state != Connected {
		return &SendError{Err: ErrNotConnected}
	}

	self.log.Infof("transmitting TCP/IP payload of %d bytes to the IP address %s, port number %d",
		len(payload)+TCPIPHeaderSize, self.endpoint.Addr.String(), self.endpoint.Port)

	var err error
	if self.writeTimeout > 0 {
		err = conn.SetWriteDeadline(time.Now().Add(self.writeTimeout))
	}
	if err == nil {
		err = helpers.WriteAll(w, payload)
	}
	if err != nil {
		serr := &SendError{Code: helpers.Errno(err), Err: err}
		self.log.Errorf("failed to transmit TCP packet session=%s %s", self.ID(), serr.Error())
		self.mu.Lock()
		self.release(Failed)
		self.mu.Unlock()
		return serr
	}
	self.stat.Sends.Add(1)
	self.stat.LastSend.SetNow()
	return nil
}

// Disconnect is idempotent. Returns close error only on first release.
func (self *Session) Disconnect() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	next := Disconnected
	if self.state == Failed {
		next = Failed
	}
	return self.release(next)
}

func (self *Session) release(next SessionState) error {
	var err error
	if self.conn != nil {
		err = self.conn.Close()
		self.conn = nil
		self.w = nil
		self.log.Debugf("uplink session=%s closed state=%s", self.id.String(), next.String())
	}
	self.state = next
	return err
}

func (self *Session) Telemetry() *tele.Telemetry_Session {
	return &tele.Telemetry_Session{
		Id:      self.ID(),
		Address: self.endpoint.String(),
		Sends:   uint64(self.stat.Sends.Value()),
		Bytes:   uint64(self.stat.Bytes.Value()),
	}
}
