package uplink

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/uplink/log2"
)

type fakeConn struct {
	net.Conn
	mu       sync.Mutex
	buf      bytes.Buffer
	writes   int
	closes   int
	maxWrite int
	writeErr error
}

func (self *fakeConn) Write(b []byte) (int, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.writes++
	if self.writeErr != nil {
		return 0, self.writeErr
	}
	n := len(b)
	if self.maxWrite > 0 && n > self.maxWrite {
		n = self.maxWrite
	}
	self.buf.Write(b[:n])
	return n, nil
}
func (self *fakeConn) Close() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.closes++
	return nil
}
func (self *fakeConn) SetWriteDeadline(time.Time) error { return nil }

type fakeDialer struct {
	conn    net.Conn
	err     error
	network string
	address string
}

func (self *fakeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	self.network, self.address = network, address
	if self.err != nil {
		return nil, self.err
	}
	return self.conn, nil
}

func testEndpoint(t testing.TB) Endpoint {
	ep, err := NewEndpoint("10.0.0.5", 4321)
	require.NoError(t, err)
	return ep
}

func TestNewEndpoint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		address   string
		port      int
		expect    string
		expectErr string
	}{
		{"10.0.0.5", 4321, "10.0.0.5:4321", ""},
		{"127.0.0.1", 1, "127.0.0.1:1", ""},
		{"", 1, "", "endpoint address="},
		{"example.com", 1, "", "endpoint address=example.com"},
		{"::1", 1, "", "not IPv4"},
		{"10.0.0.5", 0, "", "endpoint port=0"},
		{"10.0.0.5", 65536, "", "endpoint port=65536"},
	}
	for _, c := range cases {
		ep, err := NewEndpoint(c.address, c.port)
		if c.expectErr == "" {
			require.NoError(t, err)
			assert.Equal(t, c.expect, ep.String())
			assert.Equal(t, Protocol, ep.Protocol)
		} else {
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.expectErr)
			assert.True(t, errors.IsNotValid(err))
		}
	}
}

func TestSendZeroPayload(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{maxWrite: 3}
	d := &fakeDialer{conn: conn}
	log := log2.NewTest(t, log2.LDebug)
	s, err := Connect(context.Background(), d, testEndpoint(t), Options{Log: log})
	require.NoError(t, err)
	assert.Equal(t, "tcp", d.network)
	assert.Equal(t, "10.0.0.5:4321", d.address)
	assert.Equal(t, Connected, s.State())
	assert.NotEmpty(t, s.ID())

	payload := make([]byte, 10)
	require.NoError(t, s.Send(payload))
	assert.Equal(t, make([]byte, 10), conn.buf.Bytes())
	assert.Equal(t, 4, conn.writes, "partial writes must be continued")
	assert.Equal(t, int64(1), s.Stat().Sends.Value())
	assert.Equal(t, int64(10+4*TCPIPHeaderSize), s.Stat().Bytes.Value())
	assert.False(t, s.Stat().LastSend.IsZero())

	tm := s.Telemetry()
	assert.Equal(t, s.ID(), tm.Id)
	assert.Equal(t, "10.0.0.5:4321", tm.Address)
	assert.Equal(t, uint64(1), tm.Sends)
}

func TestConnectError(t *testing.T) {
	t.Parallel()

	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	d := &fakeDialer{err: opErr}
	s, err := Connect(context.Background(), d, testEndpoint(t), Options{Log: log2.NewTest(t, log2.LDebug)})
	require.Error(t, err)
	assert.Nil(t, s)
	ce, ok := err.(*ConnectError)
	require.True(t, ok)
	assert.Equal(t, syscall.ECONNREFUSED, ce.Code)
	assert.Equal(t, "10.0.0.5:4321", ce.Endpoint.String())
	assert.Contains(t, err.Error(), "ECONNREFUSED")
}

func TestConnectRefusedLoopback(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	ep, err := NewEndpoint("127.0.0.1", port)
	require.NoError(t, err)
	_, err = Connect(context.Background(), &net.Dialer{}, ep, Options{Log: log2.NewTest(t, log2.LDebug), DialTimeout: 5 * time.Second})
	require.Error(t, err)
	ce, ok := err.(*ConnectError)
	require.True(t, ok)
	assert.Equal(t, syscall.ECONNREFUSED, ce.Code)
}

func TestSendError(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{writeErr: &net.OpError{Op: "write", Net: "tcp", Err: syscall.EPIPE}}
	s, err := Connect(context.Background(), &fakeDialer{conn: conn}, testEndpoint(t), Options{Log: log2.NewTest(t, log2.LDebug)})
	require.NoError(t, err)

	err = s.Send(make([]byte, 10))
	require.Error(t, err)
	se, ok := err.(*SendError)
	require.True(t, ok)
	assert.Equal(t, syscall.EPIPE, se.Code)
	assert.Equal(t, Failed, s.State())
	assert.Equal(t, 1, conn.closes)
	assert.Equal(t, int64(0), s.Stat().Sends.Value())

	err = s.Send(make([]byte, 10))
	require.Error(t, err)
	assert.Equal(t, ErrNotConnected, errors.Cause(err.(*SendError).Err))
	assert.Equal(t, 1, conn.writes, "no write after failure")

	assert.NoError(t, s.Disconnect())
	assert.Equal(t, Failed, s.State())
	assert.Equal(t, 1, conn.closes)
}

func TestDisconnectIdempotent(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	s, err := Connect(context.Background(), &fakeDialer{conn: conn}, testEndpoint(t), Options{Log: log2.NewTest(t, log2.LDebug)})
	require.NoError(t, err)
	assert.NoError(t, s.Disconnect())
	assert.NoError(t, s.Disconnect())
	assert.Equal(t, 1, conn.closes)
	assert.Equal(t, Disconnected, s.State())
	assert.Error(t, s.Send(make([]byte, 1)))
}

func TestLoopbackServer(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			received <- nil
			return
		}
		defer conn.Close()
		b, _ := io.ReadAll(conn)
		received <- b
	}()

	addr := ln.Addr().(*net.TCPAddr)
	ep, err := NewEndpoint("127.0.0.1", addr.Port)
	require.NoError(t, err)
	s, err := Connect(context.Background(), &net.Dialer{}, ep, Options{
		Log:          log2.NewTest(t, log2.LDebug),
		WriteTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Send(make([]byte, 10)))
	}
	require.NoError(t, s.Disconnect())

	select {
	case b := <-received:
		assert.Equal(t, make([]byte, 30), b)
	case <-time.After(5 * time.Second):
		t.Fatal("server receive timeout")
	}
}

func TestTotals(t *testing.T) {
	t.Parallel()

	var tot Totals
	tot.AddBoot()
	tot.AddConnect()
	tot.AddSend(10)
	tot.AddSend(10)
	tot.AddFailure()
	b, err := tot.MarshalBinary()
	require.NoError(t, err)

	var restored Totals
	require.NoError(t, restored.UnmarshalBinary(b))
	snap := restored.Snapshot()
	assert.Equal(t, uint64(1), snap.Boots)
	assert.Equal(t, uint64(1), snap.Connects)
	assert.Equal(t, uint64(2), snap.Sends)
	assert.Equal(t, uint64(2*(10+TCPIPHeaderSize)), snap.SentBytes)
	assert.Equal(t, uint64(1), snap.Failures)

	assert.Error(t, restored.UnmarshalBinary([]byte{0xff, 0xff}))
}
