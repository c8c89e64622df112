// Package uplink owns the TCP connection to the collection server.
package uplink

import (
	"context"
	"net"
	"net/netip"

	"github.com/juju/errors"
)

const (
	Protocol = "tcp"
	// TCPIPHeaderSize is added to payload size in transmit log and byte counters.
	TCPIPHeaderSize = 28
)

// Endpoint is immutable server address.
type Endpoint struct {
	Addr     netip.Addr
	Port     uint16
	Protocol string
}

func NewEndpoint(address string, port int) (Endpoint, error) {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return Endpoint{}, errors.NotValidf("endpoint address=%s", address)
	}
	if !addr.Is4() {
		return Endpoint{}, errors.NotValidf("endpoint address=%s not IPv4", address)
	}
	if port <= 0 || port > 0xffff {
		return Endpoint{}, errors.NotValidf("endpoint port=%d", port)
	}
	return Endpoint{Addr: addr, Port: uint16(port), Protocol: Protocol}, nil
}

func (e Endpoint) String() string { return netip.AddrPortFrom(e.Addr, e.Port).String() }

func (e Endpoint) network() string {
	if e.Protocol == "" {
		return Protocol
	}
	return e.Protocol
}

// Dialer is satisfied by *net.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}
