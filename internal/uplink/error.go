package uplink

import (
	"fmt"
	"syscall"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

var ErrNotConnected = errors.New("uplink not connected")

// ConnectError Code is OS errno, 0 when the failure did not carry one.
type ConnectError struct {
	Endpoint Endpoint
	Code     syscall.Errno
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("uplink connect %s errno=%s: %v", e.Endpoint.String(), errnoName(e.Code), e.Err)
}
func (e *ConnectError) Unwrap() error { return e.Err }

type SendError struct {
	Code syscall.Errno
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("uplink send errno=%s: %v", errnoName(e.Code), e.Err)
}
func (e *SendError) Unwrap() error { return e.Err }

func errnoName(code syscall.Errno) string {
	if code == 0 {
		return "0"
	}
	if name := unix.ErrnoName(code); name != "" {
		return fmt.Sprintf("%d(%s)", int(code), name)
	}
	return fmt.Sprintf("%d", int(code))
}
