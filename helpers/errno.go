package helpers

import (
	"net"
	"os"
	"syscall"

	"github.com/juju/errors"
)

// Errno digs OS error code out of net/os error chains.
// Returns 0 when err does not carry one.
func Errno(err error) syscall.Errno {
	for err != nil {
		err = errors.Cause(err)
		switch e := err.(type) {
		case syscall.Errno:
			return e
		case *net.OpError:
			err = e.Err
		case *os.SyscallError:
			err = e.Err
		case interface{ Unwrap() error }:
			err = e.Unwrap()
		default:
			return 0
		}
	}
	return 0
}
