package link

import (
	"fmt"

	"github.com/juju/errors"
)

// ModemError is a negative or positive code returned by modem library calls.
type ModemError int

func (e ModemError) Error() string { return fmt.Sprintf("modem error=%d", int(e)) }

// ModemCode extracts modem code, -1 for foreign errors, 0 for nil.
func ModemCode(err error) int {
	if err == nil {
		return 0
	}
	if me, ok := errors.Cause(err).(ModemError); ok {
		return int(me)
	}
	return -1
}

// ConfigError is a rejected low power option request. Not fatal.
type ConfigError struct {
	Option string
	Enable bool
	Code   int
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("link request %s enable=%t error=%d", e.Option, e.Enable, e.Code)
}

// LinkError ends the link phase: provider connect failure, wait cancelled or timed out.
type LinkError struct {
	Op  string
	Err error
}

func (e *LinkError) Error() string { return fmt.Sprintf("link %s: %v", e.Op, e.Err) }
func (e *LinkError) Unwrap() error { return e.Err }
