package domain

import (
	"errors"
	"fmt"
	"net/netip"
)

var (
	ErrQueueFull    = errors.New("pipeline queue full")
	ErrStopped      = errors.New("pipeline stopped")
	ErrSinkDisabled = errors.New("countermeasure sink disabled")
)

// MalformedInputError is returned when a raw record cannot be normalized.
type MalformedInputError struct {
	Reason string
	Input  string
}

func (e *MalformedInputError) Error() string {
	in := e.Input
	if len(in) > 64 {
		in = in[:64] + "..."
	}
	return fmt.Sprintf("malformed input: %s (%q)", e.Reason, in)
}

func NewMalformedInput(reason, input string) *MalformedInputError {
	return &MalformedInputError{Reason: reason, Input: input}
}

// SinkUnavailableError wraps a failed block or unblock command.
type SinkUnavailableError struct {
	Sink string
	Op   string
	IP   netip.Addr
	Err  error
}

func (e *SinkUnavailableError) Error() string {
	return fmt.Sprintf("sink %s: %s %s: %v", e.Sink, e.Op, ipString(e.IP), e.Err)
}

func (e *SinkUnavailableError) Unwrap() error {
	return e.Err
}

// ConfigurationError describes an invalid option. It is fatal at startup
// and rejects the edit on hot reload.
type ConfigurationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s=%v: %s", e.Field, e.Value, e.Reason)
}

func IsMalformed(err error) bool {
	var m *MalformedInputError
	return errors.As(err, &m)
}

func IsConfigurationError(err error) bool {
	var c *ConfigurationError
	return errors.As(err, &c)
}
