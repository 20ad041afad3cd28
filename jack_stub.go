//go:build !jack
// +build !jack

package gosampler

import "errors"

// ErrJackDisabled is returned when the binary was built without JACK
var ErrJackDisabled = errors.New("JACK support not enabled - rebuild with '-tags jack' and ensure JACK development headers are installed")

// JackBus stub for builds without JACK support
type JackBus struct{}

// NewJackBus always fails in builds without JACK
func NewJackBus(clientName string, frames int) (*JackBus, error) {
	return nil, ErrJackDisabled
}

func (jb *JackBus) SetDispatcher(d *Dispatcher) {}

func (jb *JackBus) Underruns() uint64 { return 0 }

func (jb *JackBus) Write(buf []int16) error { return ErrJackDisabled }

func (jb *JackBus) SampleRate() int { return 0 }

func (jb *JackBus) Close() error { return ErrJackDisabled }
