package gosampler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/GeoffreyPlitt/debuggo"
)

var driverDebug = debuggo.Debug("gosampler:driver")

// Stats counts what the output loop has done
type Stats struct {
	Buffers   uint64
	Overruns  uint64        // Buffers whose render took longer than their playback
	WorstTime time.Duration // Slowest render seen
}

// Driver is the real-time loop: render one buffer, hand it to the bus,
// repeat. The bus's blocking Write sets the cadence.
type Driver struct {
	engine *Engine
	bus    Bus
	buf    []int16
	period time.Duration

	buffers  atomic.Uint64
	overruns atomic.Uint64
	worst    atomic.Int64
}

// NewDriver prepares a driver writing frames-sized buffers to bus
func NewDriver(engine *Engine, bus Bus, frames int) (*Driver, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", frames)
	}
	if rate := engine.Config().SampleRate; bus.SampleRate() != rate {
		return nil, fmt.Errorf("bus runs at %d Hz but engine at %d Hz", bus.SampleRate(), rate)
	}
	return &Driver{
		engine: engine,
		bus:    bus,
		buf:    make([]int16, frames*2),
		period: time.Duration(frames) * time.Second / time.Duration(bus.SampleRate()),
	}, nil
}

// Period returns the playback duration of one buffer
func (d *Driver) Period() time.Duration {
	return d.period
}

// Step renders and writes a single buffer
func (d *Driver) Step() error {
	start := time.Now()
	d.engine.Render(d.buf)
	elapsed := time.Since(start)

	if int64(elapsed) > d.worst.Load() {
		d.worst.Store(int64(elapsed))
	}
	if elapsed > d.period {
		n := d.overruns.Add(1)
		driverDebug("Render overran deadline: %v > %v (%d overruns)", elapsed, d.period, n)
	}

	if err := d.bus.Write(d.buf); err != nil {
		return err
	}
	d.buffers.Add(1)
	return nil
}

// Run loops until ctx is cancelled or the bus fails. A cancelled context
// returns nil.
func (d *Driver) Run(ctx context.Context) error {
	driverDebug("Output loop started: %d frames per buffer, period %v", len(d.buf)/2, d.period)
	defer driverDebug("Output loop stopped after %d buffers", d.buffers.Load())

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := d.Step(); err != nil {
			if errors.Is(err, ErrBusClosed) && ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("audio bus write failed: %w", err)
		}
	}
}

// Stats returns a snapshot of the loop counters
func (d *Driver) Stats() Stats {
	return Stats{
		Buffers:   d.buffers.Load(),
		Overruns:  d.overruns.Load(),
		WorstTime: time.Duration(d.worst.Load()),
	}
}
