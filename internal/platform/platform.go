// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package platform is the narrow boundary between the core firmware
// logic and the outside world: a monotonic clock, GPIO-driven actuators,
// and a serial transport. Every type here is a thin wrapper — the
// sensor I²C drivers live in internal/ads1115 and internal/aht20, one
// level closer to the hardware, and talk to periph.io/x/conn/v3/i2c
// directly rather than through this package.
package platform

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Clock is the single source of monotonic time the FSMs use for phase
// timing. Production code uses systemClock; tests use platformtest.Clock,
// which only advances when told to.
type Clock interface {
	NowMS() uint32
	DelayMS(ms uint32)
}

// systemClock implements Clock against the OS clock and real sleeps.
type systemClock struct{ start time.Time }

// NewSystemClock returns a Clock anchored to the moment it is created.
func NewSystemClock() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) NowMS() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

func (c *systemClock) DelayMS(ms uint32) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// Actuator is a single GPIO-driven relay. Level is active-low: On()
// drives the pin low, energizing the relay, matching the pump/LED
// wiring in spec.md §4.G.
type Actuator struct {
	Pin gpio.PinOut
}

// On energizes the relay (GPIO low).
func (a Actuator) On() error {
	if a.Pin == nil {
		return nil
	}
	return a.Pin.Out(gpio.Low)
}

// Off de-energizes the relay (GPIO high).
func (a Actuator) Off() error {
	if a.Pin == nil {
		return nil
	}
	return a.Pin.Out(gpio.High)
}
