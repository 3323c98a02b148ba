// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package aht20 controls an AHT20 temperature/humidity sensor over I²C.
//
// Adapted from periph.io/x/devices/v3/aht20, conformed to the register
// sequence the original firmware actually uses: a status/calibration
// check, a measurement trigger, a busy-bit poll with a hard timeout, and
// a 6-byte data read with no CRC trailer (the original STM32 firmware
// never validates one, so this port doesn't invent the check).
package aht20

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// DeviceAddress is the AHT20's fixed 7-bit I²C address.
const DeviceAddress uint16 = 0x38

const (
	cmdStatus    byte = 0x71
	cmdMeasure   byte = 0xAC
	cmdSoftReset byte = 0xBA
)

const (
	bitBusy        byte = 1 << 7
	bitInitialized byte = 1 << 3
)

var (
	argsInitialize = []byte{0xBE, 0x08, 0x00}
	argsMeasure    = []byte{cmdMeasure, 0x33, 0x00}
)

// Opts holds the configuration options for the device.
type Opts struct {
	// BusyPollTimeout bounds how long Sense waits for the busy bit to
	// clear after triggering a measurement before giving up. Default
	// 200ms, matching the original firmware's timeout.
	BusyPollTimeout time.Duration
	// BusyPollInterval is the delay between busy-bit poll reads. Default
	// 2ms, matching the original firmware.
	BusyPollInterval time.Duration
}

// DefaultOpts matches the original firmware's timing.
var DefaultOpts = Opts{
	BusyPollTimeout:  200 * time.Millisecond,
	BusyPollInterval: 2 * time.Millisecond,
}

// Dev represents an AHT20 sensor on an I²C bus.
type Dev struct {
	d    *i2c.Dev
	opts Opts
}

// NewI2C returns a Dev communicating over I²C bus b. opts may be nil for
// DefaultOpts. The sensor is calibrated if it is not already.
func NewI2C(b i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.BusyPollTimeout <= 0 {
		o.BusyPollTimeout = DefaultOpts.BusyPollTimeout
	}
	if o.BusyPollInterval <= 0 {
		o.BusyPollInterval = DefaultOpts.BusyPollInterval
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: DeviceAddress}, opts: o}

	initialized, err := d.isInitialized()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("aht20: could not read status"), err)
	}
	if !initialized {
		if err := d.initialize(); err != nil {
			return nil, errors.Join(fmt.Errorf("aht20: could not calibrate"), err)
		}
	}
	return d, nil
}

func (d *Dev) isInitialized() (bool, error) {
	status := make([]byte, 1)
	if err := d.d.Tx([]byte{cmdStatus}, status); err != nil {
		return false, err
	}
	return status[0]&bitInitialized != 0, nil
}

func (d *Dev) initialize() error {
	if err := d.d.Tx(argsInitialize, nil); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

// Sense triggers a measurement and returns temperature in °C and
// relative humidity in %RH. On any I²C failure it returns an error and
// the caller is expected to retain the previous reading (spec.md §4.D
// step 1); Sense itself does not remember history.
func (d *Dev) Sense() (temperatureC, humidityRH float64, err error) {
	if err := d.d.Tx(argsMeasure, nil); err != nil {
		return 0, 0, fmt.Errorf("aht20: trigger measurement: %w", err)
	}
	time.Sleep(80 * time.Millisecond)

	deadline := time.Now().Add(d.opts.BusyPollTimeout)
	data := make([]byte, 6)
	for {
		status := make([]byte, 1)
		if err := d.d.Tx([]byte{cmdStatus}, status); err != nil {
			return 0, 0, fmt.Errorf("aht20: poll status: %w", err)
		}
		if status[0]&bitBusy == 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, 0, &ReadTimeoutError{Timeout: d.opts.BusyPollTimeout}
		}
		time.Sleep(d.opts.BusyPollInterval)
	}

	if err := d.d.Tx(nil, data); err != nil {
		return 0, 0, fmt.Errorf("aht20: read measurement: %w", err)
	}

	hRaw := uint32(data[1])<<12 | uint32(data[2])<<4 | uint32(data[3])>>4
	tRaw := (uint32(data[3])&0x0F)<<16 | uint32(data[4])<<8 | uint32(data[5])

	humidityRH = float64(hRaw) / 1048576.0 * 100.0
	temperatureC = (float64(tRaw)/1048576.0)*200.0 - 50.0
	return temperatureC, humidityRH, nil
}

// SoftReset resets the sensor, including a reboot and re-calibration.
func (d *Dev) SoftReset() error {
	if err := d.d.Tx([]byte{cmdSoftReset}, nil); err != nil {
		return err
	}
	time.Sleep(20 * time.Millisecond)
	return nil
}
