// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ads1115 controls an ADS1115 4-channel, 16-bit ADC over I²C in
// single-ended, single-shot mode.
package ads1115

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// DeviceAddress is the 7-bit I²C address with ADDR tied to GND.
const DeviceAddress uint16 = 0x48

const (
	regConversion byte = 0x00
	regConfig     byte = 0x01
)

// config register bit layout, per the ADS1115 datasheet and
// original_source/EM/stm_system/Core/Src/ads1115.c.
const (
	bitOSStart    uint16 = 1 << 15
	muxSingleBase uint16 = 0x04
	pgaFS4096mV   uint16 = 0x01 << 9
	modeSingleShot uint16 = 1 << 8
	dr128SPS      uint16 = 0x04 << 5
	compDisable   uint16 = 0x0003
)

// FullScaleVolts is the PGA full-scale range this driver always
// configures (±4.096V), chosen for a 3.3V system.
const FullScaleVolts = 4.096

// Opts holds the configuration options for the device.
type Opts struct {
	// ConversionWait is how long to wait after triggering a single-shot
	// conversion before reading the result. The datasheet gives ~8ms at
	// 128 SPS; default is 10ms, matching the original firmware.
	ConversionWait time.Duration
}

// DefaultOpts matches the original firmware's timing.
var DefaultOpts = Opts{ConversionWait: 10 * time.Millisecond}

// Dev represents an ADS1115 on an I²C bus.
type Dev struct {
	d    *i2c.Dev
	opts Opts
}

// NewI2C returns a Dev communicating over I²C bus b. opts may be nil for
// DefaultOpts.
func NewI2C(b i2c.Bus, opts *Opts) *Dev {
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.ConversionWait <= 0 {
		o.ConversionWait = DefaultOpts.ConversionWait
	}
	return &Dev{d: &i2c.Dev{Bus: b, Addr: DeviceAddress}, opts: o}
}

// ReadSingleEnded configures the ADC for a single-ended conversion on
// the given channel (AINx vs GND), waits for it to complete, and returns
// the signed 16-bit conversion result.
func (d *Dev) ReadSingleEnded(channel uint8) (int16, error) {
	if channel > 3 {
		return 0, &InvalidChannelError{Channel: channel}
	}

	config := bitOSStart |
		(muxSingleBase+uint16(channel))<<12 |
		pgaFS4096mV |
		modeSingleShot |
		dr128SPS |
		compDisable

	tx := []byte{regConfig, byte(config >> 8), byte(config & 0xFF)}
	if err := d.d.Tx(tx, nil); err != nil {
		return 0, fmt.Errorf("ads1115: write config: %w", err)
	}

	time.Sleep(d.opts.ConversionWait)

	rx := make([]byte, 2)
	if err := d.d.Tx([]byte{regConversion}, rx); err != nil {
		return 0, fmt.Errorf("ads1115: read conversion: %w", err)
	}

	return int16(uint16(rx[0])<<8 | uint16(rx[1])), nil
}

// ToVoltage converts a raw conversion result to volts for the ±4.096V
// full-scale range this driver always configures.
func ToVoltage(raw int16) float64 {
	return float64(raw) * FullScaleVolts / 32768.0
}
