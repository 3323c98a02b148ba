// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sensing implements the periodic sampling, per-channel
// filtering, and engineering-unit conversion pipeline that feeds the
// rest of the firmware a stable Snapshot: spec.md §4.D / component D.
package sensing

import (
	"log"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"

	"github.com/sayoonjin/ssuksuk/internal/ads1115"
	"github.com/sayoonjin/ssuksuk/internal/aht20"
)

const (
	waterChannel uint8 = 0
	ecChannel    uint8 = 1

	waterRingSize = 3
	ecAlpha       = 0.2

	i2cFaultReinitThreshold = 3
)

// Snapshot is the most recent fully converted, filtered set of physical
// readings: spec.md §3.
type Snapshot struct {
	TemperatureC float64
	HumidityRH   float64
	WaterPercent float64
	EC           float64
}

// Thresholds are immutable after init: spec.md §3 defaults.
type Thresholds struct {
	WaterMin float64
	WaterMax float64
	ECMin    float64
	ECMax    float64
}

// DefaultThresholds matches the firmware defaults.
var DefaultThresholds = Thresholds{WaterMin: 10, WaterMax: 60, ECMin: 700, ECMax: 2000}

// AHT20Sensor is the narrow interface Pipeline needs from the
// temperature/humidity driver.
type AHT20Sensor interface {
	Sense() (temperatureC, humidityRH float64, err error)
}

// ADCReader is the narrow interface Pipeline needs from the ADC driver.
type ADCReader interface {
	ReadSingleEnded(channel uint8) (int16, error)
}

// I2CReinitializer closes and reopens the I²C bus a Pipeline's ADC sits
// on, used for fault recovery (spec.md §4.D step 2).
type I2CReinitializer interface {
	Reinit() error
}

// filterState is the per-signal filter state owned by Pipeline: spec.md
// §3.
type filterState struct {
	waterRing        [waterRingSize]float64
	waterRingFilled  int
	ecEMA            float64
	ecInitialized    bool
}

// Pipeline owns the sensor snapshot, filter state, and I²C fault
// counters: the single writer for Snapshot per spec.md §5.
type Pipeline struct {
	TH      AHT20Sensor
	ADC     ADCReader
	Reinit  I2CReinitializer
	Logger  *log.Logger

	snapshot Snapshot
	filters  filterState

	lastWaterRaw int16
	lastECRaw    int16
	i2cFailCount int
	warmup       uint8
}

// NewPipeline constructs a Pipeline with defaults applied and filters
// reset, matching the state after sensor_reset_fsm() in the original.
func NewPipeline(th AHT20Sensor, adc ADCReader, reinit I2CReinitializer, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	p := &Pipeline{TH: th, ADC: adc, Reinit: reinit, Logger: logger}
	p.ResetFilters()
	return p
}

// ResetFilters clears the water ring and EC EMA state and the warmup
// counter, mirroring the filter-reset half of sensor_reset_fsm().
func (p *Pipeline) ResetFilters() {
	p.filters = filterState{}
	p.warmup = 0
}

// Snapshot returns a copy of the most recently sampled readings.
func (p *Pipeline) Snapshot() Snapshot {
	return p.snapshot
}

// SampleAll is the single entry point for acquiring a fresh reading,
// invoked either by the ~1Hz scheduler or by the recovery FSM's internal
// averaging (spec.md §4.F). Its 6-step contract is exactly spec.md
// §4.D.
func (p *Pipeline) SampleAll() {
	if t, h, err := p.TH.Sense(); err != nil {
		p.Logger.Printf("sensing: AHT20 read failed, retaining last reading: %v", err)
	} else {
		p.snapshot.TemperatureC = t
		p.snapshot.HumidityRH = h
	}

	waterRaw, waterErr := p.ADC.ReadSingleEnded(waterChannel)
	ecRaw, ecErr := p.ADC.ReadSingleEnded(ecChannel)
	if waterErr == nil {
		p.lastWaterRaw = waterRaw
	}
	if ecErr == nil {
		p.lastECRaw = ecRaw
	}
	if waterErr == nil && ecErr == nil {
		p.i2cFailCount = 0
	} else {
		p.i2cFailCount++
		p.Logger.Printf("sensing: ADC read failed (water=%v ec=%v), fault count=%d", waterErr, ecErr, p.i2cFailCount)
		if p.i2cFailCount >= i2cFaultReinitThreshold {
			if p.Reinit != nil {
				if err := p.Reinit.Reinit(); err != nil {
					p.Logger.Printf("sensing: I2C reinit failed: %v", err)
				} else {
					p.Logger.Printf("sensing: I2C bus reinitialized after %d consecutive faults", p.i2cFailCount)
				}
			}
			p.i2cFailCount = 0
		}
	}

	waterVolts := ads1115.ToVoltage(p.lastWaterRaw)
	ecVolts := ads1115.ToVoltage(p.lastECRaw)

	p.snapshot.WaterPercent = p.pushWater((waterVolts / 3.3) * 100)
	p.snapshot.EC = p.applyECFilter(ecVolts * 1000)

	if p.warmup < 255 {
		p.warmup++
	}
}

// pushWater records a new raw water percentage sample into the 3-slot
// ring and returns the value the rest of the system should see: the
// sample itself before the ring is full, the 3-sample mean thereafter.
func (p *Pipeline) pushWater(percent float64) float64 {
	idx := p.filters.waterRingFilled % waterRingSize
	p.filters.waterRing[idx] = percent
	p.filters.waterRingFilled++
	if p.filters.waterRingFilled < waterRingSize {
		return percent
	}
	sum := 0.0
	for _, v := range p.filters.waterRing {
		sum += v
	}
	return sum / waterRingSize
}

// applyECFilter runs ppm through the EC EMA, seeded by the first sample
// after a reset: out_n = 0.2*x_n + 0.8*out_{n-1}, out_0 = x_0.
func (p *Pipeline) applyECFilter(ppm float64) float64 {
	if !p.filters.ecInitialized {
		p.filters.ecEMA = ppm
		p.filters.ecInitialized = true
		return ppm
	}
	p.filters.ecEMA = ecAlpha*ppm + (1-ecAlpha)*p.filters.ecEMA
	return p.filters.ecEMA
}

// busReinitializer adapts a registered periph I²C bus name to
// I2CReinitializer by closing and reopening it via i2creg.
//
// Reopening the bus alone isn't enough: the AHT20/ADS1115 drivers each
// hold their own i2c.Dev wrapping the *old* bus value, so rebuild is
// called with the fresh bus to reconstruct and reinstall them (e.g.
// into a Pipeline's exported TH/ADC fields); otherwise sampling keeps
// issuing transfers against the closed handle forever.
type busReinitializer struct {
	name    string
	bus     *i2c.BusCloser
	rebuild func(i2c.Bus)
}

// NewBusReinitializer returns an I2CReinitializer that closes and
// reopens the named I²C bus (spec.md §4.D step 2), then calls rebuild
// with the new bus so the caller can reconstruct any device driver that
// was bound to the old one.
func NewBusReinitializer(name string, bus *i2c.BusCloser, rebuild func(i2c.Bus)) I2CReinitializer {
	return &busReinitializer{name: name, bus: bus, rebuild: rebuild}
}

func (r *busReinitializer) Reinit() error {
	if *r.bus != nil {
		_ = (*r.bus).Close()
	}
	newBus, err := i2creg.Open(r.name)
	if err != nil {
		return err
	}
	*r.bus = newBus
	if r.rebuild != nil {
		r.rebuild(newBus)
	}
	return nil
}
