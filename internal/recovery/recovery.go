// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package recovery implements the timed, multi-phase auto-recovery
// pump sequences: spec.md §4.F / component F.
package recovery

import (
	"github.com/sayoonjin/ssuksuk/internal/platform"
	"github.com/sayoonjin/ssuksuk/internal/protocol"
	"github.com/sayoonjin/ssuksuk/internal/sensing"
	"github.com/sayoonjin/ssuksuk/internal/threshold"
)

// Request mask bits, shared with threshold.MaskWater/MaskEC.
const (
	Water uint8 = threshold.MaskWater
	EC    uint8 = threshold.MaskEC
)

// state is the single recovery-state enum: spec.md §9 calls out the
// original's duplicated AR_IDLE enum as a defect to fix by owning one
// type here, not also declaring a copy in the parser.
type state int

const (
	idle state = iota
	waterPumpOn
	waterSettle
	waterCheck
	ecPumpOn
	ecWait
	ecCheck
)

// Phase dwell times, in milliseconds, exactly spec.md §4.F's phase table.
const (
	waterPumpOnDwellMS  = 4000
	waterSettleDwellMS  = 3000
	ecPumpOnDwellMS     = 700
	ecWaitDwellMS       = 30000
	ecMaxRetries        = 5
	waterCheckSamples   = 5
	waterCheckSpacingMS = 30
)

// Sampler is the narrow sensing.Pipeline surface the water/EC check
// phases need to take rapid re-samples.
type Sampler interface {
	SampleAll()
	Snapshot() sensing.Snapshot
}

// Suspender lets the recovery FSM suspend and resume the threshold FSM
// around water recovery (spec.md §4.F start policy; EC recovery does
// not suspend, preserved per spec.md §9 open question).
type Suspender interface {
	SetSuspended(bool)
}

// Emitter is the narrow protocol.Codec surface used to send outcome
// events.
type Emitter interface {
	SendEventSensor(eventSubtype byte, tempX10, humiX10, ec, water uint16) error
}

// FSM owns the auto-recovery state machine: spec.md §3's auto-recovery
// state fields.
type FSM struct {
	Clock     platform.Clock
	Sampler   Sampler
	Thresholds sensing.Thresholds
	WaterPump platform.Actuator
	NutriPump platform.Actuator
	Threshold Suspender
	Emit      Emitter

	st             state
	pendingMask    uint8
	runningMask    uint8
	phaseEntryTick uint32
	ecRetryCount   int
}

// Active reports whether a recovery sequence is in progress.
func (f *FSM) Active() bool {
	return f.st != idle
}

// RunningMask returns the single signal currently under recovery, if
// any (at most one bit set, per spec.md §3 invariant).
func (f *FSM) RunningMask() uint8 {
	return f.runningMask
}

// Request intakes a recovery request mask (component G's AUTO_RECOVERY
// dispatch). New bits not already pending or running are queued; if
// currently idle, a start attempt follows immediately.
func (f *FSM) Request(mask uint8) {
	newBits := mask &^ f.pendingMask &^ f.runningMask
	if newBits == 0 {
		return
	}
	f.pendingMask |= newBits
	if f.st == idle {
		f.startIfNeeded()
	}
}

// startIfNeeded applies the start policy: water takes priority over EC,
// and each candidate's condition is re-checked against the latest
// reading as a guard against a stale pending request.
func (f *FSM) startIfNeeded() {
	if f.st != idle {
		return
	}
	snap := f.Sampler.Snapshot()

	if f.pendingMask&Water != 0 && snap.WaterPercent < f.Thresholds.WaterMin {
		f.pendingMask &^= Water
		f.runningMask = Water
		if f.Threshold != nil {
			f.Threshold.SetSuspended(true)
		}
		_ = f.WaterPump.On()
		f.st = waterPumpOn
		f.phaseEntryTick = f.Clock.NowMS()
		return
	}

	if f.pendingMask&EC != 0 && snap.EC < f.Thresholds.ECMin {
		f.pendingMask &^= EC
		f.runningMask = EC
		f.ecRetryCount = 0
		// Intentionally not suspending the threshold FSM for EC recovery,
		// preserving the original's behavior (spec.md §9): E may still
		// emit a spurious EC_LOW transition mid-recovery.
		_ = f.NutriPump.On()
		f.st = ecPumpOn
		f.phaseEntryTick = f.Clock.NowMS()
		return
	}
}

// Advance steps the FSM by at most one phase transition, driven by the
// platform monotonic tick. It is invoked once per main-loop tick.
func (f *FSM) Advance() {
	now := f.Clock.NowMS()
	switch f.st {
	case waterPumpOn:
		if now-f.phaseEntryTick >= waterPumpOnDwellMS {
			_ = f.WaterPump.Off()
			f.st = waterSettle
			f.phaseEntryTick = now
		}
	case waterSettle:
		if now-f.phaseEntryTick >= waterSettleDwellMS {
			f.st = waterCheck
		}
	case waterCheck:
		f.runWaterCheck()
	case ecPumpOn:
		if now-f.phaseEntryTick >= ecPumpOnDwellMS {
			_ = f.NutriPump.Off()
			f.st = ecWait
			f.phaseEntryTick = now
		}
	case ecWait:
		if now-f.phaseEntryTick >= ecWaitDwellMS {
			f.st = ecCheck
		}
	case ecCheck:
		f.runECCheck()
	}
}

// runWaterCheck takes 5 rapid samples 30ms apart, averages WaterPercent,
// and reports success or failure against water_min.
func (f *FSM) runWaterCheck() {
	sum := 0.0
	for i := 0; i < waterCheckSamples; i++ {
		f.Sampler.SampleAll()
		sum += f.Sampler.Snapshot().WaterPercent
		f.Clock.DelayMS(waterCheckSpacingMS)
	}
	avg := sum / waterCheckSamples

	snap := f.Sampler.Snapshot()
	event := protocol.EventWaterActionSuccess
	if avg < f.Thresholds.WaterMin {
		event = protocol.EventWaterPumpFail
	}
	f.emitSensorEvent(event, snap, avg)
	f.finish()
}

// runECCheck takes one sample and reports success, or retries up to
// ecMaxRetries times before reporting failure.
func (f *FSM) runECCheck() {
	f.Sampler.SampleAll()
	snap := f.Sampler.Snapshot()

	if snap.EC >= f.Thresholds.ECMin {
		f.emitSensorEvent(protocol.EventNutriActionSuccess, snap, snap.WaterPercent)
		f.finish()
		return
	}

	f.ecRetryCount++
	if f.ecRetryCount >= ecMaxRetries {
		f.emitSensorEvent(protocol.EventNutriPumpFail, snap, snap.WaterPercent)
		f.finish()
		return
	}

	_ = f.NutriPump.On()
	f.st = ecPumpOn
	f.phaseEntryTick = f.Clock.NowMS()
}

func (f *FSM) emitSensorEvent(subtype byte, snap sensing.Snapshot, water float64) {
	if f.Emit == nil {
		return
	}
	_ = f.Emit.SendEventSensor(subtype,
		uint16(snap.TemperatureC*10),
		uint16(snap.HumidityRH*10),
		uint16(snap.EC),
		uint16(water))
}

// finish de-energizes both pumps, returns to idle, resumes the
// threshold FSM, and immediately attempts to start any queued work.
func (f *FSM) finish() {
	_ = f.WaterPump.Off()
	_ = f.NutriPump.Off()
	f.st = idle
	f.runningMask = 0
	if f.Threshold != nil {
		f.Threshold.SetSuspended(false)
	}
	if f.pendingMask != 0 {
		f.startIfNeeded()
	}
}

// ForceStop is the CLOSE command's cancellation path: both pumps off,
// all pending/running/retry state cleared, threshold FSM resumed.
func (f *FSM) ForceStop() {
	_ = f.WaterPump.Off()
	_ = f.NutriPump.Off()
	f.st = idle
	f.pendingMask = 0
	f.runningMask = 0
	f.ecRetryCount = 0
	if f.Threshold != nil {
		f.Threshold.SetSuspended(false)
	}
}
