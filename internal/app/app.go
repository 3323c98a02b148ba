// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package app wires components B through G into the single cooperative
// loop described in spec.md §5: the node's "application owner".
package app

import (
	"context"
	"log"
	"time"

	"github.com/sayoonjin/ssuksuk/internal/command"
	"github.com/sayoonjin/ssuksuk/internal/frameparser"
	"github.com/sayoonjin/ssuksuk/internal/platform"
	"github.com/sayoonjin/ssuksuk/internal/protocol"
	"github.com/sayoonjin/ssuksuk/internal/recovery"
	"github.com/sayoonjin/ssuksuk/internal/sensing"
	"github.com/sayoonjin/ssuksuk/internal/statuspanel"
	"github.com/sayoonjin/ssuksuk/internal/threshold"
)

// PollInterval is the fast-path tick: UART poll, frame dispatch, and one
// recovery.FSM.Advance. The original firmware runs this as fast as the
// superloop spins; hosted on an OS we pace it instead of busy-spinning.
const PollInterval = 10 * time.Millisecond

// SampleInterval is the ≈1 Hz cadence at which D (sensing.Pipeline) and
// E (threshold.FSM) run, per spec.md §5.
const SampleInterval = time.Second

// App owns the wiring between the serial transport, the frame parser,
// the command dispatch table, the sensor pipeline, and the two FSMs.
type App struct {
	Serial    platform.Serial
	Parser    *frameparser.Parser
	Codec     *protocol.Codec
	Command   *command.Handler
	Sensing   *sensing.Pipeline
	Threshold *threshold.FSM
	Recovery  *recovery.FSM
	Logger    *log.Logger

	// Panel is an optional local diagnostic LCD readout. Nil is a valid
	// configuration — the node has no display requirement of its own.
	Panel *statuspanel.Dev
}

// PollOnce drains whatever bytes are currently buffered in the serial
// reader without blocking, feeding each to the frame parser and
// dispatching any frame it completes. It is the Go-hosted equivalent of
// "poll the UART RX flag" in spec.md §5 step 1 — the original's
// single-byte-per-tick poll is safe to coalesce since nothing else
// mutates parser state between ticks.
func (a *App) PollOnce() {
	for {
		b, ok := a.Serial.TryReadByte()
		if !ok {
			return
		}
		if frame, ok := a.Parser.Feed(b); ok {
			a.Command.Handle(frame)
		}
	}
}

// SampleAndCheck runs D then E: spec.md §5 step 3. Any threshold
// transitions queued by E during Check are drained and sent to the host
// as EVENT frames.
func (a *App) SampleAndCheck() {
	a.Sensing.SampleAll()
	a.Threshold.Check(a.Sensing.Snapshot())
	a.drainThresholdEvents()
	a.renderPanel()
}

func (a *App) renderPanel() {
	if a.Panel == nil {
		return
	}
	err := a.Panel.RenderSnapshot(a.Sensing.Snapshot(), a.Threshold.Mask(), a.Recovery.Active())
	if err != nil && a.Logger != nil {
		a.Logger.Printf("app: status panel render error: %v", err)
	}
}

func (a *App) drainThresholdEvents() {
	for {
		select {
		case ev := <-a.Threshold.Events:
			snap := ev.Snapshot
			err := a.Codec.SendEventSensor(ev.Subtype,
				uint16(snap.TemperatureC*10),
				uint16(snap.HumidityRH*10),
				uint16(snap.EC),
				uint16(snap.WaterPercent))
			if err != nil && a.Logger != nil {
				a.Logger.Printf("app: event send error: %v", err)
			}
		default:
			return
		}
	}
}

// Run drives the cooperative loop until ctx is canceled: fast-path UART
// poll + frame dispatch + recovery.FSM.Advance on every PollInterval
// tick, and D→E sampling on every SampleInterval tick, matching the
// relative cadence of spec.md §5 without busy-spinning a CPU core.
func (a *App) Run(ctx context.Context) error {
	poll := time.NewTicker(PollInterval)
	defer poll.Stop()
	sample := time.NewTicker(SampleInterval)
	defer sample.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
			a.PollOnce()
			a.Recovery.Advance()
		case <-sample.C:
			a.SampleAndCheck()
		}
	}
}
