// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package command implements the host-facing CMD dispatch table:
// spec.md §4.G / component G.
package command

import (
	"log"

	"github.com/sayoonjin/ssuksuk/internal/platform"
	"github.com/sayoonjin/ssuksuk/internal/protocol"
	"github.com/sayoonjin/ssuksuk/internal/sensing"
	"github.com/sayoonjin/ssuksuk/internal/threshold"
)

// Recovery is the narrow recovery.FSM surface the handler drives.
type Recovery interface {
	Request(mask uint8)
	ForceStop()
}

// Threshold is the narrow threshold.FSM surface the handler drives.
type Threshold interface {
	RequestInitialCheck()
	ResetFSM()
	Mask() uint8
}

// Sensing is the narrow sensing.Pipeline surface the handler reads from.
type Sensing interface {
	Snapshot() sensing.Snapshot
	ResetFilters()
}

// Handler owns the stm_ready gate and dispatches validated CMD frames to
// the rest of the node: spec.md §4.G.
type Handler struct {
	Codec     *protocol.Codec
	Sensing   Sensing
	Threshold Threshold
	Recovery  Recovery
	LED       platform.Actuator
	WaterPump platform.Actuator
	NutriPump platform.Actuator
	Logger    *log.Logger

	ready        bool
	droppedCount uint32
}

// Ready reports whether the device has seen CMD_READY since boot or the
// last CLOSE.
func (h *Handler) Ready() bool {
	return h.ready
}

// DroppedCount is an internal-only metric: the number of frames that
// were silently dropped (unknown subtype, non-CMD type, or gated command
// received before READY). It has no host-visible effect, per spec.md §7.
func (h *Handler) DroppedCount() uint32 {
	return h.droppedCount
}

// Handle dispatches a single validated frame. Non-CMD frames, unknown
// subtypes, and any gated command received before READY are silently
// dropped (spec.md §4.G).
func (h *Handler) Handle(frame protocol.Frame) {
	if frame.Type != protocol.TypeCmd {
		h.drop()
		return
	}

	if frame.Subtype == protocol.CmdReady {
		h.ready = true
		return
	}

	if !h.ready {
		h.drop()
		return
	}

	switch frame.Subtype {
	case protocol.CmdPing:
		h.logErr(h.Codec.SendPong())
	case protocol.CmdReqSensor:
		h.Threshold.RequestInitialCheck()
		snap := h.Sensing.Snapshot()
		h.logErr(h.Codec.SendSensorData(
			uint16(snap.TemperatureC*10),
			uint16(snap.HumidityRH*10),
			uint16(snap.EC),
			uint16(snap.WaterPercent),
		))
	case protocol.CmdLEDOn:
		h.logErr(h.LED.On())
	case protocol.CmdLEDOff:
		h.logErr(h.LED.Off())
	case protocol.CmdPumpWater:
		h.logErr(h.WaterPump.On())
	case protocol.CmdPumpWaterStop:
		h.logErr(h.WaterPump.Off())
	case protocol.CmdPumpNutri:
		h.logErr(h.NutriPump.On())
	case protocol.CmdPumpNutriStop:
		h.logErr(h.NutriPump.Off())
	case protocol.CmdAutoRecovery:
		h.Recovery.Request(h.Threshold.Mask())
	case protocol.CmdClose:
		h.close()
	default:
		h.drop()
	}
}

// close runs the CLOSE handshake: actuators off in water, nutrient, LED
// order, recovery force-stopped, threshold FSM and sensing filters
// reset (spec.md §4.E's reset_fsm() clears both in one operation),
// readiness cleared.
func (h *Handler) close() {
	h.logErr(h.WaterPump.Off())
	h.logErr(h.NutriPump.Off())
	h.logErr(h.LED.Off())
	h.Recovery.ForceStop()
	h.Threshold.ResetFSM()
	h.Sensing.ResetFilters()
	h.ready = false
}

func (h *Handler) drop() {
	h.droppedCount++
}

func (h *Handler) logErr(err error) {
	if err != nil && h.Logger != nil {
		h.Logger.Printf("command: actuation error: %v", err)
	}
}

var (
	_ Threshold = (*threshold.FSM)(nil)
	_ Sensing   = (*sensing.Pipeline)(nil)
)
