// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package statuspanel drives an optional local diagnostic LCD readout of
// the node's current sensor snapshot and recovery state. It is not part
// of the wire protocol and not required by any invariant; a nil *Dev
// (no display wired) is a valid, tested configuration.
//
// The hardware driver below is adapted from a SparkFun SerLCD intelligent
// display driver (I²C/SPI/UART, implements
// periph.io/x/conn/v3/display.TextDisplay) — only the line-formatting in
// RenderSnapshot is specific to this node.
package statuspanel

import (
	"fmt"
	"io"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"

	"github.com/sayoonjin/ssuksuk/internal/sensing"
)

// DefaultI2CAddress is the SerLCD's 7-bit I²C address.
const DefaultI2CAddress uint16 = 0x72

const (
	settingMode byte = 0x7c
	cmdMode     byte = 0xfe
)

var clearSequence = []byte{settingMode, 0x2d}

func wrap(err error) error {
	return fmt.Errorf("statuspanel: %w", err)
}

// Dev is a character LCD reachable over I²C (via conn.Conn) or a raw
// io.Writer (e.g. a UART). It implements display.TextDisplay.
type Dev struct {
	conn conn.Conn
	w    io.Writer
	cols int
	rows int

	displayDCB byte
}

// NewI2C wires a Dev to an I²C connection (e.g. i2c.Dev{Bus: bus, Addr:
// DefaultI2CAddress}), turning the display on.
func NewI2C(c conn.Conn, rows, cols int) *Dev {
	dev := &Dev{conn: c, rows: rows, cols: cols}
	_ = dev.Display(true)
	return dev
}

// NewWriter wires a Dev to a raw byte sink (e.g. a UART), turning the
// display on.
func NewWriter(w io.Writer, rows, cols int) *Dev {
	dev := &Dev{w: w, rows: rows, cols: cols}
	_ = dev.Display(true)
	return dev
}

// Cols implements display.TextDisplay.
func (dev *Dev) Cols() int { return dev.cols }

// Rows implements display.TextDisplay.
func (dev *Dev) Rows() int { return dev.rows }

// MinCol implements display.TextDisplay.
func (dev *Dev) MinCol() int { return 0 }

// MinRow implements display.TextDisplay.
func (dev *Dev) MinRow() int { return 0 }

// Clear implements display.TextDisplay.
func (dev *Dev) Clear() error {
	_, err := dev.Write(clearSequence)
	time.Sleep(2 * time.Millisecond)
	return err
}

// Home implements display.TextDisplay.
func (dev *Dev) Home() error {
	err := dev.MoveTo(dev.MinRow(), dev.MinCol())
	time.Sleep(2 * time.Millisecond)
	return err
}

// MoveTo implements display.TextDisplay.
func (dev *Dev) MoveTo(row, col int) error {
	lineOffsets := []byte{0, 64, 20, 84}
	if row < dev.MinRow() || row >= dev.Rows() || col < dev.MinCol() || col >= dev.Cols() {
		return wrap(fmt.Errorf("invalid MoveTo(%d, %d)", row, col))
	}
	_, err := dev.Write([]byte{cmdMode, 0x80 + lineOffsets[row] + byte(col)})
	return err
}

// Move implements display.TextDisplay. Only Forward/Backward are
// supported by this single-line cursor command set.
func (dev *Dev) Move(dir display.CursorDirection) error {
	cmdByte := byte(0x10)
	switch dir {
	case display.Backward:
	case display.Forward:
		cmdByte |= 0x04
	default:
		return wrap(display.ErrNotImplemented)
	}
	_, err := dev.Write([]byte{cmdMode, cmdByte})
	return err
}

// Cursor implements display.TextDisplay.
func (dev *Dev) Cursor(modes ...display.CursorMode) error {
	dev.displayDCB &= 0x04
	for _, m := range modes {
		switch m {
		case display.CursorBlink, display.CursorBlock:
			dev.displayDCB |= 0x01
		case display.CursorUnderline:
			dev.displayDCB |= 0x02
		case display.CursorOff:
		default:
			return wrap(display.ErrInvalidCommand)
		}
	}
	dev.displayDCB = (dev.displayDCB | 0x08) & 0xf
	_, err := dev.Write([]byte{cmdMode, dev.displayDCB})
	return err
}

// AutoScroll implements display.TextDisplay. Not supported by this
// command set.
func (dev *Dev) AutoScroll(enabled bool) error {
	return wrap(display.ErrNotImplemented)
}

// Display turns the panel on or off.
func (dev *Dev) Display(on bool) error {
	if on {
		dev.displayDCB |= 0x04
	} else {
		dev.displayDCB &^= 0x04
	}
	_, err := dev.Write([]byte{cmdMode, (dev.displayDCB | 0x08) & 0x0f})
	return err
}

// Halt implements conn.Resource: clears and powers off the panel.
func (dev *Dev) Halt() error {
	if err := dev.Clear(); err != nil {
		return err
	}
	if err := dev.Display(false); err != nil {
		return err
	}
	if dev.w != nil {
		if cl, ok := dev.w.(io.Closer); ok {
			return cl.Close()
		}
	}
	return nil
}

// String implements conn.Resource.
func (dev *Dev) String() string {
	return fmt.Sprintf("ssuksuk statuspanel %dx%d", dev.cols, dev.rows)
}

// Write sends raw bytes to the panel, chunked to the 32-byte I²C buffer
// limit the hardware enforces.
func (dev *Dev) Write(p []byte) (int, error) {
	if dev.w != nil {
		return dev.w.Write(p)
	}
	const chunk = 32
	n := 0
	for n < len(p) {
		end := n + chunk
		if end > len(p) {
			end = len(p)
		}
		written := end - n
		if err := dev.conn.Tx(p[n:end], nil); err != nil {
			return n, err
		}
		n = end
		time.Sleep(time.Duration(40*written) * time.Microsecond)
	}
	return n, nil
}

// WriteString writes a plain-text line to the panel.
func (dev *Dev) WriteString(s string) (int, error) {
	return dev.Write([]byte(s))
}

// RenderSnapshot renders the node's current sensor snapshot, active
// anomaly mask, and recovery state across the panel's first two rows.
// It is a best-effort diagnostic: errors are returned to the caller
// (app.App logs and otherwise ignores them), never fatal to the node.
func (dev *Dev) RenderSnapshot(snap sensing.Snapshot, mask uint8, recoveryActive bool) error {
	if dev == nil {
		return nil
	}
	if err := dev.MoveTo(0, 0); err != nil {
		return err
	}
	line0 := fmt.Sprintf("T:%4.1fC H:%4.1f%%", snap.TemperatureC, snap.HumidityRH)
	if _, err := dev.WriteString(padTrunc(line0, dev.Cols())); err != nil {
		return err
	}
	if dev.Rows() < 2 {
		return nil
	}
	if err := dev.MoveTo(1, 0); err != nil {
		return err
	}
	line1 := fmt.Sprintf("W:%3.0f%% EC:%4.0f %s", snap.WaterPercent, snap.EC, anomalyGlyph(mask, recoveryActive))
	_, err := dev.WriteString(padTrunc(line1, dev.Cols()))
	return err
}

func anomalyGlyph(mask uint8, recoveryActive bool) string {
	switch {
	case recoveryActive:
		return "[REC]"
	case mask != 0:
		return "[ANM]"
	default:
		return "[OK]"
	}
}

func padTrunc(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	for len(s) < width {
		s += " "
	}
	return s
}

var (
	_ display.TextDisplay = (*Dev)(nil)
	_ conn.Resource       = (*Dev)(nil)
)
