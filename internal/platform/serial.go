// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package platform

import "io"

// Serial is the point-to-point byte transport the frame parser and
// protocol codec ride on. TryReadByte is the Go-hosted equivalent of the
// original firmware's UART RX-flag poll: it never blocks, returning
// ok=false when nothing has arrived yet. Write blocks until the bytes
// are handed to the underlying transport, matching HAL_UART_Transmit's
// HAL_MAX_DELAY semantics.
type Serial interface {
	TryReadByte() (b byte, ok bool)
	Write(p []byte) (int, error)
}

// serialPort adapts any io.ReadWriter (a real device node, a test pipe,
// ...) to Serial. Reads happen on a dedicated goroutine that only ever
// pushes bytes into a buffered channel — it never touches firmware
// state — so the foreground loop stays the sole owner of every
// component, exactly as spec.md §5 requires.
type serialPort struct {
	rw    io.ReadWriter
	inbox chan byte
	errs  chan error
}

// NewSerialPort wraps rw as a Serial, starting its background reader.
func NewSerialPort(rw io.ReadWriter) Serial {
	p := &serialPort{
		rw:    rw,
		inbox: make(chan byte, 256),
		errs:  make(chan error, 1),
	}
	go p.readLoop()
	return p
}

func (p *serialPort) readLoop() {
	buf := make([]byte, 64)
	for {
		n, err := p.rw.Read(buf)
		for i := 0; i < n; i++ {
			p.inbox <- buf[i]
		}
		if err != nil {
			select {
			case p.errs <- err:
			default:
			}
			return
		}
	}
}

// TryReadByte returns the next buffered inbound byte, if any, without
// blocking.
func (p *serialPort) TryReadByte() (byte, bool) {
	select {
	case b := <-p.inbox:
		return b, true
	default:
		return 0, false
	}
}

func (p *serialPort) Write(b []byte) (int, error) {
	return p.rw.Write(b)
}
