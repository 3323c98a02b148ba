// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package frameparser turns a byte-at-a-time serial stream into validated
// protocol.Frame values, one byte per Feed call — the foreground loop
// feeds it whatever platform.Serial.TryReadByte returns each tick.
package frameparser

import "github.com/sayoonjin/ssuksuk/internal/protocol"

// frameHeaderLen is the number of bytes before the payload: STX, TYPE,
// SUBTYPE, LEN.
const frameHeaderLen = 4

// frameOverheadLen is header + CHK + ETX, i.e. total frame length minus LEN.
const frameOverheadLen = 6

// Parser is the single-byte state machine of spec.md §4.C. It only ever
// accepts bytes once an STX has been observed; bytes before the first STX
// are discarded. A corrupted LEN can leave it waiting indefinitely for
// more bytes — by design, the host is expected to retransmit.
type Parser struct {
	buf         [frameHeaderLen + protocol.MaxPayload + 2]byte
	idx         int
	expectedLen byte
}

// Feed appends one byte to the in-progress frame. It returns a decoded
// frame and true exactly when a complete, checksum-valid frame has just
// been assembled; any other outcome (still accumulating, or a malformed
// frame that was silently dropped) returns false.
func (p *Parser) Feed(b byte) (protocol.Frame, bool) {
	if p.idx == 0 && b != protocol.STX {
		return protocol.Frame{}, false
	}

	p.buf[p.idx] = b
	p.idx++

	if p.idx == frameHeaderLen {
		p.expectedLen = p.buf[3]
		if p.expectedLen > protocol.MaxPayload {
			// Corrupted LEN: resync on the next STX rather than writing
			// past buf, per spec.md §4.C.
			p.idx = 0
			return protocol.Frame{}, false
		}
	}

	if p.idx >= frameOverheadLen && p.idx == int(p.expectedLen)+frameOverheadLen {
		frame, ok := p.dispatch()
		p.idx = 0
		return frame, ok
	}
	return protocol.Frame{}, false
}

// dispatch validates the buffered bytes and, on success, decodes them.
func (p *Parser) dispatch() (protocol.Frame, bool) {
	total := int(p.expectedLen) + frameOverheadLen
	frame, err := protocol.Decode(p.buf[:total])
	if err != nil {
		return protocol.Frame{}, false
	}
	return frame, true
}
