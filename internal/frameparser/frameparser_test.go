// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package frameparser

import (
	"testing"

	"github.com/sayoonjin/ssuksuk/internal/protocol"
)

func feedAll(p *Parser, bytes []byte) []protocol.Frame {
	var frames []protocol.Frame
	for _, b := range bytes {
		if f, ok := p.Feed(b); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

func TestFeedValidFrame(t *testing.T) {
	var p Parser
	frame, err := protocol.Encode(protocol.TypeCmd, protocol.CmdPing, nil)
	if err != nil {
		t.Fatal(err)
	}
	frames := feedAll(&p, frame)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Type != protocol.TypeCmd || frames[0].Subtype != protocol.CmdPing {
		t.Fatalf("unexpected frame: %+v", frames[0])
	}
}

// TestDiscardsBytesBeforeSTX verifies property 1 / invariant: bytes
// preceding the first STX are discarded, not buffered.
func TestDiscardsBytesBeforeSTX(t *testing.T) {
	var p Parser
	frame, err := protocol.Encode(protocol.TypeCmd, protocol.CmdPing, nil)
	if err != nil {
		t.Fatal(err)
	}
	noise := append([]byte{0x01, 0x02, 0x03, protocol.ETX}, frame...)
	frames := feedAll(&p, noise)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
}

// TestBadChecksumDropped reproduces scenario S5: a bad-checksum frame
// produces no dispatch, and a subsequent valid PING still works.
func TestBadChecksumDropped(t *testing.T) {
	var p Parser
	bad := []byte{protocol.STX, protocol.TypeCmd, protocol.CmdPing, 0x00, 0xFF, protocol.ETX}
	good, err := protocol.Encode(protocol.TypeCmd, protocol.CmdPing, nil)
	if err != nil {
		t.Fatal(err)
	}
	frames := feedAll(&p, append(bad, good...))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1 (bad checksum must drop silently)", len(frames))
	}
}

func TestMissingETXDropped(t *testing.T) {
	var p Parser
	frame, err := protocol.Encode(protocol.TypeCmd, protocol.CmdPing, nil)
	if err != nil {
		t.Fatal(err)
	}
	frame[len(frame)-1] = 0x00
	frames := feedAll(&p, frame)
	if len(frames) != 0 {
		t.Fatalf("got %d frames, want 0", len(frames))
	}
}

func TestMultipleFramesBackToBack(t *testing.T) {
	var p Parser
	f1, _ := protocol.Encode(protocol.TypeCmd, protocol.CmdReady, nil)
	f2, _ := protocol.Encode(protocol.TypeCmd, protocol.CmdPing, nil)
	var stream []byte
	stream = append(stream, f1...)
	stream = append(stream, f2...)
	frames := feedAll(&p, stream)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].Subtype != protocol.CmdReady || frames[1].Subtype != protocol.CmdPing {
		t.Fatalf("unexpected frames: %+v", frames)
	}
}

// TestOversizedLenResyncs verifies that a corrupted LEN byte greater
// than protocol.MaxPayload never writes past buf and never panics; the
// parser resyncs and a subsequent valid frame still decodes.
func TestOversizedLenResyncs(t *testing.T) {
	var p Parser
	bad := []byte{protocol.STX, protocol.TypeCmd, protocol.CmdPing, 0xFF, 0x00, 0x00, 0x00}
	good, err := protocol.Encode(protocol.TypeCmd, protocol.CmdPing, nil)
	if err != nil {
		t.Fatal(err)
	}
	frames := feedAll(&p, append(bad, good...))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1 (oversized LEN must drop and resync)", len(frames))
	}
}

func TestMaxPayloadFrame(t *testing.T) {
	var p Parser
	payload := make([]byte, protocol.MaxPayload)
	for i := range payload {
		payload[i] = byte(i)
	}
	frame, err := protocol.Encode(protocol.TypeData, protocol.DataSensor, payload)
	if err != nil {
		t.Fatal(err)
	}
	frames := feedAll(&p, frame)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
}
