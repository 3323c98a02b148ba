// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"testing"
)

func TestChecksum(t *testing.T) {
	payload := []byte{0xFD, 0x00, 0x90, 0x01, 0x20, 0x03, 0x37, 0x00}
	got := Checksum(TypeData, DataSensor, byte(len(payload)), payload)
	want := TypeData ^ DataSensor ^ byte(len(payload))
	for _, b := range payload {
		want ^= b
	}
	if got != want {
		t.Fatalf("checksum = 0x%02X, want 0x%02X", got, want)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for length := 0; length <= MaxPayload; length++ {
		payload := make([]byte, length)
		for i := range payload {
			payload[i] = byte(i*7 + 3)
		}
		frame, err := Encode(TypeEvent, EventWaterLow, payload)
		if err != nil {
			t.Fatalf("len=%d: Encode: %v", length, err)
		}
		got, err := Decode(frame)
		if err != nil {
			t.Fatalf("len=%d: Decode: %v", length, err)
		}
		if got.Type != TypeEvent || got.Subtype != EventWaterLow {
			t.Fatalf("len=%d: got type/subtype %02X/%02X", length, got.Type, got.Subtype)
		}
		if !bytes.Equal(got.Payload, payload) {
			t.Fatalf("len=%d: payload mismatch: got %v, want %v", length, got.Payload, payload)
		}
	}
}

func TestEncodeRejectsOversizePayload(t *testing.T) {
	if _, err := Encode(TypeCmd, CmdPing, make([]byte, MaxPayload+1)); err == nil {
		t.Fatal("expected error for oversize payload")
	}
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	frame, err := Encode(TypeCmd, CmdPing, nil)
	if err != nil {
		t.Fatal(err)
	}
	frame[len(frame)-2] ^= 0xFF
	if _, err := Decode(frame); err == nil {
		t.Fatal("expected checksum error")
	}
}

func TestDecodeRejectsMissingETX(t *testing.T) {
	frame, err := Encode(TypeCmd, CmdPing, nil)
	if err != nil {
		t.Fatal(err)
	}
	frame[len(frame)-1] = 0x00
	if _, err := Decode(frame); err == nil {
		t.Fatal("expected missing-ETX error")
	}
}

type captureTx struct {
	buf bytes.Buffer
}

func (c *captureTx) Write(p []byte) (int, error) { return c.buf.Write(p) }

// TestSendSensorData reproduces scenario S1 from the specification: a
// REQ_SENSOR response with T=25.3C, H=40.0%RH, EC=800, water=55%.
func TestSendSensorData(t *testing.T) {
	tx := &captureTx{}
	c := &Codec{Tx: tx}
	if err := c.SendSensorData(253, 400, 800, 55); err != nil {
		t.Fatal(err)
	}
	want := []byte{
		STX, TypeData, DataSensor, 8,
		0xFD, 0x00, // temp_x10 = 253
		0x90, 0x01, // humi_x10 = 400
		0x20, 0x03, // ec = 800
		0x37, 0x00, // water = 55
	}
	want = append(want, Checksum(TypeData, DataSensor, 8, want[4:12]), ETX)
	if !bytes.Equal(tx.buf.Bytes(), want) {
		t.Fatalf("got % X, want % X", tx.buf.Bytes(), want)
	}
}

func TestSendPong(t *testing.T) {
	tx := &captureTx{}
	c := &Codec{Tx: tx}
	if err := c.SendPong(); err != nil {
		t.Fatal(err)
	}
	want := []byte{STX, TypeCmd, CmdPong, 0, TypeCmd ^ CmdPong, ETX}
	if !bytes.Equal(tx.buf.Bytes(), want) {
		t.Fatalf("got % X, want % X", tx.buf.Bytes(), want)
	}
}
