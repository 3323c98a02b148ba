// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package protocol implements the framed serial wire protocol spoken
// between a hydroponic node and its supervising host.
//
// Frame layout: STX | TYPE | SUBTYPE | LEN | PAYLOAD[LEN] | CHK | ETX.
// CHK is the XOR of TYPE, SUBTYPE, LEN and every payload byte. Multi-byte
// payload fields are little-endian.
package protocol

import "fmt"

// Framing bytes.
const (
	STX byte = 0xAA
	ETX byte = 0x55
)

// MaxPayload is the largest LEN this protocol ever carries.
const MaxPayload = 32

// Frame type codes.
const (
	TypeCmd   byte = 0x01
	TypeData  byte = 0x02
	TypeEvent byte = 0x03
)

// CMD subtypes (host -> device).
const (
	CmdReady         byte = 0x01
	CmdReqSensor     byte = 0x02
	CmdLEDOn         byte = 0x03
	CmdLEDOff        byte = 0x04
	CmdPumpWater     byte = 0x07
	CmdPumpNutri     byte = 0x08
	CmdPumpWaterStop byte = 0x09
	CmdPumpNutriStop byte = 0x0A
	CmdPing          byte = 0x0C
	CmdPong          byte = 0x0D
	CmdAutoRecovery  byte = 0x0E
	CmdClose         byte = 0x0F
)

// DATA subtypes (device -> host).
const (
	DataSensor byte = 0x01
)

// EVENT subtypes (device -> host).
const (
	EventWaterLow           byte = 0x01
	EventECLow              byte = 0x02
	EventWaterHigh          byte = 0x03
	EventECHigh             byte = 0x04
	EventWaterRecoveryDone  byte = 0x05
	EventNutriRecoveryDone  byte = 0x06
	EventSensorFail         byte = 0x07
	EventWaterPumpFail      byte = 0x08
	EventNutriPumpFail      byte = 0x09
	EventWaterActionSuccess byte = 0x0A
	EventNutriActionSuccess byte = 0x0B
)

// Transmitter is the narrow part of platform.Serial the codec needs: a
// synchronous, blocking byte-buffer send. Implementations are expected to
// block until the bytes are handed to the UART driver, matching
// HAL_UART_Transmit(..., HAL_MAX_DELAY) in the original firmware.
type Transmitter interface {
	Write(p []byte) (int, error)
}

// Frame is a fully decoded, validated protocol frame.
type Frame struct {
	Type    byte
	Subtype byte
	Payload []byte
}

// Checksum computes the XOR checksum of a header+payload, exactly as
// proto_checksum does in the original firmware.
func Checksum(typ, subtype, length byte, payload []byte) byte {
	chk := typ ^ subtype ^ length
	for _, b := range payload {
		chk ^= b
	}
	return chk
}

// PackU16LE writes v into dst[0:2], low byte first.
func PackU16LE(dst []byte, v uint16) {
	dst[0] = byte(v & 0xFF)
	dst[1] = byte(v >> 8)
}

// UnpackU16LE reads a little-endian u16 from src[0:2].
func UnpackU16LE(src []byte) uint16 {
	return uint16(src[0]) | uint16(src[1])<<8
}

// Encode assembles a complete frame: STX|TYPE|SUBTYPE|LEN|PAYLOAD|CHK|ETX.
func Encode(typ, subtype byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("protocol: payload length %d exceeds max %d", len(payload), MaxPayload)
	}
	frame := make([]byte, 0, len(payload)+6)
	frame = append(frame, STX, typ, subtype, byte(len(payload)))
	frame = append(frame, payload...)
	frame = append(frame, Checksum(typ, subtype, byte(len(payload)), payload), ETX)
	return frame, nil
}

// Decode validates and splits a complete, correctly sized frame (as
// produced by a frameparser dispatch) back into its type/subtype/payload
// triple. It is the inverse of Encode and is used both by tests (the
// round-trip property) and anywhere a frame needs re-validating outside
// the streaming parser.
func Decode(frame []byte) (Frame, error) {
	if len(frame) < 6 {
		return Frame{}, fmt.Errorf("protocol: frame too short: %d bytes", len(frame))
	}
	if frame[0] != STX {
		return Frame{}, fmt.Errorf("protocol: missing STX")
	}
	length := frame[3]
	if len(frame) != int(length)+6 {
		return Frame{}, fmt.Errorf("protocol: frame length mismatch: got %d bytes, want %d", len(frame), int(length)+6)
	}
	payload := frame[4 : 4+length]
	if frame[len(frame)-1] != ETX {
		return Frame{}, fmt.Errorf("protocol: missing ETX")
	}
	want := Checksum(frame[1], frame[2], length, payload)
	if frame[4+length] != want {
		return Frame{}, fmt.Errorf("protocol: checksum mismatch: got 0x%02X, want 0x%02X", frame[4+length], want)
	}
	return Frame{Type: frame[1], Subtype: frame[2], Payload: payload}, nil
}

// SensorPayload packs the 8-byte sensor payload shared by DATA_SENSOR and
// every sensor-bearing EVENT: temp_x10, humi_x10, ec, water, each a
// little-endian u16.
func SensorPayload(tempX10, humiX10, ec, water uint16) []byte {
	p := make([]byte, 8)
	PackU16LE(p[0:2], tempX10)
	PackU16LE(p[2:4], humiX10)
	PackU16LE(p[4:6], ec)
	PackU16LE(p[6:8], water)
	return p
}

// Codec assembles and transmits frames over a Transmitter. It is
// fire-and-forget: transmit errors are returned to the caller but are
// never retried here, matching the original's "callers ignore the
// status" telemetry contract.
type Codec struct {
	Tx Transmitter
}

// Send assembles and transmits a single frame.
func (c *Codec) Send(typ, subtype byte, payload []byte) error {
	frame, err := Encode(typ, subtype, payload)
	if err != nil {
		return err
	}
	_, err = c.Tx.Write(frame)
	return err
}

// SendPong replies to CMD_PING.
func (c *Codec) SendPong() error {
	return c.Send(TypeCmd, CmdPong, nil)
}

// SendSensorData emits a DATA_SENSOR frame for the current snapshot.
func (c *Codec) SendSensorData(tempX10, humiX10, ec, water uint16) error {
	return c.Send(TypeData, DataSensor, SensorPayload(tempX10, humiX10, ec, water))
}

// SendEventSensor emits a sensor-bearing EVENT frame (any of the
// threshold-transition or recovery-outcome subtypes).
func (c *Codec) SendEventSensor(eventSubtype byte, tempX10, humiX10, ec, water uint16) error {
	return c.Send(TypeEvent, eventSubtype, SensorPayload(tempX10, humiX10, ec, water))
}
