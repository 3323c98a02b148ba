// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package platformtest provides fake platform.Clock and platform.Serial
// implementations for driving the FSMs and command handler under test,
// in the same spirit as periph's own i2ctest/gpiotest fakes.
package platformtest

import "sync"

// Clock is a manually-advanced platform.Clock.
type Clock struct {
	mu  sync.Mutex
	now uint32
}

// NowMS implements platform.Clock.
func (c *Clock) NowMS() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// DelayMS implements platform.Clock. It advances the fake clock rather
// than sleeping, so tests run instantly regardless of dwell times.
func (c *Clock) DelayMS(ms uint32) {
	c.Advance(ms)
}

// Advance moves the fake clock forward by ms milliseconds.
func (c *Clock) Advance(ms uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += ms
}

// Serial is a fake platform.Serial backed by an in-memory byte queue for
// inbound data and a captured buffer for outbound data.
type Serial struct {
	mu  sync.Mutex
	rx  []byte
	Tx  [][]byte
}

// Feed queues bytes to be returned by future TryReadByte calls, as if
// they had just arrived over the wire.
func (s *Serial) Feed(b ...byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rx = append(s.rx, b...)
}

// TryReadByte implements platform.Serial.
func (s *Serial) TryReadByte() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rx) == 0 {
		return 0, false
	}
	b := s.rx[0]
	s.rx = s.rx[1:]
	return b, true
}

// Write implements platform.Serial, recording every frame sent.
func (s *Serial) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]byte(nil), p...)
	s.Tx = append(s.Tx, cp)
	return len(p), nil
}

// LastWrite returns the most recently written frame, or nil if none.
func (s *Serial) LastWrite() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Tx) == 0 {
		return nil
	}
	return s.Tx[len(s.Tx)-1]
}
