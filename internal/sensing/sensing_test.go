// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensing

import (
	"errors"
	"log"
	"testing"
)

type fakeTH struct {
	tempC, humidity float64
	err             error
}

func (f *fakeTH) Sense() (float64, float64, error) { return f.tempC, f.humidity, f.err }

type fakeADC struct {
	raws map[uint8]int16
	errs map[uint8]error
}

func (f *fakeADC) ReadSingleEnded(channel uint8) (int16, error) {
	if err, ok := f.errs[channel]; ok && err != nil {
		return 0, err
	}
	return f.raws[channel], nil
}

type fakeReinit struct {
	calls int
}

func (f *fakeReinit) Reinit() error {
	f.calls++
	return nil
}

func rawForVoltage(v float64) int16 {
	return int16(v * 32768.0 / 4.096)
}

// TestWaterRingDirectThenMean verifies property 4: the first two samples
// report the raw conversion, the third and every subsequent sample
// reports the mean of the most recent three.
func TestWaterRingDirectThenMean(t *testing.T) {
	adc := &fakeADC{raws: map[uint8]int16{}, errs: map[uint8]error{}}
	p := NewPipeline(&fakeTH{}, adc, nil, log.Default())

	percents := []float64{10, 20, 30, 60}
	var got []float64
	for _, pct := range percents {
		adc.raws[waterChannel] = rawForVoltage(pct / 100 * 3.3)
		p.SampleAll()
		got = append(got, p.Snapshot().WaterPercent)
	}

	if diff := got[0] - 10; diff > 0.01 || diff < -0.01 {
		t.Fatalf("sample 1 = %v, want ~10", got[0])
	}
	if diff := got[1] - 20; diff > 0.01 || diff < -0.01 {
		t.Fatalf("sample 2 = %v, want ~20", got[1])
	}
	wantMean3 := (10.0 + 20.0 + 30.0) / 3.0
	if diff := got[2] - wantMean3; diff > 0.01 || diff < -0.01 {
		t.Fatalf("sample 3 = %v, want mean %v", got[2], wantMean3)
	}
	wantMean4 := (20.0 + 30.0 + 60.0) / 3.0
	if diff := got[3] - wantMean4; diff > 0.01 || diff < -0.01 {
		t.Fatalf("sample 4 = %v, want mean %v", got[3], wantMean4)
	}
}

// TestECFilterIsEMA verifies property 5: out_n = 0.2*x_n + 0.8*out_{n-1},
// seeded with out_0 = x_0.
func TestECFilterIsEMA(t *testing.T) {
	adc := &fakeADC{raws: map[uint8]int16{}, errs: map[uint8]error{}}
	p := NewPipeline(&fakeTH{}, adc, nil, log.Default())

	ppms := []float64{800, 900, 400}
	expected := ppms[0]
	for i, ppm := range ppms {
		adc.raws[ecChannel] = rawForVoltage(ppm / 1000)
		p.SampleAll()
		if i > 0 {
			expected = 0.2*ppm + 0.8*expected
		}
		got := p.Snapshot().EC
		if diff := got - expected; diff > 0.5 || diff < -0.5 {
			t.Fatalf("sample %d: EC = %v, want %v", i, got, expected)
		}
	}
}

// TestI2CFaultTriggersReinitAtThree reproduces scenario S6: three
// consecutive ADC failures trigger exactly one bus reinit, and the
// fourth, successful, call updates the snapshot.
func TestI2CFaultTriggersReinitAtThree(t *testing.T) {
	failing := errors.New("i2c: transfer timeout")
	adc := &fakeADC{
		raws: map[uint8]int16{},
		errs: map[uint8]error{waterChannel: failing, ecChannel: failing},
	}
	reinit := &fakeReinit{}
	p := NewPipeline(&fakeTH{}, adc, reinit, log.Default())

	for i := 0; i < 3; i++ {
		p.SampleAll()
	}
	if reinit.calls != 1 {
		t.Fatalf("reinit calls after 3 faults = %d, want 1", reinit.calls)
	}

	adc.errs[waterChannel] = nil
	adc.errs[ecChannel] = nil
	adc.raws[waterChannel] = rawForVoltage(30.0 / 100 * 3.3)
	adc.raws[ecChannel] = rawForVoltage(1.2)
	p.SampleAll()

	if reinit.calls != 1 {
		t.Fatalf("reinit calls after successful read = %d, want still 1", reinit.calls)
	}
	if got := p.Snapshot().WaterPercent; got <= 0 {
		t.Fatalf("expected snapshot to update after recovery, got WaterPercent=%v", got)
	}
}

func TestSenseFailureRetainsPreviousReading(t *testing.T) {
	th := &fakeTH{tempC: 22, humidity: 55}
	adc := &fakeADC{raws: map[uint8]int16{}, errs: map[uint8]error{}}
	p := NewPipeline(th, adc, nil, log.Default())
	p.SampleAll()

	th.err = errors.New("aht20: nack")
	th.tempC, th.humidity = 99, 99 // would be wrong values if read were trusted
	p.SampleAll()

	snap := p.Snapshot()
	if snap.TemperatureC != 22 || snap.HumidityRH != 55 {
		t.Fatalf("snapshot = %+v, want previous reading retained", snap)
	}
}
