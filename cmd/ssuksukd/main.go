// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command ssuksukd is the hydroponic node daemon: it binds the firmware
// logic in internal/* to real hardware (I²C sensors, GPIO relays, a
// UART host link) and runs app.App's cooperative loop until signaled to
// stop.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.bug.st/serial"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/sayoonjin/ssuksuk/internal/ads1115"
	"github.com/sayoonjin/ssuksuk/internal/aht20"
	"github.com/sayoonjin/ssuksuk/internal/app"
	"github.com/sayoonjin/ssuksuk/internal/command"
	"github.com/sayoonjin/ssuksuk/internal/frameparser"
	"github.com/sayoonjin/ssuksuk/internal/platform"
	"github.com/sayoonjin/ssuksuk/internal/protocol"
	"github.com/sayoonjin/ssuksuk/internal/recovery"
	"github.com/sayoonjin/ssuksuk/internal/sensing"
	"github.com/sayoonjin/ssuksuk/internal/statuspanel"
	"github.com/sayoonjin/ssuksuk/internal/threshold"
)

// Flags mirror the pin/bus assignment the original firmware had fixed
// at compile time via STM32CubeMX; a hosted program needs to be told
// instead, but the defaults reproduce that assignment.
var (
	serialPort = flag.String("serial-port", "/dev/ttyUSB0", "serial device node for the host link")
	baudRate   = flag.Int("serial-baud", 115200, "serial baud rate")
	i2cBus     = flag.String("i2c-bus", "", "I²C bus name (empty uses the first available)")
	ledPin     = flag.String("led-pin", "GPIO17", "GPIO pin driving the grow light relay")
	waterPin   = flag.String("water-pump-pin", "GPIO27", "GPIO pin driving the water pump relay")
	nutriPin   = flag.String("nutri-pump-pin", "GPIO22", "GPIO pin driving the nutrient pump relay")
	waterMin   = flag.Float64("water-min", sensing.DefaultThresholds.WaterMin, "low water threshold, percent")
	waterMax   = flag.Float64("water-max", sensing.DefaultThresholds.WaterMax, "high water threshold, percent")
	ecMin      = flag.Float64("ec-min", sensing.DefaultThresholds.ECMin, "low EC threshold, ppm")
	ecMax      = flag.Float64("ec-max", sensing.DefaultThresholds.ECMax, "high EC threshold, ppm")
	panelRows  = flag.Int("panel-rows", 0, "status panel rows; 0 disables the panel")
	panelCols  = flag.Int("panel-cols", 16, "status panel columns")
)

func main() {
	flag.Parse()
	logger := log.Default()

	if _, err := host.Init(); err != nil {
		log.Fatalf("ssuksukd: host init: %v", err)
	}

	bus, err := i2creg.Open(*i2cBus)
	if err != nil {
		log.Fatalf("ssuksukd: open I2C bus %q: %v", *i2cBus, err)
	}
	defer bus.Close()

	thSensor, err := aht20.NewI2C(bus, nil)
	if err != nil {
		log.Fatalf("ssuksukd: open AHT20: %v", err)
	}
	adc := ads1115.NewI2C(bus, nil)

	pipeline := sensing.NewPipeline(thSensor, adc, nil, logger)
	// A reinitialized bus has to reach the already-constructed AHT20/
	// ADS1115 drivers, not just the local bus variable, so rebuild
	// reconstructs them against the fresh handle and reinstalls them
	// into the pipeline.
	pipeline.Reinit = sensing.NewBusReinitializer(*i2cBus, &bus, func(b i2c.Bus) {
		if newTH, err := aht20.NewI2C(b, nil); err != nil {
			logger.Printf("ssuksukd: AHT20 reinit failed: %v", err)
		} else {
			pipeline.TH = newTH
		}
		pipeline.ADC = ads1115.NewI2C(b, nil)
	})

	thresholds := sensing.Thresholds{
		WaterMin: *waterMin,
		WaterMax: *waterMax,
		ECMin:    *ecMin,
		ECMax:    *ecMax,
	}
	thresh := threshold.NewFSM(thresholds)

	ledPinout := gpioreg.ByName(*ledPin)
	if ledPinout == nil {
		log.Fatalf("ssuksukd: unknown LED pin %q", *ledPin)
	}
	waterPinout := gpioreg.ByName(*waterPin)
	if waterPinout == nil {
		log.Fatalf("ssuksukd: unknown water pump pin %q", *waterPin)
	}
	nutriPinout := gpioreg.ByName(*nutriPin)
	if nutriPinout == nil {
		log.Fatalf("ssuksukd: unknown nutrient pump pin %q", *nutriPin)
	}

	// G's manual PUMP_WATER/PUMP_NUTRI commands and F's auto-recovery
	// phases drive the same physical relay, so both components share one
	// Actuator per pump.
	waterPump := platform.Actuator{Pin: waterPinout}
	nutriPump := platform.Actuator{Pin: nutriPinout}
	led := platform.Actuator{Pin: ledPinout}

	port, err := serial.Open(*serialPort, &serial.Mode{BaudRate: *baudRate, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit})
	if err != nil {
		log.Fatalf("ssuksukd: open serial port %q: %v", *serialPort, err)
	}
	defer port.Close()
	transport := platform.NewSerialPort(port)
	codec := &protocol.Codec{Tx: transport}

	clock := platform.NewSystemClock()
	rec := &recovery.FSM{
		Clock:      clock,
		Sampler:    pipeline,
		Thresholds: thresholds,
		WaterPump:  waterPump,
		NutriPump:  nutriPump,
		Threshold:  thresh,
		Emit:       codec,
	}

	handler := &command.Handler{
		Codec:     codec,
		Sensing:   pipeline,
		Threshold: thresh,
		Recovery:  rec,
		LED:       led,
		WaterPump: waterPump,
		NutriPump: nutriPump,
		Logger:    logger,
	}

	var panel *statuspanel.Dev
	if *panelRows > 0 {
		panel = statuspanel.NewI2C(&i2c.Dev{Bus: bus, Addr: statuspanel.DefaultI2CAddress}, *panelRows, *panelCols)
	}

	a := &app.App{
		Serial:    transport,
		Parser:    &frameparser.Parser{},
		Codec:     codec,
		Command:   handler,
		Sensing:   pipeline,
		Threshold: thresh,
		Recovery:  rec,
		Logger:    logger,
		Panel:     panel,
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Println("ssuksukd: shutdown signal received")
		cancel()
	}()

	logger.Printf("ssuksukd: running, serial=%s baud=%d i2c=%q", *serialPort, *baudRate, *i2cBus)
	if err := a.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("ssuksukd: run: %v", err)
	}
}
