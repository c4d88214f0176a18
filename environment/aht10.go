package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/aht10"
	"github.com/mklimuk/aht10/snsctx"
)

// AHT10DefaultAddress is the factory 7-bit address (ADDR pin low).
const AHT10DefaultAddress = 0x38

// AHT10AltAddress is selected by pulling the ADDR pin high.
const AHT10AltAddress = 0x39

const (
	aht10RegInit    byte = 0xE1
	aht10RegTrigger byte = 0xAC
	aht10RegData    byte = 0x00
)

var (
	aht10InitPayload    = []byte{0x08, 0x00}
	aht10TriggerPayload = []byte{0x33, 0x00}
)

const (
	aht10StatusBusy       byte = 1 << 7
	aht10StatusCalibrated byte = 1 << 3
)

// AHT10FrameSize is the length of a measurement frame: status, 20 bit
// humidity and 20 bit temperature packed into 5 bytes.
const AHT10FrameSize = 6

const (
	aht10DefaultSettleDelay     = 200 * time.Millisecond
	aht10DefaultConversionDelay = 500 * time.Millisecond
)

var (
	ErrInvalidAddress = errors.New("aht10: invalid or reserved i2c address")
	ErrNotInitialized = errors.New("aht10: sensor not initialized")
	ErrBusy           = errors.New("aht10: sensor busy")
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type AHT10Opts struct {
	Address         byte
	SettleDelay     time.Duration
	ConversionDelay time.Duration
	// BusyCheck makes ReadMeasurement give up with ErrBusy when the status
	// byte read before triggering has the busy bit set.
	BusyCheck bool
	Sleep     Sleeper
	Logger    *slog.Logger
}

type AHT10Opt func(*AHT10Opts)

func WithAddress(address byte) AHT10Opt {
	return func(o *AHT10Opts) {
		o.Address = address
	}
}

func WithSettleDelay(delay time.Duration) AHT10Opt {
	return func(o *AHT10Opts) {
		o.SettleDelay = delay
	}
}

func WithConversionDelay(delay time.Duration) AHT10Opt {
	return func(o *AHT10Opts) {
		o.ConversionDelay = delay
	}
}

func WithBusyCheck(enabled bool) AHT10Opt {
	return func(o *AHT10Opts) {
		o.BusyCheck = enabled
	}
}

func WithSleeper(sleep Sleeper) AHT10Opt {
	return func(o *AHT10Opts) {
		o.Sleep = sleep
	}
}

func WithLogger(logger *slog.Logger) AHT10Opt {
	return func(o *AHT10Opts) {
		o.Logger = logger
	}
}

// AHT10 represents Aosong AHT10 Temperature/Humidity sensor.
// Typical usage:
//
//	s, err := NewAHT10(bus)
//	err = s.Initialize(ctx)
//	r, err := s.ReadMeasurement(ctx)
//
// The driver does not lock the bus. Callers sharing one bus between several
// devices must serialize access themselves.
type AHT10 struct {
	transport   aht10.BlockBus
	config      AHT10Opts
	initialized bool
}

func NewAHT10(transport aht10.BlockBus, opts ...AHT10Opt) (*AHT10, error) {
	config := AHT10Opts{
		Address:         AHT10DefaultAddress,
		SettleDelay:     aht10DefaultSettleDelay,
		ConversionDelay: aht10DefaultConversionDelay,
		Sleep:           sleep,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if !aht10.ValidAddress(config.Address) {
		return nil, fmt.Errorf("%w: %#02x", ErrInvalidAddress, config.Address)
	}
	if config.SettleDelay <= 0 {
		config.SettleDelay = aht10DefaultSettleDelay
	}
	if config.ConversionDelay <= 0 {
		config.ConversionDelay = aht10DefaultConversionDelay
	}
	if config.Sleep == nil {
		config.Sleep = sleep
	}
	return &AHT10{transport: transport, config: config}, nil
}

// Address returns the 7-bit address the driver talks to.
func (s *AHT10) Address() byte {
	return s.config.Address
}

// Initialize loads the calibration configuration and waits for the sensor to
// settle. Calling it again is harmless but pays the settle delay again.
func (s *AHT10) Initialize(ctx context.Context) error {
	err := s.transport.WriteBlock(ctx, s.config.Address, aht10RegInit, aht10InitPayload)
	if err != nil {
		return fmt.Errorf("aht10: initialization write failed: %w", err)
	}
	if err := s.config.Sleep(ctx, s.config.SettleDelay); err != nil {
		return fmt.Errorf("aht10: settle wait interrupted: %w", err)
	}
	s.initialized = true
	s.logger(ctx).Debug("aht10 initialized", "address", fmt.Sprintf("%#02x", s.config.Address))
	return nil
}

// ReadMeasurement triggers a conversion, waits for it and decodes the frame.
// Nothing is retried; a failed read never yields a reading.
func (s *AHT10) ReadMeasurement(ctx context.Context) (Reading, error) {
	if !s.initialized {
		return Reading{}, ErrNotInitialized
	}
	status, err := s.transport.ReadStatus(ctx, s.config.Address)
	if err != nil {
		return Reading{}, fmt.Errorf("aht10: status read failed: %w", err)
	}
	s.logger(ctx).Debug("aht10 status",
		"status", fmt.Sprintf("%#02x", status),
		"busy", status&aht10StatusBusy != 0,
		"calibrated", status&aht10StatusCalibrated != 0)
	if s.config.BusyCheck && status&aht10StatusBusy != 0 {
		return Reading{}, ErrBusy
	}

	err = s.transport.WriteBlock(ctx, s.config.Address, aht10RegTrigger, aht10TriggerPayload)
	if err != nil {
		return Reading{}, fmt.Errorf("aht10: measurement trigger failed: %w", err)
	}
	if err := s.config.Sleep(ctx, s.config.ConversionDelay); err != nil {
		return Reading{}, fmt.Errorf("aht10: conversion wait interrupted: %w", err)
	}

	frame := make([]byte, AHT10FrameSize)
	n, err := s.transport.ReadBlock(ctx, s.config.Address, aht10RegData, frame)
	if err != nil {
		return Reading{}, fmt.Errorf("aht10: frame read failed: %w", err)
	}
	if n < AHT10FrameSize {
		return Reading{}, &aht10.ShortReadError{Address: s.config.Address, Want: AHT10FrameSize, Got: n}
	}
	return Decode(frame)
}

func (s *AHT10) logger(ctx context.Context) *slog.Logger {
	if s.config.Logger != nil {
		return s.config.Logger
	}
	return snsctx.Logger(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
