package registry

import (
	"context"
	"fmt"

	"github.com/mklimuk/aht10/environment"
)

// Humidity status values of a temperature and humidity device.
const (
	HumidityNormal      = 0
	HumidityComfortable = 1
	HumidityDry         = 2
	HumidityWet         = 3
)

func HumidityStatus(humidity int) int {
	switch {
	case humidity < 30:
		return HumidityDry
	case humidity > 70:
		return HumidityWet
	case humidity >= 40 && humidity <= 60:
		return HumidityComfortable
	}
	return HumidityNormal
}

// SValue formats a reading the way temperature and humidity devices store it.
func SValue(r environment.Reading) string {
	return fmt.Sprintf("%.1f;%d;%d", r.Celsius, r.Humidity, HumidityStatus(r.Humidity))
}

// Sink publishes readings to one registry device and keeps its timed out
// flag.
type Sink struct {
	reg      Registry
	unit     int
	last     string
	timedOut bool
}

func NewSink(reg Registry, unit int) *Sink {
	return &Sink{reg: reg, unit: unit}
}

func (s *Sink) Publish(ctx context.Context, r environment.Reading) error {
	s.last = SValue(r)
	s.timedOut = false
	_, err := s.reg.Update(ctx, s.unit, 0, s.last, false)
	if err != nil {
		return fmt.Errorf("registry: publish failed: %w", err)
	}
	return nil
}

// MarkTimedOut flags the device while keeping the last published value.
func (s *Sink) MarkTimedOut(ctx context.Context, timedOut bool) error {
	if s.timedOut == timedOut {
		return nil
	}
	_, err := s.reg.Update(ctx, s.unit, 0, s.last, timedOut)
	if err != nil {
		return fmt.Errorf("registry: timeout flag update failed: %w", err)
	}
	s.timedOut = timedOut
	return nil
}
