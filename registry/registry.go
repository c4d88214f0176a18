package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/aht10/snsctx"
)

// Device types understood by the home automation host.
const (
	TypeTempHum    = 82
	SubtypeTempHum = 1
)

var ErrDeviceNotFound = errors.New("registry: device not found")

// Device is one entry of the host device inventory.
type Device struct {
	Unit     int               `yaml:"unit"`
	Name     string            `yaml:"name"`
	Type     int               `yaml:"type"`
	Subtype  int               `yaml:"subtype"`
	NValue   int               `yaml:"n_value"`
	SValue   string            `yaml:"s_value"`
	TimedOut bool              `yaml:"timed_out"`
	Options  map[string]string `yaml:"options,omitempty"`
}

type Registry interface {
	// Find returns the device whose Name option equals name.
	Find(ctx context.Context, name string) (*Device, error)
	// Create stores dev under the next free unit and returns the unit.
	Create(ctx context.Context, dev Device) (int, error)
	// Update writes the values only when one of them differs from the stored
	// ones and reports whether a write happened.
	Update(ctx context.Context, unit int, nValue int, sValue string, timedOut bool) (bool, error)
}

// Memory keeps devices in process memory.
type Memory struct {
	mx      sync.Mutex
	devices map[int]*Device
}

var _ Registry = &Memory{}

func NewMemory() *Memory {
	return &Memory{devices: make(map[int]*Device)}
}

func (m *Memory) Find(ctx context.Context, name string) (*Device, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	for _, dev := range m.devices {
		if dev.Options["Name"] == name {
			cp := *dev
			return &cp, nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (m *Memory) Create(ctx context.Context, dev Device) (int, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	dev.Unit = len(m.devices) + 1
	m.devices[dev.Unit] = &dev
	return dev.Unit, nil
}

func (m *Memory) Update(ctx context.Context, unit int, nValue int, sValue string, timedOut bool) (bool, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	dev, ok := m.devices[unit]
	if !ok {
		return false, fmt.Errorf("%w: unit %d", ErrDeviceNotFound, unit)
	}
	if dev.NValue == nValue && dev.SValue == sValue && dev.TimedOut == timedOut {
		return false, nil
	}
	dev.NValue = nValue
	dev.SValue = sValue
	dev.TimedOut = timedOut
	snsctx.Logger(ctx).Info("device updated", "unit", unit, "name", dev.Name, "n_value", nValue, "s_value", sValue, "timed_out", timedOut)
	return true, nil
}

// Devices returns a snapshot ordered by unit.
func (m *Memory) Devices() []Device {
	m.mx.Lock()
	defer m.mx.Unlock()
	out := make([]Device, 0, len(m.devices))
	for unit := 1; len(out) < len(m.devices); unit++ {
		if dev, ok := m.devices[unit]; ok {
			out = append(out, *dev)
		}
	}
	return out
}

// DeviceName is the inventory name of the sensor at address.
func DeviceName(address byte) string {
	return fmt.Sprintf("AHT10:%#02x", address)
}

// Ensure returns the unit of the sensor at address, creating a temperature and
// humidity device when none with the same name exists yet.
func Ensure(ctx context.Context, reg Registry, address byte) (int, error) {
	log := snsctx.Logger(ctx)
	name := DeviceName(address)
	dev, err := reg.Find(ctx, name)
	if err == nil {
		log.Debug("device already registered", "name", name, "unit", dev.Unit)
		return dev.Unit, nil
	}
	if !errors.Is(err, ErrDeviceNotFound) {
		return 0, fmt.Errorf("registry: device lookup failed: %w", err)
	}
	unit, err := reg.Create(ctx, Device{
		Name:    name,
		Type:    TypeTempHum,
		Subtype: SubtypeTempHum,
		Options: map[string]string{"Name": name},
	})
	if err != nil {
		return 0, fmt.Errorf("registry: device creation failed: %w", err)
	}
	log.Info("device created", "name", name, "unit", unit)
	return unit, nil
}
