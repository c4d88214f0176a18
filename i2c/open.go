package i2c

import (
	"context"
	"fmt"

	"github.com/mklimuk/aht10"
	"github.com/mklimuk/aht10/adapter"
	"periph.io/x/conn/v3/physic"
)

// Adapter names accepted by Open.
const (
	AdapterPeriph  = "periph"
	AdapterD2R2    = "d2r2"
	AdapterRaspi   = PlatformRaspi
	AdapterNanoPi  = PlatformNanoPi
	AdapterMCP2221 = "mcp2221"
)

// Adapters lists every supported adapter name.
var Adapters = []string{AdapterPeriph, AdapterD2R2, AdapterRaspi, AdapterNanoPi, AdapterMCP2221}

type Config struct {
	Adapter string
	// Bus is the host I2C bus number (/dev/i2c-N). Ignored by mcp2221.
	Bus int
	// Speed is applied on adapters that support changing the clock; 0 keeps
	// the current setting.
	Speed physic.Frequency
}

// Open returns a ready to use bus for the configured adapter. Failures to
// reach the bus are reported as *aht10.BusOpenError.
func Open(ctx context.Context, cfg Config) (aht10.BlockBusCloser, error) {
	switch cfg.Adapter {
	case AdapterPeriph, "":
		bus, err := NewGenericBus(fmt.Sprintf("/dev/i2c-%d", cfg.Bus))
		if err != nil {
			return nil, err
		}
		if cfg.Speed > 0 {
			if err := bus.SetSpeed(cfg.Speed); err != nil {
				_ = bus.Close()
				return nil, &aht10.BusOpenError{Bus: bus.String(), Err: fmt.Errorf("could not set speed %s: %w", cfg.Speed, err)}
			}
		}
		return bus, nil
	case AdapterD2R2:
		return NewDevBus(cfg.Bus), nil
	case AdapterRaspi, AdapterNanoPi:
		return NewGobotBus(cfg.Adapter, cfg.Bus)
	case AdapterMCP2221:
		bridge := adapter.NewMCP2221()
		if err := bridge.Init(ctx); err != nil {
			return nil, &aht10.BusOpenError{Bus: AdapterMCP2221, Err: err}
		}
		return NewSMBus(bridge), nil
	}
	return nil, &aht10.BusOpenError{Bus: cfg.Adapter, Err: fmt.Errorf("unknown adapter %q", cfg.Adapter)}
}
