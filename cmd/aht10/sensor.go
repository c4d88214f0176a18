package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/aht10/config"
	"github.com/mklimuk/aht10/environment"
	"github.com/mklimuk/aht10/i2c"
	"github.com/mklimuk/aht10/registry"
	"github.com/mklimuk/aht10/snsctx"
)

var busFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "adapter",
		Aliases: []string{"a"},
		Usage:   fmt.Sprintf("bus adapter %v", i2c.Adapters),
	},
	&cli.IntFlag{
		Name:    "bus",
		Aliases: []string{"b"},
		Usage:   "host I2C bus number",
	},
	&cli.StringFlag{
		Name:  "address",
		Usage: "sensor address (e.g. 0x38)",
	},
}

func commandContext(c *cli.Context) context.Context {
	return snsctx.SetVerbose(c.Context, c.Bool("verbose"))
}

// loadConfig reads the configuration file and applies command line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("adapter") {
		cfg.Adapter = c.String("adapter")
	}
	if c.IsSet("bus") {
		cfg.Bus = c.Int("bus")
	}
	if c.IsSet("address") {
		addr, err := config.ParseAddress(c.String("address"))
		if err != nil {
			return nil, err
		}
		cfg.Address = addr
	}
	if c.IsSet("interval") {
		cfg.Interval = c.Duration("interval")
	}
	return cfg, cfg.Validate()
}

// withDeviceLogger tags everything logged through ctx with the device name.
func withDeviceLogger(ctx context.Context, cfg *config.Config) context.Context {
	logger := snsctx.Logger(ctx).With("device", registry.DeviceName(byte(cfg.Address)))
	return snsctx.WithLogger(ctx, logger)
}

// openSensor opens the configured bus and returns an initialized driver.
func openSensor(ctx context.Context, cfg *config.Config) (*environment.AHT10, io.Closer, error) {
	bus, err := i2c.Open(ctx, cfg.BusConfig())
	if err != nil {
		return nil, nil, err
	}
	opts := append(cfg.SensorOpts(), environment.WithLogger(snsctx.Logger(ctx)))
	sensor, err := environment.NewAHT10(bus, opts...)
	if err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	if err := sensor.Initialize(ctx); err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	return sensor, bus, nil
}
