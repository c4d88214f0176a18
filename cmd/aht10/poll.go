package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/aht10/cmd/aht10/console"
	"github.com/mklimuk/aht10/poll"
	"github.com/mklimuk/aht10/registry"
	"github.com/mklimuk/aht10/snsctx"
)

var pollCmd = cli.Command{
	Name:  "poll",
	Usage: "measure periodically and publish readings to the device registry",
	Flags: append([]cli.Flag{
		&cli.DurationFlag{
			Name:    "interval",
			Aliases: []string{"i"},
			Usage:   "time between measurements",
		},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		ctx, stop := signal.NotifyContext(commandContext(c), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		if console.Trace {
			var dump bytes.Buffer
			if err := cfg.Write(&dump); err == nil {
				snsctx.Logger(ctx).Debug("effective configuration\n" + dump.String())
			}
		}

		ctx = withDeviceLogger(ctx, cfg)
		sensor, closer, err := openSensor(ctx, cfg)
		if err != nil {
			return console.Exit(1, "sensor initialization error: %s", console.Red(err))
		}
		defer func() {
			if err := closer.Close(); err != nil {
				snsctx.Logger(ctx).Debug("bus close failed", "error", err)
			}
		}()

		reg := registry.NewMemory()
		unit, err := registry.Ensure(ctx, reg, sensor.Address())
		if err != nil {
			return console.Exit(1, "device registration error: %s", console.Red(err))
		}
		console.PInfof(console.PictoPin, "polling %s every %s", registry.DeviceName(sensor.Address()), cfg.Interval)

		opts := append(cfg.PollerOpts(), poll.WithLogger(snsctx.Logger(ctx)))
		poller := poll.NewPoller(sensor, registry.NewSink(reg, unit), opts...)
		err = poller.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return console.Exit(1, "polling error: %s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "stopped")
		return nil
	},
}
