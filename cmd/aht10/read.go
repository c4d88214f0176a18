package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/aht10/cmd/aht10/console"
	"github.com/mklimuk/aht10/snsctx"
)

var readCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"r"},
	Usage:   "initialize the sensor and take measurements",
	Flags: append([]cli.Flag{
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"n"},
			Value:   1,
			Usage:   "number of measurements",
		},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		ctx := commandContext(c)
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
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
		console.Debugf("%s on %s bus %d", sensor, cfg.Adapter, cfg.Bus)
		for i := 0; i < c.Int("count"); i++ {
			r, err := sensor.ReadMeasurement(ctx)
			if err != nil {
				return console.Exit(1, "error getting measurement: %s", console.Red(err))
			}
			console.Printf("%s  %s\n%s %s\n",
				console.PictoThermometer, console.White(fmt.Sprintf("%.1f°C", r.Celsius)),
				console.PictoHumidity, console.White(fmt.Sprintf("%d%%RH", r.Humidity)))
		}
		return nil
	},
}
