package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/aht10/cmd/aht10/console"
	"github.com/mklimuk/aht10/config"
	"github.com/mklimuk/aht10/i2c"
)

var configCmd = cli.Command{
	Name:  "config",
	Usage: "manage the configuration file",
	Subcommands: cli.Commands{
		&configInitCmd,
		&configShowCmd,
	},
}

var configShowCmd = cli.Command{
	Name:  "show",
	Usage: "print the effective configuration",
	Flags: busFlags,
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		if err := cfg.Write(os.Stdout); err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		return nil
	},
}

var configInitCmd = cli.Command{
	Name:  "init",
	Usage: "create the configuration file interactively",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "overwrite an existing file"},
	},
	Action: func(c *cli.Context) error {
		path := c.String("config")
		if _, err := os.Stat(path); err == nil && !c.Bool("force") {
			answer, err := console.YesOrNo(fmt.Sprintf("%s exists, overwrite?", path))
			if err != nil {
				return console.Exit(1, "prompt error: %s", console.Red(err))
			}
			if answer != console.Yes {
				console.Warn("configuration left unchanged")
				return nil
			}
		}
		cfg := config.Default()
		answer, err := console.Prompt("adapter", i2c.Adapters...)
		if err != nil {
			return console.Exit(1, "prompt error: %s", console.Red(err))
		}
		cfg.Adapter = answer
		if cfg.Adapter != i2c.AdapterMCP2221 {
			answer, err = console.PromptDefault("bus number", strconv.Itoa(cfg.Bus))
			if err != nil {
				return console.Exit(1, "prompt error: %s", console.Red(err))
			}
			if cfg.Bus, err = strconv.Atoi(answer); err != nil {
				return console.Exit(1, "invalid bus number: %s", console.Red(err))
			}
		}
		answer, err = console.PromptDefault("sensor address", cfg.Address.String())
		if err != nil {
			return console.Exit(1, "prompt error: %s", console.Red(err))
		}
		if cfg.Address, err = config.ParseAddress(answer); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		answer, err = console.PromptDefault("poll interval", cfg.Interval.String())
		if err != nil {
			return console.Exit(1, "prompt error: %s", console.Red(err))
		}
		if cfg.Interval, err = time.ParseDuration(answer); err != nil {
			return console.Exit(1, "invalid interval: %s", console.Red(err))
		}
		if err := cfg.Validate(); err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		if err := cfg.Save(path); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.PInfof(console.PictoNotebook, "configuration written to %s", console.Bold(path))
		return nil
	},
}
