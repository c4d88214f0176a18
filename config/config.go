package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/aht10"
	"github.com/mklimuk/aht10/environment"
	"github.com/mklimuk/aht10/i2c"
	"github.com/mklimuk/aht10/poll"
)

const DefaultPath = "aht10.yaml"

// Address is a 7-bit I2C address written as "0x38" or "56".
type Address byte

func ParseAddress(s string) (Address, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return Address(v), nil
}

func (a Address) String() string {
	return fmt.Sprintf("%#02x", byte(a))
}

func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseAddress(value.Value)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Address) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}

type Config struct {
	Adapter         string        `yaml:"adapter"`
	Bus             int           `yaml:"bus"`
	SpeedHz         int64         `yaml:"speed_hz,omitempty"`
	Address         Address       `yaml:"address"`
	Interval        time.Duration `yaml:"interval"`
	SettleDelay     time.Duration `yaml:"settle_delay"`
	ConversionDelay time.Duration `yaml:"conversion_delay"`
	BusyCheck       bool          `yaml:"busy_check"`
	TimeoutAfter    int           `yaml:"timeout_after"`
}

func Default() *Config {
	return &Config{
		Adapter:         i2c.AdapterPeriph,
		Bus:             1,
		Address:         environment.AHT10DefaultAddress,
		Interval:        poll.DefaultInterval,
		SettleDelay:     200 * time.Millisecond,
		ConversionDelay: 500 * time.Millisecond,
		TimeoutAfter:    poll.DefaultTimeoutAfter,
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// The result is not validated so that callers can apply overrides first.
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not open config file: %w", err)
	}
	defer f.Close()
	if err := cfg.Read(f); err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", path, err)
	}
	return cfg, nil
}

// Read decodes a YAML document over c. Unknown keys are rejected.
func (c *Config) Read(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if !slices.Contains(i2c.Adapters, c.Adapter) {
		return fmt.Errorf("unknown adapter %q (expected one of %s)", c.Adapter, strings.Join(i2c.Adapters, ", "))
	}
	if !aht10.ValidAddress(byte(c.Address)) {
		return fmt.Errorf("%w: %s", environment.ErrInvalidAddress, c.Address)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.SettleDelay < 0 || c.ConversionDelay < 0 {
		return errors.New("delays must not be negative")
	}
	if c.TimeoutAfter < 0 {
		return fmt.Errorf("timeout_after must not be negative, got %d", c.TimeoutAfter)
	}
	return nil
}

func (c *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// Save writes the configuration to path, replacing any existing file.
func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create config file: %w", err)
	}
	if err := c.Write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("could not write config: %w", err)
	}
	return f.Close()
}

// BusConfig is the transport part of the configuration.
func (c *Config) BusConfig() i2c.Config {
	return i2c.Config{Adapter: c.Adapter, Bus: c.Bus, Speed: physic.Frequency(c.SpeedHz) * physic.Hertz}
}

// SensorOpts translates the configuration into driver options.
func (c *Config) SensorOpts() []environment.AHT10Opt {
	return []environment.AHT10Opt{
		environment.WithAddress(byte(c.Address)),
		environment.WithSettleDelay(c.SettleDelay),
		environment.WithConversionDelay(c.ConversionDelay),
		environment.WithBusyCheck(c.BusyCheck),
	}
}

func (c *Config) PollerOpts() []poll.PollerOpt {
	return []poll.PollerOpt{
		poll.WithInterval(c.Interval),
		poll.WithTimeoutAfter(c.TimeoutAfter),
	}
}
