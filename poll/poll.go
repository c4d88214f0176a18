package poll

import (
	"context"
	"log/slog"
	"time"

	"github.com/mklimuk/aht10/environment"
	"github.com/mklimuk/aht10/snsctx"
)

const DefaultInterval = 30 * time.Second

// DefaultTimeoutAfter is the number of consecutive failed reads after which
// the device is marked timed out.
const DefaultTimeoutAfter = 3

type Sensor interface {
	ReadMeasurement(ctx context.Context) (environment.Reading, error)
}

type Sink interface {
	Publish(ctx context.Context, r environment.Reading) error
}

// TimeoutMarker is implemented by sinks able to flag a device as not
// responding. Publishing a reading clears the flag.
type TimeoutMarker interface {
	MarkTimedOut(ctx context.Context, timedOut bool) error
}

type PollerOpts struct {
	Interval     time.Duration
	TimeoutAfter int
	Logger       *slog.Logger
}

type PollerOpt func(*PollerOpts)

func WithInterval(interval time.Duration) PollerOpt {
	return func(o *PollerOpts) {
		o.Interval = interval
	}
}

func WithTimeoutAfter(failures int) PollerOpt {
	return func(o *PollerOpts) {
		o.TimeoutAfter = failures
	}
}

func WithLogger(logger *slog.Logger) PollerOpt {
	return func(o *PollerOpts) {
		o.Logger = logger
	}
}

// Poller reads the sensor periodically and forwards readings to a sink.
// It is not safe for concurrent use.
type Poller struct {
	sensor   Sensor
	sink     Sink
	config   PollerOpts
	failures int
	timedOut bool
}

func NewPoller(sensor Sensor, sink Sink, opts ...PollerOpt) *Poller {
	config := PollerOpts{
		Interval:     DefaultInterval,
		TimeoutAfter: DefaultTimeoutAfter,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.TimeoutAfter <= 0 {
		config.TimeoutAfter = DefaultTimeoutAfter
	}
	return &Poller{sensor: sensor, sink: sink, config: config}
}

// Failures returns the number of consecutive failed polls.
func (p *Poller) Failures() int {
	return p.failures
}

// Poll performs a single measurement cycle. The returned error is the read or
// publish failure of this cycle.
func (p *Poller) Poll(ctx context.Context) error {
	log := p.logger(ctx)
	r, err := p.sensor.ReadMeasurement(ctx)
	if err != nil && ctx.Err() != nil {
		// shutting down, the sensor did not fail
		return err
	}
	if err != nil {
		p.failures++
		log.Warn("measurement failed", "error", err, "failures", p.failures)
		if p.failures >= p.config.TimeoutAfter {
			p.markTimedOut(ctx)
		}
		return err
	}
	p.failures = 0
	log.Debug("measurement", "reading", r.String())
	if err := p.sink.Publish(ctx, r); err != nil {
		log.Error("could not publish reading", "error", err)
		return err
	}
	p.timedOut = false
	return nil
}

// Run polls once immediately and then on every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()
	_ = p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger(ctx).Debug("poller stopped")
			return ctx.Err()
		case <-ticker.C:
			_ = p.Poll(ctx)
		}
	}
}

func (p *Poller) markTimedOut(ctx context.Context) {
	if p.timedOut {
		return
	}
	if marker, ok := p.sink.(TimeoutMarker); ok {
		if err := marker.MarkTimedOut(ctx, true); err != nil {
			p.logger(ctx).Error("could not flag device as timed out", "error", err)
			return
		}
	}
	p.timedOut = true
}

func (p *Poller) logger(ctx context.Context) *slog.Logger {
	if p.config.Logger != nil {
		return p.config.Logger
	}
	return snsctx.Logger(ctx)
}
