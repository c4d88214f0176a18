package i2c

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/aht10"
	gobotI2C "gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"gobot.io/x/gobot/v2/platforms/raspi"
)

var _ aht10.BlockBusCloser = &GobotBus{}

// Gobot platform names accepted by NewGobotBus.
const (
	PlatformRaspi  = "raspi"
	PlatformNanoPi = "nanopi"
)

type gobotPlatform interface {
	gobotI2C.Connector
	Connect() error
	Finalize() error
}

// gobotConnection is the part of gobot's i2c.Connection the bus relies on.
type gobotConnection interface {
	ReadByte() (byte, error)
	ReadBlockData(reg uint8, b []byte) error
	WriteBlockData(reg uint8, b []byte) error
	Close() error
}

// GobotBus drives devices through a gobot board adaptor. Gobot connections
// are bound to one address, so one is opened lazily per device.
type GobotBus struct {
	mx       sync.Mutex
	bus      int
	dial     func(address, bus int) (gobotConnection, error)
	finalize func() error
	conns    map[byte]gobotConnection
}

// NewGobotBus connects the board adaptor of the given platform and uses I2C
// bus number bus. A negative bus selects the board default.
func NewGobotBus(platform string, bus int) (*GobotBus, error) {
	var p gobotPlatform
	switch platform {
	case PlatformRaspi:
		p = raspi.NewAdaptor()
	case PlatformNanoPi:
		p = nanopi.NewNeoAdaptor()
	default:
		return nil, &aht10.BusOpenError{Bus: platform, Err: fmt.Errorf("unsupported gobot platform %q", platform)}
	}
	if err := p.Connect(); err != nil {
		return nil, &aht10.BusOpenError{Bus: fmt.Sprintf("%s:%d", platform, bus), Err: fmt.Errorf("adaptor connect error: %w", err)}
	}
	if bus < 0 {
		bus = p.DefaultI2cBus()
	}
	return newGobotBus(bus, func(address, bus int) (gobotConnection, error) {
		return p.GetI2cConnection(address, bus)
	}, p.Finalize), nil
}

func newGobotBus(bus int, dial func(address, bus int) (gobotConnection, error), finalize func() error) *GobotBus {
	return &GobotBus{
		bus:      bus,
		dial:     dial,
		finalize: finalize,
		conns:    make(map[byte]gobotConnection),
	}
}

func (b *GobotBus) conn(address byte) (gobotConnection, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if c, ok := b.conns[address]; ok {
		return c, nil
	}
	c, err := b.dial(int(address), b.bus)
	if err != nil {
		return nil, err
	}
	b.conns[address] = c
	return c, nil
}

func (b *GobotBus) WriteBlock(ctx context.Context, address, register byte, data []byte) error {
	c, err := b.conn(address)
	if err == nil {
		err = c.WriteBlockData(register, data)
	}
	if err != nil {
		return &aht10.TransactionError{Op: aht10.OpWriteBlock, Address: address, Register: register, Err: err}
	}
	return nil
}

func (b *GobotBus) ReadStatus(ctx context.Context, address byte) (byte, error) {
	c, err := b.conn(address)
	if err != nil {
		return 0, &aht10.TransactionError{Op: aht10.OpReadByte, Address: address, Err: err}
	}
	v, err := c.ReadByte()
	if err != nil {
		return 0, &aht10.TransactionError{Op: aht10.OpReadByte, Address: address, Err: err}
	}
	return v, nil
}

// ReadBlock relies on gobot rejecting transfers of the wrong length, so a
// successful call always fills buffer.
func (b *GobotBus) ReadBlock(ctx context.Context, address, register byte, buffer []byte) (int, error) {
	c, err := b.conn(address)
	if err == nil {
		err = c.ReadBlockData(register, buffer)
	}
	if err != nil {
		return 0, &aht10.TransactionError{Op: aht10.OpReadBlock, Address: address, Register: register, Err: err}
	}
	return len(buffer), nil
}

func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var first error
	for addr, c := range b.conns {
		if err := c.Close(); err != nil && first == nil {
			first = fmt.Errorf("could not close connection to %#02x: %w", addr, err)
		}
		delete(b.conns, addr)
	}
	if b.finalize != nil {
		if err := b.finalize(); err != nil && first == nil {
			first = fmt.Errorf("adaptor finalize error: %w", err)
		}
	}
	return first
}
