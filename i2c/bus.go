package i2c

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/mklimuk/aht10"
	"github.com/mklimuk/aht10/snsctx"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var _ aht10.I2CBus = &GenericBus{}
var _ aht10.BlockBusCloser = &GenericBus{}

// GenericBus talks to a host I2C controller (/dev/i2c-N) through periph.io.
type GenericBus struct {
	name string
	bus  i2c.BusCloser
}

func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, &aht10.BusOpenError{Bus: dev, Err: fmt.Errorf("could not init host: %w", err)}
	}
	for _, driver := range state.Loaded {
		slog.Debug("periph driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, &aht10.BusOpenError{Bus: dev, Err: err}
	}
	return NewGenericBusFrom(dev, bus), nil
}

// NewGenericBusFrom wraps an already opened periph bus.
func NewGenericBusFrom(name string, bus i2c.BusCloser) *GenericBus {
	return &GenericBus{name: name, bus: bus}
}

func (b *GenericBus) SetSpeed(f physic.Frequency) error {
	return b.bus.SetSpeed(f)
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.tx(ctx, address, nil, buffer)
	if err != nil {
		return &aht10.TransactionError{Op: aht10.OpRead, Address: address, Err: err}
	}
	return nil
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.tx(ctx, address, buffer, nil)
	if err != nil {
		return &aht10.TransactionError{Op: aht10.OpWrite, Address: address, Err: err}
	}
	return nil
}

func (b *GenericBus) WriteBlock(ctx context.Context, address, register byte, data []byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, register)
	w = append(w, data...)
	err := b.tx(ctx, address, w, nil)
	if err != nil {
		return &aht10.TransactionError{Op: aht10.OpWriteBlock, Address: address, Register: register, Err: err}
	}
	return nil
}

func (b *GenericBus) ReadStatus(ctx context.Context, address byte) (byte, error) {
	var r [1]byte
	err := b.tx(ctx, address, nil, r[:])
	if err != nil {
		return 0, &aht10.TransactionError{Op: aht10.OpReadByte, Address: address, Err: err}
	}
	return r[0], nil
}

// ReadBlock writes the register pointer and reads back with a repeated start.
// The kernel driver fails the whole transfer rather than returning a partial
// one, so a successful call always fills buffer.
func (b *GenericBus) ReadBlock(ctx context.Context, address, register byte, buffer []byte) (int, error) {
	err := b.tx(ctx, address, []byte{register}, buffer)
	if err != nil {
		return 0, &aht10.TransactionError{Op: aht10.OpReadBlock, Address: address, Register: register, Err: err}
	}
	return len(buffer), nil
}

func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}

func (b *GenericBus) String() string {
	return b.name
}

func (b *GenericBus) tx(ctx context.Context, address byte, w, r []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	verbose := snsctx.IsVerbose(ctx)
	log := snsctx.Logger(ctx)
	if verbose && len(w) > 0 {
		log.Debug("i2c write", "bus", b.name, "address", fmt.Sprintf("%#02x", address), "data", hex.EncodeToString(w))
	}
	if err := b.bus.Tx(uint16(address), w, r); err != nil {
		return err
	}
	if verbose && len(r) > 0 {
		log.Debug("i2c read", "bus", b.name, "address", fmt.Sprintf("%#02x", address), "data", hex.EncodeToString(r))
	}
	return nil
}
