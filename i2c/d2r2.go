package i2c

import (
	"context"
	"fmt"
	"sync"

	d2r2 "github.com/d2r2/go-i2c"
	logger "github.com/d2r2/go-logger"

	"github.com/mklimuk/aht10"
)

var _ aht10.BlockBusCloser = &DevBus{}

type d2r2Device interface {
	WriteBytes(buf []byte) (int, error)
	ReadBytes(buf []byte) (int, error)
	Close() error
}

// DevBus uses /dev/i2c-N through github.com/d2r2/go-i2c. Unlike the other
// transports it reports how many bytes a read actually returned.
type DevBus struct {
	mx      sync.Mutex
	bus     int
	open    func(address byte, bus int) (d2r2Device, error)
	devices map[byte]d2r2Device
}

func NewDevBus(bus int) *DevBus {
	// go-i2c logs every transfer at debug level
	logger.ChangePackageLogLevel("i2c", logger.InfoLevel)
	return newDevBus(bus, func(address byte, bus int) (d2r2Device, error) {
		return d2r2.NewI2C(address, bus)
	})
}

func newDevBus(bus int, open func(address byte, bus int) (d2r2Device, error)) *DevBus {
	return &DevBus{
		bus:     bus,
		open:    open,
		devices: make(map[byte]d2r2Device),
	}
}

func (b *DevBus) device(address byte) (d2r2Device, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if d, ok := b.devices[address]; ok {
		return d, nil
	}
	d, err := b.open(address, b.bus)
	if err != nil {
		return nil, &aht10.BusOpenError{Bus: fmt.Sprintf("/dev/i2c-%d", b.bus), Err: err}
	}
	b.devices[address] = d
	return d, nil
}

func (b *DevBus) write(address byte, w []byte) error {
	d, err := b.device(address)
	if err != nil {
		return err
	}
	n, err := d.WriteBytes(w)
	if err != nil {
		return err
	}
	if n != len(w) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(w))
	}
	return nil
}

func (b *DevBus) WriteBlock(ctx context.Context, address, register byte, data []byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, register)
	w = append(w, data...)
	if err := b.write(address, w); err != nil {
		return &aht10.TransactionError{Op: aht10.OpWriteBlock, Address: address, Register: register, Err: err}
	}
	return nil
}

func (b *DevBus) ReadStatus(ctx context.Context, address byte) (byte, error) {
	d, err := b.device(address)
	if err != nil {
		return 0, err
	}
	var r [1]byte
	n, err := d.ReadBytes(r[:])
	if err != nil {
		return 0, &aht10.TransactionError{Op: aht10.OpReadByte, Address: address, Err: err}
	}
	if n < 1 {
		return 0, &aht10.ShortReadError{Address: address, Want: 1, Got: n}
	}
	return r[0], nil
}

// ReadBlock returns the count reported by the kernel; a partial frame is
// returned as-is for the caller to reject.
func (b *DevBus) ReadBlock(ctx context.Context, address, register byte, buffer []byte) (int, error) {
	if err := b.write(address, []byte{register}); err != nil {
		return 0, &aht10.TransactionError{Op: aht10.OpReadBlock, Address: address, Register: register, Err: err}
	}
	d, err := b.device(address)
	if err != nil {
		return 0, err
	}
	n, err := d.ReadBytes(buffer)
	if err != nil {
		return 0, &aht10.TransactionError{Op: aht10.OpReadBlock, Address: address, Register: register, Err: err}
	}
	return n, nil
}

func (b *DevBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var first error
	for addr, d := range b.devices {
		if err := d.Close(); err != nil && first == nil {
			first = fmt.Errorf("could not close device %#02x: %w", addr, err)
		}
		delete(b.devices, addr)
	}
	return first
}
