package i2c

import (
	"context"
	"io"

	"github.com/mklimuk/aht10"
)

var _ aht10.BlockBusCloser = &SMBus{}

// SMBus emulates the register primitives on top of a raw bus that only knows
// plain writes and reads (e.g. the MCP2221 bridge). Register reads are two
// transactions, so the register pointer write is not atomic with the read.
type SMBus struct {
	raw aht10.I2CBus
}

func NewSMBus(raw aht10.I2CBus) *SMBus {
	return &SMBus{raw: raw}
}

func (b *SMBus) WriteBlock(ctx context.Context, address, register byte, data []byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, register)
	w = append(w, data...)
	return b.raw.WriteToAddr(ctx, address, w)
}

func (b *SMBus) ReadStatus(ctx context.Context, address byte) (byte, error) {
	var r [1]byte
	if err := b.raw.ReadFromAddr(ctx, address, r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

func (b *SMBus) ReadBlock(ctx context.Context, address, register byte, buffer []byte) (int, error) {
	if err := b.raw.WriteToAddr(ctx, address, []byte{register}); err != nil {
		return 0, err
	}
	if err := b.raw.ReadFromAddr(ctx, address, buffer); err != nil {
		return 0, err
	}
	return len(buffer), nil
}

// Close releases the raw bus and closes it when it owns a handle.
func (b *SMBus) Close() error {
	err := b.raw.Release(context.Background())
	if c, ok := b.raw.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
