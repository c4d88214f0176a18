package aht10

import (
	"context"
	"errors"
)

var ErrBusBusy = errors.New("I2C engine is busy (command not completed)")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus is a raw bus: plain write and plain read transactions.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// BlockBus exposes the SMBus-style primitives register based sensors are
// driven with.
//
// ReadStatus reads a single byte without writing a register pointer first.
// ReadBlock issues the register pointer and reads len(buffer) bytes back. It
// returns the number of bytes the device actually delivered; transports that
// cannot observe a partial transfer report either len(buffer) or an error.
type BlockBus interface {
	WriteBlock(ctx context.Context, address, register byte, data []byte) error
	ReadStatus(ctx context.Context, address byte) (byte, error)
	ReadBlock(ctx context.Context, address, register byte, buffer []byte) (int, error)
}

// BlockBusCloser is a BlockBus owning the underlying bus handle.
type BlockBusCloser interface {
	BlockBus
	Close() error
}

// ValidAddress reports whether addr is a 7-bit address a device may use.
// 0x00-0x07 and 0x78-0x7F are reserved by the I2C bus standard.
func ValidAddress(addr byte) bool {
	return addr >= 0x08 && addr <= 0x77
}
