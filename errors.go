package aht10

import "fmt"

// BusOpenError is returned when the I2C bus itself could not be opened.
type BusOpenError struct {
	Bus string
	Err error
}

func (e *BusOpenError) Error() string {
	return fmt.Sprintf("could not open i2c bus %s: %v", e.Bus, e.Err)
}

func (e *BusOpenError) Unwrap() error {
	return e.Err
}

// TransactionError is returned when the device did not acknowledge a bus
// operation (wrong address, device absent, bus fault).
type TransactionError struct {
	Op       string
	Address  byte
	Register byte
	Err      error
}

func (e *TransactionError) Error() string {
	switch e.Op {
	case OpReadByte, OpRead, OpWrite:
		return fmt.Sprintf("i2c %s at %#02x failed: %v", e.Op, e.Address, e.Err)
	}
	return fmt.Sprintf("i2c %s at %#02x (register %#02x) failed: %v", e.Op, e.Address, e.Register, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// Transaction names used in TransactionError.Op.
const (
	OpWrite      = "write"
	OpRead       = "read"
	OpReadByte   = "read byte"
	OpWriteBlock = "write block"
	OpReadBlock  = "read block"
)

// ShortReadError is returned when the device delivered fewer bytes than
// requested.
type ShortReadError struct {
	Address byte
	Want    int
	Got     int
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("short read from %#02x: expected %d bytes, got %d", e.Address, e.Want, e.Got)
}
