package environment

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/aht10"
	"github.com/mklimuk/aht10/snsctx"
)

// MockBlockBus is a testify mock of aht10.BlockBus that also appends every
// call to a shared event log so ordering against the sleeper can be checked.
type MockBlockBus struct {
	mock.Mock
	events *[]string
}

func (m *MockBlockBus) WriteBlock(ctx context.Context, address, register byte, data []byte) error {
	*m.events = append(*m.events, fmt.Sprintf("write %#02x %s", register, hex.EncodeToString(data)))
	args := m.Called(ctx, address, register, data)
	return args.Error(0)
}

func (m *MockBlockBus) ReadStatus(ctx context.Context, address byte) (byte, error) {
	*m.events = append(*m.events, "status")
	args := m.Called(ctx, address)
	return args.Get(0).(byte), args.Error(1)
}

func (m *MockBlockBus) ReadBlock(ctx context.Context, address, register byte, buffer []byte) (int, error) {
	*m.events = append(*m.events, fmt.Sprintf("read %#02x %d", register, len(buffer)))
	args := m.Called(ctx, address, register, buffer)
	n := 0
	if data, ok := args.Get(0).([]byte); ok {
		n = copy(buffer, data)
	}
	return n, args.Error(1)
}

func recordingSleeper(events *[]string) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		*events = append(*events, "sleep "+d.String())
		return nil
	}
}

func newTestAHT10(t *testing.T, opts ...AHT10Opt) (*AHT10, *MockBlockBus, *[]string) {
	t.Helper()
	events := &[]string{}
	bus := &MockBlockBus{events: events}
	opts = append([]AHT10Opt{WithSleeper(recordingSleeper(events))}, opts...)
	sensor, err := NewAHT10(bus, opts...)
	require.NoError(t, err)
	return sensor, bus, events
}

func expectInit(bus *MockBlockBus) {
	bus.On("WriteBlock", mock.Anything, byte(AHT10DefaultAddress), aht10RegInit, []byte{0x08, 0x00}).Return(nil).Once()
}

func expectMeasurement(bus *MockBlockBus, frame []byte) {
	bus.On("ReadStatus", mock.Anything, byte(AHT10DefaultAddress)).Return(byte(0x18), nil).Once()
	bus.On("WriteBlock", mock.Anything, byte(AHT10DefaultAddress), aht10RegTrigger, []byte{0x33, 0x00}).Return(nil).Once()
	bus.On("ReadBlock", mock.Anything, byte(AHT10DefaultAddress), aht10RegData, mock.Anything).Return(frame, nil).Once()
}

func TestAHT10_Decode(t *testing.T) {
	tests := []struct {
		given    []byte
		celsius  float64
		humidity int
	}{
		// theoretical midpoint, rawTemp = rawHum = 0x80000
		{[]byte{0x1C, 0x80, 0x00, 0x08, 0x00, 0x00}, 50.0, 50},
		{[]byte{0x00, 0x19, 0x99, 0x99, 0x66, 0x66}, 67.5, 9},
		// all zero raw values
		{[]byte{0x1C, 0x00, 0x00, 0x00, 0x00, 0x00}, -50.0, 0},
		// both fields at 0xFFFFF: 149.9998 rounds to 150.0, humidity never reaches 100
		{[]byte{0x1C, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, 150.0, 99},
		{[]byte{0x18, 0x75, 0x52, 0x05, 0x8E, 0x40}, 19.4, 45},
		{[]byte{0x1C, 0x6B, 0x3C, 0x95, 0xD1, 0x2A}, 22.7, 41},
	}
	for _, test := range tests {
		t.Run(hex.EncodeToString(test.given), func(t *testing.T) {
			r, err := Decode(test.given)
			require.NoError(t, err)
			assert.Equal(t, test.celsius, r.Celsius)
			assert.Equal(t, test.humidity, r.Humidity)
		})
	}
}

func TestAHT10_DecodeIsPure(t *testing.T) {
	frame := []byte{0x1C, 0x6B, 0x3C, 0x95, 0xD1, 0x2A}
	first, err := Decode(frame)
	require.NoError(t, err)
	second, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []byte{0x1C, 0x6B, 0x3C, 0x95, 0xD1, 0x2A}, frame, "frame must not be modified")
}

func TestAHT10_DecodeShortFrame(t *testing.T) {
	for n := 0; n < AHT10FrameSize; n++ {
		r, err := Decode(make([]byte, n))
		var shortErr *aht10.ShortReadError
		require.ErrorAs(t, err, &shortErr, "length %d", n)
		assert.Equal(t, n, shortErr.Got)
		assert.Equal(t, AHT10FrameSize, shortErr.Want)
		assert.Equal(t, Reading{}, r)
	}
}

func TestAHT10_ConvertBounds(t *testing.T) {
	assert.Equal(t, -50.0, convertAHT10Temperature(0))
	assert.Equal(t, 150.0, convertAHT10Temperature(0xFFFFF))
	assert.Equal(t, 50.0, convertAHT10Temperature(0x80000))
	assert.Equal(t, 0, convertAHT10Humidity(0))
	assert.Equal(t, 50, convertAHT10Humidity(0x80000))
	assert.Equal(t, 99, convertAHT10Humidity(0xFFFFF))
}

func TestAHT10_InvalidAddress(t *testing.T) {
	for _, addr := range []byte{0x00, 0x03, 0x78, 0x7F, 0x80} {
		_, err := NewAHT10(&MockBlockBus{}, WithAddress(addr))
		assert.ErrorIs(t, err, ErrInvalidAddress, "address %#02x", addr)
	}
	s, err := NewAHT10(&MockBlockBus{}, WithAddress(AHT10AltAddress))
	require.NoError(t, err)
	assert.Equal(t, byte(AHT10AltAddress), s.Address())
}

func TestAHT10_DefaultDelays(t *testing.T) {
	s, err := NewAHT10(&MockBlockBus{}, WithSettleDelay(0), WithConversionDelay(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, s.config.SettleDelay)
	assert.Equal(t, 500*time.Millisecond, s.config.ConversionDelay)
}

func TestAHT10_InitializeSettlesBeforeReturning(t *testing.T) {
	sensor, bus, events := newTestAHT10(t)
	expectInit(bus)

	require.NoError(t, sensor.Initialize(context.Background()))

	assert.Equal(t, []string{"write 0xe1 0800", "sleep 200ms"}, *events)
	bus.AssertExpectations(t)
}

func TestAHT10_InitializeNotAcknowledged(t *testing.T) {
	sensor, bus, events := newTestAHT10(t)
	nack := &aht10.TransactionError{Op: aht10.OpWriteBlock, Address: AHT10DefaultAddress, Register: aht10RegInit, Err: errors.New("nack")}
	bus.On("WriteBlock", mock.Anything, byte(AHT10DefaultAddress), aht10RegInit, mock.Anything).Return(nack).Once()

	err := sensor.Initialize(context.Background())

	var txErr *aht10.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, []string{"write 0xe1 0800"}, *events, "no settle delay after a failed write")

	_, err = sensor.ReadMeasurement(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestAHT10_ReadMeasurementSequence(t *testing.T) {
	sensor, bus, events := newTestAHT10(t)
	expectInit(bus)
	expectMeasurement(bus, []byte{0x1C, 0x80, 0x00, 0x08, 0x00, 0x00})
	ctx := context.Background()
	require.NoError(t, sensor.Initialize(ctx))

	r, err := sensor.ReadMeasurement(ctx)

	require.NoError(t, err)
	assert.Equal(t, Reading{Celsius: 50.0, Humidity: 50}, r)
	assert.Equal(t, []string{
		"write 0xe1 0800",
		"sleep 200ms",
		"status",
		"write 0xac 3300",
		"sleep 500ms",
		"read 0x00 6",
	}, *events)
	bus.AssertExpectations(t)
}

func TestAHT10_ReadMeasurementRequiresInitialize(t *testing.T) {
	sensor, bus, events := newTestAHT10(t)

	_, err := sensor.ReadMeasurement(context.Background())

	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Empty(t, *events)
	bus.AssertNotCalled(t, "ReadStatus", mock.Anything, mock.Anything)
}

func TestAHT10_ReadMeasurementShortRead(t *testing.T) {
	sensor, bus, _ := newTestAHT10(t)
	expectInit(bus)
	expectMeasurement(bus, []byte{0x1C, 0x80, 0x00, 0x08})
	ctx := context.Background()
	require.NoError(t, sensor.Initialize(ctx))

	r, err := sensor.ReadMeasurement(ctx)

	var shortErr *aht10.ShortReadError
	require.ErrorAs(t, err, &shortErr)
	assert.Equal(t, 4, shortErr.Got)
	assert.Equal(t, 6, shortErr.Want)
	assert.Equal(t, byte(AHT10DefaultAddress), shortErr.Address)
	assert.Equal(t, Reading{}, r)
}

func TestAHT10_ReadMeasurementTransportShortRead(t *testing.T) {
	sensor, bus, _ := newTestAHT10(t)
	expectInit(bus)
	bus.On("ReadStatus", mock.Anything, byte(AHT10DefaultAddress)).Return(byte(0x18), nil).Once()
	bus.On("WriteBlock", mock.Anything, byte(AHT10DefaultAddress), aht10RegTrigger, mock.Anything).Return(nil).Once()
	bus.On("ReadBlock", mock.Anything, byte(AHT10DefaultAddress), aht10RegData, mock.Anything).
		Return(nil, &aht10.ShortReadError{Address: AHT10DefaultAddress, Want: 6, Got: 2}).Once()
	ctx := context.Background()
	require.NoError(t, sensor.Initialize(ctx))

	_, err := sensor.ReadMeasurement(ctx)

	var shortErr *aht10.ShortReadError
	require.ErrorAs(t, err, &shortErr)
	assert.Equal(t, 2, shortErr.Got)
}

func TestAHT10_ReadMeasurementTriggerNotAcknowledged(t *testing.T) {
	sensor, bus, events := newTestAHT10(t)
	expectInit(bus)
	bus.On("ReadStatus", mock.Anything, byte(AHT10DefaultAddress)).Return(byte(0x18), nil).Once()
	bus.On("WriteBlock", mock.Anything, byte(AHT10DefaultAddress), aht10RegTrigger, mock.Anything).
		Return(&aht10.TransactionError{Op: aht10.OpWriteBlock, Address: AHT10DefaultAddress, Register: aht10RegTrigger, Err: errors.New("nack")}).Once()
	ctx := context.Background()
	require.NoError(t, sensor.Initialize(ctx))

	r, err := sensor.ReadMeasurement(ctx)

	var txErr *aht10.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, aht10RegTrigger, txErr.Register)
	assert.Equal(t, Reading{}, r)
	assert.Equal(t, []string{"write 0xe1 0800", "sleep 200ms", "status", "write 0xac 3300"}, *events)
	bus.AssertNotCalled(t, "ReadBlock", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAHT10_ReadMeasurementStatusNotAcknowledged(t *testing.T) {
	sensor, bus, _ := newTestAHT10(t)
	expectInit(bus)
	bus.On("ReadStatus", mock.Anything, byte(AHT10DefaultAddress)).
		Return(byte(0), &aht10.TransactionError{Op: aht10.OpReadByte, Address: AHT10DefaultAddress, Err: errors.New("nack")}).Once()
	ctx := context.Background()
	require.NoError(t, sensor.Initialize(ctx))

	_, err := sensor.ReadMeasurement(ctx)

	var txErr *aht10.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, aht10.OpReadByte, txErr.Op)
}

func TestAHT10_ConsecutiveReadsAreNotCached(t *testing.T) {
	sensor, bus, _ := newTestAHT10(t)
	expectInit(bus)
	expectMeasurement(bus, []byte{0x1C, 0x80, 0x00, 0x08, 0x00, 0x00})
	expectMeasurement(bus, []byte{0x1C, 0x6B, 0x3C, 0x95, 0xD1, 0x2A})
	ctx := context.Background()
	require.NoError(t, sensor.Initialize(ctx))

	first, err := sensor.ReadMeasurement(ctx)
	require.NoError(t, err)
	second, err := sensor.ReadMeasurement(ctx)
	require.NoError(t, err)

	assert.Equal(t, Reading{Celsius: 50.0, Humidity: 50}, first)
	assert.Equal(t, Reading{Celsius: 22.7, Humidity: 41}, second)
	bus.AssertExpectations(t)
}

func TestAHT10_BusyCheck(t *testing.T) {
	tests := []struct {
		name      string
		busyCheck bool
		status    byte
		expectErr error
	}{
		{name: "busy ignored by default", busyCheck: false, status: 0x98},
		{name: "busy gated", busyCheck: true, status: 0x98, expectErr: ErrBusy},
		{name: "idle passes gate", busyCheck: true, status: 0x18},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sensor, bus, _ := newTestAHT10(t, WithBusyCheck(tt.busyCheck))
			expectInit(bus)
			bus.On("ReadStatus", mock.Anything, byte(AHT10DefaultAddress)).Return(tt.status, nil).Once()
			if tt.expectErr == nil {
				bus.On("WriteBlock", mock.Anything, byte(AHT10DefaultAddress), aht10RegTrigger, mock.Anything).Return(nil).Once()
				bus.On("ReadBlock", mock.Anything, byte(AHT10DefaultAddress), aht10RegData, mock.Anything).
					Return([]byte{0x1C, 0x80, 0x00, 0x08, 0x00, 0x00}, nil).Once()
			}
			ctx := context.Background()
			require.NoError(t, sensor.Initialize(ctx))

			_, err := sensor.ReadMeasurement(ctx)

			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
			} else {
				assert.NoError(t, err)
			}
			bus.AssertExpectations(t)
		})
	}
}

func TestAHT10_ConversionWaitHonoursContext(t *testing.T) {
	events := &[]string{}
	bus := &MockBlockBus{events: events}
	sensor, err := NewAHT10(bus, WithSettleDelay(time.Millisecond), WithConversionDelay(time.Hour))
	require.NoError(t, err)
	expectInit(bus)
	bus.On("ReadStatus", mock.Anything, byte(AHT10DefaultAddress)).Return(byte(0x18), nil).Once()
	bus.On("WriteBlock", mock.Anything, byte(AHT10DefaultAddress), aht10RegTrigger, mock.Anything).Return(nil).Once()
	require.NoError(t, sensor.Initialize(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = sensor.ReadMeasurement(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	bus.AssertNotCalled(t, "ReadBlock", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAHT10_LogsStatusToInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).
		With("device", "AHT10:0x38")
	sensor, bus, _ := newTestAHT10(t, WithLogger(logger))
	expectInit(bus)
	expectMeasurement(bus, []byte{0x1C, 0x80, 0x00, 0x08, 0x00, 0x00})
	ctx := context.Background()

	require.NoError(t, sensor.Initialize(ctx))
	_, err := sensor.ReadMeasurement(ctx)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "msg=\"aht10 status\"")
	assert.Contains(t, out, "status=0x18")
	assert.Contains(t, out, "calibrated=true")
	assert.Contains(t, out, "device=AHT10:0x38")
}

func TestAHT10_LogsToContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sensor, bus, _ := newTestAHT10(t)
	expectInit(bus)
	ctx := snsctx.WithLogger(context.Background(), logger)

	require.NoError(t, sensor.Initialize(ctx))

	assert.Contains(t, buf.String(), "msg=\"aht10 initialized\"")
	assert.Contains(t, buf.String(), "address=0x38")
}

func TestAHT10_Sense(t *testing.T) {
	sensor, bus, _ := newTestAHT10(t)
	expectInit(bus)
	expectMeasurement(bus, []byte{0x1C, 0x80, 0x00, 0x08, 0x00, 0x00})
	require.NoError(t, sensor.Initialize(context.Background()))

	var e physic.Env
	require.NoError(t, sensor.Sense(&e))

	assert.Equal(t, 50*physic.Kelvin+physic.ZeroCelsius, e.Temperature)
	assert.Equal(t, 50*physic.PercentRH, e.Humidity)
	assert.Equal(t, physic.Pressure(0), e.Pressure)

	var p physic.Env
	sensor.Precision(&p)
	assert.Equal(t, 100*physic.MilliKelvin, p.Temperature)
	assert.Equal(t, "AHT10{0x38}", sensor.String())
}

func TestReading_String(t *testing.T) {
	assert.Equal(t, "22.7°C 41%RH", Reading{Celsius: 22.7, Humidity: 41}.String())
	assert.Equal(t, "-5.0°C 0%RH", Reading{Celsius: -5, Humidity: 0}.String())
}
