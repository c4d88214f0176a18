package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/aht10/environment"
)

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Find(ctx context.Context, name string) (*Device, error) {
	args := m.Called(ctx, name)
	dev, _ := args.Get(0).(*Device)
	return dev, args.Error(1)
}

func (m *MockRegistry) Create(ctx context.Context, dev Device) (int, error) {
	args := m.Called(ctx, dev)
	return args.Int(0), args.Error(1)
}

func (m *MockRegistry) Update(ctx context.Context, unit int, nValue int, sValue string, timedOut bool) (bool, error) {
	args := m.Called(ctx, unit, nValue, sValue, timedOut)
	return args.Bool(0), args.Error(1)
}

func TestHumidityStatus(t *testing.T) {
	tests := []struct {
		humidity int
		want     int
	}{
		{0, HumidityDry},
		{29, HumidityDry},
		{30, HumidityNormal},
		{39, HumidityNormal},
		{40, HumidityComfortable},
		{60, HumidityComfortable},
		{61, HumidityNormal},
		{70, HumidityNormal},
		{71, HumidityWet},
		{99, HumidityWet},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumidityStatus(tt.humidity), "humidity %d", tt.humidity)
	}
}

func TestSValue(t *testing.T) {
	assert.Equal(t, "22.7;41;1", SValue(environment.Reading{Celsius: 22.7, Humidity: 41}))
	assert.Equal(t, "-50.0;0;2", SValue(environment.Reading{Celsius: -50, Humidity: 0}))
}

func TestSink_PublishAndTimeout(t *testing.T) {
	ctx := context.Background()
	reg := new(MockRegistry)
	reg.On("Update", mock.Anything, 3, 0, "19.4;45;1", false).Return(true, nil).Once()
	reg.On("Update", mock.Anything, 3, 0, "19.4;45;1", true).Return(true, nil).Once()
	sink := NewSink(reg, 3)

	require.NoError(t, sink.Publish(ctx, environment.Reading{Celsius: 19.4, Humidity: 45}))
	require.NoError(t, sink.MarkTimedOut(ctx, true))
	// already flagged, no second write
	require.NoError(t, sink.MarkTimedOut(ctx, true))

	reg.AssertExpectations(t)
}

func TestSink_AgainstMemory(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory()
	unit, err := Ensure(ctx, reg, 0x38)
	require.NoError(t, err)
	sink := NewSink(reg, unit)

	require.NoError(t, sink.Publish(ctx, environment.Reading{Celsius: 50, Humidity: 50}))
	require.NoError(t, sink.MarkTimedOut(ctx, true))
	require.NoError(t, sink.Publish(ctx, environment.Reading{Celsius: 67.5, Humidity: 9}))

	dev := reg.Devices()[0]
	assert.Equal(t, "67.5;9;2", dev.SValue)
	assert.False(t, dev.TimedOut)
}
