package environment

import (
	"context"
)

// ReadingBehaviorFunc produces the result of one ReadMeasurement call.
type ReadingBehaviorFunc func(ctx context.Context) (Reading, error)

// MockAHT10 stands in for an AHT10 without any hardware. Initialize only
// records that it was called; readings come from the behavior function.
//
// Example usage:
//
//	sensor := NewMockAHT10(func(ctx context.Context) (Reading, error) {
//		return Reading{Celsius: 21.5, Humidity: 40}, nil
//	})
type MockAHT10 struct {
	behavior     ReadingBehaviorFunc
	initErr      error
	Initialized  int
	Measurements int
}

func NewMockAHT10(behavior ReadingBehaviorFunc) *MockAHT10 {
	return &MockAHT10{behavior: behavior}
}

// FailInitialize makes subsequent Initialize calls return err.
func (m *MockAHT10) FailInitialize(err error) {
	m.initErr = err
}

func (m *MockAHT10) Initialize(ctx context.Context) error {
	m.Initialized++
	return m.initErr
}

func (m *MockAHT10) ReadMeasurement(ctx context.Context) (Reading, error) {
	m.Measurements++
	return m.behavior(ctx)
}

// StaticReading returns a behavior that always yields r.
func StaticReading(r Reading) ReadingBehaviorFunc {
	return func(ctx context.Context) (Reading, error) {
		return r, nil
	}
}

// FrameSequence returns a behavior decoding the given raw frames in order and
// repeating the last one once exhausted.
func FrameSequence(frames ...[]byte) ReadingBehaviorFunc {
	i := 0
	return func(ctx context.Context) (Reading, error) {
		frame := frames[i]
		if i < len(frames)-1 {
			i++
		}
		return Decode(frame)
	}
}
