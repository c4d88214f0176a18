package environment

import (
	"context"
	"fmt"
	"math"

	"github.com/mklimuk/aht10"
	"periph.io/x/conn/v3/physic"
)

// aht10FullScale is 2^20, the span of both 20 bit raw fields.
const aht10FullScale = 1048576.0

// Reading is a single decoded AHT10 measurement.
type Reading struct {
	// Celsius is rounded to one decimal place.
	Celsius float64
	// Humidity is relative humidity in whole percent, truncated (0-99).
	Humidity int
}

func (r Reading) String() string {
	return fmt.Sprintf("%.1f°C %d%%RH", r.Celsius, r.Humidity)
}

// Decode converts a raw measurement frame into a Reading.
//
// Byte 3 is shared: its high nibble closes the humidity field and its low
// nibble opens the temperature field.
func Decode(frame []byte) (Reading, error) {
	if len(frame) < AHT10FrameSize {
		return Reading{}, &aht10.ShortReadError{Want: AHT10FrameSize, Got: len(frame)}
	}
	rawHum, rawTemp := unpackAHT10(frame)
	return Reading{
		Celsius:  convertAHT10Temperature(rawTemp),
		Humidity: convertAHT10Humidity(rawHum),
	}, nil
}

func unpackAHT10(frame []byte) (hum, temp uint32) {
	hum = (uint32(frame[1])<<16 | uint32(frame[2])<<8 | uint32(frame[3])) >> 4
	temp = (uint32(frame[3])&0x0F)<<16 | uint32(frame[4])<<8 | uint32(frame[5])
	return hum, temp
}

func convertAHT10Temperature(raw uint32) float64 {
	c := float64(raw)*200.0/aht10FullScale - 50.0
	return math.Round(c*10) / 10
}

func convertAHT10Humidity(raw uint32) int {
	return int(math.Floor(float64(raw) * 100.0 / aht10FullScale))
}

// Sense implements the measurement half of physic.SenseEnv. Pressure is
// always 0.
func (s *AHT10) Sense(e *physic.Env) error {
	r, err := s.ReadMeasurement(context.Background())
	if err != nil {
		return err
	}
	e.Temperature = physic.Temperature(r.Celsius*float64(physic.Kelvin)) + physic.ZeroCelsius
	e.Humidity = physic.RelativeHumidity(r.Humidity) * physic.PercentRH
	e.Pressure = 0
	return nil
}

// Precision reports the resolution of the decoded values, not the sensor's
// accuracy.
func (s *AHT10) Precision(e *physic.Env) {
	e.Temperature = 100 * physic.MilliKelvin
	e.Humidity = physic.PercentRH
	e.Pressure = 0
}

func (s *AHT10) String() string {
	return fmt.Sprintf("AHT10{%#02x}", s.config.Address)
}
