package device

import (
  "encoding/binary"
  "fmt"

  "github.com/pkg/errors"
)

// Layout holds the fixed byte offsets of a manufacturer payload. Temperature and humidity
// are little-endian 16-bit values divided by Scale; battery is a single byte.
type Layout struct {
  TemperatureOffset int
  HumidityOffset int
  BatteryOffset int
  Scale float64
  // Decode temperature as two's complement. Off for the H5051, which the vendor app also
  // treats as unsigned.
  SignedTemperature bool
}

// DefaultLayout is the 6 byte layout used by the H5051: byte 0 is reserved.
var DefaultLayout = Layout{
  TemperatureOffset: 1,
  HumidityOffset: 3,
  BatteryOffset: 5,
  Scale: 100,
}

// MinLength is the shortest payload covering every field.
func (l Layout) MinLength() int {
  return max(l.TemperatureOffset + 2, l.HumidityOffset + 2, l.BatteryOffset + 1)
}

func (l Layout) Validate() error {
  if l.TemperatureOffset < 0 || l.HumidityOffset < 0 || l.BatteryOffset < 0 {
    return fmt.Errorf("%w: negative payload offset", ErrInvalidProfile)
  }

  if l.Scale <= 0 {
    return fmt.Errorf("%w: scale must be positive, got %v", ErrInvalidProfile, l.Scale)
  }

  return nil
}

// Decode extracts the physical values from a manufacturer payload. Only the numeric fields
// of the returned Reading are set. Battery values above 100 are returned as-is.
func Decode(data []byte, layout Layout) (reading Reading, err error) {
  if len(data) < layout.MinLength() {
    return reading, errors.Wrapf(ErrMalformedPayload, "got %d bytes, want at least %d",
      len(data), layout.MinLength())
  }

  bo := binary.LittleEndian
  rawTemp := bo.Uint16(data[layout.TemperatureOffset:])
  rawHumidity := bo.Uint16(data[layout.HumidityOffset:])

  if layout.SignedTemperature {
    reading.Temperature = float64(int16(rawTemp)) / layout.Scale
  } else {
    reading.Temperature = float64(rawTemp) / layout.Scale
  }

  reading.Humidity = float64(rawHumidity) / layout.Scale
  reading.Battery = data[layout.BatteryOffset]

  return reading, nil
}
