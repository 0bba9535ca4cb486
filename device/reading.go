package device

import (
  "fmt"
  "time"
)

type Reading struct {
  Timestamp time.Time
  // Celsius.
  Temperature float64
  // Relative humidity, percent.
  Humidity float64
  // Percent. Not validated, see Decode.
  Battery uint8
  // dBm.
  Signal int
  // Advertised local name, used as the logical sensor key.
  SensorID string
  Addr string
  Profile string
}

func (r Reading) Fahrenheit() float64 {
  return r.Temperature * 9 / 5 + 32
}

func (r Reading) String() string {
  return fmt.Sprintf("Reading[Sensor=%q,Temperature=%.2fC,Humidity=%.2f%%,Battery=%d%%,Signal=%ddBm]",
    r.SensorID, r.Temperature, r.Humidity, r.Battery, r.Signal)
}
