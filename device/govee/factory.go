package govee

import (
  "fmt"

  "github.com/robertof/govee-capture/device"
  "github.com/rs/zerolog/log"
)

type Factory struct{}

func (f *Factory) FromSpec(spec device.DeviceSpec) (device.Profile, error) {
  p := H5051()

  if name := spec.Name(); name != "" {
    p.Name = name
  }

  prefix, hasPrefix := spec[device.DeviceSpecFieldPrefix]
  contains, hasContains := spec[device.DeviceSpecFieldContains]

  switch {
  case hasPrefix && hasContains:
    return p, fmt.Errorf("%w: only one of prefix and contains can be set", device.ErrInvalidProfile)
  case hasPrefix:
    p.Pattern, p.Mode = prefix, device.MatchPrefix
  case hasContains:
    p.Pattern, p.Mode = contains, device.MatchContains
  }

  id, err := spec.Uint(device.DeviceSpecFieldManufacturerID, 16, uint64(p.ManufacturerID))
  if err != nil {
    return p, err
  }

  p.ManufacturerID = uint16(id)

  if p.Layout.TemperatureOffset, err = spec.Int("temp", p.Layout.TemperatureOffset); err != nil {
    return p, err
  }

  if p.Layout.HumidityOffset, err = spec.Int("humidity", p.Layout.HumidityOffset); err != nil {
    return p, err
  }

  if p.Layout.BatteryOffset, err = spec.Int("battery", p.Layout.BatteryOffset); err != nil {
    return p, err
  }

  p.Layout.SignedTemperature = spec.Bool("signed")

  if err := p.Validate(); err != nil {
    return p, err
  }

  log.Debug().Stringer("Profile", p).Msg("govee: configured device profile")

  return p, nil
}

func (f *Factory) Help() string {
  return `Supported parameters:
name (string): Name of this profile (default H5051)
prefix (string): Match advertisements whose local name starts with this value (default Govee_H5051_)
contains (string): Match advertisements whose local name contains this value instead
mfid (uint16): Manufacturer ID carrying the payload (default 60552)
temp, humidity, battery (int): Payload offsets (default 1, 3, 5)
signed (bool): Decode temperature as a signed value`
}
