package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// DeviceSpec is a profile description in the form of `key=value,key=value`.
type DeviceSpec map[string]string

const (
  DeviceSpecFieldName = "name"
  DeviceSpecFieldPrefix = "prefix"
  DeviceSpecFieldContains = "contains"
  DeviceSpecFieldManufacturerID = "mfid"
)

func NewDeviceSpec(s string) DeviceSpec {
  spec := DeviceSpec{}
  entries := strings.Split(s, ",")

  for _, entry := range entries {
    if strings.TrimSpace(entry) == "" {
      continue
    }

    parts := strings.SplitN(entry, "=", 2)

    if len(parts) != 2 {
      log.Warn().Str("Entry", entry).Msg("Skipping invalid device spec entry")
      continue
    }

    spec[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
  }

  return spec
}

func (ds DeviceSpec) Name() string {
  return ds[DeviceSpecFieldName]
}

// Uint returns the numeric value of key, accepting decimal or 0x-prefixed hex.
func (ds DeviceSpec) Uint(key string, bits int, fallback uint64) (uint64, error) {
  v, ok := ds[key]

  if !ok || v == "" {
    return fallback, nil
  }

  n, err := strconv.ParseUint(v, 0, bits)

  if err != nil {
    return fallback, fmt.Errorf("%w: invalid %s %q: %v", ErrInvalidProfile, key, v, err)
  }

  return n, nil
}

func (ds DeviceSpec) Int(key string, fallback int) (int, error) {
  v, ok := ds[key]

  if !ok || v == "" {
    return fallback, nil
  }

  n, err := strconv.Atoi(v)

  if err != nil {
    return fallback, fmt.Errorf("%w: invalid %s %q: %v", ErrInvalidProfile, key, v, err)
  }

  return n, nil
}

func (ds DeviceSpec) Bool(key string) bool {
  v := strings.ToLower(ds[key])
  return v == "yes" || v == "true" || v == "1"
}
