package device

import (
  "errors"
  "fmt"
  "strconv"
  "strings"

  "github.com/robertof/govee-capture/ble"
)

var (
  ErrMalformedPayload = errors.New("malformed payload")
  ErrInvalidProfile = errors.New("invalid profile")
)

// MatchMode selects how a profile's Pattern is compared with the advertised local name.
type MatchMode uint8

const (
  // The local name must start with Pattern.
  MatchPrefix MatchMode = iota
  // The local name must contain Pattern anywhere.
  MatchContains
)

func (m MatchMode) String() string {
  switch m {
  case MatchPrefix:
    return "prefix"
  case MatchContains:
    return "contains"
  default:
    panic("unknown match mode: " + strconv.Itoa(int(m)))
  }
}

// Profile describes one sensor family: which advertisements belong to it and how to decode
// their payload.
type Profile struct {
  Name string
  Pattern string
  Mode MatchMode
  ManufacturerID uint16
  Layout Layout
}

func (p Profile) Validate() error {
  if p.Pattern == "" {
    return fmt.Errorf("%w: profile %q has an empty name pattern", ErrInvalidProfile, p.Name)
  }

  return p.Layout.Validate()
}

func (p Profile) matchName(name string) bool {
  if name == "" || p.Pattern == "" {
    return false
  }

  switch p.Mode {
  case MatchContains:
    return strings.Contains(name, p.Pattern)
  default:
    return strings.HasPrefix(name, p.Pattern)
  }
}

// Match reports whether ev was sent by this family, returning the manufacturer payload.
func (p Profile) Match(ev ble.Event) ([]byte, bool) {
  if !p.matchName(ev.LocalName) {
    return nil, false
  }

  data, ok := ev.ManufacturerData[p.ManufacturerID]

  if !ok {
    return nil, false
  }

  return data, true
}

func (p Profile) String() string {
  return fmt.Sprintf("profile[name=%q, %v=%q, manufacturer=%d]",
    p.Name, p.Mode, p.Pattern, p.ManufacturerID)
}

// Match returns the first profile, in order, that accepts ev.
func Match(ev ble.Event, profiles []Profile) (Profile, []byte, bool) {
  for _, p := range profiles {
    if data, ok := p.Match(ev); ok {
      return p, data, true
    }
  }

  return Profile{}, nil, false
}
