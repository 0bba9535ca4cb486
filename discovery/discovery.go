package discovery

import (
  "fmt"
  "sort"
  "strings"
  "sync"
  "time"

  "golang.org/x/exp/maps"

  "github.com/robertof/govee-capture/ble"
)

// DefaultDuration and DefaultPrefix match the vendor app's behaviour of listing every
// nearby device whose name starts with "G".
const (
  DefaultDuration = 600 * time.Second
  DefaultPrefix = "G"
)

type Device struct {
  Addr string
  Name string
  Connectable bool
  Services []string
  // Company identifiers seen in manufacturer data.
  ManufacturerIDs []uint16
  RSSI int
  Count int
  FirstSeen, LastSeen time.Time
  // Shortest and longest gap between two broadcasts, zero until seen twice.
  MinInterval, MaxInterval time.Duration
}

func (d Device) String() string {
  return fmt.Sprintf("device[addr=%v, name=%q, seen=%d]", d.Addr, d.Name, d.Count)
}

// Tracker merges the advertisements of each address seen during a discovery scan.
type Tracker struct {
  Prefix string

  mu sync.Mutex
  devices map[string]*Device
}

func NewTracker(prefix string) *Tracker {
  return &Tracker{
    Prefix: prefix,
    devices: make(map[string]*Device),
  }
}

// Observe records ev and returns the updated device, plus the time elapsed since the same
// address last broadcast (zero on the first sighting). Events whose name does not start
// with Prefix are ignored and ok is false.
func (t *Tracker) Observe(ev ble.Event) (dev Device, interval time.Duration, ok bool) {
  if !strings.HasPrefix(ev.LocalName, t.Prefix) {
    return Device{}, 0, false
  }

  t.mu.Lock()
  defer t.mu.Unlock()

  d, seen := t.devices[ev.Addr]

  if !seen {
    d = &Device{Addr: ev.Addr, FirstSeen: ev.SeenAt}
    t.devices[ev.Addr] = d
  } else {
    interval = ev.SeenAt.Sub(d.LastSeen)

    if d.MinInterval == 0 || interval < d.MinInterval {
      d.MinInterval = interval
    }

    if interval > d.MaxInterval {
      d.MaxInterval = interval
    }
  }

  if d.Name == "" {
    d.Name = ev.LocalName
  }

  d.Connectable = ev.Connectable
  d.RSSI = ev.RSSI
  d.LastSeen = ev.SeenAt
  d.Count++

  services := make(map[string]bool)
  for _, uuid := range d.Services {
    services[uuid] = true
  }
  for _, uuid := range ev.Services {
    services[uuid] = true
  }
  d.Services = maps.Keys(services)
  sort.Strings(d.Services)

  ids := make(map[uint16]bool)
  for _, id := range d.ManufacturerIDs {
    ids[id] = true
  }
  for id := range ev.ManufacturerData {
    ids[id] = true
  }
  d.ManufacturerIDs = maps.Keys(ids)
  sort.Slice(d.ManufacturerIDs, func(i, j int) bool { return d.ManufacturerIDs[i] < d.ManufacturerIDs[j] })

  return *d, interval, true
}

// Devices returns every tracked device ordered by address.
func (t *Tracker) Devices() []Device {
  t.mu.Lock()
  defer t.mu.Unlock()

  addrs := maps.Keys(t.devices)
  sort.Strings(addrs)

  out := make([]Device, 0, len(addrs))
  for _, addr := range addrs {
    out = append(out, *t.devices[addr])
  }

  return out
}
