package ble

import (
  "encoding/binary"
  "fmt"
  "time"
)

// Event is a read-only snapshot of one received advertisement.
type Event struct {
  Addr string
  // LocalName is empty when the advertisement carries no name.
  LocalName string
  // ManufacturerData maps the 16-bit company identifier to the vendor payload following it.
  ManufacturerData map[uint16][]byte
  RSSI int
  Connectable bool
  Services []string
  SeenAt time.Time
}

// NewEvent converts a go-ble advertisement. go-ble exposes the manufacturer specific field
// verbatim, company identifier included, so it is split here.
func NewEvent(a Advertisement) Event {
  ev := Event{
    LocalName: a.LocalName(),
    RSSI: a.RSSI(),
    Connectable: a.Connectable(),
    SeenAt: time.Now(),
  }

  if addr := a.Addr(); addr != nil {
    ev.Addr = addr.String()
  }

  if id, payload, ok := SplitManufacturerData(a.ManufacturerData()); ok {
    ev.ManufacturerData = map[uint16][]byte{id: payload}
  }

  for _, uuid := range a.Services() {
    ev.Services = append(ev.Services, uuid.String())
  }

  return ev
}

// SplitManufacturerData separates the little-endian company identifier from the payload.
func SplitManufacturerData(data []byte) (id uint16, payload []byte, ok bool) {
  if len(data) < 2 {
    return 0, nil, false
  }

  payload = make([]byte, len(data) - 2)
  copy(payload, data[2:])

  return binary.LittleEndian.Uint16(data), payload, true
}

func (e Event) String() string {
  return fmt.Sprintf("event[addr=%v, name=%q, rssi=%d]", e.Addr, e.LocalName, e.RSSI)
}
