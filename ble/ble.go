package ble

import (
  "context"
  "fmt"

  "github.com/go-ble/ble"
  "github.com/go-ble/ble/linux"
  "github.com/go-ble/ble/linux/hci/cmd"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/rs/zerolog/log"
)

type Advertisement = ble.Advertisement

var (
  receivedAdvertisementsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "govee_capture_ble_advertisements_total",
    Help: "Advertisements delivered by the Bluetooth adapter.",
  })
  droppedAdvertisementsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "govee_capture_ble_dropped_advertisements_total",
    Help: "Advertisements dropped because the subscriber was not keeping up or had stopped.",
  })
)

// Scanner is the subset of the go-ble device used by Handle.
type Scanner interface {
  Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
  Stop() error
}

type Handle struct {
  dev Scanner
  flags Flags
}

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    receivedAdvertisementsCounter,
    droppedAdvertisementsCounter,
  )
}

func Init(deviceId int, flags Flags) (*Handle, error) {
  var scanType scanType = scanTypePassive

  if flags & FlagScanTypeActive == FlagScanTypeActive {
    scanType = scanTypeActive
  }

  log.Debug().
    Stringer("ScanType", scanType).
    Stringer("Flags", flags).
    Int("DeviceID", deviceId).
    Msg("Initializing Bluetooth device")

  dev, err := linux.NewDevice(
    ble.OptDeviceID(deviceId),
    ble.OptScanParams(cmd.LESetScanParameters{
      LEScanType:           uint8(scanType), // 0x00: passive, 0x01: active
      LEScanInterval:       0x0004,          // 0x0004 - 0x4000; N * 0.625msec
      LEScanWindow:         0x0004,          // 0x0004 - 0x4000; N * 0.625msec
      OwnAddressType:       0x00,            // 0x00: public, 0x01: random
      ScanningFilterPolicy: 0x00,            // 0x00: accept all
    }),
  )

  if err != nil {
    return nil, fmt.Errorf("failed to init bluetooth device: %w", err)
  }

  ble.SetDefaultDevice(dev)

  return NewHandle(dev, flags), nil
}

// NewHandle wraps an already initialized scanner.
func NewHandle(dev Scanner, flags Flags) *Handle {
  return &Handle{
    dev: dev,
    flags: flags,
  }
}

func (h *Handle) Stop() {
  if err := h.dev.Stop(); err != nil {
    log.Warn().Err(err).Msg("ble: failed to stop Bluetooth device")
  }
}
