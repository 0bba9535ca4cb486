package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/robertof/govee-capture/ble"
	"github.com/robertof/govee-capture/discovery"
)

func doDeviceDiscovery(cfg config) {
  log.Info().
    Dur("DurationSec", cfg.DiscoverDuration).
    Str("Prefix", cfg.DiscoverPrefix).
    Msg("Starting in device discovery mode")

  handle, err := ble.Init(cfg.BluetoothDeviceId, ble.FlagScanTypeActive | ble.FlagAllowDuplicates)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  defer handle.Stop()

  ctx := ble.WrapContextWithSigHandler(
    context.WithTimeout(
      context.Background(),
      cfg.DiscoverDuration,
    ),
  )

  events, err := handle.Subscribe(ctx)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initiate scan")
  }

  tracker := discovery.NewTracker(cfg.DiscoverPrefix)

  for ev := range events {
    dev, interval, ok := tracker.Observe(ev)

    if !ok {
      continue
    }

    entry := log.Info().
      Str("Addr", ev.Addr).
      Str("Name", ev.LocalName).
      Int("RSSI", ev.RSSI).
      Bool("Connectable", ev.Connectable).
      Strs("Services", ev.Services)

    for id, data := range ev.ManufacturerData {
      entry = entry.Hex(fmt.Sprintf("ManufacturerData[%d]", id), data)
    }

    if dev.Count > 1 {
      entry = entry.Dur("SinceLastSec", interval)
    }

    entry.Msg("Received device advertisement")
  }

  devices := tracker.Devices()

  log.Info().Int("Found", len(devices)).Msg("Finished device discovery")

  for _, dev := range devices {
    log.Info().
      Str("Addr", dev.Addr).
      Str("Name", dev.Name).
      Bool("Connectable", dev.Connectable).
      Strs("Services", dev.Services).
      Int("Advertisements", dev.Count).
      Dur("MinIntervalSec", dev.MinInterval).
      Dur("MaxIntervalSec", dev.MaxInterval).
      Msg("Found device")
  }
}
