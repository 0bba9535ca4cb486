package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robertof/govee-capture/ble"
	"github.com/robertof/govee-capture/capture"
	"github.com/robertof/govee-capture/metrics"
	"github.com/robertof/govee-capture/mqtt"
	"github.com/robertof/govee-capture/sink"
	"github.com/robertof/govee-capture/storage"
	"github.com/robertof/govee-capture/utils"
)

const (
  exitOK = 0
  exitFailure = 1
  exitTimedOut = 2
)

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  cfg := ParseArgs()

  if cfg.Trace || os.Getenv("TRACE") != "" {
      zerolog.SetGlobalLevel(zerolog.TraceLevel)
  } else if cfg.Debug || os.Getenv("DEBUG") != "" {
      zerolog.SetGlobalLevel(zerolog.DebugLevel)
  } else {
      zerolog.SetGlobalLevel(zerolog.InfoLevel)
  }

  switch {
  case cfg.Status:
    os.Exit(doStatus(cfg))
  case cfg.Discover:
    doDeviceDiscovery(cfg)
    return
  }

  os.Exit(runCapture(cfg))
}

func runCapture(cfg config) int {
  log.Info().
    Dur("DurationSec", cfg.Duration).
    Strs("Sinks", cfg.Sinks).
    Array("Profiles", utils.ToZeroLogArray(cfg.Profiles)).
    Int("BluetoothDeviceID", cfg.BluetoothDeviceId).
    Stringer("SinkFailurePolicy", cfg.SinkPolicy.Mode).
    Msg("Starting with the specified configuration")

  registry := prometheus.NewRegistry()
  ble.RegisterMetrics(registry)
  capture.RegisterMetrics(registry)

  ctx, cancel := context.WithCancel(context.Background())
  defer cancel()

  ctx = ble.WrapContextWithSigHandler(ctx, cancel)

  out, closeSinks, err := buildSinks(ctx, cfg, registry)
  if err != nil {
    log.Fatal().Err(err).Msg("Failed to set up sinks")
  }

  defer closeSinks()

  handle := initBle(cfg)
  defer handle.Stop()

  var observer capture.Observer = capture.LogObserver{}
  if cfg.Progress {
    observer = capture.NewProgressBar(os.Stderr, "Scanning for sensors", cfg.Duration)
  }

  session := capture.NewSession(
    handle,
    cfg.Profiles,
    sink.WithPolicy(out, cfg.SinkPolicy),
    capture.Options{Observer: observer},
  )

  res, err := session.Run(ctx, cfg.Duration)

  if err != nil && !errors.Is(err, context.Canceled) {
    log.Error().Err(err).Msg("Capture failed")
    return exitFailure
  }

  if cfg.MetricsTextfile != "" {
    if err := metrics.WriteTextfile(cfg.MetricsTextfile, registry); err != nil {
      log.Error().Err(err).Msg("Failed to write metrics")
    }
  }

  switch res.State {
  case capture.StateFound:
    if res.SinkErr != nil && cfg.SinkPolicy.Fatal() {
      log.Error().Err(res.SinkErr).Msg("Reading captured but not stored")
      return exitFailure
    }

    log.Info().
      Stringer("Reading", res.Reading).
      Dur("ElapsedSec", res.Elapsed).
      Msg("Reading captured")

    return exitOK
  case capture.StateTimedOut:
    log.Warn().
      Dur("DurationSec", cfg.Duration).
      Msg("No matching sensor found")

    return exitTimedOut
  default:
    log.Warn().Msg("Capture interrupted")
    return exitFailure
  }
}

func initBle(cfg config) *ble.Handle {
  bleFlags := ble.FlagAllowDuplicates

  if cfg.ActiveScan {
    bleFlags |= ble.FlagScanTypeActive
  }

  bleHandle, err := ble.Init(cfg.BluetoothDeviceId, bleFlags)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  return bleHandle
}

// buildSinks creates the sinks named in cfg, in order. The returned func releases their
// connections.
func buildSinks(ctx context.Context, cfg config, reg prometheus.Registerer) (sink.Multi, func(), error) {
  var out sink.Multi
  var closers []func()

  closeAll := func() {
    for i := len(closers) - 1; i >= 0; i-- {
      closers[i]()
    }
  }

  for _, name := range cfg.Sinks {
    switch name {
    case sinkDisplay:
      out = append(out, sink.NewDisplay(os.Stdout))
    case sinkStorage:
      db, err := storage.Open(cfg.DBPath)
      if err != nil {
        closeAll()
        return nil, nil, err
      }

      closers = append(closers, func() {
        if err := db.Close(); err != nil {
          log.Warn().Err(err).Msg("Failed to close database")
        }
      })

      s, err := sink.NewStorage(ctx, db)
      if err != nil {
        closeAll()
        return nil, nil, err
      }

      out = append(out, s)
    case sinkMQTT:
      client, err := mqtt.NewClient(cfg.MQTT)
      if err != nil {
        closeAll()
        return nil, nil, err
      }

      closers = append(closers, client.Close)
      out = append(out, sink.NewMessage(client, cfg.MQTTTopic))
    case sinkTextfile:
      rec := metrics.NewRecorder()
      metrics.RegisterCollector(rec.Latest, reg)
      out = append(out, rec)
    }
  }

  return out, closeAll, nil
}
