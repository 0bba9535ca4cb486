package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robertof/govee-capture/report"
	"github.com/robertof/govee-capture/storage"
)

func doStatus(cfg config) int {
  db, err := storage.Open(cfg.DBPath)

  if err != nil {
    log.Error().Err(err).Str("Path", cfg.DBPath).Msg("Failed to open database")
    return exitFailure
  }

  defer db.Close()

  ctx, cancel := context.WithTimeout(context.Background(), 30 * time.Second)
  defer cancel()

  if err := db.EnsureSchema(ctx); err != nil {
    log.Error().Err(err).Msg("Failed to prepare database")
    return exitFailure
  }

  snapshot, err := report.Load(ctx, db, time.Now(), cfg.StatusWindow)

  if err != nil {
    log.Error().Err(err).Msg("Failed to load readings")
    return exitFailure
  }

  report.Render(os.Stdout, snapshot)

  if len(snapshot.Rows) == 0 {
    latest, err := db.Latest(ctx)

    switch {
    case errors.Is(err, storage.ErrEmpty):
      log.Info().Str("Path", cfg.DBPath).Msg("No readings stored yet")
    case err != nil:
      log.Error().Err(err).Msg("Failed to load the latest reading")
      return exitFailure
    default:
      log.Info().
        Stringer("Row", latest).
        Dur("AgeSec", time.Since(latest.Timestamp)).
        Msg("Latest reading is older than the status window")
    }
  }

  return exitOK
}
