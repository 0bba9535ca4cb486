package sink

import (
  "context"

  "github.com/robertof/govee-capture/device"
  "github.com/robertof/govee-capture/storage"
)

// Storage appends every reading to the data table.
type Storage struct {
  db *storage.DB
}

func NewStorage(ctx context.Context, db *storage.DB) (*Storage, error) {
  if err := db.EnsureSchema(ctx); err != nil {
    return nil, err
  }

  return &Storage{db: db}, nil
}

func (s *Storage) Write(ctx context.Context, reading device.Reading) error {
  _, err := s.db.Insert(ctx, reading)
  return err
}
