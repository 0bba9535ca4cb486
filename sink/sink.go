package sink

import (
  "context"
  "errors"

  "github.com/robertof/govee-capture/device"
)

// ErrSinkWrite wraps every error returned by a sink installed through WithPolicy.
var ErrSinkWrite = errors.New("sink write failed")

// Sink receives the reading captured by a session. Write is called at most once per
// session and may block.
type Sink interface {
  Write(ctx context.Context, reading device.Reading) error
}

type Func func(ctx context.Context, reading device.Reading) error

func (f Func) Write(ctx context.Context, reading device.Reading) error {
  return f(ctx, reading)
}

// Discard accepts and drops every reading.
var Discard Sink = Func(func(context.Context, device.Reading) error { return nil })

// Multi writes to every sink in order, even when an earlier one fails, and joins the errors.
type Multi []Sink

func (m Multi) Write(ctx context.Context, reading device.Reading) error {
  var errs []error

  for _, s := range m {
    if err := s.Write(ctx, reading); err != nil {
      errs = append(errs, err)
    }
  }

  return errors.Join(errs...)
}
