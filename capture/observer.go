package capture

import (
  "io"
  "time"

  "github.com/rs/zerolog/log"
  "github.com/schollz/progressbar/v3"
)

// Observer receives countdown progress. It is called from the countdown goroutine and
// must not block.
type Observer interface {
  Progress(remaining, total time.Duration)
  Finish(state State)
}

type ObserverFunc func(remaining, total time.Duration)

func (f ObserverFunc) Progress(remaining, total time.Duration) {
  f(remaining, total)
}

func (f ObserverFunc) Finish(State) {}

type LogObserver struct{}

func (LogObserver) Progress(remaining, total time.Duration) {
  log.Debug().
    Dur("RemainingSec", remaining).
    Dur("TotalSec", total).
    Msg("Scanning for sensors")
}

func (LogObserver) Finish(state State) {
  log.Debug().Stringer("State", state).Msg("Scan countdown finished")
}

// ProgressBar renders the countdown as a terminal progress bar in whole seconds.
type ProgressBar struct {
  bar *progressbar.ProgressBar
  total int
}

func NewProgressBar(w io.Writer, description string, total time.Duration) *ProgressBar {
  seconds := int(total.Round(time.Second) / time.Second)

  return &ProgressBar{
    total: seconds,
    bar: progressbar.NewOptions(seconds,
      progressbar.OptionSetWriter(w),
      progressbar.OptionSetDescription(description),
      progressbar.OptionSetPredictTime(false),
      progressbar.OptionShowCount(),
      progressbar.OptionClearOnFinish(),
    ),
  }
}

func (p *ProgressBar) Progress(remaining, _ time.Duration) {
  elapsed := p.total - int(remaining.Round(time.Second) / time.Second)
  _ = p.bar.Set(elapsed)
}

func (p *ProgressBar) Finish(State) {
  _ = p.bar.Finish()
}
