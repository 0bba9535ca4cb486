package capture

import (
  "context"
  "errors"
  "strings"
  "sync"
  "time"

  "github.com/robertof/govee-capture/ble"
  "github.com/robertof/govee-capture/device"
  "github.com/robertof/govee-capture/sink"
  "github.com/rs/zerolog/log"
  "golang.org/x/sync/errgroup"
)

const DefaultTick = time.Second

var (
  ErrAlreadyStarted = errors.New("capture: session already started")
  ErrStopped = errors.New("capture: session stopped")
  ErrInvalidDuration = errors.New("capture: duration must be positive")
)

// Source delivers advertisements in arrival order until ctx is cancelled, then closes the
// channel. *ble.Handle implements it.
type Source interface {
  Subscribe(ctx context.Context) (<-chan ble.Event, error)
}

type Options struct {
  // Interval between Observer.Progress calls. Defaults to DefaultTick.
  Tick time.Duration
  Observer Observer
}

// Session waits for the first advertisement matching one of its profiles, hands the
// decoded reading to the sink and settles as Found, or settles as TimedOut once the
// duration passed to Start expires. Exactly one of the two outcomes is ever produced.
type Session struct {
  source Source
  profiles []device.Profile
  sink sink.Sink
  opts Options

  mu sync.Mutex
  state State
  started bool
  stopped bool
  reading *device.Reading
  sinkErr error
  startedAt time.Time
  finishedAt time.Time

  settled chan struct{}
  cancel context.CancelFunc
  eg *errgroup.Group

  stopOnce sync.Once
  result Result
}

func NewSession(source Source, profiles []device.Profile, s sink.Sink, opts Options) *Session {
  if opts.Tick <= 0 {
    opts.Tick = DefaultTick
  }

  if opts.Observer == nil {
    opts.Observer = ObserverFunc(func(time.Duration, time.Duration) {})
  }

  if s == nil {
    s = sink.Discard
  }

  return &Session{
    source: source,
    profiles: profiles,
    sink: s,
    opts: opts,
    state: StateRunning,
    settled: make(chan struct{}),
  }
}

// Start subscribes to the source and begins the countdown. It does not block. Cancelling
// ctx has the same effect as Stop, except that Stop must still be called to collect the
// result.
func (s *Session) Start(ctx context.Context, duration time.Duration) error {
  if duration <= 0 {
    return ErrInvalidDuration
  }

  s.mu.Lock()
  defer s.mu.Unlock()

  if s.stopped {
    return ErrStopped
  }

  if s.started {
    return ErrAlreadyStarted
  }

  s.started = true

  scanCtx, cancel := context.WithCancel(ctx)
  events, err := s.source.Subscribe(scanCtx)

  if err != nil {
    cancel()
    return err
  }

  log.Debug().
    Dur("Duration", duration).
    Int("Profiles", len(s.profiles)).
    Msg("Capture session started")

  s.startedAt = time.Now()
  s.cancel = cancel
  s.eg = new(errgroup.Group)

  // the sink outlives Stop(): a write in progress is allowed to complete.
  s.eg.Go(func() error {
    return s.consume(scanCtx, ctx, events)
  })
  s.eg.Go(func() error {
    return s.countdown(scanCtx, duration)
  })

  return nil
}

// Done is closed once the session reaches a terminal state and, when Found, after the sink
// returned.
func (s *Session) Done() <-chan struct{} {
  return s.settled
}

// Wait blocks until the session settles or ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
  select {
  case <-s.settled:
    return s.snapshot(), nil
  case <-ctx.Done():
    return s.snapshot(), ctx.Err()
  }
}

// Stop cancels the subscription and waits for every goroutine of the session to return.
// It may be called any number of times, before or after Start, and always returns the
// same result.
func (s *Session) Stop() Result {
  s.stopOnce.Do(func() {
    s.mu.Lock()
    s.stopped = true
    cancel, eg := s.cancel, s.eg
    s.mu.Unlock()

    if cancel != nil {
      cancel()
      _ = eg.Wait()
    }

    s.result = s.snapshot()

    if cancel != nil {
      sessionsCounter.WithLabelValues(outcome(s.result.State)).Inc()
    }

    log.Debug().Stringer("Result", s.result).Msg("Capture session stopped")
  })

  return s.result
}

// Run starts the session, waits for it to settle or for ctx to be done, and stops it.
func (s *Session) Run(ctx context.Context, duration time.Duration) (Result, error) {
  if err := s.Start(ctx, duration); err != nil {
    return Result{}, err
  }

  _, err := s.Wait(ctx)

  return s.Stop(), err
}

func (s *Session) snapshot() Result {
  s.mu.Lock()
  defer s.mu.Unlock()

  res := Result{
    State: s.state,
    Reading: s.reading,
    SinkErr: s.sinkErr,
  }

  switch {
  case s.startedAt.IsZero():
  case s.finishedAt.IsZero():
    res.Elapsed = time.Since(s.startedAt)
  default:
    res.Elapsed = s.finishedAt.Sub(s.startedAt)
  }

  return res
}

// transition moves the session out of Running. Only the first caller wins.
func (s *Session) transition(to State, reading *device.Reading) bool {
  s.mu.Lock()
  defer s.mu.Unlock()

  if s.state != StateRunning {
    return false
  }

  s.state = to
  s.reading = reading
  s.finishedAt = time.Now()

  return true
}

func (s *Session) terminal() bool {
  s.mu.Lock()
  defer s.mu.Unlock()

  return s.state.Terminal()
}

func (s *Session) consume(ctx, sinkCtx context.Context, events <-chan ble.Event) error {
  for {
    select {
    case <-ctx.Done():
      return nil
    case ev, ok := <-events:
      if !ok {
        log.Trace().Msg("capture: event source closed")
        return nil
      }

      s.handle(sinkCtx, ev)
    }
  }
}

func (s *Session) handle(ctx context.Context, ev ble.Event) {
  // keep draining after settling so the source never backs up.
  if s.terminal() {
    return
  }

  profile, data, ok := device.Match(ev, s.profiles)

  if !ok {
    return
  }

  reading, err := device.Decode(data, profile.Layout)

  if err != nil {
    decodeFailuresCounter.Inc()
    log.Debug().
      Err(err).
      Str("Address", ev.Addr).
      Str("LocalName", ev.LocalName).
      Hex("Payload", data).
      Msg("Ignoring undecodable advertisement")

    return
  }

  if reading.Battery > 100 {
    log.Warn().
      Uint8("Battery", reading.Battery).
      Str("LocalName", ev.LocalName).
      Msg("Battery level out of range, keeping it as reported")
  }

  if ev.RSSI > 0 || ev.RSSI < -127 {
    log.Warn().Int("RSSI", ev.RSSI).Str("LocalName", ev.LocalName).Msg("Implausible signal strength, keeping it as reported")
  }

  reading.Timestamp = ev.SeenAt
  if reading.Timestamp.IsZero() {
    reading.Timestamp = time.Now()
  }

  reading.Signal = ev.RSSI
  reading.SensorID = ev.LocalName
  reading.Addr = ev.Addr
  reading.Profile = profile.Name

  if !s.transition(StateFound, &reading) {
    return
  }

  log.Info().
    Stringer("Reading", reading).
    Str("Address", ev.Addr).
    Msg("Sensor found")

  err = s.sink.Write(ctx, reading)

  if err != nil {
    sinkFailuresCounter.Inc()
    log.Error().Err(err).Stringer("Reading", reading).Msg("Failed to write reading")
  }

  s.mu.Lock()
  s.sinkErr = err
  s.mu.Unlock()

  close(s.settled)
}

func (s *Session) countdown(ctx context.Context, total time.Duration) error {
  deadline := time.NewTimer(total)
  defer deadline.Stop()

  ticker := time.NewTicker(s.opts.Tick)
  defer ticker.Stop()

  observer := s.opts.Observer
  observer.Progress(total, total)

  defer func() {
    s.mu.Lock()
    state := s.state
    s.mu.Unlock()

    observer.Finish(state)
  }()

  for {
    select {
    case <-ctx.Done():
      return nil
    case <-s.settled:
      return nil
    case <-ticker.C:
      remaining := total - time.Since(s.startedAt)
      if remaining < 0 {
        remaining = 0
      }

      observer.Progress(remaining, total)
    case <-deadline.C:
      if s.transition(StateTimedOut, nil) {
        log.Info().Dur("Duration", total).Msg("No sensor found before the scan window expired")
        close(s.settled)
      }

      return nil
    }
  }
}

func outcome(state State) string {
  if state == StateRunning {
    return "stopped"
  }

  return strings.ToLower(state.String())
}
