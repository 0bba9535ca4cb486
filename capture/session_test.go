package capture_test

import (
  "context"
  "errors"
  "sync"
  "testing"
  "time"

  "github.com/prometheus/client_golang/prometheus/testutil"
  "github.com/robertof/govee-capture/ble"
  "github.com/robertof/govee-capture/capture"
  "github.com/robertof/govee-capture/device"
  "github.com/robertof/govee-capture/device/govee"
)

// FakeSource forwards events sent on Events to the subscriber, one at a time.
type FakeSource struct {
  Events chan ble.Event
  Err error
}

func NewFakeSource() *FakeSource {
  return &FakeSource{Events: make(chan ble.Event)}
}

func (f *FakeSource) Subscribe(ctx context.Context) (<-chan ble.Event, error) {
  if f.Err != nil {
    return nil, f.Err
  }

  out := make(chan ble.Event)

  go func() {
    defer close(out)

    for {
      select {
      case <-ctx.Done():
        return
      case ev := <-f.Events:
        select {
        case out <- ev:
        case <-ctx.Done():
          return
        }
      }
    }
  }()

  return out, nil
}

func (f *FakeSource) Send(t *testing.T, ev ble.Event) {
  t.Helper()

  select {
  case f.Events <- ev:
  case <-time.After(2 * time.Second):
    t.Fatalf("timed out sending %v", ev)
  }
}

type RecordingSink struct {
  mu sync.Mutex
  readings []device.Reading
  err error
}

func (s *RecordingSink) Write(_ context.Context, r device.Reading) error {
  s.mu.Lock()
  defer s.mu.Unlock()

  s.readings = append(s.readings, r)
  return s.err
}

func (s *RecordingSink) Readings() []device.Reading {
  s.mu.Lock()
  defer s.mu.Unlock()

  return append([]device.Reading(nil), s.readings...)
}

func goveeEvent(name string, payload []byte) ble.Event {
  return ble.Event{
    Addr: "a4:c1:38:00:11:22",
    LocalName: name,
    ManufacturerData: map[uint16][]byte{govee.ManufacturerID: payload},
    RSSI: -60,
    SeenAt: time.Date(2024, 5, 1, 12, 30, 0, 0, time.Local),
  }
}

var h5051Payload = []byte{0x00, 0x34, 0x08, 0x20, 0x03, 0x5a}

func waitSettled(t *testing.T, s *capture.Session) capture.Result {
  t.Helper()

  ctx, cancel := context.WithTimeout(context.Background(), 5 * time.Second)
  defer cancel()

  res, err := s.Wait(ctx)
  if err != nil {
    t.Fatalf("Wait(): got error %v, state %v", err, res.State)
  }

  return res
}

func TestSession_TimesOutWithoutMatch(t *testing.T) {
  src := NewFakeSource()
  recorder := &RecordingSink{}
  session := capture.NewSession(src, []device.Profile{govee.H5051()}, recorder, capture.Options{})

  duration := 100 * time.Millisecond
  if err := session.Start(context.Background(), duration); err != nil {
    t.Fatalf("Start(): got error %v", err)
  }

  src.Send(t, goveeEvent("LYWSD03MMC", h5051Payload))
  src.Send(t, goveeEvent("", h5051Payload))

  res := waitSettled(t, session)
  final := session.Stop()

  if res.State != capture.StateTimedOut || final.State != capture.StateTimedOut {
    t.Fatalf("got states %v/%v, wanted %v", res.State, final.State, capture.StateTimedOut)
  }

  if final.Reading != nil {
    t.Fatalf("got reading %v, wanted none", *final.Reading)
  }

  if final.Elapsed < duration {
    t.Fatalf("got elapsed %v, wanted at least %v", final.Elapsed, duration)
  }

  if got := recorder.Readings(); len(got) != 0 {
    t.Fatalf("sink got %d readings, wanted 0", len(got))
  }
}

func TestSession_FoundOnce(t *testing.T) {
  src := NewFakeSource()
  recorder := &RecordingSink{}
  session := capture.NewSession(src, []device.Profile{govee.H5051()}, recorder, capture.Options{})

  if err := session.Start(context.Background(), time.Minute); err != nil {
    t.Fatalf("Start(): got error %v", err)
  }

  src.Send(t, goveeEvent("Govee_H5051_ABCD", h5051Payload))

  res := waitSettled(t, session)

  // both sends returning means the first one went through the consumer.
  src.Send(t, goveeEvent("Govee_H5051_EF01", []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01}))
  src.Send(t, goveeEvent("Govee_H5051_EF01", []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x02}))

  final := session.Stop()

  if res.State != capture.StateFound || final.State != capture.StateFound {
    t.Fatalf("got states %v/%v, wanted %v", res.State, final.State, capture.StateFound)
  }

  want := device.Reading{
    Timestamp: time.Date(2024, 5, 1, 12, 30, 0, 0, time.Local),
    Temperature: 21,
    Humidity: 8,
    Battery: 90,
    Signal: -60,
    SensorID: "Govee_H5051_ABCD",
    Addr: "a4:c1:38:00:11:22",
    Profile: "H5051",
  }

  if final.Reading == nil || *final.Reading != want {
    t.Fatalf("got reading %+v, wanted %+v", final.Reading, want)
  }

  got := recorder.Readings()
  if len(got) != 1 || got[0] != want {
    t.Fatalf("sink got %+v, wanted exactly %+v", got, want)
  }

  if final.SinkErr != nil {
    t.Fatalf("got sink error %v, wanted none", final.SinkErr)
  }
}

func TestSession_MalformedPayloadKeepsScanning(t *testing.T) {
  src := NewFakeSource()
  recorder := &RecordingSink{}
  session := capture.NewSession(src, []device.Profile{govee.H5051()}, recorder, capture.Options{})

  before := testutil.ToFloat64(capture.DecodeFailuresCounter())

  if err := session.Start(context.Background(), time.Minute); err != nil {
    t.Fatalf("Start(): got error %v", err)
  }

  src.Send(t, goveeEvent("Govee_H5051_ABCD", []byte{0x00, 0x34}))

  select {
  case <-session.Done():
    t.Fatalf("session settled on a malformed payload")
  case <-time.After(50 * time.Millisecond):
  }

  src.Send(t, goveeEvent("Govee_H5051_ABCD", h5051Payload))

  res := waitSettled(t, session)
  session.Stop()

  if res.State != capture.StateFound || res.Reading.Temperature != 21 {
    t.Fatalf("got %v, wanted Found with 21C", res)
  }

  if after := testutil.ToFloat64(capture.DecodeFailuresCounter()); after - before != 1 {
    t.Fatalf("decode failures went from %v to %v, wanted +1", before, after)
  }
}

func TestSession_SinkErrorStillFound(t *testing.T) {
  src := NewFakeSource()
  sinkErr := errors.New("disk full")
  recorder := &RecordingSink{err: sinkErr}
  session := capture.NewSession(src, []device.Profile{govee.H5051()}, recorder, capture.Options{})

  if err := session.Start(context.Background(), time.Minute); err != nil {
    t.Fatalf("Start(): got error %v", err)
  }

  src.Send(t, goveeEvent("Govee_H5051_ABCD", h5051Payload))
  waitSettled(t, session)

  res := session.Stop()

  if res.State != capture.StateFound {
    t.Fatalf("got state %v, wanted %v", res.State, capture.StateFound)
  }

  if !errors.Is(res.SinkErr, sinkErr) {
    t.Fatalf("got sink error %v, wanted %v", res.SinkErr, sinkErr)
  }
}

func TestSession_StopIsIdempotent(t *testing.T) {
  src := NewFakeSource()
  session := capture.NewSession(src, []device.Profile{govee.H5051()}, nil, capture.Options{})

  if err := session.Start(context.Background(), time.Minute); err != nil {
    t.Fatalf("Start(): got error %v", err)
  }

  first := session.Stop()
  second := session.Stop()

  if first.State != capture.StateRunning {
    t.Fatalf("got state %v, wanted %v", first.State, capture.StateRunning)
  }

  if first != second {
    t.Fatalf("Stop() twice: got %+v then %+v", first, second)
  }

  if err := session.Start(context.Background(), time.Minute); !errors.Is(err, capture.ErrStopped) {
    t.Fatalf("Start() after Stop(): got %v, wanted %v", err, capture.ErrStopped)
  }
}

func TestSession_StopBeforeStart(t *testing.T) {
  session := capture.NewSession(NewFakeSource(), nil, nil, capture.Options{})

  res := session.Stop()

  if res.State != capture.StateRunning || res.Reading != nil || res.Elapsed != 0 {
    t.Fatalf("Stop() before Start(): got %+v", res)
  }
}

func TestSession_StartErrors(t *testing.T) {
  session := capture.NewSession(NewFakeSource(), nil, nil, capture.Options{})
  defer session.Stop()

  if err := session.Start(context.Background(), 0); !errors.Is(err, capture.ErrInvalidDuration) {
    t.Fatalf("Start(0): got %v, wanted %v", err, capture.ErrInvalidDuration)
  }

  if err := session.Start(context.Background(), time.Minute); err != nil {
    t.Fatalf("Start(): got error %v", err)
  }

  if err := session.Start(context.Background(), time.Minute); !errors.Is(err, capture.ErrAlreadyStarted) {
    t.Fatalf("second Start(): got %v, wanted %v", err, capture.ErrAlreadyStarted)
  }
}

func TestSession_SubscribeError(t *testing.T) {
  radioErr := errors.New("hci0: no such device")
  session := capture.NewSession(&FakeSource{Err: radioErr}, nil, nil, capture.Options{})

  if err := session.Start(context.Background(), time.Minute); !errors.Is(err, radioErr) {
    t.Fatalf("Start(): got %v, wanted %v", err, radioErr)
  }

  if res := session.Stop(); res.State != capture.StateRunning {
    t.Fatalf("Stop(): got %+v", res)
  }
}

func TestSession_ExactlyOneOutcome(t *testing.T) {
  for i := 0; i < 50; i++ {
    src := NewFakeSource()
    recorder := &RecordingSink{}
    session := capture.NewSession(src, []device.Profile{govee.H5051()}, recorder, capture.Options{})

    if err := session.Start(context.Background(), time.Millisecond); err != nil {
      t.Fatalf("Start(): got error %v", err)
    }

    go func() {
      select {
      case src.Events <- goveeEvent("Govee_H5051_ABCD", h5051Payload):
      case <-session.Done():
      }
    }()

    res := waitSettled(t, session)
    final := session.Stop()

    if res.State != final.State {
      t.Fatalf("iteration %d: Wait() got %v, Stop() got %v", i, res.State, final.State)
    }

    written := len(recorder.Readings())

    switch final.State {
    case capture.StateFound:
      if final.Reading == nil || written != 1 {
        t.Fatalf("iteration %d: Found with reading %v and %d sink writes", i, final.Reading, written)
      }
    case capture.StateTimedOut:
      if final.Reading != nil || written != 0 {
        t.Fatalf("iteration %d: TimedOut with reading %v and %d sink writes", i, final.Reading, written)
      }
    default:
      t.Fatalf("iteration %d: got non-terminal state %v", i, final.State)
    }
  }
}

func TestSession_ReportsProgress(t *testing.T) {
  var mu sync.Mutex
  var calls []time.Duration

  observer := capture.ObserverFunc(func(remaining, total time.Duration) {
    mu.Lock()
    defer mu.Unlock()

    if remaining > total {
      t.Errorf("remaining %v exceeds total %v", remaining, total)
    }
    calls = append(calls, remaining)
  })

  session := capture.NewSession(NewFakeSource(), nil, nil, capture.Options{
    Tick: 10 * time.Millisecond,
    Observer: observer,
  })

  if err := session.Start(context.Background(), 100 * time.Millisecond); err != nil {
    t.Fatalf("Start(): got error %v", err)
  }

  waitSettled(t, session)
  session.Stop()

  mu.Lock()
  defer mu.Unlock()

  if len(calls) < 2 {
    t.Fatalf("got %d progress calls, wanted several", len(calls))
  }

  if calls[0] != 100 * time.Millisecond {
    t.Fatalf("first progress call: got %v, wanted the full duration", calls[0])
  }
}

func TestSession_MetricsOutcome(t *testing.T) {
  session := capture.NewSession(NewFakeSource(), nil, nil, capture.Options{})
  counter := capture.SessionsCounter().WithLabelValues("timedout")
  before := testutil.ToFloat64(counter)

  if _, err := session.Run(context.Background(), 10 * time.Millisecond); err != nil {
    t.Fatalf("Run(): got error %v", err)
  }

  if after := testutil.ToFloat64(counter); after - before != 1 {
    t.Fatalf("timedout sessions went from %v to %v, wanted +1", before, after)
  }
}
