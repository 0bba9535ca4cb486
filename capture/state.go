package capture

import (
  "fmt"
  "strconv"
  "time"

  "github.com/robertof/govee-capture/device"
)

type State uint8

const (
  StateRunning State = iota
  StateFound
  StateTimedOut
)

func (s State) String() string {
  switch s {
  case StateRunning:
    return "Running"
  case StateFound:
    return "Found"
  case StateTimedOut:
    return "TimedOut"
  default:
    panic("unknown capture state: " + strconv.Itoa(int(s)))
  }
}

func (s State) Terminal() bool {
  return s != StateRunning
}

// Result is the outcome of a session. Reading is only set when State is StateFound.
type Result struct {
  State State
  Reading *device.Reading
  // SinkErr is the error returned by the sink for Reading, if any. It does not change State.
  SinkErr error
  Elapsed time.Duration
}

func (r Result) String() string {
  switch {
  case r.Reading == nil:
    return fmt.Sprintf("result:%v(elapsed=%v)", r.State, r.Elapsed)
  case r.SinkErr != nil:
    return fmt.Sprintf("result:%v(%v, sink error: %v)", r.State, *r.Reading, r.SinkErr)
  default:
    return fmt.Sprintf("result:%v(%v)", r.State, *r.Reading)
  }
}
