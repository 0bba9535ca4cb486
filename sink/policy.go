package sink

import (
  "context"
  "fmt"
  "strings"
  "time"

  "github.com/robertof/govee-capture/device"
  "github.com/robertof/govee-capture/utils"
  "github.com/rs/zerolog/log"
)

const (
  DefaultMaxRetries = 2
  DefaultBackoff = 500 * time.Millisecond
)

type PolicyMode uint8

const (
  // Report the failure in the session result and carry on.
  PolicyLog PolicyMode = iota
  // Retry with exponential backoff, then behave like PolicyLog.
  PolicyRetry
  // Report the failure and make the process exit with an error.
  PolicyFail
)

func (m PolicyMode) String() string {
  switch m {
  case PolicyLog:
    return "log"
  case PolicyRetry:
    return "retry"
  case PolicyFail:
    return "fail"
  default:
    return fmt.Sprintf("PolicyMode(%d)", m)
  }
}

func ParsePolicyMode(s string) (PolicyMode, error) {
  switch strings.ToLower(strings.TrimSpace(s)) {
  case "", "log":
    return PolicyLog, nil
  case "retry":
    return PolicyRetry, nil
  case "fail":
    return PolicyFail, nil
  default:
    return PolicyLog, fmt.Errorf("unknown sink failure policy %q (must be one of log, retry, fail)", s)
  }
}

type Policy struct {
  Mode PolicyMode
  MaxRetries int
  Backoff time.Duration
}

// Fatal reports whether a failed write should fail the process.
func (p Policy) Fatal() bool {
  return p.Mode == PolicyFail
}

type policySink struct {
  Sink
  policy Policy
}

// WithPolicy applies p to every write on s. Errors returned by the resulting sink always
// wrap ErrSinkWrite.
func WithPolicy(s Sink, p Policy) Sink {
  if p.Mode == PolicyRetry && p.Backoff <= 0 {
    p.Backoff = DefaultBackoff
  }

  return &policySink{Sink: s, policy: p}
}

func (p *policySink) Write(ctx context.Context, reading device.Reading) error {
  err := p.Sink.Write(ctx, reading)

  if p.policy.Mode == PolicyRetry {
    for attempt := 0; err != nil && attempt < p.policy.MaxRetries; attempt++ {
      if utils.ErrorIsAnyOf(err, context.Canceled, context.DeadlineExceeded) {
        break
      }

      backoff := p.policy.Backoff << int64(attempt)

      if backoff < 0 {
        backoff = DefaultBackoff
      }

      log.Debug().
        Err(err).
        Dur("Backoff", backoff).
        Int("RetriesLeft", p.policy.MaxRetries - attempt).
        Msg("Sink write failed - will retry")

      select {
      case <-ctx.Done():
        return fmt.Errorf("%w: %w", ErrSinkWrite, ctx.Err())
      case <-time.After(backoff):
      }

      err = p.Sink.Write(ctx, reading)
    }
  }

  if err != nil {
    return fmt.Errorf("%w: %w", ErrSinkWrite, err)
  }

  return nil
}
