package capture_test

import (
  "testing"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/govee-capture/capture"
)

func TestRegisterMetrics(t *testing.T) {
  reg := prometheus.NewRegistry()
  capture.RegisterMetrics(reg)

  // counters without observations are still exported; the vector only once labelled.
  capture.SessionsCounter().WithLabelValues("found")

  families, err := reg.Gather()
  if err != nil {
    t.Fatalf("Gather(): got error %v", err)
  }

  got := map[string]bool{}
  for _, f := range families {
    got[f.GetName()] = true
  }

  for _, name := range []string{
    "capture_sessions_total",
    "capture_decode_failures_total",
    "capture_sink_failures_total",
  } {
    if !got[name] {
      t.Fatalf("metric %q not registered, got %v", name, got)
    }
  }
}

func TestStateString(t *testing.T) {
  tests := map[capture.State]string{
    capture.StateRunning: "Running",
    capture.StateFound: "Found",
    capture.StateTimedOut: "TimedOut",
  }

  for state, want := range tests {
    if got := state.String(); got != want {
      t.Fatalf("State(%d).String(): got %q, wanted %q", state, got, want)
    }

    if got := state.Terminal(); got != (state != capture.StateRunning) {
      t.Fatalf("State(%v).Terminal(): got %v", state, got)
    }
  }
}
