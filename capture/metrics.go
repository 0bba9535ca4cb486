package capture

import (
  "github.com/prometheus/client_golang/prometheus"
)

var (
  sessionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "capture_sessions_total",
    Help: "Capture sessions by terminal state.",
  }, []string{"outcome"})
  decodeFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "capture_decode_failures_total",
    Help: "Matched advertisements whose payload could not be decoded.",
  })
  sinkFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "capture_sink_failures_total",
    Help: "Readings that could not be written to the configured sink.",
  })
)

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    sessionsCounter,
    decodeFailuresCounter,
    sinkFailuresCounter,
  )
}
