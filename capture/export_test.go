package capture

import "github.com/prometheus/client_golang/prometheus"

func SessionsCounter() *prometheus.CounterVec {
  return sessionsCounter
}

func DecodeFailuresCounter() prometheus.Counter {
  return decodeFailuresCounter
}
