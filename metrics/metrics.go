package metrics

import (
  "context"
  "sync"
  "time"

  "github.com/pkg/errors"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/govee-capture/device"
  "github.com/rs/zerolog/log"
)

var (
  descTemperature = prometheus.NewDesc(
    "sensor_temperature_celsius",
    "Temperature reported by the sensor in Celsius.",
    []string{"sensor", "address"},
    nil,
  )

  descHumidity = prometheus.NewDesc(
    "sensor_humidity_ratio",
    "Relative humidity reported by the sensor.",
    []string{"sensor", "address"},
    nil,
  )

  descBattery = prometheus.NewDesc(
    "sensor_battery_ratio",
    "Battery percentage reported by the sensor.",
    []string{"sensor", "address"},
    nil,
  )

  descSignal = prometheus.NewDesc(
    "sensor_signal_dbm",
    "Signal strength of the advertisement the reading was decoded from.",
    []string{"sensor", "address"},
    nil,
  )

  descLastSeen = prometheus.NewDesc(
    "sensor_last_seen_timestamp_seconds",
    "Unix time of the last captured reading.",
    []string{"sensor", "address"},
    nil,
  )
)

// Recorder is a sink remembering the last reading per sensor, exported as gauges.
type Recorder struct {
  mu sync.Mutex
  readings map[string]device.Reading
}

func NewRecorder() *Recorder {
  return &Recorder{readings: make(map[string]device.Reading)}
}

func (r *Recorder) Write(_ context.Context, reading device.Reading) error {
  r.mu.Lock()
  defer r.mu.Unlock()

  r.readings[reading.SensorID] = reading

  return nil
}

func (r *Recorder) Latest() []device.Reading {
  r.mu.Lock()
  defer r.mu.Unlock()

  out := make([]device.Reading, 0, len(r.readings))
  for _, reading := range r.readings {
    out = append(out, reading)
  }

  return out
}

type CollectFunc func() []device.Reading

type collector struct {
  CollectFunc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
  prometheus.DescribeByCollect(c, ch)
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
  for _, reading := range c.CollectFunc() {
    ts := reading.Timestamp
    labels := []string{reading.SensorID, reading.Addr}

    gauge := func(desc *prometheus.Desc, v float64) {
      m := prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, labels...)
      ch <- prometheus.NewMetricWithTimestamp(ts, m)
    }

    gauge(descTemperature, reading.Temperature)
    gauge(descHumidity, reading.Humidity / 100)
    gauge(descBattery, float64(reading.Battery) / 100)
    gauge(descSignal, float64(reading.Signal))
    gauge(descLastSeen, float64(ts.UnixNano()) / float64(time.Second))
  }
}

func RegisterCollector(f CollectFunc, reg prometheus.Registerer) {
  c := &collector{f}

  reg.MustRegister(c)
}

// WriteTextfile dumps g in the node exporter textfile format. The file is replaced
// atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
  if err := prometheus.WriteToTextfile(path, g); err != nil {
    return errors.Wrapf(err, "metrics: write %s", path)
  }

  log.Debug().Str("Path", path).Msg("Metrics written")

  return nil
}
