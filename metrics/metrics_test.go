package metrics_test

import (
  "context"
  "os"
  "path/filepath"
  "strings"
  "testing"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/prometheus/client_golang/prometheus/testutil"
  "github.com/robertof/govee-capture/device"
  "github.com/robertof/govee-capture/metrics"
)

func recorded(t *testing.T) (*metrics.Recorder, *prometheus.Registry) {
  t.Helper()

  rec := metrics.NewRecorder()
  reg := prometheus.NewRegistry()
  metrics.RegisterCollector(rec.Latest, reg)

  err := rec.Write(context.Background(), device.Reading{
    Timestamp: time.Unix(1714566600, 0),
    Temperature: 21,
    Humidity: 8,
    Battery: 90,
    Signal: -60,
    SensorID: "Govee_H5051_ABCD",
    Addr: "a4:c1:38:00:11:22",
  })

  if err != nil {
    t.Fatalf("Write(): %v", err)
  }

  return rec, reg
}

func TestCollector(t *testing.T) {
  _, reg := recorded(t)

  want := `
# HELP sensor_temperature_celsius Temperature reported by the sensor in Celsius.
# TYPE sensor_temperature_celsius gauge
sensor_temperature_celsius{address="a4:c1:38:00:11:22",sensor="Govee_H5051_ABCD"} 21 1714566600000
# HELP sensor_battery_ratio Battery percentage reported by the sensor.
# TYPE sensor_battery_ratio gauge
sensor_battery_ratio{address="a4:c1:38:00:11:22",sensor="Govee_H5051_ABCD"} 0.9 1714566600000
`

  err := testutil.GatherAndCompare(reg, strings.NewReader(want),
    "sensor_temperature_celsius", "sensor_battery_ratio")

  if err != nil {
    t.Fatalf("GatherAndCompare(): %v", err)
  }
}

func TestRecorder_KeepsLastPerSensor(t *testing.T) {
  rec, reg := recorded(t)

  rec.Write(context.Background(), device.Reading{SensorID: "Govee_H5051_ABCD", Temperature: 22})
  rec.Write(context.Background(), device.Reading{SensorID: "Govee_H5051_EF01", Temperature: 19})

  if got := len(rec.Latest()); got != 2 {
    t.Fatalf("Latest(): got %d readings, wanted 2", got)
  }

  if n, err := testutil.GatherAndCount(reg, "sensor_temperature_celsius"); err != nil || n != 2 {
    t.Fatalf("GatherAndCount(): got %d, %v, wanted 2", n, err)
  }
}

func TestWriteTextfile(t *testing.T) {
  _, reg := recorded(t)
  path := filepath.Join(t.TempDir(), "govee.prom")

  if err := metrics.WriteTextfile(path, reg); err != nil {
    t.Fatalf("WriteTextfile(): %v", err)
  }

  b, err := os.ReadFile(path)
  if err != nil {
    t.Fatalf("ReadFile(): %v", err)
  }

  if !strings.Contains(string(b), `sensor_humidity_ratio{address="a4:c1:38:00:11:22",sensor="Govee_H5051_ABCD"} 0.08`) {
    t.Fatalf("WriteTextfile(): unexpected content:\n%s", b)
  }
}
