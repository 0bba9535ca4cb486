package sink

import (
  "context"
  "fmt"
  "io"

  "github.com/jedib0t/go-pretty/v6/table"
  "github.com/robertof/govee-capture/device"
)

const DisplayTitle = "H5051 BLE Sensor Telemetry"

// Display prints every reading as a table.
type Display struct {
  w io.Writer
}

func NewDisplay(w io.Writer) *Display {
  return &Display{w: w}
}

func (d *Display) Write(_ context.Context, r device.Reading) error {
  t := table.NewWriter()
  t.SetOutputMirror(d.w)
  t.SetTitle(DisplayTitle)
  t.SetStyle(table.StyleLight)
  t.AppendHeader(table.Row{"Field", "Value"})
  t.AppendRows([]table.Row{
    {"Name", r.SensorID},
    {"Address", r.Addr},
    {"Time", r.Timestamp.Format("2006-01-02 15:04:05")},
    {"Temperature", fmt.Sprintf("%.1f °C / %.1f °F", r.Temperature, r.Fahrenheit())},
    {"Humidity", fmt.Sprintf("%.1f %%", r.Humidity)},
    {"Battery", fmt.Sprintf("%d %%", r.Battery)},
    {"Signal", fmt.Sprintf("%d dBm", r.Signal)},
  })
  t.Render()

  return nil
}
