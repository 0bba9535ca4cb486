package report

import (
  "context"
  "fmt"
  "io"
  "time"

  "github.com/jedib0t/go-pretty/v6/table"
  "github.com/jedib0t/go-pretty/v6/text"
  "github.com/robertof/govee-capture/storage"
)

const DefaultWindow = 4 * time.Hour

type Querier interface {
  Since(ctx context.Context, cutoff time.Time) ([]storage.Row, error)
}

// Snapshot is the content of the status view at a point in time.
type Snapshot struct {
  Now time.Time
  Window time.Duration
  // Newest first.
  Rows []storage.Row
}

// Load reads every row stored within window of now.
func Load(ctx context.Context, q Querier, now time.Time, window time.Duration) (Snapshot, error) {
  if window <= 0 {
    window = DefaultWindow
  }

  rows, err := q.Since(ctx, now.Add(-window))
  if err != nil {
    return Snapshot{}, err
  }

  return Snapshot{Now: now, Window: window, Rows: rows}, nil
}

// SinceLatest is the time elapsed since the newest row, false when there is none.
func (s Snapshot) SinceLatest() (time.Duration, bool) {
  if len(s.Rows) == 0 {
    return 0, false
  }

  return s.Now.Sub(s.Rows[0].Timestamp), true
}

func (s Snapshot) Title() string {
  return fmt.Sprintf("Sensor Data (Last %s)", humanize(s.Window))
}

func Render(w io.Writer, s Snapshot) {
  t := table.NewWriter()
  t.SetOutputMirror(w)
  t.SetTitle(s.Title())
  style := table.StyleLight
  style.Format.Footer = text.FormatDefault
  t.SetStyle(style)
  t.AppendHeader(table.Row{"Timestamp", "Sensor", "Temp (°C)", "Temp (°F)", "Humidity (%)", "Battery (%)", "Signal (dBm)"})
  t.SetColumnConfigs([]table.ColumnConfig{
    {Number: 3, Align: text.AlignRight},
    {Number: 4, Align: text.AlignRight},
    {Number: 5, Align: text.AlignRight},
    {Number: 6, Align: text.AlignRight},
    {Number: 7, Align: text.AlignRight},
  })

  for _, row := range s.Rows {
    t.AppendRow(table.Row{
      row.Timestamp.Format(storage.TimestampLayout),
      row.SensorID,
      fmt.Sprintf("%.1f", row.Temperature),
      fmt.Sprintf("%.1f", row.Temperature * 9 / 5 + 32),
      fmt.Sprintf("%.1f", row.Humidity),
      row.Battery,
      row.Signal,
    })
  }

  if since, ok := s.SinceLatest(); ok {
    t.AppendFooter(table.Row{"Last reading", humanize(since) + " ago"})
  } else {
    t.AppendFooter(table.Row{"No readings", ""})
  }

  t.Render()
}

func humanize(d time.Duration) string {
  d = d.Round(time.Second)

  switch {
  case d < time.Minute:
    return fmt.Sprintf("%d seconds", int(d.Seconds()))
  case d < time.Hour:
    return fmt.Sprintf("%d minutes", int(d.Minutes()))
  case d % time.Hour == 0:
    if d == time.Hour {
      return "1 Hour"
    }
    return fmt.Sprintf("%d Hours", int(d.Hours()))
  default:
    return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes()) % 60)
  }
}
