package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/robertof/govee-capture/device"
	"github.com/robertof/govee-capture/device/govee"
	"github.com/robertof/govee-capture/discovery"
	"github.com/robertof/govee-capture/mqtt"
	"github.com/robertof/govee-capture/report"
	"github.com/robertof/govee-capture/sink"
)

const (
  sinkDisplay = "display"
  sinkStorage = "storage"
  sinkMQTT = "mqtt"
  sinkTextfile = "textfile"

  defaultDuration = 60 * time.Second
  defaultDBPath = "/databases/govee5051.sqlite"
)

type config struct {
  Debug, Trace bool
  Duration time.Duration
  BluetoothDeviceId int
  ActiveScan bool
  Sinks []string
  DBPath string
  MQTT mqtt.Options
  MQTTTopic string
  SinkPolicy sink.Policy
  MetricsTextfile string
  Progress bool
  Discover bool
  DiscoverDuration time.Duration
  DiscoverPrefix string
  Status bool
  StatusWindow time.Duration
  Profiles []device.Profile
}

func (c config) HasSink(name string) bool {
  for _, s := range c.Sinks {
    if s == name {
      return true
    }
  }

  return false
}

type boundProfileList struct {
  device.Factory
  list *[]device.Profile
}

var profileFactories = map[string]device.Factory {
  "govee": &govee.Factory{},
}

func (d *boundProfileList) String() string {
  return ""
}

func (d *boundProfileList) Set(v string) error {
  profile, err := d.FromSpec(device.NewDeviceSpec(v))
  if err != nil {
    return fmt.Errorf("failed to create device profile: %w", err)
  }

  *d.list = append(*d.list, profile)

  return nil
}

type policyModeValue struct {
  mode *sink.PolicyMode
}

func (p policyModeValue) String() string {
  if p.mode == nil {
    return ""
  }

  return p.mode.String()
}

func (p policyModeValue) Set(v string) (err error) {
  *p.mode, err = sink.ParsePolicyMode(v)
  return err
}

// loadDotEnv reads an optional .env file. Variables already set in the environment win.
func loadDotEnv(paths ...string) error {
  err := godotenv.Load(paths...)

  if err != nil && !errors.Is(err, os.ErrNotExist) {
    return fmt.Errorf("failed to load .env: %w", err)
  }

  return nil
}

type env func(string) string

func (e env) String(key, fallback string) string {
  if v := e(key); v != "" {
    return v
  }

  return fallback
}

func (e env) Int(key string, fallback int) int {
  v := e(key)
  if v == "" {
    return fallback
  }

  n, err := strconv.Atoi(v)
  if err != nil {
    log.Warn().Str("Variable", key).Str("Value", v).Msg("Ignoring non-numeric environment variable")
    return fallback
  }

  return n
}

func ParseArgs() config {
  if err := loadDotEnv(); err != nil {
    log.Fatal().Err(err).Msg("Unable to read configuration")
  }

  cfg, err := parseArgs(flag.CommandLine, os.Args[1:], os.Getenv)

  if err != nil {
    fmt.Fprintln(os.Stderr, "Error:", err)
    flag.Usage()
    os.Exit(1)
  }

  return cfg
}

func parseArgs(fs *flag.FlagSet, args []string, getenv func(string) string) (config, error) {
  var cfg config
  var sinks string
  e := env(getenv)

  defaultSinks := []string{sinkDisplay, sinkStorage}
  if e("MQTT_SERVER") != "" {
    defaultSinks = append(defaultSinks, sinkMQTT)
  }

  // LISTENER_DURATION is in seconds.
  duration := defaultDuration
  if secs := e.Int("LISTENER_DURATION", 0); secs > 0 {
    duration = time.Duration(secs) * time.Second
  }

  cfg.MQTT.Username = e("MQTT_USERNAME")
  cfg.MQTT.Password = e("MQTT_PASSWORD")

  fs.DurationVar(&cfg.Duration, "duration", duration, "How long to scan for a sensor before giving up (LISTENER_DURATION)")
  fs.IntVar(&cfg.BluetoothDeviceId, "bluetooth-device", 0, "Bluetooth (HCI) device ID")
  fs.BoolVar(&cfg.ActiveScan, "active-scan", true, "Run active scans, needed to receive the local name of most sensors")
  fs.StringVar(&sinks, "sinks", strings.Join(defaultSinks, ","),
    "Comma separated list of sinks for the captured reading: display, storage, mqtt, textfile")
  fs.StringVar(&cfg.DBPath, "db", e.String("DB_PATH", defaultDBPath), "SQLite database path (DB_PATH)")
  fs.StringVar(&cfg.MQTT.Server, "mqtt-server", e("MQTT_SERVER"), "MQTT broker host (MQTT_SERVER)")
  fs.IntVar(&cfg.MQTT.Port, "mqtt-port", e.Int("MQTT_PORT", mqtt.DefaultPort), "MQTT broker port (MQTT_PORT)")
  fs.StringVar(&cfg.MQTTTopic, "mqtt-topic", e.String("MQTT_TOPIC", mqtt.DefaultTopic), "MQTT topic (MQTT_TOPIC)")
  fs.StringVar(&cfg.MQTT.ClientID, "mqtt-client-id", e.String("MQTT_CLIENT_ID", mqtt.DefaultClientID), "MQTT client ID (MQTT_CLIENT_ID)")
  fs.Var(policyModeValue{&cfg.SinkPolicy.Mode}, "sink-failure", "What to do when a sink fails: log, retry or fail (default log)")
  fs.IntVar(&cfg.SinkPolicy.MaxRetries, "max-retries", sink.DefaultMaxRetries, "Max number of sink retries with -sink-failure=retry")
  fs.DurationVar(&cfg.SinkPolicy.Backoff, "backoff", sink.DefaultBackoff, "Exponential backoff factor for sink retries")
  fs.StringVar(&cfg.MetricsTextfile, "metrics-textfile", "", "Write the reading as Prometheus metrics to this file (node exporter textfile collector)")
  fs.BoolVar(&cfg.Progress, "progress", false, "Show a countdown progress bar while scanning")
  fs.BoolVar(&cfg.Discover, "discover", false, "Discover nearby BLE devices and quit")
  fs.DurationVar(&cfg.DiscoverDuration, "discover-duration", discovery.DefaultDuration, "How long to run discovery for")
  fs.StringVar(&cfg.DiscoverPrefix, "discover-prefix", discovery.DefaultPrefix, "Only report devices whose name starts with this prefix")
  fs.BoolVar(&cfg.Status, "status", false, "Print the readings stored recently and quit")
  fs.DurationVar(&cfg.StatusWindow, "status-window", report.DefaultWindow, "How far back -status looks")
  fs.BoolVar(&cfg.Debug, "debug", false, "Enable debug logs")
  fs.BoolVar(&cfg.Trace, "trace", false, "Enable trace logs")

  for name, factory := range profileFactories {
    boundList := boundProfileList{
      Factory: factory,
      list: &cfg.Profiles,
    }

    help := "Device profile in the form of `key=value,key=value`. Can be repeated; the first matching profile wins."

    if docs, ok := factory.(device.FactoryDocs); ok {
      help += "\n" + docs.Help()
    }

    fs.Var(&boundList, name, help)
  }

  if err := fs.Parse(args); err != nil {
    return cfg, err
  }

  if cfg.Duration <= 0 {
    return cfg, fmt.Errorf("duration must be positive, got %v", cfg.Duration)
  }

  if len(cfg.Profiles) == 0 {
    cfg.Profiles = []device.Profile{govee.H5051()}
  }

  for _, s := range strings.Split(sinks, ",") {
    s = strings.ToLower(strings.TrimSpace(s))

    switch s {
    case "":
      continue
    case sinkDisplay, sinkStorage, sinkMQTT, sinkTextfile:
      cfg.Sinks = append(cfg.Sinks, s)
    default:
      return cfg, fmt.Errorf("unknown sink %q", s)
    }
  }

  if cfg.HasSink(sinkMQTT) && cfg.MQTT.Server == "" {
    return cfg, errors.New("the mqtt sink requires -mqtt-server or MQTT_SERVER")
  }

  if cfg.HasSink(sinkTextfile) && cfg.MetricsTextfile == "" {
    return cfg, errors.New("the textfile sink requires -metrics-textfile")
  }

  if cfg.MetricsTextfile != "" && !cfg.HasSink(sinkTextfile) {
    cfg.Sinks = append(cfg.Sinks, sinkTextfile)
  }

  return cfg, nil
}
