package mqtt

import (
  "context"
  "fmt"
  "sync"
  "time"

  paho "github.com/eclipse/paho.mqtt.golang"
  "github.com/pkg/errors"
  "github.com/rs/zerolog/log"
)

const (
  DefaultPort = 1883
  DefaultTopic = "sensor/h5051"
  DefaultClientID = "govee-capture"

  // QoS 1: the broker acknowledges every message.
  qos byte = 1
  poll = 200 * time.Millisecond
)

var ErrNoServer = errors.New("mqtt: no server configured")

type Options struct {
  Server string
  Port int
  ClientID string
  Username string
  Password string
}

func (o Options) Broker() string {
  port := o.Port
  if port == 0 {
    port = DefaultPort
  }

  return fmt.Sprintf("tcp://%s:%d", o.Server, port)
}

// Client publishes messages to a single broker. The connection is opened by the first
// Publish and kept until Close.
type Client struct {
  opts Options
  client paho.Client

  mu sync.Mutex
}

func NewClient(opts Options) (*Client, error) {
  if opts.Server == "" {
    return nil, ErrNoServer
  }

  if opts.ClientID == "" {
    opts.ClientID = DefaultClientID
  }

  return newClient(opts, paho.NewClient(clientOptions(opts))), nil
}

func newClient(opts Options, client paho.Client) *Client {
  return &Client{
    opts: opts,
    client: client,
  }
}

func clientOptions(opts Options) *paho.ClientOptions {
  co := paho.NewClientOptions()
  co.AddBroker(opts.Broker())
  co.SetClientID(opts.ClientID)
  co.SetCleanSession(true)
  co.SetAutoReconnect(false)
  co.SetConnectTimeout(10 * time.Second)
  co.SetKeepAlive(30 * time.Second)

  if opts.Username != "" {
    co.SetUsername(opts.Username)
    co.SetPassword(opts.Password)
  }

  co.SetOnConnectHandler(func(paho.Client) {
    log.Debug().Str("Broker", opts.Broker()).Msg("mqtt: connected")
  })
  co.SetConnectionLostHandler(func(_ paho.Client, err error) {
    log.Warn().Err(err).Str("Broker", opts.Broker()).Msg("mqtt: connection lost")
  })

  return co
}

func (c *Client) connect(ctx context.Context) error {
  c.mu.Lock()
  defer c.mu.Unlock()

  if c.client.IsConnected() {
    return nil
  }

  log.Debug().
    Str("Broker", c.opts.Broker()).
    Str("ClientID", c.opts.ClientID).
    Bool("Auth", c.opts.Username != "").
    Msg("mqtt: connecting")

  if err := wait(ctx, c.client.Connect()); err != nil {
    return errors.Wrapf(err, "mqtt: connect to %s", c.opts.Broker())
  }

  return nil
}

// Publish sends payload to topic and waits for the broker acknowledgement.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
  if err := c.connect(ctx); err != nil {
    return err
  }

  if err := wait(ctx, c.client.Publish(topic, qos, false, payload)); err != nil {
    return errors.Wrapf(err, "mqtt: publish to %s", topic)
  }

  log.Trace().
    Str("Topic", topic).
    Bytes("Payload", payload).
    Msg("mqtt: published message")

  return nil
}

func (c *Client) Close() {
  c.mu.Lock()
  defer c.mu.Unlock()

  if c.client.IsConnected() {
    c.client.Disconnect(250)
  }
}

func wait(ctx context.Context, token paho.Token) error {
  for !token.WaitTimeout(poll) {
    select {
    case <-ctx.Done():
      return ctx.Err()
    default:
    }
  }

  return token.Error()
}
