package sink

import (
  "context"
  "encoding/json"
  "strconv"

  "github.com/pkg/errors"
  "github.com/robertof/govee-capture/device"
)

// Publisher is implemented by *mqtt.Client.
type Publisher interface {
  Publish(ctx context.Context, topic string, payload []byte) error
}

// Payload is the message body. Temperature and humidity are strings with one decimal.
type Payload struct {
  Temperature string `json:"temperature"`
  Humidity string `json:"humidity"`
  Battery int `json:"battery"`
  Signal int `json:"signal"`
}

func NewPayload(r device.Reading) Payload {
  return Payload{
    Temperature: strconv.FormatFloat(r.Temperature, 'f', 1, 64),
    Humidity: strconv.FormatFloat(r.Humidity, 'f', 1, 64),
    Battery: int(r.Battery),
    Signal: r.Signal,
  }
}

// Message publishes every reading as a JSON payload on a fixed topic.
type Message struct {
  publisher Publisher
  topic string
}

func NewMessage(p Publisher, topic string) *Message {
  return &Message{publisher: p, topic: topic}
}

func (m *Message) Write(ctx context.Context, reading device.Reading) error {
  payload, err := json.Marshal(NewPayload(reading))
  if err != nil {
    return errors.Wrap(err, "message: encode payload")
  }

  return m.publisher.Publish(ctx, m.topic, payload)
}
