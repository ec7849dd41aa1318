// Package report publishes test results and signal histories to an MQTT
// broker for dashboards and long running soak tests.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"lautenbacher.net/sramboard/config"
	"lautenbacher.net/sramboard/sram"
	"lautenbacher.net/sramboard/tracker"
)

const publishTimeout = 2 * time.Second

var ErrTimeout = errors.New("mqtt publish timed out")

// Reporter receives everything worth publishing.
type Reporter interface {
	Result(r sram.Result) error
	Snapshot(s tracker.Snapshot) error
	Close()
}

// Nop discards everything.
type Nop struct{}

func (Nop) Result(sram.Result) error        { return nil }
func (Nop) Snapshot(tracker.Snapshot) error { return nil }
func (Nop) Close()                          {}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes JSON messages below a base topic: results on the topic
// itself, tracker snapshots on <topic>/tracker.
type MQTT struct {
	client   publisher
	close    func()
	topic    string
	qos      byte
	retained bool
}

// New returns Nop when no broker is configured, otherwise an MQTT
// reporter. A broker that is down is not fatal; the client reconnects in
// the background.
func New(cfg config.MQTTConfig) Reporter {
	if cfg.Broker == "" {
		return Nop{}
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	c := mqtt.NewClient(opts)
	if tok := c.Connect(); tok.WaitTimeout(publishTimeout) && tok.Error() != nil {
		slog.Error("MQTT connect failed", "broker", cfg.Broker, "error", tok.Error())
	}
	slog.Info("Reporting to MQTT", "broker", cfg.Broker, "topic", cfg.Topic)
	m := newMQTT(c, cfg)
	m.close = func() { c.Disconnect(250) }
	return m
}

func newMQTT(p publisher, cfg config.MQTTConfig) *MQTT {
	return &MQTT{client: p, close: func() {}, topic: cfg.Topic, qos: cfg.QoS, retained: cfg.Retained}
}

type resultMessage struct {
	Cycle    uint64    `json:"cycle"`
	Address  string    `json:"address"`
	Sent     string    `json:"sent"`
	Received string    `json:"received"`
	Outcome  string    `json:"outcome"`
	Time     time.Time `json:"time"`
}

type channelMessage struct {
	Name    string `json:"name"`
	History string `json:"history"`
	Updates uint64 `json:"updates"`
}

type snapshotMessage struct {
	Sample   string           `json:"sample"`
	Changes  string           `json:"changes"`
	Polls    uint64           `json:"polls"`
	Channels []channelMessage `json:"channels"`
}

func (m *MQTT) publish(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	token := m.client.Publish(topic, m.qos, m.retained, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: %s", ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (m *MQTT) Result(r sram.Result) error {
	return m.publish(m.topic, resultMessage{
		Cycle:    r.Cycle,
		Address:  fmt.Sprintf("%05X", r.Address),
		Sent:     fmt.Sprintf("%X", r.Sent),
		Received: fmt.Sprintf("%X", r.Received),
		Outcome:  r.Outcome.String(),
		Time:     r.Time,
	})
}

func (m *MQTT) Snapshot(s tracker.Snapshot) error {
	msg := snapshotMessage{
		Sample:  fmt.Sprintf("%08b", s.Sample),
		Changes: fmt.Sprintf("%08b", s.Changes),
		Polls:   s.Polls,
	}
	for _, c := range s.Channels {
		msg.Channels = append(msg.Channels, channelMessage{Name: c.Name, History: c.String(), Updates: c.Updates})
	}
	return m.publish(m.topic+"/tracker", msg)
}

func (m *MQTT) Close() { m.close() }
