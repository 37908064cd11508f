// Package mqtt connects the event scheduler to a live event feed over MQTT.
// Deployments that replay scripted scenarios leave it disabled.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/uberum/fleetsim/core/events"
	"github.com/uberum/fleetsim/infra/logger"
)

// Config defines the connection parameters for the event feed.
type Config struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Broker    string `json:"broker" yaml:"broker"`
	ClientID  string `json:"client_id" yaml:"client_id"`
	Username  string `json:"username" yaml:"username"`
	Password  string `json:"password" yaml:"password"`
	Topic     string `json:"topic" yaml:"topic"`
	QoS       byte   `json:"qos" yaml:"qos"`
	TimeoutMS int    `json:"timeout_ms" yaml:"timeout_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "fleetsim-feed"
	}
	if c.Topic == "" {
		c.Topic = "fleetsim/events"
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 5000
	}
}

// EventFeed subscribes to an MQTT topic carrying Event records and forwards
// each decoded event to a handler.
type EventFeed struct {
	cli     paho.Client
	cfg     Config
	log     logger.Logger
	handler func(events.Event)
}

// NewEventFeed connects to the broker and subscribes to the event topic.
// Each well-formed message is passed to handler; malformed payloads and
// out-of-range events are logged and dropped.
func NewEventFeed(cfg Config, handler func(events.Event)) (*EventFeed, error) {
	cfg.SetDefaults()
	if cfg.Broker == "" {
		return nil, fmt.Errorf("event feed: broker is required")
	}
	f := &EventFeed{cfg: cfg, log: logger.New("event-feed"), handler: handler}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true)
	opts.OnConnect = func(c paho.Client) {
		f.log.Infof("event feed connected to %s", cfg.Broker)
		if token := c.Subscribe(cfg.Topic, cfg.QoS, f.onMessage); token.Wait() && token.Error() != nil {
			f.log.Errorf("subscribe %s: %v", cfg.Topic, token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		f.log.Warnf("event feed connection lost: %v", err)
	}

	f.cli = paho.NewClient(opts)
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	token := f.cli.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("event feed: connect timeout after %s", timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("event feed: connect: %w", err)
	}
	return f, nil
}

func (f *EventFeed) onMessage(_ paho.Client, msg paho.Message) {
	var ev events.Event
	if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
		f.log.Warnf("drop malformed event payload: %v", err)
		return
	}
	if err := ev.Validate(); err != nil {
		f.log.Warnf("drop invalid event %s: %v", ev.ID, err)
		return
	}
	f.handler(ev)
}

// Close disconnects from the broker.
func (f *EventFeed) Close() {
	if f.cli != nil && f.cli.IsConnected() {
		f.cli.Disconnect(250)
	}
}
