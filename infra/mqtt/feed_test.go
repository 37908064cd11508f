package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uberum/fleetsim/core/events"
	"github.com/uberum/fleetsim/infra/logger"
)

type fakeMessage struct {
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return "fleetsim/events" }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Broker: "tcp://localhost:1883"}
	cfg.SetDefaults()
	assert.Equal(t, "fleetsim-feed", cfg.ClientID)
	assert.Equal(t, "fleetsim/events", cfg.Topic)
	assert.Equal(t, 5000, cfg.TimeoutMS)
}

func TestNewEventFeedRequiresBroker(t *testing.T) {
	_, err := NewEventFeed(Config{}, func(events.Event) {})
	require.Error(t, err)
}

func TestOnMessageForwardsValidEvents(t *testing.T) {
	var got []events.Event
	f := &EventFeed{log: logger.NopLogger{}, handler: func(ev events.Event) { got = append(got, ev) }}

	payload := []byte(`{"id":"jam1","kind":"traffic","edges":["a"],"magnitude":0.5,"start":"2025-06-01T08:00:00Z","duration":600000000000}`)
	f.onMessage(nil, fakeMessage{payload: payload})

	require.Len(t, got, 1)
	assert.Equal(t, "jam1", got[0].ID)
	assert.Equal(t, events.KindTraffic, got[0].Kind)
	assert.Equal(t, 10*time.Minute, got[0].Duration)
}

func TestOnMessageDropsBadPayloads(t *testing.T) {
	calls := 0
	f := &EventFeed{log: logger.NopLogger{}, handler: func(events.Event) { calls++ }}

	f.onMessage(nil, fakeMessage{payload: []byte("not json")})
	// Structurally valid JSON, semantically invalid event.
	f.onMessage(nil, fakeMessage{payload: []byte(`{"id":"x","kind":"traffic","edges":["a"],"magnitude":5,"duration":60000000000}`)})
	assert.Zero(t, calls)
}
