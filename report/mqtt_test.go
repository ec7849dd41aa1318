package report

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/sramboard/config"
	"lautenbacher.net/sramboard/sram"
	"lautenbacher.net/sramboard/tracker"
)

type fakeToken struct {
	done bool
	err  error
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.done {
		close(ch)
	}
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	sent  []message
	token *fakeToken
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.sent = append(c.sent, message{topic, qos, retained, payload.([]byte)})
	return c.token
}

func TestMQTT_Result(t *testing.T) {
	fc := &fakeClient{token: &fakeToken{done: true}}
	m := newMQTT(fc, config.MQTTConfig{Topic: "lab/sram", QoS: 1, Retained: true})

	r := sram.Verify(0x1ABCD, []byte{0xBE, 0xEF}, []byte{0xBE, 0xEE})
	r.Cycle = 7
	r.Time = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.Result(r))

	require.Len(t, fc.sent, 1)
	msg := fc.sent[0]
	assert.Equal(t, "lab/sram", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, msg.retained)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, "1ABCD", got["address"])
	assert.Equal(t, "BEEF", got["sent"])
	assert.Equal(t, "BEEE", got["received"])
	assert.Equal(t, "mismatch", got["outcome"])
	assert.Equal(t, float64(7), got["cycle"])
}

func TestMQTT_Snapshot(t *testing.T) {
	fc := &fakeClient{token: &fakeToken{done: true}}
	m := newMQTT(fc, config.MQTTConfig{Topic: "lab/sram"})

	snap := tracker.Snapshot{
		Sample:   0b1001,
		Changes:  0b0001,
		Polls:    3,
		Channels: []tracker.ChannelSnapshot{{Name: "mosi", Bits: 0b0110, Width: 4, Updates: 2}},
	}
	require.NoError(t, m.Snapshot(snap))
	require.Len(t, fc.sent, 1)
	assert.Equal(t, "lab/sram/tracker", fc.sent[0].topic)
	assert.JSONEq(t, `{"sample":"00001001","changes":"00000001","polls":3,
		"channels":[{"name":"mosi","history":"0110","updates":2}]}`, string(fc.sent[0].payload))
}

func TestMQTT_Errors(t *testing.T) {
	fc := &fakeClient{token: &fakeToken{done: false}}
	m := newMQTT(fc, config.MQTTConfig{Topic: "t"})
	assert.ErrorIs(t, m.Result(sram.Result{}), ErrTimeout)

	fc.token = &fakeToken{done: true, err: errors.New("not connected")}
	assert.ErrorContains(t, m.Result(sram.Result{}), "not connected")
	m.Close()
}

func TestNew_WithoutBrokerIsNop(t *testing.T) {
	r := New(config.MQTTConfig{})
	assert.IsType(t, Nop{}, r)
	assert.NoError(t, r.Result(sram.Result{}))
	assert.NoError(t, r.Snapshot(tracker.Snapshot{}))
	r.Close()
}
