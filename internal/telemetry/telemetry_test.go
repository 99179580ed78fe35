package telemetry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blasphemetheus/d2d-responder/internal/radio"
)

// Structure tests that verify the wire shape and config defaults
// without needing a live Redis instance, the same posture the teacher
// takes in redis_context_test.go.

func TestWireEvent_RxIncludesRssiAndSnr(t *testing.T) {
	rssi := -50
	snr := float32(7.5)
	ev := radio.Event{Kind: radio.EventRx, Frame: &radio.RxFrame{Bytes: []byte{0xAB, 0xCD}, RssiDbm: &rssi, SnrDb: &snr}}

	wire := wireEvent{Kind: string(ev.Kind)}
	wire.HexBytes = radio.EncodeHex(ev.Frame.Bytes)
	wire.RssiDbm = ev.Frame.RssiDbm
	wire.SnrDb = ev.Frame.SnrDb

	data, err := json.Marshal(wire)
	require.NoError(t, err)

	var decoded wireEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "rx", decoded.Kind)
	assert.Equal(t, "abcd", decoded.HexBytes)
	require.NotNil(t, decoded.RssiDbm)
	assert.Equal(t, -50, *decoded.RssiDbm)
}

func TestNewRedisPublisher_Defaults(t *testing.T) {
	cfg := RedisConfig{}
	assert.Equal(t, "", cfg.Host)
	assert.Equal(t, 0, cfg.Port)
	assert.Equal(t, "", cfg.Channel)
}

func TestNewRedisPublisher_ConnectFailure(t *testing.T) {
	_, err := NewRedisPublisher(RedisConfig{Host: "invalid-host", Port: 1}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

func TestInfluxWriter_TagsOtherEventsByTagField(t *testing.T) {
	w := NewInfluxWriter(InfluxConfig{URL: "http://localhost:8086", Token: "t", Org: "o", Bucket: "b"}, nil)
	defer w.Close()

	require.NotNil(t, w.write)
}
