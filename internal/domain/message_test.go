package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageFlattensDatagram(t *testing.T) {
	start := time.Unix(1665311695, 900_000_000)
	end := start.Add(200 * time.Millisecond)

	d := NewDatagram("/ISK5\\2M550T-1013", 42, start)
	d.Fields["1-0:1.7.0"] = int64(424)
	d.Fields[TimestampTag] = "221009123456S"
	d.Checksum = "7B61"
	d.FrameEnd = end
	d.DeviceTime = time.Date(2022, 10, 9, 12, 34, 56, 0, time.UTC)
	d.Corrected = time.Unix(1665311696, 0)
	d.Drift = 1.23456789

	msg := NewMessage(d, end)

	assert.Equal(t, "2022-10-09 12:34:56", msg.Meta.DatagramTimestamp)
	assert.Equal(t, int64(1665311696), msg.Meta.TelegramTimestamp)
	assert.Equal(t, 1.234568, msg.Meta.ClockDrift)
	assert.Equal(t, int64(200), msg.Meta.FrameDuration)
	assert.Equal(t, uint64(42), msg.Meta.FrameNumber)

	assert.Equal(t, "/ISK5\\2M550T-1013", msg.Telegram["header"])
	assert.Equal(t, "7B61", msg.Telegram["checksum"])
	assert.Equal(t, int64(424), msg.Telegram["1-0:1.7.0"])

	// The datagram's own field map is left untouched.
	assert.NotContains(t, d.Fields, "header")
}

func TestMessageWireFormat(t *testing.T) {
	d := NewDatagram("/h", 1, time.Unix(100, 0))
	d.Checksum = "AAAA"
	d.FrameEnd = time.Unix(101, 0)
	d.DeviceTime = time.Unix(100, 0)
	d.Corrected = time.Unix(100, 0)

	raw, err := json.Marshal(NewMessage(d, time.Unix(101, 0)))
	require.NoError(t, err)

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Contains(t, decoded, "meta")
	require.Contains(t, decoded, "telegram")
	assert.Contains(t, decoded["meta"], "datagram-timestamp")
	assert.Contains(t, decoded["meta"], "telegram-timestamp")
	assert.Contains(t, decoded["meta"], "clock-drift")
	assert.Contains(t, decoded["meta"], "frame-time-duration")
	assert.Equal(t, "AAAA", decoded["telegram"]["checksum"])
}
