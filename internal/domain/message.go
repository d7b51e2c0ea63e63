package domain

import (
	"math"
	"time"
)

// Meta carries the timing information attached to every published telegram.
// Key names match the wire format consumed by existing listeners.
type Meta struct {
	DatagramTimestamp string  `json:"datagram-timestamp"`
	TelegramTimestamp int64   `json:"telegram-timestamp"`
	ClockDrift        float64 `json:"clock-drift"`
	CurrentTime       float64 `json:"current-time"`
	FrameStartTime    float64 `json:"frame-start-time"`
	FrameEndTime      float64 `json:"frame-end-time"`
	FrameDuration     int64   `json:"frame-time-duration"`
	FrameNumber       uint64  `json:"frame-number"`
}

// Message is the flat structure handed to publishers, one per valid datagram.
type Message struct {
	Meta     Meta           `json:"meta"`
	Telegram map[string]any `json:"telegram"`
}

// NewMessage flattens a finalized datagram into its outbound form.
func NewMessage(d *Datagram, now time.Time) *Message {
	telegram := make(map[string]any, len(d.Fields)+2)
	for k, v := range d.Fields {
		telegram[k] = v
	}
	telegram["header"] = d.Header
	telegram["checksum"] = d.Checksum

	return &Message{
		Meta: Meta{
			DatagramTimestamp: d.DeviceTime.Format("2006-01-02 15:04:05"),
			TelegramTimestamp: d.Corrected.Unix(),
			ClockDrift:        math.Round(d.Drift*1e6) / 1e6,
			CurrentTime:       unixSeconds(now),
			FrameStartTime:    unixSeconds(d.FrameStart),
			FrameEndTime:      unixSeconds(d.FrameEnd),
			FrameDuration:     d.Duration(),
			FrameNumber:       d.FrameNumber,
		},
		Telegram: telegram,
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
