package domain

import "time"

// Datagram is one complete P1 telegram: everything between a header line
// ("/...") and a footer line ("!" + 4-character checksum).
type Datagram struct {
	Header      string
	Checksum    string
	Fields      map[string]any
	FrameNumber uint64
	FrameStart  time.Time
	FrameEnd    time.Time

	// Filled in by the clock synchronizer once the footer is seen.
	DeviceTime time.Time
	Corrected  time.Time
	Drift      float64
}

// TimestampTag is the mandatory field carrying the device clock; datagrams
// without it are dropped before publishing.
const TimestampTag = "0-0:1.0.0"

func NewDatagram(header string, frameNumber uint64, start time.Time) *Datagram {
	return &Datagram{
		Header:      header,
		Fields:      make(map[string]any),
		FrameNumber: frameNumber,
		FrameStart:  start,
	}
}

// RawDeviceTime returns the unparsed value of the timestamp tag, if present.
func (d *Datagram) RawDeviceTime() (string, bool) {
	v, ok := d.Fields[TimestampTag]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Duration is the frame wall-clock duration in whole milliseconds.
func (d *Datagram) Duration() int64 {
	return d.FrameEnd.Sub(d.FrameStart).Milliseconds()
}
