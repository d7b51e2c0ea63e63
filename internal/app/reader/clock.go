package reader

import (
	"fmt"
	"time"

	"github.com/mcmd1962/p1-slimmelezer/internal/domain"
	"github.com/mcmd1962/p1-slimmelezer/internal/ports"
)

// deviceTimeLayout covers the 12 digits of a P1 timestamp ("221009123456");
// the trailing S/W DST marker is handled separately.
const deviceTimeLayout = "060102150405"

// Synchronizer tracks the drift between the meter's embedded clock and wall
// time, re-anchoring at most once per resync window, and derives a corrected
// timestamp per telegram.
type Synchronizer struct {
	period     time.Duration
	loc        *time.Location
	obs        ports.Observability
	now        func() time.Time
	refWall    time.Time
	refDevice  time.Time
	drift      float64
	lastWindow int64
}

// NewSynchronizer seeds both references two full periods in the past so the
// first telegram always triggers an immediate resync instead of reusing a
// meaningless zero drift.
func NewSynchronizer(period time.Duration, loc *time.Location, obs ports.Observability, now func() time.Time) *Synchronizer {
	if now == nil {
		now = time.Now
	}
	seed := now().Add(-2 * period)
	return &Synchronizer{
		period:    period,
		loc:       loc,
		obs:       obs,
		now:       now,
		refWall:   seed,
		refDevice: seed,
	}
}

// ParseDeviceTime decodes the raw timestamp tag value, e.g. "221009123456S".
func (s *Synchronizer) ParseDeviceTime(raw string) (time.Time, error) {
	if len(raw) != len(deviceTimeLayout)+1 {
		return time.Time{}, fmt.Errorf("device timestamp %q: want %d characters", raw, len(deviceTimeLayout)+1)
	}
	marker := raw[len(raw)-1]
	if marker != 'S' && marker != 'W' {
		return time.Time{}, fmt.Errorf("device timestamp %q: unknown dst marker %q", raw, marker)
	}

	t, err := time.ParseInLocation(deviceTimeLayout, raw[:len(raw)-1], s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("device timestamp %q: %w", raw, err)
	}

	if dst := t.IsDST(); dst != (marker == 'S') {
		s.obs.LogWarn("dst marker disagrees with zone",
			ports.Field{Key: "timestamp", Value: raw},
			ports.Field{Key: "zone", Value: s.loc.String()})
	}
	return t, nil
}

// Stamp attaches the corrected timestamp and current drift to a finalized
// datagram. The drift is recomputed only when the wall-time window changed,
// so bursty input still resyncs at most once per period.
func (s *Synchronizer) Stamp(d *domain.Datagram, deviceTime time.Time) {
	now := s.now()

	window := now.Unix() / int64(s.period.Seconds())
	if window != s.lastWindow {
		s.drift = (d.FrameStart.Sub(s.refWall) - deviceTime.Sub(s.refDevice)).Seconds()
		s.refWall = now
		s.refDevice = deviceTime
		s.lastWindow = window
		s.obs.SetGauge("p1_clock_drift_seconds", s.drift)
		s.obs.LogInfo("clock drift resynced",
			ports.Field{Key: "drift_seconds", Value: fmt.Sprintf("%.6f", s.drift)})
	}

	deltaSeconds := int64(deviceTime.Sub(s.refDevice).Seconds())
	d.DeviceTime = deviceTime
	d.Corrected = s.refWall.Add(time.Duration(deltaSeconds) * time.Second).Round(time.Second)
	d.Drift = s.drift
}
