package reader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcmd1962/p1-slimmelezer/internal/domain"
)

const day = 24 * time.Hour

// fixedClock lets tests move wall time explicitly.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time { return c.t }

func newTestSync(t *testing.T, start time.Time) (*Synchronizer, *fixedClock, *fakeObs) {
	t.Helper()
	clk := &fixedClock{t: start}
	obs := newFakeObs()
	return NewSynchronizer(day, amsterdam(), obs, clk.now), clk, obs
}

func TestParseDeviceTime(t *testing.T) {
	s, _, _ := newTestSync(t, timeBase())

	got, err := s.ParseDeviceTime("221009123456S")
	require.NoError(t, err)
	assert.True(t, got.Equal(timeBase()), "got %s", got)

	winter := time.Date(2022, 12, 9, 12, 34, 56, 0, amsterdam())
	got, err = s.ParseDeviceTime("221209123456W")
	require.NoError(t, err)
	assert.True(t, got.Equal(winter), "got %s", got)
}

func TestParseDeviceTimeRejectsMalformed(t *testing.T) {
	s, _, _ := newTestSync(t, timeBase())

	for _, raw := range []string{"", "2210091234S", "221009123456X", "22100912345zS", "221009123456SW"} {
		_, err := s.ParseDeviceTime(raw)
		assert.Error(t, err, "raw %q", raw)
	}
}

func TestFirstDatagramTriggersResync(t *testing.T) {
	base := timeBase()
	s, _, obs := newTestSync(t, base)

	d := domain.NewDatagram("/h", 1, base)
	device := base.Add(-time.Second) // device clock runs 1s behind

	s.Stamp(d, device)

	// References were seeded two periods back, so the computed drift is the
	// device lag itself.
	assert.InDelta(t, 1.0, d.Drift, 1e-9)
	assert.Equal(t, base.Unix(), d.Corrected.Unix())
	assert.Contains(t, obs.infos, "clock drift resynced")
	assert.InDelta(t, 1.0, obs.gauges["p1_clock_drift_seconds"], 1e-9)
}

func TestDriftReusedWithinOneWindow(t *testing.T) {
	base := timeBase()
	s, clk, obs := newTestSync(t, base)

	device := base
	first := domain.NewDatagram("/h", 1, base)
	s.Stamp(first, device)
	resyncs := len(obs.infos)

	// Burst of datagrams within the same window: drift must not move.
	for i := 1; i <= 5; i++ {
		clk.t = base.Add(time.Duration(i) * 10 * time.Second)
		d := domain.NewDatagram("/h", uint64(i+1), clk.t)
		s.Stamp(d, device.Add(time.Duration(i)*10*time.Second))

		assert.Equal(t, first.Drift, d.Drift, "datagram %d", i)
	}
	assert.Equal(t, resyncs, len(obs.infos), "no further resync logs expected")
}

func TestDriftRecomputedInNextWindow(t *testing.T) {
	base := timeBase()
	s, clk, _ := newTestSync(t, base)

	s.Stamp(domain.NewDatagram("/h", 1, base), base)

	// Next day: device has fallen another 3 seconds behind.
	clk.t = base.Add(day)
	d := domain.NewDatagram("/h", 2, clk.t)
	s.Stamp(d, base.Add(day-3*time.Second))

	assert.InDelta(t, 3.0, d.Drift, 1e-9)
}

func TestCorrectedTimestampFollowsDeviceDelta(t *testing.T) {
	base := timeBase()
	s, clk, _ := newTestSync(t, base)

	s.Stamp(domain.NewDatagram("/h", 1, base), base)

	// 30 device seconds later, still in the same window: the corrected time
	// is the anchor plus the device delta, regardless of wall time.
	clk.t = base.Add(31 * time.Second)
	d := domain.NewDatagram("/h", 2, clk.t)
	s.Stamp(d, base.Add(30*time.Second))

	assert.Equal(t, base.Add(30*time.Second).Unix(), d.Corrected.Unix())
}
