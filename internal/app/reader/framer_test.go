package reader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func telegram(tag string, extra ...string) []string {
	lines := []string{"/ISK5\\2M550T-1013"}
	if tag != "" {
		lines = append(lines, tag)
	}
	lines = append(lines, extra...)
	return append(lines, "!7B61")
}

func newTestFramer(t *testing.T, lines []string, skip int) (*Framer, *capturePublisher, *fakeObs) {
	t.Helper()
	obs := newFakeObs()
	clk := &fixedClock{t: timeBase()}
	sync := NewSynchronizer(day, amsterdam(), obs, clk.now)
	pub := &capturePublisher{}
	f := NewFramer(&scriptedLines{lines: lines}, NewParser(obs), sync, pub, obs, skip, clk.now)
	f.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return f, pub, obs
}

func runFramer(t *testing.T, f *Framer) error {
	t.Helper()
	err := f.Run(context.Background())
	require.Error(t, err, "framer should stop when the script runs out")
	return err
}

func TestFramerPublishesBoundedDatagram(t *testing.T) {
	lines := telegram("0-0:1.0.0(221009123456S)", "1-0:1.7.0(00.424*kW)")
	f, pub, obs := newTestFramer(t, lines, 0)

	err := runFramer(t, f)
	assert.ErrorIs(t, err, errScriptExhausted)

	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, "/ISK5\\2M550T-1013", msg.Telegram["header"])
	assert.Equal(t, "7B61", msg.Telegram["checksum"])
	assert.Equal(t, int64(424), msg.Telegram["1-0:1.7.0"])
	assert.Equal(t, "221009123456S", msg.Telegram["0-0:1.0.0"])
	assert.Equal(t, uint64(1), msg.Meta.FrameNumber)
	assert.Equal(t, "2022-10-09 12:34:56", msg.Meta.DatagramTimestamp)
	assert.Equal(t, 1.0, obs.counters["p1_datagrams_published_total"])
}

func TestFramerStartupSkip(t *testing.T) {
	var lines []string
	// Ten noise datagrams that must be consumed unpublished.
	for i := 0; i < 10; i++ {
		lines = append(lines, telegram("0-0:1.0.0(221009123456S)")...)
	}
	lines = append(lines, telegram("0-0:1.0.0(221009123500S)")...)

	f, pub, obs := newTestFramer(t, lines, 10)
	runFramer(t, f)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "221009123500S", pub.msgs[0].Telegram["0-0:1.0.0"])
	assert.Equal(t, uint64(1), pub.msgs[0].Meta.FrameNumber)
	assert.Equal(t, 10.0, obs.counters["p1_datagrams_skipped_total"])
}

func TestFramerDropsDatagramWithoutTimestamp(t *testing.T) {
	lines := telegram("", "1-0:1.7.0(00.424*kW)")
	lines = append(lines, telegram("0-0:1.0.0(221009123456S)")...)

	f, pub, obs := newTestFramer(t, lines, 0)
	runFramer(t, f)

	// Only the second, complete datagram is published; the loop survived.
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, uint64(2), pub.msgs[0].Meta.FrameNumber)
	assert.Equal(t, 1.0, obs.counters["p1_datagrams_dropped_total"])
}

func TestFramerForcedResyncAfterMissedHeader(t *testing.T) {
	lines := []string{
		"1-0:1.7.0(00.424*kW)", // data line while awaiting a header
		"1-0:1.8.1(000038.851*kWh)",
		"!AAAA",
		"0-0:1.0.0(221009120000S)",
		"!BBBB",
	}
	lines = append(lines, telegram("0-0:1.0.0(221009123456S)")...)

	f, pub, obs := newTestFramer(t, lines, 0)
	runFramer(t, f)

	assert.Equal(t, 1.0, obs.counters["p1_framing_violations_total"])
	assert.Equal(t, 2.0, obs.counters["p1_datagrams_skipped_total"])
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "7B61", pub.msgs[0].Telegram["checksum"])
}

func TestFramerEmptyLineIsBackoffNotError(t *testing.T) {
	lines := []string{
		"/ISK5\\2M550T-1013",
		"",
		"0-0:1.0.0(221009123456S)",
		"!7B61",
	}
	f, pub, _ := newTestFramer(t, lines, 0)

	var slept int
	f.sleep = func(ctx context.Context, d time.Duration) error {
		slept++
		assert.Equal(t, emptyLineBackoff, d)
		return nil
	}

	runFramer(t, f)

	assert.Equal(t, 1, slept)
	require.Len(t, pub.msgs, 1)
}

func TestFramerUnreadableTimestampDropsDatagram(t *testing.T) {
	lines := telegram("0-0:1.0.0(not-a-timestamp)")
	f, pub, obs := newTestFramer(t, lines, 0)
	runFramer(t, f)

	assert.Empty(t, pub.msgs)
	assert.Equal(t, 1.0, obs.counters["p1_datagrams_dropped_total"])
}

func TestFramerPublishFailureIsFatal(t *testing.T) {
	lines := telegram("0-0:1.0.0(221009123456S)")
	f, pub, _ := newTestFramer(t, lines, 0)
	pub.err = errors.New("multicast down")

	err := f.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "multicast down")
	assert.NotErrorIs(t, err, errScriptExhausted)
}

func TestFramerStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f, _, _ := newTestFramer(t, telegram("0-0:1.0.0(221009123456S)"), 0)
	err := f.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
