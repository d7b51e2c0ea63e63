package reader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mcmd1962/p1-slimmelezer/internal/domain"
	"github.com/mcmd1962/p1-slimmelezer/internal/ports"
)

// footerLen is the footer marker length: "!" plus a 4-character checksum.
const footerLen = 5

const emptyLineBackoff = 100 * time.Millisecond

type frameState int

const (
	awaitingHeader frameState = iota
	inDatagram
)

// Framer groups lines between a header and a footer into datagrams and
// drives the whole read→parse→stamp→publish loop. Invariant: current is
// non-nil exactly while state == inDatagram.
type Framer struct {
	lines  lineSource
	parser *Parser
	clock  *Synchronizer
	pub    ports.Publisher
	obs    ports.Observability

	skipCount int
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	state      frameState
	current    *domain.Datagram
	frameCount uint64
}

func NewFramer(lines lineSource, parser *Parser, clock *Synchronizer, pub ports.Publisher, obs ports.Observability, skipCount int, now func() time.Time) *Framer {
	if now == nil {
		now = time.Now
	}
	return &Framer{
		lines:     lines,
		parser:    parser,
		clock:     clock,
		pub:       pub,
		obs:       obs,
		skipCount: skipCount,
		now:       now,
		sleep:     sleepCtx,
		state:     awaitingHeader,
	}
}

// Run blocks until the context is cancelled or an unrecoverable error
// occurs. A publish failure is the only mid-loop fatal condition; framing
// violations, parse misses, and dropped datagrams keep the loop going.
func (f *Framer) Run(ctx context.Context) error {
	// A connection opened mid-stream likely starts on a partial line; let
	// the framing settle before publishing anything.
	if err := f.skipDatagrams(ctx, f.skipCount); err != nil {
		return err
	}

	for {
		line, err := f.lines.NextLine(ctx)
		if err != nil {
			return err
		}
		if err := f.handleLine(ctx, line); err != nil {
			return err
		}
	}
}

func (f *Framer) handleLine(ctx context.Context, line string) error {
	if len(line) == 0 {
		// Transient read artifact, not a framing problem.
		return f.sleep(ctx, emptyLineBackoff)
	}

	switch f.state {
	case awaitingHeader:
		if strings.HasPrefix(line, "/") {
			f.frameCount++
			f.current = domain.NewDatagram(line, f.frameCount, f.now())
			f.state = inDatagram
			f.obs.LogDebug("header line found",
				ports.Field{Key: "frame", Value: f.frameCount})
			return nil
		}

		f.obs.IncCounter("p1_framing_violations_total", 1)
		f.obs.LogWarn("missed header line, forcing resync",
			ports.Field{Key: "line", Value: line})
		return f.skipDatagrams(ctx, 2)

	case inDatagram:
		if isFooter(line) {
			return f.finalize(line)
		}
		f.parser.ParseLine(f.current, line)
		return nil
	}
	return nil
}

// finalize closes the in-progress datagram and publishes it if the
// mandatory timestamp tag is present. Returns to awaitingHeader either way.
func (f *Framer) finalize(footer string) error {
	d := f.current
	f.current = nil
	f.state = awaitingHeader

	d.Checksum = footer[1:]
	d.FrameEnd = f.now()
	f.obs.ObserveDuration("p1_frame_duration_seconds", d.FrameEnd.Sub(d.FrameStart).Seconds())

	raw, ok := d.RawDeviceTime()
	if !ok {
		f.obs.IncCounter("p1_datagrams_dropped_total", 1)
		f.obs.LogWarn("timestamp tag missing, dropping datagram",
			ports.Field{Key: "tag", Value: domain.TimestampTag},
			ports.Field{Key: "frame", Value: d.FrameNumber})
		return nil
	}

	deviceTime, err := f.clock.ParseDeviceTime(raw)
	if err != nil {
		f.obs.IncCounter("p1_datagrams_dropped_total", 1)
		f.obs.LogWarn("timestamp tag unreadable, dropping datagram",
			ports.Field{Key: "error", Value: err.Error()},
			ports.Field{Key: "frame", Value: d.FrameNumber})
		return nil
	}

	f.clock.Stamp(d, deviceTime)

	msg := domain.NewMessage(d, f.now())
	if err := f.pub.Publish(msg); err != nil {
		f.obs.LogCritical("publish failed", err,
			ports.Field{Key: "publisher", Value: f.pub.Name()})
		return fmt.Errorf("publish datagram %d: %w", d.FrameNumber, err)
	}
	f.obs.IncCounter("p1_datagrams_published_total", 1)
	return nil
}

// skipDatagrams consumes lines until count footer markers have passed. Used
// both for the startup skip and for forced resynchronization after a
// framing violation.
func (f *Framer) skipDatagrams(ctx context.Context, count int) error {
	f.current = nil
	f.state = awaitingHeader

	seen := 0
	for seen < count {
		line, err := f.lines.NextLine(ctx)
		if err != nil {
			return err
		}
		if !isFooter(line) {
			continue
		}
		seen++
		f.obs.IncCounter("p1_datagrams_skipped_total", 1)
		f.obs.LogInfo("skipping datagram",
			ports.Field{Key: "skipped", Value: seen},
			ports.Field{Key: "of", Value: count})
	}
	return nil
}

func isFooter(line string) bool {
	return strings.HasPrefix(line, "!") && len(line) == footerLen
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
