package reader

import (
	"context"
	"errors"
	"time"

	"github.com/mcmd1962/p1-slimmelezer/internal/domain"
	"github.com/mcmd1962/p1-slimmelezer/internal/ports"
)

func amsterdam() *time.Location {
	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		panic(err)
	}
	return loc
}

// timeBase is a fixed summer-time instant matching the device timestamps
// used throughout these tests ("221009..." = 2022-10-09, CEST).
func timeBase() time.Time {
	return time.Date(2022, 10, 9, 12, 34, 56, 0, amsterdam())
}

// fakeObs records counter increments and log calls for assertions.
type fakeObs struct {
	counters map[string]float64
	gauges   map[string]float64
	warns    []string
	infos    []string
	debugs   []string
}

func newFakeObs() *fakeObs {
	return &fakeObs{
		counters: make(map[string]float64),
		gauges:   make(map[string]float64),
	}
}

func (o *fakeObs) LogDebug(msg string, _ ...ports.Field) { o.debugs = append(o.debugs, msg) }
func (o *fakeObs) LogInfo(msg string, _ ...ports.Field) { o.infos = append(o.infos, msg) }
func (o *fakeObs) LogWarn(msg string, _ ...ports.Field) { o.warns = append(o.warns, msg) }
func (o *fakeObs) LogError(msg string, _ error, _ ...ports.Field) {
	o.warns = append(o.warns, msg)
}
func (o *fakeObs) LogCritical(msg string, _ error, _ ...ports.Field) {
	o.warns = append(o.warns, msg)
}
func (o *fakeObs) IncCounter(name string, v float64) { o.counters[name] += v }
func (o *fakeObs) SetGauge(name string, v float64) { o.gauges[name] = v }
func (o *fakeObs) ObserveDuration(name string, v float64) {}

var errScriptExhausted = errors.New("script exhausted")

// scriptedLines replays a fixed line sequence and then fails, ending the
// framer loop.
type scriptedLines struct {
	lines []string
	idx   int
}

func (s *scriptedLines) NextLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.idx >= len(s.lines) {
		return "", errScriptExhausted
	}
	line := s.lines[s.idx]
	s.idx++
	return line, nil
}

// capturePublisher records published messages and can be told to fail.
type capturePublisher struct {
	msgs []*domain.Message
	err  error
}

func (p *capturePublisher) Publish(msg *domain.Message) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *capturePublisher) Name() string { return "capture" }
func (p *capturePublisher) Close() error { return nil }
