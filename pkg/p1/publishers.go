package p1

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mcmd1962/p1-slimmelezer/internal/domain"
)

// ErrChannelPublisherClosed is returned when a channel publisher is written
// to after being closed.
var ErrChannelPublisherClosed = errors.New("p1: channel publisher closed")

// MessageFunc is invoked with each published telegram message.
type MessageFunc func(*Message) error

// NewCallbackPublisher adapts a plain function into a Publisher so callers
// can plug arbitrary handlers without defining structs.
func NewCallbackPublisher(name string, fn MessageFunc) Publisher {
	if name == "" {
		name = "callback"
	}
	return &callbackPublisher{name: name, fn: fn}
}

// NewChannelPublisher exposes messages via a channel; it returns the
// publisher, the read-only channel, and a close function the caller should
// invoke during shutdown.
func NewChannelPublisher(name string, buffer int) (Publisher, <-chan *Message, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan *Message, buffer)
	p := &channelPublisher{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return p, ch, func() { p.close() }
}

// NewFanoutPublisher delivers every message to each of the given publishers
// in order; the first failure aborts the fan-out.
func NewFanoutPublisher(pubs ...Publisher) Publisher {
	return &fanoutPublisher{pubs: pubs}
}

type callbackPublisher struct {
	name string
	fn   MessageFunc
}

func (p *callbackPublisher) Publish(msg *domain.Message) error {
	if p.fn == nil {
		return fmt.Errorf("callback publisher %q: nil handler", p.name)
	}
	return p.fn(msg)
}

func (p *callbackPublisher) Name() string { return p.name }
func (p *callbackPublisher) Close() error { return nil }

type channelPublisher struct {
	name   string
	ch     chan *Message
	closed chan struct{}
	once   sync.Once
}

func (p *channelPublisher) Publish(msg *domain.Message) error {
	select {
	case <-p.closed:
		return ErrChannelPublisherClosed
	default:
	}

	select {
	case <-p.closed:
		return ErrChannelPublisherClosed
	case p.ch <- msg:
		return nil
	}
}

func (p *channelPublisher) Name() string { return p.name }
func (p *channelPublisher) Close() error {
	p.close()
	return nil
}

func (p *channelPublisher) close() {
	p.once.Do(func() {
		close(p.closed)
		close(p.ch)
	})
}

type fanoutPublisher struct {
	pubs []Publisher
}

func (p *fanoutPublisher) Publish(msg *domain.Message) error {
	for _, pub := range p.pubs {
		if err := pub.Publish(msg); err != nil {
			return fmt.Errorf("%s: %w", pub.Name(), err)
		}
	}
	return nil
}

func (p *fanoutPublisher) Name() string {
	if len(p.pubs) == 1 {
		return p.pubs[0].Name()
	}
	return "fanout"
}

func (p *fanoutPublisher) Close() error {
	var errs []error
	for _, pub := range p.pubs {
		if err := pub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
