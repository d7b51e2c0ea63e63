package natspub

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/mcmd1962/p1-slimmelezer/internal/domain"
	"github.com/mcmd1962/p1-slimmelezer/internal/ports"
)

const msgIDHeader = "Nats-Msg-Id"

// Publisher republishes telegrams on a NATS subject for listeners that
// prefer a broker over raw multicast. Same contract as the multicast sink:
// a publish failure is unrecoverable.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

func New(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("p1-slimmelezer"))
	if err != nil {
		return nil, fmt.Errorf("natspub: connect %s: %w", url, err)
	}
	return &Publisher{nc: nc, subject: subject}, nil
}

func (p *Publisher) Name() string {
	return "nats " + p.subject
}

func (p *Publisher) Publish(msg *domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("natspub: marshal message: %w", err)
	}

	m := nats.NewMsg(p.subject)
	m.Data = payload
	m.Header.Set(msgIDHeader, uuid.NewString())

	if err := p.nc.PublishMsg(m); err != nil {
		return fmt.Errorf("natspub: publish %s: %w", p.subject, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	err := p.nc.Drain()
	p.nc = nil
	return err
}

var _ ports.Publisher = (*Publisher)(nil)
