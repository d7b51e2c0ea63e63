package multicast

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/net/ipv4"

	"github.com/mcmd1962/p1-slimmelezer/internal/domain"
	"github.com/mcmd1962/p1-slimmelezer/internal/ports"
)

// Publisher sends each telegram as one JSON datagram to a multicast group.
// It performs no retry: listeners are on the local segment, so a send
// failure means the environment is broken beyond what the process can fix.
type Publisher struct {
	conn *net.UDPConn
	dst  *net.UDPAddr
}

func New(address string, port, ttl int) (*Publisher, error) {
	group := net.ParseIP(address)
	if group == nil || !group.IsMulticast() {
		return nil, fmt.Errorf("multicast: %q is not a multicast address", address)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("multicast: open socket: %w", err)
	}

	if err := ipv4.NewPacketConn(conn).SetMulticastTTL(ttl); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("multicast: set ttl %d: %w", ttl, err)
	}

	return &Publisher{
		conn: conn,
		dst:  &net.UDPAddr{IP: group, Port: port},
	}, nil
}

func (p *Publisher) Name() string {
	return "multicast " + net.JoinHostPort(p.dst.IP.String(), strconv.Itoa(p.dst.Port))
}

func (p *Publisher) Publish(msg *domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("multicast: marshal message: %w", err)
	}
	if _, err := p.conn.WriteToUDP(payload, p.dst); err != nil {
		return fmt.Errorf("multicast: send to %s: %w", p.dst, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

var _ ports.Publisher = (*Publisher)(nil)
