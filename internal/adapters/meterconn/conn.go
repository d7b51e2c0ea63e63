package meterconn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/mcmd1962/p1-slimmelezer/internal/ports"
)

// ErrTimeout indicates the idle read deadline expired before any bytes
// arrived. The meter pushes a telegram every second or so; a silent socket
// means the session is dead and must be reopened.
var ErrTimeout = errors.New("meterconn: read timeout")

// ErrConnection indicates the socket failed outright.
var ErrConnection = errors.New("meterconn: connection error")

// Config captures the runtime details required to open the P1 session.
type Config struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	ReadTimeout time.Duration `yaml:"-"`
	DialTimeout time.Duration `yaml:"-"`
}

func (c *Config) ApplyDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 20 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

// Conn owns the TCP session to the meter. The first connect waits one
// second; every subsequent connect waits fifteen, so a rebooting device is
// not hammered while transient faults still recover promptly.
type Conn struct {
	cfg   Config
	obs   ports.Observability
	conn  net.Conn
	delay time.Duration

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, obs ports.Observability) (*Conn, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Conn{
		cfg:   cfg,
		obs:   obs,
		delay: time.Second,
		sleep: sleepCtx,
	}, nil
}

func (c *Conn) address() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

// Connect waits the current pre-connect delay and dials the meter. It does
// not retry internally; callers reconnect on the next read failure.
func (c *Conn) Connect(ctx context.Context) error {
	c.obs.LogInfo("waiting before opening p1 socket",
		ports.Field{Key: "delay", Value: c.delay.String()},
		ports.Field{Key: "address", Value: c.address()})
	if err := c.sleep(ctx, c.delay); err != nil {
		return err
	}
	c.delay = 15 * time.Second

	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.address())
	if err != nil {
		c.obs.LogError("cannot open p1 socket", err,
			ports.Field{Key: "address", Value: c.address()})
		return fmt.Errorf("%w: dial %s: %v", ErrConnection, c.address(), err)
	}

	c.conn = conn
	c.obs.LogInfo("p1 socket opened", ports.Field{Key: "address", Value: c.address()})
	return nil
}

// Read blocks for at most the configured idle timeout. Failures are
// classified as ErrTimeout or ErrConnection so the caller can match them
// structurally instead of swallowing everything.
func (c *Conn) Read(p []byte) (int, error) {
	if c.conn == nil {
		return 0, fmt.Errorf("%w: not connected", ErrConnection)
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return 0, fmt.Errorf("%w: set deadline: %v", ErrConnection, err)
	}

	n, err := c.conn.Read(p)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			c.obs.IncCounter("p1_read_timeouts_total", 1)
			return n, fmt.Errorf("%w after %s", ErrTimeout, c.cfg.ReadTimeout)
		}
		return n, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return n, nil
}

// Reconnect closes the current session and opens a new one, retrying until
// it succeeds or the context is cancelled. The pre-connect delay inside
// Connect paces the retries. Bytes already handed to the caller are
// unaffected.
func (c *Conn) Reconnect(ctx context.Context) error {
	if err := c.Close(); err != nil {
		c.obs.LogWarn("closing p1 socket failed", ports.Field{Key: "error", Value: err.Error()})
	}
	c.obs.IncCounter("p1_reconnects_total", 1)

	for {
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Conn) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
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

var _ ports.Source = (*Conn)(nil)
