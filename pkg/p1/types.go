package p1

import (
	"github.com/mcmd1962/p1-slimmelezer/internal/app/config"
	"github.com/mcmd1962/p1-slimmelezer/internal/domain"
	"github.com/mcmd1962/p1-slimmelezer/internal/ports"
)

// Config re-exports the root configuration struct so embedders can construct
// or modify it programmatically.
type Config = config.Config

type (
	MeterConfig     = config.MeterConfig
	MulticastConfig = config.MulticastConfig
	NATSConfig      = config.NATSConfig
	MetricsConfig   = config.MetricsConfig
	LogConfig       = config.LogConfig
)

// Message is the outbound telegram message handed to publishers.
type Message = domain.Message

// Meta is the timing block attached to every message.
type Meta = domain.Meta

// Source is the inbound byte stream from the meter.
type Source = ports.Source

// Publisher consumes finalized telegram messages.
type Publisher = ports.Publisher

// Observability emits logs and metrics for the reader loop.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// LoadConfig reads, expands, defaults, and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
