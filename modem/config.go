package modem

import (
	"io"
	"log/slog"
	"slices"
	"time"

	"i4.energy/across/cidmodem/at"
)

// Handler receives completed caller ID frames. It runs on the reader loop,
// so it must return quickly; a slow handler delays every following line.
type Handler func(CallerID)

// Config holds the settings used by New. Build one with NewConfigBuilder.
type Config struct {
	dialer       Dialer
	logger       *slog.Logger
	metrics      *Metrics
	ringTimeout  time.Duration
	tick         time.Duration
	initCommands []string
	required     []string
	handler      Handler
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.ringTimeout <= 0 {
		c.ringTimeout = 10 * time.Second
	}
	if c.tick <= 0 {
		c.tick = time.Second
	}
	if c.initCommands == nil {
		c.initCommands = slices.Clone(at.InitCommands)
	}
	if c.required == nil {
		for _, f := range DefaultRequiredFields {
			c.required = append(c.required, string(f))
		}
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

// WithDialer sets how the transport is opened. Required.
func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

func (b *ConfigBuilder) WithMetrics(m *Metrics) *ConfigBuilder {
	b.config.metrics = m
	return b
}

// WithRingTimeout sets how long to wait for the next line while a call or
// caller ID frame is in progress. Defaults to 10s.
func (b *ConfigBuilder) WithRingTimeout(d time.Duration) *ConfigBuilder {
	b.config.ringTimeout = d
	return b
}

// WithTick sets the dial time unit: the settle delay after the forced
// hang-up and the interval between result polls. Defaults to 1s.
func (b *ConfigBuilder) WithTick(d time.Duration) *ConfigBuilder {
	b.config.tick = d
	return b
}

// WithInitCommands replaces the commands written when the modem is opened.
// An empty, non-nil slice writes nothing.
func (b *ConfigBuilder) WithInitCommands(cmds ...string) *ConfigBuilder {
	b.config.initCommands = append([]string{}, cmds...)
	return b
}

// WithNotify sets the initial required fields and handler. See
// Modem.SetNotify.
func (b *ConfigBuilder) WithNotify(required []string, h Handler) *ConfigBuilder {
	b.config.required = slices.Clone(required)
	b.config.handler = h
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
