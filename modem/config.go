package modem

import (
	"fmt"
	"log/slog"
	"time"

	"i4.energy/across/cellular/mux"
)

// Config holds the settings of a Modem. Build it with NewConfigBuilder.
type Config struct {
	dialer           Dialer
	simPIN           string
	atTimeout        time.Duration
	initTimeout      time.Duration
	smsTimeout       time.Duration
	attachTimeout    time.Duration
	socketCount      int
	registration     RegistrationPoll
	simReady         pollConfig
	attachRetryDelay time.Duration
	dnsPrimary       string
	dnsSecondary     string
	liveness         func()
	logger           *slog.Logger
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	if c.socketCount < 1 || c.socketCount > mux.MaxCapacity {
		return fmt.Errorf("%w: %d", ErrInvalidSocketCount, c.socketCount)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.atTimeout == 0 {
		c.atTimeout = 5 * time.Second
	}
	if c.initTimeout == 0 {
		c.initTimeout = 30 * time.Second
	}
	if c.smsTimeout == 0 {
		c.smsTimeout = 10 * time.Second
	}
	if c.attachTimeout == 0 {
		c.attachTimeout = 150 * time.Second
	}
	if c.socketCount == 0 {
		// BG96 supports 12 simultaneous connect IDs
		c.socketCount = 12
	}
	if c.registration.Timeout == 0 {
		c.registration.Timeout = 60 * time.Second
	}
	if c.registration.Interval == 0 {
		c.registration.Interval = 2 * time.Second
	}
	if c.attachRetryDelay == 0 {
		c.attachRetryDelay = 2 * time.Second
	}
	if c.dnsPrimary == "" {
		c.dnsPrimary = "8.8.8.8"
	}
	if c.dnsSecondary == "" {
		c.dnsSecondary = "8.8.4.4"
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

func (b *ConfigBuilder) WithSimPIN(pin string) *ConfigBuilder {
	b.config.simPIN = pin
	return b
}

// WithATTimeout sets the default response timeout of ordinary commands.
func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.atTimeout = d
	return b
}

// WithInitTimeout bounds the whole initialization sequence run by New.
func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.initTimeout = d
	return b
}

// WithSMSTimeout sets how long SendSMS waits for the network to accept a message.
func (b *ConfigBuilder) WithSMSTimeout(d time.Duration) *ConfigBuilder {
	b.config.smsTimeout = d
	return b
}

// WithAttachTimeout sets the response timeout of the PDP activation and
// packet domain attach commands.
func (b *ConfigBuilder) WithAttachTimeout(d time.Duration) *ConfigBuilder {
	b.config.attachTimeout = d
	return b
}

// WithSocketCount sets the multiplexing limit of the modem.
func (b *ConfigBuilder) WithSocketCount(n int) *ConfigBuilder {
	b.config.socketCount = n
	return b
}

// WithRegistrationPoll sets the default timeout and interval used while
// waiting for network registration.
func (b *ConfigBuilder) WithRegistrationPoll(timeout, interval time.Duration) *ConfigBuilder {
	b.config.registration.Timeout = timeout
	b.config.registration.Interval = interval
	return b
}

// WithSIMReadyPoll sets how long and how often the SIM status is polled
// after the PIN was entered. Zero values keep the defaults of 30s and 500ms.
func (b *ConfigBuilder) WithSIMReadyPoll(timeout, interval time.Duration) *ConfigBuilder {
	b.config.simReady.Timeout = timeout
	b.config.simReady.Interval = interval
	return b
}

func (b *ConfigBuilder) WithAttachRetryDelay(d time.Duration) *ConfigBuilder {
	b.config.attachRetryDelay = d
	return b
}

func (b *ConfigBuilder) WithDNS(primary, secondary string) *ConfigBuilder {
	b.config.dnsPrimary = primary
	b.config.dnsSecondary = secondary
	return b
}

// WithLivenessHook installs a function called on every iteration of the
// registration and attach loops, e.g. to kick a watchdog.
func (b *ConfigBuilder) WithLivenessHook(fn func()) *ConfigBuilder {
	b.config.liveness = fn
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// Build applies defaults and validates the configuration.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	c.setDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
