package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
)

type ServerConfig struct {
	Ruleset        string `json:"ruleset"`
	PingInterval   string `json:"ping_interval,omitempty"`
	ResendInterval string `json:"resend_interval,omitempty"`
	SpoilerDir     string `json:"spoiler_dir,omitempty"`
	MaxAttempts    int    `json:"max_attempts,omitempty"`
	ValidateWorlds bool   `json:"validate_worlds,omitempty"`
}

const (
	defaultPingInterval   = 10 * time.Second
	defaultResendInterval = 5 * time.Second
)

func (c *ServerConfig) Validate() error {
	el := errors.NewErrorList()

	if c.Ruleset == "" {
		el.Add(fmt.Errorf("ruleset is required"))
	}

	for _, iv := range []struct {
		name  string
		value string
	}{
		{"ping_interval", c.PingInterval},
		{"resend_interval", c.ResendInterval},
	} {
		if iv.value == "" {
			continue
		}
		d, err := time.ParseDuration(iv.value)
		if err != nil {
			el.Add(fmt.Errorf("parsing %s: %w", iv.name, err))
		} else if d < time.Second {
			el.Add(fmt.Errorf("%s must be at least 1 second", iv.name))
		}
	}

	if c.MaxAttempts < 0 {
		el.Add(fmt.Errorf("max_attempts must not be negative"))
	}

	return el.Err()
}

func (c *ServerConfig) pingInterval() time.Duration {
	return c.interval(c.PingInterval, defaultPingInterval)
}

func (c *ServerConfig) resendInterval() time.Duration {
	return c.interval(c.ResendInterval, defaultResendInterval)
}

func (c *ServerConfig) interval(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
