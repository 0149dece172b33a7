package command

import (
	"fmt"

	"github.com/pixil98/go-errors"
)

type Config struct {
	Logging   LoggingConfig    `json:"logging"`
	Listeners []ListenerConfig `json:"listeners"`
	AdminPort uint16           `json:"admin_port,omitempty"`
	Nats      NatsConfig       `json:"nats"`
	Storage   StorageConfig    `json:"storage"`
	Server    ServerConfig     `json:"server"`
}

func (c *Config) Validate() error {
	el := errors.NewErrorList()

	el.Add(c.Logging.Validate())

	if len(c.Listeners) == 0 {
		el.Add(fmt.Errorf("at least one listener is required"))
	}
	for i, l := range c.Listeners {
		if err := l.Validate(); err != nil {
			el.Add(fmt.Errorf("listener %d: %w", i, err))
		}
	}

	el.Add(c.Nats.Validate())
	el.Add(c.Storage.Validate())
	el.Add(c.Server.Validate())

	return el.Err()
}
