package messaging

import "time"

type BrokerOpt func(*Broker)

func WithPort(p int) BrokerOpt {
	return func(b *Broker) {
		b.port = p
	}
}

func WithHost(h string) BrokerOpt {
	return func(b *Broker) {
		b.host = h
	}
}

func WithStartupTimeout(d time.Duration) BrokerOpt {
	return func(b *Broker) {
		b.startupTimeout = d
	}
}
