package rpc

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Proxy wraps a Broker configured for ModeProxy behind a
// context.Context/sync.WaitGroup lifecycle, the shape the rest of this
// package's ambient services use for long-running components. In ModeProxy
// the Broker forwards frames without heartbeat accounting and picks workers
// round-robin among those that have sent at least one backend frame; it does
// not use the transport's own fair-queue distribution, and a request that
// arrives before any worker has sent a frame is dropped.
type Proxy struct {
	broker *Broker
	name   string
}

// NewProxy builds a transparent proxy between frontend and backend. cfg.Mode
// is forced to ModeProxy regardless of what the caller passed, since a
// Proxy's entire purpose is Mode A behavior.
func NewProxy(name string, transport Transport, cfg BrokerConfig) (*Proxy, error) {
	cfg.Mode = ModeProxy
	broker, err := NewBroker(transport, cfg)
	if err != nil {
		return nil, err
	}
	return &Proxy{broker: broker, name: name}, nil
}

// Start runs the proxy until ctx is cancelled, signalling wg when done.
func (p *Proxy) Start(ctx context.Context, wg *sync.WaitGroup) error {
	if wg != nil {
		defer wg.Done()
	}
	log.WithField("proxy", p.name).Info("proxy starting")

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- p.broker.Run(stop) }()

	select {
	case <-ctx.Done():
		close(stop)
		<-done
		log.WithField("proxy", p.name).Info("proxy stopped")
		return nil
	case err := <-done:
		return err
	}
}
