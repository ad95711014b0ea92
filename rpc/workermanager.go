package rpc

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// WorkerManager spawns and supervises a fixed-size pool of Worker instances
// against one broker backend address, restarting any that exit with an
// error until stop is closed. Each instance gets its own Service built by
// factory, mirroring the server_factory(instances=N) configuration shape.
type WorkerManager struct {
	transport Transport
	cfg       WorkerConfig
	instances int
	factory   func() *Service

	restartDelay time.Duration

	mu     sync.Mutex
	active map[int]*Worker
}

// NewWorkerManager returns a WorkerManager ready for Run. instances <= 0 is
// treated as 1.
func NewWorkerManager(transport Transport, cfg WorkerConfig, instances int, factory func() *Service) *WorkerManager {
	if instances <= 0 {
		instances = 1
	}
	return &WorkerManager{
		transport:    transport,
		cfg:          cfg,
		instances:    instances,
		factory:      factory,
		restartDelay: 1 * time.Second,
		active:       make(map[int]*Worker),
	}
}

// Run spawns m.instances worker goroutines and blocks until stop is closed
// and every worker has been reaped (its socket and poller destroyed).
func (m *WorkerManager) Run(stop <-chan struct{}) error {
	var wg sync.WaitGroup
	for i := 0; i < m.instances; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			m.supervise(id, stop)
		}(i)
	}
	wg.Wait()
	return nil
}

// ActiveCount returns the number of worker instances currently connected.
func (m *WorkerManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *WorkerManager) supervise(id int, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		worker, err := NewWorker(m.transport, m.cfg, m.factory())
		if err != nil {
			log.WithError(err).WithField("instance", id).Error("worker manager: failed to start instance, retrying")
			if !waitOrStop(stop, m.restartDelay) {
				return
			}
			continue
		}

		m.track(id, worker)
		runErr := worker.Run(stop)
		m.untrack(id)

		select {
		case <-stop:
			return
		default:
		}

		if runErr != nil {
			log.WithError(runErr).WithField("instance", id).Warn("worker manager: instance exited, restarting")
			if !waitOrStop(stop, m.restartDelay) {
				return
			}
		}
	}
}

func (m *WorkerManager) track(id int, w *Worker) {
	m.mu.Lock()
	m.active[id] = w
	m.mu.Unlock()
}

func (m *WorkerManager) untrack(id int) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

// waitOrStop sleeps for d, returning false early if stop closes first.
func waitOrStop(stop <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}
