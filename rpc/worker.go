package rpc

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// WorkerConfig configures a Worker: the broker backend address to connect
// to, plus the service instance it hosts is supplied separately to NewWorker.
type WorkerConfig struct {
	Backend string

	// HeartbeatInterval overrides HeartbeatIntervalMin when non-zero.
	HeartbeatInterval time.Duration

	// PollTimeout bounds each I/O loop iteration; defaults to 250ms so the
	// reply channel is drained promptly between incoming frames.
	PollTimeout time.Duration
}

// Worker is a long-lived worker hosting one Service instance, connected to
// the broker's backend; it runs in the caller's process (WorkerManager runs
// each instance on its own goroutine). Run is the cooperative I/O loop; each
// inbound request is dispatched to Service's CallRemote on a fresh
// goroutine, all sharing the single reply channel that the I/O loop alone
// drains and writes to the socket.
type Worker struct {
	cfg     WorkerConfig
	service *Service

	sock  Socket
	poll  Poller
	reply chan *Response

	heartbeatInterval time.Duration
	lastSend          time.Time

	wg     sync.WaitGroup
	closed bool
}

// NewWorker connects to cfg.Backend and prepares a Worker serving service.
func NewWorker(transport Transport, cfg WorkerConfig, service *Service) (*Worker, error) {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 250 * time.Millisecond
	}
	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = HeartbeatIntervalMin
	}
	sock, err := transport.NewDealer(cfg.Backend)
	if err != nil {
		return nil, err
	}
	poll, err := transport.NewPoller(sock)
	if err != nil {
		sock.Destroy()
		return nil, err
	}
	return &Worker{
		cfg:               cfg,
		service:           service,
		sock:              sock,
		poll:              poll,
		reply:             make(chan *Response, 256),
		heartbeatInterval: interval,
	}, nil
}

// Run drives the worker's I/O loop until stop is closed. On start it emits
// a HEARTBEAT to announce itself to the broker.
func (w *Worker) Run(stop <-chan struct{}) error {
	log.WithField("backend", w.cfg.Backend).Info("worker starting")
	if err := w.sendHeartbeat(); err != nil {
		return err
	}

	for {
		select {
		case <-stop:
			w.wg.Wait()
			w.drainReplies()
			return w.Close()
		default:
		}

		w.drainReplies()

		ready, err := w.poll.Wait(int(w.cfg.PollTimeout.Milliseconds()))
		if err != nil {
			log.WithError(err).Error("worker poll failed")
			return err
		}
		if ready != nil {
			if err := w.onRequest(); err != nil {
				log.WithError(err).Error("worker: fatal socket error, terminating")
				return err
			}
		}

		w.drainReplies()

		if time.Since(w.lastSend) >= w.heartbeatInterval {
			if err := w.sendHeartbeat(); err != nil {
				return err
			}
		}
	}
}

// Close releases the worker's socket. Idempotent.
func (w *Worker) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.poll.Destroy()
	w.sock.Destroy()
	return nil
}

func (w *Worker) onRequest() error {
	frames, err := w.sock.RecvMessage()
	if err != nil {
		return err
	}
	if len(frames) != 4 {
		log.WithField("frames", len(frames)).Warn("worker: invalid request frame, dropping")
		return nil
	}
	clientID := string(frames[0])
	req, err := DecodeRequest(clientID, frames[1:])
	if err != nil {
		log.WithError(err).Warn("worker: undecodable request, dropping")
		return nil
	}
	req.ReplyTo = w.reply

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.service.CallRemote(req)
	}()
	return nil
}

// drainReplies flushes every reply currently queued to the socket. It is
// the only writer of w.sock; all socket writes are serialized through the
// I/O loop even though replies are produced by concurrent request handlers.
func (w *Worker) drainReplies() {
	for {
		select {
		case resp := <-w.reply:
			frames, err := EncodeResponse(resp)
			if err != nil {
				log.WithError(err).Error("worker: failed encoding response")
				continue
			}
			if err := w.sock.SendMessage(frames); err != nil {
				log.WithError(err).Error("worker: failed sending response")
				continue
			}
			w.lastSend = time.Now()
		default:
			return
		}
	}
}

func (w *Worker) sendHeartbeat() error {
	if err := w.sock.SendMessage(heartbeatFrames()); err != nil {
		return err
	}
	w.lastSend = time.Now()
	return nil
}
