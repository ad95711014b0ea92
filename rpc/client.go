package rpc

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ClientConfig configures a Client: the broker frontend address, an
// optional pre-declared method allowlist, and the heartbeat interval for
// the liveness monitor.
type ClientConfig struct {
	Address string

	// Methods pre-declares the allowed method set. If empty, the client
	// bootstraps via a client_config call.
	Methods []string

	// HeartbeatInterval is the period of the liveness probe. Zero disables
	// the liveness probe entirely.
	HeartbeatInterval time.Duration

	// PollTimeout bounds each send/receive loop iteration; defaults to
	// 100ms.
	PollTimeout time.Duration
}

// Client owns an outgoing request queue, a live-results registry keyed by
// request id, and drives two cooperative loops (Run for send/receive,
// DispatchResults for result/observer dispatch).
type Client struct {
	cfg      ClientConfig
	clientID string

	sock Socket
	poll Poller

	queueMu sync.Mutex
	queue   []*Request

	resultsMu sync.Mutex
	results   map[string]*DeferredResult

	methodsMu sync.RWMutex
	allowed   map[string]bool
	bootOK    bool
	bootErr   error

	lastRecv time.Time
	ready    bool
	readyMu  sync.Mutex

	closed bool
}

// NewClient connects to cfg.Address and, unless cfg.Methods was supplied,
// enqueues a client_config request to populate the allowed method set. The
// request is only sent and its result observed once the caller starts Run
// and DispatchResults in their own goroutines; call Bootstrap afterwards to
// block until it completes.
func NewClient(transport Transport, cfg ClientConfig) (*Client, error) {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 100 * time.Millisecond
	}
	sock, err := transport.NewDealer(cfg.Address)
	if err != nil {
		return nil, err
	}
	poll, err := transport.NewPoller(sock)
	if err != nil {
		sock.Destroy()
		return nil, err
	}

	c := &Client{
		cfg:      cfg,
		clientID: uuid.NewString(),
		sock:     sock,
		poll:     poll,
		results:  make(map[string]*DeferredResult),
		allowed:  make(map[string]bool),
		lastRecv: time.Now(),
		ready:    true,
	}

	if len(cfg.Methods) > 0 {
		for _, m := range cfg.Methods {
			c.allowed[m] = true
		}
		c.bootOK = true
	} else {
		if _, err := c.callRemote(MethodClientConfig, nil); err != nil {
			poll.Destroy()
			sock.Destroy()
			return nil, err
		}
	}
	return c, nil
}

// Run drives the send/receive loop until stop is closed: polls the socket
// for inbound responses, demultiplexing by request id into the results
// registry, and sends at most one queued request per iteration.
func (c *Client) Run(stop <-chan struct{}) error {
	log.WithFields(log.Fields{"address": c.cfg.Address, "client_id": c.clientID}).Info("client starting")

	for {
		select {
		case <-stop:
			return c.Close()
		default:
		}

		ready, err := c.poll.Wait(int(c.cfg.PollTimeout.Milliseconds()))
		if err != nil {
			log.WithError(err).Error("client poll failed")
			return err
		}
		if ready != nil {
			if err := c.onInbound(); err != nil {
				return err
			}
		}

		c.sendNext()
		c.checkLiveness()
	}
}

func (c *Client) onInbound() error {
	frames, err := c.sock.RecvMessage()
	if err != nil {
		return err
	}
	if len(frames) != 4 {
		log.WithField("frames", len(frames)).Warn("client: invalid response frame, dropping")
		return nil
	}

	c.readyMu.Lock()
	c.lastRecv = time.Now()
	wasReady := c.ready
	c.ready = true
	c.readyMu.Unlock()
	if !wasReady {
		log.Info("client: connection recovered")
	}

	if isHeartbeatFrame(frames) {
		return nil
	}
	resp, err := DecodeResponse(frames)
	if err != nil {
		log.WithError(err).Warn("client: undecodable response, dropping")
		return nil
	}

	c.resultsMu.Lock()
	result, ok := c.results[resp.RequestID]
	c.resultsMu.Unlock()
	if !ok {
		// Unrecognized request id: treated as liveness-only, since the
		// frame already refreshed lastRecv above.
		return nil
	}

	switch resp.Kind {
	case KindDone:
		result.Done(resp.Content)
	case KindError:
		errMsg, _ := resp.Content.(string)
		result.Failure(errMsg)
	case KindUpdate:
		result.Update(resp.Content)
	}
	return nil
}

func (c *Client) sendNext() {
	c.queueMu.Lock()
	if len(c.queue) == 0 {
		c.queueMu.Unlock()
		return
	}
	req := c.queue[0]
	c.queue = c.queue[1:]
	c.queueMu.Unlock()

	frames, err := EncodeRequest(req)
	if err != nil {
		log.WithError(err).Error("client: failed encoding request")
		return
	}
	if err := c.sock.SendMessage(frames); err != nil {
		log.WithError(err).Error("client: failed sending request")
	}
}

// checkLiveness implements the heartbeat probe and the connection-lost
// flip once silence exceeds twice the heartbeat interval.
func (c *Client) checkLiveness() {
	if c.cfg.HeartbeatInterval <= 0 {
		return
	}
	c.readyMu.Lock()
	sinceRecv := time.Since(c.lastRecv)
	wasReady := c.ready
	if sinceRecv >= 2*c.cfg.HeartbeatInterval {
		c.ready = false
	}
	nowReady := c.ready
	c.readyMu.Unlock()

	if wasReady && !nowReady {
		log.Warn("client: connection lost")
		c.failAllPending(ErrServerLost)
		return
	}

	if nowReady && sinceRecv >= c.cfg.HeartbeatInterval {
		c.probe()
	}
}

func (c *Client) probe() {
	method := MethodPing
	c.methodsMu.RLock()
	if !c.allowed[MethodPing] && !c.bootOK {
		method = MethodClientConfig
	}
	c.methodsMu.RUnlock()
	_, _ = c.callRemote(method, nil)
}

// failAllPending marks every live result Failed with err's message, since a
// lost connection means no terminal response will ever arrive for them: the
// broker never synthesizes an ERROR when a worker disappears mid-task, so
// the client's own liveness monitor is what unblocks callers waiting on
// Wait.
func (c *Client) failAllPending(err error) {
	c.resultsMu.Lock()
	defer c.resultsMu.Unlock()
	for _, r := range c.results {
		r.Failure(err.Error())
	}
}

// IsReady reports the client's current liveness state.
func (c *Client) IsReady() bool {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	return c.ready
}

// DispatchResults runs the result-dispatch loop until stop is closed:
// each pass calls Process on every live result once, removing results that
// have become ready.
func (c *Client) DispatchResults(stop <-chan struct{}, tick time.Duration) {
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.dispatchOnce()
		}
	}
}

func (c *Client) dispatchOnce() {
	c.resultsMu.Lock()
	snapshot := make([]*DeferredResult, 0, len(c.results))
	for _, r := range c.results {
		snapshot = append(snapshot, r)
	}
	c.resultsMu.Unlock()

	for _, r := range snapshot {
		r.Process()
		if r.IsReady() {
			c.resultsMu.Lock()
			delete(c.results, r.ResultID())
			c.resultsMu.Unlock()
		}
	}
}

// Call enqueues a new Request for method with kwargs and returns its
// DeferredResult. Fails with UnknownMethodError if method is not
// client_config, ping, or in the bootstrapped allowed set; fails with
// ErrBackpressure if the queue is at its high-water mark.
func (c *Client) Call(method string, kwargs map[string]interface{}) (*DeferredResult, error) {
	if method != MethodClientConfig && method != MethodPing {
		c.methodsMu.RLock()
		allowed := c.allowed[method]
		c.methodsMu.RUnlock()
		if !allowed {
			return nil, &UnknownMethodError{Method: method}
		}
	}
	return c.callRemote(method, kwargs)
}

func (c *Client) callRemote(method string, kwargs map[string]interface{}) (*DeferredResult, error) {
	c.queueMu.Lock()
	if len(c.queue) >= requestQueueHighWaterMark {
		c.queueMu.Unlock()
		return nil, ErrBackpressure
	}
	requestID := uuid.NewString()
	req := &Request{
		ClientID:  c.clientID,
		RequestID: requestID,
		Method:    method,
		Kwargs:    kwargs,
	}
	c.queue = append(c.queue, req)
	c.queueMu.Unlock()

	result := NewDeferredResult(requestID)
	if method == MethodClientConfig {
		result.Connect(SignalDone, func(_ *DeferredResult, arg interface{}, _ ...interface{}) {
			c.applyClientConfig(arg)
		})
	}

	c.resultsMu.Lock()
	c.results[requestID] = result
	c.resultsMu.Unlock()
	return result, nil
}

func (c *Client) applyClientConfig(arg interface{}) {
	methods, ok := toStringSlice(arg)
	if !ok {
		c.bootErr = fmt.Errorf("client_config returned unexpected payload: %v", arg)
		return
	}
	c.methodsMu.Lock()
	for _, m := range methods {
		c.allowed[m] = true
	}
	c.bootOK = true
	c.methodsMu.Unlock()
}

func toStringSlice(v interface{}) ([]string, bool) {
	switch vv := v.(type) {
	case []string:
		return vv, true
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// Bootstrap blocks until the client_config call issued at construction (when
// cfg.Methods was empty) completes, or timeout elapses.
func (c *Client) Bootstrap(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		c.methodsMu.RLock()
		ok, err := c.bootOK, c.bootErr
		c.methodsMu.RUnlock()
		if ok {
			return nil
		}
		if err != nil {
			return err
		}
		if timeout > 0 && time.Now().After(deadline) {
			return fmt.Errorf("client_config bootstrap timed out")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Close releases the client's socket. Idempotent.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.poll.Destroy()
	c.sock.Destroy()
	return nil
}
