package rpc

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InProcessTransport is an in-memory Transport simulating ROUTER/DEALER
// identity-aware messaging without any real socket, for use in tests and
// single-process embedding. Routers are addressed by an arbitrary endpoint
// string shared within one InProcessTransport instance; dealers "connect"
// by looking that endpoint up.
type InProcessTransport struct {
	mu      sync.Mutex
	routers map[string]*memRouter
}

// NewInProcessTransport returns a fresh, independent in-process network.
// Tests should use one instance per scenario so endpoint strings don't
// collide across unrelated test cases.
func NewInProcessTransport() *InProcessTransport {
	return &InProcessTransport{routers: make(map[string]*memRouter)}
}

func (t *InProcessTransport) NewRouter(endpoint string) (Socket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := &memRouter{
		endpoint: endpoint,
		dealers:  make(map[string]*memDealer),
		inbox:    make(chan [][]byte, 4096),
	}
	t.routers[endpoint] = r
	return r, nil
}

func (t *InProcessTransport) NewDealer(endpoint string) (Socket, error) {
	t.mu.Lock()
	r, ok := t.routers[endpoint]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("in-process transport: no router bound at %q", endpoint)
	}
	d := &memDealer{
		identity: uuid.NewString(),
		router:   r,
		inbox:    make(chan [][]byte, 4096),
	}
	r.mu.Lock()
	r.dealers[d.identity] = d
	r.mu.Unlock()
	return d, nil
}

func (t *InProcessTransport) NewPoller(sockets ...Socket) (Poller, error) {
	p := &memPoller{}
	for _, s := range sockets {
		if err := p.Add(s); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// pollable is implemented by both mock socket kinds so memPoller can select
// across their delivery channels without consuming a message until a
// socket is actually chosen.
type pollable interface {
	Socket
	recvChan() <-chan [][]byte
	stashPending([][]byte)
	takePending() ([][]byte, bool)
}

type memRouter struct {
	mu       sync.Mutex
	endpoint string
	dealers  map[string]*memDealer
	inbox    chan [][]byte

	pendingMu sync.Mutex
	pending   [][]byte
	hasPend   bool
}

// SendMessage routes frames[0] (destination identity) to that dealer's
// inbox with the identity frame stripped, mirroring ROUTER semantics.
func (r *memRouter) SendMessage(frames [][]byte) error {
	if len(frames) < 1 {
		return fmt.Errorf("%w: router send requires an identity frame", ErrInvalidFrame)
	}
	identity := string(frames[0])
	payload := append([][]byte(nil), frames[1:]...)

	r.mu.Lock()
	d, ok := r.dealers[identity]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("in-process transport: no dealer with identity %q", identity)
	}
	d.inbox <- payload
	return nil
}

func (r *memRouter) RecvMessage() ([][]byte, error) {
	if frames, ok := r.takePending(); ok {
		return frames, nil
	}
	frames, ok := <-r.inbox
	if !ok {
		return nil, fmt.Errorf("in-process transport: router %q closed", r.endpoint)
	}
	return frames, nil
}

func (r *memRouter) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.inbox:
	default:
	}
	defer func() { _ = recover() }()
	close(r.inbox)
}

func (r *memRouter) recvChan() <-chan [][]byte { return r.inbox }

func (r *memRouter) stashPending(frames [][]byte) {
	r.pendingMu.Lock()
	r.pending, r.hasPend = frames, true
	r.pendingMu.Unlock()
}

func (r *memRouter) takePending() ([][]byte, bool) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	if !r.hasPend {
		return nil, false
	}
	frames := r.pending
	r.pending, r.hasPend = nil, false
	return frames, true
}

type memDealer struct {
	identity string
	router   *memRouter
	inbox    chan [][]byte

	pendingMu sync.Mutex
	pending   [][]byte
	hasPend   bool
}

// SendMessage delivers frames to the connected router, prepending this
// dealer's identity so the router can route a reply back, mirroring DEALER
// semantics (the identity frame is invisible to the dealer's own
// send/receive API).
func (d *memDealer) SendMessage(frames [][]byte) error {
	full := make([][]byte, 0, len(frames)+1)
	full = append(full, []byte(d.identity))
	full = append(full, frames...)
	d.router.inbox <- full
	return nil
}

func (d *memDealer) RecvMessage() ([][]byte, error) {
	if frames, ok := d.takePending(); ok {
		return frames, nil
	}
	frames, ok := <-d.inbox
	if !ok {
		return nil, fmt.Errorf("in-process transport: dealer %q closed", d.identity)
	}
	return frames, nil
}

func (d *memDealer) Destroy() {
	d.router.mu.Lock()
	delete(d.router.dealers, d.identity)
	d.router.mu.Unlock()
	defer func() { _ = recover() }()
	close(d.inbox)
}

func (d *memDealer) recvChan() <-chan [][]byte { return d.inbox }

func (d *memDealer) stashPending(frames [][]byte) {
	d.pendingMu.Lock()
	d.pending, d.hasPend = frames, true
	d.pendingMu.Unlock()
}

func (d *memDealer) takePending() ([][]byte, bool) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	if !d.hasPend {
		return nil, false
	}
	frames := d.pending
	d.pending, d.hasPend = nil, false
	return frames, true
}

// memPoller multiplexes readiness across mock sockets using reflect.Select,
// since the set of channels to watch is only known at runtime (a Broker
// polls two sockets, a Client and Worker poll one).
type memPoller struct {
	sockets []pollable
}

func (p *memPoller) Add(s Socket) error {
	ps, ok := s.(pollable)
	if !ok {
		return fmt.Errorf("in-process transport: socket does not support polling")
	}
	p.sockets = append(p.sockets, ps)
	return nil
}

func (p *memPoller) Wait(timeoutMs int) (Socket, error) {
	if len(p.sockets) == 0 {
		time.Sleep(time.Duration(timeoutMs) * time.Millisecond)
		return nil, nil
	}

	cases := make([]reflect.SelectCase, 0, len(p.sockets)+1)
	for _, s := range p.sockets {
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(s.recvChan()),
		})
	}
	timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	defer timer.Stop()
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timer.C)})

	chosen, recv, recvOK := reflect.Select(cases)
	if chosen == len(p.sockets) {
		return nil, nil // timeout
	}
	if !recvOK {
		return nil, nil
	}

	sock := p.sockets[chosen]
	sock.stashPending(recv.Interface().([][]byte))
	return sock, nil
}

func (p *memPoller) Destroy() {
	p.sockets = nil
}
