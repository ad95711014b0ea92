package rpc

import (
	czmq "github.com/zeromq/goczmq/v4"
)

// ZMQTransport is the production Transport, backed by ZeroMQ ROUTER/DEALER
// sockets via goczmq: NewRouter binds, NewDealer connects, NewPoller
// multiplexes a variadic set of sockets.
type ZMQTransport struct{}

type zmqSocket struct {
	sock *czmq.Sock
}

func (s *zmqSocket) SendMessage(frames [][]byte) error {
	return s.sock.SendMessage(frames)
}

func (s *zmqSocket) RecvMessage() ([][]byte, error) {
	return s.sock.RecvMessage()
}

func (s *zmqSocket) Destroy() {
	s.sock.Destroy()
}

type zmqPoller struct {
	poller *czmq.Poller
	byRaw  map[*czmq.Sock]*zmqSocket
}

func (p *zmqPoller) Add(s Socket) error {
	zs, ok := s.(*zmqSocket)
	if !ok {
		return errNotZMQSocket
	}
	p.byRaw[zs.sock] = zs
	return p.poller.Add(zs.sock)
}

func (p *zmqPoller) Wait(timeoutMs int) (Socket, error) {
	sock, err := p.poller.Wait(timeoutMs)
	if err != nil {
		return nil, err
	}
	if sock == nil {
		return nil, nil
	}
	return p.byRaw[sock], nil
}

func (p *zmqPoller) Destroy() {
	p.poller.Destroy()
}

// NewRouter binds a ROUTER socket. Creating the socket binds by default.
func (ZMQTransport) NewRouter(endpoint string) (Socket, error) {
	sock, err := czmq.NewRouter(endpoint)
	if err != nil {
		return nil, err
	}
	return &zmqSocket{sock: sock}, nil
}

// NewDealer creates and connects a DEALER socket to the given endpoint.
func (ZMQTransport) NewDealer(endpoint string) (Socket, error) {
	sock, err := czmq.NewDealer(endpoint)
	if err != nil {
		return nil, err
	}
	if err := sock.Connect(endpoint); err != nil {
		sock.Destroy()
		return nil, err
	}
	return &zmqSocket{sock: sock}, nil
}

func (ZMQTransport) NewPoller(sockets ...Socket) (Poller, error) {
	raw := make([]*czmq.Sock, 0, len(sockets))
	byRaw := make(map[*czmq.Sock]*zmqSocket, len(sockets))
	for _, s := range sockets {
		zs, ok := s.(*zmqSocket)
		if !ok {
			return nil, errNotZMQSocket
		}
		raw = append(raw, zs.sock)
		byRaw[zs.sock] = zs
	}
	poller, err := czmq.NewPoller(raw...)
	if err != nil {
		return nil, err
	}
	return &zmqPoller{poller: poller, byRaw: byRaw}, nil
}
