package rpc

// Socket is the minimal identity-aware multipart-messaging primitive the
// broker, worker, and client are built on: a ROUTER or DEALER socket in
// ZeroMQ terms. Identity framing is handled by the transport, never by the
// envelope codec. Two concrete implementations are provided: ZMQTransport
// (github.com/zeromq/goczmq) for production use and InProcessTransport for
// tests and single-process embedding.
type Socket interface {
	// SendMessage writes one multipart message. On a ROUTER socket frames[0]
	// must be the destination peer identity, stripped by the transport
	// before delivery. On a DEALER socket no identity frame is needed or
	// produced; the transport attaches/strips it transparently.
	SendMessage(frames [][]byte) error

	// RecvMessage blocks until one multipart message is available. On a
	// ROUTER socket frames[0] is the sender's identity, prepended by the
	// transport. Callers normally reach this only via Poller.Wait, which
	// already knows a message is ready.
	RecvMessage() ([][]byte, error)

	// Destroy releases the socket. Idempotent.
	Destroy()
}

// Poller multiplexes readiness across one or more Sockets, mirroring
// czmq.Poller: every cooperative loop suspends on a bounded socket poll
// rather than a blocking receive.
type Poller interface {
	// Add registers a socket for polling.
	Add(Socket) error

	// Wait blocks up to timeoutMs milliseconds and returns the first socket
	// with a message ready, or (nil, nil) on timeout.
	Wait(timeoutMs int) (Socket, error)

	// Destroy releases poller resources. Idempotent.
	Destroy()
}

// Transport constructs identity-aware sockets and pollers. A Broker binds
// two Transport-created ROUTER sockets (frontend, backend); a Worker and a
// Client each connect one Transport-created DEALER socket.
type Transport interface {
	// NewRouter binds a ROUTER socket to endpoint.
	NewRouter(endpoint string) (Socket, error)

	// NewDealer connects a DEALER socket to endpoint.
	NewDealer(endpoint string) (Socket, error)

	// NewPoller creates a poller pre-seeded with sockets (may be empty;
	// further sockets can be added with Poller.Add).
	NewPoller(sockets ...Socket) (Poller, error)
}
