package rpc

import (
	"errors"
	"fmt"
)

// Sentinel errors for the client/worker/broker error taxonomy.
var (
	// ErrUnknownMethod is returned client-side when a name is dialed that is
	// neither client_config/ping nor in the bootstrapped allow-list.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrInvalidFrame marks an undecodable inbound frame. A receiver must log
	// and drop on this error, never propagate it to a DeferredResult
	// (framing failures can't be attributed to a request).
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrBackpressure is raised at the call site when the client's outgoing
	// request queue is full.
	ErrBackpressure = errors.New("request queue is full")

	// ErrServerLost's message is the error string given (via Failure) to
	// every pending DeferredResult when the client's liveness monitor flips
	// to not-ready before a terminal response arrived for that request.
	ErrServerLost = errors.New("connection lost, no terminal response will arrive")

	// ErrClosed reports use of a closed Client, Worker or Broker. No method
	// in this package returns it; their Close methods are idempotent and
	// return nil.
	ErrClosed = errors.New("already closed")

	errNotZMQSocket = errors.New("socket was not created by ZMQTransport")
)

// ServiceError wraps a failure raised by a remote method invocation and
// renders as "Error: <message>" to match the ERROR response content.
type ServiceError struct {
	Method string
	Cause  error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("Error: %s", e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// UnknownMethodError reports that a service has no matching remote method.
type UnknownMethodError struct {
	Method string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("Service does not support remote method %s", e.Method)
}

func (e *UnknownMethodError) Is(target error) bool {
	return target == ErrUnknownMethod
}
