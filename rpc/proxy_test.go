package rpc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyStartStopsOnContextCancellation(t *testing.T) {
	net := NewInProcessTransport()
	proxy, err := NewProxy("test-proxy", net, BrokerConfig{
		Frontend:    "inproc://proxy-front",
		Backend:     "inproc://proxy-back",
		PollTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)

	errChan := make(chan error, 1)
	go func() {
		errChan <- proxy.Start(ctx, &wg)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	wg.Wait()

	select {
	case err := <-errChan:
		assert.NoError(t, err)
	default:
	}
}

func TestProxyForwardsRequestsRoundRobin(t *testing.T) {
	net := NewInProcessTransport()
	proxy, err := NewProxy("rr-proxy", net, BrokerConfig{
		Frontend:    "inproc://rr-front",
		Backend:     "inproc://rr-back",
		PollTimeout: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go proxy.Start(ctx, &wg)
	defer func() {
		cancel()
		wg.Wait()
	}()

	worker, err := net.NewDealer("inproc://rr-back")
	require.NoError(t, err)
	defer worker.Destroy()

	// Announce the worker so the proxy's round-robin table knows about it.
	require.NoError(t, worker.SendMessage(heartbeatFrames()))
	time.Sleep(20 * time.Millisecond)

	client, err := net.NewDealer("inproc://rr-front")
	require.NoError(t, err)
	defer client.Destroy()

	req := &Request{RequestID: "r1", Method: "ping", Kwargs: map[string]interface{}{}}
	frames, err := EncodeRequest(req)
	require.NoError(t, err)
	require.NoError(t, client.SendMessage(frames))

	received, err := worker.RecvMessage()
	require.NoError(t, err)
	// [client_id, request_id, method, kwargs]
	require.Len(t, received, 4)
	assert.Equal(t, "r1", string(received[1]))
}
