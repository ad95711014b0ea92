package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerManagerSpawnsConfiguredInstanceCount(t *testing.T) {
	net := NewInProcessTransport()
	router, err := net.NewRouter("inproc://manager-backend")
	require.NoError(t, err)
	defer router.Destroy()

	mgr := NewWorkerManager(net, WorkerConfig{
		Backend:     "inproc://manager-backend",
		PollTimeout: 5 * time.Millisecond,
	}, 3, func() *Service {
		return NewService(&echoService{})
	})

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- mgr.Run(stop) }()

	seen := map[string]bool{}
	for len(seen) < 3 {
		frames, err := router.RecvMessage()
		require.NoError(t, err)
		require.True(t, isHeartbeatFrame(frames[1:]))
		seen[string(frames[0])] = true
	}
	assert.Equal(t, 3, mgr.ActiveCount())

	close(stop)
	require.NoError(t, <-done)
	assert.Equal(t, 0, mgr.ActiveCount())
}

func TestWorkerManagerDefaultsToOneInstance(t *testing.T) {
	net := NewInProcessTransport()
	router, err := net.NewRouter("inproc://manager-default-backend")
	require.NoError(t, err)
	defer router.Destroy()

	mgr := NewWorkerManager(net, WorkerConfig{
		Backend:     "inproc://manager-default-backend",
		PollTimeout: 5 * time.Millisecond,
	}, 0, func() *Service {
		return NewService(&echoService{})
	})

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- mgr.Run(stop) }()

	frames, err := router.RecvMessage()
	require.NoError(t, err)
	require.True(t, isHeartbeatFrame(frames[1:]))
	assert.Equal(t, 1, mgr.ActiveCount())

	close(stop)
	require.NoError(t, <-done)
}
