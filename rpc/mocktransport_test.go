package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessTransportRouterDealerRoundTrip(t *testing.T) {
	net := NewInProcessTransport()
	router, err := net.NewRouter("inproc://test")
	require.NoError(t, err)
	defer router.Destroy()

	dealer, err := net.NewDealer("inproc://test")
	require.NoError(t, err)
	defer dealer.Destroy()

	require.NoError(t, dealer.SendMessage([][]byte{[]byte("hello")}))

	poller, err := net.NewPoller(router)
	require.NoError(t, err)
	defer poller.Destroy()

	ready, err := poller.Wait(1000)
	require.NoError(t, err)
	require.Equal(t, router, ready)

	frames, err := router.RecvMessage()
	require.NoError(t, err)
	require.Len(t, frames, 2) // [dealer identity, "hello"]
	assert.Equal(t, "hello", string(frames[1]))
}

func TestInProcessTransportDealerReceivesRoutedReply(t *testing.T) {
	net := NewInProcessTransport()
	router, _ := net.NewRouter("inproc://test2")
	dealer, _ := net.NewDealer("inproc://test2")
	defer router.Destroy()
	defer dealer.Destroy()

	require.NoError(t, dealer.SendMessage([][]byte{[]byte("ping")}))
	frames, err := router.RecvMessage()
	require.NoError(t, err)

	identity := frames[0]
	require.NoError(t, router.SendMessage([][]byte{identity, []byte("pong")}))

	reply, err := dealer.RecvMessage()
	require.NoError(t, err)
	require.Len(t, reply, 1)
	assert.Equal(t, "pong", string(reply[0]))
}

func TestInProcessPollerTimesOutWithNoTraffic(t *testing.T) {
	net := NewInProcessTransport()
	router, _ := net.NewRouter("inproc://test3")
	defer router.Destroy()

	poller, err := net.NewPoller(router)
	require.NoError(t, err)
	defer poller.Destroy()

	start := time.Now()
	ready, err := poller.Wait(30)
	require.NoError(t, err)
	assert.Nil(t, ready)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestInProcessPollerMultiplexesSockets(t *testing.T) {
	net := NewInProcessTransport()
	routerA, _ := net.NewRouter("inproc://a")
	routerB, _ := net.NewRouter("inproc://b")
	dealerA, _ := net.NewDealer("inproc://a")
	defer routerA.Destroy()
	defer routerB.Destroy()
	defer dealerA.Destroy()

	poller, err := net.NewPoller(routerA, routerB)
	require.NoError(t, err)
	defer poller.Destroy()

	require.NoError(t, dealerA.SendMessage([][]byte{[]byte("x")}))

	ready, err := poller.Wait(1000)
	require.NoError(t, err)
	assert.Equal(t, routerA, ready)
}
