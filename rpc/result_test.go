package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferredResultUpdateThenDone(t *testing.T) {
	r := NewDeferredResult("req-1")

	var seen []interface{}
	r.Connect(SignalUpdate, func(_ *DeferredResult, arg interface{}, _ ...interface{}) {
		seen = append(seen, arg)
	})
	var done interface{}
	r.Connect(SignalDone, func(_ *DeferredResult, arg interface{}, _ ...interface{}) {
		done = arg
	})

	r.Update("10%")
	r.Update("20%")
	r.Done("finished")

	assert.True(t, r.IsReady())
	r.Process()
	r.Process()
	r.Process()

	assert.True(t, r.IsReady())
	assert.Equal(t, []interface{}{"10%", "20%"}, seen)
	assert.Equal(t, "finished", done)
	assert.Equal(t, "finished", r.Results())
}

func TestDeferredResultDoneWithNilUsesParts(t *testing.T) {
	r := NewDeferredResult("req-2")
	r.Update("a")
	r.Update("b")
	r.Done(nil)
	for i := 0; i < 3; i++ {
		r.Process()
	}
	assert.Equal(t, []interface{}{"a", "b"}, r.Results())
}

func TestDeferredResultTerminalIsSticky(t *testing.T) {
	r := NewDeferredResult("req-3")
	r.Done("first")
	r.Done("second")
	r.Failure("an error")
	r.Update("late")

	assert.Equal(t, "first", r.Results())
	assert.Empty(t, r.Errors())
	assert.Empty(t, r.Parts())
}

func TestDeferredResultProcessIsIdempotentOnceReady(t *testing.T) {
	r := NewDeferredResult("req-4")
	calls := 0
	r.Connect(SignalDone, func(_ *DeferredResult, _ interface{}, _ ...interface{}) {
		calls++
	})
	r.Done("x")
	r.Process()
	r.Process()
	r.Process()
	assert.Equal(t, 1, calls)
}

func TestDeferredResultDisconnectTombstonesWithoutShiftingHandles(t *testing.T) {
	r := NewDeferredResult("req-5")
	var first, second bool
	h1 := r.Connect(SignalUpdate, func(_ *DeferredResult, _ interface{}, _ ...interface{}) { first = true })
	h2 := r.Connect(SignalUpdate, func(_ *DeferredResult, _ interface{}, _ ...interface{}) { second = true })

	r.Disconnect(SignalUpdate, h1)
	r.Update("x")
	r.Process()

	assert.False(t, first)
	assert.True(t, second)
	_ = h2
}

func TestDeferredResultObserverPanicIsolated(t *testing.T) {
	r := NewDeferredResult("req-6")
	var ranSecond bool
	r.Connect(SignalDone, func(_ *DeferredResult, _ interface{}, _ ...interface{}) {
		panic("boom")
	})
	r.Connect(SignalDone, func(_ *DeferredResult, _ interface{}, _ ...interface{}) {
		ranSecond = true
	})
	r.Done("ok")
	require.NotPanics(t, r.Process)
	assert.True(t, ranSecond)
	assert.Equal(t, "ok", r.Results())
}

func TestDeferredResultWaitTimesOutWhilePending(t *testing.T) {
	r := NewDeferredResult("req-7")
	start := time.Now()
	ready := r.Wait(30 * time.Millisecond)
	assert.False(t, ready)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestDeferredResultWaitReturnsOnDone(t *testing.T) {
	r := NewDeferredResult("req-8")
	go func() {
		time.Sleep(20 * time.Millisecond)
		r.Done("done")
	}()
	assert.True(t, r.Wait(time.Second))
}
