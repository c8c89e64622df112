package trigger

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManualClock(t *testing.T) {
	t.Parallel()

	c := NewManual(epoch)
	order := []string{}
	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	c.AfterFunc(time.Second, func() {
		order = append(order, "a")
		c.AfterFunc(0, func() { order = append(order, "a0") })
	})
	stopped := c.AfterFunc(time.Second, func() { order = append(order, "never") })
	c.AfterFunc(0, func() { order = append(order, "zero") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())
	assert.Equal(t, 3, c.Pending())

	c.Advance(0)
	assert.Equal(t, []string{"zero"}, order)
	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"zero", "a", "a0"}, order)
	assert.Equal(t, epoch.Add(1500*time.Millisecond), c.Now())
	c.Advance(time.Hour)
	assert.Equal(t, []string{"zero", "a", "a0", "b"}, order)
	assert.Equal(t, 0, c.Pending())
}

func TestTrigger(t *testing.T) {
	t.Parallel()

	const interval = 60 * time.Second
	type Case struct {
		name  string
		check func(t testing.TB, c *Manual, tr *Trigger)
	}
	cases := []Case{
		{"immediate-then-interval", func(t testing.TB, c *Manual, tr *Trigger) {
			calls := 0
			require.NoError(t, tr.SubmitImmediate(func() error { calls++; return nil }))
			assert.Equal(t, 0, calls, "must not run on arming goroutine")
			c.Advance(0)
			assert.Equal(t, 1, calls)
			c.Advance(interval - time.Nanosecond)
			assert.Equal(t, 1, calls)
			c.Advance(time.Nanosecond)
			assert.Equal(t, 2, calls)
			c.Advance(10 * interval)
			assert.Equal(t, 12, calls)
			assert.Equal(t, uint64(12), tr.Fired())
			assert.True(t, tr.Pending())
		}},

		{"start-delayed", func(t testing.TB, c *Manual, tr *Trigger) {
			calls := 0
			require.NoError(t, tr.Start(func() error { calls++; return nil }))
			c.Advance(0)
			assert.Equal(t, 0, calls)
			c.Advance(interval)
			assert.Equal(t, 1, calls)
		}},

		{"single-outstanding", func(t testing.TB, c *Manual, tr *Trigger) {
			noop := func() error { return nil }
			require.NoError(t, tr.SubmitImmediate(noop))
			assert.Equal(t, ErrPending, tr.SubmitImmediate(noop))
			assert.Equal(t, ErrPending, tr.Start(noop))
			assert.Equal(t, 1, c.Pending())
			c.Advance(0)
			assert.Equal(t, ErrPending, tr.Start(noop), "re-armed after success")
			assert.Equal(t, 1, c.Pending())
		}},

		{"arm-inside-action", func(t testing.TB, c *Manual, tr *Trigger) {
			var inner error
			require.NoError(t, tr.SubmitImmediate(func() error {
				inner = tr.SubmitImmediate(func() error { return nil })
				return nil
			}))
			c.Advance(0)
			assert.Equal(t, ErrPending, inner)
			assert.Equal(t, 1, c.Pending())
		}},

		{"failure-stops", func(t testing.TB, c *Manual, tr *Trigger) {
			calls := 0
			failure := fmt.Errorf("send failed")
			require.NoError(t, tr.SubmitImmediate(func() error {
				calls++
				if calls == 3 {
					return failure
				}
				return nil
			}))
			c.Advance(0)
			c.Advance(interval)
			select {
			case <-tr.Failed():
				t.Fatal("unexpected failure")
			default:
			}
			c.Advance(interval)
			assert.Equal(t, 3, calls)
			select {
			case err := <-tr.Failed():
				assert.Equal(t, failure, err)
			default:
				t.Fatal("expected failure")
			}
			c.Advance(100 * interval)
			assert.Equal(t, 3, calls)
			assert.False(t, tr.Pending())
			assert.Equal(t, 0, c.Pending())
			assert.Equal(t, ErrStopped, tr.Start(func() error { return nil }))
		}},

		{"stop-cancels-pending", func(t testing.TB, c *Manual, tr *Trigger) {
			calls := 0
			require.NoError(t, tr.SubmitImmediate(func() error { calls++; return nil }))
			c.Advance(0)
			tr.Stop()
			tr.Stop()
			c.Advance(10 * interval)
			assert.Equal(t, 1, calls)
			assert.False(t, tr.Pending())
			assert.Equal(t, 0, c.Pending())
			assert.Equal(t, ErrStopped, tr.SubmitImmediate(func() error { return nil }))
		}},

		{"nil-action", func(t testing.TB, c *Manual, tr *Trigger) {
			assert.Error(t, tr.Start(nil))
			assert.False(t, tr.Pending())
		}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			clock := NewManual(epoch)
			c.check(t, clock, New(clock, interval))
		})
	}
}

func TestTriggerRealNoOverlap(t *testing.T) {
	t.Parallel()

	tr := New(Real{}, time.Millisecond)
	var running, overlaps, calls int32
	done := make(chan struct{})
	require.NoError(t, tr.SubmitImmediate(func() error {
		if atomic.AddInt32(&running, 1) > 1 {
			atomic.AddInt32(&overlaps, 1)
		}
		time.Sleep(3 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		if atomic.AddInt32(&calls, 1) == 5 {
			close(done)
		}
		return nil
	}))
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timeout")
	}
	tr.Stop()
	after := atomic.LoadInt32(&calls)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&calls), "no firing after Stop")
	assert.Equal(t, int32(0), atomic.LoadInt32(&overlaps))
}

func TestTriggerStopWaitsAction(t *testing.T) {
	t.Parallel()

	tr := New(Real{}, time.Hour)
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished int32
	require.NoError(t, tr.SubmitImmediate(func() error {
		close(entered)
		<-release
		atomic.StoreInt32(&finished, 1)
		return nil
	}))
	<-entered
	stopped := make(chan struct{})
	go func() {
		tr.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while action running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop timeout")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&finished))
	assert.False(t, tr.Pending())
}
