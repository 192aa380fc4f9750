package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalesce(t *testing.T) {
	var calls atomic.Int32
	d := New(50*time.Millisecond, func() { calls.Add(1) })

	for range 5 {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
	assert.False(t, d.Pending())
}

func TestFlush(t *testing.T) {
	var calls atomic.Int32
	d := New(time.Hour, func() { calls.Add(1) })

	assert.False(t, d.Flush(), "nothing pending")

	d.Trigger()
	assert.True(t, d.Pending())
	assert.True(t, d.Flush())
	assert.EqualValues(t, 1, calls.Load())
	assert.False(t, d.Flush())
}

func TestStop(t *testing.T) {
	var calls atomic.Int32
	d := New(10*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	d.Stop()
	d.Trigger()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, calls.Load())
	assert.False(t, d.Flush())
}

func TestStaleTimer(t *testing.T) {
	var calls atomic.Int32
	d := New(time.Hour, func() { calls.Add(1) })

	d.Trigger()
	d.mu.Lock()
	stale := d.gen
	d.mu.Unlock()

	d.Trigger()

	// a timer from the first trigger that lost the race with the second
	d.fire(stale)
	assert.Zero(t, calls.Load())
	assert.True(t, d.Pending())

	d.mu.Lock()
	current := d.gen
	d.mu.Unlock()

	d.fire(current)
	assert.EqualValues(t, 1, calls.Load())
	assert.False(t, d.Pending())
	d.Stop()
}
