package progress

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// mockState implements State interface for testing
type mockState struct {
	value string
}

func (m *mockState) String() string {
	return m.value
}

func TestProgressAdd(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)
	defer p.Stop()

	p.Add(&mockState{value: "state1"})
	p.Add(&mockState{value: "state2"})

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Len(t, p.states, 2)
}

func TestProgressStop(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)

	spinner := NewSpinner("working")
	p.Add(spinner)

	// Give the goroutine time to render
	time.Sleep(150 * time.Millisecond)

	assert.True(t, p.Stop())
	assert.False(t, p.Stop(), "second stop is a no-op")

	out := buf.String()
	assert.Contains(t, out, "\033[?25l", "cursor hidden while running")
	assert.Contains(t, out, "✓ working")
	assert.Contains(t, out, "\033[?25h", "cursor shown after stop")
}

func TestProgressStopAndClear(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)
	p.Add(&mockState{value: "line1"})
	p.Add(&mockState{value: "line2"})

	assert.True(t, p.StopAndClear())
	assert.Contains(t, buf.String(), "\033[2K")
}

func TestIsTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	assert.False(t, IsTerminal(f))
}
