package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

var spinnerParts = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates while a slow step runs and then settles on a mark
// showing whether the step succeeded.
type Spinner struct {
	mu      sync.Mutex
	message string
	value   int
	failed  bool

	started time.Time
	stopped time.Time
	now     func() time.Time
}

func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		started: time.Now(),
		now:     time.Now,
	}
}

func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// tick advances the animation by one frame.
func (s *Spinner) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = (s.value + 1) % len(spinnerParts)
}

func (s *Spinner) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sb strings.Builder
	switch {
	case s.stopped.IsZero():
		sb.WriteString(spinnerParts[s.value])
	case s.failed:
		sb.WriteString("✗")
	default:
		sb.WriteString("✓")
	}

	if message := strings.TrimSpace(s.message); message != "" {
		sb.WriteString(" ")
		sb.WriteString(message)
	}

	end := s.stopped
	if end.IsZero() {
		end = s.now()
	}

	if elapsed := end.Sub(s.started); elapsed >= time.Second {
		fmt.Fprintf(&sb, " (%s)", elapsed.Round(100*time.Millisecond))
	}

	return sb.String()
}

func (s *Spinner) stop(failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped.IsZero() {
		s.stopped = s.now()
		s.failed = failed
	}
}

// Stop marks the step as done.
func (s *Spinner) Stop() {
	s.stop(false)
}

// Fail marks the step as failed.
func (s *Spinner) Fail() {
	s.stop(true)
}
