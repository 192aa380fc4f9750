package progress

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpinnerString(t *testing.T) {
	spinner := NewSpinner("looking up org/model")

	str := spinner.String()
	assert.True(t, strings.HasPrefix(str, spinnerParts[0]), str)
	assert.Contains(t, str, "looking up org/model")

	spinner.tick()
	assert.True(t, strings.HasPrefix(spinner.String(), spinnerParts[1]))
}

func TestSpinnerStringEmpty(t *testing.T) {
	spinner := NewSpinner("")
	assert.Equal(t, spinnerParts[0], spinner.String())
}

func TestSpinnerSetMessage(t *testing.T) {
	spinner := NewSpinner("initial")
	spinner.SetMessage("updated")
	assert.Contains(t, spinner.String(), "updated")
	assert.NotContains(t, spinner.String(), "initial")
}

func TestSpinnerStop(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	spinner := NewSpinner("done")
	spinner.started = now
	spinner.now = func() time.Time { return now.Add(2500 * time.Millisecond) }

	spinner.Stop()
	assert.Equal(t, "✓ done (2.5s)", spinner.String())

	// later calls keep the first outcome
	spinner.Fail()
	assert.Equal(t, "✓ done (2.5s)", spinner.String())
}

func TestSpinnerFail(t *testing.T) {
	spinner := NewSpinner("lookup")
	spinner.Fail()
	assert.Equal(t, "✗ lookup", spinner.String())
}

func TestSpinnerWrapAround(t *testing.T) {
	spinner := NewSpinner("")
	for range len(spinnerParts) {
		spinner.tick()
	}
	assert.Equal(t, spinnerParts[0], spinner.String())
}
