package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDebugEnabled_TracksInitializeMode(t *testing.T) {
	Initialize(false)
	assert.False(t, IsDebugEnabled())

	Initialize(true)
	assert.True(t, IsDebugEnabled())
}

func TestInfoDebugError_DoNotPanicBeforeOrAfterInitialize(t *testing.T) {
	globalLogger = nil
	assert.NotPanics(t, func() {
		Info("ticket %s created", "t-1")
		Debug("internal detail %d", 42)
		Error("something failed: %v", "boom")
	})

	Initialize(true)
	assert.NotPanics(t, func() {
		Info("ticket %s created", "t-1")
		Debug("internal detail %d", 42)
		Error("something failed: %v", "boom")
	})
}
