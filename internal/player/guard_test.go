package player

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncGuardSuppressesDuringAndAfterApply(t *testing.T) {
	g := NewSyncGuard(30 * time.Millisecond)

	assert.False(t, g.Suppressed(), "fresh guard must be idle")

	g.Apply(func() {
		assert.True(t, g.Suppressed(), "guard must be engaged inside the applied fn")
	})

	// widget events can trail the control call, so the guard stays engaged
	// for a while after Apply returns
	assert.True(t, g.Suppressed())

	require.Eventually(t, func() bool {
		return !g.Suppressed()
	}, time.Second, 5*time.Millisecond, "guard never released")
}

func TestSyncGuardReapplyExtendsRelease(t *testing.T) {
	g := NewSyncGuard(40 * time.Millisecond)

	g.Apply(func() {})
	time.Sleep(25 * time.Millisecond)
	g.Apply(func() {})
	time.Sleep(25 * time.Millisecond)

	// 50ms after the first apply, but only 25ms after the second
	assert.True(t, g.Suppressed(), "second apply must restart the release timer")

	require.Eventually(t, func() bool {
		return !g.Suppressed()
	}, time.Second, 5*time.Millisecond)
}
