package player

import (
	"sync"
	"time"
)

type guardState int

const (
	guardIdle guardState = iota
	guardApplyingRemoteSync
)

// SyncGuard marks programmatic, sync-driven player mutations so the widget
// events they echo back are not reinterpreted as user actions and
// re-broadcast to the room. Without it a host applying its own broadcast
// would publish the state change again and oscillate every participant.
type SyncGuard struct {
	mu           sync.Mutex
	state        guardState
	releaseAfter time.Duration
	timer        *time.Timer
}

// NewSyncGuard builds a guard that stays engaged for releaseAfter beyond the
// guarded call, because the widget's state-change event may fire after the
// control call has returned.
func NewSyncGuard(releaseAfter time.Duration) *SyncGuard {
	return &SyncGuard{releaseAfter: releaseAfter}
}

// Apply runs fn with the guard engaged and schedules its release.
func (g *SyncGuard) Apply(fn func()) {
	g.mu.Lock()
	g.state = guardApplyingRemoteSync
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.mu.Unlock()

	fn()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.timer = time.AfterFunc(g.releaseAfter, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.state = guardIdle
	})
}

// Suppressed reports whether player events must not be forwarded as outbound
// control messages right now.
func (g *SyncGuard) Suppressed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == guardApplyingRemoteSync
}
