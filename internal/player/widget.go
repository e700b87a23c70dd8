package player

// WidgetState mirrors the embedded player widget's own state set. Only
// transitions to Playing and Paused matter for room synchronization.
type WidgetState int

const (
	StateUnstarted WidgetState = iota
	StateBuffering
	StatePlaying
	StatePaused
	StateEnded
)

// StateChange is emitted by a widget whenever its playback state changes.
// Widgets may deliver these asynchronously, after the control call that
// caused them has already returned.
type StateChange struct {
	State       WidgetState
	CurrentTime float64
}

// Widget is the raw control surface of one embedded player instance. A
// widget initializes asynchronously: control methods return errors until
// initialization has finished, even after the factory call succeeded.
type Widget interface {
	Play() error
	Pause() error
	SeekTo(seconds float64) error
	CurrentTime() (float64, error)
	Duration() (float64, error)
	Volume() (int, error)
	SetVolume(volume int) error
	State() WidgetState
	Destroy()
}

// Factory creates a widget playing the given video. onStateChange is invoked
// by the widget for every state transition for the lifetime of the instance.
type Factory func(videoId string, onStateChange func(StateChange)) (Widget, error)
