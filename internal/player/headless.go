package player

import (
	"errors"
	"sync"
	"time"
)

var errWidgetInitializing = errors.New("widget is still initializing")

// headlessWidget mirrors playback state without decoding any video: the
// playhead advances with the wall clock while playing. It stands in for the
// embedded third-party player in the headless agent and in tests, including
// the third-party quirk of rejecting API calls for a while after creation.
type headlessWidget struct {
	mu            sync.Mutex
	videoId       string
	duration      float64
	state         WidgetState
	position      float64
	playingSince  time.Time
	volume        int
	usableAt      time.Time
	destroyed     bool
	onStateChange func(StateChange)
}

// NewHeadlessFactory returns a Factory whose widgets report the given
// duration and refuse API calls until initDelay has elapsed.
func NewHeadlessFactory(duration float64, initDelay time.Duration) Factory {
	return func(videoId string, onStateChange func(StateChange)) (Widget, error) {
		return &headlessWidget{
			videoId:       videoId,
			duration:      duration,
			state:         StateUnstarted,
			volume:        100,
			usableAt:      time.Now().Add(initDelay),
			onStateChange: onStateChange,
		}, nil
	}
}

func (w *headlessWidget) usable() error {
	if w.destroyed {
		return errors.New("widget is destroyed")
	}
	if time.Now().Before(w.usableAt) {
		return errWidgetInitializing
	}
	return nil
}

// playhead must be called with the lock held.
func (w *headlessWidget) playhead() float64 {
	pos := w.position
	if w.state == StatePlaying {
		pos += time.Since(w.playingSince).Seconds()
	}
	if pos > w.duration {
		pos = w.duration
	}
	return pos
}

func (w *headlessWidget) transition(state WidgetState) {
	pos := w.playhead()
	w.position = pos
	w.state = state
	if state == StatePlaying {
		w.playingSince = time.Now()
	}

	if w.onStateChange != nil {
		// widgets deliver events asynchronously; model that here so the
		// guard's delayed release is actually exercised
		go w.onStateChange(StateChange{State: state, CurrentTime: pos})
	}
}

func (w *headlessWidget) Play() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.usable(); err != nil {
		return err
	}
	if w.state == StatePlaying {
		return nil
	}
	w.transition(StatePlaying)
	return nil
}

func (w *headlessWidget) Pause() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.usable(); err != nil {
		return err
	}
	if w.state == StatePaused {
		return nil
	}
	w.transition(StatePaused)
	return nil
}

func (w *headlessWidget) SeekTo(seconds float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.usable(); err != nil {
		return err
	}
	if seconds < 0 {
		seconds = 0
	}
	if seconds > w.duration {
		seconds = w.duration
	}
	w.position = seconds
	if w.state == StatePlaying {
		w.playingSince = time.Now()
	}
	return nil
}

func (w *headlessWidget) CurrentTime() (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.usable(); err != nil {
		return 0, err
	}
	return w.playhead(), nil
}

func (w *headlessWidget) Duration() (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.usable(); err != nil {
		return 0, err
	}
	return w.duration, nil
}

func (w *headlessWidget) Volume() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.usable(); err != nil {
		return 0, err
	}
	return w.volume, nil
}

func (w *headlessWidget) SetVolume(volume int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.usable(); err != nil {
		return err
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	w.volume = volume
	return nil
}

func (w *headlessWidget) State() WidgetState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *headlessWidget) Destroy() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.destroyed = true
	w.onStateChange = nil
}
