package player

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/watchlounge/client/internal/domain"
)

var ErrNotReady = errors.New("player is not ready")

// Event is a player state change attributed to a local cause: either the
// user operated the widget directly or the engine drove it programmatically.
// The sync guard decides which of the two it was.
type Event struct {
	Action      domain.PlayerAction
	IsPlaying   bool
	CurrentTime float64
}

type Config struct {
	// ProbeInterval is how often the readiness probe re-checks the widget
	// after creation. The widget's own ready signal is not trusted: its API
	// surface can lag behind it.
	ProbeInterval time.Duration
	ProbeAttempts int
	Logger        *slog.Logger
}

// Adapter owns at most one widget instance at a time and presents the
// transport-agnostic control surface the sync engine works against.
type Adapter struct {
	factory       Factory
	probeInterval time.Duration
	probeAttempts int
	logger        *slog.Logger

	mu         sync.Mutex
	widget     Widget
	videoId    string
	ready      bool
	generation int
	onEvent    func(Event)
	onReady    func()
}

func NewAdapter(factory Factory, cfg *Config) *Adapter {
	probeInterval := cfg.ProbeInterval
	if probeInterval == 0 {
		probeInterval = 250 * time.Millisecond
	}
	probeAttempts := cfg.ProbeAttempts
	if probeAttempts == 0 {
		probeAttempts = 20
	}

	return &Adapter{
		factory:       factory,
		probeInterval: probeInterval,
		probeAttempts: probeAttempts,
		logger:        cfg.Logger,
	}
}

// OnEvent registers the sink for widget play/pause transitions. Buffering,
// ended and unstarted states are not forwarded.
func (a *Adapter) OnEvent(fn func(Event)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onEvent = fn
}

// OnReady registers the callback fired once the readiness probe succeeds.
// It fires again after every SetVideo re-initialization.
func (a *Adapter) OnReady(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onReady = fn
}

// SetVideo creates a widget for the given video. An existing widget playing a
// different video is destroyed first; keeping it around would leave the room
// watching the wrong video.
func (a *Adapter) SetVideo(videoId string) error {
	a.mu.Lock()

	if a.widget != nil {
		if a.videoId == videoId {
			a.mu.Unlock()
			return nil
		}

		a.logger.Info("replacing player widget", "old_video_id", a.videoId, "new_video_id", videoId)
		a.widget.Destroy()
		a.widget = nil
		a.ready = false
	}

	a.generation++
	generation := a.generation
	a.videoId = videoId
	a.mu.Unlock()

	widget, err := a.factory(videoId, func(sc StateChange) {
		a.handleStateChange(generation, sc)
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	if generation != a.generation {
		// a later SetVideo or Destroy won the race
		a.mu.Unlock()
		widget.Destroy()
		return nil
	}
	a.widget = widget
	a.mu.Unlock()

	go a.probeReady(generation, widget)

	return nil
}

// probeReady polls the widget until its control methods are verified
// callable. The widget's creation returning is not enough.
func (a *Adapter) probeReady(generation int, widget Widget) {
	ticker := time.NewTicker(a.probeInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= a.probeAttempts; attempt++ {
		<-ticker.C

		a.mu.Lock()
		if generation != a.generation {
			a.mu.Unlock()
			return
		}
		a.mu.Unlock()

		if _, err := widget.CurrentTime(); err != nil {
			continue
		}
		if _, err := widget.Duration(); err != nil {
			continue
		}

		a.mu.Lock()
		if generation != a.generation {
			a.mu.Unlock()
			return
		}
		a.ready = true
		onReady := a.onReady
		a.mu.Unlock()

		a.logger.Debug("player widget ready", "video_id", a.videoId, "probe_attempts", attempt)
		if onReady != nil {
			onReady()
		}
		return
	}

	a.logger.Warn("player widget never became ready", "video_id", a.videoId)
}

func (a *Adapter) handleStateChange(generation int, sc StateChange) {
	a.mu.Lock()
	if generation != a.generation {
		// event from a widget that has since been replaced
		a.mu.Unlock()
		return
	}
	onEvent := a.onEvent
	a.mu.Unlock()

	var event Event
	switch sc.State {
	case StatePlaying:
		event = Event{Action: domain.ActionPlay, IsPlaying: true, CurrentTime: roundTime(sc.CurrentTime)}
	case StatePaused:
		event = Event{Action: domain.ActionPause, IsPlaying: false, CurrentTime: roundTime(sc.CurrentTime)}
	default:
		return
	}

	if onEvent != nil {
		onEvent(event)
	}
}

func (a *Adapter) IsReady() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

func (a *Adapter) current() (Widget, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.widget, a.ready
}

func (a *Adapter) Play() error {
	widget, ready := a.current()
	if !ready {
		a.logger.Warn("play ignored: player not ready")
		return ErrNotReady
	}
	return widget.Play()
}

func (a *Adapter) Pause() error {
	widget, ready := a.current()
	if !ready {
		a.logger.Warn("pause ignored: player not ready")
		return ErrNotReady
	}
	return widget.Pause()
}

func (a *Adapter) SeekTo(seconds float64) error {
	widget, ready := a.current()
	if !ready {
		a.logger.Warn("seek ignored: player not ready", "seconds", seconds)
		return ErrNotReady
	}
	return widget.SeekTo(seconds)
}

// CurrentTime reports the playhead in seconds, rounded to two decimals.
func (a *Adapter) CurrentTime() (float64, error) {
	widget, ready := a.current()
	if !ready {
		return 0, ErrNotReady
	}

	t, err := widget.CurrentTime()
	if err != nil {
		return 0, err
	}
	return roundTime(t), nil
}

// Duration reports the widget's authoritative video length in whole seconds.
func (a *Adapter) Duration() (int, error) {
	widget, ready := a.current()
	if !ready {
		return 0, ErrNotReady
	}

	d, err := widget.Duration()
	if err != nil {
		return 0, err
	}
	return int(d), nil
}

func (a *Adapter) Volume() (int, error) {
	widget, ready := a.current()
	if !ready {
		return 0, ErrNotReady
	}
	return widget.Volume()
}

func (a *Adapter) SetVolume(volume int) error {
	widget, ready := a.current()
	if !ready {
		return ErrNotReady
	}
	return widget.SetVolume(volume)
}

// Destroy tears the widget down. Safe to call repeatedly and when no widget
// was ever created.
func (a *Adapter) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.generation++
	a.ready = false
	if a.widget != nil {
		a.widget.Destroy()
		a.widget = nil
	}
}

func roundTime(t float64) float64 {
	return math.Round(t*100) / 100
}
