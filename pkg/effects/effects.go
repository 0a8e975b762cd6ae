// Package effects turns applied board events into one-shot sounds and
// visuals. Nothing here may hold up event application: actions are fire and
// forget and their failures are only logged.
package effects

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/astromechza/wishboard/pkg/wish"
)

type Kind int

const (
	KindNewWish Kind = iota + 1
	KindSpotlight
	KindCleared
)

func (k Kind) String() string {
	switch k {
	case KindNewWish:
		return "new-wish"
	case KindSpotlight:
		return "spotlight"
	case KindCleared:
		return "cleared"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Sound int

const (
	SoundChime Sound = iota + 1
	SoundSpotlight
)

// AudioCapability plays sounds on some output device.
type AudioCapability interface {
	Play(Sound) error
	Close() error
}

// AudioFactory builds the audio capability. It is only called from Activate.
type AudioFactory func() (AudioCapability, error)

// Visuals is implemented by the render surface.
type Visuals interface {
	Confetti()
	Toast(message string)
	ResetEffects()
}

var ErrAudioInactive = errors.New("audio has not been activated")

type Dispatcher struct {
	visuals Visuals
	factory AudioFactory

	activateMu sync.Mutex

	audioMu  sync.RWMutex
	audio    AudioCapability
	inflight sync.WaitGroup

	muted atomic.Bool
}

// NewDispatcher creates a dispatcher with no audio. visuals and factory may
// be nil.
func NewDispatcher(visuals Visuals, factory AudioFactory) *Dispatcher {
	return &Dispatcher{visuals: visuals, factory: factory}
}

// Activate creates the audio capability. Browsers and some desktops only
// allow audio after a user gesture, so hosts call this on the first one.
// Calling it again after success is a no-op.
func (d *Dispatcher) Activate() error {
	d.activateMu.Lock()
	defer d.activateMu.Unlock()

	if d.Active() {
		return nil
	}
	if d.factory == nil {
		return fmt.Errorf("no audio backend configured")
	}
	capability, err := d.factory()
	if err != nil {
		return fmt.Errorf("failed to activate audio: %w", err)
	}
	d.audioMu.Lock()
	d.audio = capability
	d.audioMu.Unlock()
	slog.Info("audio activated")
	return nil
}

func (d *Dispatcher) Active() bool {
	d.audioMu.RLock()
	defer d.audioMu.RUnlock()
	return d.audio != nil
}

func (d *Dispatcher) SetMuted(muted bool) {
	d.muted.Store(muted)
}

// ToggleMute flips the mute flag and returns the new value.
func (d *Dispatcher) ToggleMute() bool {
	for {
		old := d.muted.Load()
		if d.muted.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

func (d *Dispatcher) Muted() bool {
	return d.muted.Load()
}

// Dispatch runs the effects for kind. It never blocks on audio.
func (d *Dispatcher) Dispatch(kind Kind, w wish.Wish) {
	switch kind {
	case KindNewWish:
		d.play(SoundChime)
		d.visual("confetti", func(v Visuals) { v.Confetti() })
		d.visual("toast", func(v Visuals) { v.Toast(fmt.Sprintf("🎉 %s made a wish!", w.ChildName)) })
	case KindSpotlight:
		d.play(SoundSpotlight)
	case KindCleared:
		d.visual("reset", func(v Visuals) { v.ResetEffects() })
	default:
		slog.Debug("no effect for kind", "kind", kind)
	}
}

// Wait blocks until in-flight audio actions have returned.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Close tears down the audio capability. A later Activate creates a new one.
func (d *Dispatcher) Close() error {
	d.activateMu.Lock()
	defer d.activateMu.Unlock()

	d.audioMu.Lock()
	capability := d.audio
	d.audio = nil
	d.audioMu.Unlock()

	d.inflight.Wait()
	if capability == nil {
		return nil
	}
	if err := capability.Close(); err != nil {
		return fmt.Errorf("failed to close audio: %w", err)
	}
	return nil
}

func (d *Dispatcher) play(s Sound) {
	if d.muted.Load() {
		return
	}
	d.audioMu.RLock()
	capability := d.audio
	if capability != nil {
		d.inflight.Add(1)
	}
	d.audioMu.RUnlock()
	if capability == nil {
		return
	}
	go func() {
		defer d.inflight.Done()
		defer swallow("audio")
		if err := capability.Play(s); err != nil {
			slog.Debug("sound failed", "sound", s, "err", err)
		}
	}()
}

func (d *Dispatcher) visual(name string, fn func(Visuals)) {
	if d.visuals == nil {
		return
	}
	defer swallow(name)
	fn(d.visuals)
}

func swallow(action string) {
	if r := recover(); r != nil {
		slog.Debug("effect action panicked", "action", action, "panic", r)
	}
}
