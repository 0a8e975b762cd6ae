// Package audio plays the board sounds on the system speaker.
package audio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"github.com/astromechza/wishboard/pkg/effects"
)

const sampleRate = beep.SampleRate(48000)

// Speaker plays sounds through the system speaker. All sounds share one
// mixer so overlapping chimes do not cut each other off.
type Speaker struct {
	mu          sync.Mutex
	mixer       *beep.Mixer
	volume      float64
	initialized bool
}

// NewSpeaker initialises the speaker. It is meant to be passed to
// effects.NewDispatcher as the AudioFactory.
func NewSpeaker(volume float64) effects.AudioFactory {
	return func() (effects.AudioCapability, error) {
		a := &Speaker{mixer: &beep.Mixer{}, volume: clampVolume(volume)}
		if err := a.initialize(); err != nil {
			return nil, err
		}
		return a, nil
	}
}

func (a *Speaker) initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}
	if err := speaker.Init(sampleRate, sampleRate.N(100*time.Millisecond)); err != nil {
		return fmt.Errorf("failed to init speaker: %w", err)
	}
	speaker.Play(a.mixer)
	a.initialized = true
	return nil
}

func (a *Speaker) Play(s effects.Sound) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return effects.ErrAudioInactive
	}
	streamer, err := soundStreamer(s, sampleRate, a.volume)
	if err != nil {
		return err
	}
	speaker.Lock()
	a.mixer.Add(streamer)
	speaker.Unlock()
	return nil
}

func (a *Speaker) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil
	}
	speaker.Lock()
	a.mixer.Clear()
	speaker.Unlock()
	speaker.Close()
	a.initialized = false
	return nil
}

func soundStreamer(s effects.Sound, sr beep.SampleRate, volume float64) (beep.Streamer, error) {
	switch s {
	case effects.SoundChime:
		return NewChime(sr, volume), nil
	case effects.SoundSpotlight:
		return NewSweep(sr, volume), nil
	default:
		return nil, fmt.Errorf("unknown sound %d", s)
	}
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Chime is a three step "ding" (880, 1100, 1320 Hz) with an exponential fade
// over half a second.
type Chime struct {
	sr     beep.SampleRate
	pos    int
	total  int
	volume float64
}

func NewChime(sr beep.SampleRate, volume float64) *Chime {
	return &Chime{sr: sr, total: sr.N(500 * time.Millisecond), volume: volume}
}

func (c *Chime) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if c.pos >= c.total {
			return i, i > 0
		}
		t := float64(c.pos) / float64(c.sr)
		freq := 880.0
		switch {
		case t >= 0.2:
			freq = 1320
		case t >= 0.1:
			freq = 1100
		}
		// 0.3 -> 0.01 across the whole sound
		gain := 0.3 * math.Pow(0.01/0.3, t/0.5)
		sample := c.volume * gain * math.Sin(2*math.Pi*freq*t)
		samples[i][0] = sample
		samples[i][1] = sample
		c.pos++
	}
	return len(samples), true
}

func (c *Chime) Err() error {
	return nil
}

// Sweep rises from 440 to 1760 Hz over 0.6s and fades out by 0.8s.
type Sweep struct {
	sr     beep.SampleRate
	pos    int
	total  int
	phase  float64
	volume float64
}

func NewSweep(sr beep.SampleRate, volume float64) *Sweep {
	return &Sweep{sr: sr, total: sr.N(800 * time.Millisecond), volume: volume}
}

func (s *Sweep) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if s.pos >= s.total {
			return i, i > 0
		}
		t := float64(s.pos) / float64(s.sr)
		freq := 440 * math.Pow(4, math.Min(t, 0.6)/0.6)
		gain := 0.2 * math.Pow(0.01/0.2, t/0.8)
		s.phase += freq / float64(s.sr)
		s.phase -= math.Floor(s.phase)
		sample := s.volume * gain * math.Sin(2*math.Pi*s.phase)
		samples[i][0] = sample
		samples[i][1] = sample
		s.pos++
	}
	return len(samples), true
}

func (s *Sweep) Err() error {
	return nil
}
