package surface

import (
	"context"
	"log/slog"

	"github.com/gdamore/tcell/v2"
)

// Controls are the host actions reachable from the keyboard.
type Controls struct {
	// Activate is called on every key press until it succeeds once.
	Activate   func() error
	ToggleMute func() bool
	// Resize is called after the terminal changed size.
	Resize func()
}

type Input struct {
	term      *Terminal
	controls  Controls
	activated bool
}

func NewInput(term *Terminal, controls Controls) *Input {
	return &Input{term: term, controls: controls}
}

// Handle processes one event and returns false when the user asked to quit.
func (in *Input) Handle(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		in.activate()
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			return false
		}
		if ev.Key() == tcell.KeyRune {
			switch ev.Rune() {
			case 'q', 'Q':
				return false
			case 'm', 'M':
				if in.controls.ToggleMute != nil {
					muted := in.controls.ToggleMute()
					in.term.SetMuted(muted)
					slog.Info("toggled mute", "muted", muted)
				}
			}
		}
	case *tcell.EventResize:
		in.term.screen.Sync()
		if in.controls.Resize != nil {
			in.controls.Resize()
		}
	}
	return true
}

func (in *Input) activate() {
	if in.activated || in.controls.Activate == nil {
		return
	}
	if err := in.controls.Activate(); err != nil {
		slog.Warn("failed to activate audio", "err", err)
		return
	}
	in.activated = true
}

// Run feeds screen events to Handle until ctx is done or the user quits.
// The screen must be finalised by the caller, which also unblocks the poller.
func (in *Input) Run(ctx context.Context) {
	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := in.term.screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok || !in.Handle(ev) {
				return
			}
		}
	}
}
