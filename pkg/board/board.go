// Package board is a display's local copy of the wish board. It owns the
// registry, the motion simulator and the spotlight under a single lock so a
// frame never observes half of an applied event.
package board

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/astromechza/wishboard/pkg/layout"
	"github.com/astromechza/wishboard/pkg/registry"
	"github.com/astromechza/wishboard/pkg/spotlight"
	"github.com/astromechza/wishboard/pkg/wish"
)

const DefaultTheme = "default"

// Surface is where frames end up.
type Surface interface {
	Bounds() layout.Size
	Apply(Frame)
}

type Card struct {
	Wish    wish.Wish
	State   layout.RenderState
	Spotlit bool
}

// Frame is an immutable picture of the board handed to the surface.
type Frame struct {
	Cards     []Card
	Spotlight *wish.Wish
	Theme     string
	Stale     bool
	Bounds    layout.Size
}

func (f Frame) Count() int {
	return len(f.Cards)
}

type options struct {
	layout          layout.Config
	rng             *rand.Rand
	now             func() time.Time
	tombstoneWindow time.Duration
	tombstoneMax    int
	spotlightWindow time.Duration
}

type Option func(*options)

func WithLayout(cfg layout.Config) Option {
	return func(o *options) { o.layout = cfg }
}

func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithTombstones(window time.Duration, max int) Option {
	return func(o *options) {
		o.tombstoneWindow = window
		o.tombstoneMax = max
	}
}

func WithSpotlightWindow(window time.Duration) Option {
	return func(o *options) { o.spotlightWindow = window }
}

type Board struct {
	surface Surface
	now     func() time.Time

	mu     sync.Mutex
	reg    *registry.Registry
	sim    *layout.Simulator
	spot   *spotlight.Arbiter
	stale  bool
	bounds layout.Size

	theme atomic.Value
}

func New(surface Surface, opts ...Option) *Board {
	o := options{
		layout:          layout.DefaultConfig(),
		now:             time.Now,
		tombstoneWindow: registry.DefaultTombstoneWindow,
		tombstoneMax:    registry.DefaultMaxTombstones,
		spotlightWindow: spotlight.DefaultPendingWindow,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	b := &Board{
		surface: surface,
		now:     o.now,
		reg:     registry.New(registry.WithClock(o.now), registry.WithTombstones(o.tombstoneWindow, o.tombstoneMax)),
		sim:     layout.New(o.layout, o.rng),
		spot:    spotlight.New(o.spotlightWindow),
	}
	b.theme.Store(DefaultTheme)
	return b
}

func (b *Board) currentBoundsLocked() layout.Size {
	if b.surface != nil {
		b.bounds = b.surface.Bounds()
	}
	return b.bounds
}

func (b *Board) admitLocked(w wish.Wish) bool {
	if !b.reg.Admit(w) {
		return false
	}
	b.sim.Insert(w.ID, b.currentBoundsLocked())
	if b.spot.Admitted(w.ID, b.now()) {
		slog.Info("pending spotlight promoted", "id", w.ID)
	}
	return true
}

// ResetTo replaces the whole board with a snapshot and clears the stale mark.
// An active spotlight survives when its wish is still in the snapshot, so the
// relay's follow-up spotlight frame is a no-op rather than a second effect.
// A pending spotlight is always dropped.
func (b *Board) ResetTo(wishes []wish.Wish) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, hadSpot := b.spot.Current()
	b.reg.Clear()
	b.sim.Clear()
	b.spot.Clear()
	b.stale = false
	for _, w := range wishes {
		if w.ID == "" {
			slog.Warn("snapshot wish without id skipped", "name", w.ChildName)
			continue
		}
		b.admitLocked(w)
	}
	if hadSpot && b.reg.Has(prev) {
		b.spot.Set(prev, true, b.now())
	}
}

func (b *Board) Admit(w wish.Wish) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.admitLocked(w)
}

func (b *Board) Evict(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.reg.Evict(id) {
		b.spot.Evicted(id)
		return false
	}
	b.sim.Remove(id)
	if b.spot.Evicted(id) {
		slog.Debug("spotlighted wish removed", "id", id)
	}
	return true
}

func (b *Board) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reg.Clear()
	b.sim.Clear()
	b.spot.Clear()
}

// Spotlight focuses w. It returns true if the focus changed.
func (b *Board) Spotlight(w wish.Wish) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spot.Set(w.ID, b.reg.Has(w.ID), b.now())
}

func (b *Board) SpotlightOff() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spot.Clear()
}

func (b *Board) SetTheme(theme string) {
	if theme == "" {
		theme = DefaultTheme
	}
	b.theme.Store(theme)
}

func (b *Board) Theme() string {
	return b.theme.Load().(string)
}

// MarkStale flags the board as possibly out of date until the next snapshot.
func (b *Board) MarkStale() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stale = true
}

func (b *Board) Stale() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stale
}

func (b *Board) Wishes() []wish.Wish {
	return b.reg.All()
}

func (b *Board) Len() int {
	return b.reg.Len()
}

// RenderStates is the number of cards the simulator is moving.
func (b *Board) RenderStates() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sim.Len()
}

func (b *Board) State(id string) (layout.RenderState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sim.State(id)
}

func (b *Board) Current() (wish.Wish, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.spot.Current()
	if !ok {
		return wish.Wish{}, false
	}
	return b.reg.Get(id)
}

// Tick advances the simulation by one frame on a surface of the given size
// and returns the resulting frame. A changed size clamps every card first.
func (b *Board) Tick(bounds layout.Size) Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	if bounds != b.sim.Bounds() && b.sim.Len() > 0 {
		b.sim.Resize(bounds)
	}
	b.bounds = bounds
	wishes := b.reg.All()
	ids := make([]string, len(wishes))
	for i, w := range wishes {
		ids[i] = w.ID
	}
	b.sim.Step(ids, bounds)
	b.spot.Expire(b.now())

	frame := Frame{
		Cards:  make([]Card, 0, len(wishes)),
		Theme:  b.Theme(),
		Stale:  b.stale,
		Bounds: bounds,
	}
	active, _ := b.spot.Current()
	for _, w := range wishes {
		st, ok := b.sim.State(w.ID)
		if !ok {
			continue
		}
		card := Card{Wish: w, State: st, Spotlit: w.ID == active}
		if card.Spotlit {
			focused := w
			frame.Spotlight = &focused
		}
		frame.Cards = append(frame.Cards, card)
	}
	return frame
}

// Render ticks once against the surface's current size and hands it the
// frame outside the lock.
func (b *Board) Render() {
	frame := b.Tick(b.surface.Bounds())
	b.surface.Apply(frame)
}

// RunFrames renders at the given interval until ctx is done.
func (b *Board) RunFrames(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Render()
		}
	}
}
