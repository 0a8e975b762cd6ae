// Package layout runs the floating-card motion for a board. Every card drifts
// with a constant velocity, bounces off the padded walls of the surface and
// rocks back and forth within a fixed angle.
package layout

import (
	"math"
	"math/rand"
)

// RotationBound is the absolute tilt, in degrees, at which a card's spin
// reverses.
const RotationBound = 15.0

// Size is the drawable area reported by a render surface, in surface units.
type Size struct {
	Width  float64
	Height float64
}

// Config holds the geometry and speed ranges. Units are whatever the surface
// reports its bounds in.
type Config struct {
	Padding float64
	// ItemWidth and ItemHeight bound motion: a card's origin stays within
	// [Padding, dimension-Item].
	ItemWidth  float64
	ItemHeight float64
	// SpawnWidth and SpawnHeight bound the initial placement; they are at
	// least as large as the item so new cards start fully visible.
	SpawnWidth  float64
	SpawnHeight float64
	MaxSpeed    float64
	MaxSpin     float64
	SpawnTilt   float64
}

// DefaultConfig matches a pixel surface with cards of roughly 220x280.
func DefaultConfig() Config {
	return Config{
		Padding:     20,
		ItemWidth:   220,
		ItemHeight:  280,
		SpawnWidth:  250,
		SpawnHeight: 350,
		MaxSpeed:    0.6,
		MaxSpin:     0.15,
		SpawnTilt:   4,
	}
}

type RenderState struct {
	X        float64
	Y        float64
	VX       float64
	VY       float64
	Rotation float64
	Spin     float64
}

type Simulator struct {
	cfg    Config
	rng    *rand.Rand
	states map[string]*RenderState
	bounds Size
}

// New creates a simulator drawing from rng. Pass a fixed seed in tests.
func New(cfg Config, rng *rand.Rand) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if cfg.SpawnWidth < cfg.ItemWidth {
		cfg.SpawnWidth = cfg.ItemWidth
	}
	if cfg.SpawnHeight < cfg.ItemHeight {
		cfg.SpawnHeight = cfg.ItemHeight
	}
	return &Simulator{
		cfg:    cfg,
		rng:    rng,
		states: make(map[string]*RenderState),
	}
}

func (s *Simulator) Config() Config {
	return s.cfg
}

// Bounds returns the surface size of the last Step or Resize. Insert does not
// change it, so a caller can still tell the existing cards need clamping.
func (s *Simulator) Bounds() Size {
	return s.bounds
}

// Insert creates the render state for id at a random position inside the
// padded spawn rectangle. It does nothing if id already has one.
func (s *Simulator) Insert(id string, bounds Size) {
	if _, ok := s.states[id]; ok {
		return
	}
	spanX := span(bounds.Width-s.cfg.SpawnWidth, s.cfg.Padding)
	spanY := span(bounds.Height-s.cfg.SpawnHeight, s.cfg.Padding)

	s.states[id] = &RenderState{
		X:        s.cfg.Padding + s.rng.Float64()*spanX,
		Y:        s.cfg.Padding + s.rng.Float64()*spanY,
		VX:       s.symmetric(s.cfg.MaxSpeed),
		VY:       s.symmetric(s.cfg.MaxSpeed),
		Rotation: s.symmetric(math.Min(s.cfg.SpawnTilt, RotationBound)),
		Spin:     s.symmetric(s.cfg.MaxSpin),
	}
}

func (s *Simulator) Remove(id string) {
	delete(s.states, id)
}

func (s *Simulator) Clear() {
	s.states = make(map[string]*RenderState)
}

func (s *Simulator) Len() int {
	return len(s.states)
}

// State returns a copy of the render state for id.
func (s *Simulator) State(id string) (RenderState, bool) {
	st, ok := s.states[id]
	if !ok {
		return RenderState{}, false
	}
	return *st, true
}

// Step advances every card listed in ids by one frame. Render states for ids
// that are no longer listed are dropped.
func (s *Simulator) Step(ids []string, bounds Size) {
	s.bounds = bounds
	minX, maxX, minY, maxY := s.limits(bounds)
	live := 0
	for _, id := range ids {
		st, ok := s.states[id]
		if !ok {
			continue
		}
		live++
		st.X += st.VX
		st.Y += st.VY
		st.Rotation += st.Spin

		st.X, st.VX = reflect(st.X, st.VX, minX, maxX)
		st.Y, st.VY = reflect(st.Y, st.VY, minY, maxY)

		if st.Rotation > RotationBound {
			st.Rotation = RotationBound
			st.Spin = -math.Abs(st.Spin)
		} else if st.Rotation < -RotationBound {
			st.Rotation = -RotationBound
			st.Spin = math.Abs(st.Spin)
		}
	}
	if live != len(s.states) {
		s.prune(ids)
	}
}

// Resize clamps every card into the new bounds without touching velocities.
func (s *Simulator) Resize(bounds Size) {
	s.bounds = bounds
	minX, maxX, minY, maxY := s.limits(bounds)
	for _, st := range s.states {
		st.X = clamp(st.X, minX, maxX)
		st.Y = clamp(st.Y, minY, maxY)
	}
}

// Limits returns the allowed range for a card origin on a surface of the
// given size.
func (s *Simulator) Limits(bounds Size) (minX, maxX, minY, maxY float64) {
	return s.limits(bounds)
}

func (s *Simulator) limits(bounds Size) (minX, maxX, minY, maxY float64) {
	minX = s.cfg.Padding
	minY = s.cfg.Padding
	maxX = math.Max(minX, bounds.Width-s.cfg.ItemWidth)
	maxY = math.Max(minY, bounds.Height-s.cfg.ItemHeight)
	return
}

func (s *Simulator) prune(ids []string) {
	live := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		live[id] = struct{}{}
	}
	for id := range s.states {
		if _, ok := live[id]; !ok {
			delete(s.states, id)
		}
	}
}

func (s *Simulator) symmetric(limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return (s.rng.Float64()*2 - 1) * limit
}

// span is the width of the random placement range; it never goes negative on
// a surface smaller than a card.
func span(free, padding float64) float64 {
	return math.Max(0, free-padding)
}

func reflect(pos, vel, lo, hi float64) (float64, float64) {
	if pos < lo {
		return lo, math.Abs(vel)
	}
	if pos > hi {
		return hi, -math.Abs(vel)
	}
	return pos, vel
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
