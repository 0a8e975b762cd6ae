// Package surface draws board frames on a terminal with tcell.
package surface

import (
	"fmt"
	"math"
	"math/rand"
	"path"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/astromechza/wishboard/pkg/board"
	"github.com/astromechza/wishboard/pkg/layout"
)

const (
	ToastDuration    = 4 * time.Second
	ConfettiDuration = 3 * time.Second
	confettiCount    = 40

	// the top and bottom rows hold the status line and the banner
	chromeRows = 2
)

var confettiGlyphs = []rune{'*', '+', '•', '✦', '❄', '♥'}

// LayoutConfig sizes the floating layout in terminal cells.
func LayoutConfig() layout.Config {
	return layout.Config{
		Padding:     1,
		ItemWidth:   20,
		ItemHeight:  5,
		SpawnWidth:  22,
		SpawnHeight: 6,
		MaxSpeed:    0.3,
		MaxSpin:     0.15,
		SpawnTilt:   4,
	}
}

type particle struct {
	x, y   float64
	vx, vy float64
	glyph  rune
	color  int
}

type Terminal struct {
	screen tcell.Screen
	cfg    layout.Config
	now    func() time.Time

	mu            sync.Mutex
	rng           *rand.Rand
	toast         string
	toastUntil    time.Time
	particles     []particle
	confettiUntil time.Time
	muted         bool
}

type Option func(*Terminal)

func WithClock(now func() time.Time) Option {
	return func(t *Terminal) { t.now = now }
}

func WithRand(rng *rand.Rand) Option {
	return func(t *Terminal) { t.rng = rng }
}

// New wraps an initialised screen. The caller owns Init and Fini.
func New(screen tcell.Screen, cfg layout.Config, opts ...Option) *Terminal {
	t := &Terminal{
		screen: screen,
		cfg:    cfg,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Bounds is the card area, excluding the status and banner rows.
func (t *Terminal) Bounds() layout.Size {
	w, h := t.screen.Size()
	return layout.Size{Width: float64(w), Height: float64(max(h-chromeRows, 0))}
}

func (t *Terminal) Confetti() {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, _ := t.screen.Size()
	for i := 0; i < confettiCount; i++ {
		t.particles = append(t.particles, particle{
			x:     float64(w)/2 + (t.rng.Float64()-0.5)*4,
			y:     1,
			vx:    (t.rng.Float64() - 0.5) * 2,
			vy:    t.rng.Float64()*0.6 + 0.2,
			glyph: confettiGlyphs[t.rng.Intn(len(confettiGlyphs))],
			color: t.rng.Int(),
		})
	}
	t.confettiUntil = t.now().Add(ConfettiDuration)
}

func (t *Terminal) Toast(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.toast = message
	t.toastUntil = t.now().Add(ToastDuration)
}

func (t *Terminal) ResetEffects() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.toast = ""
	t.particles = nil
}

// SetMuted only changes the status line.
func (t *Terminal) SetMuted(muted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.muted = muted
}

// Apply draws one frame and shows it.
func (t *Terminal) Apply(f board.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := PaletteFor(f.Theme)
	base := p.base()
	t.screen.SetStyle(base)
	t.screen.Clear()
	w, h := t.screen.Size()

	if f.Count() == 0 {
		msg := "Waiting for the first wish..."
		t.drawText((w-runewidth.StringWidth(msg))/2, h/2, base.Foreground(p.Muted), msg)
	}
	for _, c := range f.Cards {
		t.drawCard(c, p)
	}
	t.drawConfetti(p, w, h)
	t.drawStatus(f, p, w)
	t.drawBanner(f, p, w, h)
	t.screen.Show()
}

func (t *Terminal) drawStatus(f board.Frame, p Palette, width int) {
	style := p.base().Bold(true)
	left := fmt.Sprintf(" ✨ Wish Board  wishes: %d", f.Count())
	t.drawText(0, 0, style, left)

	right := f.Theme
	if t.muted {
		right = "muted  " + right
	}
	if f.Stale {
		right = "reconnecting...  " + right
	}
	right += " "
	t.drawText(width-runewidth.StringWidth(right), 0, p.base().Foreground(p.Muted), right)
}

func (t *Terminal) drawBanner(f board.Frame, p Palette, width, height int) {
	y := height - 1
	if y <= 0 {
		return
	}
	var msg string
	style := p.base()
	switch {
	case t.toast != "" && t.now().Before(t.toastUntil):
		msg = t.toast
		style = style.Foreground(p.Accent).Bold(true)
	case f.Spotlight != nil:
		msg = "★ SPOTLIGHT: " + f.Spotlight.ChildName + " ★"
		style = style.Foreground(p.Spotlight).Bold(true)
	default:
		msg = "q quit  m mute"
		style = style.Foreground(p.Muted)
	}
	t.drawText((width-runewidth.StringWidth(msg))/2, y, style, msg)
}

func (t *Terminal) drawCard(c board.Card, p Palette) {
	x0 := int(math.Round(c.State.X))
	y0 := int(math.Round(c.State.Y)) + 1
	cw, ch := int(t.cfg.ItemWidth), int(t.cfg.ItemHeight)
	if cw < 4 || ch < 3 {
		return
	}

	border := p.base().Foreground(p.Border)
	h, v, tl, tr, bl, br := '─', '│', '┌', '┐', '└', '┘'
	if c.Spotlit {
		border = p.base().Foreground(p.Spotlight).Bold(true)
		h, v, tl, tr, bl, br = '═', '║', '╔', '╗', '╚', '╝'
	}
	for x := x0 + 1; x < x0+cw-1; x++ {
		t.screen.SetContent(x, y0, h, nil, border)
		t.screen.SetContent(x, y0+ch-1, h, nil, border)
	}
	for y := y0 + 1; y < y0+ch-1; y++ {
		t.screen.SetContent(x0, y, v, nil, border)
		t.screen.SetContent(x0+cw-1, y, v, nil, border)
		for x := x0 + 1; x < x0+cw-1; x++ {
			t.screen.SetContent(x, y, ' ', nil, p.base())
		}
	}
	t.screen.SetContent(x0, y0, tl, nil, border)
	t.screen.SetContent(x0+cw-1, y0, tr, nil, border)
	t.screen.SetContent(x0, y0+ch-1, bl, nil, border)
	t.screen.SetContent(x0+cw-1, y0+ch-1, br, nil, border)
	if tilt := tiltGlyph(c.State.Rotation); tilt != 0 {
		t.screen.SetContent(x0+cw-2, y0, tilt, nil, border)
	}

	inner := cw - 2
	name := runewidth.Truncate(c.Wish.ChildName, inner, "…")
	t.drawText(x0+1+(inner-runewidth.StringWidth(name))/2, y0+1, p.base().Bold(true), name)
	if ch > 3 {
		photo := runewidth.Truncate("📷 "+path.Base(c.Wish.PhotoURL), inner, "…")
		t.drawText(x0+1+(inner-runewidth.StringWidth(photo))/2, y0+2, p.base().Foreground(p.Muted), photo)
	}
}

func tiltGlyph(rotation float64) rune {
	switch {
	case rotation <= -layout.RotationBound/3:
		return '╲'
	case rotation >= layout.RotationBound/3:
		return '╱'
	default:
		return 0
	}
}

func (t *Terminal) drawConfetti(p Palette, width, height int) {
	if len(t.particles) == 0 {
		return
	}
	if !t.now().Before(t.confettiUntil) {
		t.particles = nil
		return
	}
	kept := t.particles[:0]
	for _, pt := range t.particles {
		pt.x += pt.vx
		pt.y += pt.vy
		x, y := int(pt.x), int(pt.y)
		if x < 0 || x >= width || y < 1 || y >= height-1 {
			continue
		}
		colour := p.Confetti[pt.color%len(p.Confetti)]
		t.screen.SetContent(x, y, pt.glyph, nil, p.base().Foreground(colour))
		kept = append(kept, pt)
	}
	t.particles = kept
}

func (t *Terminal) drawText(x, y int, style tcell.Style, s string) {
	for _, r := range s {
		t.screen.SetContent(x, y, r, nil, style)
		x += max(runewidth.RuneWidth(r), 1)
	}
}
