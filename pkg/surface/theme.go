package surface

import "github.com/gdamore/tcell/v2"

type Palette struct {
	Background tcell.Color
	Text       tcell.Color
	Muted      tcell.Color
	Border     tcell.Color
	Spotlight  tcell.Color
	Accent     tcell.Color
	Confetti   []tcell.Color
}

var palettes = map[string]Palette{
	"default": {
		Background: tcell.ColorBlack,
		Text:       tcell.ColorWhite,
		Muted:      tcell.ColorGray,
		Border:     tcell.ColorLightSkyBlue,
		Spotlight:  tcell.ColorGold,
		Accent:     tcell.ColorHotPink,
		Confetti:   []tcell.Color{tcell.ColorRed, tcell.ColorYellow, tcell.ColorLime, tcell.ColorAqua, tcell.ColorFuchsia},
	},
	"night": {
		Background: tcell.NewRGBColor(10, 12, 40),
		Text:       tcell.ColorLightGray,
		Muted:      tcell.ColorSlateGray,
		Border:     tcell.ColorMediumPurple,
		Spotlight:  tcell.ColorLightYellow,
		Accent:     tcell.ColorSilver,
		Confetti:   []tcell.Color{tcell.ColorLightYellow, tcell.ColorSilver, tcell.ColorMediumPurple},
	},
	"winter": {
		Background: tcell.NewRGBColor(220, 235, 250),
		Text:       tcell.ColorNavy,
		Muted:      tcell.ColorSteelBlue,
		Border:     tcell.ColorDodgerBlue,
		Spotlight:  tcell.ColorDarkRed,
		Accent:     tcell.ColorTeal,
		Confetti:   []tcell.Color{tcell.ColorWhite, tcell.ColorLightBlue, tcell.ColorDodgerBlue},
	},
	"spring": {
		Background: tcell.NewRGBColor(240, 250, 230),
		Text:       tcell.ColorDarkGreen,
		Muted:      tcell.ColorOliveDrab,
		Border:     tcell.ColorMediumSeaGreen,
		Spotlight:  tcell.ColorDeepPink,
		Accent:     tcell.ColorOrange,
		Confetti:   []tcell.Color{tcell.ColorPink, tcell.ColorYellow, tcell.ColorLightGreen, tcell.ColorViolet},
	},
}

// PaletteFor returns the palette for a theme name. Unknown themes get the
// default one.
func PaletteFor(theme string) Palette {
	if p, ok := palettes[theme]; ok {
		return p
	}
	return palettes["default"]
}

func (p Palette) base() tcell.Style {
	return tcell.StyleDefault.Background(p.Background).Foreground(p.Text)
}
