package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

var (
	colorWindow  = color.NRGBA{R: 0x2f, G: 0x2f, B: 0x2f, A: 0xff}
	colorButton  = color.NRGBA{R: 0x55, G: 0x55, B: 0x55, A: 0xff}
	colorHover   = color.NRGBA{R: 0x66, G: 0x66, B: 0x66, A: 0xff}
	colorPressed = color.NRGBA{R: 0x77, G: 0x77, B: 0x77, A: 0xff}
	colorPanel   = color.NRGBA{R: 0x55, G: 0x55, B: 0x55, A: 0xff}
	colorText    = color.White
)

// darkTheme is the default theme with the grey palette of the viewer.
type darkTheme struct {
	fyne.Theme
}

func newDarkTheme() fyne.Theme {
	return &darkTheme{Theme: theme.DefaultTheme()}
}

func (t *darkTheme) Color(name fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNameBackground:
		return colorWindow
	case theme.ColorNameButton:
		return colorButton
	case theme.ColorNameHover:
		return colorHover
	case theme.ColorNamePressed:
		return colorPressed
	case theme.ColorNameForeground:
		return colorText
	}
	return t.Theme.Color(name, theme.VariantDark)
}
