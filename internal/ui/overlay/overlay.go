// Package overlay draws a box over an already rendered screen, keeping
// the screen's styling on either side of the box.
package overlay

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Position is where the box lands.
type Position int

const (
	Center Position = iota
	Top
	Bottom
)

// Config sizes the screen and positions the box. PadY is the gap from the
// top or bottom edge.
type Config struct {
	Width    int
	Height   int
	Position Position
	PadY     int
}

// Place renders fg on top of bg.
func Place(cfg Config, fg, bg string) string {
	screen := strings.Split(bg, "\n")
	for len(screen) < cfg.Height {
		screen = append(screen, strings.Repeat(" ", cfg.Width))
	}

	box := strings.Split(fg, "\n")
	x, y := origin(cfg, lipgloss.Width(fg), len(box))

	for i, row := range box {
		line := y + i
		if line >= len(screen) {
			break
		}
		screen[line] = splice(screen[line], row, x)
	}
	return strings.Join(screen, "\n")
}

// splice replaces the cells of line starting at x with row.
func splice(line, row string, x int) string {
	left := ansi.Truncate(line, x, "")
	if w := ansi.StringWidth(left); w < x {
		left += strings.Repeat(" ", x-w)
	}
	end := x + ansi.StringWidth(row)
	right := ""
	if end < ansi.StringWidth(line) {
		right = ansi.TruncateLeft(line, end, "")
	}
	return left + row + right
}

func origin(cfg Config, w, h int) (x, y int) {
	x = (cfg.Width - w) / 2
	switch cfg.Position {
	case Top:
		y = cfg.PadY
	case Bottom:
		y = cfg.Height - h - cfg.PadY
	default:
		y = (cfg.Height - h) / 2
	}
	return max(x, 0), max(y, 0)
}
