// Package layout places document text on a fixed-pitch grid and selects the
// part of it visible in a scrolled window.
package layout

import (
	"sort"
	"strings"
)

const (
	// HStep is the horizontal advance per character.
	HStep = 15
	// VStep is the line height.
	VStep = 18
	// ScrollStep is how far one page-down scrolls.
	ScrollStep = 100
)

// Item is one character placed at (X, Y).
type Item struct {
	X, Y int
	Rune rune
}

// Layout places each rune of text left to right, wrapping to a new line
// when the cursor reaches width - HStep.
func Layout(text string, width int) []Item {
	items := make([]Item, 0, len(text))
	x, y := HStep, VStep
	for _, r := range text {
		items = append(items, Item{X: x, Y: y, Rune: r})
		x += HStep
		if x >= width-HStep {
			y += VStep
			x = HStep
		}
	}
	return items
}

// Visible returns the items that intersect a window of the given height
// scrolled down by scroll.
func Visible(items []Item, scroll, height int) []Item {
	var out []Item
	for _, it := range items {
		if it.Y > scroll+height || it.Y+VStep < scroll {
			continue
		}
		out = append(out, it)
	}
	return out
}

// Height returns the Y coordinate of the last line, or 0 for no items.
func Height(items []Item) int {
	if len(items) == 0 {
		return 0
	}
	return items[len(items)-1].Y
}

// Lines renders items back into text rows, one per distinct Y. Control
// characters render as spaces.
func Lines(items []Item) []string {
	rows := make(map[int][]Item)
	for _, it := range items {
		rows[it.Y] = append(rows[it.Y], it)
	}

	ys := make([]int, 0, len(rows))
	for y := range rows {
		ys = append(ys, y)
	}
	sort.Ints(ys)

	lines := make([]string, 0, len(ys))
	for _, y := range ys {
		var b strings.Builder
		col := 0
		for _, it := range rows[y] {
			for ; col < (it.X-HStep)/HStep; col++ {
				b.WriteByte(' ')
			}
			r := it.Rune
			if r < ' ' || r == 0x7f {
				r = ' '
			}
			b.WriteRune(r)
			col++
		}
		lines = append(lines, strings.TrimRight(b.String(), " "))
	}
	return lines
}
