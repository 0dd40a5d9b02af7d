package tui

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/disintegration/gift"
)

// halfBlocks draws img into cols x rows terminal cells. Each cell shows two
// vertically stacked pixels: the upper half as foreground of "▀", the lower
// half as background.
func halfBlocks(img image.Image, cols, rows int) string {
	if img == nil || cols <= 0 || rows <= 0 {
		return ""
	}
	g := gift.New(gift.Resize(cols, rows*2, gift.BoxResampling))
	small := image.NewRGBA(g.Bounds(img.Bounds()))
	g.Draw(small, img)

	var sb strings.Builder
	for y := 0; y < rows; y++ {
		if y > 0 {
			sb.WriteByte('\n')
		}
		for x := 0; x < cols; x++ {
			top := small.RGBAAt(x, 2*y)
			bottom := small.RGBAAt(x, 2*y+1)
			sb.WriteString(lipgloss.NewStyle().
				Foreground(hex(top)).
				Background(hex(bottom)).
				Render("▀"))
		}
	}
	return sb.String()
}

func hex(c color.RGBA) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
}

// emptyMap is the placeholder shown before the first frame.
func emptyMap(cols, rows int, text string) string {
	return lipgloss.Place(cols, rows, lipgloss.Center, lipgloss.Center, text)
}
