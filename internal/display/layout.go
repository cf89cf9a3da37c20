package display

import (
	"strings"

	"github.com/Zyko0/go-sdl3/sdl"

	"github.com/eAi-solutions/mvast-fmri-task/internal/config"
)

const (
	minFontSize  = 24
	lineSpacing  = 10
	blankLineGap = 20
)

var (
	black  = sdl.Color{R: 0, G: 0, B: 0, A: 255}
	white  = sdl.Color{R: 255, G: 255, B: 255, A: 255}
	blue   = sdl.Color{R: 0, G: 0, B: 255, A: 255}
	yellow = sdl.Color{R: 255, G: 255, B: 0, A: 255}
)

// schemeColors returns the background and foreground of a color scheme.
// Unknown names get blue_yellow.
func schemeColors(scheme string) (bg, fg sdl.Color) {
	if strings.EqualFold(scheme, config.SchemeBlackWhite) {
		return black, white
	}
	return blue, yellow
}

// crossRects returns the horizontal and vertical bars of a plus sign
// centered on a w x h screen.
func crossRects(w, h int) (horizontal, vertical sdl.FRect) {
	size := min(w, h) / 8
	thickness := max(3, size/20)
	cx, cy := w/2, h/2
	horizontal = sdl.FRect{
		X: float32(cx - size/2),
		Y: float32(cy - thickness/2),
		W: float32(size),
		H: float32(thickness),
	}
	vertical = sdl.FRect{
		X: float32(cx - thickness/2),
		Y: float32(cy - size/2),
		W: float32(thickness),
		H: float32(size),
	}
	return horizontal, vertical
}

func fontSize(screenH int) int {
	return max(minFontSize, screenH/25)
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return lines
}

// lineTops lays out a block of lines centered vertically on a screen of
// height screenH. A height of zero marks a blank line.
func lineTops(heights []int, screenH int) []int {
	total := 0
	for _, h := range heights {
		total += lineAdvance(h)
	}
	tops := make([]int, len(heights))
	y := (screenH - total) / 2
	for i, h := range heights {
		tops[i] = y
		y += lineAdvance(h)
	}
	return tops
}

func lineAdvance(h int) int {
	if h == 0 {
		return blankLineGap
	}
	return h + lineSpacing
}

type lineSize struct{ w, h int }

// lineRects centers a block of lines on a w x h screen, one rect per line.
// A zero height marks a blank line.
func lineRects(sizes []lineSize, w, h int) []sdl.FRect {
	heights := make([]int, len(sizes))
	for i, s := range sizes {
		heights[i] = s.h
	}
	tops := lineTops(heights, h)
	rects := make([]sdl.FRect, len(sizes))
	for i, s := range sizes {
		rects[i] = sdl.FRect{
			X: float32((w - s.w) / 2),
			Y: float32(tops[i]),
			W: float32(s.w),
			H: float32(s.h),
		}
	}
	return rects
}

// outputSize prefers the size the renderer reports and falls back to the
// configured one when the query fails.
func outputSize(w, h int, err error, fallbackW, fallbackH int) (int, int) {
	if err != nil || w <= 0 || h <= 0 {
		return fallbackW, fallbackH
	}
	return w, h
}
