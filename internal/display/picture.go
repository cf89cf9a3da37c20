package display

import (
	"github.com/Zyko0/go-sdl3/sdl"
	"github.com/Zyko0/go-sdl3/ttf"
)

// Picture is a full-screen frame prepared ahead of time so that presenting
// it during a timed phase costs only a few draw calls. Geometry is worked
// out at draw time against the current output size.
type Picture struct {
	name  string
	bg    sdl.Color
	image *sdl.Texture

	fg    sdl.Color
	cross bool

	lines []lineTexture
}

// lineTexture is one rendered line of text. A nil tex is a blank line.
type lineTexture struct {
	tex  *sdl.Texture
	size lineSize
}

func (p *Picture) Name() string { return p.name }

func (p *Picture) draw(r *sdl.Renderer, w, h int) {
	r.SetDrawColor(p.bg.R, p.bg.G, p.bg.B, p.bg.A)
	r.Clear()
	if p.image != nil {
		r.RenderTexture(p.image, nil, &sdl.FRect{W: float32(w), H: float32(h)})
	}
	if p.cross {
		horizontal, vertical := crossRects(w, h)
		r.SetDrawColor(p.fg.R, p.fg.G, p.fg.B, p.fg.A)
		r.RenderFillRect(&horizontal)
		r.RenderFillRect(&vertical)
	}
	if len(p.lines) > 0 {
		sizes := make([]lineSize, len(p.lines))
		for i, l := range p.lines {
			sizes[i] = l.size
		}
		rects := lineRects(sizes, w, h)
		for i, l := range p.lines {
			if l.tex != nil {
				r.RenderTexture(l.tex, nil, &rects[i])
			}
		}
	}
}

func (p *Picture) destroy() {
	if p.image != nil {
		p.image.Destroy()
		p.image = nil
	}
	for _, l := range p.lines {
		if l.tex != nil {
			l.tex.Destroy()
		}
	}
	p.lines = nil
}

// renderText rasterizes text line by line. Lines that fail to render are
// kept as blank lines.
func renderText(r *sdl.Renderer, font *ttf.Font, text string, color sdl.Color) []lineTexture {
	if font == nil {
		return nil
	}
	lines := splitLines(text)
	out := make([]lineTexture, len(lines))
	for i, line := range lines {
		if line == "" {
			continue
		}
		surf, err := font.RenderTextBlended(line, color)
		if err != nil || surf == nil {
			continue
		}
		tex, err := r.CreateTextureFromSurface(surf)
		if err == nil {
			out[i] = lineTexture{tex: tex, size: lineSize{w: int(surf.W), h: int(surf.H)}}
		}
		surf.Destroy()
	}
	return out
}
