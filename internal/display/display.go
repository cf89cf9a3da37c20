// Package display renders the task on an SDL window and turns its input
// events into engine events.
package display

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Zyko0/go-sdl3/sdl"
	"github.com/Zyko0/go-sdl3/ttf"

	"github.com/eAi-solutions/mvast-fmri-task/engine"
)

const keyPollInterval = 10 * time.Millisecond

// InitError reports a display that could not be brought up.
type InitError struct {
	Step string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("display init: %s: %v", e.Step, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

type Options struct {
	Title      string
	Width      int
	Height     int
	Fullscreen bool
	VSync      bool
	FontFile   string
	Scheme     string
}

// Screen is an SDL window implementing engine.FrameSink. All methods must
// be called from the thread that opened it. Frames are drawn at the
// renderer's output size, which in fullscreen is the display mode rather
// than Options.Width x Options.Height.
type Screen struct {
	opts     Options
	width    int
	height   int
	logger   *slog.Logger
	window   *sdl.Window
	renderer *sdl.Renderer
	font     *ttf.Font
	pictures []*Picture
}

func Open(opts Options, logger *slog.Logger) (*Screen, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Title == "" {
		opts.Title = "M-VAST fMRI Task"
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, &InitError{Step: "sdl", Err: err}
	}
	if err := ttf.Init(); err != nil {
		sdl.Quit()
		return nil, &InitError{Step: "ttf", Err: err}
	}

	flags := sdl.WINDOW_RESIZABLE
	if opts.Fullscreen {
		flags |= sdl.WINDOW_FULLSCREEN
	}
	window, renderer, err := sdl.CreateWindowAndRenderer(opts.Title, opts.Width, opts.Height, flags)
	if err != nil {
		ttf.Quit()
		sdl.Quit()
		return nil, &InitError{Step: "window", Err: err}
	}
	if opts.VSync {
		renderer.SetVSync(1)
	} else {
		renderer.SetVSync(0)
	}

	s := &Screen{opts: opts, logger: logger, window: window, renderer: renderer}
	s.syncSize()
	s.font = s.openFont()
	window.StartTextInput()

	logger.Info("display opened",
		"width", s.width, "height", s.height,
		"fullscreen", opts.Fullscreen, "refresh_hz", s.RefreshRate())
	return s, nil
}

func (s *Screen) syncSize() {
	w, h, err := s.renderer.RenderOutputSize()
	s.width, s.height = outputSize(int(w), int(h), err, s.opts.Width, s.opts.Height)
}

// Size is the current drawing area in pixels.
func (s *Screen) Size() (int, int) { return s.width, s.height }

func (s *Screen) openFont() *ttf.Font {
	path := s.opts.FontFile
	if path == "" {
		path = DefaultFontPath()
	}
	if path == "" {
		s.logger.Warn("no font found, text screens will be blank")
		return nil
	}
	font, err := ttf.OpenFont(path, float32(fontSize(s.height)))
	if err != nil {
		s.logger.Warn("failed to load font", "path", path, "error", err)
		return nil
	}
	return font
}

// RefreshRate returns the display mode's refresh rate, or 60 when unknown.
func (s *Screen) RefreshRate() float32 {
	display := sdl.GetDisplayForWindow(s.window)
	mode, err := display.CurrentDisplayMode()
	if err == nil && mode.RefreshRate > 0 {
		return mode.RefreshRate
	}
	return 60
}

func (s *Screen) Close() {
	for _, p := range s.pictures {
		p.destroy()
	}
	s.pictures = nil
	if s.font != nil {
		s.font.Close()
	}
	s.window.StopTextInput()
	s.renderer.Destroy()
	s.window.Destroy()
	ttf.Quit()
	sdl.Quit()
}

func (s *Screen) Present(img engine.Image) {
	p, ok := img.(*Picture)
	if !ok {
		s.logger.Error("cannot present foreign image", "image", img.Name())
		return
	}
	p.draw(s.renderer, s.width, s.height)
	s.renderer.Present()
}

// ShowMessage draws white text on black.
func (s *Screen) ShowMessage(text string) {
	msg := &Picture{name: "message", bg: black, lines: renderText(s.renderer, s.font, text, white)}
	s.Present(msg)
	msg.destroy()
}

func (s *Screen) PollEvents() engine.Events {
	var out engine.Events
	var ev sdl.Event
	for sdl.PollEvent(&ev) {
		switch ev.Type {
		case sdl.EVENT_QUIT:
			out.Quit = true
		case sdl.EVENT_WINDOW_PIXEL_SIZE_CHANGED:
			s.syncSize()
			s.logger.Debug("display resized", "width", s.width, "height", s.height)
		case sdl.EVENT_KEY_DOWN:
			switch ev.KeyboardEvent().Key {
			case sdl.K_ESCAPE:
				out.Cancel = true
			case sdl.K_SPACE:
				out.Start = true
			}
		case sdl.EVENT_TEXT_INPUT:
			out.Typed = append(out.Typed, []rune(ev.TextInputEvent().Text)...)
		}
	}
	return out
}

// WaitForKey blocks until space or escape is pressed and reports whether
// it ended instead on a quit request or on ctx being done.
func (s *Screen) WaitForKey(ctx context.Context) (quit bool) {
	return waitForKey(ctx, s, keyPollInterval)
}

// Hold keeps the current frame on screen for d while servicing events, so
// the window stays responsive. A quit request or ctx being done ends it
// early.
func (s *Screen) Hold(ctx context.Context, d time.Duration) {
	hold(ctx, s, d, keyPollInterval)
}

type eventSource interface {
	PollEvents() engine.Events
}

func waitForKey(ctx context.Context, src eventSource, interval time.Duration) bool {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ev := src.PollEvents()
		if ev.Quit {
			return true
		}
		if ev.Start || ev.Cancel {
			return false
		}
		select {
		case <-ctx.Done():
			return true
		case <-ticker.C:
		}
	}
}

func hold(ctx context.Context, src eventSource, d, interval time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if src.PollEvents().Quit {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case <-ticker.C:
		}
	}
}
