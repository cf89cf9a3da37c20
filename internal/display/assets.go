package display

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Zyko0/go-sdl3/img"

	"github.com/eAi-solutions/mvast-fmri-task/engine"
)

const DefaultInstructionText = `For the next several minutes, you will see a fixation cross alternate with a flashing checkerboard.


Please keep your eyes open and fixed on the center of the screen.


The task will start shortly.`

// AssetError reports a required image that could not be loaded.
type AssetError struct {
	Path string
	Err  error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("load image %s: %v", e.Path, e.Err)
}

func (e *AssetError) Unwrap() error { return e.Err }

// Assets names the image files of a session. Relative paths are resolved
// against Dir. Empty Fixation or Instruction means render it.
type Assets struct {
	Dir             string
	Scheme          string
	Fixation        string
	Instruction     string
	InstructionText string
	CheckerA        string
	CheckerB        string
}

func (a Assets) resolve(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(a.Dir, name)
}

// LoadImages prepares every frame of the session. A missing checkerboard is
// an AssetError; a fixation or instruction image that fails to load is
// replaced by its rendered version.
func (s *Screen) LoadImages(a Assets) (engine.Images, error) {
	var images engine.Images

	checkerA, err := s.loadPicture("checkerboard_1", a.resolve(a.CheckerA))
	if err != nil {
		return images, err
	}
	checkerB, err := s.loadPicture("checkerboard_2", a.resolve(a.CheckerB))
	if err != nil {
		checkerA.destroy()
		return images, err
	}
	images.CheckerA, images.CheckerB = checkerA, checkerB

	bg, fg := schemeColors(a.Scheme)
	images.Fixation = s.loadOrRender("fixation", a.resolve(a.Fixation), func() *Picture {
		return &Picture{name: "fixation_cross", bg: bg, fg: fg, cross: true}
	})

	text := a.InstructionText
	if text == "" {
		text = DefaultInstructionText
	}
	images.Instruction = s.loadOrRender("instruction", a.resolve(a.Instruction), func() *Picture {
		return &Picture{
			name: "instruction_text",
			bg:   bg,
			lines: renderText(s.renderer, s.font, text, fg),
		}
	})

	s.pictures = append(s.pictures, checkerA, checkerB,
		images.Fixation.(*Picture), images.Instruction.(*Picture))
	return images, nil
}

func (s *Screen) loadOrRender(name, path string, render func() *Picture) *Picture {
	if path != "" {
		p, err := s.loadPicture(name, path)
		if err == nil {
			s.logger.Info("image loaded", "image", name, "path", path)
			return p
		}
		s.logger.Warn("image unavailable, rendering instead", "image", name, "error", err)
	}
	return render()
}

func (s *Screen) loadPicture(name, path string) (*Picture, error) {
	if path == "" {
		return nil, &AssetError{Path: name, Err: errors.New("no file configured")}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &AssetError{Path: path, Err: err}
	}
	tex, err := img.LoadTexture(s.renderer, path)
	if err != nil {
		return nil, &AssetError{Path: path, Err: err}
	}
	return &Picture{name: name, bg: black, image: tex}, nil
}

// AssetErrorMessage is the text shown when the checkerboards are missing.
func AssetErrorMessage(a Assets) string {
	return fmt.Sprintf("ERROR: Could not load checkerboard images.\n\n"+
		"Expected: %s, %s\n\n"+
		"Please verify images exist in the '%s' folder.\n\n"+
		"Press SPACEBAR to exit.", a.CheckerA, a.CheckerB, a.Dir)
}

const CompletionMessage = "Task Complete!\n\nThank you.\n\nWindow will close in 3 seconds..."
