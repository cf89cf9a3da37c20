package display

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultFontPath looks for a font in ./fonts first, then in a few
// well-known system locations. It returns "" when none exists.
func DefaultFontPath() string {
	if p := firstFontIn("fonts"); p != "" {
		return p
	}

	var paths []string
	switch runtime.GOOS {
	case "windows":
		paths = []string{`C:\Windows\Fonts\arial.ttf`}
	case "darwin":
		paths = []string{"/System/Library/Fonts/Helvetica.ttc"}
	default:
		paths = []string{
			"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func firstFontIn(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".ttf" || ext == ".ttc" {
			return filepath.Join(dir, entry.Name())
		}
	}
	return ""
}
