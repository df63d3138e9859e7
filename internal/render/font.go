package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"captioner/internal/services"
)

// Font is a parsed TrueType/OpenType font, safe for concurrent use.
type Font struct {
	parsed *opentype.Font
	source string
}

// Source describes where the font came from.
func (f *Font) Source() string {
	if f == nil {
		return ""
	}
	return f.source
}

// LoadFont reads and parses the font at path. An empty path selects the
// embedded Go Regular face.
func LoadFont(path string) (*Font, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ParseFont(goregular.TTF, "embedded:goregular")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrRender, "render", "load font", "read font file", err)
	}
	return ParseFont(data, path)
}

// ParseFont parses font bytes. source is only used for diagnostics.
func ParseFont(data []byte, source string) (*Font, error) {
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, services.Wrap(services.ErrRender, "render", "load font", fmt.Sprintf("parse %s", filepath.Base(source)), err)
	}
	return &Font{parsed: parsed, source: source}, nil
}

var (
	sharedMu    sync.Mutex
	sharedFonts = map[string]*Font{}
)

// SharedFont returns a process-wide parsed font for path, loading it on
// first use. Failed loads are not cached.
func SharedFont(path string) (*Font, error) {
	key := strings.TrimSpace(path)
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if f, ok := sharedFonts[key]; ok {
		return f, nil
	}
	f, err := LoadFont(key)
	if err != nil {
		return nil, err
	}
	sharedFonts[key] = f
	return f, nil
}
