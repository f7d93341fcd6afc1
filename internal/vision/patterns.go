package vision

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Patterns loads pattern images by reference and caches the decoded pixels.
// Relative references resolve against Dir.
type Patterns struct {
	Dir string

	mu    sync.Mutex
	cache map[string]image.Image
}

// NewPatterns creates a pattern store rooted at dir
func NewPatterns(dir string) *Patterns {
	return &Patterns{Dir: dir, cache: make(map[string]image.Image)}
}

// Resolve maps a pattern reference to a file path
func (p *Patterns) Resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || filepath.IsAbs(ref) || p.Dir == "" {
		return ref
	}
	if _, err := os.Stat(ref); err == nil {
		return ref
	}
	return filepath.Join(p.Dir, ref)
}

// Exists reports whether the reference points at a readable file
func (p *Patterns) Exists(ref string) bool {
	info, err := os.Stat(p.Resolve(ref))
	return err == nil && !info.IsDir()
}

// Load returns the decoded pattern, reading it on first use
func (p *Patterns) Load(ref string) (image.Image, error) {
	path := p.Resolve(ref)
	if path == "" {
		return nil, fmt.Errorf("empty pattern reference")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if img, ok := p.cache[path]; ok {
		return img, nil
	}
	img, err := DecodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("pattern %s: %w", ref, err)
	}
	p.cache[path] = toRGBA(img)
	return p.cache[path], nil
}

// Forget drops every cached pattern
func (p *Patterns) Forget() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]image.Image)
}
