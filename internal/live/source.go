package live

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FrameSource yields encoded frames one at a time.
type FrameSource interface {
	Next(ctx context.Context) ([]byte, error)
}

var imageExts = map[string]bool{ //nolint:gochecknoglobals // lookup table
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true,
}

// DirSource cycles through the image files of a directory in name order.
// The listing is refreshed each time the cycle wraps, so new captures are picked up.
type DirSource struct {
	dir string

	mu    sync.Mutex
	files []string
	pos   int
}

// NewDirSource returns a source over dir. It fails if dir has no images.
func NewDirSource(dir string) (*DirSource, error) {
	s := &DirSource{dir: dir}
	if err := s.refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// Next implements FrameSource.
func (s *DirSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.pos >= len(s.files) {
		if err := s.refresh(); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	name := s.files[s.pos]
	s.pos++
	s.mu.Unlock()

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", filepath.Base(name), err)
	}
	return data, nil
}

// Len returns the number of frames in the current cycle.
func (s *DirSource) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

func (s *DirSource) refresh() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list frames: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(s.dir, e.Name()))
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: %s", ErrNoFrames, s.dir)
	}
	sort.Strings(files)
	s.files, s.pos = files, 0
	return nil
}
