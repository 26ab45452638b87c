package stream

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// An MmapSource serves byte ranges of a local file through a shared
// read-only mapping, so chunk readers slice stream bytes without copying.
type MmapSource struct {
	path string
	f    *os.File
	m    mmap.MMap
}

// OpenMmap maps the file at path read-only.
func OpenMmap(path string) (*MmapSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	return &MmapSource{path: path, f: f, m: m}, nil
}

// Name returns the file path, used as the source identifier in errors.
func (s *MmapSource) Name() string { return s.path }

// Range returns the mapped bytes [offset, offset+length). The returned slice
// aliases the mapping and is valid until Close.
func (s *MmapSource) Range(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > int64(len(s.m)) {
		return nil, fmt.Errorf("range [%d, %d) outside %s (%d bytes)", offset, offset+length, s.path, len(s.m))
	}
	return s.m[offset : offset+length], nil
}

// Close unmaps the file. Chunk readers holding slices from Range must be
// closed first.
func (s *MmapSource) Close() error {
	if err := s.m.Unmap(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
