// Package metadatatest provides an in-memory metadata.Port for tests.
package metadatatest

import (
	"context"
	"errors"
	"sync"

	"github.com/mt4110/mvimg/internal/motion"
)

// Fake stores offsets by path. Paths listed in FailWrite, FailRead or
// FailStrip fail with motion.KindExternalTool.
type Fake struct {
	mu      sync.Mutex
	offsets map[string]uint64

	FailWrite map[string]bool
	FailRead  map[string]bool
	FailStrip map[string]bool

	Writes int
	Strips int
}

func New() *Fake {
	return &Fake{offsets: make(map[string]uint64)}
}

// Set records offset for path as if it had been written earlier.
func (f *Fake) Set(path string, offset uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets[path] = offset
}

// Offset returns the stored offset for path.
func (f *Fake) Offset(path string) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	off, ok := f.offsets[path]
	return off, ok
}

func (f *Fake) Read(_ context.Context, path string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailRead[path] {
		return 0, toolFailure("read", path)
	}
	off, ok := f.offsets[path]
	if !ok {
		return 0, &motion.Error{Kind: motion.KindNotMotionPhoto, Op: "read offset", Path: path,
			Err: errors.New("MicroVideoOffset tag not present")}
	}
	return off, nil
}

func (f *Fake) Write(_ context.Context, path string, offset uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWrite[path] {
		return toolFailure("write", path)
	}
	f.offsets[path] = offset
	f.Writes++
	return nil
}

func (f *Fake) Strip(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailStrip[path] {
		return toolFailure("strip", path)
	}
	delete(f.offsets, path)
	f.Strips++
	return nil
}

func toolFailure(op, path string) error {
	return &motion.Error{Kind: motion.KindExternalTool, Op: "exiftool " + op, Path: path,
		Err: errors.New("exit status 1")}
}
