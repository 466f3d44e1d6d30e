// Package metadata reads and writes the motion-photo offset tag of a
// container image.
package metadata

import (
	"context"
	"errors"

	"github.com/mt4110/mvimg/internal/motion"
)

// Reader recovers the motion-photo offset stored in an image. It fails with
// motion.KindNotMotionPhoto when the tag is absent or unparseable.
type Reader interface {
	Read(ctx context.Context, path string) (uint64, error)
}

// Writer records or removes the motion-photo tag set.
type Writer interface {
	Write(ctx context.Context, path string, offset uint64) error
	Strip(ctx context.Context, path string) error
}

// Port is everything the batch runner needs from the metadata tool.
type Port interface {
	Reader
	Writer
}

// Hybrid reads with Primary and falls back to Fallback when Primary does not
// find the tag. Writes and strips go to Writer.
type Hybrid struct {
	Primary  Reader
	Fallback Reader
	Writer   Writer
}

func (h Hybrid) Read(ctx context.Context, path string) (uint64, error) {
	off, err := h.Primary.Read(ctx, path)
	if err == nil || h.Fallback == nil {
		return off, err
	}
	if motion.KindOf(err) == motion.KindNotFound {
		return 0, err
	}
	fbOff, fbErr := h.Fallback.Read(ctx, path)
	if fbErr != nil {
		return 0, errors.Join(fbErr, err)
	}
	return fbOff, nil
}

func (h Hybrid) Write(ctx context.Context, path string, offset uint64) error {
	return h.Writer.Write(ctx, path, offset)
}

func (h Hybrid) Strip(ctx context.Context, path string) error {
	return h.Writer.Strip(ctx, path)
}

func notMotionPhoto(path string, cause error) error {
	return &motion.Error{Kind: motion.KindNotMotionPhoto, Op: "read offset", Path: path, Err: cause}
}
