package motion

import (
	"errors"
	"io"
	"os"
)

// SplitResult describes the two segments recovered from a container.
type SplitResult struct {
	Total uint64
	Image Range
	Video Range
}

// Split extracts the image and video segments of the container at path using
// the stored motion-photo offset.
func Split(containerPath string, offset uint64, imageOut, videoOut string) (SplitResult, error) {
	info, err := os.Stat(containerPath)
	if err != nil {
		return SplitResult{}, ioError("stat container", containerPath, err)
	}
	total := uint64(info.Size())

	image, video, err := RangesFor(total, offset)
	if err != nil {
		var me *Error
		if errors.As(err, &me) {
			me.Path = containerPath
		}
		return SplitResult{}, err
	}
	res := SplitResult{Total: total, Image: image, Video: video}

	if err := ExtractRange(containerPath, imageOut, image.Start, image.Length); err != nil {
		return res, err
	}
	if err := ExtractRange(containerPath, videoOut, video.Start, video.Length); err != nil {
		os.Remove(imageOut)
		return res, err
	}
	return res, nil
}

// ExtractRange copies exactly length bytes starting at start from
// containerPath into a newly created outputPath.
func ExtractRange(containerPath, outputPath string, start, length uint64) (err error) {
	src, err := os.Open(containerPath)
	if err != nil {
		return ioError("open container", containerPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return ioError("stat container", containerPath, err)
	}
	size := uint64(info.Size())
	if start > size || length > size-start {
		return Errorf(KindPrecondition, "extract range", containerPath,
			"range [%d,%d) is beyond end of file (%d bytes)", start, start+length, size)
	}

	out, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return ioError("create output", outputPath, err)
	}
	closed := false
	defer func() {
		if !closed {
			out.Close()
		}
		if err != nil {
			os.Remove(outputPath)
		}
	}()

	section := io.NewSectionReader(src, int64(start), int64(length))
	n, err := copyFrom(out, outputPath, section, containerPath)
	if err != nil {
		return err
	}
	if n != length {
		err = Errorf(KindPrecondition, "extract range", containerPath,
			"copied %d bytes, expected %d", n, length)
		return err
	}

	closed = true
	if err = out.Close(); err != nil {
		return ioError("close output", outputPath, err)
	}
	return nil
}
