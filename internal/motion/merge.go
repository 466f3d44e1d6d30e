package motion

import (
	"io"
	"os"
)

// MergeResult describes a container written by Merge.
type MergeResult struct {
	StillSize  uint64
	VideoSize  uint64
	MergedSize uint64
}

// Offset is the motion-photo offset of the merged container.
func (r MergeResult) Offset() (uint64, error) {
	return ComputeOffset(r.StillSize, r.MergedSize)
}

// Merge writes the still image followed immediately by the video into
// outputPath. Both inputs are opened before the output is created, so a
// missing input never leaves a file behind. On failure the partial output is
// removed.
func Merge(stillPath, videoPath, outputPath string) (res MergeResult, err error) {
	still, err := os.Open(stillPath)
	if err != nil {
		return res, ioError("open still", stillPath, err)
	}
	defer still.Close()

	video, err := os.Open(videoPath)
	if err != nil {
		return res, ioError("open video", videoPath, err)
	}
	defer video.Close()

	out, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return res, ioError("create output", outputPath, err)
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

	n, err := copyFrom(out, outputPath, still, stillPath)
	if err != nil {
		return res, err
	}
	res.StillSize = n

	n, err = copyFrom(out, outputPath, video, videoPath)
	if err != nil {
		return res, err
	}
	res.VideoSize = n

	if err = out.Sync(); err != nil {
		return res, ioError("sync output", outputPath, err)
	}
	closed = true
	if err = out.Close(); err != nil {
		return res, ioError("close output", outputPath, err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return res, ioError("stat output", outputPath, err)
	}
	res.MergedSize = uint64(info.Size())
	if res.MergedSize != res.StillSize+res.VideoSize {
		err = Errorf(KindPrecondition, "merge", outputPath,
			"output is %d bytes, expected %d", res.MergedSize, res.StillSize+res.VideoSize)
		return res, err
	}
	return res, nil
}

// copyFrom streams src into dst and attributes read and write errors to the
// right path.
func copyFrom(dst io.Writer, dstPath string, src io.Reader, srcPath string) (uint64, error) {
	rw := &trackingReader{r: src}
	n, err := io.Copy(dst, rw)
	if err != nil {
		if rw.err != nil {
			return uint64(n), ioError("read", srcPath, err)
		}
		return uint64(n), ioError("write", dstPath, err)
	}
	return uint64(n), nil
}

type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}
