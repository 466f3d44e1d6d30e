package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/trimmer-io/go-xmp/xmp"

	"github.com/mt4110/mvimg/internal/motion"
)

// offsetPaths are the XMP paths that carry the video offset. Google used
// MicroVideoOffset before Android 11.
var offsetPaths = map[string]bool{
	"GCamera:MicroVideoOffset": true,
}

// XMPReader reads the offset in-process by scanning the file's XMP packets,
// without starting exiftool.
type XMPReader struct{}

func (XMPReader) Read(ctx context.Context, path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		kind := motion.KindIOFailure
		if errors.Is(err, os.ErrNotExist) {
			kind = motion.KindNotFound
		}
		return 0, &motion.Error{Kind: kind, Op: "read offset", Path: path, Err: err}
	}
	defer f.Close()

	packets, err := xmp.ScanPackets(f)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, notMotionPhoto(path, errors.New("no XMP metadata"))
		}
		return 0, notMotionPhoto(path, fmt.Errorf("scanning XMP: %w", err))
	}

	for _, packet := range packets {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		var doc xmp.Document
		if err := xmp.Unmarshal(packet, &doc); err != nil {
			continue
		}
		paths, err := doc.ListPaths()
		if err != nil {
			continue
		}
		values := make(map[string]string, len(paths))
		for _, p := range paths {
			values[string(p.Path)] = p.Value
		}
		if off, ok, err := offsetFromValues(values); ok {
			if err != nil {
				return 0, notMotionPhoto(path, err)
			}
			return off, nil
		}
	}
	return 0, notMotionPhoto(path, errors.New("MicroVideoOffset tag not present"))
}

// offsetFromValues picks the offset out of a flattened XMP path/value map.
// ok reports whether an offset path was present at all.
func offsetFromValues(values map[string]string) (off uint64, ok bool, err error) {
	for p, v := range values {
		if !offsetPaths[p] {
			continue
		}
		v = strings.TrimSpace(v)
		off, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, true, fmt.Errorf("unparseable %s %q", p, v)
		}
		return off, true, nil
	}
	return 0, false, nil
}
