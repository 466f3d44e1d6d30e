package transcode

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/abema/go-mp4"
	"github.com/google/uuid"

	"github.com/mt4110/mvimg/internal/motion"
)

var jpegSOI = []byte{0xFF, 0xD8, 0xFF}

// quickTimeBrand is the ftyp major brand of Apple QuickTime movies, which
// are not accepted as the video half of a motion photo.
const quickTimeBrand = "qt  "

// NeedsJPEG reports whether the still at path must be converted before it
// can lead a motion photo, by checking for the JPEG start-of-image marker.
func NeedsJPEG(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, openError(path, err)
	}
	defer f.Close()

	head := make([]byte, len(jpegSOI))
	if _, err := io.ReadFull(f, head); err != nil {
		return true, nil
	}
	return !bytes.Equal(head, jpegSOI), nil
}

// NeedsMP4 reports whether the clip at path must be converted to MP4. Files
// with an ISO-BMFF ftyp box pass unless their major brand is QuickTime;
// anything without one (AVI, Matroska, FLV, old MOV) needs converting.
func NeedsMP4(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, openError(path, err)
	}
	defer f.Close()

	brand, ok := MajorBrand(f)
	if !ok {
		return true, nil
	}
	return brand == quickTimeBrand, nil
}

// MajorBrand returns the major brand of the first ftyp box in r.
func MajorBrand(r io.ReadSeeker) (string, bool) {
	var brand string
	found := false
	_, err := mp4.ReadBoxStructure(r, func(h *mp4.ReadHandle) (any, error) {
		if found || h.BoxInfo.Type != mp4.BoxTypeFtyp() {
			return nil, nil
		}
		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, err
		}
		if ftyp, ok := box.(*mp4.Ftyp); ok {
			brand = string(ftyp.MajorBrand[:])
			found = true
		}
		return nil, nil
	})
	if err != nil && !found {
		return "", false
	}
	return brand, found
}

// TempPath returns a collision-free path in dir with the given extension.
func TempPath(dir, ext string) string {
	return filepath.Join(dir, uuid.NewString()+ext)
}

func openError(path string, err error) error {
	kind := motion.KindIOFailure
	if errors.Is(err, os.ErrNotExist) {
		kind = motion.KindNotFound
	}
	return &motion.Error{Kind: kind, Op: "open", Path: path, Err: err}
}

func withPath(err error, path string) error {
	var me *motion.Error
	if errors.As(err, &me) && me.Path == "" {
		me.Path = path
	}
	return err
}
