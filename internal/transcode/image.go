package transcode

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/mt4110/mvimg/internal/toolexec"
)

// Image converts HEIC/HEIF/PNG stills to baseline JPEG with ImageMagick.
type Image struct {
	MagickBin string
	Quality   int
	Runner    toolexec.Runner
}

func NewImage(magickBin string, runner toolexec.Runner) *Image {
	if magickBin == "" {
		magickBin = "magick"
	}
	return &Image{MagickBin: magickBin, Quality: 92, Runner: runner}
}

// Args returns the ImageMagick command line converting inPath into outPath.
func (i *Image) Args(inPath, outPath string) []string {
	q := i.Quality
	if q <= 0 || q > 100 {
		q = 92
	}
	return []string{inPath, "-auto-orient", "-quality", strconv.Itoa(q), "jpeg:" + outPath}
}

// ConvertToJPEG writes a JPEG rendition of inPath into scratchDir and returns
// its path. The caller owns the returned file.
func (i *Image) ConvertToJPEG(ctx context.Context, inPath, scratchDir string) (string, error) {
	outPath := TempPath(scratchDir, ".jpg")
	log.Printf("🖼 画像をJPEGに変換: %s", inPath)
	if _, err := i.Runner.Run(ctx, i.MagickBin, i.Args(inPath, outPath)...); err != nil {
		os.Remove(outPath)
		return "", withPath(err, inPath)
	}
	return outPath, nil
}
