package transcode

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/mt4110/mvimg/internal/config"
	"github.com/mt4110/mvimg/internal/toolexec"
)

// Video converts non-MP4 clips (usually QuickTime .mov) to H.264/AAC MP4
// with ffmpeg.
type Video struct {
	FFmpegBin string
	CRF       int
	Preset    string
	GPU       bool
	Runner    toolexec.Runner
}

func NewVideo(cfg *config.Config, runner toolexec.Runner) *Video {
	bin := cfg.FFmpegBin
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Video{FFmpegBin: bin, CRF: cfg.CRF, Preset: cfg.Preset, GPU: cfg.GPU, Runner: runner}
}

// Args returns the ffmpeg command line converting inPath into outPath.
func (v *Video) Args(inPath, outPath string) []string {
	ffmpegArgs := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", inPath,
	}

	// Codec Selection
	if v.GPU {
		// macOS VideoToolbox has no CRF; map it onto -q:v where higher is better.
		q := 70
		if v.CRF > 0 {
			q = 100 - (v.CRF * 2)
			if q < 1 {
				q = 1
			}
		}
		ffmpegArgs = append(ffmpegArgs, "-c:v", "h264_videotoolbox", "-q:v", fmt.Sprintf("%d", q))
	} else {
		preset := v.Preset
		if preset == "" {
			preset = "faster"
		}
		crf := v.CRF
		if crf <= 0 {
			crf = 22
		}
		ffmpegArgs = append(ffmpegArgs, "-vcodec", "libx264", "-preset", preset, "-crf", fmt.Sprintf("%d", crf))
	}

	ffmpegArgs = append(ffmpegArgs,
		"-pix_fmt", "yuv420p",
		"-acodec", "aac", "-b:a", "128k",
		"-map_metadata", "0",
		"-movflags", "+faststart",
		outPath,
	)
	return ffmpegArgs
}

// ConvertToMP4 writes an MP4 rendition of inPath into scratchDir and returns
// its path. The caller owns the returned file.
func (v *Video) ConvertToMP4(ctx context.Context, inPath, scratchDir string) (string, error) {
	outPath := TempPath(scratchDir, ".mp4")
	log.Printf("🎞 動画をMP4に変換: %s", inPath)
	if _, err := v.Runner.Run(ctx, v.FFmpegBin, v.Args(inPath, outPath)...); err != nil {
		os.Remove(outPath)
		return "", withPath(err, inPath)
	}
	return outPath, nil
}
