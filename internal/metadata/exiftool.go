package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/mt4110/mvimg/internal/motion"
	"github.com/mt4110/mvimg/internal/toolexec"
)

// GCameraConfig teaches exiftool the Google camera XMP namespace and the
// EXIF MicroVideo flag (0x8897).
const GCameraConfig = `%Image::ExifTool::UserDefined = (
    'Image::ExifTool::XMP::Main' => {
        GCamera => {
            SubDirectory => {
                TagTable => 'Image::ExifTool::UserDefined::GCamera',
            },
        },
    },
    'Image::ExifTool::Exif::Main' => {
        0x8897 => { Name => 'MicroVideo', Writable => 'int8u', WriteGroup => 'IFD0' },
    },
);

%Image::ExifTool::UserDefined::GCamera = (
    GROUPS    => { 0 => 'XMP', 1 => 'XMP-GCamera', 2 => 'Image' },
    NAMESPACE => { 'GCamera' => 'http://ns.google.com/photos/1.0/camera/' },
    WRITABLE  => 'string',
    MicroVideo                        => { Writable => 'integer' },
    MicroVideoVersion                 => { Writable => 'integer' },
    MicroVideoOffset                  => { Writable => 'integer' },
    MicroVideoPresentationTimestampUs => { Writable => 'integer' },
);

1;  # end
`

// ExifTool implements Port by shelling out to exiftool.
type ExifTool struct {
	Bin        string
	ConfigPath string
	Runner     toolexec.Runner

	once   sync.Once
	cfgErr error
}

// NewExifTool returns an ExifTool using bin (default "exiftool") and the
// GCamera definitions at configPath, which is created on first use.
func NewExifTool(bin, configPath string, runner toolexec.Runner) *ExifTool {
	if bin == "" {
		bin = "exiftool"
	}
	if runner == nil {
		runner = toolexec.Exec{}
	}
	return &ExifTool{Bin: bin, ConfigPath: configPath, Runner: runner}
}

// EnsureConfig writes the GCamera config file if it does not exist yet.
func EnsureConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(GCameraConfig), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (e *ExifTool) configArgs() ([]string, error) {
	if e.ConfigPath == "" {
		return nil, nil
	}
	e.once.Do(func() { e.cfgErr = EnsureConfig(e.ConfigPath) })
	if e.cfgErr != nil {
		return nil, fmt.Errorf("exiftool config %s: %w", e.ConfigPath, e.cfgErr)
	}
	// -config must come first on the exiftool command line.
	return []string{"-config", e.ConfigPath}, nil
}

// WriteArgs returns the exiftool arguments that tag path with offset.
func WriteArgs(path string, offset uint64) []string {
	return []string{
		"-XMP-GCamera:MicroVideo=1",
		"-XMP-GCamera:MicroVideoVersion=1",
		"-XMP-GCamera:MicroVideoOffset=" + strconv.FormatUint(offset, 10),
		"-XMP-GCamera:MicroVideoPresentationTimestampUs=" + strconv.FormatUint(offset/2, 10),
		"-MicroVideo=1",
		"-overwrite_original",
		path,
	}
}

// StripArgs returns the exiftool arguments that remove the motion-photo tags.
func StripArgs(path string) []string {
	return []string{
		"-XMP-GCamera:MicroVideo=",
		"-XMP-GCamera:MicroVideoVersion=",
		"-XMP-GCamera:MicroVideoOffset=",
		"-XMP-GCamera:MicroVideoPresentationTimestampUs=",
		"-MicroVideo=",
		"-overwrite_original",
		path,
	}
}

func (e *ExifTool) run(ctx context.Context, path string, args []string) ([]byte, error) {
	pre, err := e.configArgs()
	if err != nil {
		return nil, &motion.Error{Kind: motion.KindIOFailure, Op: "exiftool", Path: path, Err: err}
	}
	out, err := e.Runner.Run(ctx, e.Bin, append(pre, args...)...)
	if err != nil {
		var me *motion.Error
		if errors.As(err, &me) && me.Path == "" {
			me.Path = path
		}
		return out, err
	}
	return out, nil
}

func (e *ExifTool) Read(ctx context.Context, path string) (uint64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, &motion.Error{Kind: motion.KindNotFound, Op: "read offset", Path: path, Err: err}
	}
	out, err := e.run(ctx, path, []string{"-s3", "-XMP-GCamera:MicroVideoOffset", path})
	if err != nil {
		return 0, err
	}
	return ParseOffset(path, string(out))
}

func (e *ExifTool) Write(ctx context.Context, path string, offset uint64) error {
	_, err := e.run(ctx, path, WriteArgs(path, offset))
	return err
}

func (e *ExifTool) Strip(ctx context.Context, path string) error {
	_, err := e.run(ctx, path, StripArgs(path))
	return err
}

// ParseOffset interprets exiftool output for the MicroVideoOffset tag. Both
// the bare -s3 form and the "Micro Video Offset : 123" form are accepted.
func ParseOffset(path, output string) (uint64, error) {
	value := strings.TrimSpace(output)
	if i := strings.LastIndex(value, ":"); i >= 0 {
		value = strings.TrimSpace(value[i+1:])
	}
	if value == "" {
		return 0, notMotionPhoto(path, errors.New("MicroVideoOffset tag not present"))
	}
	off, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, notMotionPhoto(path, fmt.Errorf("unparseable MicroVideoOffset %q", value))
	}
	return off, nil
}
