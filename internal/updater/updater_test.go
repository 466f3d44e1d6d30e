package updater

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mt4110/mvimg/internal/config"
	"github.com/mt4110/mvimg/internal/toolexec"
)

func fakeChecker(installed map[string]bool, outdated string) *Checker {
	return &Checker{
		Brew: true,
		LookPath: func(bin string) (string, bool) {
			if installed[bin] {
				return "/usr/local/bin/" + bin, true
			}
			return "", false
		},
		Runner: toolexec.Func(func(_ context.Context, name string, args ...string) ([]byte, error) {
			switch name {
			case "brew":
				if args[1] == outdated {
					return []byte(outdated + " (1.0) < 1.1\n"), nil
				}
				return nil, nil
			case "exiftool":
				return []byte("12.76\n"), nil
			case "ffmpeg":
				return []byte("ffmpeg version 7.0 Copyright\nbuilt with clang\n"), nil
			}
			return nil, errors.New("unexpected " + name)
		}),
	}
}

func TestCheck(t *testing.T) {
	cfg := config.NewDefault()
	c := fakeChecker(map[string]bool{"exiftool": true, "ffmpeg": true, "brew": true}, "ffmpeg")
	got := c.Check(context.Background(), Tools(cfg))
	if len(got) != 3 {
		t.Fatalf("statuses = %d", len(got))
	}

	byName := map[string]Status{}
	for _, st := range got {
		byName[st.Name] = st
	}
	if st := byName["exiftool"]; !st.Found || st.Version != "12.76" || st.Upgradable {
		t.Errorf("exiftool = %+v", st)
	}
	if st := byName["ffmpeg"]; st.Version != "ffmpeg version 7.0 Copyright" || !st.Upgradable {
		t.Errorf("ffmpeg = %+v", st)
	}
	if st := byName["imagemagick"]; st.Found || st.Bin != "magick" {
		t.Errorf("imagemagick = %+v", st)
	}
}

func TestToolsHonourConfiguredBinaries(t *testing.T) {
	cfg := config.NewDefault()
	cfg.ExifToolBin = "/opt/exiftool/exiftool"
	for _, tool := range Tools(cfg) {
		if tool.Name == "exiftool" && tool.Bin != cfg.ExifToolBin {
			t.Errorf("exiftool bin = %s", tool.Bin)
		}
	}
}

func TestWarnRequiresExifTool(t *testing.T) {
	cfg := config.NewDefault()
	if Warn(context.Background(), fakeChecker(map[string]bool{"ffmpeg": true}, ""), cfg) {
		t.Error("missing exiftool should fail the check")
	}
	if !Warn(context.Background(), fakeChecker(map[string]bool{"exiftool": true}, ""), cfg) {
		t.Error("optional tools should not fail the check")
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("  a b\nc\n"); got != "a b" {
		t.Errorf("firstLine = %q", got)
	}
	if got := firstLine(strings.Repeat("x", 3)); got != "xxx" {
		t.Errorf("firstLine = %q", got)
	}
}
