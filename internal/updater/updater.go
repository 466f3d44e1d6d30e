// Package updater checks that the external tools mvimg delegates to are
// installed and suggests upgrades when Homebrew knows of newer ones.
package updater

import (
	"context"
	"log"
	"strings"

	"github.com/mt4110/mvimg/internal/config"
	"github.com/mt4110/mvimg/internal/toolexec"
)

// Tool is one external program.
type Tool struct {
	Name        string // Homebrew formula
	Bin         string
	VersionArgs []string
	Required    bool // needed by every merge/split
	Purpose     string
}

// Status is the result of checking one Tool.
type Status struct {
	Tool
	Path       string
	Found      bool
	Version    string
	Upgradable bool
}

// Tools lists the programs configured in cfg.
func Tools(cfg *config.Config) []Tool {
	return []Tool{
		{Name: "exiftool", Bin: orDefault(cfg.ExifToolBin, "exiftool"), VersionArgs: []string{"-ver"},
			Required: true, Purpose: "モーションフォトのタグ書き込み"},
		{Name: "ffmpeg", Bin: orDefault(cfg.FFmpegBin, "ffmpeg"), VersionArgs: []string{"-version"},
			Purpose: "MOV/AVI などの MP4 変換"},
		{Name: "imagemagick", Bin: orDefault(cfg.MagickBin, "magick"), VersionArgs: []string{"-version"},
			Purpose: "HEIC/PNG の JPEG 変換"},
	}
}

type Checker struct {
	Runner   toolexec.Runner
	LookPath func(bin string) (string, bool)
	// Brew enables the `brew outdated` check when Homebrew is installed.
	Brew bool
}

func NewChecker(runner toolexec.Runner) *Checker {
	return &Checker{Runner: runner, LookPath: toolexec.Available, Brew: true}
}

// Check inspects every tool.
func (c *Checker) Check(ctx context.Context, tools []Tool) []Status {
	_, hasBrew := c.LookPath("brew")
	out := make([]Status, 0, len(tools))
	for _, t := range tools {
		st := Status{Tool: t}
		st.Path, st.Found = c.LookPath(t.Bin)
		if st.Found {
			if b, err := c.Runner.Run(ctx, t.Bin, t.VersionArgs...); err == nil {
				st.Version = firstLine(string(b))
			}
			if c.Brew && hasBrew {
				st.Upgradable = c.outdated(ctx, t.Name)
			}
		}
		out = append(out, st)
	}
	return out
}

func (c *Checker) outdated(ctx context.Context, formula string) bool {
	b, err := c.Runner.Run(ctx, "brew", "outdated", formula)
	return err == nil && strings.Contains(string(b), formula)
}

// Warn logs a line for each missing or outdated tool. It returns false when
// a required tool is missing.
func Warn(ctx context.Context, c *Checker, cfg *config.Config) bool {
	ok := true
	for _, st := range c.Check(ctx, Tools(cfg)) {
		switch {
		case !st.Found && st.Required:
			log.Printf("❌ %s が見つかりません (%s)。インストールしてください: `brew install %s`", st.Bin, st.Purpose, st.Name)
			ok = false
		case !st.Found:
			log.Printf("⚠️ %s が見つかりません。%s が必要な場合はインストールを推奨します: `brew install %s`", st.Bin, st.Purpose, st.Name)
		case st.Upgradable:
			log.Printf("ℹ️ %s のアップデートが可能です: brew upgrade %s", st.Name, st.Name)
		}
	}
	return ok
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
