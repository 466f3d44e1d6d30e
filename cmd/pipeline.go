package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/mt4110/mvimg/internal/batch"
	"github.com/mt4110/mvimg/internal/logger"
	"github.com/mt4110/mvimg/internal/metadata"
	"github.com/mt4110/mvimg/internal/notify"
	"github.com/mt4110/mvimg/internal/progress"
	"github.com/mt4110/mvimg/internal/toolexec"
	"github.com/mt4110/mvimg/internal/transcode"
)

func expandHome(p string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}

func toolRunner() toolexec.Runner {
	return toolexec.Exec{Timeout: cfg.ToolTimeout}
}

// newPort returns the metadata port: exiftool for writing, and the in-process
// XMP reader in front of it when nativeRead is on.
func newPort(runner toolexec.Runner) metadata.Port {
	et := metadata.NewExifTool(cfg.ExifToolBin, cfg.ExifToolConfigPath(), runner)
	if !cfg.NativeRead {
		return et
	}
	return metadata.Hybrid{Primary: metadata.XMPReader{}, Fallback: et, Writer: et}
}

func newRunner() *batch.Runner {
	runner := toolRunner()
	return batch.New(cfg,
		newPort(runner),
		transcode.NewImage(cfg.MagickBin, runner),
		transcode.NewVideo(cfg, runner),
	)
}

// confirm asks a y/N question on stdin unless --yes was given.
func confirm(in io.Reader, question string) bool {
	if flagYes {
		return true
	}
	fmt.Printf("%s (y/N): ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// runBatch drives a batch with the right progress output. It returns nil
// when the batch could not start.
func runBatch(ctx context.Context, r *batch.Runner, start func(context.Context) (*batch.Report, error)) *batch.Report {
	obs := progress.New(os.Stderr)
	if _, isBar := obs.(*progress.Bar); isBar {
		logger.MuteStdout()
		defer logger.UnmuteStdout()
	}
	r.Observer = obs

	rep, err := start(ctx)
	if err != nil {
		log.Printf("❌ バッチを開始できません: %v", err)
		return nil
	}
	return rep
}

// finish prints the summary, sends the completion notification and exits
// non-zero when any item failed.
func finish(ctx context.Context, rep *batch.Report) {
	fmt.Print(progress.RenderSummary(rep))

	s := rep.Summary()
	if cfg.Notify && !rep.DryRun {
		title := "完了"
		if s.Failed > 0 {
			title = "一部失敗"
		}
		msg := fmt.Sprintf("成功 %d / 失敗 %d", s.Succeeded, s.Failed)
		notify.New(toolRunner()).Send(ctx, "mvimg "+string(rep.Mode)+" "+title, msg, rep.OutputDir)
	}
	if s.Failed > 0 {
		logger.Close()
		os.Exit(1)
	}
	log.Println("✅ すべて完了")
}
