// Package progress renders batch progress and the end-of-run summary.
package progress

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/mt4110/mvimg/internal/batch"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// New returns a progress bar observer when w is a terminal and a plain
// log-line observer otherwise.
func New(w io.Writer) batch.Observer {
	if IsTerminal(w) {
		return &Bar{w: w}
	}
	return Lines{}
}

// Bar draws a single progress bar for the batch.
type Bar struct {
	w    io.Writer
	mode batch.Mode
	bar  *progressbar.ProgressBar
}

func NewBar(w io.Writer) *Bar { return &Bar{w: w} }

func (b *Bar) OnStart(mode batch.Mode, total int) {
	b.mode = mode
	b.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionSetDescription(label(mode)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}

func (b *Bar) OnItemStart(input string) {
	if b.bar != nil {
		b.bar.Describe(fmt.Sprintf("%s %s", label(b.mode), filepath.Base(input)))
	}
}

func (b *Bar) OnItemDone(_ batch.ItemResult, completed, _ int) {
	if b.bar != nil {
		b.bar.Set(completed)
	}
}

func (b *Bar) OnFinish(*batch.Report) {
	if b.bar != nil {
		b.bar.Finish()
	}
}

// Lines logs one line per milestone, for pipes and log files.
type Lines struct{}

func (Lines) OnStart(mode batch.Mode, total int) {
	log.Printf("🚀 %s開始: %d 件", label(mode), total)
}

func (Lines) OnItemStart(input string) {
	log.Printf("🎬 処理開始: %s", filepath.Base(input))
}

func (Lines) OnItemDone(res batch.ItemResult, completed, total int) {
	log.Printf("[%d/%d] %s %s", completed, total, stateMark(res.State), filepath.Base(res.Input))
}

func (Lines) OnFinish(r *batch.Report) {
	s := r.Summary()
	log.Printf("🏁 %s終了: 成功 %d / 失敗 %d / 未対応 %d", label(r.Mode), s.Succeeded, s.Failed, s.Unmatched)
}

func label(mode batch.Mode) string {
	switch mode {
	case batch.ModeSplit:
		return "分割"
	default:
		return "結合"
	}
}

func stateMark(s batch.State) string {
	if s == batch.StateSucceeded {
		return "✅"
	}
	return "❌"
}
