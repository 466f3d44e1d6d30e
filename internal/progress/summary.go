package progress

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/mt4110/mvimg/internal/batch"
)

// RenderSummary returns the end-of-batch report: a table of every item
// followed by the totals and any unmatched inputs.
func RenderSummary(r *batch.Report) string {
	var b strings.Builder

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"入力", "出力", "状態", "静止画", "動画", "オフセット", "時間"})
	for _, it := range r.Items {
		status := "✅"
		if it.State != batch.StateSucceeded {
			status = "❌ " + string(it.Kind)
		}
		tw.AppendRow(table.Row{
			filepath.Base(it.Input),
			filepath.Base(it.Output),
			status,
			size(it.StillSize),
			size(it.VideoSize),
			offset(it.Offset),
			it.Duration.Round(time.Millisecond).String(),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	b.WriteString(tw.Render())
	b.WriteString("\n")

	s := r.Summary()
	verb := label(r.Mode)
	if r.DryRun {
		verb += "(ドライラン)"
	}
	fmt.Fprintf(&b, "%s: 合計 %d / 成功 %d / 失敗 %d", verb, s.Total, s.Succeeded, s.Failed)
	if s.NotMotionPhoto > 0 {
		fmt.Fprintf(&b, " (モーションフォトではない %d)", s.NotMotionPhoto)
	}
	fmt.Fprintf(&b, " / 所要時間 %s\n", r.Elapsed().Round(time.Millisecond))

	for _, it := range r.Failed() {
		fmt.Fprintf(&b, "  ❌ %s: %s\n", it.Input, it.Error)
	}
	if len(r.Unmatched) > 0 {
		fmt.Fprintf(&b, "⚠️ 対応するファイルが見つからない入力: %d 件\n", len(r.Unmatched))
		for _, p := range r.Unmatched {
			fmt.Fprintf(&b, "  - %s\n", p)
		}
	}
	return b.String()
}

func size(n uint64) string {
	if n == 0 {
		return "-"
	}
	return humanize.IBytes(n)
}

func offset(n uint64) string {
	if n == 0 {
		return "-"
	}
	return humanize.Comma(int64(n))
}
