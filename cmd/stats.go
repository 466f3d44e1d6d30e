package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/mt4110/mvimg/internal/batch"
	"github.com/mt4110/mvimg/internal/logger"
)

type LogEntry struct {
	Type        string  `json:"type"`
	Input       string  `json:"input"`
	Output      string  `json:"output"`
	State       string  `json:"state"`
	Kind        string  `json:"kind"`
	StillSize   uint64  `json:"still_size"`
	VideoSize   uint64  `json:"video_size"`
	MergedSize  uint64  `json:"merged_size"`
	DurationSec float64 `json:"duration_sec"`
	Timestamp   string  `json:"timestamp"`
}

// modeStats aggregates the result lines of one mode.
type modeStats struct {
	Count     int
	Succeeded int
	Failed    int
	Bytes     uint64
	Duration  float64
	Kinds     map[string]int
}

// readStats scans log lines for the per-item JSON results.
func readStats(r io.Reader) (map[batch.Mode]*modeStats, error) {
	stats := map[batch.Mode]*modeStats{
		batch.ModeMerge: {Kinds: map[string]int{}},
		batch.ModeSplit: {Kinds: map[string]int{}},
	}
	types := map[string]batch.Mode{
		batch.ResultType(batch.ModeMerge): batch.ModeMerge,
		batch.ResultType(batch.ModeSplit): batch.ModeSplit,
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		// Log lines usually start with date/time "2023/01/01 10:00:00 filename.go:10: {"type":...}"
		idx := strings.Index(line, "{")
		if idx == -1 {
			continue
		}

		var entry LogEntry
		if err := json.Unmarshal([]byte(line[idx:]), &entry); err != nil {
			continue
		}
		mode, ok := types[entry.Type]
		if !ok {
			continue
		}
		s := stats[mode]
		s.Count++
		s.Duration += entry.DurationSec
		if entry.State == string(batch.StateSucceeded) {
			s.Succeeded++
			s.Bytes += entry.MergedSize
		} else {
			s.Failed++
			s.Kinds[entry.Kind]++
		}
	}
	return stats, scanner.Err()
}

func renderStats(stats map[batch.Mode]*modeStats) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"種別", "件数", "成功", "失敗", "処理サイズ", "合計処理時間"})
	for _, mode := range []batch.Mode{batch.ModeMerge, batch.ModeSplit} {
		s := stats[mode]
		tw.AppendRow(table.Row{
			string(mode),
			s.Count,
			s.Succeeded,
			s.Failed,
			humanize.IBytes(s.Bytes),
			formatDuration(s.Duration),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	var b strings.Builder
	b.WriteString(tw.Render())
	b.WriteString("\n")
	for _, mode := range []batch.Mode{batch.ModeMerge, batch.ModeSplit} {
		kinds := stats[mode].Kinds
		names := make([]string, 0, len(kinds))
		for k := range kinds {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			fmt.Fprintf(&b, "  %s 失敗 (%s): %d 件\n", mode, k, kinds[k])
		}
	}
	return b.String()
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "結合・分割の統計を表示します",
	Long:  `過去の結合・分割履歴(ログファイル)を集計し、件数や処理サイズ、処理時間を表示します。`,
	Run: func(cmd *cobra.Command, args []string) {
		logPath := logger.DefaultPath()
		if cfg != nil && cfg.LogFile != "" {
			logPath = cfg.LogFile
		}

		f, err := os.Open(logPath)
		if err != nil {
			log.Fatalf("ログファイルを開けませんでした: %v", err)
		}
		defer f.Close()

		stats, err := readStats(f)
		if err != nil {
			log.Printf("⚠️ ログの読み込み中にエラー: %v", err)
		}

		const separator = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"
		fmt.Println(separator)
		fmt.Printf("📊 mvimg 統計レポート\n")
		fmt.Println(separator)
		fmt.Print(renderStats(stats))
		fmt.Println(separator)
	},
}

func formatDuration(sec float64) string {
	d := time.Duration(sec * float64(time.Second))
	return d.Round(time.Millisecond).String()
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
