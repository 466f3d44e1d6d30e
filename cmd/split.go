package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mt4110/mvimg/internal/batch"
	"github.com/mt4110/mvimg/internal/pair"
	"github.com/mt4110/mvimg/internal/updater"
)

var splitCmd = &cobra.Command{
	Use:   "split [filesOrDirs...]",
	Short: "モーションフォトを静止画と動画に分割します",
	Long: `モーションフォト (jpg, jpeg) に記録されたオフセットを読み取り、
<name><suffix>.jpg と <name><suffix>.mp4 に分割します。静止画からはモーションフォトのタグを取り除きます。`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		inputs := args
		if len(inputs) == 0 {
			inputs = []string{"."}
		}
		containers, err := collectContainers(inputs)
		if err != nil {
			log.Fatalf("❌ 入力の検索に失敗しました: %v", err)
		}
		containers = pair.Filter(containers, cfg.Keywords, cfg.IgnoreKeywords)
		containers = withoutSplitOutputs(containers)
		if len(containers) == 0 {
			log.Println("分割対象が見つかりません。")
			return
		}

		dest, _ := filepath.Abs(cfg.DestDir)
		log.Printf("分割対象: %d件", len(containers))
		log.Printf("出力先: %s", dest)
		log.Printf("並列実行数: %d", cfg.Concurrent)

		if !confirm(os.Stdin, fmt.Sprintf("%d 件を分割します。よろしいですか？", len(containers))) {
			log.Println("キャンセルしました。")
			return
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		if !cfg.DryRun && !updater.Warn(ctx, updater.NewChecker(toolRunner()), cfg) {
			os.Exit(1)
		}

		r := newRunner()
		rep := runBatch(ctx, r, func(ctx context.Context) (*batch.Report, error) {
			return r.RunSplit(ctx, containers, dest)
		})
		if rep == nil {
			os.Exit(1)
		}
		finish(ctx, rep)
	},
}

// collectContainers expands directories to the JPEGs directly inside them
// and keeps explicit file arguments as given. Duplicates are dropped.
func collectContainers(inputs []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
	}

	for _, in := range inputs {
		in = expandHome(in)
		info, err := os.Stat(in)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !pair.HasExtension(in, pair.ContainerExtensions) {
				log.Printf("⚠️ JPEG ではないためスキップ: %s", in)
				continue
			}
			add(in)
			continue
		}
		files, err := pair.Discover(in, pair.ContainerExtensions)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			add(f)
		}
	}
	return out, nil
}

// withoutSplitOutputs drops images an earlier split wrote, so splitting into
// the input directory again does not pick them up.
func withoutSplitOutputs(containers []string) []string {
	if cfg.SplitSuffix == "" {
		return containers
	}
	return pair.Filter(containers, nil, []string{"*" + cfg.SplitSuffix + ".jpg"})
}

func init() {
	rootCmd.AddCommand(splitCmd)
}
