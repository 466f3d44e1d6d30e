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

var mergeCmd = &cobra.Command{
	Use:   "merge [imageDir] [videoDir]",
	Short: "静止画と同名の動画を結合してモーションフォトを作成します",
	Long: `imageDir の静止画 (jpg, jpeg, heic, heif, png) と videoDir の動画 (mov, mp4, avi, mkv, flv) を
拡張子を除いたファイル名で対応付け、出力先に <prefix><name>.jpg として結合します。
videoDir を省略すると imageDir と同じディレクトリを使います。`,
	Args: cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		imageDir := "."
		if len(args) > 0 {
			imageDir = expandHome(args[0])
		}
		videoDir := imageDir
		if len(args) > 1 {
			videoDir = expandHome(args[1])
		}

		match, err := discoverPairs(imageDir, videoDir)
		if err != nil {
			log.Fatalf("❌ 入力の検索に失敗しました: %v", err)
		}
		for _, p := range match.UnmatchedStills {
			log.Printf("⚠️ 対応する動画がありません: %s", p)
		}
		for _, p := range match.UnmatchedVideos {
			log.Printf("⚠️ 対応する静止画がありません: %s", p)
		}
		if len(match.Pairs) == 0 {
			log.Println("結合対象が見つかりません。")
			return
		}

		dest, _ := filepath.Abs(cfg.DestDir)
		log.Printf("結合対象: %d組 (未対応 %d件)", len(match.Pairs), len(match.Unmatched()))
		log.Printf("出力先: %s", dest)
		log.Printf("並列実行数: %d", cfg.Concurrent)
		if cfg.DryRun {
			log.Println("ℹ️ ドライラン: ファイルは書き込まれません")
		}

		if !confirm(os.Stdin, fmt.Sprintf("%d 組を結合します。よろしいですか？", len(match.Pairs))) {
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
			return r.RunMerge(ctx, match.Pairs, dest)
		})
		if rep == nil {
			os.Exit(1)
		}
		rep.AddUnmatched(match.Unmatched()...)
		finish(ctx, rep)
	},
}

// discoverPairs lists both directories, applies the keyword filter and
// matches stills to videos by stem.
func discoverPairs(imageDir, videoDir string) (pair.MatchResult, error) {
	stills, err := pair.Discover(imageDir, pair.StillExtensions)
	if err != nil {
		return pair.MatchResult{}, err
	}
	videos, err := pair.Discover(videoDir, pair.VideoExtensions)
	if err != nil {
		return pair.MatchResult{}, err
	}
	stills = pair.Filter(stills, cfg.Keywords, cfg.IgnoreKeywords)
	videos = pair.Filter(videos, cfg.Keywords, cfg.IgnoreKeywords)

	// Our own outputs in a shared directory must not be merged again.
	if cfg.Prefix != "" {
		stills = pair.Filter(stills, nil, []string{cfg.Prefix + "*"})
	}
	return pair.NewMatcher(cfg.StemPolicy()).Match(stills, videos), nil
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
