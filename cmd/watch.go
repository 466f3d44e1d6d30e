package cmd

import (
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mt4110/mvimg/internal/notify"
	"github.com/mt4110/mvimg/internal/progress"
	"github.com/mt4110/mvimg/internal/updater"
	"github.com/mt4110/mvimg/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dirs...]",
	Short: "ディレクトリを監視し、静止画と動画が揃ったら自動で結合します",
	Args:  cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		applyWatchDirs(args)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		if !updater.Warn(ctx, updater.NewChecker(toolRunner()), cfg) {
			os.Exit(1)
		}

		r := newRunner()
		r.Observer = progress.Lines{}
		w := watcher.New(cfg, r)
		w.Notifier = notify.New(toolRunner())

		log.Println("👀 監視モードを開始しました (Ctrl+C で終了)")
		if err := w.Run(ctx); err != nil {
			log.Fatalf("❌ %v", err)
		}
	},
}

// applyWatchDirs lets CLI args override the configured watch directories,
// defaulting to the current directory.
func applyWatchDirs(args []string) {
	if len(args) > 0 {
		cfg.WatchDirs = nil
		for _, a := range args {
			cfg.WatchDirs = append(cfg.WatchDirs, expandHome(a))
		}
	}
	if len(cfg.WatchDirs) == 0 {
		cfg.WatchDirs = []string{"."}
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
