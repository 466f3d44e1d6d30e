package cmd

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/mt4110/mvimg/internal/config"
	"github.com/mt4110/mvimg/internal/logger"
	"github.com/mt4110/mvimg/internal/notify"
	"github.com/mt4110/mvimg/internal/updater"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "環境の診断を行います",
	Long:  `exiftool / ffmpeg / ImageMagick のインストール状況、設定ファイル、ログディレクトリの権限、LaunchAgent の状態などをチェックします。`,
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("🏥 環境診断を開始します...")
		hasError := false
		ctx := cmd.Context()

		// 1. External tools
		for _, st := range updater.NewChecker(toolRunner()).Check(ctx, updater.Tools(cfg)) {
			switch {
			case st.Found:
				log.Printf("✅ %s found: %s", st.Bin, st.Path)
				if st.Version != "" {
					log.Printf("   Version: %s", st.Version)
				}
				if st.Upgradable {
					log.Printf("   ℹ️ アップデートが可能です: brew upgrade %s", st.Name)
				}
			case st.Required:
				log.Printf("❌ %s が見つかりません (%s)。 `brew install %s` を実行してください。", st.Bin, st.Purpose, st.Name)
				hasError = true
			default:
				log.Printf("⚠️ %s が見つかりません。%s を行う場合は `brew install %s` を推奨します。", st.Bin, st.Purpose, st.Name)
			}
		}

		// 2. Notification command
		if name, _, ok := notify.New(toolRunner()).Command("mvimg", "doctor", ""); ok {
			log.Printf("✅ 通知コマンド: %s", name)
		} else {
			log.Println("⚠️ 通知コマンドが見つかりません。デスクトップ通知は送られません。")
		}

		// 3. Config and exiftool definitions
		if p, err := config.Path(); err == nil {
			if _, err := os.Stat(p); err != nil {
				log.Printf("ℹ️ 設定ファイルはありません (デフォルト値を使用): %s", p)
			} else {
				log.Printf("✅ 設定ファイル: %s", p)
			}
		}
		if _, err := os.Stat(cfg.ExifToolConfigPath()); err != nil {
			log.Printf("ℹ️ exiftool 設定は初回実行時に作成されます: %s", cfg.ExifToolConfigPath())
		} else {
			log.Printf("✅ exiftool 設定: %s", cfg.ExifToolConfigPath())
		}

		// 4. Log Directory check
		logPath := cfg.LogFile
		if logPath == "" {
			logPath = logger.DefaultPath()
		}
		if !checkWritable(filepath.Dir(logPath), "ログディレクトリ") {
			hasError = true
		}

		// 5. Output directory
		if info, err := os.Stat(cfg.DestDir); err == nil && info.IsDir() {
			if !checkWritable(cfg.DestDir, "出力先") {
				hasError = true
			}
		} else {
			log.Printf("ℹ️ 出力先 %s は実行時に作成されます", cfg.DestDir)
		}

		// 6. LaunchAgent
		if runtime.GOOS == "darwin" {
			checkLaunchAgent(ctx)
		}

		if hasError {
			log.Println("\n❌ いくつかの問題が見つかりました。修正してください。")
			os.Exit(1)
		} else {
			log.Println("\n✅ 診断完了: 概ね問題なさそうです！")
		}
	},
}

func checkWritable(dir, label string) bool {
	info, err := os.Stat(dir)
	if err != nil {
		log.Printf("⚠️ %s (%s) にアクセスできません: %v", label, dir, err)
		return true
	}
	if !info.IsDir() {
		log.Printf("⚠️ %s はディレクトリではありません", dir)
		return false
	}
	f, err := os.CreateTemp(dir, ".mvimg-write-test-*")
	if err != nil {
		log.Printf("❌ %sへの書き込み権限がありません: %v", label, err)
		return false
	}
	f.Close()
	os.Remove(f.Name())
	log.Printf("✅ %s権限 OK", label)
	return true
}

func checkLaunchAgent(ctx context.Context) {
	plistPath, err := launchAgentPath()
	if err != nil {
		return
	}
	if _, err := os.Stat(plistPath); err != nil {
		log.Println("ℹ️ LaunchAgent設定 (plist) は見つかりませんでした (init --launch-agent 未実行)")
		return
	}
	log.Printf("✅ plist found: %s", plistPath)
	out, err := toolRunner().Run(ctx, "launchctl", "list")
	if err != nil {
		return
	}
	if containsLabel(out) {
		log.Println("✅ LaunchAgent is loaded (launchctl list confirms)")
	} else {
		log.Println("⚠️ plistはありますが、ロードされていません (`launchctl load` が必要かもしれません)")
	}
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
