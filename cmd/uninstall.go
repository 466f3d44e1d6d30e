package cmd

import (
	"log"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/mt4110/mvimg/internal/config"
)

var flagPurge bool

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "初期セットアップの設定を削除します",
	Long:  `LaunchAgent(plist)のアンロードと削除、exiftool 設定の削除を行います。--purge で設定ファイルも削除します。`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. LaunchAgent
		if plistPath, err := launchAgentPath(); err == nil {
			if _, err := os.Stat(plistPath); err == nil {
				log.Printf("LaunchAgentをアンロードしています: %s", plistPath)
				if output, err := exec.Command("launchctl", "unload", plistPath).CombinedOutput(); err != nil {
					log.Printf("⚠️ アンロードに失敗しました (すでにロードされていない可能性があります): %v\n%s", err, string(output))
				} else {
					log.Println("✅ アンロード成功")
				}
				removeFile(plistPath, "plistファイル")
			}
		}

		// 2. exiftool definitions
		removeFile(cfg.ExifToolConfigPath(), "exiftool 設定")

		// 3. Config
		if flagPurge {
			if p, err := config.Path(); err == nil {
				removeFile(p, "設定ファイル")
			}
		}

		log.Println("アンインストール完了 (ログファイルと出力ディレクトリ、mvimgバイナリ自体は残っています)")
	},
}

func removeFile(path, label string) {
	if _, err := os.Stat(path); err != nil {
		log.Printf("⚠️ %sが見つかりません: %s", label, path)
		return
	}
	if err := os.Remove(path); err != nil {
		log.Fatalf("❌ %sの削除に失敗: %v", label, err)
	}
	log.Printf("✅ %sを削除しました: %s", label, path)
}

func init() {
	uninstallCmd.Flags().BoolVar(&flagPurge, "purge", false, "設定ファイルも削除する")
	rootCmd.AddCommand(uninstallCmd)
}
