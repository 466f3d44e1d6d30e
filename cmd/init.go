package cmd

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	"howett.net/plist"

	"github.com/mt4110/mvimg/internal/config"
	"github.com/mt4110/mvimg/internal/logger"
	"github.com/mt4110/mvimg/internal/metadata"
)

const launchAgentLabel = "com.user.mvimg"

var (
	flagForce       bool
	flagLaunchAgent bool
)

type plistData struct {
	Label     string
	ExecPath  string
	WatchDirs []string
	LogPath   string
}

// launchAgent is the property list launchd reads from ~/Library/LaunchAgents.
type launchAgent struct {
	Label             string   `plist:"Label"`
	ProgramArguments  []string `plist:"ProgramArguments"`
	RunAtLoad         bool     `plist:"RunAtLoad"`
	KeepAlive         bool     `plist:"KeepAlive"`
	StandardOutPath   string   `plist:"StandardOutPath"`
	StandardErrorPath string   `plist:"StandardErrorPath"`
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "初期セットアップを行います",
	Long: `設定ファイル (~/.config/mvimg/config.yaml) と exiftool の GCamera タグ定義を作成します。
--launch-agent を付けると macOS の LaunchAgent (plist) を生成し、監視モードを常駐させます。`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Config file
		cfgPath, err := config.Path()
		if err != nil {
			log.Fatalf("ホームディレクトリの取得に失敗: %v", err)
		}
		if _, err := os.Stat(cfgPath); err == nil && !flagForce {
			log.Printf("ℹ️ 設定ファイルは既にあります (上書きは --force): %s", cfgPath)
		} else {
			if err := cfg.Save(cfgPath); err != nil {
				log.Fatalf("設定ファイルの作成に失敗: %v", err)
			}
			log.Printf("✅ 設定ファイルを作成: %s", cfgPath)
		}

		// 2. exiftool GCamera definitions
		etPath := cfg.ExifToolConfigPath()
		if flagForce {
			os.Remove(etPath)
		}
		if err := metadata.EnsureConfig(etPath); err != nil {
			log.Fatalf("exiftool 設定の作成に失敗: %v", err)
		}
		log.Printf("✅ exiftool 設定を確認: %s", etPath)

		// 3. Output directory
		if err := os.MkdirAll(cfg.DestDir, 0o755); err != nil {
			log.Printf("出力ディレクトリ作成失敗: %v", err)
		} else {
			log.Printf("✅ 出力ディレクトリを確認: %s", cfg.DestDir)
		}

		if flagLaunchAgent {
			installLaunchAgent()
		}
	},
}

func launchAgentPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "LaunchAgents", launchAgentLabel+".plist"), nil
}

func containsLabel(launchctlList []byte) bool {
	return bytes.Contains(launchctlList, []byte(launchAgentLabel))
}

func writePlist(w io.Writer, data plistData) error {
	enc := plist.NewEncoder(w)
	enc.Indent("\t")
	return enc.Encode(launchAgent{
		Label:             data.Label,
		ProgramArguments:  append([]string{data.ExecPath, "watch"}, data.WatchDirs...),
		RunAtLoad:         true,
		KeepAlive:         true,
		StandardOutPath:   data.LogPath,
		StandardErrorPath: data.LogPath,
	})
}

func installLaunchAgent() {
	plistPath, err := launchAgentPath()
	if err != nil {
		log.Fatalf("ホームディレクトリの取得に失敗: %v", err)
	}

	execPath, err := os.Executable()
	if err != nil {
		execPath = "/usr/local/bin/mvimg" // fallback
	}
	watchDirs := cfg.WatchDirs
	if len(watchDirs) == 0 {
		log.Fatal("監視対象のディレクトリが設定されていません (config の watchDirs を設定してください)")
	}
	logPath := cfg.LogFile
	if logPath == "" {
		logPath = logger.DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(plistPath), 0o755); err != nil {
		log.Fatalf("LaunchAgents ディレクトリの作成に失敗: %v", err)
	}
	f, err := os.Create(plistPath)
	if err != nil {
		log.Fatalf("plistファイルの作成に失敗: %v", err)
	}
	err = writePlist(f, plistData{
		Label:     launchAgentLabel,
		ExecPath:  execPath,
		WatchDirs: watchDirs,
		LogPath:   logPath,
	})
	f.Close()
	if err != nil {
		log.Fatalf("plistの書き込みに失敗: %v", err)
	}
	log.Printf("✅ plistファイルを作成: %s", plistPath)

	if !confirm(os.Stdin, "LaunchAgentをロードしますか？") {
		log.Println("スキップしました。手動で実行する場合は以下のコマンドを入力してください:")
		fmt.Printf("launchctl load %s\n", plistPath)
		return
	}
	// Unload first just in case
	exec.Command("launchctl", "unload", plistPath).Run()
	if output, err := exec.Command("launchctl", "load", plistPath).CombinedOutput(); err != nil {
		log.Printf("❌ launchctl load 失敗: %v\n%s", err, string(output))
	} else {
		log.Println("✅ launchctl load 成功！ mvimg watch がバックグラウンドで起動しました。")
	}
}

func init() {
	initCmd.Flags().BoolVar(&flagForce, "force", false, "既存の設定ファイルを上書きする")
	initCmd.Flags().BoolVar(&flagLaunchAgent, "launch-agent", false, "macOS の LaunchAgent を生成して監視モードを常駐させる")
	rootCmd.AddCommand(initCmd)
}
