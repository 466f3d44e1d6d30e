package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mt4110/mvimg/internal/config"
	"github.com/mt4110/mvimg/internal/logger"
	"github.com/mt4110/mvimg/internal/pair"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mvimg",
	Short: "静止画と動画をモーションフォト(MVIMG)に結合・分割します。",
	Long: `JPEG の静止画と MP4 動画を Google 形式のモーションフォト (MVIMG_*.jpg) に結合し、
またモーションフォトを静止画と動画に分割する CLI ツール。監視モードで自動結合も可能。`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadedCfg, err := config.Load()
		if err != nil {
			log.Printf("設定ファイルの読み込みに失敗しました (デフォルト値を使用します): %v", err)
			loadedCfg = config.NewDefault()
		}
		cfg = loadedCfg

		updateConfigFromFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			log.Fatalf("❌ 設定が不正です: %v", err)
		}

		logger.Setup(cfg.LogFile)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

// Temporary variables for flags
var (
	flagDest           string
	flagConcurrent     int
	flagPrefix         string
	flagSuffix         string
	flagStemMatch      string
	flagKeywords       []string
	flagIgnoreKeywords []string
	flagKeepTimestamps bool
	flagNativeRead     bool
	flagDryRun         bool
	flagNotify         bool
	flagLogFile        string
	flagProfile        string
	flagCRF            int
	flagPreset         string
	flagGPU            bool
	flagFFmpegBin      string
	flagMagickBin      string
	flagExifToolBin    string
	flagToolTimeout    time.Duration
	flagYes            bool
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDest, "dest", "", "出力先ディレクトリ")
	pf.IntVar(&flagConcurrent, "concurrent", 0, "並列実行数")
	pf.StringVar(&flagPrefix, "prefix", "", "結合後のファイル名の接頭辞 (default MVIMG_)")
	pf.StringVar(&flagSuffix, "suffix", "", "分割後のファイル名の接尾辞 (default _01)")
	pf.StringVar(&flagStemMatch, "stem-match", "", "ファイル名の照合方法 (auto, sensitive, insensitive)")
	pf.StringSliceVar(&flagKeywords, "keywords", []string{}, "ファイル名に含まれるキーワードでフィルタ")
	pf.StringSliceVar(&flagIgnoreKeywords, "ignore-keywords", []string{}, "ファイル名に含まれるキーワードを除外")
	pf.BoolVar(&flagKeepTimestamps, "keep-timestamps", true, "出力ファイルの更新日時を元ファイルに合わせる")
	pf.BoolVar(&flagNativeRead, "native-read", true, "オフセットの読み取りを exiftool を使わず内蔵XMPパーサで行う")
	pf.BoolVar(&flagDryRun, "dry-run", false, "実行せずに出力予定のファイルを表示する")
	pf.BoolVar(&flagNotify, "notify", true, "完了時にデスクトップ通知を送る")
	pf.StringVar(&flagLogFile, "log-file", "", "ログファイルのパス")
	pf.StringVar(&flagProfile, "profile", "", "使用するプロファイル名")
	pf.IntVar(&flagCRF, "crf", 0, "動画変換時のCRF値 (品質)")
	pf.StringVar(&flagPreset, "preset", "", "動画変換時のエンコードプリセット")
	pf.BoolVar(&flagGPU, "gpu", false, "GPU(VideoToolbox)を使用して動画を変換する")
	pf.StringVar(&flagFFmpegBin, "ffmpeg-bin", "", "ffmpegのバイナリパスを明示的に指定する")
	pf.StringVar(&flagMagickBin, "magick-bin", "", "ImageMagickのバイナリパスを明示的に指定する")
	pf.StringVar(&flagExifToolBin, "exiftool-bin", "", "exiftoolのバイナリパスを明示的に指定する")
	pf.DurationVar(&flagToolTimeout, "tool-timeout", 0, "外部ツール1回あたりのタイムアウト")
	pf.BoolVarP(&flagYes, "yes", "y", false, "確認をスキップして実行する")
}

func updateConfigFromFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()

	// 1. Apply Profile first if exists
	if flags.Changed("profile") {
		if c.ApplyProfile(flagProfile) {
			log.Printf("ℹ️ プロファイル '%s' を適用しました (CRF: %d, Preset: %s)", flagProfile, c.CRF, c.Preset)
		} else {
			log.Printf("⚠️ プロファイル '%s' は見つかりませんでした。デフォルト設定を使用します。", flagProfile)
		}
	}

	if flags.Changed("dest") {
		c.DestDir = expandHome(flagDest)
	}
	if flags.Changed("concurrent") {
		c.Concurrent = flagConcurrent
	}
	if flags.Changed("prefix") {
		c.Prefix = flagPrefix
	}
	if flags.Changed("suffix") {
		c.SplitSuffix = flagSuffix
	}
	if flags.Changed("stem-match") {
		c.StemMatch = flagStemMatch
	}
	if flags.Changed("keywords") {
		c.Keywords = flagKeywords
	}
	if flags.Changed("ignore-keywords") {
		c.IgnoreKeywords = flagIgnoreKeywords
	}
	// Bool flags default to true, so --flag=false must be honoured explicitly.
	if flags.Changed("keep-timestamps") {
		c.KeepTimestamps = flagKeepTimestamps
	}
	if flags.Changed("native-read") {
		c.NativeRead = flagNativeRead
	}
	if flags.Changed("dry-run") {
		c.DryRun = flagDryRun
	}
	if flags.Changed("notify") {
		c.Notify = flagNotify
	}
	if flags.Changed("log-file") {
		c.LogFile = expandHome(flagLogFile)
	}
	if flags.Changed("crf") {
		c.CRF = flagCRF
	}
	if flags.Changed("preset") {
		c.Preset = flagPreset
	}
	if flags.Changed("gpu") {
		c.GPU = flagGPU
	}
	if flags.Changed("ffmpeg-bin") {
		c.FFmpegBin = flagFFmpegBin
	}
	if flags.Changed("magick-bin") {
		c.MagickBin = flagMagickBin
	}
	if flags.Changed("exiftool-bin") {
		c.ExifToolBin = flagExifToolBin
	}
	if flags.Changed("tool-timeout") {
		c.ToolTimeout = flagToolTimeout
	}
	if _, ok := pair.ParsePolicy(c.StemMatch); !ok {
		log.Printf("⚠️ stem-match '%s' は不正な値です。auto を使用します。", c.StemMatch)
		c.StemMatch = string(pair.PolicyAuto)
	}
}
