package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var (
	// ldflags will set these
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// buildVersion fills in whatever ldflags left unset from the embedded build
// info, so `go install` binaries still report something useful.
func buildVersion(info *debug.BuildInfo) (v, rev, when string) {
	v, rev, when = version, commit, date
	if info == nil {
		return
	}
	if v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		v = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if rev == "none" {
				rev = s.Value
			}
		case "vcs.time":
			if when == "unknown" {
				when = s.Value
			}
		}
	}
	return
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "バージョン情報を表示します",
	Run: func(cmd *cobra.Command, args []string) {
		info, _ := debug.ReadBuildInfo()
		v, rev, when := buildVersion(info)
		fmt.Printf("mvimg %s\n", v)
		fmt.Printf("Commit: %s\n", rev)
		fmt.Printf("Date:   %s\n", when)
		fmt.Printf("OS:     %s/%s\n", runtime.GOOS, runtime.GOARCH)
		if info != nil {
			fmt.Printf("Go:     %s\n", info.GoVersion)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
