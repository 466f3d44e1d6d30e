package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mt4110/mvimg/internal/logger"
	"github.com/mt4110/mvimg/internal/notify"
	"github.com/mt4110/mvimg/internal/tui"
	"github.com/mt4110/mvimg/internal/watcher"
)

var tuiCmd = &cobra.Command{
	Use:   "tui [dirs...]",
	Short: "TUIモードで監視・結合を行います (Interactive)",
	Args:  cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		// Mute stdout logging to prevent TUI corruption
		logger.MuteStdout()

		applyWatchDirs(args)

		eventChan := make(chan interface{}, 100)
		w := watcher.New(cfg, newRunner())
		w.EventChan = eventChan
		w.Notifier = notify.New(toolRunner())

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		// Run Watcher in BG
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Printf("❌ %v", err)
				eventChan <- watcher.FailureEvent{Path: fmt.Sprint(cfg.WatchDirs), Err: err}
			}
		}()

		m := tui.NewModel(cfg, eventChan)
		p := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			fmt.Printf("Alas, there's been an error: %v", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
