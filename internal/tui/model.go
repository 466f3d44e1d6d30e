package tui

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mt4110/mvimg/internal/config"
	"github.com/mt4110/mvimg/internal/watcher"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A0A0A0"))

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
)

const historyLimit = 20

type tickMsg time.Time

type Model struct {
	cfg *config.Config

	// waiting holds files seen but not merged yet; paths runs parallel to it.
	waiting []string
	paths   []string
	history []string
	outputs []string // merged files, newest first

	merged int
	failed int
	active int // merges started but not finished
	cursor int
	now    time.Time

	keys    KeyMap
	spinner spinner.Model
	sub     chan interface{} // Subscription to watcher events
}

func NewModel(cfg *config.Config, sub chan interface{}) Model {
	return Model{
		cfg:     cfg,
		waiting: []string{},
		paths:   []string{},
		history: []string{},
		keys:    DefaultKeyMap,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(okStyle)),
		sub:     sub,
		now:     time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
		waitForActivity(m.sub),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.outputs)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Preview):
			if m.cursor < len(m.outputs) {
				return m, tea.ExecProcess(previewCommand(m.outputs[m.cursor]), func(err error) tea.Msg {
					return nil
				})
			}
		}
	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	// Watcher Events
	case watcher.FileFoundEvent:
		if m.indexOf(msg.Path) < 0 {
			m.waiting = append(m.waiting, msg.Name)
			m.paths = append(m.paths, msg.Path)
		}
		return m, waitForActivity(m.sub)

	case watcher.PairReadyEvent:
		m.drop(msg.Pair.Still)
		m.drop(msg.Pair.Video)
		m.pushHistory("🔗 Paired: " + filepath.Base(msg.Pair.Still) + " + " + filepath.Base(msg.Pair.Video))
		return m, waitForActivity(m.sub)

	case watcher.StartMergeEvent:
		m.active++
		m.pushHistory("🚀 Merging: " + filepath.Base(msg.Path))
		return m, waitForActivity(m.sub)

	case watcher.SuccessEvent:
		m.merged++
		m.finishOne()
		m.outputs = append([]string{msg.OutPath}, m.outputs...)
		m.pushHistory(okStyle.Render("✅ Done: " + filepath.Base(msg.OutPath)))
		return m, waitForActivity(m.sub)

	case watcher.FailureEvent:
		m.failed++
		m.finishOne()
		line := "❌ Failed: " + filepath.Base(msg.Path)
		if msg.Err != nil {
			line += " (" + msg.Err.Error() + ")"
		}
		m.pushHistory(failStyle.Render(line))
		return m, waitForActivity(m.sub)
	}
	return m, nil
}

func (m *Model) indexOf(path string) int {
	for i, p := range m.paths {
		if p == path {
			return i
		}
	}
	return -1
}

// drop removes path from the waiting list.
func (m *Model) drop(path string) {
	abs, _ := filepath.Abs(path)
	for _, candidate := range []string{path, abs} {
		if idx := m.indexOf(candidate); idx >= 0 {
			m.waiting = append(m.waiting[:idx], m.waiting[idx+1:]...)
			m.paths = append(m.paths[:idx], m.paths[idx+1:]...)
			return
		}
	}
}

func (m *Model) finishOne() {
	if m.active > 0 {
		m.active--
	}
}

func (m *Model) pushHistory(line string) {
	m.history = append([]string{line}, m.history...)
	if len(m.history) > historyLimit {
		m.history = m.history[:historyLimit]
	}
}

func (m Model) View() string {
	s := titleStyle.Render("📸 mvimg watch") + "\n\n"

	s += "監視中: " + fmt.Sprintf("%v", m.cfg.WatchDirs) + "\n"
	s += "出力先: " + m.cfg.DestDir + "\n"
	s += statusStyle.Render(fmt.Sprintf("結合 %d / 失敗 %d  %s", m.merged, m.failed, m.now.Format("15:04:05"))) + "\n"
	if m.active > 0 {
		s += fmt.Sprintf("%s 結合中 %d件\n", m.spinner.View(), m.active)
	}
	s += "\n"

	s += "相方待ち:\n"
	if len(m.waiting) == 0 {
		s += statusStyle.Render("  (なし)") + "\n"
	}
	for _, q := range m.waiting {
		s += fmt.Sprintf("  %s\n", q)
	}

	s += "\n作成済み:\n"
	if len(m.outputs) == 0 {
		s += statusStyle.Render("  (なし)") + "\n"
	}
	for i, o := range m.outputs {
		cursor := "  "
		if m.cursor == i {
			cursor = "> "
		}
		s += fmt.Sprintf("%s%s\n", cursor, filepath.Base(o))
	}

	s += "\n最近の履歴:\n"
	if len(m.history) == 0 {
		s += statusStyle.Render("  (履歴なし)") + "\n"
	}
	for _, h := range m.history {
		s += fmt.Sprintf("  %s\n", h)
	}

	s += "\n" + m.keys.helpLine() + "\n"
	return s
}

func previewCommand(path string) *exec.Cmd {
	if runtime.GOOS == "darwin" {
		return exec.Command("qlmanage", "-p", path)
	}
	return exec.Command("xdg-open", path)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForActivity(sub chan interface{}) tea.Cmd {
	return func() tea.Msg {
		return <-sub
	}
}
