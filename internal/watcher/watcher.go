// Package watcher merges still/video pairs as they appear in watched
// directories.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mt4110/mvimg/internal/batch"
	"github.com/mt4110/mvimg/internal/config"
	"github.com/mt4110/mvimg/internal/notify"
	"github.com/mt4110/mvimg/internal/pair"
)

// Events sent on EventChan.
type FileFoundEvent struct {
	Path string
	Name string
}

type PairReadyEvent struct {
	Pair pair.MediaPair
}

type StartMergeEvent struct {
	Path string
}

type SuccessEvent struct {
	Path    string
	OutPath string
}

type FailureEvent struct {
	Path string
	Err  error
}

type Watcher struct {
	Cfg       *config.Config
	Runner    *batch.Runner
	Matcher   *pair.Matcher
	Notifier  *notify.Notifier
	EventChan chan<- interface{} // Optional: Send events for TUI

	mu     sync.Mutex
	queued map[string]bool // stills queued or merged this session
	timers map[string]*time.Timer
	queue  chan pair.MediaPair
}

// New wires w into runner's observer chain so per-item progress reaches
// EventChan.
func New(cfg *config.Config, runner *batch.Runner) *Watcher {
	w := &Watcher{
		Cfg:     cfg,
		Runner:  runner,
		Matcher: pair.NewMatcher(cfg.StemPolicy()),
		queued:  make(map[string]bool),
		timers:  make(map[string]*time.Timer),
		queue:   make(chan pair.MediaPair, 64),
	}
	if runner.Observer == nil {
		runner.Observer = w
	} else {
		runner.Observer = batch.Observers{runner.Observer, w}
	}
	return w
}

// Run watches Cfg.WatchDirs until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.Cfg.WatchDirs) == 0 {
		return errors.New("監視対象のディレクトリが設定されていません")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	go w.mergeLoop(ctx)

	watching := 0
	for _, dir := range w.Cfg.WatchDirs {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			log.Printf("⚠️ ディレクトリパスの解決に失敗 (スキップ): %s -> %v", dir, err)
			continue
		}
		if err = fw.Add(absDir); err != nil {
			log.Printf("⚠️ 監視エラー (スキップ): %s -> %v", dir, err)
			continue
		}
		watching++
		log.Printf("監視を開始しました: %s", absDir)
		w.scan(absDir)
	}
	if watching == 0 {
		return errors.New("監視できるディレクトリがありません")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Println("監視エラー:", err)
		}
	}
}

// scan offers pairs that were already complete when watching started.
func (w *Watcher) scan(dir string) {
	stills, _ := pair.Discover(dir, pair.StillExtensions)
	for _, s := range stills {
		w.Offer(s)
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Write) {
		return
	}
	name := filepath.Base(event.Name)
	if !w.isCandidate(name) {
		return
	}
	if event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
		log.Printf("新規ファイルを検知: %s", event.Name)
		w.emit(FileFoundEvent{Path: event.Name, Name: name})
	}

	// Each write pushes the deadline back, so the pair is offered once the
	// file has been quiet for SettleDelay.
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[event.Name]; ok {
		t.Reset(w.Cfg.SettleDelay)
		return
	}
	path := event.Name
	w.timers[path] = time.AfterFunc(w.Cfg.SettleDelay, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.Offer(path)
	})
}

// isCandidate reports whether name is a still or video this watcher cares
// about. Dotfiles, our own outputs and keyword-filtered names are skipped.
func (w *Watcher) isCandidate(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	if w.Cfg.Prefix != "" && strings.HasPrefix(name, w.Cfg.Prefix) {
		return false
	}
	if !pair.HasExtension(name, pair.StillExtensions) && !pair.HasExtension(name, pair.VideoExtensions) {
		return false
	}
	if !pair.Admit(name, w.Cfg.Keywords, w.Cfg.IgnoreKeywords) {
		log.Printf("キーワード条件によりスキップ: %s", name)
		return false
	}
	return true
}

// Offer queues the pair path belongs to if its companion is present and the
// pair has not been queued yet.
func (w *Watcher) Offer(path string) (pair.MediaPair, bool) {
	if _, err := os.Stat(path); err != nil {
		log.Printf("ファイルが見つかりません (削除または移動されました): %s", path)
		return pair.MediaPair{}, false
	}
	p, ok := w.findPair(path)
	if !ok {
		return pair.MediaPair{}, false
	}

	w.mu.Lock()
	if w.queued[p.Still] {
		w.mu.Unlock()
		return pair.MediaPair{}, false
	}
	w.queued[p.Still] = true
	w.mu.Unlock()

	log.Printf("ペアが揃いました: %s + %s", filepath.Base(p.Still), filepath.Base(p.Video))
	w.emit(PairReadyEvent{Pair: p})
	w.queue <- p
	return p, true
}

func (w *Watcher) findPair(path string) (pair.MediaPair, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return pair.MediaPair{}, false
	}
	dir := filepath.Dir(abs)
	stills, err := pair.Discover(dir, pair.StillExtensions)
	if err != nil {
		return pair.MediaPair{}, false
	}
	videos, err := pair.Discover(dir, pair.VideoExtensions)
	if err != nil {
		return pair.MediaPair{}, false
	}
	stills = w.candidates(stills)
	videos = w.candidates(videos)

	for _, p := range w.Matcher.Match(stills, videos).Pairs {
		if p.Still == abs || p.Video == abs {
			return p, true
		}
	}
	return pair.MediaPair{}, false
}

func (w *Watcher) candidates(paths []string) []string {
	out := paths[:0]
	for _, p := range paths {
		name := filepath.Base(p)
		if w.Cfg.Prefix != "" && strings.HasPrefix(name, w.Cfg.Prefix) {
			continue
		}
		if pair.Admit(name, w.Cfg.Keywords, w.Cfg.IgnoreKeywords) {
			out = append(out, p)
		}
	}
	return out
}

// mergeLoop runs one batch at a time so watched merges never contend for the
// output lock. Pairs that queue up during a batch go into the next one.
func (w *Watcher) mergeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-w.queue:
			pairs := []pair.MediaPair{p}
		drain:
			for {
				select {
				case more := <-w.queue:
					pairs = append(pairs, more)
				default:
					break drain
				}
			}
			w.merge(ctx, pairs)
		}
	}
}

func (w *Watcher) merge(ctx context.Context, pairs []pair.MediaPair) *batch.Report {
	dest, _ := filepath.Abs(w.Cfg.DestDir)
	rep, err := w.Runner.RunMerge(ctx, pairs, dest)
	if err != nil {
		log.Printf("❌ 結合バッチを開始できません: %v", err)
		for _, p := range pairs {
			w.forget(p.Still)
			w.emit(FailureEvent{Path: p.Still, Err: err})
		}
		return nil
	}
	for _, it := range rep.Failed() {
		w.forget(it.Input)
	}
	w.notify(ctx, rep)
	return rep
}

func (w *Watcher) forget(still string) {
	w.mu.Lock()
	delete(w.queued, still)
	w.mu.Unlock()
}

func (w *Watcher) notify(ctx context.Context, rep *batch.Report) {
	if !w.Cfg.Notify || w.Notifier == nil {
		return
	}
	s := rep.Summary()
	if s.Failed > 0 {
		w.Notifier.Send(ctx, "結合失敗", fmt.Sprintf("%d 件の結合に失敗しました。", s.Failed), "")
		return
	}
	var last string
	if ok := rep.Succeeded(); len(ok) > 0 {
		last = ok[len(ok)-1].Output
	}
	w.Notifier.Send(ctx, "結合完了", fmt.Sprintf("%d 件のモーションフォトを作成しました。", s.Succeeded), last)
}

func (w *Watcher) emit(ev interface{}) {
	if w.EventChan != nil {
		w.EventChan <- ev
	}
}

// The Watcher observes its runner to forward per-item progress.

func (w *Watcher) OnStart(batch.Mode, int) {}

func (w *Watcher) OnItemStart(input string) {
	w.emit(StartMergeEvent{Path: input})
}

func (w *Watcher) OnItemDone(res batch.ItemResult, _, _ int) {
	if res.State == batch.StateSucceeded {
		w.emit(SuccessEvent{Path: res.Input, OutPath: res.Output})
		return
	}
	w.emit(FailureEvent{Path: res.Input, Err: res.Err})
}

func (w *Watcher) OnFinish(*batch.Report) {}
