// Package batch runs merges and splits over many items with a bounded worker
// pool and collects a per-item report.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/mt4110/mvimg/internal/config"
	"github.com/mt4110/mvimg/internal/metadata"
	"github.com/mt4110/mvimg/internal/motion"
	"github.com/mt4110/mvimg/internal/pair"
	"github.com/mt4110/mvimg/internal/transcode"
)

const (
	LockName      = ".mvimg.lock"
	scratchPrefix = ".mvimg-scratch-"
)

var (
	ErrNoItems = errors.New("no items to process")
	ErrLocked  = errors.New("output directory is in use by another mvimg batch")
)

// ImageConverter renders a still as JPEG into scratchDir.
type ImageConverter interface {
	ConvertToJPEG(ctx context.Context, inPath, scratchDir string) (string, error)
}

// VideoConverter renders a clip as MP4 into scratchDir.
type VideoConverter interface {
	ConvertToMP4(ctx context.Context, inPath, scratchDir string) (string, error)
}

type Runner struct {
	Port        metadata.Port
	Images      ImageConverter
	Videos      VideoConverter
	Concurrency int
	Observer    Observer

	Prefix         string
	SplitSuffix    string
	KeepTimestamps bool
	DryRun         bool

	// Probes decide whether an input must be transcoded first. They default
	// to transcode.NeedsJPEG and transcode.NeedsMP4.
	NeedsJPEG func(path string) (bool, error)
	NeedsMP4  func(path string) (bool, error)

	mu sync.Mutex
}

// New builds a Runner from cfg.
func New(cfg *config.Config, port metadata.Port, images ImageConverter, videos VideoConverter) *Runner {
	return &Runner{
		Port:           port,
		Images:         images,
		Videos:         videos,
		Concurrency:    cfg.Concurrent,
		Prefix:         cfg.Prefix,
		SplitSuffix:    cfg.SplitSuffix,
		KeepTimestamps: cfg.KeepTimestamps,
		DryRun:         cfg.DryRun,
	}
}

type task struct {
	input  string
	output string
	run    func(ctx context.Context, scratch string) ItemResult
}

// RunMerge merges every pair into outputDir. Per-item failures are recorded
// in the report; only setup failures are returned as errors.
func (r *Runner) RunMerge(ctx context.Context, pairs []pair.MediaPair, outputDir string) (*Report, error) {
	tasks := make([]task, 0, len(pairs))
	for _, p := range pairs {
		p := p
		tasks = append(tasks, task{
			input:  p.Still,
			output: MergeOutput(outputDir, r.Prefix, p.Still),
			run: func(ctx context.Context, scratch string) ItemResult {
				return r.mergeOne(ctx, p, outputDir, scratch)
			},
		})
	}
	return r.run(ctx, ModeMerge, tasks, outputDir)
}

// RunSplit splits every container into outputDir.
func (r *Runner) RunSplit(ctx context.Context, containers []string, outputDir string) (*Report, error) {
	tasks := make([]task, 0, len(containers))
	for _, c := range containers {
		c := c
		imageOut, _ := SplitOutputs(outputDir, r.SplitSuffix, c)
		tasks = append(tasks, task{
			input:  c,
			output: imageOut,
			run: func(ctx context.Context, _ string) ItemResult {
				return r.splitOne(ctx, c, outputDir)
			},
		})
	}
	return r.run(ctx, ModeSplit, tasks, outputDir)
}

func (r *Runner) run(ctx context.Context, mode Mode, tasks []task, outputDir string) (*Report, error) {
	if len(tasks) == 0 {
		return nil, ErrNoItems
	}
	if r.Port == nil {
		return nil, errors.New("batch: metadata port is not configured")
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	lockPath := filepath.Join(outputDir, LockName)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, outputDir)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Printf("⚠️ ロック解除に失敗: %v", err)
		}
		os.Remove(lockPath)
	}()

	var scratch string
	if !r.DryRun {
		scratch, err = os.MkdirTemp(outputDir, scratchPrefix+"*")
		if err != nil {
			return nil, fmt.Errorf("create scratch directory: %w", err)
		}
		defer os.RemoveAll(scratch)
	}

	claimOutputs(tasks)

	inputs := make([]string, len(tasks))
	for i, t := range tasks {
		inputs[i] = t.input
	}
	report := newReport(mode, outputDir, inputs)
	report.DryRun = r.DryRun
	r.mu.Lock()
	r.observer().OnStart(mode, len(tasks))
	r.mu.Unlock()

	concurrency := r.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrency)
	for i, t := range tasks {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(i int, t task) {
			defer wg.Done()
			defer func() { <-semaphore }()

			r.mu.Lock()
			report.mu.Lock()
			report.Items[i].State = StateProcessing
			report.mu.Unlock()
			r.observer().OnItemStart(t.input)
			r.mu.Unlock()

			res := r.process(ctx, t, scratch)
			logResult(mode, res)

			r.mu.Lock()
			report.mu.Lock()
			completed := report.set(i, res)
			report.mu.Unlock()
			r.observer().OnItemDone(res, completed, len(tasks))
			r.mu.Unlock()
		}(i, t)
	}
	wg.Wait()

	report.Finalize()
	r.mu.Lock()
	r.observer().OnFinish(report)
	r.mu.Unlock()
	return report, nil
}

// claimOutputs fails every task whose output path was already claimed by an
// earlier task, so two inputs never write the same file.
func claimOutputs(tasks []task) {
	claimed := make(map[string]string, len(tasks))
	for i, t := range tasks {
		key := pair.PolicyAuto.Key(filepath.Clean(t.output))
		first, taken := claimed[key]
		if !taken {
			claimed[key] = t.input
			continue
		}
		input, output := t.input, t.output
		tasks[i].run = func(context.Context, string) ItemResult {
			res := ItemResult{Input: input, State: StateProcessing}
			return res.fail(motion.Errorf(motion.KindPrecondition, "plan output", input,
				"output %s is already used by %s", output, first))
		}
	}
}

// process runs one task, turning a panic into a failed result.
func (r *Runner) process(ctx context.Context, t task, scratch string) (res ItemResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = ItemResult{Input: t.input}
			res.fail(fmt.Errorf("panic: %v", p))
		}
		res.Duration = time.Since(start)
	}()
	return t.run(ctx, scratch)
}

func (r *Runner) observer() Observer {
	if r.Observer == nil {
		return NopObserver{}
	}
	return r.Observer
}

// MergeOutput is the output path of the merged container for still.
func MergeOutput(outputDir, prefix, still string) string {
	return filepath.Join(outputDir, prefix+pair.Stem(still)+".jpg")
}

// SplitOutputs are the image and video paths a split of container writes.
func SplitOutputs(outputDir, suffix, container string) (image, video string) {
	base := filepath.Join(outputDir, pair.Stem(container)+suffix)
	return base + ".jpg", base + ".mp4"
}

func (r *Runner) mergeOne(ctx context.Context, p pair.MediaPair, outputDir, scratch string) ItemResult {
	res := ItemResult{
		Input:     p.Still,
		Companion: p.Video,
		Output:    MergeOutput(outputDir, r.Prefix, p.Still),
		State:     StateProcessing,
	}
	if sameFile(res.Output, p.Still) || sameFile(res.Output, p.Video) {
		return res.fail(motion.Errorf(motion.KindPrecondition, "merge", res.Output,
			"output would overwrite an input"))
	}

	if r.DryRun {
		for _, in := range []string{p.Still, p.Video} {
			if _, err := os.Stat(in); err != nil {
				return res.fail(&motion.Error{Kind: motion.KindNotFound, Op: "stat", Path: in, Err: err})
			}
		}
		res.State = StateSucceeded
		return res
	}

	still, cleanup, err := r.normalize(ctx, p.Still, scratch, r.needsJPEG, r.convertImage)
	if err != nil {
		return res.fail(err)
	}
	defer cleanup()

	video, cleanupVideo, err := r.normalize(ctx, p.Video, scratch, r.needsMP4, r.convertVideo)
	if err != nil {
		return res.fail(err)
	}
	defer cleanupVideo()

	m, err := motion.Merge(still, video, res.Output)
	if err != nil {
		return res.fail(err)
	}
	offset, err := m.Offset()
	if err != nil {
		os.Remove(res.Output)
		return res.fail(err)
	}
	if err := r.Port.Write(ctx, res.Output, offset); err != nil {
		os.Remove(res.Output)
		return res.fail(err)
	}
	// exiftool rewrites the still's segments, so sizes are taken after tagging.
	if info, err := os.Stat(res.Output); err == nil {
		res.MergedSize = uint64(info.Size())
	} else {
		res.MergedSize = m.MergedSize
	}

	if r.KeepTimestamps {
		copyTimes(p.Still, res.Output)
	}

	if res.MergedSize >= offset {
		res.StillSize = res.MergedSize - offset
	}
	res.VideoSize = m.VideoSize
	res.Offset = offset
	res.State = StateSucceeded
	return res
}

func (r *Runner) splitOne(ctx context.Context, container, outputDir string) ItemResult {
	imageOut, videoOut := SplitOutputs(outputDir, r.SplitSuffix, container)
	res := ItemResult{Input: container, Output: imageOut, Extra: videoOut, State: StateProcessing}
	if sameFile(imageOut, container) {
		return res.fail(motion.Errorf(motion.KindPrecondition, "split", imageOut,
			"output would overwrite the container"))
	}

	offset, err := r.Port.Read(ctx, container)
	if err != nil {
		return res.fail(err)
	}
	res.Offset = offset

	if r.DryRun {
		info, err := os.Stat(container)
		if err != nil {
			return res.fail(&motion.Error{Kind: motion.KindNotFound, Op: "stat", Path: container, Err: err})
		}
		img, vid, err := motion.RangesFor(uint64(info.Size()), offset)
		if err != nil {
			return res.fail(withPath(err, container))
		}
		res.MergedSize = uint64(info.Size())
		res.StillSize, res.VideoSize = img.Length, vid.Length
		res.State = StateSucceeded
		return res
	}

	s, err := motion.Split(container, offset, imageOut, videoOut)
	if err != nil {
		return res.fail(err)
	}
	if err := r.Port.Strip(ctx, imageOut); err != nil {
		os.Remove(imageOut)
		os.Remove(videoOut)
		return res.fail(err)
	}

	if needs, err := r.needsMP4(videoOut); err == nil && needs {
		log.Printf("⚠️ 動画部分がMP4ではありません: %s", videoOut)
	}
	if r.KeepTimestamps {
		copyTimes(container, imageOut)
		copyTimes(container, videoOut)
	}

	res.MergedSize = s.Total
	res.StillSize = s.Image.Length
	res.VideoSize = s.Video.Length
	res.State = StateSucceeded
	return res
}

// normalize returns a path to a file the merge can use directly, converting
// into scratch when needs reports so. cleanup removes any temp file.
func (r *Runner) normalize(ctx context.Context, path, scratch string,
	needs func(string) (bool, error),
	convert func(context.Context, string, string) (string, error),
) (string, func(), error) {
	noop := func() {}
	ok, err := needs(path)
	if err != nil {
		return "", noop, err
	}
	if !ok {
		return path, noop, nil
	}
	tmp, err := convert(ctx, path, scratch)
	if err != nil {
		return "", noop, err
	}
	return tmp, func() { os.Remove(tmp) }, nil
}

func (r *Runner) needsJPEG(path string) (bool, error) {
	if r.NeedsJPEG != nil {
		return r.NeedsJPEG(path)
	}
	return transcode.NeedsJPEG(path)
}

func (r *Runner) needsMP4(path string) (bool, error) {
	if r.NeedsMP4 != nil {
		return r.NeedsMP4(path)
	}
	return transcode.NeedsMP4(path)
}

func (r *Runner) convertImage(ctx context.Context, path, scratch string) (string, error) {
	if r.Images == nil {
		return "", motion.Errorf(motion.KindPrecondition, "convert", path, "still is not a JPEG and no image converter is configured")
	}
	return r.Images.ConvertToJPEG(ctx, path, scratch)
}

func (r *Runner) convertVideo(ctx context.Context, path, scratch string) (string, error) {
	if r.Videos == nil {
		return "", motion.Errorf(motion.KindPrecondition, "convert", path, "video is not an MP4 and no video converter is configured")
	}
	return r.Videos.ConvertToMP4(ctx, path, scratch)
}

// copyTimes sets dst's access and modification times from src. Failures are
// logged, never fatal.
func copyTimes(src, dst string) {
	info, err := os.Stat(src)
	if err != nil {
		log.Printf("⚠️ タイムスタンプ取得失敗: %s -> %v", src, err)
		return
	}
	mtime := info.ModTime()
	if err := os.Chtimes(dst, mtime, mtime); err != nil {
		log.Printf("⚠️ タイムスタンプ設定失敗: %s -> %v", dst, err)
	}
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}

func withPath(err error, path string) error {
	var me *motion.Error
	if errors.As(err, &me) && me.Path == "" {
		me.Path = path
	}
	return err
}

// resultLog is the line written per finished item; `mvimg stats` reads it.
type resultLog struct {
	Type       string  `json:"type"`
	Input      string  `json:"input"`
	Output     string  `json:"output,omitempty"`
	State      State   `json:"state"`
	Kind       string  `json:"kind,omitempty"`
	Error      string  `json:"error,omitempty"`
	StillSize  uint64  `json:"still_size"`
	VideoSize  uint64  `json:"video_size"`
	MergedSize uint64  `json:"merged_size"`
	Offset     uint64  `json:"offset"`
	Duration   float64 `json:"duration_sec"`
	Timestamp  string  `json:"timestamp"`
}

// ResultType is the "type" of the JSON line logged for each finished item.
func ResultType(mode Mode) string {
	return string(mode) + "_result"
}

func logResult(mode Mode, res ItemResult) {
	if res.State == StateSucceeded {
		log.Printf("✅ 完了: %s -> %s", filepath.Base(res.Input), res.Output)
	} else {
		log.Printf("❌ 失敗: %s -> %v", res.Input, res.Err)
	}

	entry := resultLog{
		Type:       ResultType(mode),
		Input:      res.Input,
		Output:     res.Output,
		State:      res.State,
		Kind:       string(res.Kind),
		Error:      res.Error,
		StillSize:  res.StillSize,
		VideoSize:  res.VideoSize,
		MergedSize: res.MergedSize,
		Offset:     res.Offset,
		Duration:   res.Duration.Seconds(),
		Timestamp:  time.Now().Format(time.RFC3339),
	}
	if b, err := json.Marshal(entry); err == nil {
		log.Println(string(b))
	}
}
