package batch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/mt4110/mvimg/internal/metadata/metadatatest"
	"github.com/mt4110/mvimg/internal/motion"
	"github.com/mt4110/mvimg/internal/pair"
)

type imageFunc func(ctx context.Context, in, scratch string) (string, error)

func (f imageFunc) ConvertToJPEG(ctx context.Context, in, scratch string) (string, error) {
	return f(ctx, in, scratch)
}

type videoFunc func(ctx context.Context, in, scratch string) (string, error)

func (f videoFunc) ConvertToMP4(ctx context.Context, in, scratch string) (string, error) {
	return f(ctx, in, scratch)
}

func never(string) (bool, error) { return false, nil }

func fill(t *testing.T, path string, n int, b byte) {
	t.Helper()
	if err := os.WriteFile(path, bytes.Repeat([]byte{b}, n), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestRunner(port *metadatatest.Fake) *Runner {
	return &Runner{
		Port:        port,
		Concurrency: 2,
		Prefix:      "MVIMG_",
		SplitSuffix: "_01",
		NeedsJPEG:   never,
		NeedsMP4:    never,
	}
}

// assertClean checks that no scratch directory or lock file is left behind.
func assertClean(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), scratchPrefix) || e.Name() == LockName {
			t.Errorf("%s left in output directory", e.Name())
		}
	}
}

func TestRunMergeScenario(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	still := filepath.Join(in, "IMG_0001.jpg")
	video := filepath.Join(in, "IMG_0001.mp4")
	fill(t, still, 1000, 0xAA)
	fill(t, video, 5000, 0xBB)

	port := metadatatest.New()
	r := newTestRunner(port)
	rep, err := r.RunMerge(context.Background(), []pair.MediaPair{{Still: still, Video: video}}, out)
	if err != nil {
		t.Fatalf("RunMerge: %v", err)
	}

	merged := filepath.Join(out, "MVIMG_IMG_0001.jpg")
	info, err := os.Stat(merged)
	if err != nil {
		t.Fatalf("merged output missing: %v", err)
	}
	if info.Size() != 6000 {
		t.Errorf("merged size = %d, want 6000", info.Size())
	}
	if off, ok := port.Offset(merged); !ok || off != 5000 {
		t.Errorf("recorded offset = %d, %v; want 5000", off, ok)
	}

	s := rep.Summary()
	if s.Total != 1 || s.Succeeded != 1 || s.Failed != 0 {
		t.Errorf("summary = %+v", s)
	}
	item := rep.Items[0]
	if item.StillSize != 1000 || item.VideoSize != 5000 || item.MergedSize != 6000 || item.Offset != 5000 {
		t.Errorf("item sizes = %+v", item)
	}
	if rep.Completed != 1 || rep.FinishedAt.IsZero() {
		t.Errorf("report not finalized: %+v", rep)
	}
	assertClean(t, out)
}

func TestRunMergeIsolatesFailures(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	var pairs []pair.MediaPair
	for _, stem := range []string{"a", "b", "c"} {
		still := filepath.Join(in, stem+".jpg")
		video := filepath.Join(in, stem+".mp4")
		if stem != "b" {
			fill(t, still, 100, 1)
		}
		fill(t, video, 200, 2)
		pairs = append(pairs, pair.MediaPair{Still: still, Video: video})
	}

	rep, err := newTestRunner(metadatatest.New()).RunMerge(context.Background(), pairs, out)
	if err != nil {
		t.Fatal(err)
	}

	failed := rep.Failed()
	if len(failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(failed))
	}
	if failed[0].Input != pairs[1].Still || failed[0].Kind != motion.KindNotFound {
		t.Errorf("failure = %+v", failed[0])
	}
	if len(rep.Succeeded()) != 2 {
		t.Errorf("succeeded = %d, want 2", len(rep.Succeeded()))
	}
	if _, err := os.Stat(filepath.Join(out, "MVIMG_b.jpg")); !os.IsNotExist(err) {
		t.Error("failed pair should leave no output")
	}
	for i, it := range rep.Items {
		if it.Input != pairs[i].Still {
			t.Errorf("items not sorted by input: %v", rep.Items)
		}
	}
}

func TestRunMergeWriteFailureRemovesOutput(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	still := filepath.Join(in, "x.jpg")
	video := filepath.Join(in, "x.mp4")
	fill(t, still, 10, 1)
	fill(t, video, 10, 2)

	port := metadatatest.New()
	merged := filepath.Join(out, "MVIMG_x.jpg")
	port.FailWrite = map[string]bool{merged: true}

	rep, err := newTestRunner(port).RunMerge(context.Background(), []pair.MediaPair{{Still: still, Video: video}}, out)
	if err != nil {
		t.Fatal(err)
	}
	if s := rep.Summary(); s.Failed != 1 {
		t.Fatalf("summary = %+v", s)
	}
	if rep.Items[0].Kind != motion.KindExternalTool {
		t.Errorf("kind = %s", rep.Items[0].Kind)
	}
	if _, err := os.Stat(merged); !os.IsNotExist(err) {
		t.Error("untagged output should be removed")
	}
}

func TestRunMergeConvertsInputs(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	still := filepath.Join(in, "p.heic")
	video := filepath.Join(in, "p.mov")
	fill(t, still, 10, 1)
	fill(t, video, 10, 2)

	var temps []string
	var mu sync.Mutex
	convert := func(ext string, n int) func(context.Context, string, string) (string, error) {
		return func(_ context.Context, _ string, scratch string) (string, error) {
			p := filepath.Join(scratch, "conv"+ext)
			if err := os.WriteFile(p, bytes.Repeat([]byte{9}, n), 0o644); err != nil {
				return "", err
			}
			mu.Lock()
			temps = append(temps, p)
			mu.Unlock()
			return p, nil
		}
	}

	r := newTestRunner(metadatatest.New())
	r.NeedsJPEG = func(string) (bool, error) { return true, nil }
	r.NeedsMP4 = func(string) (bool, error) { return true, nil }
	r.Images = imageFunc(convert(".jpg", 300))
	r.Videos = videoFunc(convert(".mp4", 700))

	rep, err := r.RunMerge(context.Background(), []pair.MediaPair{{Still: still, Video: video}}, out)
	if err != nil {
		t.Fatal(err)
	}
	if s := rep.Summary(); s.Succeeded != 1 {
		t.Fatalf("summary = %+v, items = %+v", s, rep.Items)
	}
	if rep.Items[0].Offset != 700 || rep.Items[0].MergedSize != 1000 {
		t.Errorf("item = %+v", rep.Items[0])
	}
	if len(temps) != 2 {
		t.Fatalf("converters called %d times", len(temps))
	}
	for _, p := range temps {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("temp %s not removed", p)
		}
	}
	assertClean(t, out)
}

func TestRunMergeMissingConverter(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	still := filepath.Join(in, "p.png")
	video := filepath.Join(in, "p.mp4")
	fill(t, still, 10, 1)
	fill(t, video, 10, 2)

	r := newTestRunner(metadatatest.New())
	r.NeedsJPEG = func(string) (bool, error) { return true, nil }
	rep, err := r.RunMerge(context.Background(), []pair.MediaPair{{Still: still, Video: video}}, out)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Items[0].Kind != motion.KindPrecondition {
		t.Errorf("kind = %s", rep.Items[0].Kind)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	var pairs []pair.MediaPair
	for _, stem := range []string{"boom", "fine"} {
		still := filepath.Join(in, stem+".jpg")
		video := filepath.Join(in, stem+".mp4")
		fill(t, still, 10, 1)
		fill(t, video, 10, 2)
		pairs = append(pairs, pair.MediaPair{Still: still, Video: video})
	}

	r := newTestRunner(metadatatest.New())
	r.NeedsJPEG = func(p string) (bool, error) {
		if strings.Contains(p, "boom") {
			panic("decoder exploded")
		}
		return false, nil
	}
	rep, err := r.RunMerge(context.Background(), pairs, out)
	if err != nil {
		t.Fatal(err)
	}
	failed := rep.Failed()
	if len(failed) != 1 || !strings.Contains(failed[0].Error, "decoder exploded") {
		t.Fatalf("failed = %+v", failed)
	}
	if failed[0].Input != pairs[0].Still {
		t.Errorf("panic attributed to %s", failed[0].Input)
	}
	if len(rep.Succeeded()) != 1 {
		t.Errorf("other item should succeed")
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	var pairs []pair.MediaPair
	for i := 0; i < 8; i++ {
		stem := string(rune('a' + i))
		still := filepath.Join(in, stem+".jpg")
		video := filepath.Join(in, stem+".mp4")
		fill(t, still, 10, 1)
		fill(t, video, 10, 2)
		pairs = append(pairs, pair.MediaPair{Still: still, Video: video})
	}

	var running, peak int32
	r := newTestRunner(metadatatest.New())
	r.Concurrency = 3
	r.NeedsJPEG = func(string) (bool, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return false, nil
	}

	rep, err := r.RunMerge(context.Background(), pairs, out)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Succeeded()) != 8 {
		t.Errorf("succeeded = %d", len(rep.Succeeded()))
	}
	if peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
}

type recorder struct {
	starts    int
	itemStart int
	completed []int
	finished  *Report
}

func (r *recorder) OnStart(Mode, int)  { r.starts++ }
func (r *recorder) OnItemStart(string) { r.itemStart++ }
func (r *recorder) OnItemDone(_ ItemResult, completed, _ int) {
	r.completed = append(r.completed, completed)
}
func (r *recorder) OnFinish(rep *Report) { r.finished = rep }

func TestObserverSequence(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	var pairs []pair.MediaPair
	for _, stem := range []string{"a", "b", "c", "d"} {
		still := filepath.Join(in, stem+".jpg")
		video := filepath.Join(in, stem+".mp4")
		fill(t, still, 10, 1)
		fill(t, video, 10, 2)
		pairs = append(pairs, pair.MediaPair{Still: still, Video: video})
	}

	rec := &recorder{}
	r := newTestRunner(metadatatest.New())
	r.Observer = Observers{NopObserver{}, rec}
	rep, err := r.RunMerge(context.Background(), pairs, out)
	if err != nil {
		t.Fatal(err)
	}
	if rec.starts != 1 || rec.itemStart != 4 || rec.finished != rep {
		t.Errorf("recorder = %+v", rec)
	}
	for _, it := range rep.Items {
		if it.State != StateSucceeded {
			t.Errorf("%s finished in state %s", it.Input, it.State)
		}
	}
	for i, c := range rec.completed {
		if c != i+1 {
			t.Errorf("completed sequence = %v", rec.completed)
			break
		}
	}
}

func TestRunSplit(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	container := filepath.Join(in, "MVIMG_x.jpg")
	plain := filepath.Join(in, "plain.jpg")
	data := append(bytes.Repeat([]byte{1}, 1000), bytes.Repeat([]byte{2}, 5000)...)
	if err := os.WriteFile(container, data, 0o644); err != nil {
		t.Fatal(err)
	}
	fill(t, plain, 50, 3)

	port := metadatatest.New()
	port.Set(container, 5000)
	rep, err := newTestRunner(port).RunSplit(context.Background(), []string{container, plain}, out)
	if err != nil {
		t.Fatal(err)
	}

	s := rep.Summary()
	if s.Succeeded != 1 || s.Failed != 1 || s.NotMotionPhoto != 1 {
		t.Fatalf("summary = %+v", s)
	}
	img, err := os.ReadFile(filepath.Join(out, "MVIMG_x_01.jpg"))
	if err != nil || !bytes.Equal(img, data[:1000]) {
		t.Errorf("image half wrong: %d bytes, %v", len(img), err)
	}
	vid, err := os.ReadFile(filepath.Join(out, "MVIMG_x_01.mp4"))
	if err != nil || !bytes.Equal(vid, data[1000:]) {
		t.Errorf("video half wrong: %d bytes, %v", len(vid), err)
	}
	if port.Strips != 1 {
		t.Errorf("strips = %d, want 1", port.Strips)
	}
	if _, err := os.Stat(filepath.Join(out, "plain_01.jpg")); !os.IsNotExist(err) {
		t.Error("non motion photo should produce no output")
	}
	assertClean(t, out)
}

func TestRunSplitStripFailure(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	container := filepath.Join(in, "c.jpg")
	fill(t, container, 100, 1)

	port := metadatatest.New()
	port.Set(container, 40)
	port.FailStrip = map[string]bool{filepath.Join(out, "c_01.jpg"): true}
	rep, err := newTestRunner(port).RunSplit(context.Background(), []string{container}, out)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Items[0].Kind != motion.KindExternalTool {
		t.Errorf("kind = %s", rep.Items[0].Kind)
	}
	for _, name := range []string{"c_01.jpg", "c_01.mp4"} {
		if _, err := os.Stat(filepath.Join(out, name)); !os.IsNotExist(err) {
			t.Errorf("%s should be removed", name)
		}
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	still := filepath.Join(in, "d.jpg")
	video := filepath.Join(in, "d.mp4")
	fill(t, still, 10, 1)
	fill(t, video, 10, 2)

	port := metadatatest.New()
	r := newTestRunner(port)
	r.DryRun = true
	rep, err := r.RunMerge(context.Background(), []pair.MediaPair{{Still: still, Video: video}}, out)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.DryRun || len(rep.Succeeded()) != 1 {
		t.Errorf("report = %+v", rep)
	}
	if rep.Items[0].Output != filepath.Join(out, "MVIMG_d.jpg") {
		t.Errorf("planned output = %s", rep.Items[0].Output)
	}
	entries, _ := os.ReadDir(out)
	if len(entries) != 0 {
		t.Errorf("dry run wrote %d entries", len(entries))
	}
	if port.Writes != 0 {
		t.Errorf("dry run tagged %d files", port.Writes)
	}
}

func TestRunSetupErrors(t *testing.T) {
	out := t.TempDir()
	r := newTestRunner(metadatatest.New())

	if _, err := r.RunMerge(context.Background(), nil, out); !errors.Is(err, ErrNoItems) {
		t.Errorf("empty batch err = %v", err)
	}

	lock := flock.New(filepath.Join(out, LockName))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer lock.Unlock()

	_, err = r.RunSplit(context.Background(), []string{"/nonexistent.jpg"}, out)
	if !errors.Is(err, ErrLocked) {
		t.Errorf("locked err = %v", err)
	}
}

func TestRefusesToOverwriteInput(t *testing.T) {
	dir := t.TempDir()
	still := filepath.Join(dir, "s.jpg")
	video := filepath.Join(dir, "s.mp4")
	fill(t, still, 10, 1)
	fill(t, video, 10, 2)

	r := newTestRunner(metadatatest.New())
	r.Prefix = ""
	rep, err := r.RunMerge(context.Background(), []pair.MediaPair{{Still: still, Video: video}}, dir)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Items[0].Kind != motion.KindPrecondition {
		t.Errorf("kind = %s", rep.Items[0].Kind)
	}
	if b, _ := os.ReadFile(still); len(b) != 10 {
		t.Error("input still was modified")
	}
}

func TestUnmatchedAreNotFailures(t *testing.T) {
	rep := newReport(ModeMerge, "/out", nil)
	rep.AddUnmatched("/in/b.mp4", "/in/a.jpg")
	rep.Finalize()
	s := rep.Summary()
	if s.Unmatched != 2 || s.Failed != 0 {
		t.Errorf("summary = %+v", s)
	}
	if rep.Unmatched[0] != "/in/a.jpg" {
		t.Errorf("unmatched not sorted: %v", rep.Unmatched)
	}
}

func TestNewReportStartsPending(t *testing.T) {
	rep := newReport(ModeSplit, "/out", []string{"/in/b.jpg", "/in/a.jpg"})
	if rep.Total != 2 || len(rep.Items) != 2 {
		t.Fatalf("report = %+v", rep)
	}
	for _, it := range rep.Items {
		if it.State != StatePending {
			t.Errorf("%s state = %s, want pending", it.Input, it.State)
		}
	}
	if s := rep.Summary(); s.Succeeded != 0 || s.Failed != 0 {
		t.Errorf("pending items counted: %+v", s)
	}
}

func TestRunSplitRejectsDuplicateOutputs(t *testing.T) {
	d1, d2, out := t.TempDir(), t.TempDir(), t.TempDir()
	first := filepath.Join(d1, "x.jpg")
	second := filepath.Join(d2, "x.jpg")
	third := filepath.Join(d1, "x.jpeg")
	firstData := append(bytes.Repeat([]byte{1}, 100), bytes.Repeat([]byte{2}, 50)...)
	if err := os.WriteFile(first, firstData, 0o644); err != nil {
		t.Fatal(err)
	}
	fill(t, second, 510, 3)
	fill(t, third, 80, 4)

	port := metadatatest.New()
	port.Set(first, 50)
	port.Set(second, 500)
	port.Set(third, 20)
	r := newTestRunner(port)
	r.Concurrency = 3
	rep, err := r.RunSplit(context.Background(), []string{first, second, third}, out)
	if err != nil {
		t.Fatal(err)
	}

	if s := rep.Summary(); s.Succeeded != 1 || s.Failed != 2 {
		t.Fatalf("summary = %+v", s)
	}
	for _, it := range rep.Failed() {
		if it.Kind != motion.KindPrecondition {
			t.Errorf("%s kind = %s, want precondition", it.Input, it.Kind)
		}
		if !strings.Contains(it.Error, it.Input) || !strings.Contains(it.Error, first) {
			t.Errorf("error should name both inputs: %s", it.Error)
		}
	}
	img, err := os.ReadFile(filepath.Join(out, "x_01.jpg"))
	if err != nil || !bytes.Equal(img, firstData[:100]) {
		t.Errorf("image half should come from the first container: %d bytes, %v", len(img), err)
	}
	vid, err := os.ReadFile(filepath.Join(out, "x_01.mp4"))
	if err != nil || !bytes.Equal(vid, firstData[100:]) {
		t.Errorf("video half should come from the first container: %d bytes, %v", len(vid), err)
	}
	assertClean(t, out)
}

func TestRunMergeRejectsDuplicateOutputs(t *testing.T) {
	d1, d2, out := t.TempDir(), t.TempDir(), t.TempDir()
	var pairs []pair.MediaPair
	for _, dir := range []string{d1, d2} {
		still := filepath.Join(dir, "IMG_0001.jpg")
		video := filepath.Join(dir, "IMG_0001.mp4")
		fill(t, still, 10, 1)
		fill(t, video, 10, 2)
		pairs = append(pairs, pair.MediaPair{Still: still, Video: video})
	}

	rep, err := newTestRunner(metadatatest.New()).RunMerge(context.Background(), pairs, out)
	if err != nil {
		t.Fatal(err)
	}
	failed := rep.Failed()
	if len(failed) != 1 || failed[0].Input != pairs[1].Still || failed[0].Kind != motion.KindPrecondition {
		t.Errorf("failed = %+v", failed)
	}
	if len(rep.Succeeded()) != 1 {
		t.Errorf("succeeded = %+v", rep.Succeeded())
	}
}
