package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mt4110/mvimg/internal/batch"
	"github.com/mt4110/mvimg/internal/motion"
)

func sampleReport() *batch.Report {
	r := &batch.Report{
		Mode:      batch.ModeMerge,
		StartedAt: time.Now().Add(-2 * time.Second),
		Total:     2,
		Completed: 2,
		Items: []batch.ItemResult{
			{
				Input: "/in/IMG_0001.jpg", Output: "/out/MVIMG_IMG_0001.jpg", State: batch.StateSucceeded,
				StillSize: 1000, VideoSize: 5000, MergedSize: 6000, Offset: 5000, Duration: 1500 * time.Millisecond,
			},
			{
				Input: "/in/IMG_0002.jpg", Output: "/out/MVIMG_IMG_0002.jpg", State: batch.StateFailed,
				Kind: motion.KindNotFound, Error: "open /in/IMG_0002.mp4: no such file", Err: errors.New("x"),
			},
		},
	}
	r.AddUnmatched("/in/IMG_0003.mov")
	r.Finalize()
	return r
}

func TestRenderSummary(t *testing.T) {
	out := RenderSummary(sampleReport())
	for _, want := range []string{
		"IMG_0001.jpg",
		"MVIMG_IMG_0001.jpg",
		"1000 B",
		"5,000",
		"not_found",
		"合計 2 / 成功 1 / 失敗 1",
		"open /in/IMG_0002.mp4: no such file",
		"/in/IMG_0003.mov",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestNewPicksLinesForPipes(t *testing.T) {
	var buf bytes.Buffer
	if _, ok := New(&buf).(Lines); !ok {
		t.Errorf("non-terminal writer should get line output")
	}
	if IsTerminal(&buf) {
		t.Error("buffer is not a terminal")
	}
}

func TestBarLifecycle(t *testing.T) {
	var buf bytes.Buffer
	b := NewBar(&buf)
	b.OnStart(batch.ModeSplit, 2)
	b.OnItemStart("/in/a.jpg")
	b.OnItemDone(batch.ItemResult{State: batch.StateSucceeded}, 1, 2)
	b.OnItemDone(batch.ItemResult{State: batch.StateFailed}, 2, 2)
	b.OnFinish(sampleReport())
	if buf.Len() == 0 {
		t.Error("bar rendered nothing")
	}
}
