package cmd

import (
	"strings"
	"testing"

	"github.com/mt4110/mvimg/internal/batch"
)

func TestReadStats(t *testing.T) {
	logText := strings.Join([]string{
		`2026/10/01 10:00:00 runner.go:420: ✅ 完了: a.jpg -> /out/MVIMG_a.jpg`,
		`2026/10/01 10:00:00 runner.go:440: {"type":"merge_result","input":"/in/a.jpg","state":"succeeded","merged_size":6000,"duration_sec":1.5}`,
		`2026/10/01 10:00:01 runner.go:440: {"type":"merge_result","input":"/in/b.jpg","state":"failed","kind":"not_found","duration_sec":0.5}`,
		`2026/10/01 10:00:02 runner.go:440: {"type":"split_result","input":"/in/c.jpg","state":"failed","kind":"not_a_motion_photo"}`,
		`2026/10/01 10:00:03 runner.go:440: {"type":"conversion_result","input":"/in/d.mov"}`,
		`2026/10/01 10:00:04 runner.go:440: {not json`,
	}, "\n")

	stats, err := readStats(strings.NewReader(logText))
	if err != nil {
		t.Fatal(err)
	}

	m := stats[batch.ModeMerge]
	if m.Count != 2 || m.Succeeded != 1 || m.Failed != 1 || m.Bytes != 6000 || m.Duration != 2.0 {
		t.Errorf("merge stats = %+v", m)
	}
	if m.Kinds["not_found"] != 1 {
		t.Errorf("merge kinds = %v", m.Kinds)
	}
	s := stats[batch.ModeSplit]
	if s.Count != 1 || s.Failed != 1 || s.Kinds["not_a_motion_photo"] != 1 {
		t.Errorf("split stats = %+v", s)
	}

	out := renderStats(stats)
	for _, want := range []string{"merge", "split", "5.9 KiB", "not_a_motion_photo"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered stats missing %q:\n%s", want, out)
		}
	}
}

func TestCollectContainers(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.jpg", "b.JPEG", "c.png", "d.mp4"} {
		writeEmpty(t, dir, name)
	}
	got, err := collectContainers([]string{dir, dir + "/a.jpg", dir + "/c.png"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("containers = %v", got)
	}
	if !strings.HasSuffix(got[0], "a.jpg") || !strings.HasSuffix(got[1], "b.JPEG") {
		t.Errorf("containers = %v", got)
	}

	if _, err := collectContainers([]string{dir + "/missing"}); err == nil {
		t.Error("missing input should be an error")
	}
}
