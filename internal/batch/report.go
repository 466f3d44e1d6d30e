package batch

import (
	"sort"
	"sync"
	"time"

	"github.com/mt4110/mvimg/internal/motion"
)

type Mode string

const (
	ModeMerge Mode = "merge"
	ModeSplit Mode = "split"
)

// State is where an item is in Pending -> Processing -> Succeeded|Failed.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// ItemResult is the outcome of one pair (merge) or container (split). For a
// merge Companion is the video input; for a split Extra is the video output.
type ItemResult struct {
	Input     string      `json:"input"`
	Companion string      `json:"companion,omitempty"`
	Output    string      `json:"output,omitempty"`
	Extra     string      `json:"extra,omitempty"`
	State     State       `json:"state"`
	Kind      motion.Kind `json:"kind,omitempty"`
	Error     string      `json:"error,omitempty"`
	Err       error       `json:"-"`

	StillSize  uint64        `json:"still_size,omitempty"`
	VideoSize  uint64        `json:"video_size,omitempty"`
	MergedSize uint64        `json:"merged_size,omitempty"`
	Offset     uint64        `json:"offset,omitempty"`
	Duration   time.Duration `json:"duration"`
}

func (r *ItemResult) fail(err error) ItemResult {
	r.State = StateFailed
	r.Err = err
	r.Kind = motion.KindOf(err)
	r.Error = err.Error()
	return *r
}

// Summary holds the counts shown at the end of a batch.
type Summary struct {
	Total          int `json:"total"`
	Succeeded      int `json:"succeeded"`
	Failed         int `json:"failed"`
	NotMotionPhoto int `json:"not_motion_photo"`
	Unmatched      int `json:"unmatched"`
}

// Report is the BatchResult of one run. It is safe for concurrent use while
// the batch is running; read it after the run returns.
type Report struct {
	Mode       Mode      `json:"mode"`
	OutputDir  string    `json:"output_dir"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Total     int          `json:"total"`
	Completed int          `json:"completed"`
	Items     []ItemResult `json:"items"`
	Unmatched []string     `json:"unmatched,omitempty"`

	mu sync.Mutex
}

// newReport lists every input as pending, in submission order.
func newReport(mode Mode, outputDir string, inputs []string) *Report {
	items := make([]ItemResult, len(inputs))
	for i, in := range inputs {
		items[i] = ItemResult{Input: in, State: StatePending}
	}
	return &Report{
		Mode:      mode,
		OutputDir: outputDir,
		StartedAt: time.Now(),
		Total:     len(inputs),
		Items:     items,
	}
}

// set records the final result of item i and returns the completed count.
func (r *Report) set(i int, res ItemResult) int {
	r.Items[i] = res
	r.Completed++
	return r.Completed
}

// AddUnmatched records inputs that had no counterpart. They are informational
// and never counted as failures.
func (r *Report) AddUnmatched(paths ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Unmatched = append(r.Unmatched, paths...)
	sort.Strings(r.Unmatched)
}

// Finalize sorts items by input path and stamps the finish time.
func (r *Report) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now()
	sort.SliceStable(r.Items, func(i, j int) bool { return r.Items[i].Input < r.Items[j].Input })
	sort.Strings(r.Unmatched)
}

func (r *Report) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{Total: r.Total, Unmatched: len(r.Unmatched)}
	for _, it := range r.Items {
		switch it.State {
		case StateSucceeded:
			s.Succeeded++
		case StateFailed:
			s.Failed++
			if it.Kind == motion.KindNotMotionPhoto {
				s.NotMotionPhoto++
			}
		}
	}
	return s
}

func (r *Report) Succeeded() []ItemResult { return r.withState(StateSucceeded) }

func (r *Report) Failed() []ItemResult { return r.withState(StateFailed) }

func (r *Report) withState(st State) []ItemResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ItemResult
	for _, it := range r.Items {
		if it.State == st {
			out = append(out, it)
		}
	}
	return out
}

// Elapsed is the wall time of the run.
func (r *Report) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
