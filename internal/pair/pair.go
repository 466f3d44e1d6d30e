package pair

import (
	"path/filepath"
	"runtime"
	"strings"
)

// MediaPair is a still image and the video that shares its filename stem.
type MediaPair struct {
	Still string
	Video string
}

// Stem returns the base name of path without its final extension.
func (p MediaPair) Stem() string { return Stem(p.Still) }

// Stem returns the base name of path without its final extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// StemPolicy decides whether stems are compared case-sensitively.
type StemPolicy string

const (
	PolicyAuto        StemPolicy = "auto"
	PolicySensitive   StemPolicy = "sensitive"
	PolicyInsensitive StemPolicy = "insensitive"
)

// ParsePolicy accepts the config spelling of a policy. Empty means auto.
func ParsePolicy(s string) (StemPolicy, bool) {
	switch StemPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyAuto:
		return PolicyAuto, true
	case PolicySensitive:
		return PolicySensitive, true
	case PolicyInsensitive:
		return PolicyInsensitive, true
	}
	return "", false
}

// Resolve maps auto onto the host filesystem's usual behaviour.
func (p StemPolicy) Resolve() StemPolicy {
	if p != PolicyAuto && p != "" {
		return p
	}
	switch runtime.GOOS {
	case "darwin", "windows":
		return PolicyInsensitive
	default:
		return PolicySensitive
	}
}

// Key returns the join key for stem under the resolved policy.
func (p StemPolicy) Key(stem string) string {
	if p.Resolve() == PolicyInsensitive {
		return strings.ToLower(stem)
	}
	return stem
}

// MatchResult is the outcome of pairing stills with videos.
type MatchResult struct {
	Pairs           []MediaPair
	UnmatchedStills []string
	UnmatchedVideos []string
}

// Unmatched returns all inputs that did not end up in a pair, stills first.
func (r MatchResult) Unmatched() []string {
	out := make([]string, 0, len(r.UnmatchedStills)+len(r.UnmatchedVideos))
	out = append(out, r.UnmatchedStills...)
	return append(out, r.UnmatchedVideos...)
}

// Matcher pairs stills and videos by stem under a single policy.
type Matcher struct {
	Policy StemPolicy
}

// NewMatcher returns a Matcher whose policy is already resolved.
func NewMatcher(policy StemPolicy) *Matcher {
	return &Matcher{Policy: policy.Resolve()}
}

// Match pairs each still with the first video sharing its stem. For a stem
// with several stills or videos, the first of each in input order is used and
// the rest are reported unmatched. Pairs are ordered by the still's position
// in stills, so identical inputs always give identical output.
func (m *Matcher) Match(stills, videos []string) MatchResult {
	policy := m.Policy.Resolve()

	firstVideo := make(map[string]int, len(videos))
	for i, v := range videos {
		key := policy.Key(Stem(v))
		if _, ok := firstVideo[key]; !ok {
			firstVideo[key] = i
		}
	}

	var res MatchResult
	usedVideo := make(map[int]bool, len(videos))
	seenStill := make(map[string]bool, len(stills))
	for _, s := range stills {
		key := policy.Key(Stem(s))
		vi, ok := firstVideo[key]
		if !ok || seenStill[key] {
			res.UnmatchedStills = append(res.UnmatchedStills, s)
			continue
		}
		seenStill[key] = true
		usedVideo[vi] = true
		res.Pairs = append(res.Pairs, MediaPair{Still: s, Video: videos[vi]})
	}

	for i, v := range videos {
		if !usedVideo[i] {
			res.UnmatchedVideos = append(res.UnmatchedVideos, v)
		}
	}
	return res
}
