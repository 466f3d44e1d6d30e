package pair

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	StillExtensions     = []string{".jpg", ".jpeg", ".heic", ".heif", ".png"}
	VideoExtensions     = []string{".mov", ".mp4", ".avi", ".mkv", ".flv"}
	ContainerExtensions = []string{".jpg", ".jpeg"}
)

// HasExtension reports whether name ends in one of exts, ignoring case.
func HasExtension(name string, exts []string) bool {
	ext := filepath.Ext(name)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// Discover lists the regular files directly inside dir whose extension is in
// exts. Subdirectories are not descended into and dotfiles are skipped. The
// result is sorted by name.
func Discover(dir string, exts []string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, "*")
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var files []string
	for _, name := range matches {
		if strings.HasPrefix(name, ".") || !HasExtension(name, exts) {
			continue
		}
		fi, err := fs.Stat(fsys, name)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// Filter applies include/exclude keywords to base names the same way for
// every command: excludes win, and an empty include list admits everything.
func Filter(files, keywords, ignoreKeywords []string) []string {
	if len(keywords) == 0 && len(ignoreKeywords) == 0 {
		return files
	}
	var out []string
	for _, f := range files {
		if Admit(filepath.Base(f), keywords, ignoreKeywords) {
			out = append(out, f)
		}
	}
	return out
}

// Admit reports whether name passes the keyword filter. Keywords containing
// glob metacharacters are matched as doublestar patterns against the name.
func Admit(name string, keywords, ignoreKeywords []string) bool {
	lowerName := strings.ToLower(name)
	for _, k := range ignoreKeywords {
		if keywordMatch(lowerName, strings.ToLower(k)) {
			return false
		}
	}
	if len(keywords) == 0 {
		return true
	}
	for _, k := range keywords {
		if keywordMatch(lowerName, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func keywordMatch(name, keyword string) bool {
	if strings.ContainsAny(keyword, "*?[{") {
		ok, err := doublestar.Match(keyword, name)
		return err == nil && ok
	}
	return strings.Contains(name, keyword)
}
