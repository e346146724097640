package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// MaxConcurrency is the upper clamp for a requested level.
const MaxConcurrency = 30

// DefaultLevels is used when no valid level list is supplied.
var DefaultLevels = []int{1, 2, 4, 6, 8}

// ParseLevels turns "1,2,4" or "3" into a level list clamped to [1, max].
// Empty or unparseable input yields a copy of DefaultLevels and false.
func ParseLevels(input string, max int) ([]int, bool) {
	if max < 1 {
		max = MaxConcurrency
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultLevels(), false
	}

	var levels []int
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return defaultLevels(), false
		}
		levels = append(levels, clamp(n, 1, max))
	}
	if len(levels) == 0 {
		return defaultLevels(), false
	}
	return levels, true
}

func defaultLevels() []int {
	return append([]int(nil), DefaultLevels...)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// LoadFiles lists the regular files of dir, sorted by name, with their
// sizes read once.
func LoadFiles(dir string) ([]FileRef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read test dir: %w", err)
	}
	var files []FileRef
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileRef{
			Path: filepath.Join(dir, e.Name()),
			Name: e.Name(),
			Size: info.Size(),
		})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoFiles)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
