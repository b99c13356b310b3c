package engine

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// tempPrefix marks in-progress outputs; they are hidden and never committed
// under this name.
const tempPrefix = ".docshrink-"

// CleanupTemps removes in-progress outputs in dir older than maxAge, left
// behind by a crashed run. It returns how many files were removed.
func CleanupTemps(dir string, maxAge time.Duration) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) >= maxAge {
			if os.Remove(filepath.Join(dir, e.Name())) == nil {
				removed++
			}
		}
	}
	return removed
}

// newTemp creates an empty in-progress file next to the final output.
func newTemp(dir, ext string) (string, error) {
	f, err := os.CreateTemp(dir, tempPrefix+"*"+ext)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}
