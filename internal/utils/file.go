package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/menta2k/page-rectifier/pkg/failure"
	"github.com/menta2k/page-rectifier/pkg/types"
)

// DefaultImageExtensions are the source extensions picked up by discovery.
var DefaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".tif", ".tiff", ".bmp", ".webp"}

// EnsureDir creates a directory if it doesn't exist. An existing path that
// is not a directory is a Configuration failure.
func EnsureDir(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return failure.New(failure.Configuration, "create directory", err)
		}
		return nil
	}
	if err != nil {
		return failure.New(failure.Configuration, "stat directory", err)
	}
	if !info.IsDir() {
		return failure.Newf(failure.Configuration, "create directory", "%s exists and is not a directory", dir)
	}
	return nil
}

// IsImageFile checks if a file has one of the given extensions, ignoring
// case. Extensions carry their leading dot.
func IsImageFile(filename string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// ListImageFiles lists the image files directly inside dir, sorted by name.
// Subdirectories are not descended into. A missing or unreadable dir is a
// Configuration failure.
func ListImageFiles(dir string, extensions []string) ([]string, error) {
	if len(extensions) == 0 {
		extensions = DefaultImageExtensions
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, failure.New(failure.Configuration, "list images", err)
	}
	if !info.IsDir() {
		return nil, failure.Newf(failure.Configuration, "list images", "%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, failure.New(failure.Configuration, "list images", err)
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsImageFile(e.Name(), extensions) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// PageOutputPath returns <outputDir>/<base><side suffix>.<format> for the
// source file.
func PageOutputPath(outputDir, source string, side types.PageSide, format string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	if format == "" {
		format = "png"
	}
	return filepath.Join(outputDir, fmt.Sprintf("%s%s.%s", base, side.Suffix(), strings.ToLower(format)))
}

// SelectIndices returns the files at the given 0-based indices, in the order
// given and without duplicates, plus the indices that were out of range.
func SelectIndices(files []string, indices []int) ([]string, []int) {
	var selected []string
	var skipped []int
	var seen []int
	for _, i := range indices {
		if i < 0 || i >= len(files) {
			skipped = append(skipped, i)
			continue
		}
		if slices.Contains(seen, i) {
			continue
		}
		seen = append(seen, i)
		selected = append(selected, files[i])
	}
	return selected, skipped
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
