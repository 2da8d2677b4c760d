package kif

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func isKIF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".kif")
}

// CollectKIF returns every .kif file under root, sorted.
func CollectKIF(root string) ([]string, error) {
	var files []string
	if err := WalkKIF(root, func(path string) error {
		files = append(files, path)
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// WalkKIF calls fn for each .kif file under root in lexical order without
// building the full list. fn may return filepath.SkipAll to stop early.
func WalkKIF(root string, fn func(path string) error) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isKIF(path) {
			return nil
		}
		return fn(path)
	})
	if errors.Is(err, fs.SkipAll) {
		return nil
	}
	return err
}

// CountKIF counts the .kif files under root.
func CountKIF(root string) (int, error) {
	n := 0
	err := WalkKIF(root, func(string) error {
		n++
		return nil
	})
	return n, err
}
