// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package index reads, normalizes, and writes the line-oriented index tree:
// one file per crate, one JSON record per published version.
package index

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// ConfigFile is the registry configuration file at the root of the index.
// It is not a crate file and is never walked.
const ConfigFile = "config.json"

// SkipFunc reports whether a directory entry with the given base name should
// be left out of a walk. A skipped directory is not descended into.
type SkipFunc func(name string) bool

// DefaultSkip excludes hidden entries (".git", editor temp files, our own
// ".normalize-*" temp files) and the registry config file at any depth.
func DefaultSkip(name string) bool {
	return strings.HasPrefix(name, ".") || name == ConfigFile
}

// Walk returns the regular files under root, depth first, with the entries
// of each directory visited in lexical order. Entries matched by skip are
// excluded; the root itself is never tested. Any read error aborts the walk.
func Walk(root string, skip SkipFunc) ([]string, error) {
	if skip == nil {
		skip = DefaultSkip
	}
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if path == root {
			return nil
		}
		if skip(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking index tree %s: %w", root, err)
	}
	return files, nil
}
