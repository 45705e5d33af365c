// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// progressEvery is how often Normalize logs its position.
const progressEvery = 50

// NormalizeFile rewrites one index file with its dependency sets in
// canonical order and blank lines removed. The whole output is built before
// anything is written, and the write goes through a temp file, so a parse
// failure leaves the original untouched.
func NormalizeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	recs, err := ParseRecords(bytes.NewReader(data))
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
			return pe
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	for i := range recs {
		SortDeps(recs[i].Deps)
	}

	body, err := EncodeRecords(recs)
	if err != nil {
		return fmt.Errorf("normalizing %s: %w", path, err)
	}
	if bytes.Equal(body, data) {
		return nil
	}
	return WriteFile(path, body)
}

// Normalize runs NormalizeFile over files in order and stops at the first
// failure: a malformed index is not something to paper over.
func Normalize(files []string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for i, file := range files {
		if i%progressEvery == 0 {
			logger.Info("normalizing index files",
				zap.Int("num_files", len(files)),
				zap.Int("i", i),
				zap.String("file", file))
		}
		if err := NormalizeFile(file); err != nil {
			return err
		}
	}
	logger.Info("normalized index files", zap.Int("num_files", len(files)))
	return nil
}

// WriteFile replaces path with data atomically, creating parent
// directories as needed.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".normalize-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", path, writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting mode on %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
