package parser

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sessionparse/internal/ignore"
	"github.com/fyrsmithlabs/sessionparse/pkg/session"
)

// LogExtension is the extension of conversation log files, matched without
// regard to case.
const LogExtension = ".jsonl"

// Discover returns every conversation log under root, sorted. Paths excluded
// by root's .sessionignore are skipped, as are subdirectories that cannot be
// read.
func Discover(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Kind: KindFileNotFound, Path: root, Err: err}
		}
		return nil, &Error{Kind: KindDirectoryTraversal, Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &Error{Kind: KindFileNotFound, Path: root, Err: fmt.Errorf("%s is not a directory", root)}
	}

	matcher, err := ignore.Load(root)
	if err != nil {
		return nil, &Error{Kind: KindDirectoryTraversal, Path: root, Err: err}
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if matcher.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), LogExtension) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, &Error{Kind: KindDirectoryTraversal, Path: root, Err: err}
	}

	sort.Strings(paths)
	return paths, nil
}

// ParseDirectory discovers the logs under dir and parses them with
// ParseFiles.
func (b *Batch) ParseDirectory(ctx context.Context, dir string) ([]*session.Session, error) {
	paths, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("discovered session files", zap.String("dir", dir), zap.Int("files", len(paths)))
	return b.ParseFiles(ctx, paths)
}

// ParseDirectoryWithReport discovers the logs under dir and parses them with
// ParseFilesWithReport. Only a discovery failure is returned as an error.
func (b *Batch) ParseDirectoryWithReport(ctx context.Context, dir string) (*BatchParsingResult, error) {
	paths, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("discovered session files", zap.String("dir", dir), zap.Int("files", len(paths)))
	return b.ParseFilesWithReport(ctx, paths), nil
}
