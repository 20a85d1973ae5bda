package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// IngestDirectory walks root, uploading every file with an allowed extension.
// Per-file failures are recorded in the results and do not stop the walk.
func (i *Ingestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]Result, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []Result
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, Result{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil // continue walking
		}
		if skipHidden && path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !i.allowed(path) {
			return nil
		}
		stats.Matched++

		res, err := i.IngestPath(ctx, path)
		if err != nil {
			res.Err = err.Error()
			results = append(results, res)
			stats.Failed++
			return nil
		}
		results = append(results, res)
		if res.Duplicate {
			stats.Duplicates++
		} else {
			stats.Succeeded++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	i.logger.Info("ingest.directory.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"duplicates", stats.Duplicates,
		"failed", stats.Failed,
	)
	return results, stats, nil
}
