package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"cadenza/internal/catalog"
	"cadenza/internal/metadata"
	"cadenza/pkg/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config bounds the extraction worker pool.
type Config struct {
	MinWorkers int
	MaxWorkers int
}

// Pipeline ingests audio files into the catalog: it classifies candidates
// against the stored state, extracts metadata concurrently, and commits the
// whole batch in one write transaction.
type Pipeline struct {
	catalog   *catalog.Catalog
	extractor *metadata.Extractor
	logger    *logrus.Logger
	config    Config
}

// candidate is one on-disk file considered for ingestion.
type candidate struct {
	path       string
	modifiedAt int64
	fileSize   int64
	update     bool
}

// extracted pairs a candidate with its metadata record.
type extracted struct {
	candidate
	meta models.TrackMetadata
}

// New creates an ingestion pipeline.
func New(cat *catalog.Catalog, extractor *metadata.Extractor, logger *logrus.Logger, config Config) *Pipeline {
	if config.MinWorkers <= 0 {
		config.MinWorkers = 4
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 16
	}
	if config.MaxWorkers < config.MinWorkers {
		config.MaxWorkers = config.MinWorkers
	}
	return &Pipeline{
		catalog:   cat,
		extractor: extractor,
		logger:    logger,
		config:    config,
	}
}

// Discover walks a folder root and returns the paths of all supported audio
// files under it.
func (p *Pipeline) Discover(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			p.logger.WithFields(logrus.Fields{
				"path":  path,
				"error": err.Error(),
			}).Warn("Skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && p.extractor.IsAudioFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk folder %s: %w", root, err)
	}
	return paths, nil
}

// Scan ingests the complete file listing of a scan folder. Stored tracks
// whose files are gone from the listing are removed.
func (p *Pipeline) Scan(ctx context.Context, folder models.Folder, paths []string) (models.BatchSummary, error) {
	return p.run(ctx, folder, paths, true)
}

// Ingest processes a partial set of files for a folder, e.g. from filesystem
// events. Unlike Scan it never removes tracks absent from the given paths.
func (p *Pipeline) Ingest(ctx context.Context, folder models.Folder, paths []string) (models.BatchSummary, error) {
	return p.run(ctx, folder, paths, false)
}

// run classifies candidates against stored state, extracts concurrently and
// commits in one write transaction. Files already stored with the same or an
// earlier modification time are skipped unless artwork has become available
// for them. The returned summary counts every candidate exactly once.
func (p *Pipeline) run(ctx context.Context, folder models.Folder, paths []string, prune bool) (models.BatchSummary, error) {
	var summary models.BatchSummary

	known, err := p.knownFiles(ctx, folder.ID)
	if err != nil {
		return summary, err
	}

	folderArt := p.folderArtwork(paths)

	var (
		candidates []candidate
		onDisk     = make(map[string]bool, len(paths))
	)
	for _, path := range paths {
		onDisk[path] = true

		info, err := os.Stat(path)
		if err != nil {
			p.logger.WithFields(logrus.Fields{
				"path":  path,
				"error": err.Error(),
			}).Warn("Failed to stat candidate file")
			summary.Failed++
			continue
		}

		cand := candidate{
			path:       path,
			modifiedAt: info.ModTime().UnixNano(),
			fileSize:   info.Size(),
		}

		state, exists := known[path]
		switch {
		case !exists:
		case cand.modifiedAt > state.modifiedAt:
			cand.update = true
		case state.artworkID == "" && folderArt[filepath.Dir(path)] != nil:
			// Unchanged file, but a cover image has appeared next to it.
			cand.update = true
		default:
			summary.Skipped++
			continue
		}
		candidates = append(candidates, cand)
	}

	results, failed := p.extractAll(ctx, candidates, folderArt)
	summary.Failed += failed

	var removed []string
	if prune {
		for path := range known {
			if !onDisk[path] {
				removed = append(removed, path)
			}
		}
	}

	if err := p.commit(ctx, folder.ID, results, removed, &summary); err != nil {
		return summary, err
	}

	p.logger.WithFields(logrus.Fields{
		"folder":  folder.Path,
		"new":     summary.New,
		"updated": summary.Updated,
		"skipped": summary.Skipped,
		"failed":  summary.Failed,
		"removed": len(removed),
	}).Info("Ingestion batch complete")

	return summary, nil
}

// fileState is the stored identity of one track used for classification.
type fileState struct {
	modifiedAt int64
	artworkID  string
}

func (p *Pipeline) knownFiles(ctx context.Context, folderID int64) (map[string]fileState, error) {
	known := make(map[string]fileState)
	err := p.catalog.Store().Read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(
			"SELECT file_path, modified_at, artwork_id FROM tracks WHERE folder_id = ?", folderID)
		if err != nil {
			return fmt.Errorf("failed to load stored files for folder %d: %w", folderID, err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				path  string
				state fileState
			)
			if err := rows.Scan(&path, &state.modifiedAt, &state.artworkID); err != nil {
				return fmt.Errorf("failed to scan stored file: %w", err)
			}
			known[path] = state
		}
		return rows.Err()
	})
	return known, err
}

// folderArtwork loads at most one cover blob per directory seen among the
// candidates.
func (p *Pipeline) folderArtwork(paths []string) map[string][]byte {
	art := make(map[string][]byte)
	for _, path := range paths {
		dir := filepath.Dir(path)
		if _, seen := art[dir]; seen {
			continue
		}
		art[dir] = p.extractor.FindFolderArtwork(dir)
	}
	return art
}

// extractAll runs metadata extraction across a bounded worker pool. A failed
// file is logged and counted; it never aborts the batch.
func (p *Pipeline) extractAll(ctx context.Context, candidates []candidate, folderArt map[string][]byte) ([]extracted, int) {
	workers := runtime.NumCPU()
	if workers < p.config.MinWorkers {
		workers = p.config.MinWorkers
	}
	if workers > p.config.MaxWorkers {
		workers = p.config.MaxWorkers
	}

	var (
		mu      sync.Mutex
		results []extracted
		failed  int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, cand := range candidates {
		cand := cand
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			meta, err := p.extractor.Extract(cand.path)
			if err != nil {
				p.logger.WithFields(logrus.Fields{
					"path":  cand.path,
					"error": err.Error(),
				}).Warn("Failed to extract metadata")
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			if meta.Artwork == nil {
				meta.Artwork = folderArt[filepath.Dir(cand.path)]
			}

			mu.Lock()
			results = append(results, extracted{candidate: cand, meta: meta})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Context cancellation. Whatever was extracted before the cancel is
		// still committed; the remainder counts as failed.
		failed = len(candidates) - len(results)
	}

	return results, failed
}

// commit writes the whole batch in a single transaction so a crash mid-batch
// never leaves half an ingestion visible.
func (p *Pipeline) commit(ctx context.Context, folderID int64, results []extracted, removed []string, summary *models.BatchSummary) error {
	if len(results) == 0 && len(removed) == 0 {
		return nil
	}

	return p.catalog.Store().Write(ctx, func(tx *sql.Tx) error {
		for _, r := range results {
			artworkID := ""
			if len(r.meta.Artwork) > 0 {
				artworkID = p.extractor.CacheArtwork(r.meta.Artwork)
			}

			_, created, err := catalog.SaveTrack(tx, folderID, r.path, r.modifiedAt, r.fileSize, r.meta, artworkID)
			if err != nil {
				return fmt.Errorf("failed to save track %s: %w", r.path, err)
			}
			if created {
				summary.New++
			} else {
				summary.Updated++
			}
		}

		for _, path := range removed {
			if err := catalog.DeleteTrackByPath(tx, path); err != nil {
				return err
			}
		}

		if err := catalog.CleanupOrphans(tx); err != nil {
			return err
		}
		return catalog.RefreshStats(tx)
	})
}
