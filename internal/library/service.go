package library

import (
	"context"
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"cadenza/internal/cache"
	"cadenza/internal/catalog"
	"cadenza/internal/config"
	"cadenza/internal/dupes"
	"cadenza/internal/ingest"
	"cadenza/internal/metadata"
	"cadenza/internal/search"
	"cadenza/internal/smartplaylist"
	"cadenza/internal/store"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Service wires the storage, ingestion, duplicate and query components
// behind one startup path.
type Service struct {
	config    *config.Config
	store     *store.Store
	catalog   *catalog.Catalog
	extractor *metadata.Extractor
	pipeline  *ingest.Pipeline
	detector  *dupes.Detector
	compiler  *smartplaylist.Compiler
	searcher  *search.Searcher
	logger    *logrus.Logger

	watcher   *fsnotify.Watcher
	foldersMu sync.RWMutex
	folders   map[string]int64 // watched directory -> owning folder id
}

// New opens the database, runs migrations and assembles the engine. A
// migration failure is returned as-is; callers must treat it as fatal.
func New(cfg *config.Config, logger *logrus.Logger) (*Service, error) {
	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}

	cat := catalog.New(st, logger)
	extractor := metadata.NewExtractor(
		cfg.Library.SupportedFormats, logger, cache.NewArtworkCache(30*time.Minute))
	pipeline := ingest.New(cat, extractor, logger, ingest.Config{
		MinWorkers: cfg.Ingest.MinWorkers,
		MaxWorkers: cfg.Ingest.MaxWorkers,
	})

	return &Service{
		config:    cfg,
		store:     st,
		catalog:   cat,
		extractor: extractor,
		pipeline:  pipeline,
		detector:  dupes.New(cat, logger),
		compiler:  smartplaylist.New(cat, logger),
		searcher:  search.New(cat, logger),
		logger:    logger,
		folders:   make(map[string]int64),
	}, nil
}

// Catalog exposes catalog reads and edits.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// SmartPlaylists exposes the smart playlist compiler.
func (s *Service) SmartPlaylists() *smartplaylist.Compiler { return s.compiler }

// Searcher exposes full-text search.
func (s *Service) Searcher() *search.Searcher { return s.searcher }

// Detector exposes the duplicate detector for on-demand runs.
func (s *Service) Detector() *dupes.Detector { return s.detector }

// Start performs the configured startup work: a scan of changed folders and,
// if enabled, filesystem watching.
func (s *Service) Start(ctx context.Context) error {
	if s.config.Library.ScanOnStartup {
		if err := s.ScanAll(ctx); err != nil {
			return err
		}
	}
	if s.config.Library.WatchForChanges {
		if err := s.startWatcher(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ScanAll ingests every configured root, skipping roots whose content hash
// is unchanged since the last scan, then reruns duplicate detection if any
// root changed.
func (s *Service) ScanAll(ctx context.Context) error {
	changed := false
	for _, root := range s.config.Library.Roots {
		folderChanged, err := s.scanRoot(ctx, root)
		if err != nil {
			return err
		}
		changed = changed || folderChanged
	}

	if changed && s.config.Duplicates.DetectAfterScan {
		if _, err := s.detector.Run(ctx); err != nil {
			return fmt.Errorf("failed to detect duplicates after scan: %w", err)
		}
	}
	return nil
}

func (s *Service) scanRoot(ctx context.Context, root string) (bool, error) {
	folder, err := s.catalog.EnsureFolder(ctx, root)
	if err != nil {
		return false, err
	}

	paths, err := s.pipeline.Discover(root)
	if err != nil {
		return false, err
	}

	hash, err := contentHash(root, paths)
	if err != nil {
		return false, err
	}
	if hash == folder.ContentHash {
		s.logger.WithField("folder", root).Info("Folder unchanged, skipping scan")
		return false, nil
	}

	summary, err := s.pipeline.Scan(ctx, folder, paths)
	if err != nil {
		return false, err
	}
	if err := s.catalog.MarkFolderScanned(ctx, folder.ID, hash); err != nil {
		return false, err
	}

	s.logger.WithFields(logrus.Fields{
		"folder":  root,
		"new":     summary.New,
		"updated": summary.Updated,
		"skipped": summary.Skipped,
		"failed":  summary.Failed,
	}).Info("Folder scan complete")

	return summary.New+summary.Updated > 0, nil
}

// Close stops background work and closes the database.
func (s *Service) Close() error {
	if s.watcher != nil {
		s.watcher.Close()
	}
	return s.store.Close()
}

// contentHash fingerprints a folder's audio files so unchanged roots can be
// skipped on rescan. It hashes the sorted (path, size, mtime) triples; any
// file added, removed, touched or resized changes the digest.
func contentHash(root string, paths []string) (string, error) {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	h := sha1.New()
	for _, path := range sorted {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		info, err := os.Stat(path)
		if err != nil {
			// A file vanishing mid-listing just changes the digest.
			fmt.Fprintf(h, "%s\x00gone\n", rel)
			continue
		}
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", rel, info.Size(), info.ModTime().UnixNano())
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
