package library

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cadenza/pkg/models"

	"github.com/fsnotify/fsnotify"
)

// startWatcher initializes fsnotify for recursive monitoring of every
// configured root.
func (s *Service) startWatcher(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	go s.watchFiles(ctx)

	for _, root := range s.config.Library.Roots {
		folder, err := s.catalog.EnsureFolder(ctx, root)
		if err != nil {
			return err
		}
		if err := s.addDirectoryToWatcher(root, folder.ID); err != nil {
			return err
		}
		s.logger.WithField("folder", root).Info("File watcher started")
	}
	return nil
}

// addDirectoryToWatcher recursively walks and adds subdirectories to the
// watcher, remembering which folder owns them.
func (s *Service) addDirectoryToWatcher(dir string, folderID int64) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			s.foldersMu.Lock()
			s.folders[path] = folderID
			s.foldersMu.Unlock()
			return s.watcher.Add(path)
		}
		return nil
	})
}

// watchFiles selects on watcher channels and dispatches events.
func (s *Service) watchFiles(ctx context.Context) {
	defer s.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleFileEvent(ctx, event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.WithError(err).Error("File watcher error")
		}
	}
}

// handleFileEvent applies filtering and delegates creation/removal actions.
// Background-activity failures are logged, never fatal.
func (s *Service) handleFileEvent(ctx context.Context, event fsnotify.Event) {
	// Ignore temporary files and hidden files
	fileName := filepath.Base(event.Name)
	if strings.HasPrefix(fileName, ".") || strings.HasSuffix(fileName, ".tmp") {
		return
	}

	isAudioFile := s.extractor.IsAudioFile(event.Name)

	switch {
	case event.Has(fsnotify.Create) && isAudioFile,
		event.Has(fsnotify.Write) && isAudioFile:
		// Dispatch ingestion asynchronously, after the writer has finished
		go func(name string) {
			time.Sleep(500 * time.Millisecond)
			s.handleChangedFile(ctx, name)
		}(event.Name)

	case event.Has(fsnotify.Remove) && isAudioFile:
		go s.handleRemovedFile(ctx, event.Name)

	case event.Has(fsnotify.Create):
		// Check if it's a new directory
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			folderID, ok := s.owningFolder(event.Name)
			if !ok {
				return
			}
			s.foldersMu.Lock()
			s.folders[event.Name] = folderID
			s.foldersMu.Unlock()
			s.watcher.Add(event.Name)
			s.logger.WithField("directory", event.Name).Info("Watching new directory")
		}
	}
}

// handleChangedFile ingests a single created or rewritten audio file.
func (s *Service) handleChangedFile(ctx context.Context, filePath string) {
	s.logger.WithField("file_path", filePath).Info("Audio file changed")

	folderID, ok := s.owningFolder(filePath)
	if !ok {
		s.logger.WithField("file_path", filePath).Warn("Changed file outside any watched folder")
		return
	}

	summary, err := s.pipeline.Ingest(ctx, models.Folder{ID: folderID}, []string{filePath})
	if err != nil {
		s.logger.WithError(err).WithField("file_path", filePath).Error("Error ingesting changed file")
		return
	}
	if summary.New+summary.Updated == 0 {
		return
	}

	if s.config.Duplicates.DetectAfterScan {
		if _, err := s.detector.Run(ctx); err != nil {
			s.logger.WithError(err).Error("Error refreshing duplicate annotations")
		}
	}
}

// handleRemovedFile removes track rows referencing deleted audio files.
func (s *Service) handleRemovedFile(ctx context.Context, filePath string) {
	s.logger.WithField("file_path", filePath).Info("Audio file removed")

	if err := s.catalog.RemoveTrackByPath(ctx, filePath); err != nil {
		s.logger.WithError(err).WithField("file_path", filePath).Error("Error removing track")
		return
	}

	s.logger.WithField("file_path", filePath).Info("Removed track from library")
}

// owningFolder resolves a path to the folder id of the deepest watched
// directory containing it.
func (s *Service) owningFolder(path string) (int64, bool) {
	s.foldersMu.RLock()
	defer s.foldersMu.RUnlock()

	dir := filepath.Dir(path)
	for {
		if id, ok := s.folders[dir]; ok {
			return id, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return 0, false
		}
		dir = parent
	}
}
