package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cadenza/internal/catalog"
	"cadenza/pkg/models"

	"github.com/sirupsen/logrus"
)

// ErrSuperseded is returned when a newer query replaced this one before it
// finished. Callers driving as-you-type search should discard the result and
// keep the newer one.
var ErrSuperseded = errors.New("search superseded by a newer query")

// Searcher runs full-text queries against the track index. Only the newest
// in-flight query survives; older ones are cancelled.
type Searcher struct {
	catalog *catalog.Catalog
	logger  *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a searcher over the given catalog.
func New(cat *catalog.Catalog, logger *logrus.Logger) *Searcher {
	return &Searcher{catalog: cat, logger: logger}
}

// Search matches the query against title, artist, album, genre and composer,
// ranked by relevance. An empty or whitespace query returns no tracks.
func (s *Searcher) Search(ctx context.Context, query string, cfg models.QueryConfig) ([]models.Track, error) {
	match := buildMatchExpression(query)
	if match == "" {
		return nil, nil
	}

	ctx, cancel := s.begin(ctx)
	defer cancel()

	where := "track_search MATCH ?"
	if cfg.HideDuplicates {
		where += " AND NOT t.is_duplicate"
	}

	var tracks []models.Track
	err := s.catalog.Store().Read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT `+catalog.TrackColumns+`
			FROM track_search
			JOIN tracks t ON t.id = track_search.rowid
			WHERE `+where+`
			ORDER BY bm25(track_search)`, match)
		if err != nil {
			return fmt.Errorf("failed to run search query %q: %w", query, err)
		}
		defer rows.Close()

		tracks, err = catalog.ScanTrackRows(rows)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrSuperseded
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"query":   query,
		"results": len(tracks),
	}).Debug("Search complete")

	return tracks, nil
}

// begin registers a query as the newest in flight, cancelling whichever one
// held that slot before.
func (s *Searcher) begin(ctx context.Context) (context.Context, context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return ctx, cancel
}

// Rebuild repopulates the index from the tracks table. Needed after restoring
// a database file written without the index triggers.
func (s *Searcher) Rebuild(ctx context.Context) error {
	return s.catalog.Store().Write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			"INSERT INTO track_search(track_search) VALUES ('rebuild')"); err != nil {
			return fmt.Errorf("failed to rebuild search index: %w", err)
		}
		return nil
	})
}

// buildMatchExpression turns free text into an FTS5 match expression. Every
// token becomes a quoted phrase-prefix term: quoting keeps user input from
// injecting FTS syntax, and the trailing * makes partially typed words
// match. For ASCII tokens the stemmer makes this behave like stemmed-prefix
// search; for accented or CJK tokens the phrase-prefix approximates
// substring search without requiring a trailing word boundary. Tokens
// combine with AND.
func buildMatchExpression(query string) string {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return ""
	}

	parts := make([]string, 0, len(tokens))
	for _, token := range tokens {
		escaped := strings.ReplaceAll(token, `"`, `""`)
		parts = append(parts, `"`+escaped+`"*`)
	}
	return strings.Join(parts, " AND ")
}
