package models

import "time"

// Playlist is either a regular playlist with stored membership or a smart
// playlist whose membership is computed from Criteria. A playlist is exactly
// one of the two kinds, never both.
type Playlist struct {
	ID         int64                  `json:"id"`
	Name       string                 `json:"name"`
	IsSmart    bool                   `json:"isSmart"`
	Criteria   *SmartPlaylistCriteria `json:"criteria,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
	TrackCount int                    `json:"trackCount"`
}

// PlaylistTrack represents the ordered membership relation for regular playlists.
type PlaylistTrack struct {
	PlaylistID int64     `json:"playlistId"`
	TrackID    int64     `json:"trackId"`
	Position   int       `json:"position"`
	AddedAt    time.Time `json:"addedAt"`
}

// PinnedItemKind discriminates what a pinned item points at.
type PinnedItemKind string

const (
	PinnedFilter   PinnedItemKind = "filter"
	PinnedPlaylist PinnedItemKind = "playlist"
)

// PinnedItem is a user-ordered shortcut to a library filter facet or a
// playlist. Deleting the referenced entity cascades to the pin.
type PinnedItem struct {
	ID          int64          `json:"id"`
	Kind        PinnedItemKind `json:"kind"`
	FilterType  string         `json:"filterType,omitempty"`  // e.g. "artist", "genre"
	FilterValue string         `json:"filterValue,omitempty"` // e.g. the artist id
	PlaylistID  *int64         `json:"playlistId,omitempty"`
	SortOrder   int            `json:"sortOrder"`
}

// BatchSummary reports the outcome of one ingestion batch.
type BatchSummary struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}
