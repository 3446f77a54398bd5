package models

import "time"

// Track represents a single audio file in the catalog. Exactly one track
// exists per distinct file path; tracks are created and updated by the
// ingestion pipeline only.
type Track struct {
	ID          int64  `json:"id"`
	FilePath    string `json:"-"` // don't expose file path to client
	FolderID    int64  `json:"folderId"`
	AlbumID     *int64 `json:"albumId,omitempty"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	AlbumArtist string `json:"albumArtist,omitempty"`
	Album       string `json:"album"`
	Genre       string `json:"genre,omitempty"`
	Composer    string `json:"composer,omitempty"`
	TrackNumber int    `json:"trackNumber"`
	DiscNumber  int    `json:"discNumber"`
	Year        string `json:"year,omitempty"` // fixed-width year string, e.g. "1997"

	Duration   float64 `json:"duration"` // in seconds
	Bitrate    int     `json:"bitrate"`  // kbps
	SampleRate int     `json:"sampleRate"`
	BitDepth   int     `json:"bitDepth"`
	Channels   int     `json:"channels"`
	Lossless   bool    `json:"lossless"`
	FileSize   int64   `json:"fileSize"`
	ModifiedAt int64   `json:"-"` // file mtime, unix nanoseconds

	PlayCount    int        `json:"playCount"`
	LastPlayedAt *time.Time `json:"lastPlayedAt,omitempty"`
	DateAdded    time.Time  `json:"dateAdded"`
	IsFavorite   bool       `json:"isFavorite"`

	// Duplicate-group annotations maintained by the duplicate detector.
	// PrimaryTrackID is set if and only if IsDuplicate is true.
	IsDuplicate      bool   `json:"isDuplicate"`
	PrimaryTrackID   *int64 `json:"primaryTrackId,omitempty"`
	DuplicateGroupID string `json:"duplicateGroupId,omitempty"`

	ArtworkID string `json:"artworkId,omitempty"` // content hash for cached artwork

	// Extended tag fields.
	ISRC      string `json:"isrc,omitempty"`
	Label     string `json:"label,omitempty"`
	Conductor string `json:"conductor,omitempty"`
	Producer  string `json:"producer,omitempty"`
}

// Album groups tracks that share a release. NormalizedTitle is the
// case/diacritic-folded form used for fuzzy matching during resolution.
type Album struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	NormalizedTitle string `json:"-"`
	Year            string `json:"year,omitempty"`
	ArtistID        *int64 `json:"artistId,omitempty"` // optional primary artist
	HasArtwork      bool   `json:"hasArtwork"`
	TrackCount      int    `json:"trackCount"`
}

// Artist is a distinct performing credit. NormalizedName unifies naming
// variants across tag formats ("Tiësto" vs "Tiesto", "Beatles, The" vs
// "The Beatles").
type Artist struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	NormalizedName string `json:"-"`
	HasArtwork     bool   `json:"hasArtwork"`
	TrackCount     int    `json:"trackCount"`
}

// ArtistRole tags a TrackArtist junction row with the credit it represents.
type ArtistRole string

const (
	RoleArtist      ArtistRole = "artist"
	RoleAlbumArtist ArtistRole = "album_artist"
	RoleComposer    ArtistRole = "composer"
)

// TrackArtist links a track to an artist with a role and ordinal position.
type TrackArtist struct {
	TrackID  int64      `json:"trackId"`
	ArtistID int64      `json:"artistId"`
	Role     ArtistRole `json:"role"`
	Position int        `json:"position"`
}

// Genre is a tag value; tracks relate to genres many-to-many since a file
// may carry multiple genre tags.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Folder is a scanned root directory. ContentHash summarizes the audio
// files beneath it so an unchanged root can skip a rescan.
type Folder struct {
	ID            int64      `json:"id"`
	Path          string     `json:"path"`
	ContentHash   string     `json:"-"`
	LastScannedAt *time.Time `json:"lastScannedAt,omitempty"`
}

// TrackMetadata is the fixed-shape record produced by the metadata
// collaborator for one audio file.
type TrackMetadata struct {
	Title       string
	Artist      string
	AlbumArtist string
	Album       string
	Genre       string
	Composer    string
	TrackNumber int
	DiscNumber  int
	Year        string
	Duration    float64
	Bitrate     int
	SampleRate  int
	BitDepth    int
	Channels    int
	Lossless    bool
	Artwork     []byte
	ISRC        string
	Label       string
	Conductor   string
	Producer    string
}
