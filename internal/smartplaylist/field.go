package smartplaylist

import "fmt"

// Field is the closed set of rule fields. Unknown names are rejected when a
// rule is compiled, not silently evaluated to nothing.
type Field string

const (
	FieldTitle       Field = "title"
	FieldArtist      Field = "artist"
	FieldAlbum       Field = "album"
	FieldAlbumArtist Field = "albumArtist"
	FieldGenre       Field = "genre"
	FieldComposer    Field = "composer"
	FieldYear        Field = "year"
	FieldDuration    Field = "duration"
	FieldPlayCount   Field = "playCount"
	FieldLastPlayed  Field = "lastPlayedDate"
	FieldDateAdded   Field = "dateAdded"
	FieldIsFavorite  Field = "isFavorite"
)

// fieldKind drives which predicate builder handles a rule.
type fieldKind int

const (
	kindString fieldKind = iota
	kindPerson
	kindYear
	kindNumeric
	kindDate
	kindBool
)

var fieldKinds = map[Field]fieldKind{
	FieldTitle:       kindString,
	FieldAlbum:       kindString,
	FieldAlbumArtist: kindString,
	FieldGenre:       kindString,
	FieldArtist:      kindPerson,
	FieldComposer:    kindPerson,
	FieldYear:        kindYear,
	FieldDuration:    kindNumeric,
	FieldPlayCount:   kindNumeric,
	FieldLastPlayed:  kindDate,
	FieldDateAdded:   kindDate,
	FieldIsFavorite:  kindBool,
}

// fieldColumns maps fields to their track columns. Person fields resolve
// through the artists table first and use these denormalized columns only as
// fallback.
var fieldColumns = map[Field]string{
	FieldTitle:       "t.title",
	FieldAlbum:       "t.album",
	FieldAlbumArtist: "t.album_artist",
	FieldGenre:       "t.genre",
	FieldArtist:      "t.artist",
	FieldComposer:    "t.composer",
	FieldYear:        "t.year",
	FieldDuration:    "t.duration",
	FieldPlayCount:   "t.play_count",
	FieldLastPlayed:  "t.last_played_at",
	FieldDateAdded:   "t.date_added",
	FieldIsFavorite:  "t.is_favorite",
}

// sortColumns are the orderable fields accepted in criteria sortBy.
var sortColumns = map[Field]string{
	FieldTitle:       "t.title",
	FieldArtist:      "t.artist",
	FieldAlbum:       "t.album",
	FieldAlbumArtist: "t.album_artist",
	FieldGenre:       "t.genre",
	FieldYear:        "t.year",
	FieldDuration:    "t.duration",
	FieldPlayCount:   "t.play_count",
	FieldLastPlayed:  "t.last_played_at",
	FieldDateAdded:   "t.date_added",
}

// ParseField validates a rule's field name against the closed set.
func ParseField(name string) (Field, error) {
	field := Field(name)
	if _, ok := fieldKinds[field]; !ok {
		return "", fmt.Errorf("unknown rule field %q", name)
	}
	return field, nil
}
