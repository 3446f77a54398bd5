package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer strips combining marks after NFD decomposition so that
// "Tiësto" and "Tiesto" produce the same normalized key.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// artistSeparators split multi-valued artist strings like "A & B" or "A; B".
// Commas are handled separately because of the "Beatles, The" form.
var artistSeparators = []string{";", "/", " & ", " x "}

var featPatterns = []string{" feat. ", " feat ", " ft. ", " ft ", " featuring "}

// NormalizeName produces the matching key for an artist name: case and
// diacritic folded, punctuation-insensitive, with leading articles stripped
// so "The Beatles" and "Beatles, The" resolve to one artist.
func NormalizeName(name string) string {
	s := strings.TrimSpace(name)

	// "Beatles, The" drops its trailing article, matching the leading-article
	// strip applied to "The Beatles" below.
	lower := strings.ToLower(s)
	for _, article := range []string{", the", ", a", ", an"} {
		if strings.HasSuffix(lower, article) {
			s = strings.TrimSpace(s[:len(s)-len(article)])
			break
		}
	}

	s = foldText(s)

	for _, article := range []string{"the ", "a ", "an "} {
		if strings.HasPrefix(s, article) && len(s) > len(article) {
			s = s[len(article):]
			break
		}
	}

	return collapseSpaces(s)
}

// NormalizeTitle produces the matching key for album and track titles.
func NormalizeTitle(title string) string {
	return collapseSpaces(foldText(title))
}

// SplitArtistNames parses a raw, possibly multi-valued artist string into
// discrete names. Empty segments are dropped.
func SplitArtistNames(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	segments := []string{raw}
	for _, sep := range artistSeparators {
		var next []string
		for _, segment := range segments {
			next = append(next, strings.Split(segment, sep)...)
		}
		segments = next
	}

	// A comma is a separator unless it introduces a trailing article:
	// "Beatles, The" rotates to "The Beatles" instead of shattering into a
	// spurious "The" credit.
	var commaSplit []string
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if rotated, ok := rotateTrailingArticle(segment); ok {
			commaSplit = append(commaSplit, rotated)
			continue
		}
		commaSplit = append(commaSplit, strings.Split(segment, ",")...)
	}
	segments = commaSplit

	var split []string
	for _, segment := range segments {
		lower := strings.ToLower(segment)
		cut := len(segment)
		for _, pattern := range featPatterns {
			if idx := strings.Index(lower, pattern); idx >= 0 && idx < cut {
				cut = idx
			}
		}
		name := strings.TrimSpace(segment[:cut])
		if name != "" {
			split = append(split, name)
		}
		// The featured artist is a discrete credit too.
		if cut < len(segment) {
			for _, pattern := range featPatterns {
				if idx := strings.Index(lower, pattern); idx == cut {
					if feat := strings.TrimSpace(segment[cut+len(pattern):]); feat != "" {
						split = append(split, feat)
					}
					break
				}
			}
		}
	}

	// Preserve order, drop duplicates by normalized key.
	seen := make(map[string]bool, len(split))
	var names []string
	for _, name := range split {
		key := NormalizeName(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
	}
	return names
}

// rotateTrailingArticle turns "X, The" into "The X". The second value
// reports whether a rotation happened.
func rotateTrailingArticle(s string) (string, bool) {
	lower := strings.ToLower(s)
	for _, article := range []string{", the", ", a", ", an"} {
		if strings.HasSuffix(lower, article) {
			rotated := s[len(s)-len(article)+2:] + " " + strings.TrimSpace(s[:len(s)-len(article)])
			return strings.TrimSpace(rotated), true
		}
	}
	return s, false
}

// foldText lowercases, removes diacritics and keeps only letters, digits and
// spaces.
func foldText(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case r == '&':
			b.WriteString(" and ")
		}
	}
	return b.String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
