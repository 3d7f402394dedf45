package indexer

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	slugStripRe    = regexp.MustCompile(`[^a-z0-9-]`)
	slugCollapseRe = regexp.MustCompile(`-+`)
)

// Slugify converts a string to a URL/path-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugStripRe.ReplaceAllString(s, "-")
	s = slugCollapseRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}

// DocPath builds the indexer path for a document: a slug of the source's base
// name plus a content hash prefix, so renamed copies of the same content
// still collide predictably.
func DocPath(source, contentHash string) string {
	base := filepath.Base(source)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	slug := Slugify(base)
	if slug == "" {
		slug = "document"
	}
	hash := contentHash
	if len(hash) > 8 {
		hash = hash[:8]
	}
	if hash == "" {
		return slug
	}
	return slug + "-" + hash
}
