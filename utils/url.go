package utils

import (
	"strings"

	"github.com/mozillazg/go-unidecode"
)

// FoldTitle normalizes a title for fuzzy lookups: ASCII transliteration of
// accented characters, lower case, collapsed whitespace. Series names arrive
// from the remote source with inconsistent accents and casing.
func FoldTitle(s string) string {
	s = unidecode.Unidecode(strings.TrimSpace(s))
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}
