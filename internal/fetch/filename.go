// URL -> local filename helpers for the download cache.

package fetch

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/zeebo/xxh3"
)

// filenameCleaner replaces sequences of non-alphanumeric characters
// (dots and dashes excepted) with "_".
var filenameCleaner = regexp.MustCompile(`[^a-zA-Z0-9.\-]+`)

// HashURL returns a short, stable hex digest of rawURL. Two distinct URLs
// that happen to share a basename get distinct cache names because the digest
// is part of the filename.
func HashURL(rawURL string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(rawURL))
}

// CacheName derives a filesystem-safe cache filename for rawURL: the cleaned
// basename of the URL path prefixed with the URL digest. When the URL has no
// usable basename the digest alone is used.
//
// Examples:
//
//	http://x/data.zip            -> 9a…f3_data.zip
//	http://x/download?id=7       -> 9a…f3
func CacheName(rawURL string) string {
	digest := HashURL(rawURL)

	u, err := url.Parse(rawURL)
	if err != nil {
		return digest
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return digest
	}
	clean := filenameCleaner.ReplaceAllString(base, "_")
	clean = strings.Trim(clean, "_")
	if clean == "" {
		return digest
	}
	return digest + "_" + clean
}
