// Package pathutil normalises resource locations into absolute local paths.
package pathutil

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// SchemeFile is the only URI scheme a resource location may carry.
const SchemeFile = "file"

// ParseLocationScheme extracts the scheme from a location URI.
// Returns ("file", "/data/hg19.fa") for "file:///data/hg19.fa".
// Returns ("", raw) for bare strings with no scheme.
func ParseLocationScheme(location string) (scheme, path string) {
	if i := strings.Index(location, "://"); i > 0 {
		scheme = strings.ToLower(location[:i])
		path = location[i+3:]
		if scheme == SchemeFile {
			path = "/" + strings.TrimLeft(path, "/")
		}
		return scheme, path
	}
	return "", location
}

// Normalize turns a catalog or config location into a clean local path.
// file:// URIs are stripped and URL-decoded ("item%231.txt" → "item#1.txt");
// other schemes are rejected since every consumer expects a local path.
func Normalize(loc string) (string, error) {
	if loc == "" {
		return "", nil
	}
	scheme, p := ParseLocationScheme(loc)
	switch scheme {
	case "":
	case SchemeFile:
		decoded, err := url.PathUnescape(p)
		if err != nil {
			return "", fmt.Errorf("decode %q: %w", loc, err)
		}
		p = decoded
	default:
		return "", fmt.Errorf("location %q: unsupported scheme %q", loc, scheme)
	}
	return filepath.Clean(p), nil
}

// RequireAbs normalizes loc and fails unless the result is absolute.
func RequireAbs(loc string) (string, error) {
	p, err := Normalize(loc)
	if err != nil {
		return "", err
	}
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if !filepath.IsAbs(p) {
		return "", fmt.Errorf("path %q is not absolute", loc)
	}
	return p, nil
}

// Absolutize resolves loc against base when it is relative. base must be absolute.
func Absolutize(base, loc string) (string, error) {
	p, err := Normalize(loc)
	if err != nil || p == "" {
		return p, err
	}
	if filepath.IsAbs(p) {
		return p, nil
	}
	if !filepath.IsAbs(base) {
		return "", fmt.Errorf("cannot resolve %q against relative base %q", loc, base)
	}
	return filepath.Join(base, p), nil
}

// IsAbsClean reports whether p is absolute and already in filepath.Clean form.
func IsAbsClean(p string) bool {
	return p != "" && filepath.IsAbs(p) && filepath.Clean(p) == p
}
