// Package identity derives stable reuse identities for source clips. The same
// piece of content can be referenced through several URL shapes; dedupe, the
// media reuse lookup, and the local clip cache all key off the identity
// produced here.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// clipSlugHosts maps hosts whose clip URLs carry a platform slug as the final
// path segment.
var clipSlugHosts = map[string]struct{}{
	"clips.twitch.tv": {},
}

// Key derives the reuse identity for a source URL. Platform clip URLs reduce
// to their slug; everything else reduces to a normalized URL with query,
// fragment, and trailing slash stripped. Unparseable values fall back to the
// trimmed raw string so callers can still dedupe exact duplicates.
func Key(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return trimmed
	}
	if slug := clipSlug(parsed); slug != "" {
		return slug
	}
	return normalize(parsed)
}

// NormalizeURL returns the canonical URL form used for identity matching,
// ignoring any slug shortcut.
func NormalizeURL(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return trimmed
	}
	return normalize(parsed)
}

// Hash returns the hex SHA-256 of the reuse identity, used as the local cache
// file name for a source URL.
func Hash(rawURL string) string {
	sum := sha256.Sum256([]byte(Key(rawURL)))
	return hex.EncodeToString(sum[:])
}

func clipSlug(parsed *url.URL) string {
	host := strings.ToLower(parsed.Host)
	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return ""
	}
	segments := strings.Split(path, "/")
	if _, ok := clipSlugHosts[host]; ok {
		return segments[len(segments)-1]
	}
	// Channel-scoped clip links: https://www.twitch.tv/<channel>/clip/<slug>
	if host == "twitch.tv" || host == "www.twitch.tv" || host == "m.twitch.tv" {
		for i, segment := range segments {
			if segment == "clip" && i+1 < len(segments) {
				return segments[i+1]
			}
		}
	}
	return ""
}

func normalize(parsed *url.URL) string {
	clone := *parsed
	clone.Host = strings.ToLower(clone.Host)
	clone.Scheme = strings.ToLower(clone.Scheme)
	clone.RawQuery = ""
	clone.Fragment = ""
	clone.RawFragment = ""
	clone.Path = strings.TrimRight(clone.Path, "/")
	return clone.String()
}
