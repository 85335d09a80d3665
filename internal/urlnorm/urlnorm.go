// Package urlnorm normalizes URLs into the canonical form used as the
// identity key for bookmarks and history entries. Two URLs that normalize to
// the same string denote the same item for deduplication and merging.
package urlnorm

import (
	"net/url"
	"strings"
)

// Normalize reduces a URL to scheme + host + path: the scheme and host are
// lowercased, every leading "www." label is stripped, default ports and
// query/fragment are dropped, and trailing slashes are trimmed. The result is
// idempotent: Normalize(Normalize(u)) == Normalize(u).
//
// Unparseable input is returned trimmed and lowercased so grouping stays
// deterministic even for junk rows.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(raw, "/"))
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "http"
	}

	host := strings.ToLower(u.Hostname())
	for strings.HasPrefix(host, "www.") {
		host = strings.TrimPrefix(host, "www.")
	}
	if strings.Contains(host, ":") {
		// IPv6 literal; Hostname() strips the brackets.
		host = "[" + host + "]"
	}

	// Keep non-default ports; :80/:443 carry no identity.
	if port := u.Port(); port != "" {
		if !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
			host += ":" + port
		}
	}

	path := strings.TrimRight(u.EscapedPath(), "/")

	return scheme + "://" + host + path
}

// Domain extracts the lowercased registrable host of a URL or bare hostname,
// with any leading "www." labels stripped. Used for the login identity key.
func Domain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		// Bare hostnames ("accounts.example.com") and signon realms
		// ("https://example.com") both pass through here.
		u2, err2 := url.Parse("https://" + raw)
		if err2 != nil || u2.Host == "" {
			return strings.ToLower(raw)
		}
		u = u2
	}

	host := strings.ToLower(u.Hostname())
	for strings.HasPrefix(host, "www.") {
		host = strings.TrimPrefix(host, "www.")
	}
	return host
}
