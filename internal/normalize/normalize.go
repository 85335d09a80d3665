// Package normalize maps browser-native field encodings onto the universal
// schema: one timestamp epoch, one folder representation, one stand-in for
// credentials that are never decrypted.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// chromiumEpochOffsetMicros is the gap between the Windows FILETIME epoch
// (1601-01-01) used by Chromium databases and the Unix epoch, in microseconds.
const chromiumEpochOffsetMicros = 11_644_473_600_000_000

// ChromiumMicros converts a Chromium timestamp (microseconds since
// 1601-01-01) to Unix milliseconds. Zero and pre-epoch values become 0,
// the schema's "unknown" marker.
func ChromiumMicros(v int64) int64 {
	if v <= 0 {
		return 0
	}
	ms := (v - chromiumEpochOffsetMicros) / 1000
	if ms < 0 {
		return 0
	}
	return ms
}

// UnixMicros converts Unix-epoch microseconds (Firefox places.sqlite) to
// milliseconds.
func UnixMicros(v int64) int64 {
	if v <= 0 {
		return 0
	}
	return v / 1000
}

// UnixSeconds converts Unix-epoch seconds (Netscape bookmark exports) to
// milliseconds.
func UnixSeconds(v int64) int64 {
	if v <= 0 {
		return 0
	}
	return v * 1000
}

// UnixMillis passes through a value already in Unix milliseconds (Firefox
// logins.json), clamping negatives to the unknown marker.
func UnixMillis(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// Title trims a record title and substitutes "Untitled" when nothing is left.
func Title(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "Untitled"
	}
	return s
}

// VisitCount clamps a visit count to zero or more.
func VisitCount(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// FolderSegments splits a folder path on sep into ordered segments, dropping
// empty ones.
func FolderSegments(path, sep string) []string {
	var out []string
	for _, seg := range strings.Split(path, sep) {
		seg = strings.TrimSpace(seg)
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// CleanSegments trims an already-split folder path, dropping empty segments.
func CleanSegments(segs []string) []string {
	var out []string
	for _, seg := range segs {
		seg = strings.TrimSpace(seg)
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// HashSecret produces the opaque stand-in stored instead of a credential:
// the hex SHA-256 of the still-encrypted payload. Empty input yields "".
func HashSecret(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
