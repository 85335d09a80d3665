// Package model defines the universal browser-data schema all sources are
// normalized into, plus the shared pipeline vocabulary (data types, browser
// families, conflict strategies, error taxonomy).
package model

import (
	"github.com/oklog/ulid/v2"

	"github.com/demispk444/profilemerge/internal/urlnorm"
)

// BrowserFamily identifies the source browser lineage of a profile.
type BrowserFamily string

const (
	FamilyFirefox  BrowserFamily = "firefox"
	FamilyChromium BrowserFamily = "chromium"
	// FamilyNetscape covers bookmarks.html exports (the Netscape bookmark
	// interchange format written by every major browser's export feature).
	FamilyNetscape BrowserFamily = "netscape"
	FamilyUnknown  BrowserFamily = "unknown"
)

// DataType identifies one category of user data within a profile.
type DataType string

const (
	TypeBookmarks   DataType = "bookmarks"
	TypeHistory     DataType = "history"
	TypeLogins      DataType = "logins"
	TypeCookies     DataType = "cookies"
	TypeExtensions  DataType = "extensions"
	TypeFormHistory DataType = "formHistory"
	TypePermissions DataType = "permissions"
	TypeSessions    DataType = "sessions"
	TypeAll         DataType = "all"
)

// ValidDataTypes are the data types accepted in a merge configuration.
var ValidDataTypes = map[DataType]bool{
	TypeBookmarks:   true,
	TypeHistory:     true,
	TypeLogins:      true,
	TypeCookies:     true,
	TypeExtensions:  true,
	TypeFormHistory: true,
	TypePermissions: true,
	TypeSessions:    true,
	TypeAll:         true,
}

// ImplementedTypes are the data types the pipeline fully supports. The
// remaining types are declared extension points: selecting them yields a
// zero-count result with a note, never an abort.
var ImplementedTypes = []DataType{TypeBookmarks, TypeHistory, TypeLogins}

// Implemented reports whether the pipeline has a real extractor and merge
// path for this data type.
func (t DataType) Implemented() bool {
	for _, it := range ImplementedTypes {
		if t == it {
			return true
		}
	}
	return false
}

// ExpandTypes resolves "all" and removes duplicates while preserving the
// first-encountered order of the selection.
func ExpandTypes(types []DataType) []DataType {
	var out []DataType
	seen := map[DataType]bool{}
	add := func(t DataType) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range types {
		if t == TypeAll {
			// "all" expands to the implemented set plus the declared
			// extension points, implemented first.
			add(TypeBookmarks)
			add(TypeHistory)
			add(TypeLogins)
			add(TypeCookies)
			add(TypeExtensions)
			add(TypeFormHistory)
			add(TypePermissions)
			add(TypeSessions)
			continue
		}
		add(t)
	}
	return out
}

// Strategy selects which of two identity-colliding records survives a merge.
type Strategy string

const (
	KeepNewest   Strategy = "keep_newest"
	KeepOldest   Strategy = "keep_oldest"
	KeepMostUsed Strategy = "keep_most_used"
	KeepAll      Strategy = "keep_all"
	Manual       Strategy = "manual"
)

// ValidStrategies are the accepted conflict-resolution strategies.
var ValidStrategies = map[Strategy]bool{
	KeepNewest:   true,
	KeepOldest:   true,
	KeepMostUsed: true,
	KeepAll:      true,
	Manual:       true,
}

// Prefer reports whether a challenger record beats an incumbent under the
// strategy. Times are Unix milliseconds with 0 meaning unknown; an unknown
// time never wins a recency comparison. Ties keep the incumbent, so scanning
// records in input order always settles on the first-encountered winner.
// KeepAll and Manual never prefer the challenger.
func Prefer(s Strategy, challengerTime, incumbentTime int64, challengerUses, incumbentUses int) bool {
	switch s {
	case KeepNewest:
		return challengerTime > incumbentTime
	case KeepOldest:
		if challengerTime == 0 {
			return false
		}
		return incumbentTime == 0 || challengerTime < incumbentTime
	case KeepMostUsed:
		return challengerUses > incumbentUses
	default:
		return false
	}
}

// NewID returns a ULID string for record, group, and run identifiers.
func NewID() string {
	return ulid.Make().String()
}

// Bookmark is the universal bookmark record. Timestamps are Unix milliseconds.
type Bookmark struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	URL           string        `json:"url"`
	Folder        []string      `json:"folder,omitempty"`
	DateAdded     int64         `json:"date_added"`
	DateModified  int64         `json:"date_modified,omitempty"`
	VisitCount    int           `json:"visit_count,omitempty"`
	SourceProfile string        `json:"source_profile"`
	SourceBrowser BrowserFamily `json:"source_browser"`
	MergedFrom    []string      `json:"merged_from,omitempty"`
}

// HistoryEntry is the universal history record. Timestamps are Unix milliseconds.
type HistoryEntry struct {
	ID            string        `json:"id"`
	URL           string        `json:"url"`
	Title         string        `json:"title"`
	VisitCount    int           `json:"visit_count"`
	FirstVisit    int64         `json:"first_visit"`
	LastVisit     int64         `json:"last_visit"`
	SourceProfile string        `json:"source_profile"`
	SourceBrowser BrowserFamily `json:"source_browser"`
	MergedFrom    []string      `json:"merged_from,omitempty"`
}

// Login is the universal saved-login record. PasswordHash is an opaque digest
// of the browser-encrypted payload; credentials are never decrypted.
type Login struct {
	ID            string        `json:"id"`
	Domain        string        `json:"domain"`
	Username      string        `json:"username"`
	PasswordHash  string        `json:"password_hash,omitempty"`
	DateCreated   int64         `json:"date_created"`
	DateLastUsed  int64         `json:"date_last_used,omitempty"`
	TimesUsed     int           `json:"times_used,omitempty"`
	SourceProfile string        `json:"source_profile"`
	SourceBrowser BrowserFamily `json:"source_browser"`
	MergedFrom    []string      `json:"merged_from,omitempty"`
}

// Record is the common view over the three universal record kinds. Consumers
// that need kind-specific fields type-switch on the concrete type.
type Record interface {
	RecordID() string
	Kind() DataType
	// IdentityKey is the value two records must share to denote the same
	// real-world item: the normalized URL, or domain+username for logins.
	IdentityKey() string
	Source() string
}

func (b Bookmark) RecordID() string { return b.ID }
func (b Bookmark) Kind() DataType   { return TypeBookmarks }
func (b Bookmark) IdentityKey() string {
	return urlnorm.Normalize(b.URL)
}
func (b Bookmark) Source() string { return b.SourceProfile }

func (h HistoryEntry) RecordID() string { return h.ID }
func (h HistoryEntry) Kind() DataType   { return TypeHistory }
func (h HistoryEntry) IdentityKey() string {
	return urlnorm.Normalize(h.URL)
}
func (h HistoryEntry) Source() string { return h.SourceProfile }

func (l Login) RecordID() string { return l.ID }
func (l Login) Kind() DataType   { return TypeLogins }
func (l Login) IdentityKey() string {
	return LoginKey(l.Domain, l.Username)
}
func (l Login) Source() string { return l.SourceProfile }

// LoginKey builds the login identity key from an exact (domain, username)
// pair. The domain is already lowercased during normalization.
func LoginKey(domain, username string) string {
	return domain + "\x00" + username
}

// CloneBookmark returns a deep copy with provenance appended. Every merged-in
// record goes through one of these constructors so provenance is never lost
// and slice fields never alias the source record.
func CloneBookmark(b Bookmark, fromProfile string) Bookmark {
	c := b
	c.Folder = append([]string(nil), b.Folder...)
	c.MergedFrom = appendProvenance(b.MergedFrom, fromProfile)
	return c
}

// CloneHistoryEntry returns a deep copy with provenance appended.
func CloneHistoryEntry(h HistoryEntry, fromProfile string) HistoryEntry {
	c := h
	c.MergedFrom = appendProvenance(h.MergedFrom, fromProfile)
	return c
}

// CloneLogin returns a deep copy with provenance appended.
func CloneLogin(l Login, fromProfile string) Login {
	c := l
	c.MergedFrom = appendProvenance(l.MergedFrom, fromProfile)
	return c
}

func appendProvenance(existing []string, profile string) []string {
	return MergeProvenance(existing, profile)
}

// MergeProvenance appends profile names to a provenance list, dropping
// empties and values already present. The input slice is never mutated.
func MergeProvenance(existing []string, profiles ...string) []string {
	out := append([]string(nil), existing...)
	for _, p := range profiles {
		if p == "" {
			continue
		}
		dup := false
		for _, have := range out {
			if have == p {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}

// SourceProfile describes one discovered browser profile. Built during
// discovery; read-only to the rest of the pipeline.
type SourceProfile struct {
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	Browser    BrowserFamily `json:"browser"`
	IsValid    bool          `json:"is_valid"`
	Issues     []string      `json:"issues,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
	Confidence float64       `json:"confidence"`
}

// DuplicateGroup is a set of near-identical records of one kind. Groups live
// only for the duration of a merge session; they are reported, never stored.
type DuplicateGroup struct {
	ID            string   `json:"id"`
	Type          DataType `json:"type"`
	Members       []Record `json:"members"`
	Confidence    float64  `json:"confidence"`
	Reason        string   `json:"reason"`
	SuggestedKeep int      `json:"suggested_keep"`
}
