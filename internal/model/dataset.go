package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Dataset holds the universal records extracted from one profile, or the
// accumulated result of a merge. It is the JSON interchange artifact between
// scan, analyze, and merge, and the contract handed to a profile writer.
type Dataset struct {
	Profile   string         `json:"profile"`
	Browser   BrowserFamily  `json:"browser"`
	Bookmarks []Bookmark     `json:"bookmarks,omitempty"`
	History   []HistoryEntry `json:"history,omitempty"`
	Logins    []Login        `json:"logins,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// LoadDataset reads a dataset JSON file written by Save.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var d Dataset
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return &d, nil
}

// Save writes the dataset as indented JSON.
func (d *Dataset) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	return nil
}

// Clone returns a deep copy. The merge engine works on a per-type working
// copy so a cancelled or dry-run merge never leaves the target half-mutated.
func (d *Dataset) Clone() *Dataset {
	c := &Dataset{
		Profile:  d.Profile,
		Browser:  d.Browser,
		Warnings: append([]string(nil), d.Warnings...),
	}
	c.Bookmarks = make([]Bookmark, 0, len(d.Bookmarks))
	for _, b := range d.Bookmarks {
		c.Bookmarks = append(c.Bookmarks, CloneBookmark(b, ""))
	}
	c.History = make([]HistoryEntry, 0, len(d.History))
	for _, h := range d.History {
		c.History = append(c.History, CloneHistoryEntry(h, ""))
	}
	c.Logins = make([]Login, 0, len(d.Logins))
	for _, l := range d.Logins {
		c.Logins = append(c.Logins, CloneLogin(l, ""))
	}
	return c
}

// Count returns the number of records of one data type.
func (d *Dataset) Count(t DataType) int {
	switch t {
	case TypeBookmarks:
		return len(d.Bookmarks)
	case TypeHistory:
		return len(d.History)
	case TypeLogins:
		return len(d.Logins)
	default:
		return 0
	}
}

// UniqueKeys returns the number of distinct identity keys of one data type.
func (d *Dataset) UniqueKeys(t DataType) int {
	seen := map[string]bool{}
	switch t {
	case TypeBookmarks:
		for _, b := range d.Bookmarks {
			seen[b.IdentityKey()] = true
		}
	case TypeHistory:
		for _, h := range d.History {
			seen[h.IdentityKey()] = true
		}
	case TypeLogins:
		for _, l := range d.Logins {
			seen[l.IdentityKey()] = true
		}
	}
	return len(seen)
}
