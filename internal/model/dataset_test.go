package model

import (
	"path/filepath"
	"testing"
)

func sampleDataset() *Dataset {
	return &Dataset{
		Profile: "work",
		Browser: FamilyFirefox,
		Bookmarks: []Bookmark{
			{ID: "b1", URL: "https://a.com/", Title: "A", Folder: []string{"Toolbar"}, SourceProfile: "work", SourceBrowser: FamilyFirefox},
			{ID: "b2", URL: "https://www.a.com", Title: "A again", SourceProfile: "work", SourceBrowser: FamilyFirefox},
		},
		History: []HistoryEntry{
			{ID: "h1", URL: "https://a.com/", Title: "A", VisitCount: 3, SourceProfile: "work", SourceBrowser: FamilyFirefox},
		},
		Logins: []Login{
			{ID: "l1", Domain: "a.com", Username: "alice", SourceProfile: "work", SourceBrowser: FamilyFirefox},
		},
		Warnings: []string{"something minor"},
	}
}

func TestDatasetSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ds.json")
	orig := sampleDataset()
	if err := orig.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	back, err := LoadDataset(path)
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if back.Profile != "work" || back.Browser != FamilyFirefox {
		t.Errorf("header = %s/%s", back.Profile, back.Browser)
	}
	if len(back.Bookmarks) != 2 || len(back.History) != 1 || len(back.Logins) != 1 {
		t.Errorf("sizes = %d/%d/%d", len(back.Bookmarks), len(back.History), len(back.Logins))
	}
	if back.Bookmarks[0].Folder[0] != "Toolbar" {
		t.Error("folder path lost in round trip")
	}
}

func TestLoadDatasetErrors(t *testing.T) {
	if _, err := LoadDataset(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("missing file must error")
	}
}

func TestDatasetClone(t *testing.T) {
	orig := sampleDataset()
	c := orig.Clone()
	c.Bookmarks[0].Title = "mutated"
	c.Bookmarks[0].Folder[0] = "mutated"
	c.History[0].VisitCount = 99
	c.Warnings[0] = "mutated"

	if orig.Bookmarks[0].Title != "A" || orig.Bookmarks[0].Folder[0] != "Toolbar" {
		t.Error("clone shares bookmark storage with the original")
	}
	if orig.History[0].VisitCount != 3 {
		t.Error("clone shares history storage with the original")
	}
	if orig.Warnings[0] != "something minor" {
		t.Error("clone shares the warnings slice")
	}
}

func TestDatasetCounts(t *testing.T) {
	d := sampleDataset()
	if d.Count(TypeBookmarks) != 2 || d.Count(TypeHistory) != 1 || d.Count(TypeLogins) != 1 {
		t.Errorf("counts = %d/%d/%d", d.Count(TypeBookmarks), d.Count(TypeHistory), d.Count(TypeLogins))
	}
	if d.Count(TypeCookies) != 0 {
		t.Error("unsupported types count zero")
	}
	// Both bookmarks normalize to the same URL.
	if got := d.UniqueKeys(TypeBookmarks); got != 1 {
		t.Errorf("unique bookmark keys = %d, want 1", got)
	}
	if got := d.UniqueKeys(TypeHistory); got != 1 {
		t.Errorf("unique history keys = %d, want 1", got)
	}
}
