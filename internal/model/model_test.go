package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestExpandTypes(t *testing.T) {
	all := ExpandTypes([]DataType{TypeAll})
	if len(all) != 8 {
		t.Fatalf("all expands to %d types, want 8", len(all))
	}
	// Implemented types come first so merge output lists them first.
	if all[0] != TypeBookmarks || all[1] != TypeHistory || all[2] != TypeLogins {
		t.Errorf("head of expansion = %v", all[:3])
	}

	got := ExpandTypes([]DataType{TypeHistory, TypeBookmarks, TypeHistory})
	want := []DataType{TypeHistory, TypeBookmarks}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExpandTypes dedupe = %v, want %v", got, want)
	}
}

func TestImplemented(t *testing.T) {
	for _, dt := range ImplementedTypes {
		if !dt.Implemented() {
			t.Errorf("%s should be implemented", dt)
		}
	}
	for _, dt := range []DataType{TypeCookies, TypeExtensions, TypeSessions} {
		if dt.Implemented() {
			t.Errorf("%s should be an extension point", dt)
		}
	}
}

func TestPrefer(t *testing.T) {
	cases := []struct {
		name             string
		strategy         Strategy
		chTime, incTime  int64
		chUses, incUses  int
		want             bool
	}{
		{"newest wins on later time", KeepNewest, 200, 100, 0, 0, true},
		{"newest keeps incumbent on tie", KeepNewest, 100, 100, 0, 0, false},
		{"newest never picks unknown time", KeepNewest, 0, 100, 0, 0, false},
		{"oldest wins on earlier time", KeepOldest, 100, 200, 0, 0, true},
		{"oldest ignores unknown challenger", KeepOldest, 0, 200, 0, 0, false},
		{"oldest beats unknown incumbent", KeepOldest, 100, 0, 0, 0, true},
		{"most used wins on count", KeepMostUsed, 0, 0, 5, 3, true},
		{"most used keeps incumbent on tie", KeepMostUsed, 0, 0, 3, 3, false},
		{"keep_all never replaces", KeepAll, 999, 1, 9, 1, false},
		{"manual never replaces", Manual, 999, 1, 9, 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Prefer(tc.strategy, tc.chTime, tc.incTime, tc.chUses, tc.incUses)
			if got != tc.want {
				t.Errorf("Prefer = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMergeProvenance(t *testing.T) {
	base := []string{"alpha"}
	got := MergeProvenance(base, "beta", "", "alpha", "beta", "gamma")
	want := []string{"alpha", "beta", "gamma"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeProvenance = %v, want %v", got, want)
	}
	if len(base) != 1 || base[0] != "alpha" {
		t.Errorf("input slice mutated: %v", base)
	}
}

func TestCloneBookmarkIsDeep(t *testing.T) {
	orig := Bookmark{
		ID: "b1", URL: "https://a.com/", Title: "A",
		Folder:     []string{"Toolbar", "Work"},
		MergedFrom: []string{"old"},
	}
	c := CloneBookmark(orig, "new-profile")
	c.Folder[0] = "changed"
	c.MergedFrom[0] = "changed"

	if orig.Folder[0] != "Toolbar" {
		t.Error("clone shares the folder slice")
	}
	if orig.MergedFrom[0] != "old" {
		t.Error("clone shares the provenance slice")
	}
	if want := []string{"changed", "new-profile"}; !reflect.DeepEqual(c.MergedFrom, want) {
		t.Errorf("clone provenance = %v, want %v", c.MergedFrom, want)
	}
}

func TestIdentityKeys(t *testing.T) {
	a := Bookmark{URL: "https://www.example.com/page/"}
	b := Bookmark{URL: "https://example.com/page?utm_source=x"}
	if a.IdentityKey() != b.IdentityKey() {
		t.Errorf("variants map to different keys: %q vs %q", a.IdentityKey(), b.IdentityKey())
	}

	l1 := Login{Domain: "example.com", Username: "alice", PasswordHash: "aaa"}
	l2 := Login{Domain: "example.com", Username: "alice", PasswordHash: "bbb"}
	if l1.IdentityKey() != l2.IdentityKey() {
		t.Error("login identity must ignore the credential payload")
	}
	l3 := Login{Domain: "example.com", Username: "bob"}
	if l1.IdentityKey() == l3.IdentityKey() {
		t.Error("different usernames must not collide")
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if len(a) != 26 {
		t.Errorf("id length = %d, want 26", len(a))
	}
	if a == b {
		t.Error("consecutive ids must differ")
	}
}

func TestPipelineError(t *testing.T) {
	inner := errors.New("disk gone")
	err := NewError(ErrSourceUnavailable, inner, "profile %s", "work").
		WithContext("work", TypeBookmarks, "/p/places.sqlite")

	if KindOf(err) != ErrSourceUnavailable {
		t.Errorf("kind = %v", KindOf(err))
	}
	if !errors.Is(err, inner) {
		t.Error("wrapped error lost")
	}
	msg := err.Error()
	for _, part := range []string{"source_unavailable", "work", "bookmarks", "places.sqlite", "disk gone"} {
		if !strings.Contains(msg, part) {
			t.Errorf("message %q missing %q", msg, part)
		}
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if KindOf(wrapped) != ErrSourceUnavailable {
		t.Error("KindOf must see through wrapping")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("plain errors carry no kind")
	}
}
