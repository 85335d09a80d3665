package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/demispk444/profilemerge/internal/config"
	"github.com/demispk444/profilemerge/internal/model"
)

func testConfig(strategy model.Strategy) *config.Config {
	c := config.Default()
	c.ConflictResolution = strategy
	return c
}

func bm(id, url, title, profile string, added int64, visits int) model.Bookmark {
	return model.Bookmark{
		ID: id, URL: url, Title: title, DateAdded: added, VisitCount: visits,
		SourceProfile: profile, SourceBrowser: model.FamilyFirefox,
	}
}

func hist(id, url, profile string, visits int, first, last int64) model.HistoryEntry {
	return model.HistoryEntry{
		ID: id, URL: url, Title: "t", VisitCount: visits,
		FirstVisit: first, LastVisit: last,
		SourceProfile: profile, SourceBrowser: model.FamilyFirefox,
	}
}

func login(id, domain, user, profile string, lastUsed int64, used int) model.Login {
	return model.Login{
		ID: id, Domain: domain, Username: user,
		DateLastUsed: lastUsed, TimesUsed: used,
		SourceProfile: profile, SourceBrowser: model.FamilyChromium,
	}
}

func mustMerge(t *testing.T, target *model.Dataset, sources []*model.Dataset, cfg *config.Config) *Result {
	t.Helper()
	res, err := NewEngine(nil).Merge(context.Background(), target, sources, cfg)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	return res
}

func TestMerge_AppendsNewRecords(t *testing.T) {
	target := &model.Dataset{
		Profile:   "main",
		Bookmarks: []model.Bookmark{bm("b1", "https://a.com/", "A", "main", 10, 0)},
	}
	src := &model.Dataset{
		Profile:   "other",
		Bookmarks: []model.Bookmark{bm("b2", "https://b.com/", "B", "other", 20, 0)},
		History:   []model.HistoryEntry{hist("h1", "https://b.com/", "other", 2, 5, 9)},
		Logins:    []model.Login{login("l1", "b.com", "bob", "other", 7, 3)},
	}

	res := mustMerge(t, target, []*model.Dataset{src}, testConfig(model.KeepNewest))
	if !res.Success {
		t.Fatalf("success = false, errors = %v", res.Errors)
	}
	if res.TotalMerged != 3 || res.TotalConflicts != 0 {
		t.Errorf("totals = %d merged / %d conflicts, want 3/0", res.TotalMerged, res.TotalConflicts)
	}
	if len(target.Bookmarks) != 2 || len(target.History) != 1 || len(target.Logins) != 1 {
		t.Errorf("target sizes = %d/%d/%d", len(target.Bookmarks), len(target.History), len(target.Logins))
	}
	var added *model.Bookmark
	for i := range target.Bookmarks {
		if target.Bookmarks[i].ID == "b2" {
			added = &target.Bookmarks[i]
		}
	}
	if added == nil {
		t.Fatal("appended bookmark not found")
	}
	if added.SourceProfile != "other" || added.SourceBrowser != model.FamilyFirefox {
		t.Error("provenance fields lost on append")
	}
	if len(added.MergedFrom) != 1 || added.MergedFrom[0] != "other" {
		t.Errorf("MergedFrom = %v, want [other]", added.MergedFrom)
	}
}

func TestMerge_HistoryCombinesVisits(t *testing.T) {
	// Same URL in target and source: counts sum, the visit window widens.
	target := &model.Dataset{
		Profile: "main",
		History: []model.HistoryEntry{hist("h1", "https://a.com", "main", 3, 100, 1000)},
	}
	src := &model.Dataset{
		Profile: "other",
		History: []model.HistoryEntry{hist("h2", "https://a.com", "other", 2, 50, 2000)},
	}

	res := mustMerge(t, target, []*model.Dataset{src}, testConfig(model.KeepNewest))
	if res.Types[model.TypeHistory].Conflicts != 1 {
		t.Errorf("conflicts = %d, want 1", res.Types[model.TypeHistory].Conflicts)
	}
	if len(target.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(target.History))
	}
	h := target.History[0]
	if h.VisitCount != 5 {
		t.Errorf("visitCount = %d, want 5", h.VisitCount)
	}
	if h.LastVisit != 2000 {
		t.Errorf("lastVisit = %d, want 2000", h.LastVisit)
	}
	if h.FirstVisit != 50 {
		t.Errorf("firstVisit = %d, want 50", h.FirstVisit)
	}
	if len(h.MergedFrom) != 1 || h.MergedFrom[0] != "other" {
		t.Errorf("MergedFrom = %v, want [other]", h.MergedFrom)
	}
	if h.SourceProfile != "main" {
		t.Error("combining must keep the existing record's provenance")
	}
}

func TestMerge_HistoryCombinesUnderEveryStrategy(t *testing.T) {
	for _, s := range []model.Strategy{model.KeepNewest, model.KeepOldest, model.KeepMostUsed, model.KeepAll, model.Manual} {
		target := &model.Dataset{
			Profile: "main",
			History: []model.HistoryEntry{hist("h1", "https://a.com", "main", 3, 100, 1000)},
		}
		src := &model.Dataset{
			Profile: "other",
			History: []model.HistoryEntry{hist("h2", "https://a.com", "other", 2, 100, 2000)},
		}
		mustMerge(t, target, []*model.Dataset{src}, testConfig(s))
		if target.History[0].VisitCount != 5 || target.History[0].LastVisit != 2000 {
			t.Errorf("%s: combined to count=%d last=%d, want 5/2000",
				s, target.History[0].VisitCount, target.History[0].LastVisit)
		}
	}
}

func TestMerge_StrategyDecidesReplacement(t *testing.T) {
	cases := []struct {
		strategy model.Strategy
		wantID   string
	}{
		{model.KeepNewest, "incoming"}, // incoming is newer
		{model.KeepOldest, "existing"},
		{model.KeepMostUsed, "existing"}, // existing has more visits
		{model.KeepAll, "existing"},
	}
	for _, tc := range cases {
		target := &model.Dataset{
			Profile:   "main",
			Bookmarks: []model.Bookmark{bm("existing", "https://a.com/", "A", "main", 100, 9)},
		}
		src := &model.Dataset{
			Profile:   "other",
			Bookmarks: []model.Bookmark{bm("incoming", "https://a.com/", "A2", "other", 200, 1)},
		}
		res := mustMerge(t, target, []*model.Dataset{src}, testConfig(tc.strategy))
		if res.Types[model.TypeBookmarks].Conflicts != 1 {
			t.Errorf("%s: conflicts = %d, want 1", tc.strategy, res.Types[model.TypeBookmarks].Conflicts)
		}
		if len(target.Bookmarks) != 1 {
			t.Fatalf("%s: bookmarks = %d, want 1", tc.strategy, len(target.Bookmarks))
		}
		got := target.Bookmarks[0]
		if got.ID != tc.wantID {
			t.Errorf("%s: surviving record = %s, want %s", tc.strategy, got.ID, tc.wantID)
		}
		// Whichever record survives, the other profile appears in its trail.
		wantFrom := "other"
		if tc.wantID == "incoming" {
			wantFrom = "main"
		}
		found := false
		for _, p := range got.MergedFrom {
			if p == wantFrom {
				found = true
			}
		}
		if !found {
			t.Errorf("%s: MergedFrom = %v, want it to contain %q", tc.strategy, got.MergedFrom, wantFrom)
		}
	}
}

func TestMerge_LoginReplacementUsesLastUsed(t *testing.T) {
	target := &model.Dataset{
		Profile: "main",
		Logins:  []model.Login{login("old", "a.com", "bob", "main", 100, 50)},
	}
	src := &model.Dataset{
		Profile: "other",
		Logins:  []model.Login{login("new", "a.com", "bob", "other", 900, 2)},
	}
	mustMerge(t, target, []*model.Dataset{src}, testConfig(model.KeepNewest))
	if len(target.Logins) != 1 || target.Logins[0].ID != "new" {
		t.Fatalf("keep_newest kept %v", target.Logins)
	}

	// keep_most_used prefers the heavily used existing record.
	target = &model.Dataset{
		Profile: "main",
		Logins:  []model.Login{login("old", "a.com", "bob", "main", 100, 50)},
	}
	mustMerge(t, target, []*model.Dataset{src}, testConfig(model.KeepMostUsed))
	if target.Logins[0].ID != "old" {
		t.Errorf("keep_most_used kept %s, want old", target.Logins[0].ID)
	}
}

func TestMerge_ManualNeverAutoResolves(t *testing.T) {
	target := &model.Dataset{
		Profile:   "main",
		Bookmarks: []model.Bookmark{bm("existing", "https://a.com/", "A", "main", 100, 0)},
	}
	src := &model.Dataset{
		Profile:   "other",
		Bookmarks: []model.Bookmark{bm("incoming", "https://a.com/", "B", "other", 200, 0)},
	}
	res := mustMerge(t, target, []*model.Dataset{src}, testConfig(model.Manual))

	if target.Bookmarks[0].ID != "existing" {
		t.Error("manual strategy must not replace the existing record")
	}
	if len(res.RequiresReview) != 1 {
		t.Fatalf("requires review = %v, want one entry", res.RequiresReview)
	}
	if res.Success {
		t.Error("unresolved conflicts must not report success")
	}
	found := false
	for _, e := range res.Errors {
		if strings.Contains(e, "ambiguous_conflict") {
			found = true
		}
	}
	if !found {
		t.Errorf("errors = %v, want an ambiguous_conflict entry", res.Errors)
	}
}

func TestMerge_SelfMergeKeepAllIsStable(t *testing.T) {
	target := &model.Dataset{
		Profile: "main",
		Bookmarks: []model.Bookmark{
			bm("b1", "https://a.com/", "A", "main", 10, 1),
			bm("b2", "https://b.com/", "B", "main", 20, 2),
		},
		History: []model.HistoryEntry{hist("h1", "https://a.com/", "main", 3, 10, 99)},
		Logins:  []model.Login{login("l1", "a.com", "bob", "main", 5, 1)},
	}
	self := target.Clone()

	res := mustMerge(t, target, []*model.Dataset{self}, testConfig(model.KeepAll))
	if !res.Success {
		t.Fatalf("errors = %v", res.Errors)
	}
	if res.TotalMerged != 0 {
		t.Errorf("self-merge appended %d records, want 0", res.TotalMerged)
	}
	for _, dt := range []model.DataType{model.TypeBookmarks, model.TypeHistory, model.TypeLogins} {
		if before, after := self.UniqueKeys(dt), target.UniqueKeys(dt); before != after {
			t.Errorf("%s: unique keys changed %d -> %d", dt, before, after)
		}
	}
	if target.History[0].VisitCount != 3 {
		t.Errorf("self-merge changed visit count to %d", target.History[0].VisitCount)
	}
	if len(target.Bookmarks) != 2 {
		t.Errorf("bookmarks grew to %d", len(target.Bookmarks))
	}
}

func TestMerge_RepeatedMergeIsIdempotent(t *testing.T) {
	src := &model.Dataset{
		Profile: "other",
		Bookmarks: []model.Bookmark{
			bm("b1", "https://a.com/", "A", "other", 10, 0),
			bm("b2", "https://b.com/", "B", "other", 20, 0),
		},
		History: []model.HistoryEntry{hist("h1", "https://a.com/", "other", 4, 1, 50)},
	}
	target := &model.Dataset{Profile: "main"}

	first := mustMerge(t, target, []*model.Dataset{src}, testConfig(model.KeepNewest))
	if first.TotalMerged != 3 {
		t.Fatalf("first merge added %d, want 3", first.TotalMerged)
	}
	bookmarksAfterFirst := len(target.Bookmarks)

	second := mustMerge(t, target, []*model.Dataset{src}, testConfig(model.KeepNewest))
	if second.TotalMerged != 0 {
		t.Errorf("second merge appended %d records, want 0", second.TotalMerged)
	}
	if len(target.Bookmarks) != bookmarksAfterFirst {
		t.Errorf("bookmarks grew on re-merge: %d -> %d", bookmarksAfterFirst, len(target.Bookmarks))
	}
	if got := target.UniqueKeys(model.TypeBookmarks); got != len(target.Bookmarks) {
		t.Errorf("duplicate identity keys after re-merge: %d unique of %d", got, len(target.Bookmarks))
	}
}

func TestMerge_CollapsesDirtyTarget(t *testing.T) {
	// A target damaged by an earlier push-based merge carries duplicate
	// keys; merging must fold them even with no sources.
	target := &model.Dataset{
		Profile: "main",
		Bookmarks: []model.Bookmark{
			bm("b1", "https://a.com/", "A", "main", 10, 0),
			bm("b2", "https://a.com", "A copy", "main", 99, 0),
		},
	}
	res := mustMerge(t, target, nil, testConfig(model.KeepNewest))
	if len(target.Bookmarks) != 1 {
		t.Fatalf("bookmarks = %d, want 1", len(target.Bookmarks))
	}
	if target.Bookmarks[0].ID != "b2" {
		t.Errorf("keep_newest kept %s, want the newer b2", target.Bookmarks[0].ID)
	}
	if res.Types[model.TypeBookmarks].Conflicts != 1 {
		t.Errorf("conflicts = %d, want 1", res.Types[model.TypeBookmarks].Conflicts)
	}
}

func TestMerge_DryRunMatchesRealCounts(t *testing.T) {
	build := func() (*model.Dataset, []*model.Dataset) {
		target := &model.Dataset{
			Profile:   "main",
			Bookmarks: []model.Bookmark{bm("b1", "https://a.com/", "A", "main", 10, 0)},
			History:   []model.HistoryEntry{hist("h1", "https://a.com/", "main", 3, 1, 10)},
		}
		sources := []*model.Dataset{{
			Profile: "other",
			Bookmarks: []model.Bookmark{
				bm("b2", "https://a.com/", "A2", "other", 20, 0),
				bm("b3", "https://c.com/", "C", "other", 30, 0),
			},
			History: []model.HistoryEntry{hist("h2", "https://a.com/", "other", 2, 1, 20)},
			Logins:  []model.Login{login("l1", "a.com", "bob", "other", 10, 1)},
		}}
		return target, sources
	}

	dryTarget, drySources := build()
	before, err := json.Marshal(dryTarget)
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(model.KeepNewest)
	cfg.DryRun = true
	dryRes := mustMerge(t, dryTarget, drySources, cfg)

	after, err := json.Marshal(dryTarget)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("dry run mutated the target dataset")
	}

	realTarget, realSources := build()
	realRes := mustMerge(t, realTarget, realSources, testConfig(model.KeepNewest))

	if dryRes.TotalMerged != realRes.TotalMerged || dryRes.TotalConflicts != realRes.TotalConflicts {
		t.Errorf("dry run counted %d/%d, real merge %d/%d",
			dryRes.TotalMerged, dryRes.TotalConflicts, realRes.TotalMerged, realRes.TotalConflicts)
	}
	for dt, dry := range dryRes.Types {
		real := realRes.Types[dt]
		if real == nil || dry.Merged != real.Merged || dry.Conflicts != real.Conflicts {
			t.Errorf("%s: dry %+v vs real %+v", dt, dry, real)
		}
	}
	if !dryRes.DryRun || realRes.DryRun {
		t.Error("dry_run flag not carried into the result")
	}
}

func TestMerge_UnsupportedTypesReportNote(t *testing.T) {
	cfg := testConfig(model.KeepNewest)
	cfg.DataTypes = []model.DataType{model.TypeCookies, model.TypeBookmarks}
	target := &model.Dataset{Profile: "main"}
	res := mustMerge(t, target, nil, cfg)

	if !res.Success {
		t.Errorf("unsupported types must not fail the merge: %v", res.Errors)
	}
	stats := res.Types[model.TypeCookies]
	if stats == nil {
		t.Fatal("cookies missing from result")
	}
	if stats.Merged != 0 || stats.Conflicts != 0 {
		t.Errorf("cookies counted %d/%d, want zeros", stats.Merged, stats.Conflicts)
	}
	if !strings.Contains(stats.Note, "not yet implemented") {
		t.Errorf("note = %q", stats.Note)
	}
}

func TestMerge_MissingTargetIsFatal(t *testing.T) {
	_, err := NewEngine(nil).Merge(context.Background(), nil, nil, testConfig(model.KeepNewest))
	if err == nil {
		t.Fatal("expected error")
	}
	if model.KindOf(err) != model.ErrTargetMissing {
		t.Errorf("kind = %v, want %v", model.KindOf(err), model.ErrTargetMissing)
	}
}

func TestMerge_InvalidConfigIsFatal(t *testing.T) {
	cfg := testConfig("coin_flip")
	_, err := NewEngine(nil).Merge(context.Background(), &model.Dataset{}, nil, cfg)
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestMerge_CancelledBeforeTypeBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	target := &model.Dataset{
		Profile:   "main",
		Bookmarks: []model.Bookmark{bm("b1", "https://a.com/", "A", "main", 10, 0)},
	}
	src := &model.Dataset{
		Profile:   "other",
		Bookmarks: []model.Bookmark{bm("b2", "https://b.com/", "B", "other", 20, 0)},
	}
	res, err := NewEngine(nil).Merge(ctx, target, []*model.Dataset{src}, testConfig(model.KeepNewest))
	if err == nil {
		t.Fatal("expected context error")
	}
	if res == nil {
		t.Fatal("result must survive cancellation")
	}
	if res.Success {
		t.Error("cancelled merge must not report success")
	}
	// No type started, so the target is untouched.
	if len(target.Bookmarks) != 1 {
		t.Errorf("target mutated by cancelled merge: %d bookmarks", len(target.Bookmarks))
	}
}

func TestMerge_SourcesProcessedInOrder(t *testing.T) {
	// With keep_newest and equal timestamps, the first source to claim a key
	// wins; later sources tie and lose.
	target := &model.Dataset{Profile: "main"}
	srcA := &model.Dataset{
		Profile:   "alpha",
		Bookmarks: []model.Bookmark{bm("fromA", "https://a.com/", "A", "alpha", 100, 0)},
	}
	srcB := &model.Dataset{
		Profile:   "beta",
		Bookmarks: []model.Bookmark{bm("fromB", "https://a.com/", "A", "beta", 100, 0)},
	}
	mustMerge(t, target, []*model.Dataset{srcA, srcB}, testConfig(model.KeepNewest))
	if len(target.Bookmarks) != 1 || target.Bookmarks[0].ID != "fromA" {
		t.Errorf("tie settled on %v, want first-encountered fromA", target.Bookmarks)
	}
}
