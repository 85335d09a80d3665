package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/demispk444/profilemerge/internal/dedup"
	"github.com/demispk444/profilemerge/internal/merge"
	"github.com/demispk444/profilemerge/internal/model"
)

func sampleResult() *merge.Result {
	return &merge.Result{
		Success:  true,
		Strategy: model.KeepNewest,
		Types: map[model.DataType]*merge.TypeStats{
			model.TypeBookmarks: {Merged: 5, Conflicts: 2},
			model.TypeHistory:   {Merged: 10, Conflicts: 0},
			model.TypeCookies:   {Note: "not yet implemented"},
		},
		TotalMerged:    15,
		TotalConflicts: 2,
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteJSON(path, sampleResult()); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var back merge.Result
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if back.TotalMerged != 15 || back.Types[model.TypeBookmarks].Conflicts != 2 {
		t.Errorf("round trip lost data: %+v", back)
	}
	if !bytes.Contains(data, []byte("\n  ")) {
		t.Error("report should be indented")
	}
}

func TestMergeCSV_StableOrderAndTotals(t *testing.T) {
	var buf bytes.Buffer
	if err := MergeCSV(&buf, sampleResult()); err != nil {
		t.Fatalf("MergeCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	// header + bookmarks + history + cookies + total
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want 5: %v", len(rows), rows)
	}
	if rows[0][0] != "data_type" {
		t.Errorf("header = %v", rows[0])
	}
	// Canonical ordering puts bookmarks before history before cookies.
	if rows[1][0] != "bookmarks" || rows[2][0] != "history" || rows[3][0] != "cookies" {
		t.Errorf("type order = %s, %s, %s", rows[1][0], rows[2][0], rows[3][0])
	}
	if rows[1][1] != "5" || rows[1][2] != "2" {
		t.Errorf("bookmarks row = %v", rows[1])
	}
	if rows[3][3] != "not yet implemented" {
		t.Errorf("cookies note = %q", rows[3][3])
	}
	last := rows[len(rows)-1]
	if last[0] != "total" || last[1] != "15" || last[2] != "2" {
		t.Errorf("total row = %v", last)
	}
}

func TestAnalysisCSV(t *testing.T) {
	a := &dedup.Analysis{
		Groups: []model.DuplicateGroup{
			{
				ID:   "g1",
				Type: model.TypeBookmarks,
				Members: []model.Record{
					model.Bookmark{ID: "b1", URL: "https://a.com/"},
					model.Bookmark{ID: "b2", URL: "https://a.com"},
				},
				Confidence:    0.95,
				Reason:        "Same URL after normalization",
				SuggestedKeep: 1,
			},
		},
		PotentialMerges: 1,
	}
	var buf bytes.Buffer
	if err := AnalysisCSV(&buf, a); err != nil {
		t.Fatalf("AnalysisCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	row := rows[1]
	if row[0] != "g1" || row[1] != "bookmarks" || row[2] != "2" {
		t.Errorf("group row = %v", row)
	}
	if row[3] != "0.95" {
		t.Errorf("confidence = %q", row[3])
	}
	if row[5] != "b2" {
		t.Errorf("suggested_keep = %q, want b2", row[5])
	}
}

func TestWriteMergeCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	if err := WriteMergeCSV(path, sampleResult()); err != nil {
		t.Fatalf("WriteMergeCSV: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil || len(rows) < 2 {
		t.Fatalf("unexpected file contents: rows=%v err=%v", rows, err)
	}
}
