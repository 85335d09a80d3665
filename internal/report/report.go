// Package report renders merge results and duplicate analyses into the
// machine-readable forms other tools consume: indented JSON for archival
// reports and flat CSV for spreadsheet review.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/demispk444/profilemerge/internal/dedup"
	"github.com/demispk444/profilemerge/internal/merge"
	"github.com/demispk444/profilemerge/internal/model"
)

// WriteJSON writes v as indented JSON to path.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// MergeCSV renders per-type merge statistics as CSV: one row per data
// type in canonical order, then a total row. Row order is stable across
// runs so reports can be diffed.
func MergeCSV(w io.Writer, res *merge.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"data_type", "merged", "conflicts", "note"}); err != nil {
		return err
	}
	for _, dt := range model.ExpandTypes([]model.DataType{model.TypeAll}) {
		stats, ok := res.Types[dt]
		if !ok {
			continue
		}
		row := []string{
			string(dt),
			strconv.Itoa(stats.Merged),
			strconv.Itoa(stats.Conflicts),
			stats.Note,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	total := []string{
		"total",
		strconv.Itoa(res.TotalMerged),
		strconv.Itoa(res.TotalConflicts),
		"",
	}
	if err := cw.Write(total); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// AnalysisCSV renders one row per duplicate group. The suggested_keep
// column carries the record ID of the member the strategy would retain.
func AnalysisCSV(w io.Writer, a *dedup.Analysis) error {
	cw := csv.NewWriter(w)
	header := []string{"group_id", "data_type", "members", "confidence", "reason", "suggested_keep", "identity_key"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, g := range a.Groups {
		keepID, keepKey := "", ""
		if g.SuggestedKeep >= 0 && g.SuggestedKeep < len(g.Members) {
			keepID = g.Members[g.SuggestedKeep].RecordID()
			keepKey = g.Members[g.SuggestedKeep].IdentityKey()
		}
		row := []string{
			g.ID,
			string(g.Type),
			strconv.Itoa(len(g.Members)),
			strconv.FormatFloat(g.Confidence, 'f', 2, 64),
			g.Reason,
			keepID,
			keepKey,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMergeCSV writes the CSV rendering of res to path.
func WriteMergeCSV(path string, res *merge.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := MergeCSV(f, res); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

// WriteAnalysisCSV writes the CSV rendering of a to path.
func WriteAnalysisCSV(path string, a *dedup.Analysis) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := AnalysisCSV(f, a); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
