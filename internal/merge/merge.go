// Package merge applies source datasets onto a target dataset under a
// conflict-resolution strategy.
//
// The engine is built around upsert-by-identity-key: every record type keeps
// an index from identity key to position, and incoming records either append
// or resolve against the record already holding their key. Records are never
// blindly pushed, so re-running a merge cannot re-introduce duplicates. Each
// data type is processed on a working copy committed at the type boundary;
// a dry run computes identical statistics and discards the copy.
//
// The target dataset is exclusively owned by the engine for the duration of
// one Merge call. Source datasets are read-only throughout.
package merge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/demispk444/profilemerge/internal/config"
	"github.com/demispk444/profilemerge/internal/model"
)

// TypeStats counts what one data type contributed to a merge.
type TypeStats struct {
	// Merged is the number of records appended under a new identity key.
	Merged int `json:"merged"`
	// Conflicts is the number of identity-key collisions encountered.
	Conflicts int `json:"conflicts"`
	Note      string `json:"note,omitempty"`
}

// Result is the outcome of one merge invocation.
type Result struct {
	Success        bool                          `json:"success"`
	DryRun         bool                          `json:"dry_run"`
	Strategy       model.Strategy                `json:"strategy"`
	Types          map[model.DataType]*TypeStats `json:"types"`
	TotalMerged    int                           `json:"total_merged"`
	TotalConflicts int                           `json:"total_conflicts"`
	// RequiresReview lists conflicts the manual strategy refused to resolve.
	RequiresReview []string `json:"requires_review,omitempty"`
	Errors         []string `json:"errors,omitempty"`
	ElapsedMS      int64    `json:"elapsed_ms"`
}

// Engine merges datasets.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an Engine. A nil logger disables logging.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{logger: logger}
}

// Merge folds every source dataset into target for the selected data types.
// A missing target or invalid configuration is fatal; everything else
// accumulates in the result. Cancellation is honored between data types,
// never inside one: the result and ctx.Err() are both returned so completed
// types stay reported.
func (e *Engine) Merge(ctx context.Context, target *model.Dataset, sources []*model.Dataset, cfg *config.Config) (*Result, error) {
	if target == nil {
		return nil, model.NewError(model.ErrTargetMissing, nil, "merge requires a resolvable target dataset")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	res := &Result{
		DryRun:   cfg.DryRun,
		Strategy: cfg.ConflictResolution,
		Types:    map[model.DataType]*TypeStats{},
	}

	for _, t := range cfg.Types() {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("merge aborted before %s: %v", t, err))
			break
		}
		if !t.Implemented() {
			res.Types[t] = &TypeStats{Note: "not yet implemented"}
			e.logger.Info("data type skipped", "type", t, "reason", "not yet implemented")
			continue
		}
		var stats *TypeStats
		switch t {
		case model.TypeBookmarks:
			stats = e.mergeBookmarks(target, sources, cfg, res)
		case model.TypeHistory:
			stats = e.mergeHistory(target, sources, cfg, res)
		case model.TypeLogins:
			stats = e.mergeLogins(target, sources, cfg, res)
		}
		res.Types[t] = stats
		e.logger.Info("data type merged",
			"type", t, "merged", stats.Merged, "conflicts", stats.Conflicts, "dry_run", cfg.DryRun)
	}

	for _, stats := range res.Types {
		res.TotalMerged += stats.Merged
		res.TotalConflicts += stats.Conflicts
	}
	res.Success = len(res.Errors) == 0
	res.ElapsedMS = time.Since(start).Milliseconds()
	return res, ctx.Err()
}

func (e *Engine) mergeBookmarks(target *model.Dataset, sources []*model.Dataset, cfg *config.Config, res *Result) *TypeStats {
	stats := &TypeStats{}
	working := make([]model.Bookmark, 0, len(target.Bookmarks))
	index := make(map[string]int, len(target.Bookmarks))
	pending := 0

	upsert := func(b model.Bookmark, fromProfile string, isSource bool) {
		key := b.IdentityKey()
		pos, ok := index[key]
		if !ok {
			index[key] = len(working)
			if isSource {
				working = append(working, model.CloneBookmark(b, fromProfile))
				stats.Merged++
			} else {
				working = append(working, model.CloneBookmark(b, ""))
			}
			return
		}
		stats.Conflicts++
		existing := working[pos]
		if b.ID != "" && b.ID == existing.ID {
			// The same record arriving twice; nothing to decide.
			return
		}
		if cfg.ConflictResolution == model.Manual {
			pending++
			res.RequiresReview = append(res.RequiresReview, fmt.Sprintf(
				"bookmarks %q: record from %s conflicts with existing record from %s",
				key, b.SourceProfile, existing.SourceProfile))
			return
		}
		if model.Prefer(cfg.ConflictResolution, b.DateAdded, existing.DateAdded, b.VisitCount, existing.VisitCount) {
			repl := model.CloneBookmark(b, fromProfile)
			repl.MergedFrom = absorb(repl.MergedFrom, repl.SourceProfile, existing.SourceProfile, existing.MergedFrom)
			working[pos] = repl
			return
		}
		working[pos].MergedFrom = absorb(existing.MergedFrom, existing.SourceProfile, b.SourceProfile, b.MergedFrom)
	}

	// Fold the target's own records first so a dirty target cannot carry
	// duplicate identity keys through the merge.
	for _, b := range target.Bookmarks {
		upsert(b, "", false)
	}
	for _, src := range sources {
		if src == nil {
			continue
		}
		for _, b := range src.Bookmarks {
			upsert(b, src.Profile, true)
		}
	}

	if pending > 0 {
		res.Errors = append(res.Errors, model.NewError(model.ErrAmbiguousConflict, nil,
			"%d bookmark conflicts require manual review", pending).Error())
	}
	if !cfg.DryRun {
		target.Bookmarks = working
	}
	return stats
}

func (e *Engine) mergeHistory(target *model.Dataset, sources []*model.Dataset, cfg *config.Config, res *Result) *TypeStats {
	stats := &TypeStats{}
	working := make([]model.HistoryEntry, 0, len(target.History))
	index := make(map[string]int, len(target.History))

	// History never replaces wholesale: colliding entries combine by summing
	// visit counts and widening the visit window, under every strategy.
	upsert := func(h model.HistoryEntry, fromProfile string, isSource bool) {
		key := h.IdentityKey()
		pos, ok := index[key]
		if !ok {
			index[key] = len(working)
			if isSource {
				working = append(working, model.CloneHistoryEntry(h, fromProfile))
				stats.Merged++
			} else {
				working = append(working, model.CloneHistoryEntry(h, ""))
			}
			return
		}
		stats.Conflicts++
		ex := &working[pos]
		if h.ID != "" && h.ID == ex.ID {
			// The same record arriving twice is not independent evidence;
			// summing its counts into itself would double them.
			return
		}
		ex.VisitCount += h.VisitCount
		if h.LastVisit > ex.LastVisit {
			ex.LastVisit = h.LastVisit
		}
		if ex.FirstVisit == 0 || (h.FirstVisit > 0 && h.FirstVisit < ex.FirstVisit) {
			ex.FirstVisit = h.FirstVisit
		}
		ex.MergedFrom = absorb(ex.MergedFrom, ex.SourceProfile, h.SourceProfile, h.MergedFrom)
	}

	for _, h := range target.History {
		upsert(h, "", false)
	}
	for _, src := range sources {
		if src == nil {
			continue
		}
		for _, h := range src.History {
			upsert(h, src.Profile, true)
		}
	}

	if !cfg.DryRun {
		target.History = working
	}
	return stats
}

func (e *Engine) mergeLogins(target *model.Dataset, sources []*model.Dataset, cfg *config.Config, res *Result) *TypeStats {
	stats := &TypeStats{}
	working := make([]model.Login, 0, len(target.Logins))
	index := make(map[string]int, len(target.Logins))
	pending := 0

	upsert := func(l model.Login, fromProfile string, isSource bool) {
		key := l.IdentityKey()
		pos, ok := index[key]
		if !ok {
			index[key] = len(working)
			if isSource {
				working = append(working, model.CloneLogin(l, fromProfile))
				stats.Merged++
			} else {
				working = append(working, model.CloneLogin(l, ""))
			}
			return
		}
		stats.Conflicts++
		existing := working[pos]
		if l.ID != "" && l.ID == existing.ID {
			return
		}
		if cfg.ConflictResolution == model.Manual {
			pending++
			res.RequiresReview = append(res.RequiresReview, fmt.Sprintf(
				"logins %s@%s: record from %s conflicts with existing record from %s",
				l.Username, l.Domain, l.SourceProfile, existing.SourceProfile))
			return
		}
		if model.Prefer(cfg.ConflictResolution, l.DateLastUsed, existing.DateLastUsed, l.TimesUsed, existing.TimesUsed) {
			repl := model.CloneLogin(l, fromProfile)
			repl.MergedFrom = absorb(repl.MergedFrom, repl.SourceProfile, existing.SourceProfile, existing.MergedFrom)
			working[pos] = repl
			return
		}
		working[pos].MergedFrom = absorb(existing.MergedFrom, existing.SourceProfile, l.SourceProfile, l.MergedFrom)
	}

	for _, l := range target.Logins {
		upsert(l, "", false)
	}
	for _, src := range sources {
		if src == nil {
			continue
		}
		for _, l := range src.Logins {
			upsert(l, src.Profile, true)
		}
	}

	if pending > 0 {
		res.Errors = append(res.Errors, model.NewError(model.ErrAmbiguousConflict, nil,
			"%d login conflicts require manual review", pending).Error())
	}
	if !cfg.DryRun {
		target.Logins = working
	}
	return stats
}

// absorb folds the provenance of a record that lost a conflict into the
// surviving record's trail. The survivor's own profile never appears in its
// own provenance, so merging a dataset into itself changes nothing.
func absorb(survivorTrail []string, survivorProfile, absorbedProfile string, absorbedTrail []string) []string {
	add := make([]string, 0, len(absorbedTrail)+1)
	for _, p := range absorbedTrail {
		if p != survivorProfile {
			add = append(add, p)
		}
	}
	if absorbedProfile != "" && absorbedProfile != survivorProfile {
		add = append(add, absorbedProfile)
	}
	return model.MergeProvenance(survivorTrail, add...)
}
