// Package dedup finds near-identical records inside a dataset. History and
// login duplicates are exact matches on their identity keys; bookmarks go
// through pairwise URL and title comparison, with matching pairs clustered
// into groups by union-find. Analysis is read-only over its input.
package dedup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/demispk444/profilemerge/internal/config"
	"github.com/demispk444/profilemerge/internal/model"
)

// moderateConfidence is assigned to bookmark groups with more than two
// members, where no single pair score describes the whole cluster.
const moderateConfidence = 0.85

// loginConfidence reflects that a (domain, username) collision is
// near-certain duplication even when the stored payloads differ.
const loginConfidence = 0.95

// Analysis is the outcome of duplicate detection over one dataset.
type Analysis struct {
	Groups []model.DuplicateGroup `json:"groups,omitempty"`
	// PotentialMerges is the number of groups, each collapsing to one record.
	PotentialMerges int `json:"potential_merges"`
	// EstimatedReduction is how many records a full cleanup would remove.
	EstimatedReduction int `json:"estimated_reduction"`
	// RequiresUserReview counts groups that must not be resolved silently:
	// every group when auto-approval is off, otherwise those scoring below
	// the review threshold.
	RequiresUserReview int `json:"requires_user_review"`
}

// Deduplicator analyzes datasets for duplicate records.
type Deduplicator struct {
	logger *slog.Logger
}

// New creates a Deduplicator. A nil logger disables logging.
func New(logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Deduplicator{logger: logger}
}

// Analyze groups duplicates of every selected data type. The three types are
// independent and run concurrently; the input dataset is never modified.
func (d *Deduplicator) Analyze(ctx context.Context, ds *model.Dataset, cfg *config.Config) (*Analysis, error) {
	if ds == nil {
		return nil, fmt.Errorf("analyze: nil dataset")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	selected := map[model.DataType]bool{}
	for _, t := range cfg.Types() {
		selected[t] = true
	}

	var bookmarkGroups, historyGroups, loginGroups []model.DuplicateGroup
	g, gctx := errgroup.WithContext(ctx)
	if selected[model.TypeBookmarks] {
		g.Go(func() error {
			var err error
			bookmarkGroups, err = d.bookmarkGroups(gctx, ds.Bookmarks, cfg)
			return err
		})
	}
	if selected[model.TypeHistory] {
		g.Go(func() error {
			historyGroups = d.historyGroups(ds.History, cfg)
			return nil
		})
	}
	if selected[model.TypeLogins] {
		g.Go(func() error {
			loginGroups = d.loginGroups(ds.Logins, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a := &Analysis{}
	a.Groups = append(a.Groups, bookmarkGroups...)
	a.Groups = append(a.Groups, historyGroups...)
	a.Groups = append(a.Groups, loginGroups...)
	for _, grp := range a.Groups {
		a.PotentialMerges++
		a.EstimatedReduction += len(grp.Members) - 1
		if !cfg.AutoApproveHighConfidence || grp.Confidence < cfg.ReviewThreshold {
			a.RequiresUserReview++
		}
	}
	d.logger.Info("duplicate analysis complete",
		"profile", ds.Profile,
		"groups", len(a.Groups),
		"reduction", a.EstimatedReduction,
		"needs_review", a.RequiresUserReview)
	return a, nil
}

// historyGroups does exact grouping by normalized URL. Identical keys are
// duplicates by definition, so confidence is 1.0.
func (d *Deduplicator) historyGroups(entries []model.HistoryEntry, cfg *config.Config) []model.DuplicateGroup {
	byKey := map[string][]int{}
	var order []string
	for i, h := range entries {
		key := h.IdentityKey()
		if len(byKey[key]) == 0 {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], i)
	}

	var groups []model.DuplicateGroup
	for _, key := range order {
		idxs := byKey[key]
		if len(idxs) < 2 {
			continue
		}
		members := make([]model.Record, len(idxs))
		keep := 0
		for n, i := range idxs {
			members[n] = entries[i]
			if n > 0 && model.Prefer(cfg.ConflictResolution,
				entries[i].LastVisit, entries[idxs[keep]].LastVisit,
				entries[i].VisitCount, entries[idxs[keep]].VisitCount) {
				keep = n
			}
		}
		groups = append(groups, model.DuplicateGroup{
			ID:            model.NewID(),
			Type:          model.TypeHistory,
			Members:       members,
			Confidence:    1.0,
			Reason:        fmt.Sprintf("%d history entries share the URL %s", len(idxs), key),
			SuggestedKeep: keep,
		})
	}
	return groups
}

// loginGroups does exact grouping by (domain, username).
func (d *Deduplicator) loginGroups(logins []model.Login, cfg *config.Config) []model.DuplicateGroup {
	byKey := map[string][]int{}
	var order []string
	for i, l := range logins {
		key := l.IdentityKey()
		if len(byKey[key]) == 0 {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], i)
	}

	var groups []model.DuplicateGroup
	for _, key := range order {
		idxs := byKey[key]
		if len(idxs) < 2 {
			continue
		}
		members := make([]model.Record, len(idxs))
		keep := 0
		for n, i := range idxs {
			members[n] = logins[i]
			if n > 0 && model.Prefer(cfg.ConflictResolution,
				logins[i].DateLastUsed, logins[idxs[keep]].DateLastUsed,
				logins[i].TimesUsed, logins[idxs[keep]].TimesUsed) {
				keep = n
			}
		}
		groups = append(groups, model.DuplicateGroup{
			ID:            model.NewID(),
			Type:          model.TypeLogins,
			Members:       members,
			Confidence:    loginConfidence,
			Reason:        fmt.Sprintf("%d saved logins for the same account on %s", len(idxs), logins[idxs[0]].Domain),
			SuggestedKeep: keep,
		})
	}
	return groups
}

// bookmarkPair records why two bookmarks matched.
type bookmarkPair struct {
	j        int
	urlSim   float64
	titleSim float64
}

// bookmarkGroups compares every not-yet-grouped pair of bookmarks. The
// comparison matrix is split across workers by outer index; each worker
// writes only its own row, so results stay deterministic without locking.
func (d *Deduplicator) bookmarkGroups(ctx context.Context, bookmarks []model.Bookmark, cfg *config.Config) ([]model.DuplicateGroup, error) {
	n := len(bookmarks)
	if n < 2 {
		return nil, nil
	}

	matches := make([][]bookmarkPair, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < n-1; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a := bookmarks[i]
			for j := i + 1; j < n; j++ {
				b := bookmarks[j]
				urlSim := URLSimilarity(a.URL, b.URL)
				titleSim := Similarity(a.Title, b.Title)
				if urlSim >= cfg.URLSimilarityThreshold ||
					(titleSim >= cfg.TitleSimilarityThreshold && urlSim > 0.7) {
					matches[i] = append(matches[i], bookmarkPair{j: j, urlSim: urlSim, titleSim: titleSim})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Cluster matched pairs into connected components.
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i, row := range matches {
		for _, p := range row {
			ri, rj := find(i), find(p.j)
			if ri != rj {
				parent[rj] = ri
			}
		}
	}

	byRoot := map[int][]int{}
	var roots []int
	for i := 0; i < n; i++ {
		r := find(i)
		if len(byRoot[r]) == 0 {
			roots = append(roots, r)
		}
		byRoot[r] = append(byRoot[r], i)
	}

	var groups []model.DuplicateGroup
	for _, r := range roots {
		idxs := byRoot[r]
		if len(idxs) < 2 {
			continue
		}
		members := make([]model.Record, len(idxs))
		keep := 0
		for m, i := range idxs {
			members[m] = bookmarks[i]
			if m > 0 && model.Prefer(cfg.ConflictResolution,
				bookmarks[i].DateAdded, bookmarks[idxs[keep]].DateAdded,
				bookmarks[i].VisitCount, bookmarks[idxs[keep]].VisitCount) {
				keep = m
			}
		}
		groups = append(groups, model.DuplicateGroup{
			ID:            model.NewID(),
			Type:          model.TypeBookmarks,
			Members:       members,
			Confidence:    bookmarkConfidence(bookmarks, idxs),
			Reason:        bookmarkReason(bookmarks, idxs),
			SuggestedKeep: keep,
		})
	}
	return groups, nil
}

// bookmarkConfidence scores a group: for a pair, the better of its URL and
// title similarity; larger clusters get a fixed moderate score.
func bookmarkConfidence(bookmarks []model.Bookmark, idxs []int) float64 {
	if len(idxs) != 2 {
		return moderateConfidence
	}
	a, b := bookmarks[idxs[0]], bookmarks[idxs[1]]
	urlSim := URLSimilarity(a.URL, b.URL)
	titleSim := Similarity(a.Title, b.Title)
	if titleSim > urlSim {
		return titleSim
	}
	return urlSim
}

func bookmarkReason(bookmarks []model.Bookmark, idxs []int) string {
	if len(idxs) > 2 {
		return fmt.Sprintf("%d bookmarks with similar URLs or titles", len(idxs))
	}
	a, b := bookmarks[idxs[0]], bookmarks[idxs[1]]
	urlSim := URLSimilarity(a.URL, b.URL)
	switch {
	case urlSim == 1.0:
		return "identical URLs"
	case urlSim >= 0.95:
		return "same URL after normalization"
	case urlSim >= 0.8:
		return "one URL contains the other"
	default:
		return fmt.Sprintf("similar titles (%q vs %q)", a.Title, b.Title)
	}
}
