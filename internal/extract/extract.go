// Package extract turns browser profile stores into universal records.
//
// One extractor exists per browser family:
//   - firefox:  places.sqlite (bookmarks, history), logins.json (logins)
//   - chromium: Bookmarks JSON, History database, Login Data database
//   - netscape: bookmarks.html export (bookmarks only)
//
// SQLite stores are copied out of the profile before being opened, checked
// for corruption, and routed through recovery when the check fails. A
// malformed record never aborts its batch; it is skipped and counted.
package extract

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/demispk444/profilemerge/internal/model"
	"github.com/demispk444/profilemerge/internal/recovery"
	"github.com/demispk444/profilemerge/internal/source"
)

// Extractor reads profiles into datasets.
type Extractor struct {
	logger *slog.Logger
}

// New creates an Extractor. A nil logger disables logging.
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{logger: logger}
}

// profileSource is the per-family view over one profile's stores.
type profileSource interface {
	bookmarks(ctx context.Context) ([]model.Bookmark, []string, error)
	history(ctx context.Context) ([]model.HistoryEntry, []string, error)
	logins(ctx context.Context) ([]model.Login, []string, error)
}

// Profile extracts the requested data types from one profile. Per-type
// failures become dataset warnings; only an unusable profile or a cancelled
// context aborts. Corruption recovery reports are returned alongside the
// dataset so callers can render loss details.
func (e *Extractor) Profile(ctx context.Context, prof *model.SourceProfile, types []model.DataType) (*model.Dataset, []recovery.Report, error) {
	if prof == nil || !prof.IsValid {
		name := "(nil)"
		if prof != nil {
			name = prof.Name
		}
		return nil, nil, model.NewError(model.ErrSourceUnavailable, nil, "profile %s failed validation", name)
	}
	r, err := source.NewDirReader(prof.Path)
	if err != nil {
		return nil, nil, model.NewError(model.ErrSourceUnavailable, err, "profile %s", prof.Name)
	}
	tmp, err := os.MkdirTemp("", "profilemerge-")
	if err != nil {
		return nil, nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	var reports []recovery.Report
	opener := &dbOpener{r: r, tmp: tmp, logger: e.logger, reports: &reports}

	var src profileSource
	switch prof.Browser {
	case model.FamilyFirefox:
		src = &firefoxExtractor{opener: opener, profile: prof.Name}
	case model.FamilyChromium:
		src = &chromiumExtractor{opener: opener, profile: prof.Name}
	case model.FamilyNetscape:
		src = &netscapeExtractor{r: r, profile: prof.Name}
	default:
		return nil, nil, model.NewError(model.ErrSourceUnavailable, nil,
			"profile %s: unknown browser family %q", prof.Name, prof.Browser)
	}

	ds := &model.Dataset{Profile: prof.Name, Browser: prof.Browser}
	for _, t := range model.ExpandTypes(types) {
		if err := ctx.Err(); err != nil {
			return nil, reports, err
		}
		if !t.Implemented() {
			ds.Warnings = append(ds.Warnings, fmt.Sprintf("%s extraction not implemented; skipped", t))
			continue
		}
		var warns []string
		var terr error
		switch t {
		case model.TypeBookmarks:
			ds.Bookmarks, warns, terr = src.bookmarks(ctx)
		case model.TypeHistory:
			ds.History, warns, terr = src.history(ctx)
		case model.TypeLogins:
			ds.Logins, warns, terr = src.logins(ctx)
		}
		ds.Warnings = append(ds.Warnings, warns...)
		if terr != nil {
			if ctx.Err() != nil {
				return nil, reports, ctx.Err()
			}
			e.logger.Error("extraction failed",
				"profile", prof.Name, "type", t, "error", terr)
			ds.Warnings = append(ds.Warnings, fmt.Sprintf("%s extraction failed: %v", t, terr))
			continue
		}
		e.logger.Info("extracted records",
			"profile", prof.Name, "type", t, "count", ds.Count(t))
	}
	return ds, reports, nil
}

// dbOpener copies a profile database aside, checks it, and opens either the
// copy or its recovered rebuild.
type dbOpener struct {
	r       source.Reader
	tmp     string
	logger  *slog.Logger
	reports *[]recovery.Report
}

// open returns a readable handle for the named database, or nil with
// warnings when the store is missing or beyond recovery. Errors are
// reserved for unexpected conditions.
func (o *dbOpener) open(ctx context.Context, name string, expects []recovery.Expectation) (*sql.DB, []string, error) {
	if !o.r.Exists(name) {
		return nil, []string{fmt.Sprintf("%s not present in profile", name)}, nil
	}
	path, err := source.CopyDatabase(o.r, name, o.tmp)
	if err != nil {
		return nil, nil, model.NewError(model.ErrSourceUnavailable, err, "stage %s", name)
	}
	verdict, err := recovery.Check(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	if verdict.Healthy() {
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", name, err)
		}
		return db, nil, nil
	}

	o.logger.Warn("database failed integrity check",
		"file", name, "class", verdict.Class, "recoverable", verdict.Recoverable)
	res, rerr := recovery.Recover(ctx, o.logger, path, verdict)
	if res != nil {
		rep := res.Report
		rep.Path = o.r.Path(name)
		o.addReport(rep)
	}
	if rerr != nil {
		return nil, []string{fmt.Sprintf("%s lost to corruption: %v", name, rerr)}, nil
	}
	warns := recovery.ValidateRecovered(ctx, res.Path, expects)
	for i, w := range warns {
		warns[i] = fmt.Sprintf("%s: %s", name, w)
	}
	db, err := sql.Open("sqlite", res.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open recovered %s: %w", name, err)
	}
	warns = append(warns, fmt.Sprintf("%s was corrupted (%s); continuing with recovered copy", name, verdict.Class))
	return db, warns, nil
}

// addReport records one recovery report per source file; bookmark and
// history extraction stage the same database independently.
func (o *dbOpener) addReport(rep recovery.Report) {
	for _, r := range *o.reports {
		if r.Path == rep.Path {
			return
		}
	}
	*o.reports = append(*o.reports, rep)
}
