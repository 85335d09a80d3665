// Package pipeline drives one merge invocation end to end: resolve the
// target, extract the source profiles, and fold them into the target.
//
// Paths are accepted in two shapes. A directory is treated as a browser
// profile: its family is detected from marker files and its stores are
// extracted, routing corrupted databases through recovery. A regular file
// is read as a dataset JSON produced by an earlier scan. The two shapes
// mix freely within one run.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/demispk444/profilemerge/internal/config"
	"github.com/demispk444/profilemerge/internal/extract"
	"github.com/demispk444/profilemerge/internal/merge"
	"github.com/demispk444/profilemerge/internal/model"
	"github.com/demispk444/profilemerge/internal/recovery"
	"github.com/demispk444/profilemerge/internal/source"
)

// Runner owns the shared pieces of a pipeline run.
type Runner struct {
	logger *slog.Logger
}

// New creates a Runner. A nil logger disables logging.
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{logger: logger}
}

// MergeRequest names the inputs of one merge run.
type MergeRequest struct {
	TargetPath  string
	SourcePaths []string
	Config      *config.Config
}

// MergeOutcome carries everything a merge run produced: the mutated
// target dataset, the engine's statistics, recovery reports for every
// corrupted store encountered, and the sources that had to be skipped.
type MergeOutcome struct {
	Target   *model.Dataset
	Result   *merge.Result
	Recovery []recovery.Report
	Skipped  []string
}

// Merge runs one full merge. A missing or unreadable target is fatal;
// an unusable source is skipped with a warning so the rest of the run
// proceeds. Sources are resolved concurrently under the configured
// worker cap but merged strictly in request order.
func (r *Runner) Merge(ctx context.Context, req MergeRequest) (*MergeOutcome, error) {
	cfg := req.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	target, targetReports, err := r.Resolve(ctx, req.TargetPath, cfg.Types())
	if err != nil {
		if model.KindOf(err) == model.ErrTargetMissing {
			return nil, err
		}
		return nil, model.NewError(model.ErrTargetMissing, err, "target %s unusable", req.TargetPath)
	}

	out := &MergeOutcome{
		Target:   target,
		Recovery: targetReports,
	}

	resolved := make([]*model.Dataset, len(req.SourcePaths))
	reports := make([][]recovery.Report, len(req.SourcePaths))
	skipped := make([]string, len(req.SourcePaths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.RecoveryWorkers)
	for i, path := range req.SourcePaths {
		i, path := i, path
		g.Go(func() error {
			ds, reps, err := r.Resolve(gctx, path, cfg.Types())
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Warn("skipping source", "path", path, "error", err)
				skipped[i] = fmt.Sprintf("%s: %v", path, err)
				return nil
			}
			resolved[i] = ds
			reports[i] = reps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	var sources []*model.Dataset
	for i := range resolved {
		if resolved[i] != nil {
			sources = append(sources, resolved[i])
			out.Recovery = append(out.Recovery, reports[i]...)
		}
	}
	for _, s := range skipped {
		if s != "" {
			out.Skipped = append(out.Skipped, s)
		}
	}

	res, err := merge.NewEngine(r.logger).Merge(ctx, target, sources, cfg)
	out.Result = res
	return out, err
}

// Resolve loads one path as a dataset. Directories are detected and
// extracted as browser profiles; files are parsed as dataset JSON. The
// caller decides whether a failure is fatal.
func (r *Runner) Resolve(ctx context.Context, path string, types []model.DataType) (*model.Dataset, []recovery.Report, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, nil, model.NewError(model.ErrSourceUnavailable, err, "stat %s", path)
	}
	if !fi.IsDir() {
		ds, err := model.LoadDataset(path)
		if err != nil {
			return nil, nil, err
		}
		return ds, nil, nil
	}
	return r.ScanProfile(ctx, path, model.FamilyUnknown, types)
}

// ScanProfile extracts one profile directory into a dataset. When family
// is FamilyUnknown the directory's browser is detected from marker files;
// otherwise detection is overridden and the directory is read as the
// given family.
func (r *Runner) ScanProfile(ctx context.Context, dir string, family model.BrowserFamily, types []model.DataType) (*model.Dataset, []recovery.Report, error) {
	prof, err := source.Detect(dir)
	if err != nil {
		return nil, nil, err
	}
	if family != model.FamilyUnknown && family != "" {
		if prof.Browser != family {
			r.logger.Info("browser family overridden",
				"path", dir, "detected", prof.Browser, "forced", family)
		}
		prof.Browser = family
		prof.IsValid = true
	}
	if !prof.IsValid {
		return nil, nil, model.NewError(model.ErrSourceUnavailable, nil,
			"%s does not look like a browser profile (%s)", dir, issueSummary(prof))
	}
	r.logger.Info("profile detected",
		"path", dir, "browser", prof.Browser, "confidence", prof.Confidence)
	return extract.New(r.logger).Profile(ctx, prof, types)
}

func issueSummary(p *model.SourceProfile) string {
	if len(p.Issues) > 0 {
		return p.Issues[0]
	}
	return fmt.Sprintf("confidence %.2f", p.Confidence)
}
