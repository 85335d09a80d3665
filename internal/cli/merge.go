package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/demispk444/profilemerge/internal/model"
	"github.com/demispk444/profilemerge/internal/pipeline"
	"github.com/demispk444/profilemerge/internal/report"
)

func init() {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge source profiles into a target dataset",
		Long: "Fold one or more source profiles into a target dataset. Target and " +
			"sources may each be a profile directory or a dataset JSON produced " +
			"by scan. Identity collisions are settled by the configured " +
			"conflict-resolution strategy; history always combines.",
		Run: runMerge,
	}

	cmd.Flags().String("target", "", "Target dataset file or profile directory (required)")
	cmd.Flags().StringArray("source", nil, "Source profile directory or dataset file (repeatable, required)")
	cmd.Flags().Bool("dry-run", false, "Compute full statistics without writing anything")
	cmd.Flags().StringP("out", "o", "", "Where to write the merged dataset (default: the target file itself)")
	cmd.Flags().String("report", "", "Write the merge result JSON to a file")
	cmd.Flags().String("csv-report", "", "Write per-type statistics as CSV")
	cmd.MarkFlagRequired("target")
	cmd.MarkFlagRequired("source")

	RootCmd.AddCommand(cmd)
}

func runMerge(cmd *cobra.Command, args []string) {
	targetPath, _ := cmd.Flags().GetString("target")
	sourcePaths, _ := cmd.Flags().GetStringArray("source")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	outPath, _ := cmd.Flags().GetString("out")
	reportPath, _ := cmd.Flags().GetString("report")
	csvPath, _ := cmd.Flags().GetString("csv-report")

	cfg := loadConfig()
	if dryRun {
		cfg.DryRun = true
	}
	logger := newLogger(cfg)

	// A directory target has no file to write back into, so the
	// destination must be settled before any work happens.
	dest := outPath
	if dest == "" && !cfg.DryRun {
		if fi, err := os.Stat(targetPath); err == nil && fi.IsDir() {
			exitErr("merge", errors.New("--out is required when the target is a profile directory"))
		}
		dest = targetPath
	}

	out, err := pipeline.New(logger).Merge(cmd.Context(), pipeline.MergeRequest{
		TargetPath:  targetPath,
		SourcePaths: sourcePaths,
		Config:      cfg,
	})
	if err != nil {
		exitErr("merge", err)
	}
	res := out.Result

	if reportPath != "" {
		if err := report.WriteJSON(reportPath, res); err != nil {
			exitErr("merge", err)
		}
		fmt.Printf("report written to %s\n", reportPath)
	}
	if csvPath != "" {
		if err := report.WriteMergeCSV(csvPath, res); err != nil {
			exitErr("merge", err)
		}
		fmt.Printf("csv report written to %s\n", csvPath)
	}
	if !cfg.DryRun {
		if err := out.Target.Save(dest); err != nil {
			exitErr("merge", err)
		}
	}

	printMergeSummary(cmd.OutOrStdout(), out)

	if !res.Success {
		os.Exit(1)
	}
}

func printMergeSummary(w io.Writer, out *pipeline.MergeOutcome) {
	res := out.Result
	if res.DryRun {
		fmt.Fprintln(w, "dry run: nothing written")
	}
	for _, dt := range model.ExpandTypes([]model.DataType{model.TypeAll}) {
		stats, ok := res.Types[dt]
		if !ok {
			continue
		}
		if stats.Note != "" {
			fmt.Fprintf(w, "  %-12s %s\n", dt, stats.Note)
			continue
		}
		fmt.Fprintf(w, "  %-12s merged %d, conflicts %d\n", dt, stats.Merged, stats.Conflicts)
	}
	fmt.Fprintf(w, "total: %d merged, %d conflicts (%dms)\n",
		res.TotalMerged, res.TotalConflicts, res.ElapsedMS)
	for _, rep := range out.Recovery {
		fmt.Fprintf(w, "recovered: %s via %s (%d tables, %d lost)\n",
			rep.Path, rep.Method, len(rep.RecoveredTables), len(rep.LostTables))
	}
	for _, s := range out.Skipped {
		fmt.Fprintf(w, "skipped: %s\n", s)
	}
	for _, r := range res.RequiresReview {
		fmt.Fprintf(w, "review: %s\n", r)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
}
