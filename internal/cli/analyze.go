package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/demispk444/profilemerge/internal/dedup"
	"github.com/demispk444/profilemerge/internal/model"
	"github.com/demispk444/profilemerge/internal/pipeline"
	"github.com/demispk444/profilemerge/internal/report"
)

func init() {
	cmd := &cobra.Command{
		Use:   "analyze DATASET...",
		Short: "Find likely duplicates across datasets",
		Long: "Load one or more datasets (or profile directories) and report " +
			"groups of records that look like the same bookmark, history entry " +
			"or login. Nothing is modified; the analysis is advisory.",
		Args: cobra.MinimumNArgs(1),
		Run:  runAnalyze,
	}

	cmd.Flags().StringP("out", "o", "", "Write the analysis JSON to a file (default: stdout)")
	cmd.Flags().String("csv-report", "", "Also write one CSV row per duplicate group")

	RootCmd.AddCommand(cmd)
}

func runAnalyze(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	logger := newLogger(cfg)
	r := pipeline.New(logger)

	// Duplicates are searched across everything given, so all inputs fold
	// into one view first. Records keep their per-profile provenance.
	combined := &model.Dataset{Profile: "combined"}
	for _, path := range args {
		ds, _, err := r.Resolve(cmd.Context(), path, cfg.Types())
		if err != nil {
			exitErr("analyze", err)
		}
		combined.Bookmarks = append(combined.Bookmarks, ds.Bookmarks...)
		combined.History = append(combined.History, ds.History...)
		combined.Logins = append(combined.Logins, ds.Logins...)
	}

	analysis, err := dedup.New(logger).Analyze(cmd.Context(), combined, cfg)
	if err != nil {
		exitErr("analyze", err)
	}

	if csvPath, _ := cmd.Flags().GetString("csv-report"); csvPath != "" {
		if err := report.WriteAnalysisCSV(csvPath, analysis); err != nil {
			exitErr("analyze", err)
		}
		fmt.Printf("csv report written to %s\n", csvPath)
	}

	out, _ := cmd.Flags().GetString("out")
	if out != "" {
		if err := report.WriteJSON(out, analysis); err != nil {
			exitErr("analyze", err)
		}
		fmt.Printf("analysis written to %s (%d groups, %d records reclaimable, %d need review)\n",
			out, analysis.PotentialMerges, analysis.EstimatedReduction, analysis.RequiresUserReview)
		return
	}
	b, _ := json.MarshalIndent(analysis, "", "  ")
	fmt.Println(string(b))
}
