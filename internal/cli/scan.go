package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/demispk444/profilemerge/internal/model"
	"github.com/demispk444/profilemerge/internal/pipeline"
)

func init() {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Extract a browser profile into a dataset file",
		Long: "Detect the browser family of a profile directory and extract its " +
			"data into a dataset JSON that analyze and merge accept.",
		Run: runScan,
	}

	cmd.Flags().StringP("profile", "p", "", "Profile directory (required)")
	cmd.Flags().StringP("browser", "b", "auto", "Browser family: auto, firefox, chromium, netscape")
	cmd.Flags().StringSliceP("types", "t", nil, "Data types to extract (default: from config)")
	cmd.Flags().StringP("out", "o", "", "Output file (default: stdout)")
	cmd.MarkFlagRequired("profile")

	RootCmd.AddCommand(cmd)
}

func runScan(cmd *cobra.Command, args []string) {
	dir, _ := cmd.Flags().GetString("profile")
	browser, _ := cmd.Flags().GetString("browser")
	typeNames, _ := cmd.Flags().GetStringSlice("types")
	out, _ := cmd.Flags().GetString("out")

	cfg := loadConfig()
	if len(typeNames) > 0 {
		cfg.DataTypes = cfg.DataTypes[:0]
		for _, n := range typeNames {
			cfg.DataTypes = append(cfg.DataTypes, model.DataType(n))
		}
	}
	if err := cfg.Validate(); err != nil {
		exitErr("scan", err)
	}
	family, err := parseFamily(browser)
	if err != nil {
		exitErr("scan", err)
	}
	logger := newLogger(cfg)

	ds, reports, err := pipeline.New(logger).ScanProfile(cmd.Context(), dir, family, cfg.Types())
	if err != nil {
		exitErr("scan", err)
	}
	for _, rep := range reports {
		logger.Warn("store required recovery",
			"path", rep.Path, "method", rep.Method,
			"recovered", len(rep.RecoveredTables), "lost", len(rep.LostTables))
	}

	if out == "" {
		b, _ := json.MarshalIndent(ds, "", "  ")
		fmt.Println(string(b))
		return
	}
	if err := ds.Save(out); err != nil {
		exitErr("scan", err)
	}
	fmt.Printf("dataset written to %s (%d bookmarks, %d history, %d logins)\n",
		out, len(ds.Bookmarks), len(ds.History), len(ds.Logins))
}

func parseFamily(s string) (model.BrowserFamily, error) {
	switch model.BrowserFamily(s) {
	case "", "auto":
		return model.FamilyUnknown, nil
	case model.FamilyFirefox:
		return model.FamilyFirefox, nil
	case model.FamilyChromium:
		return model.FamilyChromium, nil
	case model.FamilyNetscape:
		return model.FamilyNetscape, nil
	}
	return model.FamilyUnknown, fmt.Errorf("unknown browser family %q", s)
}
