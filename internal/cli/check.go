package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/demispk444/profilemerge/internal/recovery"
	"github.com/demispk444/profilemerge/internal/source"
)

func init() {
	cmd := &cobra.Command{
		Use:   "check DBFILE",
		Short: "Check a profile database for corruption",
		Long: "Classify corruption in a SQLite profile database and print the " +
			"verdict as JSON. The original file is never opened directly; all " +
			"work happens on a staged copy. With --attempt-recovery a corrupted " +
			"database is salvaged into DBFILE.recovered next to the original. " +
			"Exits nonzero when the file is corrupted.",
		Args: cobra.ExactArgs(1),
		Run:  runCheck,
	}

	cmd.Flags().Bool("attempt-recovery", false, "Salvage a corrupted database into DBFILE.recovered")

	RootCmd.AddCommand(cmd)
}

// checkOutput is the JSON the check command prints.
type checkOutput struct {
	Path          string            `json:"path"`
	Verdict       *recovery.Verdict `json:"verdict"`
	Recovery      *recovery.Report  `json:"recovery,omitempty"`
	RecoveredPath string            `json:"recovered_path,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) {
	attempt, _ := cmd.Flags().GetBool("attempt-recovery")
	cfg := loadConfig()
	logger := newLogger(cfg)

	path := args[0]
	r, err := source.NewDirReader(filepath.Dir(path))
	if err != nil {
		exitErr("check", err)
	}
	tmp, err := os.MkdirTemp("", "profilemerge-")
	if err != nil {
		exitErr("check", err)
	}
	defer os.RemoveAll(tmp)
	staged, err := source.CopyDatabase(r, filepath.Base(path), tmp)
	if err != nil {
		exitErr("check", err)
	}

	verdict, err := recovery.Check(cmd.Context(), staged)
	if err != nil {
		exitErr("check", err)
	}
	out := checkOutput{Path: path, Verdict: verdict}

	if !verdict.Healthy() && attempt {
		res, rerr := recovery.Recover(cmd.Context(), logger, staged, verdict)
		if res != nil {
			rep := res.Report
			rep.Path = path
			out.Recovery = &rep
		}
		switch {
		case rerr != nil:
			logger.Error("recovery failed", "path", path, "error", rerr)
		case res.Path != "":
			tmpReader, err := source.NewDirReader(tmp)
			if err != nil {
				exitErr("check", err)
			}
			dest, err := source.CopyDatabase(tmpReader, filepath.Base(res.Path), filepath.Dir(path))
			if err != nil {
				exitErr("check", err)
			}
			out.RecoveredPath = dest
		}
	}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
	if !verdict.Healthy() {
		os.Exit(1)
	}
}
