package recovery

import (
	"context"
	"database/sql"
	"fmt"
)

// Expectation describes what a recovered database should contain for one
// table: the columns the extractor will query and any row references whose
// breakage is worth flagging (a bookmark pointing at a missing place row).
type Expectation struct {
	Table   string
	Columns []string
	Refs    []Ref
}

// Ref is a child-to-parent column reference checked for orphans.
type Ref struct {
	Column    string
	Table     string
	RefColumn string
}

// ValidateRecovered checks a recovered database against the expected shape
// and returns human-readable warnings. Validation never fails the recovery;
// problems become warnings on the extraction result.
func ValidateRecovered(ctx context.Context, path string, expects []Expectation) []string {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return []string{fmt.Sprintf("validation skipped: %v", err)}
	}
	defer db.Close()

	var warns []string
	for _, exp := range expects {
		cols, err := tableColumns(ctx, db, exp.Table)
		if err != nil {
			warns = append(warns, fmt.Sprintf("validation of %s skipped: %v", exp.Table, err))
			continue
		}
		if len(cols) == 0 {
			warns = append(warns, fmt.Sprintf("expected table %s missing from recovered data", exp.Table))
			continue
		}
		missing := false
		for _, want := range exp.Columns {
			if !cols[want] {
				warns = append(warns, fmt.Sprintf("table %s missing column %s", exp.Table, want))
				missing = true
			}
		}
		if missing {
			continue
		}
		for _, ref := range exp.Refs {
			orphans, err := countOrphans(ctx, db, exp.Table, ref)
			if err != nil {
				continue
			}
			if orphans > 0 {
				warns = append(warns, fmt.Sprintf("%d rows in %s reference missing rows in %s",
					orphans, exp.Table, ref.Table))
			}
		}
	}
	return warns
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func countOrphans(ctx context.Context, db *sql.DB, table string, ref Ref) (int, error) {
	query := fmt.Sprintf(
		`SELECT COUNT(*) FROM %s c LEFT JOIN %s p ON c.%s = p.%s
		 WHERE c.%s IS NOT NULL AND c.%s != 0 AND p.%s IS NULL`,
		quoteIdent(table), quoteIdent(ref.Table),
		quoteIdent(ref.Column), quoteIdent(ref.RefColumn),
		quoteIdent(ref.Column), quoteIdent(ref.Column), quoteIdent(ref.RefColumn))
	var n int
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
