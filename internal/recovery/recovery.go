// Package recovery classifies corruption in SQLite profile databases and
// salvages what it can. Recovery is staged: a conservative row dump through
// the driver first, then a raw b-tree page walk when the driver gets nothing.
// Whatever cannot be recovered is reported, never silently dropped.
package recovery

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/demispk444/profilemerge/internal/model"
)

// Class is the kind of corruption found by an integrity check.
type Class string

const (
	ClassNone    Class = "none"
	ClassHeader  Class = "header"
	ClassPage    Class = "page"
	ClassIndex   Class = "index"
	ClassSchema  Class = "schema"
	ClassUnknown Class = "unknown"
)

// Method names the recovery stage that produced the result.
type Method string

const (
	MethodNone    Method = "none"
	MethodDump    Method = "conservative_dump"
	MethodSalvage Method = "aggressive_salvage"
)

// Verdict is the outcome of an integrity check on one database file.
type Verdict struct {
	Class       Class  `json:"class"`
	Recoverable bool   `json:"recoverable"`
	Detail      string `json:"detail,omitempty"`
}

// Healthy reports whether the file passed the check cleanly.
func (v *Verdict) Healthy() bool { return v.Class == ClassNone }

// Report records what a recovery attempt saved and what it lost. A "*" in
// LostTables means the entire database was lost.
type Report struct {
	Path            string   `json:"path"`
	Class           Class    `json:"class"`
	Recoverable     bool     `json:"recoverable"`
	Method          Method   `json:"method"`
	RecoveredTables []string `json:"recovered_tables,omitempty"`
	LostTables      []string `json:"lost_tables,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Result is a completed recovery: the path of the rebuilt database plus the
// loss report.
type Result struct {
	Path   string
	Report Report
}

var sqliteMagic = []byte("SQLite format 3\x00")

// Check classifies corruption in the database at path. The verdict is
// derived only from file structure and the driver's integrity scan, so the
// same file always yields the same verdict.
func Check(ctx context.Context, path string) (*Verdict, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, model.NewError(model.ErrSourceUnavailable, err, "integrity check %s", filepath.Base(path))
	}
	header := make([]byte, 100)
	n, err := io.ReadFull(f, header)
	f.Close()
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, model.NewError(model.ErrSourceUnavailable, err, "integrity check %s", filepath.Base(path))
	}
	if n < 100 || !bytes.HasPrefix(header, sqliteMagic) {
		return &Verdict{Class: ClassHeader, Recoverable: false, Detail: "file header is not a SQLite database"}, nil
	}
	pageSize := int64(binary.BigEndian.Uint16(header[16:18]))
	if pageSize == 1 {
		pageSize = 65536
	}
	if pageSize < 512 || pageSize > 65536 || pageSize&(pageSize-1) != 0 {
		return &Verdict{Class: ClassHeader, Recoverable: false, Detail: fmt.Sprintf("invalid page size %d", pageSize)}, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, model.NewError(model.ErrSourceUnavailable, err, "integrity check %s", filepath.Base(path))
	}
	if info.Size()%pageSize != 0 {
		return &Verdict{Class: ClassPage, Recoverable: true, Detail: "file size is not a whole number of pages"}, nil
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return &Verdict{Class: ClassUnknown, Recoverable: true, Detail: err.Error()}, nil
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return &Verdict{Class: classifyMessage(err.Error()), Recoverable: true, Detail: err.Error()}, nil
	}
	defer rows.Close()

	var messages []string
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			messages = append(messages, err.Error())
			break
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		messages = append(messages, err.Error())
	}
	if len(messages) == 1 && messages[0] == "ok" {
		return &Verdict{Class: ClassNone, Recoverable: true}, nil
	}
	class := ClassUnknown
	for _, msg := range messages {
		if c := classifyMessage(msg); severity(c) > severity(class) {
			class = c
		}
	}
	return &Verdict{Class: class, Recoverable: true, Detail: strings.Join(messages, "; ")}, nil
}

// classifyMessage buckets one integrity_check line by its wording.
func classifyMessage(msg string) Class {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "page") || strings.Contains(m, "btree") ||
		strings.Contains(m, "cell") || strings.Contains(m, "overflow") ||
		strings.Contains(m, "freelist") || strings.Contains(m, "malformed"):
		return ClassPage
	case strings.Contains(m, "schema") || strings.Contains(m, "sqlite_master") ||
		strings.Contains(m, "sql error"):
		return ClassSchema
	case strings.Contains(m, "index"):
		return ClassIndex
	default:
		return ClassUnknown
	}
}

func severity(c Class) int {
	switch c {
	case ClassPage:
		return 4
	case ClassSchema:
		return 3
	case ClassIndex:
		return 2
	case ClassUnknown:
		return 1
	default:
		return 0
	}
}

// recoveredTable is one table's salvaged contents, ready to be written into
// a rebuilt database.
type recoveredTable struct {
	name      string
	createSQL string
	rows      [][]any
}

// Recover rebuilds as much of the database at path as possible into a new
// file next to it. The verdict must come from a prior Check on the same
// file. The Result is non-nil even on error so the loss report survives.
func Recover(ctx context.Context, logger *slog.Logger, path string, v *Verdict) (*Result, error) {
	rep := Report{Path: path, Class: v.Class, Recoverable: v.Recoverable, Method: MethodNone}
	res := &Result{Report: rep}
	if !v.Recoverable {
		res.Report.LostTables = []string{"*"}
		return res, model.NewError(model.ErrRecoveryExhausted, nil,
			"database %s: %s corruption is not recoverable", filepath.Base(path), v.Class)
	}

	tables, allNames, warns, err := dumpTables(ctx, path)
	method := MethodDump
	if err != nil || len(tables) == 0 {
		if err != nil {
			logger.Warn("conservative dump failed, escalating to page salvage", "path", path, "error", err)
		} else {
			logger.Warn("conservative dump recovered nothing, escalating to page salvage", "path", path)
		}
		var salvageWarns []string
		tables, allNames, salvageWarns, err = salvageTables(path)
		warns = append(warns, salvageWarns...)
		method = MethodSalvage
	}
	if err != nil || len(tables) == 0 {
		res.Report.LostTables = []string{"*"}
		res.Report.Warnings = warns
		return res, model.NewError(model.ErrRecoveryExhausted, err,
			"database %s: both recovery methods exhausted", filepath.Base(path))
	}

	dest := path + ".recovered"
	writeWarns, werr := writeRecovered(ctx, dest, tables)
	warns = append(warns, writeWarns...)
	if werr != nil {
		res.Report.LostTables = []string{"*"}
		res.Report.Warnings = warns
		return res, model.NewError(model.ErrRecoveryExhausted, werr,
			"database %s: could not write recovered copy", filepath.Base(path))
	}

	recovered := make(map[string]bool, len(tables))
	for _, t := range tables {
		res.Report.RecoveredTables = append(res.Report.RecoveredTables, t.name)
		recovered[t.name] = true
	}
	for _, name := range allNames {
		if !recovered[name] {
			res.Report.LostTables = append(res.Report.LostTables, name)
		}
	}
	res.Report.Method = method
	res.Report.Warnings = warns
	res.Path = dest
	logger.Info("database recovered",
		"path", path,
		"method", method,
		"tables", len(res.Report.RecoveredTables),
		"lost", len(res.Report.LostTables))
	return res, nil
}

// dumpTables is the conservative method: read every user table through the
// driver and keep whatever rows come back before an error stops the scan.
func dumpTables(ctx context.Context, path string) ([]recoveredTable, []string, []string, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, nil, err
	}
	defer db.Close()

	schemaRows, err := db.QueryContext(ctx,
		`SELECT name, COALESCE(sql, '') FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read schema: %w", err)
	}
	type schemaEntry struct{ name, createSQL string }
	var schema []schemaEntry
	for schemaRows.Next() {
		var e schemaEntry
		if err := schemaRows.Scan(&e.name, &e.createSQL); err != nil {
			break
		}
		schema = append(schema, e)
	}
	schemaRows.Close()
	if len(schema) == 0 {
		return nil, nil, nil, fmt.Errorf("no tables readable from schema")
	}

	var tables []recoveredTable
	var allNames []string
	var warns []string
	for _, e := range schema {
		allNames = append(allNames, e.name)
		rows, err := db.QueryContext(ctx, `SELECT * FROM `+quoteIdent(e.name))
		if err != nil {
			warns = append(warns, fmt.Sprintf("table %s unreadable: %v", e.name, err))
			continue
		}
		cols, err := rows.Columns()
		if err != nil {
			rows.Close()
			warns = append(warns, fmt.Sprintf("table %s unreadable: %v", e.name, err))
			continue
		}
		t := recoveredTable{name: e.name, createSQL: e.createSQL}
		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				warns = append(warns, fmt.Sprintf("table %s truncated after %d rows: %v", e.name, len(t.rows), err))
				break
			}
			t.rows = append(t.rows, copyRow(vals))
		}
		if err := rows.Err(); err != nil {
			warns = append(warns, fmt.Sprintf("table %s truncated after %d rows: %v", e.name, len(t.rows), err))
		}
		rows.Close()
		tables = append(tables, t)
	}
	return tables, allNames, warns, nil
}

// copyRow detaches scanned values from the driver's buffers.
func copyRow(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		if b, ok := v.([]byte); ok {
			out[i] = append([]byte(nil), b...)
			continue
		}
		out[i] = v
	}
	return out
}

// writeRecovered builds a fresh database holding the recovered tables.
func writeRecovered(ctx context.Context, dest string, tables []recoveredTable) ([]string, error) {
	os.Remove(dest)
	db, err := sql.Open("sqlite", dest)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var warns []string
	for _, t := range tables {
		cols, _ := parseColumns(t.createSQL)
		createSQL := t.createSQL
		if createSQL == "" || len(cols) == 0 {
			cols = syntheticColumns(t.rows)
			createSQL = syntheticCreate(t.name, cols)
		}
		if _, err := db.ExecContext(ctx, createSQL); err != nil {
			warns = append(warns, fmt.Sprintf("table %s: schema rejected, using generic layout: %v", t.name, err))
			cols = syntheticColumns(t.rows)
			createSQL = syntheticCreate(t.name, cols)
			if _, err := db.ExecContext(ctx, createSQL); err != nil {
				return warns, fmt.Errorf("create table %s: %w", t.name, err)
			}
		}
		if len(t.rows) == 0 {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return warns, err
		}
		placeholders := strings.TrimRight(strings.Repeat("?,", len(cols)), ",")
		insert := fmt.Sprintf(`INSERT INTO %s VALUES (%s)`, quoteIdent(t.name), placeholders)
		inserted := 0
		for _, row := range t.rows {
			row = fitRow(row, len(cols))
			if _, err := tx.ExecContext(ctx, insert, row...); err != nil {
				warns = append(warns, fmt.Sprintf("table %s: dropped row: %v", t.name, err))
				continue
			}
			inserted++
		}
		if err := tx.Commit(); err != nil {
			return warns, fmt.Errorf("commit table %s: %w", t.name, err)
		}
		if inserted < len(t.rows) {
			warns = append(warns, fmt.Sprintf("table %s: kept %d of %d rows", t.name, inserted, len(t.rows)))
		}
	}
	return warns, nil
}

// fitRow pads or trims a salvaged row to the table's column count.
func fitRow(row []any, n int) []any {
	if len(row) == n {
		return row
	}
	out := make([]any, n)
	copy(out, row)
	return out
}

func syntheticColumns(rows [][]any) []string {
	width := 1
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	cols := make([]string, width)
	for i := range cols {
		cols[i] = fmt.Sprintf("c%d", i)
	}
	return cols
}

func syntheticCreate(name string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return fmt.Sprintf(`CREATE TABLE %s (%s)`, quoteIdent(name), strings.Join(quoted, ", "))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// parseColumns pulls the column names out of a CREATE TABLE statement and
// reports which column, if any, aliases the rowid (INTEGER PRIMARY KEY).
// Good enough for browser schemas; tables it cannot parse fall back to a
// generic layout.
func parseColumns(createSQL string) (names []string, rowidAlias int) {
	rowidAlias = -1
	open := strings.Index(createSQL, "(")
	end := strings.LastIndex(createSQL, ")")
	if open < 0 || end <= open {
		return nil, -1
	}
	defs := splitTopLevel(createSQL[open+1 : end])
	for _, def := range defs {
		def = strings.TrimSpace(def)
		if def == "" {
			continue
		}
		first := strings.ToUpper(firstToken(def))
		switch first {
		case "PRIMARY", "UNIQUE", "CHECK", "FOREIGN", "CONSTRAINT":
			continue
		}
		name := strings.Trim(firstToken(def), "\"`[]'")
		if strings.Contains(strings.ToUpper(def), "INTEGER PRIMARY KEY") {
			rowidAlias = len(names)
		}
		names = append(names, name)
	}
	return names, rowidAlias
}

// splitTopLevel splits on commas that are not nested in parentheses or
// quotes.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// firstToken returns the leading identifier of a column definition,
// keeping quoted identifiers (which may contain spaces) whole.
func firstToken(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 0 {
		return s
	}
	var closer byte
	switch s[0] {
	case '"', '\'', '`':
		closer = s[0]
	case '[':
		closer = ']'
	}
	if closer != 0 {
		for i := 1; i < len(s); i++ {
			if s[i] == closer {
				return s[:i+1]
			}
		}
		return s
	}
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '(' {
			return s[:i]
		}
	}
	return s
}
