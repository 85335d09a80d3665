package extract

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/demispk444/profilemerge/internal/model"
	"github.com/demispk444/profilemerge/internal/normalize"
	"github.com/demispk444/profilemerge/internal/recovery"
	"github.com/demispk444/profilemerge/internal/urlnorm"
)

type firefoxExtractor struct {
	opener  *dbOpener
	profile string
}

var firefoxBookmarkExpectations = []recovery.Expectation{
	{Table: "moz_places", Columns: []string{"id", "url", "title", "visit_count"}},
	{
		Table:   "moz_bookmarks",
		Columns: []string{"id", "type", "fk", "parent", "title"},
		Refs:    []recovery.Ref{{Column: "fk", Table: "moz_places", RefColumn: "id"}},
	},
}

var firefoxHistoryExpectations = []recovery.Expectation{
	{Table: "moz_places", Columns: []string{"id", "url", "title", "visit_count"}},
	{
		Table:   "moz_historyvisits",
		Columns: []string{"id", "place_id", "visit_date"},
		Refs:    []recovery.Ref{{Column: "place_id", Table: "moz_places", RefColumn: "id"}},
	},
}

func (x *firefoxExtractor) bookmarks(ctx context.Context) ([]model.Bookmark, []string, error) {
	db, warns, err := x.opener.open(ctx, "places.sqlite", firefoxBookmarkExpectations)
	if err != nil || db == nil {
		return nil, warns, err
	}
	defer db.Close()

	folders, err := loadFolderTree(ctx, db)
	if err != nil {
		return nil, warns, fmt.Errorf("read folder tree: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT COALESCE(b.title, ''), p.url, COALESCE(b.parent, 0),
		       COALESCE(b.dateAdded, 0), COALESCE(b.lastModified, 0),
		       COALESCE(p.visit_count, 0)
		FROM moz_bookmarks b
		JOIN moz_places p ON b.fk = p.id
		WHERE b.type = 1 AND p.url IS NOT NULL
		ORDER BY b.id`)
	if err != nil {
		return nil, warns, fmt.Errorf("read bookmarks: %w", err)
	}
	defer rows.Close()

	var out []model.Bookmark
	skipped := 0
	for rows.Next() {
		var title, url string
		var parent, added, modified int64
		var visits int
		if err := rows.Scan(&title, &url, &parent, &added, &modified, &visits); err != nil {
			skipped++
			continue
		}
		if url == "" {
			skipped++
			continue
		}
		out = append(out, model.Bookmark{
			ID:            model.NewID(),
			Title:         normalize.Title(title),
			URL:           url,
			Folder:        folders.path(parent),
			DateAdded:     normalize.UnixMicros(added),
			DateModified:  normalize.UnixMicros(modified),
			VisitCount:    normalize.VisitCount(visits),
			SourceProfile: x.profile,
			SourceBrowser: model.FamilyFirefox,
		})
	}
	if err := rows.Err(); err != nil {
		warns = append(warns, fmt.Sprintf("places.sqlite: bookmark scan ended early: %v", err))
	}
	if skipped > 0 {
		warns = append(warns, fmt.Sprintf("places.sqlite: skipped %d malformed bookmark rows", skipped))
	}
	return out, warns, nil
}

func (x *firefoxExtractor) history(ctx context.Context) ([]model.HistoryEntry, []string, error) {
	db, warns, err := x.opener.open(ctx, "places.sqlite", firefoxHistoryExpectations)
	if err != nil || db == nil {
		return nil, warns, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT p.url, COALESCE(p.title, ''), COALESCE(p.visit_count, 0),
		       COALESCE(MIN(v.visit_date), 0), COALESCE(MAX(v.visit_date), 0),
		       COALESCE(p.last_visit_date, 0)
		FROM moz_places p
		LEFT JOIN moz_historyvisits v ON v.place_id = p.id
		WHERE p.url IS NOT NULL
		GROUP BY p.id
		HAVING COALESCE(p.visit_count, 0) > 0 OR COUNT(v.id) > 0
		ORDER BY p.id`)
	if err != nil {
		return nil, warns, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	var out []model.HistoryEntry
	skipped := 0
	for rows.Next() {
		var url, title string
		var visits int
		var minVisit, maxVisit, lastVisit int64
		if err := rows.Scan(&url, &title, &visits, &minVisit, &maxVisit, &lastVisit); err != nil {
			skipped++
			continue
		}
		if url == "" {
			skipped++
			continue
		}
		if maxVisit < lastVisit {
			maxVisit = lastVisit
		}
		out = append(out, model.HistoryEntry{
			ID:            model.NewID(),
			URL:           url,
			Title:         normalize.Title(title),
			VisitCount:    normalize.VisitCount(visits),
			FirstVisit:    normalize.UnixMicros(minVisit),
			LastVisit:     normalize.UnixMicros(maxVisit),
			SourceProfile: x.profile,
			SourceBrowser: model.FamilyFirefox,
		})
	}
	if err := rows.Err(); err != nil {
		warns = append(warns, fmt.Sprintf("places.sqlite: history scan ended early: %v", err))
	}
	if skipped > 0 {
		warns = append(warns, fmt.Sprintf("places.sqlite: skipped %d malformed history rows", skipped))
	}
	return out, warns, nil
}

// firefoxLoginFile mirrors the layout of logins.json. Credential fields stay
// encrypted; they are never decrypted here or anywhere downstream.
type firefoxLoginFile struct {
	Logins []firefoxLogin `json:"logins"`
}

type firefoxLogin struct {
	Hostname            string `json:"hostname"`
	EncryptedUsername   string `json:"encryptedUsername"`
	EncryptedPassword   string `json:"encryptedPassword"`
	TimeCreated         int64  `json:"timeCreated"`
	TimeLastUsed        int64  `json:"timeLastUsed"`
	TimePasswordChanged int64  `json:"timePasswordChanged"`
	TimesUsed           int    `json:"timesUsed"`
}

func (x *firefoxExtractor) logins(ctx context.Context) ([]model.Login, []string, error) {
	r := x.opener.r
	if !r.Exists("logins.json") {
		return nil, []string{"logins.json not present in profile"}, nil
	}
	data, err := r.ReadBytes("logins.json")
	if err != nil {
		return nil, []string{fmt.Sprintf("logins.json unreadable: %v", err)}, nil
	}
	var file firefoxLoginFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, []string{fmt.Sprintf("logins.json unparseable: %v", err)}, nil
	}

	var out []model.Login
	var warns []string
	skipped := 0
	for _, l := range file.Logins {
		domain := urlnorm.Domain(l.Hostname)
		if domain == "" {
			skipped++
			continue
		}
		out = append(out, model.Login{
			ID:     model.NewID(),
			Domain: domain,
			// The username is NSS-encrypted; the ciphertext serves as an
			// opaque identity token within this profile.
			Username:      l.EncryptedUsername,
			PasswordHash:  normalize.HashSecret([]byte(l.EncryptedPassword)),
			DateCreated:   normalize.UnixMillis(l.TimeCreated),
			DateLastUsed:  normalize.UnixMillis(l.TimeLastUsed),
			TimesUsed:     normalize.VisitCount(l.TimesUsed),
			SourceProfile: x.profile,
			SourceBrowser: model.FamilyFirefox,
		})
	}
	if skipped > 0 {
		warns = append(warns, fmt.Sprintf("logins.json: skipped %d entries without a usable hostname", skipped))
	}
	return out, warns, nil
}

// folderTree resolves a bookmark's parent chain to an ordered folder path.
type folderTree struct {
	nodes map[int64]folderNode
}

type folderNode struct {
	title  string
	parent int64
}

func loadFolderTree(ctx context.Context, db *sql.DB) (*folderTree, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, COALESCE(title, ''), COALESCE(parent, 0) FROM moz_bookmarks WHERE type = 2`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	t := &folderTree{nodes: map[int64]folderNode{}}
	for rows.Next() {
		var id int64
		var n folderNode
		if err := rows.Scan(&id, &n.title, &n.parent); err != nil {
			continue
		}
		t.nodes[id] = n
	}
	return t, rows.Err()
}

// path walks from a folder id up to the root. Untitled root containers drop
// out of the path; a cycle in corrupted data stops the walk.
func (t *folderTree) path(id int64) []string {
	var segs []string
	seen := map[int64]bool{}
	for id != 0 && !seen[id] {
		seen[id] = true
		n, ok := t.nodes[id]
		if !ok {
			break
		}
		segs = append(segs, n.title)
		id = n.parent
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return normalize.CleanSegments(segs)
}
