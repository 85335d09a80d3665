package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/demispk444/profilemerge/internal/model"
	"github.com/demispk444/profilemerge/internal/normalize"
	"github.com/demispk444/profilemerge/internal/recovery"
	"github.com/demispk444/profilemerge/internal/urlnorm"
)

type chromiumExtractor struct {
	opener  *dbOpener
	profile string
}

// chromiumBookmarkFile is the top of the Bookmarks JSON document. Timestamps
// inside are strings holding microseconds since 1601-01-01.
type chromiumBookmarkFile struct {
	Roots map[string]chromiumBookmarkNode `json:"roots"`
}

type chromiumBookmarkNode struct {
	Children     []chromiumBookmarkNode `json:"children"`
	DateAdded    string                 `json:"date_added"`
	DateModified string                 `json:"date_modified"`
	Name         string                 `json:"name"`
	Type         string                 `json:"type"`
	URL          string                 `json:"url"`
}

// chromiumRootOrder fixes traversal order so extraction is deterministic.
var chromiumRootOrder = []string{"bookmark_bar", "other", "synced"}

func (x *chromiumExtractor) bookmarks(ctx context.Context) ([]model.Bookmark, []string, error) {
	r := x.opener.r
	if !r.Exists("Bookmarks") {
		return nil, []string{"Bookmarks not present in profile"}, nil
	}
	data, err := r.ReadBytes("Bookmarks")
	if err != nil {
		return nil, []string{fmt.Sprintf("Bookmarks unreadable: %v", err)}, nil
	}
	var file chromiumBookmarkFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, []string{fmt.Sprintf("Bookmarks unparseable: %v", err)}, nil
	}

	var out []model.Bookmark
	skipped := 0
	for _, root := range chromiumRootOrder {
		node, ok := file.Roots[root]
		if !ok {
			continue
		}
		x.walkBookmarks(node, nil, &out, &skipped)
	}
	var warns []string
	if skipped > 0 {
		warns = append(warns, fmt.Sprintf("Bookmarks: skipped %d entries without a URL", skipped))
	}
	return out, warns, nil
}

// walkBookmarks flattens the bookmark tree, carrying the enclosing folder
// path down each branch.
func (x *chromiumExtractor) walkBookmarks(node chromiumBookmarkNode, path []string, out *[]model.Bookmark, skipped *int) {
	switch node.Type {
	case "url":
		if node.URL == "" {
			*skipped++
			return
		}
		*out = append(*out, model.Bookmark{
			ID:            model.NewID(),
			Title:         normalize.Title(node.Name),
			URL:           node.URL,
			Folder:        normalize.CleanSegments(path),
			DateAdded:     normalize.ChromiumMicros(parseChromiumStamp(node.DateAdded)),
			DateModified:  normalize.ChromiumMicros(parseChromiumStamp(node.DateModified)),
			SourceProfile: x.profile,
			SourceBrowser: model.FamilyChromium,
		})
	case "folder", "":
		child := append(append([]string(nil), path...), node.Name)
		for _, c := range node.Children {
			x.walkBookmarks(c, child, out, skipped)
		}
	}
}

func parseChromiumStamp(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

var chromiumHistoryExpectations = []recovery.Expectation{
	{Table: "urls", Columns: []string{"id", "url", "title", "visit_count", "last_visit_time"}},
	{
		Table:   "visits",
		Columns: []string{"id", "url", "visit_time"},
		Refs:    []recovery.Ref{{Column: "url", Table: "urls", RefColumn: "id"}},
	},
}

func (x *chromiumExtractor) history(ctx context.Context) ([]model.HistoryEntry, []string, error) {
	db, warns, err := x.opener.open(ctx, "History", chromiumHistoryExpectations)
	if err != nil || db == nil {
		return nil, warns, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT u.url, COALESCE(u.title, ''), COALESCE(u.visit_count, 0),
		       COALESCE(MIN(v.visit_time), 0), COALESCE(MAX(v.visit_time), 0),
		       COALESCE(u.last_visit_time, 0)
		FROM urls u
		LEFT JOIN visits v ON v.url = u.id
		WHERE u.url IS NOT NULL AND COALESCE(u.hidden, 0) = 0
		GROUP BY u.id
		ORDER BY u.id`)
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
			FirstVisit:    normalize.ChromiumMicros(minVisit),
			LastVisit:     normalize.ChromiumMicros(maxVisit),
			SourceProfile: x.profile,
			SourceBrowser: model.FamilyChromium,
		})
	}
	if err := rows.Err(); err != nil {
		warns = append(warns, fmt.Sprintf("History: scan ended early: %v", err))
	}
	if skipped > 0 {
		warns = append(warns, fmt.Sprintf("History: skipped %d malformed rows", skipped))
	}
	return out, warns, nil
}

var chromiumLoginExpectations = []recovery.Expectation{
	{Table: "logins", Columns: []string{"origin_url", "username_value", "password_value"}},
}

func (x *chromiumExtractor) logins(ctx context.Context) ([]model.Login, []string, error) {
	db, warns, err := x.opener.open(ctx, "Login Data", chromiumLoginExpectations)
	if err != nil || db == nil {
		return nil, warns, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT COALESCE(origin_url, ''), COALESCE(signon_realm, ''),
		       COALESCE(username_value, ''), COALESCE(password_value, x''),
		       COALESCE(date_created, 0), COALESCE(date_last_used, 0),
		       COALESCE(times_used, 0)
		FROM logins
		ORDER BY rowid`)
	if err != nil {
		return nil, warns, fmt.Errorf("read logins: %w", err)
	}
	defer rows.Close()

	var out []model.Login
	skipped := 0
	for rows.Next() {
		var origin, realm, username string
		var password []byte
		var created, lastUsed int64
		var used int
		if err := rows.Scan(&origin, &realm, &username, &password, &created, &lastUsed, &used); err != nil {
			skipped++
			continue
		}
		domain := urlnorm.Domain(origin)
		if domain == "" {
			domain = urlnorm.Domain(realm)
		}
		if domain == "" {
			skipped++
			continue
		}
		out = append(out, model.Login{
			ID:            model.NewID(),
			Domain:        domain,
			Username:      username,
			PasswordHash:  normalize.HashSecret(password),
			DateCreated:   normalize.ChromiumMicros(created),
			DateLastUsed:  normalize.ChromiumMicros(lastUsed),
			TimesUsed:     normalize.VisitCount(used),
			SourceProfile: x.profile,
			SourceBrowser: model.FamilyChromium,
		})
	}
	if err := rows.Err(); err != nil {
		warns = append(warns, fmt.Sprintf("Login Data: scan ended early: %v", err))
	}
	if skipped > 0 {
		warns = append(warns, fmt.Sprintf("Login Data: skipped %d rows without a usable origin", skipped))
	}
	return out, warns, nil
}
