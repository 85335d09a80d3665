package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/demispk444/profilemerge/internal/model"
	"github.com/demispk444/profilemerge/internal/normalize"
	"github.com/demispk444/profilemerge/internal/source"
)

// netscapeExtractor reads the venerable bookmarks.html export format that
// every browser can produce. The format nests folders as <H3> headings
// followed by <DL> lists; timestamps are Unix seconds in tag attributes.
type netscapeExtractor struct {
	r       source.Reader
	profile string
}

func (x *netscapeExtractor) bookmarks(ctx context.Context) ([]model.Bookmark, []string, error) {
	if !x.r.Exists("bookmarks.html") {
		return nil, []string{"bookmarks.html not present in profile"}, nil
	}
	text, err := x.r.ReadText("bookmarks.html")
	if err != nil {
		return nil, []string{fmt.Sprintf("bookmarks.html unreadable: %v", err)}, nil
	}
	out, skipped := x.parse(text)
	var warns []string
	if skipped > 0 {
		warns = append(warns, fmt.Sprintf("bookmarks.html: skipped %d anchors without a href", skipped))
	}
	return out, warns, nil
}

// parse tokenizes the export rather than building a DOM: the format's
// unclosed <DT> and <p> tags make token-level folder tracking more reliable
// than tree traversal.
func (x *netscapeExtractor) parse(doc string) ([]model.Bookmark, int) {
	z := html.NewTokenizer(strings.NewReader(doc))

	var out []model.Bookmark
	var folders []string
	var pendingFolder string
	var text strings.Builder
	var inHeading, inAnchor bool
	var current model.Bookmark
	skipped := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken:
			tok := z.Token()
			switch tok.Data {
			case "h3":
				inHeading = true
				text.Reset()
			case "dl":
				folders = append(folders, pendingFolder)
				pendingFolder = ""
			case "a":
				inAnchor = true
				text.Reset()
				current = model.Bookmark{}
				for _, a := range tok.Attr {
					switch a.Key {
					case "href":
						current.URL = a.Val
					case "add_date":
						current.DateAdded = normalize.UnixSeconds(parseUnixSeconds(a.Val))
					case "last_modified":
						current.DateModified = normalize.UnixSeconds(parseUnixSeconds(a.Val))
					}
				}
			}
		case html.TextToken:
			if inHeading || inAnchor {
				text.Write(z.Text())
			}
		case html.EndTagToken:
			tok := z.Token()
			switch tok.Data {
			case "h3":
				inHeading = false
				pendingFolder = strings.TrimSpace(text.String())
			case "dl":
				if len(folders) > 0 {
					folders = folders[:len(folders)-1]
				}
			case "a":
				inAnchor = false
				if current.URL == "" {
					skipped++
					break
				}
				current.ID = model.NewID()
				current.Title = normalize.Title(text.String())
				current.Folder = normalize.CleanSegments(append([]string(nil), folders...))
				current.SourceProfile = x.profile
				current.SourceBrowser = model.FamilyNetscape
				out = append(out, current)
			}
		}
	}
	return out, skipped
}

func parseUnixSeconds(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func (x *netscapeExtractor) history(ctx context.Context) ([]model.HistoryEntry, []string, error) {
	return nil, []string{"bookmarks.html exports contain no history"}, nil
}

func (x *netscapeExtractor) logins(ctx context.Context) ([]model.Login, []string, error) {
	return nil, []string{"bookmarks.html exports contain no logins"}, nil
}
