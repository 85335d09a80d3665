package source

import (
	"fmt"
	"path/filepath"

	"github.com/demispk444/profilemerge/internal/model"
)

// marker is a filename whose presence suggests a browser family. Weights are
// fixed so the same directory always scores the same confidence.
type marker struct {
	name   string
	weight float64
}

var familyMarkers = []struct {
	family  model.BrowserFamily
	markers []marker
}{
	{model.FamilyFirefox, []marker{
		{"places.sqlite", 0.45},
		{"prefs.js", 0.25},
		{"logins.json", 0.15},
		{"key4.db", 0.10},
		{"cookies.sqlite", 0.05},
	}},
	{model.FamilyChromium, []marker{
		{"History", 0.35},
		{"Bookmarks", 0.25},
		{"Login Data", 0.20},
		{"Preferences", 0.15},
		{"Web Data", 0.05},
	}},
	{model.FamilyNetscape, []marker{
		{"bookmarks.html", 0.90},
	}},
}

// minValidConfidence is the detection score below which a directory is not
// treated as a usable profile.
const minValidConfidence = 0.40

// Detect classifies a directory as a browser profile. The confidence score
// is derived only from which marker files exist, so detection is repeatable.
func Detect(dir string) (*model.SourceProfile, error) {
	r, err := NewDirReader(dir)
	if err != nil {
		return nil, model.NewError(model.ErrSourceUnavailable, err, "detect profile %s", dir)
	}
	p := &model.SourceProfile{
		Name:    filepath.Base(r.Root()),
		Path:    r.Root(),
		Browser: model.FamilyUnknown,
	}

	best := 0.0
	for _, fm := range familyMarkers {
		score := 0.0
		for _, m := range fm.markers {
			if r.Exists(m.name) {
				score += m.weight
			}
		}
		if score > 1.0 {
			score = 1.0
		}
		if score > best {
			best = score
			p.Browser = fm.family
		}
	}
	p.Confidence = best

	if p.Browser == model.FamilyUnknown {
		p.Issues = append(p.Issues, "no recognizable browser data files")
		return p, nil
	}
	if best < minValidConfidence {
		p.Issues = append(p.Issues, fmt.Sprintf("detection confidence %.2f below threshold", best))
		return p, nil
	}
	p.IsValid = true

	switch p.Browser {
	case model.FamilyFirefox:
		if !r.Exists("places.sqlite") {
			p.Warnings = append(p.Warnings, "places.sqlite missing; bookmarks and history unavailable")
		}
		if r.Exists("logins.json") && !r.Exists("key4.db") {
			p.Warnings = append(p.Warnings, "key4.db missing; stored logins cannot be verified")
		}
	case model.FamilyChromium:
		if !r.Exists("History") {
			p.Warnings = append(p.Warnings, "History database missing")
		}
		if !r.Exists("Bookmarks") {
			p.Warnings = append(p.Warnings, "Bookmarks file missing")
		}
	}
	return p, nil
}
