package harvest

import "regexp"

var notePath = regexp.MustCompile(`/(?:item|explore)/([a-z0-9]+)`)

// NoteID returns the note identifier embedded in a note URL
// (".../explore/<id>" or ".../item/<id>"), or "" when there is none.
func NoteID(rawURL string) string {
	m := notePath.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}
