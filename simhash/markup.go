package simhash

import (
	"strings"

	"golang.org/x/net/html"
)

// MarkupShingle is the tag n-gram size used by Markup.
const MarkupShingle = 3

// ignoredTags never describe page layout. Hydration adds and removes them
// freely, so counting them would make every server/rendered pair look far
// apart.
var ignoredTags = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {}, "link": {}, "meta": {}, "template": {},
}

// Markup fingerprints the layout of an HTML document by its sequence of
// open tags, ignoring text, attributes and the tags in ignoredTags.
//
// The cookie preflight compares the server HTML against the DOM the browser
// ends up with. A session the server accepted yields a feed tree close to the
// rendered one; a login wall comes back as a small form tree far from it.
func Markup(document string) uint64 {
	tags := layoutTags(document)
	if len(tags) == 0 {
		return 0
	}
	if len(tags) < MarkupShingle {
		return Fingerprint([]string{strings.Join(tags, ">")})
	}

	grams := make([]string, 0, len(tags)-MarkupShingle+1)
	for i := 0; i+MarkupShingle <= len(tags); i++ {
		grams = append(grams, strings.Join(tags[i:i+MarkupShingle], ">"))
	}
	return Fingerprint(grams)
}

func layoutTags(document string) []string {
	z := html.NewTokenizer(strings.NewReader(document))
	var tags []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if _, skip := ignoredTags[string(name)]; skip {
				continue
			}
			tags = append(tags, string(name))
		}
	}
}
