// Package cleaner digests the note page itself: a readability summary plus
// Open Graph tags, attached to harvest responses on request.
package cleaner

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/harvest/models"
)

// Summarize builds a best-effort summary of the rendered note page. Fields
// readability could not fill are taken from Open Graph tags.
func Summarize(rawHTML string, sourceURL string) *models.PageSummary {
	og := ExtractOGMetadata(rawHTML)
	article, ok := ExtractContent(rawHTML, sourceURL)

	sum := &models.PageSummary{
		Title:    strings.TrimSpace(article.Title),
		Byline:   strings.TrimSpace(article.Byline),
		SiteName: strings.TrimSpace(article.SiteName),
		OG:       og,
	}
	if ok {
		sum.Excerpt = excerptOf(article)
		sum.Length = utf8.RuneCountInString(strings.TrimSpace(article.TextContent))
	}
	if sum.Title == "" {
		sum.Title = og.Title
	}
	if sum.Excerpt == "" {
		sum.Excerpt = og.Description
	}
	return sum
}

// ExtractOGMetadata parses Open Graph meta tags from the raw HTML. Both
// property= and name= spellings are accepted.
func ExtractOGMetadata(rawHTML string) models.OGMetadata {
	og := models.OGMetadata{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return og
	}

	doc.Find("meta[property], meta[name]").Each(func(_ int, s *goquery.Selection) {
		prop, ok := s.Attr("property")
		if !ok {
			prop, _ = s.Attr("name")
		}
		content, _ := s.Attr("content")
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		switch prop {
		case "og:title":
			og.Title = content
		case "og:description":
			og.Description = content
		case "og:image":
			og.Image = content
		case "og:type":
			og.Type = content
		}
	})

	return og
}
