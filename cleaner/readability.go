package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
)

// minContentLength is the minimum TextContent length (in characters) for
// readability output to be trusted. Note pages below it are mostly app shell.
const minContentLength = 50

// maxExcerptRunes caps the excerpt taken from the body when readability
// supplied none.
const maxExcerptRunes = 200

// ExtractContent runs the Mozilla Readability algorithm on rawHTML. The bool
// reports whether the article is trustworthy; on failure a zero Article is
// returned so callers can keep going.
func ExtractContent(rawHTML string, sourceURL string) (readability.Article, bool) {
	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Warn("readability: invalid source URL", "url", sourceURL, "error", err)
		return readability.Article{}, false
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		slog.Warn("readability: extraction failed", "url", sourceURL, "error", err)
		return readability.Article{}, false
	}

	if utf8.RuneCountInString(strings.TrimSpace(article.TextContent)) < minContentLength {
		slog.Debug("readability: extracted content too short",
			"url", sourceURL, "length", len(article.TextContent),
		)
		return article, false
	}

	return article, true
}

// excerptOf returns the article excerpt, or the head of its text.
func excerptOf(article readability.Article) string {
	if ex := strings.TrimSpace(article.Excerpt); ex != "" {
		return ex
	}
	text := strings.Join(strings.Fields(article.TextContent), " ")
	if utf8.RuneCountInString(text) <= maxExcerptRunes {
		return text
	}
	return string([]rune(text)[:maxExcerptRunes])
}
