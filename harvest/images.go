package harvest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// DefaultImageHosts are substrings of the CDN hosts that serve comment images.
var DefaultImageHosts = []string{"xiaohongshu.com", "xhscdn.com", "sns-img", "redcdn"}

// CollectImages gathers image URLs from the comment area of the page, falling
// back to the whole document when no comment-like section exists. Query
// strings and fragments are stripped, only hosts containing one of hosts are
// kept, and duplicates are removed in first-seen order.
func CollectImages(ctx context.Context, s Session, hosts []string) ([]string, error) {
	res, err := s.Eval(ctx, scriptCollectImages)
	if err != nil {
		return nil, fmt.Errorf("collect images: %w", err)
	}

	raw := make([]string, 0, len(res.Arr()))
	for _, v := range res.Arr() {
		raw = append(raw, v.Str())
	}
	return FilterImageURLs(raw, hosts), nil
}

// FilterImageURLs normalizes and filters raw image URLs.
func FilterImageURLs(raw []string, hosts []string) []string {
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, r := range raw {
		u := stripQuery(strings.TrimSpace(r))
		if u == "" || !allowedImageHost(u, hosts) {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func stripQuery(raw string) string {
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	return u.String()
}

func allowedImageHost(raw string, hosts []string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, h := range hosts {
		if strings.Contains(host, strings.ToLower(h)) {
			return true
		}
	}
	return false
}
