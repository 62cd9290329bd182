package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/use-agent/harvest/harvest"
	"github.com/use-agent/harvest/models"
)

// report is the persisted result file.
type report struct {
	NoteID         string               `json:"note_id"`
	URL            string               `json:"url"`
	ScrapedAt      string               `json:"scraped_at"`
	CommentCount   int                  `json:"comment_count"`
	Comments       []harvest.Record     `json:"comments"`
	Images         []string             `json:"images,omitempty"`
	Diagnostics    *harvest.Diagnostics `json:"diagnostics,omitempty"`
	ScraperVersion string               `json:"scraper_version"`
}

func newReport(resp *models.HarvestResponse) report {
	return report{
		NoteID:         resp.NoteID,
		URL:            resp.URL,
		ScrapedAt:      resp.ScrapedAt,
		CommentCount:   resp.CommentCount,
		Comments:       resp.Comments,
		Images:         resp.Images,
		Diagnostics:    resp.Diagnostics,
		ScraperVersion: resp.ScraperVersion,
	}
}

func defaultOutput(noteID string) string {
	if noteID == "" {
		noteID = "unknown"
	}
	return "comments_" + noteID + ".json"
}

// textPath swaps a .json extension for .txt, or appends .txt.
func textPath(jsonPath string) string {
	if ext := filepath.Ext(jsonPath); strings.EqualFold(ext, ".json") {
		return strings.TrimSuffix(jsonPath, ext) + ".txt"
	}
	return jsonPath + ".txt"
}

// saveReport writes the JSON file and its text rendering, creating the
// directory if needed. It returns the text path.
func saveReport(jsonPath string, rep report) (string, error) {
	if dir := filepath.Dir(jsonPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", jsonPath, err)
	}

	txt := textPath(jsonPath)
	f, err := os.Create(txt)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", txt, err)
	}
	defer f.Close()
	if err := renderText(f, rep); err != nil {
		return "", fmt.Errorf("write %s: %w", txt, err)
	}
	return txt, nil
}

// renderText writes the human-readable listing.
func renderText(w io.Writer, rep report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Note comments - %s\n", rep.NoteID)
	fmt.Fprintf(&b, "URL: %s\n", rep.URL)
	fmt.Fprintf(&b, "Scraped at: %s\n", rep.ScrapedAt)
	fmt.Fprintf(&b, "Comments: %d\n", rep.CommentCount)
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	for i, c := range rep.Comments {
		fmt.Fprintf(&b, "%d. %s\n", i+1, orDefault(c.Author, "anonymous"))
		fmt.Fprintf(&b, "   Time: %s\n", orDefault(c.Timestamp, "unknown"))
		fmt.Fprintf(&b, "   Content: %s\n", c.Content)
		fmt.Fprintf(&b, "   Likes: %d\n", c.LikeCount)
		fmt.Fprintf(&b, "   Element: %s.%s\n", orDefault(c.SourceTag, "unknown"), orDefault(c.SourceClass, "none"))
		b.WriteString(strings.Repeat("-", 30) + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// printSummary prints run statistics and the first n records as a table.
func printSummary(w io.Writer, resp *models.HarvestResponse, n int) {
	fmt.Fprintf(w, "note %s: %d comments", orDefault(resp.NoteID, "?"), resp.CommentCount)
	if d := resp.Diagnostics; d != nil {
		fmt.Fprintf(w, " (strategy %s, tier %d, %d scroll rounds, stop: %s)",
			orDefault(d.Extraction.Strategy, "none"), d.Extraction.Tier, d.Scroll.State.Round, d.Scroll.Reason)
		if d.Login != nil && !d.Login.Authenticated {
			fmt.Fprint(w, "\nwarning: the session looks logged out; results may be truncated")
		}
	}
	fmt.Fprintln(w)

	if n <= 0 || len(resp.Comments) == 0 {
		return
	}
	if n > len(resp.Comments) {
		n = len(resp.Comments)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Author", "Time", "Likes", "Content"})
	for i, c := range resp.Comments[:n] {
		t.AppendRow(table.Row{i + 1, c.Author, c.Timestamp, c.LikeCount, clip(c.Content, 60)})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, Align: text.AlignRight}})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// clip shortens s to n runes on one line.
func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
