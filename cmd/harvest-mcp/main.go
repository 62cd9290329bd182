package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// harvestRequest mirrors the subset of the API request the tools expose.
type harvestRequest struct {
	URL                 string `json:"url"`
	CookieString        string `json:"cookie_string,omitempty"`
	MaxRounds           int    `json:"max_rounds,omitempty"`
	ExtractMode         string `json:"extract_mode,omitempty"`
	SimilarityThreshold int    `json:"similarity_threshold,omitempty"`
	CollectImages       bool   `json:"collect_images,omitempty"`
	Summarize           bool   `json:"summarize,omitempty"`
	MaxAge              int    `json:"max_age,omitempty"`
}

type comment struct {
	Content   string `json:"content"`
	Author    string `json:"author"`
	Timestamp string `json:"timestamp"`
	LikeCount int    `json:"like_count"`
}

// harvestResponse mirrors the API response fields the tools render.
type harvestResponse struct {
	Success      bool      `json:"success"`
	NoteID       string    `json:"note_id"`
	URL          string    `json:"url"`
	CommentCount int       `json:"comment_count"`
	Comments     []comment `json:"comments"`
	Images       []string  `json:"images"`
	Summary      *struct {
		Title   string `json:"title"`
		Excerpt string `json:"excerpt"`
	} `json:"summary"`
	Diagnostics *struct {
		Login *struct {
			Authenticated bool `json:"authenticated"`
		} `json:"login"`
		Scroll struct {
			Reason string `json:"reason"`
		} `json:"scroll"`
	} `json:"diagnostics"`
	CacheStatus string `json:"cache_status"`
	Error       *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type jobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type jobStatusResponse struct {
	ID     string           `json:"id"`
	Status string           `json:"status"`
	Result *harvestResponse `json:"result"`
}

func main() {
	apiURL := os.Getenv("HARVEST_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("HARVEST_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "HARVEST_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"harvest",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	harvestTool := mcp.NewTool("harvest_comments",
		mcp.WithDescription("Open a note page in a logged-in headless browser, scroll until no more comments load, and return the de-duplicated comments."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The note URL"),
		),
		mcp.WithString("cookie_string",
			mcp.Description("Raw Cookie header of a logged-in session, e.g. 'a1=...; web_session=...'"),
		),
		mcp.WithNumber("max_rounds",
			mcp.Description("Scroll round budget (default: 20, max: 200)"),
		),
		mcp.WithString("extract_mode",
			mcp.Description("DOM backend: 'live' (default) or 'snapshot'"),
			mcp.Enum("live", "snapshot"),
		),
		mcp.WithNumber("similarity_threshold",
			mcp.Description("SimHash distance for near-duplicate removal, 0 disables (max: 64)"),
		),
		mcp.WithBoolean("collect_images",
			mcp.Description("Also return comment image URLs"),
		),
		mcp.WithBoolean("summarize",
			mcp.Description("Include a short summary of the note itself"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Accept a cached result younger than this many seconds"),
		),
	)
	s.AddTool(harvestTool, handleHarvest(apiURL, apiKey))

	jobTool := mcp.NewTool("harvest_job",
		mcp.WithDescription("Queue a harvest as a background job and wait for it to finish. Use for long comment threads that may exceed a single request timeout."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The note URL"),
		),
		mcp.WithString("cookie_string",
			mcp.Description("Raw Cookie header of a logged-in session"),
		),
		mcp.WithNumber("max_rounds",
			mcp.Description("Scroll round budget (default: 20, max: 200)"),
		),
	)
	s.AddTool(jobTool, handleJob(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func requestFrom(request mcp.CallToolRequest) (harvestRequest, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return harvestRequest{}, err
	}
	return harvestRequest{
		URL:                 url,
		CookieString:        request.GetString("cookie_string", ""),
		MaxRounds:           request.GetInt("max_rounds", 0),
		ExtractMode:         request.GetString("extract_mode", ""),
		SimilarityThreshold: request.GetInt("similarity_threshold", 0),
		CollectImages:       request.GetBool("collect_images", false),
		Summarize:           request.GetBool("summarize", false),
		MaxAge:              request.GetInt("max_age", 0),
	}, nil
}

func handleHarvest(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqBody, err := requestFrom(request)
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/harvest", apiKey, reqBody)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp harvestResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(failure(&resp)), nil
		}
		return mcp.NewToolResultText(formatHarvest(&resp)), nil
	}
}

func handleJob(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqBody, err := requestFrom(request)
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/jobs", apiKey, reqBody)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("job request failed: %v", err)), nil
		}
		var job jobResponse
		if err := json.Unmarshal(respBody, &job); err != nil || job.ID == "" {
			return mcp.NewToolResultError("job creation failed"), nil
		}

		final, err := pollJob(ctx, client, apiURL, apiKey, job.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling job %s failed: %v", job.ID, err)), nil
		}
		if final.Result == nil {
			return mcp.NewToolResultError(fmt.Sprintf("job %s ended %s without a result", job.ID, final.Status)), nil
		}
		if !final.Result.Success {
			return mcp.NewToolResultError(failure(final.Result)), nil
		}
		return mcp.NewToolResultText(formatHarvest(final.Result)), nil
	}
}

// apiDo sends a JSON request to the harvest API and returns the response body.
func apiDo(ctx context.Context, client *http.Client, method, url, apiKey string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollJob polls until the job leaves the queued/processing states or ctx ends.
func pollJob(ctx context.Context, client *http.Client, apiURL, apiKey, id string) (*jobStatusResponse, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			body, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/jobs/"+id, apiKey, nil)
			if err != nil {
				return nil, err
			}
			var st jobStatusResponse
			if err := json.Unmarshal(body, &st); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if st.Status != "queued" && st.Status != "processing" {
				return &st, nil
			}
		}
	}
}

func failure(resp *harvestResponse) string {
	if resp.Error != nil {
		return fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
	}
	return "harvest failed"
}

func formatHarvest(resp *harvestResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Note: %s\nSource: %s\nComments: %d\n", resp.NoteID, resp.URL, resp.CommentCount)
	if d := resp.Diagnostics; d != nil {
		if d.Login != nil && !d.Login.Authenticated {
			sb.WriteString("Warning: session looks logged out, comments may be truncated\n")
		}
		if d.Scroll.Reason != "" {
			fmt.Fprintf(&sb, "Scroll stopped: %s\n", d.Scroll.Reason)
		}
	}
	if resp.CacheStatus == "hit" {
		sb.WriteString("(cached)\n")
	}
	if s := resp.Summary; s != nil {
		fmt.Fprintf(&sb, "\nTitle: %s\n%s\n", s.Title, s.Excerpt)
	}

	sb.WriteString("\n")
	for i, c := range resp.Comments {
		author := c.Author
		if author == "" {
			author = "anonymous"
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, author)
		if c.Timestamp != "" {
			fmt.Fprintf(&sb, " (%s)", c.Timestamp)
		}
		if c.LikeCount > 0 {
			fmt.Fprintf(&sb, " [%d likes]", c.LikeCount)
		}
		fmt.Fprintf(&sb, "\n   %s\n", c.Content)
	}

	if len(resp.Images) > 0 {
		sb.WriteString("\nImages:\n")
		for _, u := range resp.Images {
			sb.WriteString("- " + u + "\n")
		}
	}
	return sb.String()
}
