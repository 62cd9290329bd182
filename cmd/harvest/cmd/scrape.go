package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/harvest"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/scraper"
)

type scrapeFlags struct {
	cookie     string
	cookieFile string
	out        string
	maxRounds  int
	settle     time.Duration
	timeout    time.Duration
	headful    bool
	mode       string
	similarity int
	images     bool
	analyze    bool
	summarize  bool
	preflight  bool
	skipProbe  bool
	preview    int
}

var scrapeOpts scrapeFlags

func init() {
	f := scrapeCmd.Flags()
	f.StringVar(&scrapeOpts.cookie, "cookie", "", `raw Cookie header, e.g. "a1=...; web_session=..."`)
	f.StringVar(&scrapeOpts.cookieFile, "cookie-file", "", "exported cookie JSON file")
	f.StringVarP(&scrapeOpts.out, "out", "o", "", "output JSON path (default comments_<note id>.json); a .txt rendering is written alongside")
	f.IntVar(&scrapeOpts.maxRounds, "max-rounds", 0, "scroll round budget (default from HARVEST_MAX_ROUNDS)")
	f.DurationVar(&scrapeOpts.settle, "settle", 0, "wait after each scroll (default from HARVEST_SETTLE_DELAY)")
	f.DurationVar(&scrapeOpts.timeout, "timeout", 5*time.Minute, "overall deadline")
	f.BoolVar(&scrapeOpts.headful, "headful", false, "show the browser window")
	f.StringVar(&scrapeOpts.mode, "mode", "", "extraction backend: live or snapshot")
	f.IntVar(&scrapeOpts.similarity, "similarity", 0, "SimHash distance for near-duplicate removal (0 = off)")
	f.BoolVar(&scrapeOpts.images, "images", false, "also collect comment image URLs")
	f.BoolVar(&scrapeOpts.analyze, "analyze", false, "add a page structure report to the diagnostics")
	f.BoolVar(&scrapeOpts.summarize, "summarize", false, "add a readability summary of the note")
	f.BoolVar(&scrapeOpts.preflight, "preflight", false, "check the cookies over plain HTTP first")
	f.BoolVar(&scrapeOpts.skipProbe, "skip-probe", false, "skip the login-state probe")
	f.IntVar(&scrapeOpts.preview, "preview", 5, "records shown in the summary table")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Harvests the comments of one note and writes them as JSON and text.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o := scrapeOpts
		if o.mode != "" && o.mode != string(harvest.ModeLive) && o.mode != string(harvest.ModeSnapshot) {
			return fmt.Errorf("--mode must be live or snapshot, got %q", o.mode)
		}

		cfg := config.Load()
		if o.headful {
			cfg.Browser.Headless = false
		}
		cfg.Browser.MaxPages = 1
		if o.timeout > cfg.Scraper.MaxTimeout {
			cfg.Scraper.MaxTimeout = o.timeout
		}

		req := &models.HarvestRequest{
			URL:                 args[0],
			CookieString:        o.cookie,
			CookieFile:          o.cookieFile,
			MaxRounds:           o.maxRounds,
			SettleMs:            int(o.settle / time.Millisecond),
			Timeout:             int(o.timeout / time.Second),
			ExtractMode:         o.mode,
			SimilarityThreshold: o.similarity,
			CollectImages:       o.images,
			Analyze:             o.analyze,
			Summarize:           o.summarize,
			Preflight:           o.preflight,
			SkipProbe:           o.skipProbe,
		}

		sc, err := scraper.NewScraper(cfg, Version)
		if err != nil {
			return err
		}
		defer sc.Close()

		resp, err := sc.Harvest(cmd.Context(), req)
		if err != nil {
			return err
		}

		rep := newReport(resp)
		jsonPath := o.out
		if jsonPath == "" {
			jsonPath = defaultOutput(rep.NoteID)
		}
		txtPath, err := saveReport(jsonPath, rep)
		if err != nil {
			return err
		}
		slog.Info("results saved", "json", jsonPath, "text", txtPath, "comments", rep.CommentCount)

		printSummary(os.Stdout, resp, o.preview)
		return nil
	},
}
