package harvest

import (
	"context"
	"log/slog"
	"time"
)

// ExtractMode selects the DOM backend used for extraction.
type ExtractMode string

const (
	// ModeLive queries the live page via Session.Eval.
	ModeLive ExtractMode = "live"
	// ModeSnapshot serializes the page once and queries the HTML with goquery.
	ModeSnapshot ExtractMode = "snapshot"
)

// DefaultExtractReserve is the part of the caller's deadline withheld from
// convergence so extraction still has time to run.
const DefaultExtractReserve = 10 * time.Second

// Options configures a Harvester. Zero values fall back to the defaults.
type Options struct {
	MaxRounds           int
	StableRounds        int
	Settle              time.Duration
	ClickDelay          time.Duration
	ClickTimeout        time.Duration
	ProbeSettle         time.Duration
	SkipProbe           bool
	DedupKeyRunes       int
	MinContentRunes     int
	MinOverlapRunes     int
	SimilarityThreshold int
	Mode                ExtractMode
	CollectImages       bool
	ImageHosts          []string
	Analyze             bool
	ExtractReserve      time.Duration
	Logger              *slog.Logger
}

// Harvester runs probe, convergence, extraction, and assembly against one
// session. A Harvester holds no per-run state and may be shared.
type Harvester struct {
	Prober         *Prober
	Driver         *Driver
	Extractor      *Extractor
	Assembler      Assembler
	Mode           ExtractMode
	CollectImages  bool
	ImageHosts     []string
	Analyze        bool
	ExtractReserve time.Duration
	Logger         *slog.Logger
}

// New builds a Harvester from opts.
func New(opts Options) *Harvester {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	if opts.Mode == "" {
		opts.Mode = ModeLive
	}
	if opts.ImageHosts == nil {
		opts.ImageHosts = DefaultImageHosts
	}
	if opts.ExtractReserve <= 0 {
		opts.ExtractReserve = DefaultExtractReserve
	}

	var prober *Prober
	if !opts.SkipProbe {
		prober = NewProber(opts.ProbeSettle)
		prober.Logger = opts.Logger
	}

	driver := NewDriver(opts.MaxRounds, opts.Settle)
	if opts.StableRounds > 0 {
		driver.StableRounds = opts.StableRounds
	}
	if opts.ClickDelay > 0 {
		driver.ClickDelay = opts.ClickDelay
	}
	if opts.ClickTimeout > 0 {
		driver.ClickTimeout = opts.ClickTimeout
	}
	driver.Logger = opts.Logger

	extractor := NewExtractor()
	extractor.Logger = opts.Logger

	assembler := NewAssembler()
	if opts.DedupKeyRunes > 0 {
		assembler.KeyRunes = opts.DedupKeyRunes
	}
	if opts.MinContentRunes > 0 {
		assembler.MinContentRunes = opts.MinContentRunes
	}
	if opts.MinOverlapRunes > 0 {
		assembler.MinOverlapRunes = opts.MinOverlapRunes
	}
	assembler.SimilarityThreshold = opts.SimilarityThreshold

	return &Harvester{
		Prober:         prober,
		Driver:         driver,
		Extractor:      extractor,
		Assembler:      assembler,
		Mode:           opts.Mode,
		CollectImages:  opts.CollectImages,
		ImageHosts:     opts.ImageHosts,
		Analyze:        opts.Analyze,
		ExtractReserve: opts.ExtractReserve,
		Logger:         opts.Logger,
	}
}

// Diagnostics explains how a run went: which signals fired, how the scroll
// loop ended, which strategy matched, and every error that was swallowed.
type Diagnostics struct {
	Login      *LoginState    `json:"login,omitempty"`
	Scroll     ConvergeReport `json:"scroll"`
	Mode       ExtractMode    `json:"mode"`
	Extraction ExtractReport  `json:"extraction"`
	Assembly   AssembleStats  `json:"assembly"`
	Structure  *Structure     `json:"structure,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
	ElapsedMs  int64          `json:"elapsed_ms"`
}

// Result is the outcome of Run.
type Result struct {
	Records     []Record    `json:"records"`
	Images      []string    `json:"images,omitempty"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Run harvests the page behind s. It never returns an error: every failure
// after navigation degrades to fewer or zero records, recorded in
// Result.Diagnostics.
func (h *Harvester) Run(ctx context.Context, s Session) Result {
	start := time.Now()
	log := loggerOr(h.Logger)
	var res Result
	d := &res.Diagnostics
	d.Mode = h.Mode

	// ── 1. Login probe (advisory) ─────────────────────────────────────
	if h.Prober != nil {
		st := h.Prober.Probe(ctx, s)
		d.Login = &st
		d.Errors = appendPrefixed(d.Errors, "probe", st.Errors)
		if !st.Authenticated {
			log.Warn("session looks unauthenticated, continuing",
				"url", st.URL,
				"loginAffordance", st.Signals.HasLoginAffordance,
				"loginURL", st.Signals.IsLoginURL,
				"mentionsLogin", st.Signals.PageMentionsLogin,
			)
		}
	}

	// ── 2. Scroll convergence ─────────────────────────────────────────
	convergeCtx, cancel := h.convergeContext(ctx)
	d.Scroll = h.Driver.Converge(convergeCtx, s)
	cancel()
	d.Errors = appendPrefixed(d.Errors, "scroll", d.Scroll.Errors)
	log.Info("scroll finished",
		"rounds", d.Scroll.State.Round,
		"height", d.Scroll.State.CurrentHeight,
		"reason", d.Scroll.Reason,
		"clicks", len(d.Scroll.Clicks),
	)

	// ── 3. Structure analysis (debug) ─────────────────────────────────
	if h.Analyze {
		st, err := AnalyzeStructure(ctx, s)
		if err != nil {
			d.Errors = append(d.Errors, "analyze: "+err.Error())
		} else {
			d.Structure = st
		}
	}

	// ── 4. Extraction ─────────────────────────────────────────────────
	dom := h.dom(ctx, s, d)
	d.Extraction = h.Extractor.Extract(ctx, dom)
	d.Errors = appendPrefixed(d.Errors, "extract", d.Extraction.Errors)

	// ── 5. Dedup & assembly ───────────────────────────────────────────
	res.Records, d.Assembly = h.Assembler.Assemble(d.Extraction.Records)
	d.Extraction.Records = nil

	// ── 6. Comment images ─────────────────────────────────────────────
	if h.CollectImages {
		imgs, err := CollectImages(ctx, s, h.ImageHosts)
		if err != nil {
			d.Errors = append(d.Errors, "images: "+err.Error())
		}
		res.Images = imgs
	}

	d.ElapsedMs = time.Since(start).Milliseconds()
	log.Info("harvest finished",
		"records", len(res.Records),
		"strategy", d.Extraction.Strategy,
		"tier", d.Extraction.Tier,
		"swallowedErrors", len(d.Errors),
		"elapsedMs", d.ElapsedMs,
	)
	return res
}

// convergeContext withholds ExtractReserve from the caller's deadline.
func (h *Harvester) convergeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok || h.ExtractReserve <= 0 {
		return context.WithCancel(ctx)
	}
	cut := deadline.Add(-h.ExtractReserve)
	if !cut.After(time.Now()) {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, cut)
}

// dom picks the extraction backend. A failed snapshot falls back to the
// live page.
func (h *Harvester) dom(ctx context.Context, s Session, d *Diagnostics) DOM {
	if h.Mode != ModeSnapshot {
		return NewLiveDOM(s)
	}
	snap, err := SnapshotFromSession(ctx, s)
	if err != nil {
		d.Errors = append(d.Errors, "snapshot: "+err.Error())
		d.Mode = ModeLive
		return NewLiveDOM(s)
	}
	return snap
}

func appendPrefixed(dst []string, prefix string, src []string) []string {
	for _, e := range src {
		dst = append(dst, prefix+": "+e)
	}
	return dst
}
