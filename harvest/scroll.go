package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultExpandLabels are the "load more" affordance texts tried each round,
// in order.
var DefaultExpandLabels = []string{
	"展开更多评论", "查看全部评论", "加载更多", "更多评论",
	"展开", "更多", "查看更多", "点击查看全部评论", "显示更多评论",
	"Load more", "Show more", "View more comments", "Expand all",
}

// Default convergence tunables.
const (
	DefaultMaxRounds    = 20
	DefaultStableRounds = 3
	DefaultSettle       = 2 * time.Second
	DefaultClickDelay   = time.Second
	DefaultClickTimeout = 2 * time.Second
)

// ScrollState is the round-by-round state of the convergence loop.
type ScrollState struct {
	CurrentHeight int `json:"current_height"`
	LastHeight    int `json:"last_height"`
	StableRounds  int `json:"stable_rounds"`
	Round         int `json:"round"`
}

// Observe folds one round's before/after height reading into the state.
// A round is stable only when the height is unchanged across the round and
// equal to the height recorded at the last change.
func (s *ScrollState) Observe(before, after int) {
	s.Round++
	s.CurrentHeight = after
	if after == before && before == s.LastHeight {
		s.StableRounds++
		return
	}
	s.StableRounds = 0
	s.LastHeight = after
}

// Converged reports whether the page has been stable for threshold rounds.
func (s ScrollState) Converged(threshold int) bool {
	return s.StableRounds >= threshold
}

// StopReason says why convergence ended.
type StopReason string

const (
	StopStable  StopReason = "stable"
	StopBudget  StopReason = "budget"
	StopAborted StopReason = "aborted"
)

// Click records an expand affordance clicked during a round.
type Click struct {
	Round int    `json:"round"`
	Label string `json:"label"`
}

// ConvergeReport is the terminal state of a convergence run.
type ConvergeReport struct {
	State  ScrollState `json:"state"`
	Reason StopReason  `json:"reason"`
	Clicks []Click     `json:"clicks,omitempty"`
	Errors []string    `json:"errors,omitempty"`
}

// Driver scrolls a page and clicks expand affordances until its height stops
// changing or the round budget is spent.
type Driver struct {
	MaxRounds    int
	StableRounds int
	Settle       time.Duration
	ClickDelay   time.Duration
	ClickTimeout time.Duration
	ExpandLabels []string
	Logger       *slog.Logger
}

// NewDriver returns a Driver with default delays and labels.
func NewDriver(maxRounds int, settle time.Duration) *Driver {
	return &Driver{
		MaxRounds:    maxRounds,
		StableRounds: DefaultStableRounds,
		Settle:       settle,
		ClickDelay:   DefaultClickDelay,
		ClickTimeout: DefaultClickTimeout,
		ExpandLabels: DefaultExpandLabels,
	}
}

// Converge runs rounds until the page is stable for StableRounds rounds or
// MaxRounds rounds have run. A failure reading the height or scrolling ends
// the loop early with the last known state; click failures only skip the
// click.
func (d *Driver) Converge(ctx context.Context, s Session) ConvergeReport {
	log := loggerOr(d.Logger)
	threshold := d.StableRounds
	if threshold <= 0 {
		threshold = DefaultStableRounds
	}

	var rep ConvergeReport
	abort := func(step string, err error) ConvergeReport {
		rep.Reason = StopAborted
		rep.Errors = append(rep.Errors, fmt.Sprintf("round %d %s: %v", rep.State.Round+1, step, err))
		log.Debug("convergence aborted", "round", rep.State.Round+1, "step", step, "error", err)
		return rep
	}

	for rep.State.Round < d.MaxRounds {
		round := rep.State.Round + 1

		// ── 1. Height before ────────────────────────────────────────
		before, err := readHeight(ctx, s)
		if err != nil {
			return abort("read height", err)
		}

		// ── 2. Scroll to bottom, let lazy loading settle ────────────
		if _, err := s.Eval(ctx, scriptScrollBottom); err != nil {
			return abort("scroll", err)
		}
		if err := s.Wait(ctx, d.Settle); err != nil {
			return abort("settle", err)
		}

		// ── 3. Expand affordance (best-effort) ──────────────────────
		if label, ok := d.expand(ctx, s, round, &rep); ok {
			rep.Clicks = append(rep.Clicks, Click{Round: round, Label: label})
		}

		// ── 4. Height after ─────────────────────────────────────────
		after, err := readHeight(ctx, s)
		if err != nil {
			return abort("read height", err)
		}

		rep.State.Observe(before, after)
		log.Debug("scroll round",
			"round", round,
			"before", before,
			"after", after,
			"stableRounds", rep.State.StableRounds,
		)

		if rep.State.Converged(threshold) {
			rep.Reason = StopStable
			return rep
		}
	}

	rep.Reason = StopBudget
	return rep
}

// expand clicks the first visible expand control, trying labels in order.
// Lookup and click failures are recorded and the next label is tried.
func (d *Driver) expand(ctx context.Context, s Session, round int, rep *ConvergeReport) (string, bool) {
	for _, label := range d.ExpandLabels {
		if ctx.Err() != nil {
			return "", false
		}
		el, err := s.FindVisible(ctx, ByText(label))
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("round %d find %q: %v", round, label, err))
			continue
		}
		if el == nil {
			continue
		}

		clickCtx, cancel := context.WithTimeout(ctx, d.clickTimeout())
		err = el.Click(clickCtx)
		cancel()
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("round %d click %q: %v", round, label, err))
			continue
		}

		if d.ClickDelay > 0 {
			_ = s.Wait(ctx, d.ClickDelay)
		}
		return label, true
	}
	return "", false
}

func (d *Driver) clickTimeout() time.Duration {
	if d.ClickTimeout > 0 {
		return d.ClickTimeout
	}
	return DefaultClickTimeout
}

func readHeight(ctx context.Context, s Session) (int, error) {
	v, err := s.Eval(ctx, scriptHeight)
	if err != nil {
		return 0, err
	}
	return v.Int(), nil
}
