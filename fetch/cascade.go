package fetch

import (
	"context"
	"errors"
	"sync"

	"property-scraper/utils"
)

// Strategy is one mechanism for turning a URL into rendered HTML. A strategy
// returns a Page even for non-200 responses — the classifier decides what to
// do with it — and an error only for transport-level failures.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, req Request) (*Page, error)
}

// Cascade walks an ordered list of strategies, escalating on blocking
// signals. A strategy that succeeds for a site is remembered as a hint and
// tried first on that site's next fetch; the full cascade stays available
// behind it. Consecutive full-cascade failures are tallied per site so the
// caller can abandon a hopeless site early.
type Cascade struct {
	strategies []Strategy
	classifier *Classifier
	logger     *utils.Logger

	// AbandonAfter is the number of consecutive exhausted fetches after
	// which Abandoned reports true for a site.
	AbandonAfter int

	mu    sync.Mutex
	hints map[string]int // site key → index into strategies
	tally map[string]int // site key → consecutive full-cascade failures
}

// NewCascade builds a cascade over the given strategies, in escalation order.
func NewCascade(strategies []Strategy, classifier *Classifier, abandonAfter int, logger *utils.Logger) *Cascade {
	return &Cascade{
		strategies:   strategies,
		classifier:   classifier,
		logger:       logger,
		AbandonAfter: abandonAfter,
		hints:        make(map[string]int),
		tally:        make(map[string]int),
	}
}

// order returns strategy indices to try for a site: the hinted strategy
// first (optimistic reordering), then the rest in configured order.
func (c *Cascade) order(siteKey string) []int {
	c.mu.Lock()
	hint, hinted := c.hints[siteKey]
	c.mu.Unlock()

	idx := make([]int, 0, len(c.strategies))
	if hinted {
		idx = append(idx, hint)
	}
	for i := range c.strategies {
		if hinted && i == hint {
			continue
		}
		idx = append(idx, i)
	}
	return idx
}

// Fetch runs the cascade for one URL with a total attempt budget shared
// across strategies: a retry and an escalation both consume one attempt, and
// unused budget carries over to the next strategy. On exhaustion it returns
// a *Failure; the caller proceeds with an empty page for that URL.
func (c *Cascade) Fetch(ctx context.Context, req Request, budget int) (*Page, error) {
	if budget <= 0 {
		budget = 1
	}
	remaining := budget
	lastReason := "no strategies configured"

	for _, i := range c.order(req.SiteKey) {
		strat := c.strategies[i]

		for remaining > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			remaining--

			page, err := strat.Fetch(ctx, req)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				if errors.Is(err, ErrUnsupported) {
					remaining++ // an unsupported pairing costs no budget
					lastReason = strat.Name() + ": unsupported"
					break // escalate
				}
				if errors.Is(err, context.DeadlineExceeded) {
					lastReason = strat.Name() + ": timeout"
					c.logger.Debug("[fetch] %s timed out on %s — escalating", strat.Name(), req.URL)
					break // escalate
				}
				lastReason = strat.Name() + ": " + err.Error()
				c.logger.Debug("[fetch] %s transport error on %s: %v — retrying", strat.Name(), req.URL, err)
				continue // retry same strategy
			}

			verdict, reason := c.classifier.Classify(page.StatusCode, page.HTML)
			switch verdict {
			case Pass:
				c.recordSuccess(req.SiteKey, i)
				page.Strategy = strat.Name()
				return page, nil
			case Retry:
				lastReason = strat.Name() + ": " + reason
				c.logger.Debug("[fetch] %s on %s: %s — retrying", strat.Name(), req.URL, reason)
			case Escalate:
				lastReason = strat.Name() + ": " + reason
				c.logger.Debug("[fetch] %s on %s: %s — escalating", strat.Name(), req.URL, reason)
			}
			if verdict == Escalate {
				break
			}
		}

		if remaining == 0 {
			break
		}
	}

	c.recordFailure(req.SiteKey)
	return nil, &Failure{URL: req.URL, SiteKey: req.SiteKey, Reason: lastReason}
}

func (c *Cascade) recordSuccess(siteKey string, strategyIdx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.hints[siteKey]; !ok || prev != strategyIdx {
		c.logger.Debug("[fetch] Hinting %s for site %s", c.strategies[strategyIdx].Name(), siteKey)
	}
	c.hints[siteKey] = strategyIdx
	c.tally[siteKey] = 0
}

func (c *Cascade) recordFailure(siteKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tally[siteKey]++
}

// Abandoned reports whether a site has hit the consecutive-failure
// threshold and should be given up on for the rest of the run.
func (c *Cascade) Abandoned(siteKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.AbandonAfter > 0 && c.tally[siteKey] >= c.AbandonAfter
}

// Hint exposes the remembered strategy name for a site, for reporting.
func (c *Cascade) Hint(siteKey string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.hints[siteKey]; ok {
		return c.strategies[i].Name()
	}
	return ""
}
