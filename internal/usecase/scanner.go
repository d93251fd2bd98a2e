package usecase

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/infrastructure/platform"
	"listing_orchestrator/internal/logger"
	"listing_orchestrator/internal/metrics"
	"listing_orchestrator/internal/session"
)

// Scan strategies, in the order they are tried.
const (
	StrategyCaptured = "captured"
	StrategyQuery    = "query"
	StrategyMarkup   = "markup"
)

// ScanTarget describes one remote surface to harvest.
type ScanTarget struct {
	Kind      domain.ScanKind
	URL       string
	Signature string
	Op        string
	Vars      map[string]any
	Shape     platform.Shape
}

// ScanResult is the deduplicated outcome of scanning one target.
type ScanResult struct {
	Nodes    []platform.Node
	Strategy string
}

// ScanOptions tunes scrolling and direct queries.
type ScanOptions struct {
	MaxNoGrowth int
	MaxScrolls  int
	ScrollPause time.Duration
	Sentinel    string
	PageSize    int
	MaxPages    int
}

// ScanOptionsFrom reads the scan settings out of cfg.
func ScanOptionsFrom(cfg *config.Config) ScanOptions {
	return ScanOptions{
		MaxNoGrowth: cfg.ScanMaxNoGrowth,
		MaxScrolls:  cfg.ScanMaxScrolls,
		ScrollPause: cfg.ScanScrollPause,
		Sentinel:    cfg.ResponseSentinel,
		PageSize:    24,
		MaxPages:    10,
	}
}

// nodeSet keeps the first node seen for every id, in discovery order.
type nodeSet struct {
	seen  map[string]bool
	nodes []platform.Node
}

func newNodeSet() *nodeSet { return &nodeSet{seen: make(map[string]bool)} }

// add reports how many nodes were new.
func (s *nodeSet) add(nodes []platform.Node) int {
	added := 0
	for _, n := range nodes {
		if n.ID == "" || s.seen[n.ID] {
			continue
		}
		s.seen[n.ID] = true
		s.nodes = append(s.nodes, n)
		added++
	}
	return added
}

// Scanner harvests nodes from remote surfaces with a layered strategy:
// captured responses while scrolling, then a direct in-session query, then the
// payload embedded in the markup.
type Scanner struct {
	remote RemoteCaller
	tokens TokenSource
	opts   ScanOptions
	nav    session.NavigatePolicy
	sleep  Sleeper
}

// NewScanner creates a Scanner.
func NewScanner(remote RemoteCaller, tokens TokenSource, opts ScanOptions, nav session.NavigatePolicy) *Scanner {
	if opts.MaxNoGrowth <= 0 {
		opts.MaxNoGrowth = 3
	}
	if opts.MaxScrolls <= 0 {
		opts.MaxScrolls = 50
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 24
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	if opts.Sentinel == "" {
		opts.Sentinel = platform.DefaultSentinel
	}
	return &Scanner{remote: remote, tokens: tokens, opts: opts, nav: nav, sleep: SleepContext}
}

// SetSleeper replaces the pause between scrolls.
func (sc *Scanner) SetSleeper(s Sleeper) {
	if s != nil {
		sc.sleep = s
	}
}

// Scan runs the layered strategy against target. tok may be incomplete; the
// direct query then extracts tokens itself.
func (sc *Scanner) Scan(ctx context.Context, s session.Session, tok platform.Tokens, target ScanTarget) (ScanResult, error) {
	started := time.Now()
	defer func() {
		metrics.ScanDuration.WithLabelValues(string(target.Kind)).Observe(time.Since(started).Seconds())
	}()

	if target.URL != "" {
		if err := s.Navigate(ctx, target.URL, sc.nav); err != nil {
			return ScanResult{}, err
		}
	}

	set := newNodeSet()
	if err := sc.scrollCaptured(ctx, s, target, set); err != nil {
		return ScanResult{}, err
	}
	if len(set.nodes) > 0 {
		return ScanResult{Nodes: set.nodes, Strategy: StrategyCaptured}, nil
	}

	if err := sc.query(ctx, s, tok, target, set); err != nil {
		if ctx.Err() != nil {
			return ScanResult{}, ctx.Err()
		}
		logger.Debug("Direct query unavailable", zap.String("kind", string(target.Kind)), zap.Error(err))
	}
	if len(set.nodes) > 0 {
		return ScanResult{Nodes: set.nodes, Strategy: StrategyQuery}, nil
	}

	markup, err := s.Content(ctx)
	if err != nil {
		return ScanResult{}, err
	}
	res := target.Shape.DecodeMarkup(markup)
	if res.Status == platform.Malformed {
		logger.Debug("Embedded payload malformed", zap.String("kind", string(target.Kind)), zap.Error(res.Err))
	}
	set.add(res.Page.Nodes)
	return ScanResult{Nodes: set.nodes, Strategy: StrategyMarkup}, nil
}

// scrollCaptured decodes captured responses, scrolling until MaxNoGrowth
// consecutive rounds add nothing.
func (sc *Scanner) scrollCaptured(ctx context.Context, s session.Session, target ScanTarget, set *nodeSet) error {
	if target.Signature == "" {
		return nil
	}
	noGrowth := 0
	for scroll := 0; scroll <= sc.opts.MaxScrolls; scroll++ {
		added := 0
		for _, resp := range s.CapturedResponses(target.Signature) {
			added += set.add(sc.decodeBody(target.Shape, resp.Body).Page.Nodes)
		}
		if added == 0 {
			noGrowth++
		} else {
			noGrowth = 0
		}
		if noGrowth >= sc.opts.MaxNoGrowth || scroll == sc.opts.MaxScrolls {
			return nil
		}
		if err := s.Scroll(ctx); err != nil {
			logger.Debug("Scroll failed", zap.Error(err))
			return nil
		}
		if err := sc.sleep(ctx, sc.opts.ScrollPause); err != nil {
			return err
		}
	}
	return nil
}

func (sc *Scanner) decodeBody(shape platform.Shape, body string) platform.Result {
	data, err := platform.Clean(body, sc.opts.Sentinel)
	if err != nil {
		return platform.Result{Status: platform.Malformed, Err: err}
	}
	return shape.Decode(data)
}

// query pages through the equivalent private API query.
func (sc *Scanner) query(ctx context.Context, s session.Session, tok platform.Tokens, target ScanTarget, set *nodeSet) error {
	if target.Op == "" || sc.remote == nil {
		return nil
	}
	if !tok.Complete() {
		if sc.tokens == nil {
			return nil
		}
		var err error
		if tok, err = sc.tokens.Extract(ctx, s); err != nil {
			return err
		}
	}
	cursor := ""
	for page := 0; page < sc.opts.MaxPages; page++ {
		body, err := sc.remote.Call(ctx, s, tok, target.Op, platform.QueryVariables(target.Vars, cursor, sc.opts.PageSize))
		if err != nil {
			return err
		}
		res := target.Shape.Decode(body)
		if res.Status != platform.Found || set.add(res.Page.Nodes) == 0 {
			return res.Err
		}
		if !res.Page.HasNext || res.Page.EndCursor == "" || res.Page.EndCursor == cursor {
			return nil
		}
		cursor = res.Page.EndCursor
	}
	return nil
}

// surfaceURL joins a configured surface with optional query parameters.
func surfaceURL(base string, params map[string]string) string {
	if base == "" || len(params) == 0 {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func matchesKind(kind domain.ScanKind, n platform.Node) bool {
	switch kind {
	case domain.ScanRenew:
		return n.Renewable
	case domain.ScanRelist:
		return n.Relistable
	case domain.ScanViolations:
		return n.Violating || strings.EqualFold(n.Status, "REJECTED")
	}
	return true
}
