package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/infrastructure/platform"
	"listing_orchestrator/internal/logger"
	"listing_orchestrator/internal/metrics"
	"listing_orchestrator/internal/session"
)

const scriptTextExpr = `Array.from(document.scripts).map(s => s.textContent || "").join("\n")`

func inputValueExpr(selector string) string {
	quoted, _ := json.Marshal(selector)
	return fmt.Sprintf(`((document.querySelector(%s) || {}).value || "")`, quoted)
}

// TokenExtractor pulls the CSRF token and actor id out of an authenticated session.
type TokenExtractor struct {
	attempts    int
	retryDelay  time.Duration
	sleep       Sleeper
	actorCookie string
	csrfInput   string
	actorInput  string
	csrfScript  []*regexp.Regexp
	csrfMarkup  []*regexp.Regexp
	actorScript []*regexp.Regexp
	actorMarkup []*regexp.Regexp
}

// NewTokenExtractor compiles the configured fallback patterns.
func NewTokenExtractor(cfg *config.Config) (*TokenExtractor, error) {
	src := cfg.Tokens
	e := &TokenExtractor{
		attempts:    cfg.TokenAttempts,
		retryDelay:  cfg.TokenRetryDelay,
		sleep:       SleepContext,
		actorCookie: src.ActorCookie,
		csrfInput:   src.CSRFInputSelector,
		actorInput:  src.ActorInputSelector,
	}
	if e.attempts <= 0 {
		e.attempts = 3
	}
	var err error
	if e.csrfScript, err = compileAll(src.CSRFScriptPatterns); err != nil {
		return nil, err
	}
	if e.csrfMarkup, err = compileAll(src.CSRFMarkupPatterns); err != nil {
		return nil, err
	}
	if e.actorScript, err = compileAll(src.ActorScriptPatterns); err != nil {
		return nil, err
	}
	if e.actorMarkup, err = compileAll(src.ActorMarkupPatterns); err != nil {
		return nil, err
	}
	return e, nil
}

// SetSleeper replaces the wait used between attempts.
func (e *TokenExtractor) SetSleeper(s Sleeper) {
	if s != nil {
		e.sleep = s
	}
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("token pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// page lazily reads the document sources of one attempt.
type page struct {
	ctx     context.Context
	s       session.Session
	scripts *string
	markup  *string
}

func (p *page) scriptText() string {
	if p.scripts == nil {
		var text string
		if err := p.s.Evaluate(p.ctx, scriptTextExpr, &text); err != nil {
			logger.Debug("Script text unavailable", zap.Error(err))
		}
		p.scripts = &text
	}
	return *p.scripts
}

func (p *page) content() string {
	if p.markup == nil {
		text, err := p.s.Content(p.ctx)
		if err != nil {
			logger.Debug("Page content unavailable", zap.Error(err))
		}
		p.markup = &text
	}
	return *p.markup
}

func (p *page) input(selector string) string {
	if selector == "" {
		return ""
	}
	var value string
	if err := p.s.Evaluate(p.ctx, inputValueExpr(selector), &value); err != nil {
		return ""
	}
	return value
}

func firstMatch(text string, patterns []*regexp.Regexp) string {
	if text == "" {
		return ""
	}
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 && m[1] != "" {
			return m[1]
		}
	}
	return ""
}

// Extract tries every fallback for each missing token, up to the configured
// number of attempts. Tokens found in an earlier attempt are kept. On
// exhaustion the partial tokens come back with a *domain.TokenExtractionError.
func (e *TokenExtractor) Extract(ctx context.Context, s session.Session) (platform.Tokens, error) {
	var tok platform.Tokens
	for attempt := 1; attempt <= e.attempts; attempt++ {
		if attempt > 1 {
			if err := e.sleep(ctx, e.retryDelay); err != nil {
				return tok, err
			}
		}
		p := &page{ctx: ctx, s: s}
		if tok.CSRF == "" {
			tok.CSRF = e.csrf(p)
		}
		if tok.ActorID == "" {
			tok.ActorID = e.actor(ctx, p)
		}
		if tok.Complete() {
			metrics.TokenExtractionAttempts.WithLabelValues("complete").Inc()
			return tok, nil
		}
		metrics.TokenExtractionAttempts.WithLabelValues("partial").Inc()
		logger.Debug("Token extraction attempt incomplete",
			zap.Int("attempt", attempt),
			zap.Bool("csrf", tok.CSRF != ""),
			zap.Bool("actor", tok.ActorID != ""))
	}
	var missing []string
	if tok.CSRF == "" {
		missing = append(missing, "csrf_token")
	}
	if tok.ActorID == "" {
		missing = append(missing, "actor_id")
	}
	return tok, &domain.TokenExtractionError{Attempts: e.attempts, Missing: missing}
}

func (e *TokenExtractor) csrf(p *page) string {
	if v := firstMatch(p.scriptText(), e.csrfScript); v != "" {
		return v
	}
	if v := p.input(e.csrfInput); v != "" {
		return v
	}
	return firstMatch(p.content(), e.csrfMarkup)
}

func (e *TokenExtractor) actor(ctx context.Context, p *page) string {
	if e.actorCookie != "" {
		if v, err := p.s.ExtractCookie(ctx, e.actorCookie); err == nil && v != "" {
			return v
		}
	}
	if v := firstMatch(p.scriptText(), e.actorScript); v != "" {
		return v
	}
	if v := p.input(e.actorInput); v != "" {
		return v
	}
	return firstMatch(p.content(), e.actorMarkup)
}
