package browser

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"listing_orchestrator/internal/logger"
	"listing_orchestrator/internal/session"
)

// ChromeDriver launches a local Chrome per session through chromedp.
type ChromeDriver struct {
	Headless bool
	ExecPath string
	// RemoteURL attaches to an already running browser instead of launching one.
	RemoteURL string
}

// Open starts a browser with the given identity and enables network capture.
func (d *ChromeDriver) Open(ctx context.Context, identity session.Identity) (DriverSession, error) {
	var (
		allocCtx    context.Context
		cancelAlloc context.CancelFunc
	)
	if d.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), d.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", d.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.NoSandbox,
		)
		if identity.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(identity.UserAgent))
		}
		if identity.Width > 0 && identity.Height > 0 {
			opts = append(opts, chromedp.WindowSize(identity.Width, identity.Height))
		}
		if d.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(d.ExecPath))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		tab:      tabCtx,
		identity: identity,
		cap:      newCapture(0),
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
	}
	chromedp.ListenTarget(tabCtx, s.onEvent)

	actions := []chromedp.Action{network.Enable()}
	if d.RemoteURL != "" && identity.Width > 0 && identity.Height > 0 {
		actions = append(actions, chromedp.EmulateViewport(int64(identity.Width), int64(identity.Height)))
	}
	if err := s.run(ctx, actions...); err != nil {
		s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

type chromeSession struct {
	tab      context.Context
	cancel   context.CancelFunc
	identity session.Identity
	cap      *capture
	once     sync.Once
}

// run executes actions on the tab, also stopping when ctx is done.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *chromeSession) onEvent(ev any) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		if ev.Type != network.ResourceTypeXHR && ev.Type != network.ResourceTypeFetch {
			return
		}
		parts := make([]string, 0, len(ev.Request.PostDataEntries))
		for _, e := range ev.Request.PostDataEntries {
			parts = append(parts, e.Bytes)
		}
		s.cap.begin(string(ev.RequestID), ev.Request.URL, decodePostEntries(parts))
	case *network.EventLoadingFailed:
		s.cap.take(string(ev.RequestID))
	case *network.EventLoadingFinished:
		r, ok := s.cap.take(string(ev.RequestID))
		if !ok {
			return
		}
		// Listener callbacks must not block on CDP calls.
		go s.collect(ev.RequestID, r)
	}
}

func (s *chromeSession) collect(id network.RequestID, r session.CapturedResponse) {
	c := chromedp.FromContext(s.tab)
	if c == nil || c.Target == nil {
		return
	}
	ctx := cdp.WithExecutor(s.tab, c.Target)
	body, err := network.GetResponseBody(id).Do(ctx)
	if err != nil {
		logger.Debug("Response body unavailable", zap.String("url", r.URL), zap.Error(err))
		return
	}
	if r.RequestBody == "" {
		if post, err := network.GetRequestPostData(id).Do(ctx); err == nil {
			r.RequestBody = post
		}
	}
	r.Body = string(body)
	s.cap.finish(r)
}

func (s *chromeSession) Navigate(ctx context.Context, url string, policy session.NavigatePolicy) error {
	navCtx := ctx
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}
	err := s.run(navCtx, chromedp.Navigate(url))
	if err != nil {
		if !(policy.TolerateTimeout && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
			return err
		}
		logger.Debug("Navigation timed out, continuing", zap.String("url", url))
	}
	if policy.Settle > 0 {
		return s.run(ctx, chromedp.Sleep(policy.Settle))
	}
	return nil
}

func (s *chromeSession) CurrentLocation(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (s *chromeSession) Evaluate(ctx context.Context, expr string, out any) error {
	return s.run(ctx, chromedp.Evaluate(expr, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

func (s *chromeSession) ExtractCookie(ctx context.Context, name string) (string, error) {
	cookies, err := s.Cookies(ctx)
	if err != nil {
		return "", err
	}
	v, _ := session.CookieValue(cookies, name)
	return v, nil
}

func (s *chromeSession) Cookies(ctx context.Context) ([]session.Cookie, error) {
	var raw []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	out := make([]session.Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, session.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out, nil
}

func (s *chromeSession) SetCookies(ctx context.Context, cookies []session.Cookie) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			path := c.Path
			if path == "" {
				path = "/"
			}
			p := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)
			if ss := sameSite(c.SameSite); ss != "" {
				p = p.WithSameSite(ss)
			}
			if c.Expires > 0 {
				sec, frac := math.Modf(c.Expires)
				exp := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
				p = p.WithExpires(&exp)
			}
			if err := p.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

func sameSite(v string) network.CookieSameSite {
	switch strings.ToLower(v) {
	case "strict":
		return network.CookieSameSiteStrict
	case "lax":
		return network.CookieSameSiteLax
	case "none", "no_restriction":
		return network.CookieSameSiteNone
	}
	return ""
}

func (s *chromeSession) Content(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (s *chromeSession) Fetch(ctx context.Context, req session.Request) (*session.Response, error) {
	script, err := fetchScript(req)
	if err != nil {
		return nil, err
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	var resp session.Response
	if err := s.Evaluate(ctx, script, &resp); err != nil {
		return nil, fmt.Errorf("in-session fetch %s: %w", req.URL, err)
	}
	return &resp, nil
}

func (s *chromeSession) CapturedResponses(signature string) []session.CapturedResponse {
	return s.cap.match(signature)
}

func (s *chromeSession) Scroll(ctx context.Context) error {
	var height float64
	return s.run(ctx, chromedp.Evaluate(scrollScript, &height))
}

func (s *chromeSession) Fill(ctx context.Context, selector, value string) error {
	return s.run(ctx,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (s *chromeSession) Identity() session.Identity { return s.identity }

func (s *chromeSession) Close() error {
	s.once.Do(s.cancel)
	return nil
}
