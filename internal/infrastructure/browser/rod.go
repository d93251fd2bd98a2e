package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"listing_orchestrator/internal/logger"
	"listing_orchestrator/internal/session"
)

// RodDriver launches one browser per session through go-rod.
type RodDriver struct {
	Headless bool
	ExecPath string
}

// Open launches a browser, applies identity and starts capturing network traffic.
func (d *RodDriver) Open(ctx context.Context, identity session.Identity) (DriverSession, error) {
	l := launcher.New().
		Headless(d.Headless).
		NoSandbox(true).
		Leakless(false).
		Set(flags.Flag("disable-gpu")).
		Set(flags.Flag("disable-dev-shm-usage"))
	if d.ExecPath != "" {
		l = l.Bin(d.ExecPath)
	}
	if identity.Width > 0 && identity.Height > 0 {
		l = l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", identity.Width, identity.Height))
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("open page: %w", err)
	}

	s := &rodSession{browser: b, launcher: l, page: page, identity: identity, cap: newCapture(0)}
	if err := s.setup(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	identity session.Identity
	cap      *capture
	once     sync.Once
}

func (s *rodSession) setup() error {
	if s.identity.UserAgent != "" {
		if err := s.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.identity.UserAgent}); err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
	}
	if s.identity.Width > 0 && s.identity.Height > 0 {
		err := s.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             s.identity.Width,
			Height:            s.identity.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
	}
	if err := (proto.NetworkEnable{}).Call(s.page); err != nil {
		return fmt.Errorf("enable network: %w", err)
	}

	wait := s.page.EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			if e.Type != proto.NetworkResourceTypeXHR && e.Type != proto.NetworkResourceTypeFetch {
				return
			}
			var body strings.Builder
			for _, entry := range e.Request.PostDataEntries {
				body.Write(entry.Bytes)
			}
			s.cap.begin(string(e.RequestID), e.Request.URL, body.String())
		},
		func(e *proto.NetworkLoadingFailed) {
			s.cap.take(string(e.RequestID))
		},
		func(e *proto.NetworkLoadingFinished) {
			if r, ok := s.cap.take(string(e.RequestID)); ok {
				go s.collect(e.RequestID, r)
			}
		},
	)
	go wait()
	return nil
}

func (s *rodSession) collect(id proto.NetworkRequestID, r session.CapturedResponse) {
	res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(s.page)
	if err != nil {
		logger.Debug("Response body unavailable", zap.String("url", r.URL), zap.Error(err))
		return
	}
	body := res.Body
	if res.Base64Encoded {
		if raw, err := base64.StdEncoding.DecodeString(body); err == nil {
			body = string(raw)
		}
	}
	if r.RequestBody == "" {
		if post, err := (proto.NetworkGetRequestPostData{RequestID: id}).Call(s.page); err == nil {
			r.RequestBody = post.PostData
		}
	}
	r.Body = body
	s.cap.finish(r)
}

func (s *rodSession) Navigate(ctx context.Context, url string, policy session.NavigatePolicy) error {
	p := s.page.Context(ctx)
	if policy.Timeout > 0 {
		p = p.Timeout(policy.Timeout)
	}
	err := p.Navigate(url)
	if err == nil {
		err = p.WaitLoad()
	}
	if err != nil {
		if !(policy.TolerateTimeout && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
			return err
		}
		logger.Debug("Navigation timed out, continuing", zap.String("url", url))
	}
	if policy.Settle > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.Settle):
		}
	}
	return nil
}

func (s *rodSession) CurrentLocation(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (s *rodSession) Evaluate(ctx context.Context, expr string, out any) error {
	res, err := s.page.Context(ctx).Evaluate(&rod.EvalOptions{
		ByValue:      true,
		AwaitPromise: true,
		JS:           "() => (" + expr + ")",
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(res.Value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (s *rodSession) ExtractCookie(ctx context.Context, name string) (string, error) {
	cookies, err := s.Cookies(ctx)
	if err != nil {
		return "", err
	}
	v, _ := session.CookieValue(cookies, name)
	return v, nil
}

func (s *rodSession) Cookies(ctx context.Context) ([]session.Cookie, error) {
	raw, err := s.page.Context(ctx).Cookies(nil)
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
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out, nil
}

func (s *rodSession) SetCookies(ctx context.Context, cookies []session.Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: proto.NetworkCookieSameSite(sameSite(c.SameSite)),
			Expires:  proto.TimeSinceEpoch(c.Expires),
		})
	}
	return s.page.Context(ctx).SetCookies(params)
}

func (s *rodSession) Content(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

func (s *rodSession) Fetch(ctx context.Context, req session.Request) (*session.Response, error) {
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

func (s *rodSession) CapturedResponses(signature string) []session.CapturedResponse {
	return s.cap.match(signature)
}

func (s *rodSession) Scroll(ctx context.Context) error {
	height := 800.0
	if s.identity.Height > 0 {
		height = float64(s.identity.Height)
	}
	return s.page.Context(ctx).Mouse.Scroll(0, height, 4)
}

func (s *rodSession) Fill(ctx context.Context, selector, value string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(value)
}

func (s *rodSession) Click(ctx context.Context, selector string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (s *rodSession) Identity() session.Identity { return s.identity }

func (s *rodSession) Close() error {
	var err error
	s.once.Do(func() {
		err = s.browser.Close()
		s.launcher.Kill()
		s.launcher.Cleanup()
	})
	return err
}
