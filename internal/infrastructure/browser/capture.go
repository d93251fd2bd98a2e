package browser

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"listing_orchestrator/internal/session"
)

const defaultCaptureLimit = 400

// capture buffers XHR/fetch responses observed by a page so workflows can decode
// them after the fact. Oldest responses are dropped past limit.
type capture struct {
	mu      sync.Mutex
	pending map[string]session.CapturedResponse
	done    []session.CapturedResponse
	limit   int
}

func newCapture(limit int) *capture {
	if limit <= 0 {
		limit = defaultCaptureLimit
	}
	return &capture{pending: make(map[string]session.CapturedResponse), limit: limit}
}

func (c *capture) begin(id, url, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[id] = session.CapturedResponse{URL: url, RequestBody: body}
}

// take removes and returns the pending request with id.
func (c *capture) take(id string) (session.CapturedResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.pending[id]
	delete(c.pending, id)
	return r, ok
}

func (c *capture) finish(r session.CapturedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done = append(c.done, r)
	if over := len(c.done) - c.limit; over > 0 {
		c.done = append(c.done[:0:0], c.done[over:]...)
	}
}

func (c *capture) match(signature string) []session.CapturedResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []session.CapturedResponse
	for _, r := range c.done {
		if signature == "" || strings.Contains(r.URL, signature) || strings.Contains(r.RequestBody, signature) {
			out = append(out, r)
		}
	}
	return out
}

// decodePostEntries joins base64 post data entries, keeping undecodable parts verbatim.
func decodePostEntries(parts []string) string {
	var b strings.Builder
	for _, p := range parts {
		raw, err := base64.StdEncoding.DecodeString(p)
		if err != nil {
			b.WriteString(p)
			continue
		}
		b.Write(raw)
	}
	return b.String()
}

// fetchScript builds an async function body issuing req with the page's cookies.
func fetchScript(req session.Request) (string, error) {
	method := req.Method
	if method == "" {
		method = "GET"
	}
	init := map[string]any{
		"method":      method,
		"credentials": "include",
	}
	if len(req.Header) > 0 {
		init["headers"] = req.Header
	}
	if req.Body != "" {
		init["body"] = req.Body
	}
	urlJSON, err := json.Marshal(req.URL)
	if err != nil {
		return "", err
	}
	initJSON, err := json.Marshal(init)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(async () => {
	const r = await fetch(%s, %s);
	return {status: r.status, body: await r.text()};
})()`, urlJSON, initJSON), nil
}

const scrollScript = `(() => { window.scrollBy(0, Math.max(window.innerHeight, 600)); return document.body ? document.body.scrollHeight : 0; })()`
