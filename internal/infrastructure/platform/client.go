// Package platform speaks the remote marketplace's private query API from
// inside an authenticated session.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/session"
)

// Operation names resolved to remote doc ids through configuration.
const (
	OpCreateListing = "listing_create"
	OpEditListing   = "listing_edit"
	OpPublishDraft  = "publish_draft"
	OpRenewListing  = "listing_renew"
	OpRelistListing = "listing_relist"
	OpDeleteListing = "listing_delete"
	OpSellingQuery  = "selling_query"
	OpSearchQuery   = "search_query"
	OpLocationQuery = "location_query"
	OpGroupQuery    = "group_query"
	OpGroupPost     = "group_post"
)

// DefaultSentinel prefixes many responses and must be stripped before decoding.
const DefaultSentinel = "for (;;);"

// Tokens are the per-session values every call carries.
type Tokens struct {
	CSRF    string
	ActorID string
}

// Complete reports whether both tokens are present.
func (t Tokens) Complete() bool { return t.CSRF != "" && t.ActorID != "" }

// Endpoint describes where and how calls are sent.
type Endpoint struct {
	APIURL     string
	Sentinel   string
	Operations map[string]string
	Timeout    time.Duration
	Form       config.FormFields
}

// TransportError reports a call the remote rejected before any application
// payload was produced.
type TransportError struct {
	Op     string
	Status int
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
}

// formWithDefaults fills unnamed fields with generic names.
func formWithDefaults(f config.FormFields) config.FormFields {
	if len(f.Actor) == 0 {
		f.Actor = []string{"actor"}
	}
	if f.CSRF == "" {
		f.CSRF = "csrf_token"
	}
	if f.DocID == "" {
		f.DocID = "doc_id"
	}
	if f.Variables == "" {
		f.Variables = "variables"
	}
	if f.Operation == "" {
		f.Operation = "operation"
	}
	return f
}

// Client issues form-encoded queries through Session.Fetch so the session's
// cookies and identity are used.
type Client struct {
	ep Endpoint
}

// NewClient creates a Client.
func NewClient(ep Endpoint) *Client {
	if ep.Sentinel == "" {
		ep.Sentinel = DefaultSentinel
	}
	if ep.Timeout == 0 {
		ep.Timeout = 60 * time.Second
	}
	ep.Form = formWithDefaults(ep.Form)
	return &Client{ep: ep}
}

// DocID returns the configured doc id of op.
func (c *Client) DocID(op string) (string, bool) {
	id, ok := c.ep.Operations[op]
	return id, ok && id != ""
}

// EncodeForm builds the request body of one call using the field names in fields.
func EncodeForm(fields config.FormFields, tok Tokens, op, docID string, variables any) (string, error) {
	vars, err := json.Marshal(variables)
	if err != nil {
		return "", fmt.Errorf("encode variables: %w", err)
	}
	form := url.Values{}
	for k, v := range fields.Static {
		form.Set(k, v)
	}
	for _, name := range fields.Actor {
		form.Set(name, tok.ActorID)
	}
	form.Set(fields.CSRF, tok.CSRF)
	form.Set(fields.Operation, op)
	form.Set(fields.Variables, string(vars))
	form.Set(fields.DocID, docID)
	return form.Encode(), nil
}

// Call sends op with variables and returns the cleaned JSON body. Application
// errors reported by the remote come back as *domain.RemoteMutationError.
func (c *Client) Call(ctx context.Context, s session.Session, tok Tokens, op string, variables any) ([]byte, error) {
	docID, ok := c.DocID(op)
	if !ok {
		return nil, fmt.Errorf("operation %q has no configured doc id", op)
	}
	body, err := EncodeForm(c.ep.Form, tok, op, docID, variables)
	if err != nil {
		return nil, err
	}
	resp, err := s.Fetch(ctx, session.Request{
		Method:  "POST",
		URL:     c.ep.APIURL,
		Header:  map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    body,
		Timeout: c.ep.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.Status >= 400 {
		return nil, &TransportError{Op: op, Status: resp.Status}
	}
	return c.Clean(resp.Body)
}

// Clean strips the sentinel and surfaces remote application errors.
func (c *Client) Clean(raw string) ([]byte, error) {
	return Clean(raw, c.ep.Sentinel)
}

type errorEnvelope struct {
	Errors []struct {
		Message string `json:"message"`
		Summary string `json:"summary"`
	} `json:"errors"`
	Error            json.RawMessage `json:"error"`
	ErrorSummary     string          `json:"errorSummary"`
	ErrorDescription string          `json:"errorDescription"`
}

// Clean strips sentinel from raw and returns a *domain.RemoteMutationError for
// empty, undecodable or error-carrying bodies.
func Clean(raw, sentinel string) ([]byte, error) {
	text := StripSentinel(raw, sentinel)
	if text == "" {
		return nil, &domain.RemoteMutationError{Message: "empty response"}
	}
	data := []byte(text)
	if i := bytes.IndexByte(data, '\n'); i > 0 && json.Valid(data[:i]) {
		// Streamed responses carry the primary payload on the first line.
		data = data[:i]
	}
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &domain.RemoteMutationError{Message: "malformed response: " + err.Error()}
	}
	if msg := env.message(); msg != "" {
		return nil, &domain.RemoteMutationError{Message: msg}
	}
	return data, nil
}

func (e errorEnvelope) message() string {
	if len(e.Errors) > 0 {
		parts := make([]string, 0, len(e.Errors))
		for _, x := range e.Errors {
			switch {
			case x.Message != "":
				parts = append(parts, x.Message)
			case x.Summary != "":
				parts = append(parts, x.Summary)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
		return "remote error"
	}
	switch string(e.Error) {
	case "", "null", "false", "0", `""`:
		return ""
	}
	if e.ErrorDescription != "" {
		return e.ErrorDescription
	}
	if e.ErrorSummary != "" {
		return e.ErrorSummary
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(e.Error, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if json.Unmarshal(e.Error, &s) == nil && s != "" {
		return s
	}
	return string(e.Error)
}

// StripSentinel removes a leading sentinel and surrounding whitespace.
func StripSentinel(raw, sentinel string) string {
	text := strings.TrimSpace(raw)
	if sentinel != "" {
		text = strings.TrimSpace(strings.TrimPrefix(text, sentinel))
	}
	return text
}
