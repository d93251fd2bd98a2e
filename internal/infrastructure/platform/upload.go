package platform

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"

	"listing_orchestrator/config"
	infrastructure "listing_orchestrator/internal/infrastructure/http"
	"listing_orchestrator/internal/session"
)

var extensionMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// DetectMIME sniffs the image type from content and falls back to the file extension.
func DetectMIME(path string, data []byte) (string, error) {
	if kind, err := filetype.Match(data); err == nil && kind != types.Unknown && strings.HasPrefix(kind.MIME.Value, "image/") {
		return kind.MIME.Value, nil
	}
	if mime, ok := extensionMIME[strings.ToLower(filepath.Ext(path))]; ok {
		return mime, nil
	}
	return "", fmt.Errorf("unsupported file type: %s", filepath.Base(path))
}

// Uploader posts photos to the upload endpoint outside the browser, carrying
// the session's cookies and user agent.
type Uploader struct {
	client    *infrastructure.HTTPClient
	uploadURL string
	origin    string
	sentinel  string
	fields    config.UploadFields
}

// NewUploader creates an Uploader. origin is sent as Origin and Referer and
// fields names the query and form parameters of the upload request.
func NewUploader(client *infrastructure.HTTPClient, uploadURL, origin, sentinel string, fields config.UploadFields) *Uploader {
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	if len(fields.Actor) == 0 {
		fields.Actor = []string{"actor"}
	}
	if fields.CSRF == "" {
		fields.CSRF = "csrf_token"
	}
	if fields.File == "" {
		fields.File = "file"
	}
	return &Uploader{
		client:    client,
		uploadURL: uploadURL,
		origin:    strings.TrimRight(origin, "/"),
		sentinel:  sentinel,
		fields:    fields,
	}
}

// Upload sends one photo and returns its upload-time id.
func (u *Uploader) Upload(ctx context.Context, s session.Session, tok Tokens, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	mime, err := DetectMIME(path, data)
	if err != nil {
		return "", err
	}
	cookies, err := s.Cookies(ctx)
	if err != nil {
		return "", fmt.Errorf("read session cookies: %w", err)
	}

	endpoint, err := url.Parse(u.uploadURL)
	if err != nil {
		return "", fmt.Errorf("upload url: %w", err)
	}
	q := endpoint.Query()
	for k, v := range u.fields.Query {
		q.Set(k, v)
	}
	for _, name := range u.fields.Actor {
		q.Set(name, tok.ActorID)
	}
	endpoint.RawQuery = q.Encode()

	header := map[string]string{
		"Cookie":         session.HeaderValue(cookies),
		"Accept":         "*/*",
		"Sec-Fetch-Site": "same-site",
		"Sec-Fetch-Mode": "cors",
	}
	if u.origin != "" {
		header["Origin"] = u.origin
		header["Referer"] = u.origin + "/"
	}
	if ua := s.Identity().UserAgent; ua != "" {
		header["User-Agent"] = ua
	}
	fields := map[string]string{u.fields.CSRF: tok.CSRF}
	for k, v := range u.fields.Static {
		fields[k] = v
	}
	for _, name := range u.fields.Owner {
		fields[name] = tok.ActorID
	}

	reply, err := u.client.PostMultipart(ctx, endpoint.String(), header, fields, infrastructure.FilePart{
		Field:    u.fields.File,
		Name:     filepath.Base(path),
		MIMEType: mime,
		Data:     data,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	if reply.Status != 200 {
		return "", &TransportError{Op: "upload " + filepath.Base(path), Status: reply.Status}
	}
	body, err := Clean(string(reply.Body), u.sentinel)
	if err != nil {
		return "", err
	}
	id, status := DecodeUpload(body)
	if status != Found {
		return "", fmt.Errorf("upload %s: no photo id in response (%s)", filepath.Base(path), status)
	}
	return id, nil
}
