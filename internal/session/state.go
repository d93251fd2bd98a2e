package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Cookie is the persisted form of a browser cookie (EditThisCookie-compatible JSON).
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expirationDate,omitempty"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// StateStore persists cookie state per account. The returned handle is what the
// account stores as its session handle.
type StateStore interface {
	Load(accountID string) ([]Cookie, error)
	Save(accountID string, cookies []Cookie) (string, error)
	Delete(accountID string) error
}

// FileStateStore keeps one JSON file per account under dir.
type FileStateStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStateStore creates a FileStateStore rooted at dir.
func NewFileStateStore(dir string) *FileStateStore {
	return &FileStateStore{dir: dir}
}

func (s *FileStateStore) path(accountID string) string {
	return filepath.Join(s.dir, filepath.Base(accountID)+".json")
}

// Load returns nil without error when no state exists.
func (s *FileStateStore) Load(accountID string) ([]Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(accountID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session state: %w", err)
	}
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	return cookies, nil
}

func (s *FileStateStore) Save(accountID string, cookies []Cookie) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return "", err
	}
	path := s.path(accountID)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write session state: %w", err)
	}
	return path, nil
}

func (s *FileStateStore) Delete(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(accountID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ParseCookies accepts either a JSON cookie array or a "name=value; name2=value2"
// header string. Header cookies are scoped to domain.
func ParseCookies(text, domain string) ([]Cookie, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("cookie text is empty")
	}
	if strings.HasPrefix(text, "[") {
		var cookies []Cookie
		if err := json.Unmarshal([]byte(text), &cookies); err != nil {
			return nil, fmt.Errorf("decode cookie json: %w", err)
		}
		return cookies, nil
	}

	var cookies []Cookie
	for _, part := range strings.Split(text, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, Cookie{Name: name, Value: value, Domain: domain, Path: "/", Secure: true})
	}
	if len(cookies) == 0 {
		return nil, errors.New("no cookies found")
	}
	return cookies, nil
}

// CookieValue returns the value of the named cookie.
func CookieValue(cookies []Cookie, name string) (string, bool) {
	for _, c := range cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// HeaderValue renders cookies as a Cookie request header.
func HeaderValue(cookies []Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
