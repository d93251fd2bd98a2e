package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"listing_orchestrator/config"
	httpclient "listing_orchestrator/internal/infrastructure/http"
	"listing_orchestrator/internal/logger"
)

// Service fetches remote listing photos into the local media directory so the
// uploader only ever reads files from disk.
type Service struct {
	httpClient *httpclient.HTTPClient
	mediaDir   string
	maxBytes   int64
	maxAge     time.Duration
}

// NewService creates the media directory and returns a fetcher writing into it.
func NewService(cfg *config.Config, httpClient *httpclient.HTTPClient) (*Service, error) {
	if err := os.MkdirAll(cfg.MediaDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &Service{
		httpClient: httpClient,
		mediaDir:   cfg.MediaDir,
		maxBytes:   cfg.MediaMaxBytes,
		maxAge:     cfg.MediaMaxAge,
	}, nil
}

// DownloadResult describes one fetched photo.
type DownloadResult struct {
	FilePath string
	MIMEType string
	FileSize int64
	Duration time.Duration
}

// IsRemote reports whether path is an http(s) URL rather than a local file.
func IsRemote(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Localize returns paths with every remote entry replaced by its downloaded copy.
// Local paths pass through untouched.
func (s *Service) Localize(ctx context.Context, paths []string) ([]string, error) {
	out := make([]string, len(paths))
	for i, p := range paths {
		if !IsRemote(p) {
			out[i] = p
			continue
		}
		res, err := s.Download(ctx, p)
		if err != nil {
			return nil, err
		}
		out[i] = res.FilePath
	}
	return out, nil
}

// Download fetches one image. Bodies that are not images or exceed the size cap
// are rejected before anything is written.
func (s *Service) Download(ctx context.Context, url string) (*DownloadResult, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid photo url %s: %w", url, err)
	}
	resp, err := s.httpClient.GetClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s failed with status: %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("photo %s is larger than %d bytes", url, s.maxBytes)
	}
	kind, err := filetype.Match(data)
	if err != nil || !filetype.IsImage(data) {
		return nil, fmt.Errorf("photo %s is not an image", url)
	}

	name, err := gonanoid.New(16)
	if err != nil {
		return nil, err
	}
	filePath := filepath.Join(s.mediaDir, name+"."+kind.Extension)
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to save photo: %w", err)
	}

	logger.Debug("Photo downloaded", zap.String("url", url), zap.String("path", filePath), zap.Int("bytes", len(data)))
	return &DownloadResult{
		FilePath: filePath,
		MIMEType: kind.MIME.Value,
		FileSize: int64(len(data)),
		Duration: time.Since(start),
	}, nil
}

// Prune removes downloaded photos no material refers to any more. Files newer
// than the configured age are kept so an in-flight import is not raced.
func (s *Service) Prune(referenced []string) (int, error) {
	keep := make(map[string]bool, len(referenced))
	for _, p := range referenced {
		keep[filepath.Clean(p)] = true
	}

	entries, err := os.ReadDir(s.mediaDir)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		filePath := filepath.Join(s.mediaDir, entry.Name())
		if keep[filepath.Clean(filePath)] {
			continue
		}
		info, err := entry.Info()
		if err != nil || now.Sub(info.ModTime()) < s.maxAge {
			continue
		}
		if err := os.Remove(filePath); err != nil {
			logger.Warn("Failed to remove unused photo", zap.String("path", filePath), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
