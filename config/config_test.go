package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("platform:\n  base_url: https://m.example.com/\n"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "chromedp", cfg.BrowserDriver)
	assert.True(t, cfg.BrowserHeadless)
	assert.Equal(t, "for (;;);", cfg.ResponseSentinel)
	assert.Equal(t, 3, cfg.TokenAttempts)
	assert.Equal(t, 15, cfg.TokenRefreshEvery)
	assert.Equal(t, 5000, cfg.HistoryCap)
	assert.Equal(t, "https://m.example.com/login", cfg.PlatformLoginURL)
	assert.Equal(t, 2*time.Second, cfg.TokenRetryDelay)
	assert.GreaterOrEqual(t, cfg.DelayMax, cfg.DelayMin)
}

func TestParseKeepsExplicitValues(t *testing.T) {
	raw := `
browser:
  headless: false
  driver: rod
platform:
  sentinel: ""
orchestrator:
  concurrency: 7
  delay_min: 1s
  delay_max: 500ms
history:
  cap: 10
`
	cfg, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.False(t, cfg.BrowserHeadless)
	assert.Equal(t, "rod", cfg.BrowserDriver)
	assert.Equal(t, "", cfg.ResponseSentinel)
	assert.Equal(t, 7, cfg.Concurrency)
	assert.Equal(t, time.Second, cfg.DelayMin)
	assert.Equal(t, time.Second, cfg.DelayMax, "max is clamped to min")
	assert.Equal(t, 10, cfg.HistoryCap)
}

func TestParseFormFields(t *testing.T) {
	cfg, err := Parse([]byte("platform:\n  base_url: https://m.example.com/\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"av", "__user"}, cfg.Form.Actor)
	assert.Equal(t, "fb_dtsg", cfg.Form.CSRF)
	assert.Equal(t, "farr", cfg.UploadForm.File)
	assert.Equal(t, "8", cfg.UploadForm.Static["source"])

	raw := `
platform:
  form:
    actor: [uid]
    csrf: token
  upload_form:
    file: photo
    owner: [owner_id]
`
	cfg, err = Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"uid"}, cfg.Form.Actor)
	assert.Equal(t, "token", cfg.Form.CSRF)
	assert.Equal(t, "doc_id", cfg.Form.DocID)
	assert.Equal(t, "photo", cfg.UploadForm.File)
	assert.Equal(t, []string{"owner_id"}, cfg.UploadForm.Owner)
}

func TestManagerCreatesDefaultFileAndUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m := NewManager(path)

	cfg, err := m.Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, m.Update(map[string]interface{}{
		"orchestrator.concurrency": 9,
		"history.cap":              100,
	}))
	require.Error(t, m.Update(map[string]interface{}{"nope": 1}))

	reloaded, err := m.Reload()
	require.NoError(t, err)
	assert.Equal(t, 9, reloaded.Concurrency)
	assert.Equal(t, 100, reloaded.HistoryCap)
}
