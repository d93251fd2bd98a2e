package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerPort string `yaml:"server.port"`

	// Database configuration
	DatabaseURL string `yaml:"database.url"`

	// Logging configuration
	LogDirectory  string `yaml:"logging.dir"`
	LogOutputFile string `yaml:"logging.output_file"`
	LogErrorFile  string `yaml:"logging.error_file"`
	LogLevel      string `yaml:"logging.level"`

	// Browser session configuration
	BrowserDriver            string           `yaml:"browser.driver"` // chromedp or rod
	BrowserHeadless          bool             `yaml:"browser.headless"`
	BrowserExecPath          string           `yaml:"browser.exec_path"`
	BrowserNavTimeout        time.Duration    `yaml:"-"`
	BrowserNavTimeoutStr     string           `yaml:"browser.navigation_timeout"`
	SessionsDir              string           `yaml:"browser.sessions_dir"`
	Identities               []ClientIdentity `yaml:"browser.identities"`
	LoginUserSelector        string           `yaml:"browser.login.user_selector"`
	LoginPasswordSelector    string           `yaml:"browser.login.password_selector"`
	LoginSubmitSelector      string           `yaml:"browser.login.submit_selector"`
	InteractiveLoginTimeout  time.Duration    `yaml:"-"`
	InteractiveLoginTimeoutS string           `yaml:"browser.login.interactive_timeout"`

	// Remote platform configuration
	PlatformBaseURL     string            `yaml:"platform.base_url"`
	PlatformHomeURL     string            `yaml:"platform.home_url"`
	PlatformLoginURL    string            `yaml:"platform.login_url"`
	PlatformCreateURL   string            `yaml:"platform.create_url"`
	PlatformProfileURL  string            `yaml:"platform.profile_url"`
	PlatformAPIPath     string            `yaml:"platform.api_path"`
	PlatformUploadURL   string            `yaml:"platform.upload_url"`
	ResponseSentinel    string            `yaml:"platform.sentinel"`
	LimitMarkers        []string          `yaml:"platform.limit_markers"`
	Operations          map[string]string `yaml:"platform.operations"`
	HomePatterns        []string          `yaml:"platform.home_patterns"`
	LoginMarkers        []string          `yaml:"platform.login_markers"`
	InterventionMarkers []string          `yaml:"platform.intervention_markers"`
	SurfaceURLs         map[string]string `yaml:"platform.surfaces"`
	QuerySignatures     map[string]string `yaml:"platform.signatures"`
	Tokens              TokenSources      `yaml:"platform.tokens"`
	Form                FormFields        `yaml:"platform.form"`
	UploadForm          UploadFields      `yaml:"platform.upload_form"`
	CategoryMap         map[string]string `yaml:"platform.categories"`
	ConditionMap        map[string]string `yaml:"platform.conditions"`
	DefaultCategory     string            `yaml:"platform.default_category"`
	DefaultCondition    string            `yaml:"platform.default_condition"`
	Currency            string            `yaml:"platform.currency"`
	DefaultLatitude     float64           `yaml:"platform.default_latitude"`
	DefaultLongitude    float64           `yaml:"platform.default_longitude"`

	// Orchestrator tuning
	Concurrency          int           `yaml:"orchestrator.concurrency"`
	DelayMin             time.Duration `yaml:"-"`
	DelayMinStr          string        `yaml:"orchestrator.delay_min"`
	DelayMax             time.Duration `yaml:"-"`
	DelayMaxStr          string        `yaml:"orchestrator.delay_max"`
	TokenAttempts        int           `yaml:"orchestrator.token_attempts"`
	TokenRetryDelay      time.Duration `yaml:"-"`
	TokenRetryDelayStr   string        `yaml:"orchestrator.token_retry_delay"`
	TokenRefreshEvery    int           `yaml:"orchestrator.token_refresh_every"`
	SettleDelay          time.Duration `yaml:"-"`
	SettleDelayStr       string        `yaml:"orchestrator.settle_delay"`
	LaunchDelay          time.Duration `yaml:"-"`
	LaunchDelayStr       string        `yaml:"orchestrator.launch_delay"`
	UploadGapMin         time.Duration `yaml:"-"`
	UploadGapMinStr      string        `yaml:"orchestrator.upload_gap_min"`
	UploadGapMax         time.Duration `yaml:"-"`
	UploadGapMaxStr      string        `yaml:"orchestrator.upload_gap_max"`
	EventBufferSize      int           `yaml:"orchestrator.event_buffer"`
	ValidationConcurrent int           `yaml:"orchestrator.validation_concurrency"`

	// Scan configuration
	ScanMaxNoGrowth  int            `yaml:"scan.max_no_growth"`
	ScanMaxScrolls   int            `yaml:"scan.max_scrolls"`
	ScanScrollPause  time.Duration  `yaml:"-"`
	ScanScrollPauseS string         `yaml:"scan.scroll_pause"`
	HistoryCap       int            `yaml:"history.cap"`
	MediaDir         string         `yaml:"media.dir"`
	MediaMaxBytes    int64          `yaml:"media.max_bytes"`
	MediaMaxAge      time.Duration  `yaml:"-"`
	MediaMaxAgeS     string         `yaml:"media.max_age"`
	QuotaLimits      map[string]int `yaml:"quota.limits"`
	CronSchedule     string         `yaml:"cron.schedule"`
	AccountRecheck   time.Duration  `yaml:"-"`
	AccountRecheckS  string         `yaml:"cron.account_recheck"`
	CredentialKey    string         `yaml:"security.credential_key"`

	// Performance tuning
	HTTPClientTimeout    time.Duration `yaml:"-"`
	HTTPClientTimeoutStr string        `yaml:"performance.http_client_timeout"`
	MaxIdleConns         int           `yaml:"performance.max_idle_conns"`
	MaxConnsPerHost      int           `yaml:"performance.max_conns_per_host"`
}

// ClientIdentity is one entry of the pool a session picks its user agent and viewport from.
type ClientIdentity struct {
	UserAgent string `yaml:"user_agent"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
}

// FormFields names the fields of a query call. Static fields are sent unchanged.
type FormFields struct {
	Actor     []string          `yaml:"actor"`
	CSRF      string            `yaml:"csrf"`
	DocID     string            `yaml:"doc_id"`
	Variables string            `yaml:"variables"`
	Operation string            `yaml:"operation"`
	Static    map[string]string `yaml:"static"`
}

// UploadFields names the fields of a photo upload. Actor and Query go into the
// URL; CSRF, Owner, Static and File into the multipart body.
type UploadFields struct {
	Actor  []string          `yaml:"actor"`
	Query  map[string]string `yaml:"query"`
	CSRF   string            `yaml:"csrf"`
	Owner  []string          `yaml:"owner"`
	Static map[string]string `yaml:"static"`
	File   string            `yaml:"file"`
}

// TokenSources lists where the extractor looks for each token, in fallback order.
type TokenSources struct {
	CSRFScriptPatterns  []string `yaml:"csrf_script_patterns"`
	CSRFInputSelector   string   `yaml:"csrf_input_selector"`
	CSRFMarkupPatterns  []string `yaml:"csrf_markup_patterns"`
	ActorCookie         string   `yaml:"actor_cookie"`
	ActorScriptPatterns []string `yaml:"actor_script_patterns"`
	ActorInputSelector  string   `yaml:"actor_input_selector"`
	ActorMarkupPatterns []string `yaml:"actor_markup_patterns"`
}

type serverSection struct {
	Port string `yaml:"port"`
}

type databaseSection struct {
	URL string `yaml:"url"`
}

type loggingSection struct {
	Directory  string `yaml:"dir"`
	OutputFile string `yaml:"output_file"`
	ErrorFile  string `yaml:"error_file"`
	Level      string `yaml:"level"`
}

type loginSection struct {
	UserSelector       string `yaml:"user_selector"`
	PasswordSelector   string `yaml:"password_selector"`
	SubmitSelector     string `yaml:"submit_selector"`
	InteractiveTimeout string `yaml:"interactive_timeout"`
}

type browserSection struct {
	Driver            string           `yaml:"driver"`
	Headless          *bool            `yaml:"headless"`
	ExecPath          string           `yaml:"exec_path"`
	NavigationTimeout string           `yaml:"navigation_timeout"`
	SessionsDir       string           `yaml:"sessions_dir"`
	Identities        []ClientIdentity `yaml:"identities"`
	Login             loginSection     `yaml:"login"`
}

type platformSection struct {
	BaseURL             string            `yaml:"base_url"`
	HomeURL             string            `yaml:"home_url"`
	LoginURL            string            `yaml:"login_url"`
	CreateURL           string            `yaml:"create_url"`
	ProfileURL          string            `yaml:"profile_url"`
	APIPath             string            `yaml:"api_path"`
	UploadURL           string            `yaml:"upload_url"`
	Sentinel            *string           `yaml:"sentinel"`
	LimitMarkers        []string          `yaml:"limit_markers"`
	Operations          map[string]string `yaml:"operations"`
	HomePatterns        []string          `yaml:"home_patterns"`
	LoginMarkers        []string          `yaml:"login_markers"`
	InterventionMarkers []string          `yaml:"intervention_markers"`
	Surfaces            map[string]string `yaml:"surfaces"`
	Signatures          map[string]string `yaml:"signatures"`
	Tokens              TokenSources      `yaml:"tokens"`
	Form                FormFields        `yaml:"form"`
	UploadForm          UploadFields      `yaml:"upload_form"`
	Categories          map[string]string `yaml:"categories"`
	Conditions          map[string]string `yaml:"conditions"`
	DefaultCategory     string            `yaml:"default_category"`
	DefaultCondition    string            `yaml:"default_condition"`
	Currency            string            `yaml:"currency"`
	DefaultLatitude     float64           `yaml:"default_latitude"`
	DefaultLongitude    float64           `yaml:"default_longitude"`
}

type orchestratorSection struct {
	Concurrency           int    `yaml:"concurrency"`
	DelayMin              string `yaml:"delay_min"`
	DelayMax              string `yaml:"delay_max"`
	TokenAttempts         int    `yaml:"token_attempts"`
	TokenRetryDelay       string `yaml:"token_retry_delay"`
	TokenRefreshEvery     int    `yaml:"token_refresh_every"`
	SettleDelay           string `yaml:"settle_delay"`
	LaunchDelay           string `yaml:"launch_delay"`
	UploadGapMin          string `yaml:"upload_gap_min"`
	UploadGapMax          string `yaml:"upload_gap_max"`
	EventBuffer           int    `yaml:"event_buffer"`
	ValidationConcurrency int    `yaml:"validation_concurrency"`
}

type scanSection struct {
	MaxNoGrowth int    `yaml:"max_no_growth"`
	MaxScrolls  int    `yaml:"max_scrolls"`
	ScrollPause string `yaml:"scroll_pause"`
}

type historySection struct {
	Cap int `yaml:"cap"`
}

type mediaSection struct {
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"max_bytes"`
	MaxAge   string `yaml:"max_age"`
}

type quotaSection struct {
	Limits map[string]int `yaml:"limits"`
}

type cronSection struct {
	Schedule       string `yaml:"schedule"`
	AccountRecheck string `yaml:"account_recheck"`
}

type securitySection struct {
	CredentialKey string `yaml:"credential_key"`
}

type performanceSection struct {
	HTTPClientTimeout string `yaml:"http_client_timeout"`
	MaxIdleConns      int    `yaml:"max_idle_conns"`
	MaxConnsPerHost   int    `yaml:"max_conns_per_host"`
}

// configFile represents the YAML structure
type configFile struct {
	Server       serverSection       `yaml:"server"`
	Database     databaseSection     `yaml:"database"`
	Logging      loggingSection      `yaml:"logging"`
	Browser      browserSection      `yaml:"browser"`
	Platform     platformSection     `yaml:"platform"`
	Orchestrator orchestratorSection `yaml:"orchestrator"`
	Scan         scanSection         `yaml:"scan"`
	History      historySection      `yaml:"history"`
	Media        mediaSection        `yaml:"media"`
	Quota        quotaSection        `yaml:"quota"`
	Cron         cronSection         `yaml:"cron"`
	Security     securitySection     `yaml:"security"`
	Performance  performanceSection  `yaml:"performance"`
}

// Manager handles configuration loading and saving
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
}

// NewManager creates a new configuration manager
func NewManager(configPath string) *Manager {
	if configPath == "" {
		configPath = "config.yaml"
	}
	return &Manager{
		configPath: configPath,
	}
}

// Load reads configuration from YAML file
func (m *Manager) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return m.createDefaultConfig()
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	m.config = cfg
	return cfg, nil
}

// Parse decodes YAML bytes into a Config with defaults and environment overrides applied.
func Parse(data []byte) (*Config, error) {
	var cfgFile configFile
	if err := yaml.Unmarshal(data, &cfgFile); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := fromFile(&cfgFile)
	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func fromFile(f *configFile) *Config {
	cfg := &Config{
		ServerPort:               f.Server.Port,
		DatabaseURL:              f.Database.URL,
		LogDirectory:             f.Logging.Directory,
		LogOutputFile:            f.Logging.OutputFile,
		LogErrorFile:             f.Logging.ErrorFile,
		LogLevel:                 f.Logging.Level,
		BrowserDriver:            f.Browser.Driver,
		BrowserHeadless:          true,
		BrowserExecPath:          f.Browser.ExecPath,
		BrowserNavTimeoutStr:     f.Browser.NavigationTimeout,
		SessionsDir:              f.Browser.SessionsDir,
		Identities:               f.Browser.Identities,
		LoginUserSelector:        f.Browser.Login.UserSelector,
		LoginPasswordSelector:    f.Browser.Login.PasswordSelector,
		LoginSubmitSelector:      f.Browser.Login.SubmitSelector,
		InteractiveLoginTimeoutS: f.Browser.Login.InteractiveTimeout,
		PlatformBaseURL:          f.Platform.BaseURL,
		PlatformHomeURL:          f.Platform.HomeURL,
		PlatformLoginURL:         f.Platform.LoginURL,
		PlatformCreateURL:        f.Platform.CreateURL,
		PlatformProfileURL:       f.Platform.ProfileURL,
		PlatformAPIPath:          f.Platform.APIPath,
		PlatformUploadURL:        f.Platform.UploadURL,
		ResponseSentinel:         "for (;;);",
		LimitMarkers:             f.Platform.LimitMarkers,
		Operations:               f.Platform.Operations,
		HomePatterns:             f.Platform.HomePatterns,
		LoginMarkers:             f.Platform.LoginMarkers,
		InterventionMarkers:      f.Platform.InterventionMarkers,
		SurfaceURLs:              f.Platform.Surfaces,
		QuerySignatures:          f.Platform.Signatures,
		Tokens:                   f.Platform.Tokens,
		Form:                     f.Platform.Form,
		UploadForm:               f.Platform.UploadForm,
		CategoryMap:              f.Platform.Categories,
		ConditionMap:             f.Platform.Conditions,
		DefaultCategory:          f.Platform.DefaultCategory,
		DefaultCondition:         f.Platform.DefaultCondition,
		Currency:                 f.Platform.Currency,
		DefaultLatitude:          f.Platform.DefaultLatitude,
		DefaultLongitude:         f.Platform.DefaultLongitude,
		Concurrency:              f.Orchestrator.Concurrency,
		DelayMinStr:              f.Orchestrator.DelayMin,
		DelayMaxStr:              f.Orchestrator.DelayMax,
		TokenAttempts:            f.Orchestrator.TokenAttempts,
		TokenRetryDelayStr:       f.Orchestrator.TokenRetryDelay,
		TokenRefreshEvery:        f.Orchestrator.TokenRefreshEvery,
		SettleDelayStr:           f.Orchestrator.SettleDelay,
		LaunchDelayStr:           f.Orchestrator.LaunchDelay,
		UploadGapMinStr:          f.Orchestrator.UploadGapMin,
		UploadGapMaxStr:          f.Orchestrator.UploadGapMax,
		EventBufferSize:          f.Orchestrator.EventBuffer,
		ValidationConcurrent:     f.Orchestrator.ValidationConcurrency,
		ScanMaxNoGrowth:          f.Scan.MaxNoGrowth,
		ScanMaxScrolls:           f.Scan.MaxScrolls,
		ScanScrollPauseS:         f.Scan.ScrollPause,
		HistoryCap:               f.History.Cap,
		MediaDir:                 f.Media.Dir,
		MediaMaxBytes:            f.Media.MaxBytes,
		MediaMaxAgeS:             f.Media.MaxAge,
		QuotaLimits:              f.Quota.Limits,
		CronSchedule:             f.Cron.Schedule,
		AccountRecheckS:          f.Cron.AccountRecheck,
		CredentialKey:            f.Security.CredentialKey,
		HTTPClientTimeoutStr:     f.Performance.HTTPClientTimeout,
		MaxIdleConns:             f.Performance.MaxIdleConns,
		MaxConnsPerHost:          f.Performance.MaxConnsPerHost,
	}
	if f.Browser.Headless != nil {
		cfg.BrowserHeadless = *f.Browser.Headless
	}
	if f.Platform.Sentinel != nil {
		cfg.ResponseSentinel = *f.Platform.Sentinel
	}
	return cfg
}

// applyEnv overrides secrets and deployment knobs from the environment (and a .env file when present).
func applyEnv(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("MPO_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("MPO_CREDENTIAL_KEY"); v != "" {
		cfg.CredentialKey = v
	}
	if v := os.Getenv("MPO_SERVER_PORT"); v != "" {
		cfg.ServerPort = v
	}
	if v := os.Getenv("MPO_BROWSER_DRIVER"); v != "" {
		cfg.BrowserDriver = v
	}
}

func applyFormDefaults(form *FormFields, upload *UploadFields) {
	if len(form.Actor) == 0 {
		form.Actor = []string{"av", "__user"}
	}
	if form.CSRF == "" {
		form.CSRF = "fb_dtsg"
	}
	if form.DocID == "" {
		form.DocID = "doc_id"
	}
	if form.Variables == "" {
		form.Variables = "variables"
	}
	if form.Operation == "" {
		form.Operation = "fb_api_req_friendly_name"
	}
	if form.Static == nil {
		form.Static = map[string]string{"__a": "1", "fb_api_caller_class": "RelayModern", "server_timestamps": "true"}
	}
	if len(upload.Actor) == 0 {
		upload.Actor = []string{"av", "__user"}
	}
	if upload.Query == nil {
		upload.Query = map[string]string{"__a": "1"}
	}
	if upload.CSRF == "" {
		upload.CSRF = "fb_dtsg"
	}
	if len(upload.Owner) == 0 {
		upload.Owner = []string{"target_id", "profile_id"}
	}
	if upload.Static == nil {
		upload.Static = map[string]string{"source": "8", "waterfallxapp": "comet"}
	}
	if upload.File == "" {
		upload.File = "farr"
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func applyDefaults(cfg *Config) {
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "sqlite3:./data.db"
	}
	if cfg.LogDirectory == "" {
		cfg.LogDirectory = "./logs"
	}
	if cfg.LogOutputFile == "" {
		cfg.LogOutputFile = "app.log"
	}
	if cfg.LogErrorFile == "" {
		cfg.LogErrorFile = "app.error.log"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.BrowserDriver == "" {
		cfg.BrowserDriver = "chromedp"
	}
	if cfg.SessionsDir == "" {
		cfg.SessionsDir = "./sessions"
	}
	if len(cfg.Identities) == 0 {
		cfg.Identities = []ClientIdentity{{Width: 1366, Height: 768}}
	}
	if cfg.LoginUserSelector == "" {
		cfg.LoginUserSelector = "input[name='email']"
	}
	if cfg.LoginPasswordSelector == "" {
		cfg.LoginPasswordSelector = "input[name='pass']"
	}
	if cfg.LoginSubmitSelector == "" {
		cfg.LoginSubmitSelector = "button[type='submit']"
	}
	if cfg.PlatformAPIPath == "" {
		cfg.PlatformAPIPath = "/api/graphql/"
	}
	if cfg.PlatformBaseURL != "" {
		base := strings.TrimRight(cfg.PlatformBaseURL, "/")
		if cfg.PlatformHomeURL == "" {
			cfg.PlatformHomeURL = base + "/"
		}
		if cfg.PlatformLoginURL == "" {
			cfg.PlatformLoginURL = base + "/login"
		}
		if cfg.PlatformCreateURL == "" {
			cfg.PlatformCreateURL = base + "/marketplace/create/item"
		}
		if cfg.PlatformProfileURL == "" {
			cfg.PlatformProfileURL = base + "/me"
		}
		if len(cfg.SurfaceURLs) == 0 {
			cfg.SurfaceURLs = map[string]string{
				"selling":   base + "/marketplace/you/selling",
				"search":    base + "/marketplace/search",
				"locations": base + "/marketplace",
				"groups":    base + "/groups/joins",
			}
		}
	}
	if len(cfg.LimitMarkers) == 0 {
		cfg.LimitMarkers = []string{"You've reached your limit", "limit reached"}
	}
	if len(cfg.QuerySignatures) == 0 {
		cfg.QuerySignatures = map[string]string{
			"selling":   "MarketplaceYouSellingFastActiveSectionPaginationQuery",
			"search":    "MarketplaceSearchResultsPageContainerNewQuery",
			"locations": "MarketplaceSearchAddressDataSourceQuery",
			"groups":    "GroupsCometJoinsRootQuery",
		}
	}
	if len(cfg.HomePatterns) == 0 {
		cfg.HomePatterns = []string{"/", "/home", "/home.php", "/marketplace"}
	}
	if len(cfg.LoginMarkers) == 0 {
		cfg.LoginMarkers = []string{"/login", "/welcome"}
	}
	if len(cfg.InterventionMarkers) == 0 {
		cfg.InterventionMarkers = []string{"checkpoint", "challenge", "two_step", "two_factor", "2fa", "consent", "recover"}
	}
	applyFormDefaults(&cfg.Form, &cfg.UploadForm)
	if cfg.Tokens.ActorCookie == "" {
		cfg.Tokens.ActorCookie = "c_user"
	}
	if len(cfg.Tokens.CSRFScriptPatterns) == 0 {
		cfg.Tokens.CSRFScriptPatterns = []string{`"DTSGInitialData",\[\],\{"token":"([^"]+)"`}
	}
	if cfg.Tokens.CSRFInputSelector == "" {
		cfg.Tokens.CSRFInputSelector = "input[name='fb_dtsg']"
	}
	if len(cfg.Tokens.CSRFMarkupPatterns) == 0 {
		cfg.Tokens.CSRFMarkupPatterns = []string{`name="fb_dtsg" value="([^"]+)"`, `"token":"([A-Za-z0-9_:-]{20,})"`}
	}
	if len(cfg.Tokens.ActorScriptPatterns) == 0 {
		cfg.Tokens.ActorScriptPatterns = []string{`"USER_ID":"(\d+)"`, `"actorID":"(\d+)"`}
	}
	if cfg.Tokens.ActorInputSelector == "" {
		cfg.Tokens.ActorInputSelector = "input[name='av']"
	}
	if len(cfg.Tokens.ActorMarkupPatterns) == 0 {
		cfg.Tokens.ActorMarkupPatterns = []string{`"userID":"(\d+)"`}
	}
	if cfg.DefaultCategory == "" {
		cfg.DefaultCategory = "misc"
	}
	if cfg.DefaultCondition == "" {
		cfg.DefaultCondition = "new"
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if len(cfg.Operations) == 0 {
		cfg.Operations = map[string]string{
			"listing_create": "9551550371629242",
			"listing_edit":   "24930649656556141",
			"publish_draft":  "9015337771903372",
		}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.TokenAttempts <= 0 {
		cfg.TokenAttempts = 3
	}
	if cfg.TokenRefreshEvery <= 0 {
		cfg.TokenRefreshEvery = 15
	}
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = 256
	}
	if cfg.ValidationConcurrent <= 0 {
		cfg.ValidationConcurrent = cfg.Concurrency
	}
	if cfg.ScanMaxNoGrowth <= 0 {
		cfg.ScanMaxNoGrowth = 3
	}
	if cfg.ScanMaxScrolls <= 0 {
		cfg.ScanMaxScrolls = 50
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 5000
	}
	if cfg.MediaDir == "" {
		cfg.MediaDir = "./media"
	}
	if cfg.MediaMaxBytes <= 0 {
		cfg.MediaMaxBytes = 10 << 20
	}
	if cfg.CronSchedule == "" {
		cfg.CronSchedule = "*/30 * * * *"
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = 20
	}

	cfg.BrowserNavTimeout = parseDuration(cfg.BrowserNavTimeoutStr, 45*time.Second)
	cfg.InteractiveLoginTimeout = parseDuration(cfg.InteractiveLoginTimeoutS, 5*time.Minute)
	cfg.DelayMin = parseDuration(cfg.DelayMinStr, 20*time.Second)
	cfg.DelayMax = parseDuration(cfg.DelayMaxStr, 45*time.Second)
	if cfg.DelayMax < cfg.DelayMin {
		cfg.DelayMax = cfg.DelayMin
	}
	cfg.AccountRecheck = parseDuration(cfg.AccountRecheckS, 12*time.Hour)
	cfg.MediaMaxAge = parseDuration(cfg.MediaMaxAgeS, 7*24*time.Hour)
	cfg.TokenRetryDelay = parseDuration(cfg.TokenRetryDelayStr, 2*time.Second)
	cfg.SettleDelay = parseDuration(cfg.SettleDelayStr, 5*time.Second)
	cfg.LaunchDelay = parseDuration(cfg.LaunchDelayStr, 2*time.Second)
	cfg.UploadGapMin = parseDuration(cfg.UploadGapMinStr, 500*time.Millisecond)
	cfg.UploadGapMax = parseDuration(cfg.UploadGapMaxStr, 1500*time.Millisecond)
	if cfg.UploadGapMax < cfg.UploadGapMin {
		cfg.UploadGapMax = cfg.UploadGapMin
	}
	cfg.ScanScrollPause = parseDuration(cfg.ScanScrollPauseS, 1500*time.Millisecond)
	cfg.HTTPClientTimeout = parseDuration(cfg.HTTPClientTimeoutStr, 60*time.Second)
}

// Save writes configuration to YAML file
func (m *Manager) Save(cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.saveUnlocked(cfg)
}

// saveUnlocked persists config assuming caller already holds the write lock.
func (m *Manager) saveUnlocked(cfg *Config) error {
	headless := cfg.BrowserHeadless
	sentinel := cfg.ResponseSentinel

	cfgFile := configFile{
		Server:   serverSection{Port: cfg.ServerPort},
		Database: databaseSection{URL: cfg.DatabaseURL},
		Logging: loggingSection{
			Directory:  cfg.LogDirectory,
			OutputFile: cfg.LogOutputFile,
			ErrorFile:  cfg.LogErrorFile,
			Level:      cfg.LogLevel,
		},
		Browser: browserSection{
			Driver:            cfg.BrowserDriver,
			Headless:          &headless,
			ExecPath:          cfg.BrowserExecPath,
			NavigationTimeout: cfg.BrowserNavTimeout.String(),
			SessionsDir:       cfg.SessionsDir,
			Identities:        cfg.Identities,
			Login: loginSection{
				UserSelector:       cfg.LoginUserSelector,
				PasswordSelector:   cfg.LoginPasswordSelector,
				SubmitSelector:     cfg.LoginSubmitSelector,
				InteractiveTimeout: cfg.InteractiveLoginTimeout.String(),
			},
		},
		Platform: platformSection{
			BaseURL:             cfg.PlatformBaseURL,
			HomeURL:             cfg.PlatformHomeURL,
			LoginURL:            cfg.PlatformLoginURL,
			CreateURL:           cfg.PlatformCreateURL,
			ProfileURL:          cfg.PlatformProfileURL,
			APIPath:             cfg.PlatformAPIPath,
			UploadURL:           cfg.PlatformUploadURL,
			Sentinel:            &sentinel,
			LimitMarkers:        cfg.LimitMarkers,
			Operations:          cfg.Operations,
			HomePatterns:        cfg.HomePatterns,
			LoginMarkers:        cfg.LoginMarkers,
			InterventionMarkers: cfg.InterventionMarkers,
			Surfaces:            cfg.SurfaceURLs,
			Signatures:          cfg.QuerySignatures,
			Tokens:              cfg.Tokens,
			Form:                cfg.Form,
			UploadForm:          cfg.UploadForm,
			Categories:          cfg.CategoryMap,
			Conditions:          cfg.ConditionMap,
			DefaultCategory:     cfg.DefaultCategory,
			DefaultCondition:    cfg.DefaultCondition,
			Currency:            cfg.Currency,
			DefaultLatitude:     cfg.DefaultLatitude,
			DefaultLongitude:    cfg.DefaultLongitude,
		},
		Orchestrator: orchestratorSection{
			Concurrency:           cfg.Concurrency,
			DelayMin:              cfg.DelayMin.String(),
			DelayMax:              cfg.DelayMax.String(),
			TokenAttempts:         cfg.TokenAttempts,
			TokenRetryDelay:       cfg.TokenRetryDelay.String(),
			TokenRefreshEvery:     cfg.TokenRefreshEvery,
			SettleDelay:           cfg.SettleDelay.String(),
			LaunchDelay:           cfg.LaunchDelay.String(),
			UploadGapMin:          cfg.UploadGapMin.String(),
			UploadGapMax:          cfg.UploadGapMax.String(),
			EventBuffer:           cfg.EventBufferSize,
			ValidationConcurrency: cfg.ValidationConcurrent,
		},
		Scan: scanSection{
			MaxNoGrowth: cfg.ScanMaxNoGrowth,
			MaxScrolls:  cfg.ScanMaxScrolls,
			ScrollPause: cfg.ScanScrollPause.String(),
		},
		History:  historySection{Cap: cfg.HistoryCap},
		Media:    mediaSection{Dir: cfg.MediaDir, MaxBytes: cfg.MediaMaxBytes, MaxAge: cfg.MediaMaxAge.String()},
		Quota:    quotaSection{Limits: cfg.QuotaLimits},
		Cron:     cronSection{Schedule: cfg.CronSchedule, AccountRecheck: cfg.AccountRecheck.String()},
		Security: securitySection{CredentialKey: cfg.CredentialKey},
		Performance: performanceSection{
			HTTPClientTimeout: cfg.HTTPClientTimeout.String(),
			MaxIdleConns:      cfg.MaxIdleConns,
			MaxConnsPerHost:   cfg.MaxConnsPerHost,
		},
	}

	data, err := yaml.Marshal(&cfgFile)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.config = cfg
	return nil
}

// Get returns the current configuration (thread-safe)
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Update updates specific configuration fields and saves to file
func (m *Manager) Update(updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config == nil {
		return fmt.Errorf("config not loaded, call Load() first")
	}

	for key, value := range updates {
		switch key {
		case "server.port":
			if v, ok := value.(string); ok {
				m.config.ServerPort = v
			}
		case "database.url":
			if v, ok := value.(string); ok {
				m.config.DatabaseURL = v
			}
		case "logging.level":
			if v, ok := value.(string); ok {
				m.config.LogLevel = v
			}
		case "browser.driver":
			if v, ok := value.(string); ok {
				m.config.BrowserDriver = v
			}
		case "browser.headless":
			if v, ok := value.(bool); ok {
				m.config.BrowserHeadless = v
			}
		case "platform.base_url":
			if v, ok := value.(string); ok {
				m.config.PlatformBaseURL = v
			}
		case "orchestrator.concurrency":
			if v, ok := value.(int); ok && v > 0 {
				m.config.Concurrency = v
			}
		case "orchestrator.delay_min":
			if str, ok := value.(string); ok {
				m.config.DelayMinStr = str
				m.config.DelayMin = parseDuration(str, m.config.DelayMin)
			}
		case "orchestrator.delay_max":
			if str, ok := value.(string); ok {
				m.config.DelayMaxStr = str
				m.config.DelayMax = parseDuration(str, m.config.DelayMax)
			}
		case "orchestrator.token_refresh_every":
			if v, ok := value.(int); ok && v > 0 {
				m.config.TokenRefreshEvery = v
			}
		case "scan.max_no_growth":
			if v, ok := value.(int); ok && v > 0 {
				m.config.ScanMaxNoGrowth = v
			}
		case "history.cap":
			if v, ok := value.(int); ok && v > 0 {
				m.config.HistoryCap = v
			}
		case "cron.schedule":
			if v, ok := value.(string); ok {
				m.config.CronSchedule = v
			}
		case "cron.account_recheck":
			if v, ok := value.(string); ok {
				if d, err := time.ParseDuration(v); err == nil {
					m.config.AccountRecheck = d
				}
			}
		case "quota.limits":
			if v, ok := value.(map[string]int); ok {
				m.config.QuotaLimits = v
			}
		default:
			return fmt.Errorf("unknown config key: %s", key)
		}
	}

	return m.saveUnlocked(m.config)
}

// Reload reloads configuration from file
func (m *Manager) Reload() (*Config, error) {
	return m.Load()
}

// createDefaultConfig creates a default configuration file
func (m *Manager) createDefaultConfig() (*Config, error) {
	cfg := &Config{BrowserHeadless: true, ResponseSentinel: "for (;;);"}
	applyEnv(cfg)
	applyDefaults(cfg)

	if err := m.saveUnlocked(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Global config manager instance
var globalManager *Manager

// Load loads configuration from the default YAML location
func Load() (*Config, error) {
	return GetManager().Load()
}

// GetManager returns the global config manager
func GetManager() *Manager {
	if globalManager == nil {
		configPath := "config.yaml"
		if _, err := os.Stat("config/config.yaml"); err == nil {
			configPath = "config/config.yaml"
		}
		globalManager = NewManager(configPath)
	}
	return globalManager
}

// SetPath replaces the global manager with one reading from path.
func SetPath(path string) *Manager {
	globalManager = NewManager(path)
	return globalManager
}
