package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/infrastructure/browser"
	"listing_orchestrator/internal/infrastructure/crypto"
	"listing_orchestrator/internal/infrastructure/downloader"
	httpclient "listing_orchestrator/internal/infrastructure/http"
	"listing_orchestrator/internal/infrastructure/platform"
	"listing_orchestrator/internal/metrics"
	"listing_orchestrator/internal/repository/collection"
	sqliterepo "listing_orchestrator/internal/repository/sqlite"
	"listing_orchestrator/internal/session"
	"listing_orchestrator/internal/usecase"
)

// app holds every wired component; commands pick what they need.
type app struct {
	cfg *config.Config
	db  *sql.DB

	events       *usecase.EventBus
	provider     *browser.Provider
	accounts     *usecase.AccountManager
	materials    *usecase.MaterialManager
	orchestrator *usecase.Orchestrator
	maintenance  *usecase.Maintenance
	discovery    *usecase.Discovery
	records      *usecase.Records
	quota        *usecase.QuotaChecker
	dashboard    *usecase.Dashboard
	monitor      *usecase.AccountMonitor
}

func driverFor(cfg *config.Config, headless bool) (browser.Driver, error) {
	switch strings.ToLower(cfg.BrowserDriver) {
	case "", "chromedp":
		return &browser.ChromeDriver{Headless: headless, ExecPath: cfg.BrowserExecPath}, nil
	case "rod":
		return &browser.RodDriver{Headless: headless, ExecPath: cfg.BrowserExecPath}, nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", cfg.BrowserDriver)
	}
}

func identities(cfg *config.Config) []session.Identity {
	out := make([]session.Identity, 0, len(cfg.Identities))
	for _, id := range cfg.Identities {
		out = append(out, session.Identity{UserAgent: id.UserAgent, Width: id.Width, Height: id.Height})
	}
	return out
}

func newApp(cfg *config.Config) (*app, error) {
	metrics.Register()

	db, err := sqliterepo.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store := sqliterepo.NewStore(db)
	accountRepo := collection.NewAccountRepository(store)
	materialRepo := collection.NewMaterialRepository(store)
	campaignRepo := collection.NewCampaignRepository(store)
	historyRepo := collection.NewHistoryRepository(store, cfg.HistoryCap)
	locationRepo := collection.NewLocationRepository(store)
	groupRepo := collection.NewGroupRepository(store)
	quotaRepo := collection.NewQuotaRepository(store)

	sealer, err := crypto.NewSealer(cfg.CredentialKey)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create credential sealer: %w", err)
	}

	driver, err := driverFor(cfg, cfg.BrowserHeadless)
	if err != nil {
		db.Close()
		return nil, err
	}
	navigate := session.NavigatePolicy{Timeout: cfg.BrowserNavTimeout, Settle: cfg.SettleDelay, TolerateTimeout: true}
	classifier := usecase.ClassifierFrom(cfg)
	provider := browser.NewProvider(driver, session.NewFileStateStore(cfg.SessionsDir), browser.Options{
		HomeURL:    cfg.PlatformHomeURL,
		Identities: identities(cfg),
		Classifier: classifier,
		Login: session.LoginForm{
			URL:              cfg.PlatformLoginURL,
			UserSelector:     cfg.LoginUserSelector,
			PasswordSelector: cfg.LoginPasswordSelector,
			SubmitSelector:   cfg.LoginSubmitSelector,
			Wait:             cfg.BrowserNavTimeout,
		},
		Navigate:   navigate,
		OpenSecret: sealer.Open,
	})

	tokens, err := usecase.NewTokenExtractor(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to build token extractor: %w", err)
	}
	remote := platform.NewClient(platform.Endpoint{
		APIURL:     strings.TrimRight(cfg.PlatformBaseURL, "/") + cfg.PlatformAPIPath,
		Sentinel:   cfg.ResponseSentinel,
		Operations: cfg.Operations,
		Timeout:    cfg.HTTPClientTimeout,
		Form:       cfg.Form,
	})
	httpClient := httpclient.NewHTTPClient(cfg)
	uploader := platform.NewUploader(httpClient, cfg.PlatformUploadURL, cfg.PlatformBaseURL, cfg.ResponseSentinel, cfg.UploadForm)

	events := usecase.NewEventBus(cfg.EventBufferSize)
	quota := usecase.NewQuotaChecker(quotaRepo, cfg.QuotaLimits)
	deps := usecase.Deps{
		Accounts:  accountRepo,
		Materials: materialRepo,
		Campaigns: campaignRepo,
		Groups:    groupRepo,
		History:   historyRepo,
		Provider:  provider,
		Tokens:    tokens,
		Publisher: usecase.NewPublisher(remote, uploader, locationRepo, usecase.PublisherOptionsFrom(cfg)),
		Remote:    remote,
		Quota:     quota,
		Events:    events,
	}
	orchestrator := usecase.NewOrchestrator(cfg, deps)
	scanner := usecase.NewScanner(remote, tokens, usecase.ScanOptionsFrom(cfg), navigate)

	accounts := usecase.NewAccountManager(cfg, accountRepo, provider, provider, sealer, events)
	accounts.SetProfileScanner(scanner)
	interactive, err := driverFor(cfg, false)
	if err != nil {
		db.Close()
		return nil, err
	}
	accounts.SetInteractiveOpener(func(ctx context.Context) (session.Session, error) {
		return interactive.Open(ctx, session.Identity{})
	})

	media, err := downloader.NewService(cfg, httpClient)
	if err != nil {
		db.Close()
		return nil, err
	}
	materials := usecase.NewMaterialManager(materialRepo, locationRepo)
	materials.SetPhotoFetcher(media)

	return &app{
		cfg:          cfg,
		db:           db,
		events:       events,
		provider:     provider,
		accounts:     accounts,
		materials:    materials,
		orchestrator: orchestrator,
		maintenance:  usecase.NewMaintenance(cfg, deps, scanner, orchestrator.Registry()),
		discovery:    usecase.NewDiscovery(cfg, deps, scanner, groupRepo),
		records:      usecase.NewRecords(historyRepo, campaignRepo),
		quota:        quota,
		dashboard:    usecase.NewDashboard(deps, orchestrator.RunningCampaigns),
		monitor:      usecase.NewAccountMonitor(cfg, accountRepo, accounts),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
