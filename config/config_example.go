package config

// Example usage of Config Manager to update YAML configuration at runtime
//
// Example 1: Load configuration
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Example 2: Tune the orchestrator and persist it
//
//	manager := config.GetManager()
//
//	err := manager.Update(map[string]interface{}{
//		"orchestrator.concurrency":      5,
//		"orchestrator.delay_min":        "15s",
//		"orchestrator.delay_max":        "40s",
//		"scan.max_no_growth":            4,
//		"quota.limits":                  map[string]int{"posting": 500},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	cfg, err := manager.Reload()
//
// Example 3: Point the platform client at another deployment
//
//	manager := config.GetManager()
//	cfg := manager.Get()
//	cfg.PlatformBaseURL = "https://marketplace.example.com"
//	cfg.Operations["create_listing"] = "1234567890"
//	err := manager.Save(cfg)
//
// Example 4: Secrets from the environment
//
//	MPO_CREDENTIAL_KEY=... MPO_DATABASE_URL=sqlite3:/var/lib/mpo/data.db ./listing_orchestrator serve
