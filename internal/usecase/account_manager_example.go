package usecase

// Example usage of AccountManager to onboard accounts
//
// Example 1: Import accounts from pasted lines
//
//	accounts := usecase.NewAccountManager(cfg, accountRepo, provider, provider, sealer, events)
//	res, err := accounts.ImportAccounts("100012345|hunter2|Spring\n100067890|s3cret")
//	if err != nil {
//		log.Fatal(err)
//	}
//	log.Printf("imported %d, skipped %d", res.Imported, res.Skipped)
//
// Example 2: Verify every account, validation_concurrency sessions at a time
//
//	checks, err := accounts.ValidateAccounts(ctx, nil)
//	for _, c := range checks {
//		if c.Status != domain.AccountActive {
//			log.Printf("%s: %s (%s)", c.AccountID, c.Status, c.Reason)
//		}
//	}
//
// Example 3: Recover a checkpointed account
//
//	// either paste the cookies exported from a browser
//	check, err := accounts.ImportCookies(ctx, "100012345", "c_user=100012345; xs=...")
//
//	// or solve the challenge by hand in a visible window
//	accounts.SetInteractiveOpener(openVisibleBrowser)
//	check, err = accounts.Login(ctx, "100012345")
//
// Example 4: Group accounts into a project and run only those
//
//	accounts.UpdateProjectTag([]string{"100012345", "100067890"}, "Spring")
//	spring, err := accounts.ListAccounts("Spring")
