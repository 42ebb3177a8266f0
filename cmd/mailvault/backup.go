package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mailvault/pkg/auth"
	"mailvault/pkg/backup"
	"mailvault/pkg/checkpoint"
	"mailvault/pkg/config"
	"mailvault/pkg/logger"
	"mailvault/pkg/manifest"
	"mailvault/pkg/ratelimit"
	"mailvault/pkg/remote"
	"mailvault/pkg/storage"
)

var (
	outputDir          string
	query              string
	accountEmail       string
	requestsPerSecond  float64
	maxRetries         int
	dailyQuota         int64
	checkpointInterval int
	resumeBackup       bool
	forceRestart       bool
	skipManifest       bool
)

// backupCmd represents the backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up messages matching a query to a local directory",
	Long: `Back up messages from the configured mail account.

This command requires valid credentials, configured through:
  - Stored credentials (use 'mailvault auth login' to store)
  - Environment variables (MAILVAULT_EMAIL and MAILVAULT_API_TOKEN)
  - Configuration file

Messages are written as .eml files and recorded in a SHA-256 manifest.
Progress is checkpointed, so an interrupted backup can be resumed with
the --resume flag.`,
	Example: `  # Back up everything using default settings
  mailvault backup

  # Back up one label to a specific directory
  mailvault backup --query "label:receipts" --output ./receipts

  # Resume an interrupted backup
  mailvault backup --resume

  # Start over, ignoring the existing checkpoint
  mailvault backup --force-restart`,
	RunE: runBackup,
}

func init() {
	rootCmd.AddCommand(backupCmd)

	backupCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for the backup")
	backupCmd.Flags().StringVar(&query, "query", "", "search query selecting messages to back up")
	backupCmd.Flags().StringVarP(&accountEmail, "account", "a", "", "use a specific stored account")
	backupCmd.Flags().Float64Var(&requestsPerSecond, "requests-per-second", 0, "outbound request rate cap")
	backupCmd.Flags().IntVar(&maxRetries, "max-retries", -1, "maximum retry attempts per call")
	backupCmd.Flags().Int64Var(&dailyQuota, "daily-quota", 0, "daily quota unit budget")
	backupCmd.Flags().IntVar(&checkpointInterval, "checkpoint-interval", 0, "items between checkpoint writes")
	backupCmd.Flags().BoolVar(&resumeBackup, "resume", false, "resume from the last checkpoint")
	backupCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "ignore any existing checkpoint")
	backupCmd.Flags().BoolVar(&skipManifest, "skip-manifest", false, "do not update the backup manifest")
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadEffectiveConfig()
	if err != nil {
		return err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("mailvault starting")

	account, err := resolveAccount(cfg)
	if err != nil {
		return err
	}
	if account.BaseURL != "" {
		cfg.Account.BaseURL = account.BaseURL
	}

	store, err := checkpoint.NewStore(cfg.Checkpoint.Directory)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	storageManager, err := storage.NewManager(cfg.Backup.OutputDirectory)
	if err != nil {
		return fmt.Errorf("failed to prepare output directory: %w", err)
	}

	client := remote.NewClient(cfg.Account.BaseURL, account.APIToken, log,
		remote.WithTimeout(cfg.Backup.FetchTimeout),
		remote.WithPageSize(cfg.Backup.PageSize),
	)

	limiter := ratelimit.New(ratelimit.Options{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		MaxRetries:        cfg.RateLimit.MaxRetries,
		BaseDelay:         cfg.RateLimit.BaseDelay,
		MaxDelay:          cfg.RateLimit.MaxDelay,
		Jitter:            cfg.RateLimit.Jitter,
	}, log)

	coordinator, err := backup.NewCoordinator(backup.Config{
		Fetcher:            client,
		Writer:             backup.NewStorageWriter(storageManager),
		Limiter:            limiter,
		Quota:              ratelimit.NewQuotaTracker(cfg.Quota.DailyLimit, cfg.Quota.Costs),
		Checkpoints:        store,
		OutputDir:          cfg.Backup.OutputDirectory,
		CheckpointInterval: cfg.Backup.CheckpointInterval,
		Logger:             log,
	})
	if err != nil {
		return err
	}

	// Ctrl-C interrupts the run; the checkpoint stays resumable.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := coordinator.Run(ctx, cfg.Backup.Query, backup.RunOptions{
		Resume:       resumeBackup,
		ForceRestart: forceRestart,
	})

	if summary != nil {
		printSummary(summary)
	}

	if runErr != nil {
		switch {
		case errors.Is(runErr, backup.ErrQuotaExhausted):
			fmt.Println("Daily quota exhausted. Run 'mailvault backup --resume' after the quota resets.")
			return nil
		case errors.Is(runErr, context.Canceled):
			fmt.Println("Backup interrupted. Run 'mailvault backup --resume' to continue.")
			return nil
		default:
			return fmt.Errorf("backup failed: %w", runErr)
		}
	}

	if !skipManifest {
		if err := updateManifest(cfg, summary); err != nil {
			log.WithError(err).Error("manifest update failed")
			return err
		}
	}

	return nil
}

func printSummary(s *backup.Summary) {
	fmt.Printf("\nQuery:      %q\n", s.Query)
	fmt.Printf("Processed:  %d", s.Processed)
	if s.Total > 0 {
		fmt.Printf(" of ~%d", s.Total)
	}
	fmt.Println()
	fmt.Printf("Saved:      %d\n", s.Saved)
	fmt.Printf("Duplicates: %d\n", s.Duplicates)
	if s.Completed {
		fmt.Println("Status:     completed")
	} else {
		fmt.Println("Status:     interrupted (resumable)")
	}
}

func updateManifest(cfg *config.Config, summary *backup.Summary) error {
	mgr, err := manifest.NewManager(cfg.Backup.OutputDirectory, cfg.Backup.HashWorkers)
	if err != nil {
		return err
	}

	existing, err := mgr.Load()
	if err != nil {
		return err
	}
	if existing == nil {
		_, err = mgr.Create(nil, map[string]interface{}{
			"account": cfg.Account.Email,
			"query":   summary.Query,
		})
		if err != nil {
			return fmt.Errorf("failed to create manifest: %w", err)
		}
		fmt.Println("Manifest:   created")
		return nil
	}

	added, err := mgr.Update(nil)
	if err != nil {
		return fmt.Errorf("failed to update manifest: %w", err)
	}
	fmt.Printf("Manifest:   %d entries added\n", added)
	return nil
}

// loadEffectiveConfig layers flag overrides on top of files and environment.
func loadEffectiveConfig() (*config.Config, error) {
	flags := make(map[string]interface{})
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if query != "" {
		flags["query"] = query
	}
	if requestsPerSecond > 0 {
		flags["requests-per-second"] = requestsPerSecond
	}
	if maxRetries >= 0 {
		flags["max-retries"] = maxRetries
	}
	if dailyQuota > 0 {
		flags["daily-quota"] = dailyQuota
	}
	if checkpointInterval > 0 {
		flags["checkpoint-interval"] = checkpointInterval
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveAccount finds credentials, preferring explicit flags, then the
// credential manager, then the configuration itself.
func resolveAccount(cfg *config.Config) (*auth.Account, error) {
	credManager, err := auth.NewManager()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if accountEmail != "" {
		account, err := credManager.Retrieve(accountEmail)
		if err != nil {
			return nil, fmt.Errorf("account %s not found, use 'mailvault auth list' to see stored accounts", accountEmail)
		}
		cfg.Account.Email = account.Email
		return account, nil
	}

	if cfg.Account.APIToken != "" {
		return &auth.Account{
			Email:    cfg.Account.Email,
			APIToken: cfg.Account.APIToken,
			BaseURL:  cfg.Account.BaseURL,
		}, nil
	}

	account, err := credManager.RetrieveDefault()
	if err != nil {
		return nil, errors.New("no credentials found; run 'mailvault auth login' or set MAILVAULT_API_TOKEN")
	}
	cfg.Account.Email = account.Email
	return account, nil
}
