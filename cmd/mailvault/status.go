package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mailvault/pkg/checkpoint"
	"mailvault/pkg/config"
	"mailvault/pkg/logger"
	"mailvault/pkg/manifest"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backup and checkpoint status",
	Long: `Show the state of the configured backup directory: manifest statistics
and any resumable checkpoint for the configured query.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, map[string]interface{}{"log-level": logLevel})
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	fmt.Printf("Output directory: %s\n", cfg.Backup.OutputDirectory)
	fmt.Printf("Query:            %q\n", cfg.Backup.Query)
	fmt.Printf("Daily quota:      %d units\n", cfg.Quota.DailyLimit)

	mgr, err := manifest.NewManager(cfg.Backup.OutputDirectory, cfg.Backup.HashWorkers)
	if err == nil {
		if stats, statsErr := mgr.Stats(); statsErr == nil {
			fmt.Printf("\nManifest:\n")
			fmt.Printf("  files:      %d\n", stats.TotalFiles)
			fmt.Printf("  total size: %d bytes\n", stats.TotalSizeBytes)
			for contentType, count := range stats.ContentTypes {
				fmt.Printf("  %-11s %d\n", contentType+":", count)
			}
			if stats.DuplicateGroups > 0 {
				fmt.Printf("  duplicate groups: %d\n", stats.DuplicateGroups)
			}
		} else {
			fmt.Println("\nManifest: none")
		}
	}

	store, err := checkpoint.NewStore(cfg.Checkpoint.Directory)
	if err != nil {
		return err
	}

	cp, err := store.Latest(cfg.Backup.Query, true)
	if err != nil {
		return err
	}
	if cp == nil {
		fmt.Println("\nNo resumable backup for this query.")
		return nil
	}

	fmt.Printf("\nResumable backup:\n")
	fmt.Printf("  sync id:   %s\n", cp.SyncID)
	fmt.Printf("  status:    %s\n", cp.Status)
	fmt.Printf("  processed: %d", cp.ProcessedCount)
	if cp.TotalMessages > 0 {
		fmt.Printf(" of ~%d", cp.TotalMessages)
	}
	fmt.Println()
	fmt.Printf("  updated:   %s\n", cp.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Println("\nRun 'mailvault backup --resume' to continue.")

	return nil
}
