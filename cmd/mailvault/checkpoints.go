package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mailvault/pkg/checkpoint"
	"mailvault/pkg/config"
	"mailvault/pkg/logger"
)

// checkpointsCmd represents the checkpoints command
var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect and manage backup checkpoints",
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all checkpoints, newest first",
	RunE:  runCheckpointsList,
}

var checkpointsDiscardCmd = &cobra.Command{
	Use:   "discard <sync-id>",
	Short: "Delete a checkpoint regardless of status",
	Long: `Delete a checkpoint by sync id.

Discarding an INTERRUPTED checkpoint gives up on resuming that backup;
the next run for the same query starts from scratch.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckpointsDiscard,
}

var checkpointsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old completed checkpoints",
	Long: `Remove COMPLETED checkpoints older than the retention age or beyond
the retention count. Interrupted checkpoints are never removed.`,
	RunE: runCheckpointsCleanup,
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsDiscardCmd)
	checkpointsCmd.AddCommand(checkpointsCleanupCmd)
}

func openCheckpointStore() (*checkpoint.Store, *config.Config, error) {
	cfg, err := config.Load(configFile, map[string]interface{}{"log-level": logLevel})
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, err := checkpoint.NewStore(cfg.Checkpoint.Directory)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func runCheckpointsList(cmd *cobra.Command, args []string) error {
	store, _, err := openCheckpointStore()
	if err != nil {
		return err
	}

	checkpoints, err := store.List()
	if err != nil {
		return err
	}
	if len(checkpoints) == 0 {
		fmt.Println("No checkpoints found.")
		return nil
	}

	fmt.Printf("%-36s  %-12s  %-10s  %s\n", "SYNC ID", "STATUS", "PROCESSED", "QUERY")
	for _, cp := range checkpoints {
		progress := fmt.Sprintf("%d", cp.ProcessedCount)
		if cp.TotalMessages > 0 {
			progress = fmt.Sprintf("%d/%d", cp.ProcessedCount, cp.TotalMessages)
		}
		fmt.Printf("%-36s  %-12s  %-10s  %q\n", cp.SyncID, cp.Status, progress, cp.Query)
	}

	return nil
}

func runCheckpointsDiscard(cmd *cobra.Command, args []string) error {
	store, _, err := openCheckpointStore()
	if err != nil {
		return err
	}

	syncID := args[0]
	if err := store.Discard(syncID); err != nil {
		return err
	}
	fmt.Printf("Checkpoint %s discarded.\n", syncID)
	return nil
}

func runCheckpointsCleanup(cmd *cobra.Command, args []string) error {
	store, cfg, err := openCheckpointStore()
	if err != nil {
		return err
	}

	removed, err := store.CleanupOld(cfg.Checkpoint.RetentionAge, cfg.Checkpoint.RetentionCount)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d completed checkpoint(s).\n", removed)
	return nil
}
