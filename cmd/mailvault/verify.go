package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mailvault/pkg/config"
	"mailvault/pkg/logger"
	"mailvault/pkg/manifest"
)

var (
	verifyDir    string
	verifyUpdate bool
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify backup integrity against the manifest",
	Long: `Verify every file recorded in the backup manifest.

Each file is re-hashed and compared against its recorded SHA-256 digest.
Files are reported as verified, missing, corrupted, or extra. Extra files
(present on disk but not in the manifest) do not fail verification.`,
	Example: `  # Verify the default backup directory
  mailvault verify

  # Verify a specific directory and record new files
  mailvault verify --dir ./receipts --update`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&verifyDir, "dir", "", "backup directory to verify (default: configured output directory)")
	verifyCmd.Flags().BoolVar(&verifyUpdate, "update", false, "add untracked files to the manifest after verification")
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, map[string]interface{}{"log-level": logLevel})
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	dir := verifyDir
	if dir == "" {
		dir = cfg.Backup.OutputDirectory
	}

	mgr, err := manifest.NewManager(dir, cfg.Backup.HashWorkers)
	if err != nil {
		return err
	}

	result, err := mgr.Verify()
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	fmt.Printf("Checked:   %d\n", result.TotalChecked)
	fmt.Printf("Verified:  %d\n", result.Verified)
	fmt.Printf("Missing:   %d\n", len(result.Missing))
	fmt.Printf("Corrupted: %d\n", len(result.Corrupted))
	fmt.Printf("Extra:     %d\n", len(result.Extra))

	for _, path := range result.Missing {
		fmt.Printf("  missing:   %s\n", path)
	}
	for _, path := range result.Corrupted {
		fmt.Printf("  corrupted: %s\n", path)
	}
	for _, path := range result.Extra {
		fmt.Printf("  extra:     %s\n", path)
	}
	for _, msg := range result.Errors {
		fmt.Printf("  error:     %s\n", msg)
	}

	if verifyUpdate && len(result.Extra) > 0 {
		added, err := mgr.Update(nil)
		if err != nil {
			return fmt.Errorf("manifest update failed: %w", err)
		}
		fmt.Printf("Manifest:  %d entries added\n", added)
	}

	if !result.IsValid {
		fmt.Println("\nBackup is NOT valid.")
		os.Exit(1)
	}

	fmt.Println("\nBackup is valid.")
	return nil
}
