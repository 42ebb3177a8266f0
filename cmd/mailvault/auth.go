package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mailvault/pkg/auth"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage mail account credentials",
	Long: `Manage stored mail account credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read-only fallback)

Never share your credentials or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Store account credentials securely",
	Long: `Store mail account credentials in the system keychain or encrypted file.

You will be prompted for:
  - Account email address (if not provided)
  - API token (input is hidden)
  - API base URL (optional, press Enter for the default)`,
	Example: `  # Interactive login
  mailvault auth login

  # Login for a specific account
  mailvault auth login user@example.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout <email>",
	Short: "Remove stored credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

// authListCmd represents the auth list command
var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored accounts with sanitized credential information.`,
	RunE:  runAuthList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(authListCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	var email string
	if len(args) > 0 {
		email = args[0]
	}
	if email == "" {
		fmt.Print("Account email: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read email: %w", err)
		}
		email = strings.TrimSpace(input)
	}
	if email == "" {
		return fmt.Errorf("email is required")
	}

	if existing, _ := manager.Retrieve(email); existing != nil {
		fmt.Printf("Account %s already exists. Update credentials? (y/N): ", email)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("API token (input hidden): ")
	token, err := readPassword()
	if err != nil {
		return fmt.Errorf("failed to read API token: %w", err)
	}
	if token == "" {
		return fmt.Errorf("API token is required")
	}

	fmt.Print("\nAPI base URL (press Enter for default): ")
	baseURL, _ := reader.ReadString('\n')
	baseURL = strings.TrimSpace(baseURL)

	account := &auth.Account{
		Email:    email,
		APIToken: token,
		BaseURL:  baseURL,
	}
	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	fmt.Printf("Credentials stored for %s.\n", email)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	email := args[0]
	if err := manager.Delete(email); err != nil {
		return err
	}
	fmt.Printf("Credentials removed for %s.\n", email)
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Println("No stored accounts. Run 'mailvault auth login' to add one.")
		return nil
	}

	fmt.Printf("%-30s  %-20s  %s\n", "EMAIL", "API TOKEN", "LAST MODIFIED")
	for _, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Printf("%-30s  %-20s  %s\n",
			sanitized.Email,
			sanitized.APIToken,
			sanitized.LastModified.Format("2006-01-02 15:04:05"),
		)
	}
	return nil
}

// readPassword reads a line from stdin without echoing it
func readPassword() (string, error) {
	data, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
