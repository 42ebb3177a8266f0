package auth

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCredentialManager(t *testing.T) {
	manager, mockStore := NewMockManager()

	account := &Account{
		Email:        "user@example.com",
		APIToken:     "test_api_token_1234567890",
		BaseURL:      "https://mail.example.com/api/v1",
		LastModified: time.Now(),
	}

	err := manager.Store(account)
	if err != nil {
		t.Errorf("Failed to store account: %v", err)
	}

	retrieved, err := manager.Retrieve("user@example.com")
	if err != nil {
		t.Errorf("Failed to retrieve account: %v", err)
	}

	if retrieved.Email != account.Email {
		t.Errorf("Email mismatch: got %s, want %s", retrieved.Email, account.Email)
	}
	if retrieved.APIToken != account.APIToken {
		t.Errorf("APIToken mismatch: got %s, want %s", retrieved.APIToken, account.APIToken)
	}

	accounts, err := manager.List()
	if err != nil {
		t.Errorf("Failed to list accounts: %v", err)
	}
	if len(accounts) == 0 {
		t.Error("Expected at least one account in list")
	}

	sanitized := SanitizeAccount(account)
	if sanitized.APIToken == account.APIToken {
		t.Error("APIToken should be masked")
	}
	if sanitized.Email != account.Email {
		t.Error("Email should not be masked")
	}

	err = manager.Delete("user@example.com")
	if err != nil {
		t.Errorf("Failed to delete account: %v", err)
	}

	_, err = manager.Retrieve("user@example.com")
	if err == nil {
		t.Error("Expected error retrieving deleted account")
	}

	if mockStore.Count() != 0 {
		t.Errorf("Expected 0 accounts after deletion, got %d", mockStore.Count())
	}
}

func TestManagerValidation(t *testing.T) {
	manager, _ := NewMockManager()

	if err := manager.Store(&Account{APIToken: "token"}); err == nil {
		t.Error("Expected error storing account without email")
	}
	if err := manager.Store(&Account{Email: "user@example.com"}); err == nil {
		t.Error("Expected error storing account without API token")
	}
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv("MAILVAULT_PASSPHRASE", "test-passphrase-for-unit-tests")

	storePath := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := NewEncryptedFileStore(storePath)
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	account := &Account{
		Email:        "enc@example.com",
		APIToken:     "secret_token_abcdef123456",
		LastModified: time.Now(),
	}

	if err := store.Store(account); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	// The file must not contain the token in plaintext.
	raw, err := os.ReadFile(storePath)
	if err != nil {
		t.Fatalf("Failed to read store file: %v", err)
	}
	if bytes.Contains(raw, []byte(account.APIToken)) {
		t.Error("API token stored in plaintext")
	}

	// A second store instance with the same passphrase can read it back.
	reopened, err := NewEncryptedFileStore(storePath)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	retrieved, err := reopened.Retrieve("enc@example.com")
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if retrieved.APIToken != account.APIToken {
		t.Errorf("APIToken mismatch after reopen: got %s", retrieved.APIToken)
	}

	// Deleting the last account removes the file entirely.
	if err := reopened.Delete("enc@example.com"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := os.Stat(storePath); !os.IsNotExist(err) {
		t.Error("Store file should be removed when empty")
	}
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("MAILVAULT_EMAIL", "env@example.com")
	t.Setenv("MAILVAULT_API_TOKEN", "env_token_9876543210")
	t.Setenv("MAILVAULT_BASE_URL", "https://mail.example.com/api/v1")

	store := NewEnvironmentStore()

	account, err := store.Retrieve("")
	if err != nil {
		t.Fatalf("Failed to retrieve from environment: %v", err)
	}
	if account.Email != "env@example.com" {
		t.Errorf("Email = %s", account.Email)
	}
	if account.APIToken != "env_token_9876543210" {
		t.Errorf("APIToken = %s", account.APIToken)
	}
	if account.BaseURL != "https://mail.example.com/api/v1" {
		t.Errorf("BaseURL = %s", account.BaseURL)
	}

	if _, err := store.Retrieve("other@example.com"); err == nil {
		t.Error("Expected miss for mismatched email")
	}

	if err := store.Store(account); err != ErrStoreUnavailable {
		t.Errorf("Store should be unavailable, got %v", err)
	}
	if err := store.Delete("env@example.com"); err != ErrStoreUnavailable {
		t.Errorf("Delete should be unavailable, got %v", err)
	}
}

func TestEnvironmentStoreMissingToken(t *testing.T) {
	t.Setenv("MAILVAULT_API_TOKEN", "")

	store := NewEnvironmentStore()
	if _, err := store.Retrieve(""); err == nil {
		t.Error("Expected error with no token in environment")
	}
	if store.Exists("") {
		t.Error("Exists should be false with no token")
	}
}

func TestMaskString(t *testing.T) {
	if got := maskString("short"); got != "********" {
		t.Errorf("maskString(short) = %s", got)
	}
	if got := maskString("abcd1234efgh5678"); got != "abcd...5678" {
		t.Errorf("maskString = %s", got)
	}
}

func TestManagerFallbackChain(t *testing.T) {
	failing := NewMockStore()
	failing.StoreError = ErrStoreUnavailable
	failing.RetrieveError = ErrStoreUnavailable
	working := NewMockStore()

	manager := NewMockManagerWithStores(failing, working)

	account := &Account{Email: "fb@example.com", APIToken: "token_1234567890"}
	if err := manager.Store(account); err != nil {
		t.Fatalf("Store should fall through to working store: %v", err)
	}

	retrieved, err := manager.Retrieve("fb@example.com")
	if err != nil {
		t.Fatalf("Retrieve should fall through: %v", err)
	}
	if retrieved.Email != "fb@example.com" {
		t.Errorf("Email = %s", retrieved.Email)
	}
}
