package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore using environment variables.
// It is read-only and mainly serves CI and containerized runs.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(email string) (*Account, error) {
	envEmail := os.Getenv("MAILVAULT_EMAIL")
	token := os.Getenv("MAILVAULT_API_TOKEN")
	baseURL := os.Getenv("MAILVAULT_BASE_URL")

	if token == "" {
		return nil, ErrCredentialsNotFound
	}
	if email != "" && envEmail != "" && email != envEmail {
		return nil, ErrCredentialsNotFound
	}

	if envEmail == "" {
		envEmail = email
	}
	if envEmail == "" {
		envEmail = "default"
	}

	return &Account{
		Email:        envEmail,
		APIToken:     token,
		BaseURL:      baseURL,
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(email string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(email string) bool {
	return os.Getenv("MAILVAULT_API_TOKEN") != ""
}
