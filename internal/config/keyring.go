package config

import (
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name in the OS keychain.
	KeyringService = "hyperstructure"

	// KeyringOpenAIItem is the key for the OpenAI API key.
	KeyringOpenAIItem = "openai-api-key"

	// KeyringNeo4jItem is the key for the Neo4j password.
	KeyringNeo4jItem = "neo4j-password"
)

// KeyringManager handles secure credential storage in the OS keychain.
type KeyringManager struct {
	logger *slog.Logger
}

// NewKeyringManager creates a new keyring manager.
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{
		logger: slog.Default().With("component", "keyring"),
	}
}

// GetAPIKey retrieves the OpenAI API key from the OS keychain. A missing
// entry is not an error — it just means the key isn't stored there yet.
func (km *KeyringManager) GetAPIKey() (string, error) {
	key, err := keyring.Get(KeyringService, KeyringOpenAIItem)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read openai key from OS keychain: %w", err)
	}
	return key, nil
}

// SetAPIKey stores the OpenAI API key in the OS keychain.
func (km *KeyringManager) SetAPIKey(apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("api key cannot be empty")
	}
	if err := keyring.Set(KeyringService, KeyringOpenAIItem, apiKey); err != nil {
		return fmt.Errorf("failed to save openai key to OS keychain: %w", err)
	}
	return nil
}

// GetNeo4jPassword retrieves the Neo4j password from the OS keychain.
func (km *KeyringManager) GetNeo4jPassword() (string, error) {
	pw, err := keyring.Get(KeyringService, KeyringNeo4jItem)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read neo4j password from OS keychain: %w", err)
	}
	return pw, nil
}

// SetNeo4jPassword stores the Neo4j password in the OS keychain.
func (km *KeyringManager) SetNeo4jPassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if err := keyring.Set(KeyringService, KeyringNeo4jItem, password); err != nil {
		return fmt.Errorf("failed to save neo4j password to OS keychain: %w", err)
	}
	return nil
}

// IsAvailable reports whether the OS keychain backend is reachable. It
// returns false on headless systems (CI) where no Secret Service is
// running, so callers can skip the keychain tier of the precedence chain.
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "availability-probe")
	if err == keyring.ErrNotFound {
		return true
	}
	if err != nil {
		km.logger.Debug("keychain not available", "error", err)
		return false
	}
	return true
}

// MaskAPIKey masks an API key for display: "sk-proj...ab12".
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return "(not set)"
	}
	if len(apiKey) < 12 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", apiKey[:7], apiKey[len(apiKey)-4:])
}
