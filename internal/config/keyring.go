package config

import (
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

const (
	keyringService    = "depscan"
	keyringAPIKeyItem = "llm-api-key"
)

// KeyringManager stores the LLM API key in the OS keychain when the
// llm.use_keychain config setting is enabled, per SPEC_FULL §4.13. Grounded on
// rohankatakam-coderisk's internal/config/keyring.go, trimmed to the
// single credential this system needs.
type KeyringManager struct {
	logger *slog.Logger
}

// NewKeyringManager creates a new keyring manager.
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{logger: slog.Default().With("component", "keyring")}
}

// SaveAPIKey stores the LLM API key securely in the OS keychain.
func (km *KeyringManager) SaveAPIKey(apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("api key cannot be empty")
	}
	if err := keyring.Set(keyringService, keyringAPIKeyItem, apiKey); err != nil {
		km.logger.Error("failed to save api key to keychain", "error", err)
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}
	return nil
}

// GetAPIKey retrieves the LLM API key from the OS keychain. A missing
// entry is not an error — it means the key was never saved there.
func (km *KeyringManager) GetAPIKey() (string, error) {
	apiKey, err := keyring.Get(keyringService, keyringAPIKeyItem)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		km.logger.Error("failed to get api key from keychain", "error", err)
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}
	return apiKey, nil
}

// DeleteAPIKey removes the LLM API key from the OS keychain.
func (km *KeyringManager) DeleteAPIKey() error {
	err := keyring.Delete(keyringService, keyringAPIKeyItem)
	if err == keyring.ErrNotFound {
		return nil
	}
	return err
}

// IsAvailable reports whether the OS keychain backend responds at all.
// Returns false on headless systems (CI workers) where no keychain
// implementation is registered.
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(keyringService, "availability-probe")
	if err == keyring.ErrNotFound {
		return true
	}
	if err != nil {
		km.logger.Debug("keychain not available", "error", err)
		return false
	}
	return true
}
