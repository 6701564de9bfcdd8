package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"resumeforge/internal/config"
	"resumeforge/internal/errors"
)

// APIKeyWatcher polls the Vault secret holding the server API keys and calls
// onChange with the new keys whenever its version increases.
type APIKeyWatcher struct {
	mu sync.RWMutex

	client       config.SecretReader
	secretPath   string
	pollInterval time.Duration
	onChange     func(keys []string)
	logger       *errors.Logger

	running     bool
	lastVersion int64
}

// NewAPIKeyWatcher creates a new APIKeyWatcher
func NewAPIKeyWatcher(client config.SecretReader, secretPath string, pollInterval time.Duration, onChange func(keys []string), logger *errors.Logger) *APIKeyWatcher {
	return &APIKeyWatcher{
		client:       client,
		secretPath:   secretPath,
		pollInterval: pollInterval,
		onChange:     onChange,
		logger:       logger,
	}
}

// Run polls until ctx is cancelled. The version present at start is taken as
// already applied.
func (vw *APIKeyWatcher) Run(ctx context.Context) error {
	vw.mu.Lock()
	if vw.running {
		vw.mu.Unlock()
		return fmt.Errorf("vault watcher is already running")
	}
	vw.running = true
	vw.mu.Unlock()

	defer func() {
		vw.mu.Lock()
		vw.running = false
		vw.mu.Unlock()
	}()

	if _, _, err := vw.checkForUpdates(); err != nil {
		vw.logger.LogError(err, "Failed to read API keys secret from Vault")
	}
	vw.logger.Info("Vault watcher started", "secret_path", vw.secretPath, "poll_interval", vw.pollInterval)

	ticker := time.NewTicker(vw.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			vw.poll()
		case <-ctx.Done():
			vw.logger.Info("Vault watcher stopped")
			return nil
		}
	}
}

func (vw *APIKeyWatcher) poll() {
	changed, secret, err := vw.checkForUpdates()
	if err != nil {
		vw.logger.LogError(err, "Failed to check Vault for updates")
		return
	}
	if !changed {
		return
	}

	keys, err := secret.APIKeys()
	if err != nil {
		vw.logger.LogError(err, "Ignoring new API keys secret version", "secret_path", vw.secretPath)
		return
	}
	vw.logger.Info("API keys rotated from Vault", "count", len(keys), "version", secret.Version)
	vw.onChange(keys)
}

// checkForUpdates checks if the Vault secret version has changed
func (vw *APIKeyWatcher) checkForUpdates() (bool, *config.VaultSecret, error) {
	secret, err := vw.client.GetSecretV2(vw.secretPath)
	if err != nil {
		return false, nil, fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == nil {
		return false, nil, fmt.Errorf("secret not found at path: %s", vw.secretPath)
	}

	vw.mu.Lock()
	defer vw.mu.Unlock()
	if secret.Version > vw.lastVersion {
		first := vw.lastVersion == 0
		vw.lastVersion = secret.Version
		return !first, secret, nil
	}
	return false, secret, nil
}

// Status returns the current status of the watcher for the stats endpoint
func (vw *APIKeyWatcher) Status() map[string]any {
	vw.mu.RLock()
	defer vw.mu.RUnlock()
	return map[string]any{
		"running":       vw.running,
		"poll_interval": vw.pollInterval.String(),
		"secret_path":   vw.secretPath,
		"last_version":  vw.lastVersion,
	}
}
