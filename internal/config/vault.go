package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"resumeforge/internal/errors"
)

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"tokenFile"`
	Namespace string `mapstructure:"namespace"`

	// WatchInterval polls the API keys secret for new versions while serving.
	// Zero disables polling.
	WatchInterval time.Duration `mapstructure:"watchInterval"`

	Secrets VaultSecrets `mapstructure:"secrets"`
}

// VaultSecrets are KVv2 read paths, e.g. "secret/data/resumeforge/server"
type VaultSecrets struct {
	// APIKeys holds a "keys" field of comma-separated server API keys
	APIKeys string `mapstructure:"apiKeys"`
	// ProviderKey holds an "api_key" field with the generation provider key
	ProviderKey string `mapstructure:"providerKey"`
}

// SecretReader reads a KVv2 secret; *VaultClient implements it
type SecretReader interface {
	GetSecretV2(path string) (*VaultSecret, error)
}

// VaultClient wraps the Vault API client
type VaultClient struct {
	client *api.Client
	logger *errors.Logger
}

// NewVaultClient connects to Vault. It returns nil, nil when Vault is disabled.
func NewVaultClient(cfg VaultConfig, logger *errors.Logger) (*VaultClient, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = errors.Discard()
	}

	apiCfg := api.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	token, err := resolveVaultToken(cfg)
	if err != nil {
		return nil, err
	}
	client.SetToken(token)

	health, err := client.Sys().Health()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to vault at %s: %w", apiCfg.Address, err)
	}
	logger.Info("Connected to Vault",
		"address", apiCfg.Address,
		"version", health.Version,
		"sealed", health.Sealed)

	return &VaultClient{client: client, logger: logger}, nil
}

// resolveVaultToken prefers the configured token over the token file
func resolveVaultToken(cfg VaultConfig) (string, error) {
	token := cfg.Token
	if token == "" && cfg.TokenFile != "" {
		raw, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return "", fmt.Errorf("failed to read vault token file: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}
	if token == "" {
		return "", fmt.Errorf("vault token is required when vault is enabled")
	}
	return token, nil
}

// VaultSecret represents a secret read from Vault's KVv2 engine.
type VaultSecret struct {
	Data    map[string]any
	Version int64
}

// String returns a string field of the secret
func (s *VaultSecret) String(key string) (string, error) {
	value, ok := s.Data[key].(string)
	if !ok {
		return "", fmt.Errorf("secret has no string %q field", key)
	}
	return value, nil
}

// APIKeys splits the comma-separated "keys" field. An empty list is an error.
func (s *VaultSecret) APIKeys() ([]string, error) {
	raw, err := s.String("keys")
	if err != nil {
		return nil, err
	}
	keys := splitKeys(raw)
	if len(keys) == 0 {
		return nil, fmt.Errorf("secret holds no API keys")
	}
	return keys, nil
}

// GetSecretV2 retrieves a secret from a Vault KVv2 store.
func (vc *VaultClient) GetSecretV2(path string) (*VaultSecret, error) {
	if vc == nil {
		return nil, fmt.Errorf("vault client not initialized")
	}
	vc.logger.Debug("Reading secret from Vault", "path", path)

	secret, err := vc.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret not found at path: %s", path)
	}
	return decodeKVv2(secret.Data, path)
}

// decodeKVv2 unpacks the data and metadata.version fields of a KVv2 read
func decodeKVv2(raw map[string]any, path string) (*VaultSecret, error) {
	data, ok := raw["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'data' field)", path)
	}
	metadata, ok := raw["metadata"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'metadata' field)", path)
	}
	versionRaw, ok := metadata["version"]
	if !ok {
		return nil, fmt.Errorf("secret metadata at %s is missing 'version' field", path)
	}
	version, err := parseVersionValue(versionRaw)
	if err != nil {
		return nil, fmt.Errorf("secret version at %s: %w", path, err)
	}
	return &VaultSecret{Data: data, Version: version}, nil
}

func parseVersionValue(v any) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected version type %T", v)
	}
}

// ApplyVaultSecrets overrides the provider key and server API keys with the
// values stored in Vault. Vault wins over file and environment values.
func ApplyVaultSecrets(cfg *Config, logger *errors.Logger) error {
	if !cfg.Vault.Enabled {
		return nil
	}
	client, err := NewVaultClient(cfg.Vault, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vault client: %w", err)
	}
	return applySecrets(client, cfg, logger)
}

func applySecrets(reader SecretReader, cfg *Config, logger *errors.Logger) error {
	if logger == nil {
		logger = errors.Discard()
	}
	paths := cfg.Vault.Secrets

	if paths.APIKeys != "" {
		secret, err := reader.GetSecretV2(paths.APIKeys)
		if err == nil {
			cfg.Server.APIKeys, err = secret.APIKeys()
		}
		if err != nil {
			return fmt.Errorf("failed to load API keys from vault: %w", err)
		}
		logger.Info("API keys loaded from Vault", "count", len(cfg.Server.APIKeys))
	}

	if paths.ProviderKey != "" {
		var key string
		secret, err := reader.GetSecretV2(paths.ProviderKey)
		if err == nil {
			key, err = secret.String("api_key")
		}
		if err != nil {
			return fmt.Errorf("failed to load provider API key from vault: %w", err)
		}
		if key == "" {
			logger.Warn("Empty provider API key found in Vault", "path", paths.ProviderKey)
			return nil
		}
		applyProviderKeyToConfig(cfg, key)
		logger.Info("Provider API key loaded from Vault", "provider", cfg.AI.Provider)
	}
	return nil
}

// applyProviderKeyToConfig sets the global key and fills operations that have none
func applyProviderKeyToConfig(cfg *Config, key string) {
	cfg.AI.APIKey = key
	if cfg.AI.Generate.APIKey == "" {
		cfg.AI.Generate.APIKey = key
	}
	if cfg.AI.Analyze.APIKey == "" {
		cfg.AI.Analyze.APIKey = key
	}
}
