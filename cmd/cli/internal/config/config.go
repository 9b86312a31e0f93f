package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aisleco/aisle-open/pkg/client"
	"github.com/aisleco/aisle-open/pkg/keyring"
)

const (
	ServiceName    = "aisle-cli"
	TokenKey       = "token"
	CurrentUserKey = "current_user"
)

// Config is the CLI profile stored as YAML. Endpoints list every cluster
// node's client API; the client retries across them in this order.
type Config struct {
	Endpoints []string `yaml:"endpoints"`
	Timeout   int      `yaml:"timeout"`
}

var (
	globalConfig   *Config
	keyringManager *keyring.KeyringManager
)

// Init initializes the configuration from the specified file
func Init(configFile string) error {
	keyringPath := keyring.GetDefaultKeyringPath()
	masterPassword := keyring.GetMasterPasswordFromEnv()
	keyringManager = keyring.NewKeyringManager(keyringPath, masterPassword)

	globalConfig = &Config{
		Endpoints: []string{
			"http://localhost:8081",
			"http://localhost:8082",
			"http://localhost:8083",
		},
		Timeout: 15,
	}

	configDir := filepath.Dir(configFile)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %v", err)
	}

	if _, err := os.Stat(configFile); err == nil {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to read config file: %v", err)
		}

		if err := yaml.Unmarshal(data, globalConfig); err != nil {
			return fmt.Errorf("failed to parse config file: %v", err)
		}
	} else {
		// Create default config file
		data, err := yaml.Marshal(globalConfig)
		if err != nil {
			return fmt.Errorf("failed to marshal default config: %v", err)
		}

		if err := os.WriteFile(configFile, data, 0o600); err != nil {
			return fmt.Errorf("failed to write default config file: %v", err)
		}
	}

	return nil
}

// GetConfig returns the global configuration
func GetConfig() *Config {
	return globalConfig
}

// NewClient builds a cluster client from the profile, restoring the
// session token of the logged-in user when one exists.
func NewClient() (*client.Client, error) {
	c, err := client.New(client.Config{
		Endpoints:      globalConfig.Endpoints,
		RequestTimeout: time.Duration(globalConfig.Timeout) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	if username, err := GetUsername(); err == nil {
		if token, err := GetToken(username); err == nil {
			c.SetToken(token)
		}
	}
	return c, nil
}

// StoreUsername records which user is logged in
func StoreUsername(username string) error {
	return keyringManager.Set(ServiceName, CurrentUserKey, username)
}

// GetUsername returns the logged-in user
func GetUsername() (string, error) {
	return keyringManager.Get(ServiceName, CurrentUserKey)
}

// StoreToken saves a session token for the user
func StoreToken(username, token string) error {
	return keyringManager.Set(ServiceName, fmt.Sprintf("%s:%s", username, TokenKey), token)
}

// GetToken returns the stored session token for the user
func GetToken(username string) (string, error) {
	return keyringManager.Get(ServiceName, fmt.Sprintf("%s:%s", username, TokenKey))
}

// ClearCredentials removes the user's stored token and the current-user
// marker.
func ClearCredentials(username string) error {
	if err := keyringManager.Delete(ServiceName, fmt.Sprintf("%s:%s", username, TokenKey)); err != nil {
		return fmt.Errorf("failed to delete token: %v", err)
	}
	if err := keyringManager.Delete(ServiceName, CurrentUserKey); err != nil {
		return fmt.Errorf("failed to delete current user: %v", err)
	}
	return nil
}
