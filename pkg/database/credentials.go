package database

import (
	"fmt"
	"os"

	"github.com/aisleco/aisle-open/pkg/keyring"
)

const (
	// Keyring service name for storage credentials
	StorageKeyringService = "aisle-storage"
	PostgresPasswordKey   = "postgres-password"
)

// storageKeyringService returns the keyring service name, isolated per
// instance group so several clusters on one host do not share credentials.
func storageKeyringService() string {
	if group := os.Getenv("AISLE_INSTANCE_GROUP_ID"); group != "" && group != "default" {
		return fmt.Sprintf("%s-%s", StorageKeyringService, group)
	}
	return StorageKeyringService
}

// StoredPostgresPassword retrieves the PostgreSQL password from the keyring.
// Nodes use it when the config file leaves storage.postgres.password empty,
// so the password never has to live in a file on disk.
func StoredPostgresPassword() (string, error) {
	km := keyring.NewKeyringManager(keyring.GetDefaultKeyringPath(), keyring.GetMasterPasswordFromEnv())
	password, err := km.Get(storageKeyringService(), PostgresPasswordKey)
	if err != nil {
		return "", fmt.Errorf("no stored postgres password: %v", err)
	}
	return password, nil
}

// StorePostgresPassword saves the PostgreSQL password to the keyring for
// later retrieval by StoredPostgresPassword.
func StorePostgresPassword(password string) error {
	km := keyring.NewKeyringManager(keyring.GetDefaultKeyringPath(), keyring.GetMasterPasswordFromEnv())
	return km.Set(storageKeyringService(), PostgresPasswordKey, password)
}
