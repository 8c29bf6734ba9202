package settings

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Keyring entries used when secrets are kept out of the settings document.
const (
	secretClientSecret = "google-client-secret"
	secretAccessToken  = "google-access-token"
	secretRefreshToken = "google-refresh-token"
	secretProviderKey  = "provider-key:"
)

// keyringSecrets stores credentials in the OS keychain under one service name.
type keyringSecrets struct {
	service string
}

func (k keyringSecrets) get(name string) (string, error) {
	v, err := keyring.Get(k.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s from keyring: %w", name, err)
	}
	return v, nil
}

// set stores value, deleting the entry when value is empty.
func (k keyringSecrets) set(name, value string) error {
	if value == "" {
		err := keyring.Delete(k.service, name)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to delete %s from keyring: %w", name, err)
		}
		return nil
	}
	if err := keyring.Set(k.service, name, value); err != nil {
		return fmt.Errorf("failed to write %s to keyring: %w", name, err)
	}
	return nil
}
