package config

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/99designs/keyring"
	"github.com/rotisserie/eris"
)

const keyringService = "a11y-audit"

// envKeyNames maps providers to the conventional environment variables
// their official SDKs read.
var envKeyNames = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
	"replicate": "REPLICATE_API_TOKEN",
}

var (
	ring        keyring.Keyring
	ringOpenErr error
	ringOnce    sync.Once
)

func openKeyring() (keyring.Keyring, error) {
	ringOnce.Do(func() {
		ring, ringOpenErr = keyring.Open(keyring.Config{
			ServiceName:                    keyringService,
			KeychainTrustApplication:       true,
			KeychainSynchronizable:         false,
			KeychainAccessibleWhenUnlocked: true,
			FileDir:                        keyringFileDir(),
			FilePasswordFunc:               filePassword,
			AllowedBackends:                keyringBackends(),
		})
	})
	return ring, ringOpenErr
}

func keyringFileDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, keyringService)
	}
	return filepath.Join(".", "."+keyringService)
}

func keyringBackends() []keyring.BackendType {
	switch runtime.GOOS {
	case "darwin":
		return []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.FileBackend,
		}
	case "windows":
		return []keyring.BackendType{
			keyring.WinCredBackend,
			keyring.FileBackend,
		}
	default:
		return []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.KeyCtlBackend,
			keyring.FileBackend,
		}
	}
}

// filePassword unlocks the file backend non-interactively so headless
// runs work.
func filePassword(_ string) (string, error) {
	if pw := os.Getenv("A11Y_KEYRING_PASSWORD"); pw != "" {
		return pw, nil
	}
	return keyringService, nil
}

// ResolveKey returns the API key for a provider: the configured value
// wins, then the provider's conventional environment variable, then the
// OS keyring. Empty means no key from any source.
func ResolveKey(provider, configured string) string {
	if configured != "" {
		return configured
	}
	if env, ok := envKeyNames[provider]; ok {
		if key := os.Getenv(env); key != "" {
			return key
		}
	}
	kr, err := openKeyring()
	if err != nil {
		return ""
	}
	item, err := kr.Get(provider + "_api_key")
	if err != nil {
		return ""
	}
	return string(item.Data)
}

// StoreKey saves a provider API key in the OS keyring.
func StoreKey(provider, key string) error {
	kr, err := openKeyring()
	if err != nil {
		return eris.Wrap(err, "config: open keyring")
	}
	err = kr.Set(keyring.Item{
		Key:   provider + "_api_key",
		Label: keyringService + " " + provider + " API key",
		Data:  []byte(key),
	})
	if err != nil {
		return eris.Wrap(err, "config: store key")
	}
	return nil
}

// DeleteKey removes a provider API key from the OS keyring.
func DeleteKey(provider string) error {
	kr, err := openKeyring()
	if err != nil {
		return eris.Wrap(err, "config: open keyring")
	}
	if err := kr.Remove(provider + "_api_key"); err != nil {
		return eris.Wrap(err, "config: delete key")
	}
	return nil
}
