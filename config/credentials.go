package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// SecurityMethod defines the credential storage method
type SecurityMethod string

const (
	SecurityPlainText SecurityMethod = "plaintext"
	SecuritySSHKey    SecurityMethod = "ssh_key"
)

// APIKeyPrefix is the documented prefix of Anthropic API keys.
const APIKeyPrefix = "sk-ant-"

// CredentialAnthropic is the credential slot holding the user's API key.
const CredentialAnthropic = "anthropic"

var (
	ErrAPIKeyMissing = errors.New("API key required")
	ErrAPIKeyFormat  = errors.New("key must start with " + APIKeyPrefix)
)

// ValidateAPIKey applies the only authentication rule the kernel has:
// a non-empty key carrying the vendor prefix.
func ValidateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrAPIKeyMissing
	}
	if !strings.HasPrefix(key, APIKeyPrefix) {
		return ErrAPIKeyFormat
	}
	return nil
}

// CredentialStore keeps API credentials on disk, either as a 0600 TOML
// file or sealed with a key derived from the user's SSH key.
type CredentialStore struct {
	method      SecurityMethod
	credentials map[string]string
	sealer      *Sealer
}

func NewCredentialStore(method SecurityMethod, sshKeyPath string) *CredentialStore {
	store := &CredentialStore{
		method:      method,
		credentials: make(map[string]string),
	}
	if method == SecuritySSHKey {
		store.sealer = NewSealer(sshKeyPath)
	}
	return store
}

// NewCredentialStoreFromConfig picks the method and key path from cfg.
func NewCredentialStoreFromConfig(cfg *Config) *CredentialStore {
	keyPath := cfg.SSHKeyPath
	if cfg.Security == SecuritySSHKey && keyPath == "" {
		if keys, err := FindSSHKeys(); err == nil && len(keys) > 0 {
			keyPath = keys[0]
		}
	}
	return NewCredentialStore(cfg.Security, keyPath)
}

// SetPassphrase unlocks an encrypted SSH key.
func (c *CredentialStore) SetPassphrase(passphrase string) {
	if c.sealer != nil {
		c.sealer.SetPassphrase(passphrase)
	}
}

func (c *CredentialStore) Load(dataDir string) error {
	var (
		creds map[string]string
		err   error
	)
	switch c.method {
	case SecurityPlainText:
		creds, err = loadPlainText(credentialsPath(dataDir))
	case SecuritySSHKey:
		creds, err = c.loadSealed(sealedCredentialsPath(dataDir))
	default:
		return fmt.Errorf("unknown security method: %s", c.method)
	}
	if err != nil {
		return err
	}
	c.credentials = creds
	return nil
}

func (c *CredentialStore) Save(dataDir string) error {
	switch c.method {
	case SecurityPlainText:
		return savePlainText(credentialsPath(dataDir), c.credentials)
	case SecuritySSHKey:
		return c.saveSealed(sealedCredentialsPath(dataDir))
	default:
		return fmt.Errorf("unknown security method: %s", c.method)
	}
}

func (c *CredentialStore) Get(id string) string {
	return c.credentials[id]
}

// Set stores a credential. The Anthropic slot is validated before storing.
func (c *CredentialStore) Set(id string, value string) error {
	value = strings.TrimSpace(value)
	if id == CredentialAnthropic {
		if err := ValidateAPIKey(value); err != nil {
			return err
		}
	}
	c.credentials[id] = value
	return nil
}

func (c *CredentialStore) Delete(id string) error {
	delete(c.credentials, id)
	return nil
}

// APIKey returns the stored Anthropic key, or "" when none is set.
func (c *CredentialStore) APIKey() string {
	return c.credentials[CredentialAnthropic]
}

func (c *CredentialStore) Method() SecurityMethod {
	return c.method
}

func credentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.toml")
}

func sealedCredentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.enc")
}

type credentialsFile struct {
	Credentials map[string]string `toml:"credentials"`
}

func loadPlainText(path string) (map[string]string, error) {
	if !FileExists(path) {
		return make(map[string]string), nil
	}

	var cf credentialsFile
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if cf.Credentials == nil {
		cf.Credentials = make(map[string]string)
	}
	return cf.Credentials, nil
}

func savePlainText(path string, creds map[string]string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create credentials file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(credentialsFile{Credentials: creds}); err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	return nil
}

func (c *CredentialStore) loadSealed(path string) (map[string]string, error) {
	if !FileExists(path) {
		return make(map[string]string), nil
	}

	sealed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encrypted credentials: %w", err)
	}
	plain, err := c.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	var creds map[string]string
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse decrypted credentials: %w", err)
	}
	return creds, nil
}

func (c *CredentialStore) saveSealed(path string) error {
	plain, err := json.MarshalIndent(c.credentials, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}
	sealed, err := c.sealer.Seal(plain)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	if err := os.WriteFile(path, sealed, 0600); err != nil {
		return fmt.Errorf("failed to write encrypted credentials: %w", err)
	}
	return nil
}
