package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{name: "valid", key: "sk-ant-api03-abc", wantErr: nil},
		{name: "surrounding whitespace", key: "  sk-ant-xyz \n", wantErr: nil},
		{name: "empty", key: "", wantErr: ErrAPIKeyMissing},
		{name: "blank", key: "   ", wantErr: ErrAPIKeyMissing},
		{name: "wrong prefix", key: "sk-proj-123", wantErr: ErrAPIKeyFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.key)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadFromWritesDefaults(t *testing.T) {
	t.Setenv("HERMITCRAB_RELAY_URL", "")
	t.Setenv("HERMITCRAB_BACKEND", "")
	t.Setenv("HERMITCRAB_MODEL", "")
	dir := filepath.Join(t.TempDir(), "data")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.FileExists(t, UserConfigPath(dir))
	assert.Equal(t, BackendClaude, cfg.Backend)
	assert.Equal(t, 10, cfg.Budgets.MaxLoops)
	assert.Equal(t, 5, cfg.Budgets.BootMaxLoops)
	assert.Equal(t, 3, cfg.Budgets.FixAttempts)
	assert.Equal(t, 50, cfg.Budgets.HistoryWindow)
	assert.Equal(t, 10*time.Second, cfg.Relay.FetchTimeout.Duration)
	assert.Equal(t, DefaultModelChain, cfg.Model.Chain)
	assert.Equal(t, "claude-opus-4-6", cfg.BootModel())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestLoadFromParsesTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(UserConfigPath(dir), []byte(GenerateUserConfigTemplate()), 0600))

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8787", cfg.Relay.Listen)
	assert.Equal(t, 50000, cfg.Relay.FetchLimit)
	assert.Equal(t, DefaultAllowedOrigins, cfg.Relay.AllowedOrigins)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HERMITCRAB_RELAY_URL", "http://relay.test")
	t.Setenv("HERMITCRAB_BACKEND", "OLLAMA")
	t.Setenv("HERMITCRAB_MODEL", "claude-test")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://relay.test", cfg.Relay.URL)
	assert.Equal(t, BackendOllama, cfg.Backend)
	assert.Equal(t, "claude-test", cfg.BootModel())
	assert.Equal(t, "claude-test", cfg.Model.LocalModel)
}

func TestPartialUserConfigIsBackfilled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(UserConfigPath(dir), []byte("backend = \"local\"\n[budgets]\nmax_loops = 3\n"), 0600))
	t.Setenv("HERMITCRAB_BACKEND", "")
	t.Setenv("HERMITCRAB_MODEL", "")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, cfg.Backend)
	assert.Equal(t, 3, cfg.Budgets.MaxLoops)
	assert.Equal(t, 5, cfg.Budgets.BootMaxLoops)
	assert.NotEmpty(t, cfg.Relay.URL)
}

func TestPlainTextCredentials(t *testing.T) {
	dir := t.TempDir()

	store := NewCredentialStore(SecurityPlainText, "")
	require.NoError(t, store.Load(dir))
	assert.Empty(t, store.APIKey())

	assert.ErrorIs(t, store.Set(CredentialAnthropic, "not-a-key"), ErrAPIKeyFormat)
	require.NoError(t, store.Set(CredentialAnthropic, "sk-ant-test-123"))
	require.NoError(t, store.Save(dir))

	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded := NewCredentialStore(SecurityPlainText, "")
	require.NoError(t, reloaded.Load(dir))
	assert.Equal(t, "sk-ant-test-123", reloaded.APIKey())

	require.NoError(t, reloaded.Delete(CredentialAnthropic))
	assert.Empty(t, reloaded.APIKey())
}

func writeTestSSHKey(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "test")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
	return path
}

func TestSealedCredentialsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeTestSSHKey(t)

	store := NewCredentialStore(SecuritySSHKey, keyPath)
	require.NoError(t, store.Set(CredentialAnthropic, "sk-ant-sealed"))
	require.NoError(t, store.Save(dir))

	raw, err := os.ReadFile(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-ant-sealed")

	reloaded := NewCredentialStore(SecuritySSHKey, keyPath)
	require.NoError(t, reloaded.Load(dir))
	assert.Equal(t, "sk-ant-sealed", reloaded.APIKey())
}

func TestSealerRejectsForeignKey(t *testing.T) {
	sealed, err := NewSealer(writeTestSSHKey(t)).Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = NewSealer(writeTestSSHKey(t)).Open(sealed)
	assert.Error(t, err)
}

func TestSaveUserConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultUserConfig()
	cfg.Backend = BackendOllama
	cfg.UI.ExportDir = "~/crab-exports"
	cfg.Relay.FetchTimeout = Duration{30 * time.Second}

	require.NoError(t, SaveUserConfig(cfg, dir))

	info, err := os.Stat(UserConfigPath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadUserConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, BackendOllama, loaded.Backend)
	assert.Equal(t, "~/crab-exports", loaded.UI.ExportDir)
	assert.Equal(t, 30*time.Second, loaded.Relay.FetchTimeout.Duration)
	assert.Equal(t, cfg.Model.Chain, loaded.Model.Chain)
}
