package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Backend selects which completer drives the kernel.
type Backend string

const (
	BackendClaude Backend = "claude"
	BackendLocal  Backend = "local"
	BackendOllama Backend = "ollama"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type RelayConfig struct {
	URL            string   `toml:"url"`
	Listen         string   `toml:"listen"`
	UpstreamURL    string   `toml:"upstream_url"`
	AllowedOrigins []string `toml:"allowed_origins"`
	FetchTimeout   Duration `toml:"fetch_timeout"`
	FetchLimit     int      `toml:"fetch_limit"`
	RateLimit      float64  `toml:"rate_limit"`
	RateBurst      int      `toml:"rate_burst"`
}

type ModelConfig struct {
	Chain         []string `toml:"chain"`
	Summarizer    string   `toml:"summarizer"`
	LocalModel    string   `toml:"local_model"`
	LocalEndpoint string   `toml:"local_endpoint"`
}

type BudgetConfig struct {
	MaxLoops      int `toml:"max_loops"`
	BootMaxLoops  int `toml:"boot_max_loops"`
	FixAttempts   int `toml:"fix_attempts"`
	HistoryWindow int `toml:"history_window"`
}

type UIConfig struct {
	StatusLines int    `toml:"status_lines"`
	ExportDir   string `toml:"export_dir,omitempty"`
}

type UserConfig struct {
	Backend    Backend        `toml:"backend"`
	Security   SecurityMethod `toml:"security"`
	SSHKeyPath string         `toml:"ssh_key_path,omitempty"`
	Relay      RelayConfig    `toml:"relay"`
	Model      ModelConfig    `toml:"model"`
	Budgets    BudgetConfig   `toml:"budgets"`
	UI         UIConfig       `toml:"ui"`
}

// Duration lets TOML carry values like "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the merged runtime configuration.
type Config struct {
	DataDirectory string
	UserConfig
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// BootModel is the fallback used before (or without) probing.
func (c *Config) BootModel() string {
	if len(c.Model.Chain) == 0 {
		return DefaultModelChain[len(DefaultModelChain)-1]
	}
	return c.Model.Chain[0]
}

func (c *Config) applyEnvOverrides() {
	if dataDir := os.Getenv("HERMITCRAB_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if url := os.Getenv("HERMITCRAB_RELAY_URL"); url != "" {
		c.Relay.URL = url
	}
	if listen := os.Getenv("HERMITCRAB_LISTEN"); listen != "" {
		c.Relay.Listen = listen
	}
	if backend := os.Getenv("HERMITCRAB_BACKEND"); backend != "" {
		c.Backend = Backend(strings.ToLower(backend))
	}
	if model := os.Getenv("HERMITCRAB_MODEL"); model != "" {
		c.Model.Chain = append([]string{model}, c.Model.Chain...)
		c.Model.LocalModel = model
	}
	if endpoint := os.Getenv("HERMITCRAB_LOCAL_ENDPOINT"); endpoint != "" {
		c.Model.LocalEndpoint = endpoint
	}
}

// fillDefaults backfills zero values left by partial config files.
func (c *Config) fillDefaults() {
	def := DefaultUserConfig()
	if c.Backend == "" {
		c.Backend = def.Backend
	}
	if c.Security == "" {
		c.Security = def.Security
	}
	if c.Relay.URL == "" {
		c.Relay.URL = def.Relay.URL
	}
	if c.Relay.Listen == "" {
		c.Relay.Listen = def.Relay.Listen
	}
	if c.Relay.UpstreamURL == "" {
		c.Relay.UpstreamURL = def.Relay.UpstreamURL
	}
	if len(c.Relay.AllowedOrigins) == 0 {
		c.Relay.AllowedOrigins = def.Relay.AllowedOrigins
	}
	if c.Relay.FetchTimeout.Duration <= 0 {
		c.Relay.FetchTimeout = def.Relay.FetchTimeout
	}
	if c.Relay.FetchLimit <= 0 {
		c.Relay.FetchLimit = def.Relay.FetchLimit
	}
	if c.Relay.RateLimit <= 0 {
		c.Relay.RateLimit = def.Relay.RateLimit
	}
	if c.Relay.RateBurst <= 0 {
		c.Relay.RateBurst = def.Relay.RateBurst
	}
	if len(c.Model.Chain) == 0 {
		c.Model.Chain = def.Model.Chain
	}
	if c.Model.Summarizer == "" {
		c.Model.Summarizer = def.Model.Summarizer
	}
	if c.Model.LocalEndpoint == "" {
		c.Model.LocalEndpoint = def.Model.LocalEndpoint
	}
	if c.Model.LocalModel == "" {
		c.Model.LocalModel = def.Model.LocalModel
	}
	if c.Budgets.MaxLoops <= 0 {
		c.Budgets.MaxLoops = def.Budgets.MaxLoops
	}
	if c.Budgets.BootMaxLoops <= 0 {
		c.Budgets.BootMaxLoops = def.Budgets.BootMaxLoops
	}
	if c.Budgets.FixAttempts <= 0 {
		c.Budgets.FixAttempts = def.Budgets.FixAttempts
	}
	if c.Budgets.HistoryWindow <= 0 {
		c.Budgets.HistoryWindow = def.Budgets.HistoryWindow
	}
	if c.UI.StatusLines <= 0 {
		c.UI.StatusLines = def.UI.StatusLines
	}
}

func CheckDebug() bool {
	debug := os.Getenv("HERMITCRAB_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (HERMITCRAB_DEBUG=%s) ===", os.Getenv("HERMITCRAB_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// Load merges defaults, the system settings file, the user config file and
// environment overrides, then makes sure the data directory exists.
func Load() (*Config, error) {
	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}

	cfg := &Config{DataDirectory: systemCfg.DataDirectory}
	if dataDir := os.Getenv("HERMITCRAB_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
	}

	return LoadFrom(cfg.DataDir())
}

// LoadFrom loads the user config from an explicit data directory.
func LoadFrom(dataDir string) (*Config, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	cfg := &Config{DataDirectory: dataDir, UserConfig: *userCfg}
	cfg.applyEnvOverrides()
	cfg.fillDefaults()

	return cfg, nil
}
