package config

import "time"

// DefaultModelChain is probed in order at boot; the first model that answers wins.
var DefaultModelChain = []string{
	"claude-opus-4-6",
	"claude-opus-4-20250514",
	"claude-sonnet-4-5-20250929",
	"claude-sonnet-4-20250514",
}

// DefaultAllowedOrigins is the relay CORS allow-list.
var DefaultAllowedOrigins = []string{
	"https://seed.machus.ai",
	"http://localhost:5173",
	"http://localhost:3000",
}

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/hermitcrab",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Backend:  BackendClaude,
		Security: SecurityPlainText,
		Relay: RelayConfig{
			URL:            "http://127.0.0.1:8787",
			Listen:         "127.0.0.1:8787",
			UpstreamURL:    "https://api.anthropic.com",
			AllowedOrigins: append([]string(nil), DefaultAllowedOrigins...),
			FetchTimeout:   Duration{10 * time.Second},
			FetchLimit:     50000,
			RateLimit:      5,
			RateBurst:      10,
		},
		Model: ModelConfig{
			Chain:         append([]string(nil), DefaultModelChain...),
			Summarizer:    "claude-haiku-4-5-20251001",
			LocalModel:    "llama3.1:latest",
			LocalEndpoint: "http://localhost:11434/v1",
		},
		Budgets: BudgetConfig{
			MaxLoops:      10,
			BootMaxLoops:  5,
			FixAttempts:   3,
			HistoryWindow: 50,
		},
		UI: UIConfig{
			StatusLines: 200,
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# hermitcrab system configuration
# Location: ~/.config/hermitcrab/settings.toml

# Directory holding the kernel database, credentials and user config
data_directory = "~/.local/share/hermitcrab"
`
}

func GenerateUserConfigTemplate() string {
	return `# hermitcrab user configuration
# Location: <data_directory>/config.toml

# claude | local | ollama
backend = "claude"

# plaintext | ssh_key
security = "plaintext"

[relay]
url = "http://127.0.0.1:8787"
listen = "127.0.0.1:8787"
upstream_url = "https://api.anthropic.com"
allowed_origins = ["https://seed.machus.ai", "http://localhost:5173", "http://localhost:3000"]
fetch_timeout = "10s"
fetch_limit = 50000
rate_limit = 5.0
rate_burst = 10

[model]
chain = ["claude-opus-4-6", "claude-opus-4-20250514", "claude-sonnet-4-5-20250929", "claude-sonnet-4-20250514"]
summarizer = "claude-haiku-4-5-20251001"
local_model = "llama3.1:latest"
local_endpoint = "http://localhost:11434/v1"

[budgets]
max_loops = 10
boot_max_loops = 5
fix_attempts = 3
history_window = 50

[ui]
status_lines = 200
# export_dir = "~/Downloads"
`
}
