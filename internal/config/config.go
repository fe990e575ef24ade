package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jamesprial/xkcdbot/internal"
	pkgerrs "github.com/jamesprial/xkcdbot/pkg/errors"
	"github.com/jamesprial/xkcdbot/pkg/types"
	"github.com/jamesprial/xkcdbot/pkg/validation"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes environment overrides, e.g. XKCDBOT_REDDIT_PASSWORD
// sets reddit.password.
const EnvPrefix = "XKCDBOT_"

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "xkcdbot.toml"

// Config represents the bot configuration
type Config struct {
	Reddit struct {
		ClientID          string        `koanf:"client_id"`
		ClientSecret      string        `koanf:"client_secret"`
		Username          string        `koanf:"username"`
		Password          string        `koanf:"password"`
		UserAgent         string        `koanf:"user_agent"`
		BaseURL           string        `koanf:"base_url"`
		AuthURL           string        `koanf:"auth_url"`
		Timeout           time.Duration `koanf:"timeout"`
		RequestsPerMinute float64       `koanf:"requests_per_minute"`
	} `koanf:"reddit"`

	Bot struct {
		Denylist     []string      `koanf:"denylist"`
		DryRun       bool          `koanf:"dry_run"`
		PollInterval time.Duration `koanf:"poll_interval"`
		SafetyMargin time.Duration `koanf:"safety_margin"`
	} `koanf:"bot"`

	Ledger struct {
		Path string `koanf:"path"`
	} `koanf:"ledger"`

	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	} `koanf:"log"`

	XKCD struct {
		BaseURL string `koanf:"base_url"`
	} `koanf:"xkcd"`

	Sources []types.Source `koanf:"sources"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"reddit.base_url":            "https://oauth.reddit.com/",
		"reddit.auth_url":            "https://www.reddit.com/",
		"reddit.timeout":             "30s",
		"reddit.requests_per_minute": float64(internal.DefaultRequestsPerMinute),
		"bot.denylist":               internal.DefaultDenylist,
		"bot.dry_run":                false,
		"bot.poll_interval":          "5m",
		"bot.safety_margin":          internal.DefaultSafetyMargin.String(),
		"ledger.path":                "xkcdbot.db",
		"log.level":                  "info",
		"log.format":                 "text",
		"xkcd.base_url":              "https://xkcd.com/",
	}
}

// Load loads the configuration: built-in defaults, then the TOML file at
// configPath (or DefaultPath when it exists), then XKCDBOT_ environment variables.
func Load(configPath string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else if _, err := os.Stat(DefaultPath); err == nil {
		if err := k.Load(file.Provider(DefaultPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	// XKCDBOT_REDDIT_CLIENT_ID -> reddit.client_id
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	for i := range config.Sources {
		if config.Sources[i].Limit == 0 {
			config.Sources[i].Limit = internal.DefaultHotLimit
		}
	}

	return &config, nil
}

// Validate checks the fields needed to talk to Reddit.
func (c *Config) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"reddit.client_id", c.Reddit.ClientID},
		{"reddit.client_secret", c.Reddit.ClientSecret},
		{"reddit.username", c.Reddit.Username},
		{"reddit.password", c.Reddit.Password},
	}
	for _, r := range required {
		if r.value == "" {
			return &pkgerrs.ConfigError{Field: r.field, Message: "is required"}
		}
	}

	if !validation.IsValidUsername(c.Reddit.Username) {
		return &pkgerrs.ConfigError{Field: "reddit.username", Message: fmt.Sprintf("%q is not a valid Reddit username", c.Reddit.Username)}
	}

	v := internal.NewValidator()
	if err := v.ValidateUserAgent(c.Reddit.UserAgent); err != nil {
		return err
	}

	if c.Reddit.Timeout <= 0 {
		return &pkgerrs.ConfigError{Field: "reddit.timeout", Message: "must be positive"}
	}
	if c.Reddit.RequestsPerMinute < 0 {
		return &pkgerrs.ConfigError{Field: "reddit.requests_per_minute", Message: "cannot be negative"}
	}
	if c.Bot.SafetyMargin < 0 {
		return &pkgerrs.ConfigError{Field: "bot.safety_margin", Message: "cannot be negative"}
	}
	if c.Bot.PollInterval <= 0 {
		return &pkgerrs.ConfigError{Field: "bot.poll_interval", Message: "must be positive"}
	}
	if c.Ledger.Path == "" {
		return &pkgerrs.ConfigError{Field: "ledger.path", Message: "is required"}
	}

	for i, source := range c.Sources {
		if err := v.ValidateSubredditName(source.Name); err != nil {
			return &pkgerrs.ConfigError{Field: fmt.Sprintf("sources[%d].name", i), Message: err.Error()}
		}
		if err := v.ValidateLimit(source.Limit); err != nil {
			return &pkgerrs.ConfigError{Field: fmt.Sprintf("sources[%d].limit", i), Message: err.Error()}
		}
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return &pkgerrs.ConfigError{Field: "log.format", Message: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}

	return nil
}

// InitConfig writes a sample configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# xkcdbot configuration
# Every key can be overridden from the environment, e.g. XKCDBOT_REDDIT_PASSWORD.

[reddit]
client_id = "your-client-id"
client_secret = "your-client-secret"
username = "your-bot-account"
password = "your-bot-password"
user_agent = "script:xkcdbot:v1.0 (by /u/your-account)"
timeout = "30s"
requests_per_minute = 60

[bot]
denylist = ["xkcd_bot", "AutoModerator"]
dry_run = true
poll_interval = "5m"
safety_margin = "1s"

[ledger]
path = "xkcdbot.db"

[log]
level = "info"
format = "text"

[[sources]]
name = "xkcd"
limit = 25
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0600)
}
