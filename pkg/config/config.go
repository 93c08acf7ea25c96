package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
		BaseURL string        `yaml:"base_url" json:"base_url" jsonschema:"description=Public URL of the feed site, used by the bot"`
	} `yaml:"server" json:"server" jsonschema:"description=Server configuration"`

	Database struct {
		DSN             string `yaml:"dsn" json:"dsn" jsonschema:"default=file:theblob.db?cache=shared&mode=rwc,description=Database connection string"`
		MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
		MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=3600,description=Connection maximum lifetime in seconds"`
	} `yaml:"database" json:"database" jsonschema:"description=Database configuration"`

	Feed FeedConfig `yaml:"feed" json:"feed" jsonschema:"description=Public feed configuration"`

	Snapshot struct {
		Enabled  bool          `yaml:"enabled" json:"enabled" jsonschema:"default=false,description=Enable periodic database snapshots"`
		Path     string        `yaml:"path" json:"path" jsonschema:"description=Snapshot file path"`
		Interval time.Duration `yaml:"interval" json:"interval" jsonschema:"default=30s,description=Snapshot interval"`
	} `yaml:"snapshot" json:"snapshot" jsonschema:"description=Database snapshot configuration"`

	LLM LLMConfig `yaml:"llm" json:"llm" jsonschema:"description=Local model configuration for summaries, answers and embeddings"`

	Telegram TelegramConfig `yaml:"telegram" json:"telegram" jsonschema:"description=Telegram bot configuration"`
}

// FeedConfig holds public feed settings, shared by the server and the
// embedded feed client
type FeedConfig struct {
	PageSize        int           `yaml:"page_size" json:"page_size" jsonschema:"default=10,description=Blobs per feed page"`
	LatestLimit     int           `yaml:"latest_limit" json:"latest_limit" jsonschema:"default=5,description=Blobs sent on a live update request"`
	UpdateInterval  time.Duration `yaml:"update_interval" json:"update_interval" jsonschema:"default=30s,description=Live channel update request interval"`
	SearchDebounce  time.Duration `yaml:"search_debounce" json:"search_debounce" jsonschema:"default=500ms,description=Quiet period before a typed search fires"`
	ScrollLookahead float64       `yaml:"scroll_lookahead" json:"scroll_lookahead" jsonschema:"default=1000,description=Distance from page bottom that triggers the next page load"`
}

// LLMConfig holds configuration for the OpenAI-compatible local endpoint
type LLMConfig struct {
	Endpoint       string        `yaml:"endpoint" json:"endpoint" jsonschema:"required,description=OpenAI-compatible API endpoint"`
	APIKey         string        `yaml:"api_key" json:"api_key" jsonschema:"default=local,description=API key (local endpoints accept any value)"`
	ChatModel      string        `yaml:"chat_model" json:"chat_model" jsonschema:"default=llama3.2:3b,description=Model for summaries and answers"`
	EmbeddingModel string        `yaml:"embedding_model" json:"embedding_model" jsonschema:"default=nomic-embed-text,description=Model for embeddings"`
	VisionModel    string        `yaml:"vision_model" json:"vision_model" jsonschema:"default=llava,description=Model for image analysis"`
	ThinkingModel  string        `yaml:"thinking_model" json:"thinking_model" jsonschema:"default=deepseek-r1:1.5b,description=Model for deep analysis"`
	Temperature    float64       `yaml:"temperature" json:"temperature" jsonschema:"default=0.3,description=Temperature for response generation"`
	MaxTokens      int           `yaml:"max_tokens" json:"max_tokens" jsonschema:"default=500,description=Maximum tokens in response"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Request timeout"`
}

// TelegramConfig holds bot settings
type TelegramConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled" jsonschema:"default=false,description=Enable the Telegram bot"`
	Token        string        `yaml:"token" json:"token" jsonschema:"description=Bot API token (can use environment variable)"`
	PollTimeout  time.Duration `yaml:"poll_timeout" json:"poll_timeout" jsonschema:"default=50s,description=Long poll timeout"`
	DownloadsDir string        `yaml:"downloads_dir" json:"downloads_dir" jsonschema:"description=Directory for downloaded photos and documents"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// set defaults for server
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 30 * time.Second
	}

	// set defaults for database
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:theblob.db?cache=shared&mode=rwc"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 3600
	}

	// set defaults for feed
	if cfg.Feed.PageSize == 0 {
		cfg.Feed.PageSize = 10
	}
	if cfg.Feed.LatestLimit == 0 {
		cfg.Feed.LatestLimit = 5
	}
	if cfg.Feed.UpdateInterval == 0 {
		cfg.Feed.UpdateInterval = 30 * time.Second
	}
	if cfg.Feed.SearchDebounce == 0 {
		cfg.Feed.SearchDebounce = 500 * time.Millisecond
	}
	if cfg.Feed.ScrollLookahead == 0 {
		cfg.Feed.ScrollLookahead = 1000
	}

	// set defaults for snapshot
	if cfg.Snapshot.Interval == 0 {
		cfg.Snapshot.Interval = 30 * time.Second
	}

	// set defaults for LLM
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = "local"
	}
	if cfg.LLM.ChatModel == "" {
		cfg.LLM.ChatModel = "llama3.2:3b"
	}
	if cfg.LLM.EmbeddingModel == "" {
		cfg.LLM.EmbeddingModel = "nomic-embed-text"
	}
	if cfg.LLM.VisionModel == "" {
		cfg.LLM.VisionModel = "llava"
	}
	if cfg.LLM.ThinkingModel == "" {
		cfg.LLM.ThinkingModel = "deepseek-r1:1.5b"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.3
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 500
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30 * time.Second
	}

	// set defaults for telegram
	if cfg.Telegram.PollTimeout == 0 {
		cfg.Telegram.PollTimeout = 50 * time.Second
	}

	// validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		// log warning but don't fail - schema validation is supplementary
		fmt.Printf("warning: schema validation failed: %v\n", err)
	}

	return &cfg, nil
}

// validate checks configuration for correctness
func validate(cfg *Config) error {

	// validate LLM config
	if cfg.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint is required")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}

	// validate feed config
	if cfg.Feed.PageSize < 1 {
		return fmt.Errorf("feed.page_size must be at least 1")
	}
	if cfg.Feed.UpdateInterval < time.Second {
		return fmt.Errorf("feed.update_interval must be at least 1 second")
	}
	if cfg.Feed.ScrollLookahead < 0 {
		return fmt.Errorf("feed.scroll_lookahead must be non-negative")
	}

	// validate snapshot config
	if cfg.Snapshot.Enabled {
		if cfg.Snapshot.Path == "" {
			return fmt.Errorf("snapshot.path is required when snapshots are enabled")
		}
		if cfg.Snapshot.Interval < time.Second {
			return fmt.Errorf("snapshot.interval must be at least 1 second")
		}
	}

	// validate telegram config
	if cfg.Telegram.Enabled && cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required when the bot is enabled")
	}

	// validate server config
	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}

	return nil
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}

// GetFeedConfig returns public feed configuration
func (c *Config) GetFeedConfig() FeedConfig {
	return c.Feed
}

// GetLLMConfig returns LLM configuration
func (c *Config) GetLLMConfig() LLMConfig {
	return c.LLM
}

// GetTelegramConfig returns bot configuration
func (c *Config) GetTelegramConfig() TelegramConfig {
	return c.Telegram
}
