package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "Europe/London"
	configPathEnv   = "UNIONWINS_CONFIG"
	dbDriverEnv     = "DATABASE_DRIVER"
	databaseDSNEnv  = "DATABASE_DSN"
	openAIKeyEnv    = "OPENAI_API_KEY"
	geminiKeyEnv    = "GEMINI_API_KEY"
	llmProviderEnv  = "LLM_PROVIDER"
	logLevelEnv     = "LOG_LEVEL"
	pollIntervalEnv = "POLLING_INTERVAL_SECONDS"
	tgTokenEnv      = "TELEGRAM_BOT_TOKEN"
	tgChatEnv       = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	Logging      LoggingConfig      `yaml:"logging"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Scrape       ScrapeConfig       `yaml:"scrape"`
	Research     ResearchConfig     `yaml:"research"`
	LLM          LLMConfig          `yaml:"llm"`
	Notify       NotifyConfig       `yaml:"notify"`
	Sources      []SourceConfig     `yaml:"sources"`
}

// DatabaseConfig selects the SQL driver ("postgres" or "sqlite") and its DSN.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OrchestratorConfig tunes the research task loop.
type OrchestratorConfig struct {
	SweepIntervalSeconds  int `yaml:"sweepIntervalSeconds"`
	StuckTaskTimeoutHours int `yaml:"stuckTaskTimeoutHours"`
	CallTimeoutSeconds    int `yaml:"callTimeoutSeconds"`
}

// SweepInterval is the pause between orchestrator sweeps.
func (o OrchestratorConfig) SweepInterval() time.Duration {
	return time.Duration(o.SweepIntervalSeconds) * time.Second
}

// StuckTaskTimeout bounds how long a request may stay processing.
func (o OrchestratorConfig) StuckTaskTimeout() time.Duration {
	return time.Duration(o.StuckTaskTimeoutHours) * time.Hour
}

// CallTimeout bounds each research submit/poll call.
func (o OrchestratorConfig) CallTimeout() time.Duration {
	return time.Duration(o.CallTimeoutSeconds) * time.Second
}

// SchedulerConfig defines when research requests and scrape sweeps are triggered.
type SchedulerConfig struct {
	RequestIntervalHours int            `yaml:"requestIntervalHours"`
	ScrapeIntervalHours  int            `yaml:"scrapeIntervalHours"`
	WindowDays           int            `yaml:"windowDays"`
	Timezone             string         `yaml:"timezone"`
	location             *time.Location `yaml:"-"`
}

// RequestInterval is the cadence of new search requests.
func (s SchedulerConfig) RequestInterval() time.Duration {
	return time.Duration(s.RequestIntervalHours) * time.Hour
}

// ScrapeInterval is the cadence of scrape sweeps.
func (s SchedulerConfig) ScrapeInterval() time.Duration {
	return time.Duration(s.ScrapeIntervalHours) * time.Hour
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	return time.UTC
}

// ScrapeConfig sizes the worker pool and the polite fetcher.
type ScrapeConfig struct {
	Workers             int      `yaml:"workers"`
	BatchSize           int      `yaml:"batchSize"`
	FetchTimeoutSeconds int      `yaml:"fetchTimeoutSeconds"`
	MaxRetries          int      `yaml:"maxRetries"`
	BackoffMillis       int      `yaml:"backoffMillis"`
	MinDelayMillis      int      `yaml:"minDelayMillis"`
	MaxDelayMillis      int      `yaml:"maxDelayMillis"`
	UserAgents          []string `yaml:"userAgents"`
}

// ResearchConfig controls what happens to rows inserted from research output.
type ResearchConfig struct {
	InitialStatus   string `yaml:"initialStatus"`
	DefaultImageURL string `yaml:"defaultImageUrl"`
}

// LLMConfig describes how to reach the AI collaborators.
// Provider selects the completer used by classifier, extractor and repairer;
// research always goes through the OpenAI responses API.
type LLMConfig struct {
	Provider        string `yaml:"provider"`
	Endpoint        string `yaml:"endpoint"`
	APIKey          string `yaml:"apiKey"`
	GeminiAPIKey    string `yaml:"geminiApiKey"`
	ResearchModel   string `yaml:"researchModel"`
	ClassifierModel string `yaml:"classifierModel"`
	ExtractorModel  string `yaml:"extractorModel"`
	RepairModel     string `yaml:"repairModel"`
	GeminiModel     string `yaml:"geminiModel"`
	GeminiEndpoint  string `yaml:"geminiEndpoint"`
	TimeoutSeconds  int    `yaml:"timeoutSeconds"`
}

// Timeout bounds a single completion call.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// NotifyConfig configures operator alerts. Alerts are off while the bot token is empty.
type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig holds bot credentials; BaseURL overrides the public bot API.
type TelegramConfig struct {
	BaseURL  string `yaml:"baseUrl"`
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// SourceConfig seeds a scrape source at startup.
type SourceConfig struct {
	URL          string `yaml:"url"`
	Organization string `yaml:"organization"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			cfg = defaultConfig()
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	cfg.bindTimezone()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(dbDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(openAIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(geminiKeyEnv); v != "" {
		c.LLM.GeminiAPIKey = v
	}
	if v := os.Getenv(llmProviderEnv); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv(tgTokenEnv); v != "" {
		c.Notify.Telegram.BotToken = v
	}
	if v := os.Getenv(tgChatEnv); v != "" {
		c.Notify.Telegram.ChatID = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(pollIntervalEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Orchestrator.SweepIntervalSeconds = n
		} else {
			log.Printf("config: invalid %s=%q ignored", pollIntervalEnv, v)
		}
	}
}

// normalize restores defaults for values a file or environment left unusable.
func (c *Config) normalize() {
	def := defaultConfig()

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.Database.DSN == "" {
		c.Database.DSN = def.Database.DSN
	}

	positive(&c.Orchestrator.SweepIntervalSeconds, def.Orchestrator.SweepIntervalSeconds)
	positive(&c.Orchestrator.StuckTaskTimeoutHours, def.Orchestrator.StuckTaskTimeoutHours)
	positive(&c.Orchestrator.CallTimeoutSeconds, def.Orchestrator.CallTimeoutSeconds)
	positive(&c.Scheduler.RequestIntervalHours, def.Scheduler.RequestIntervalHours)
	positive(&c.Scheduler.ScrapeIntervalHours, def.Scheduler.ScrapeIntervalHours)
	positive(&c.Scheduler.WindowDays, def.Scheduler.WindowDays)
	positive(&c.Scrape.Workers, def.Scrape.Workers)
	positive(&c.Scrape.BatchSize, def.Scrape.BatchSize)
	positive(&c.Scrape.FetchTimeoutSeconds, def.Scrape.FetchTimeoutSeconds)
	positive(&c.Scrape.BackoffMillis, def.Scrape.BackoffMillis)
	positive(&c.LLM.TimeoutSeconds, def.LLM.TimeoutSeconds)

	if c.Scrape.MaxRetries < 0 {
		c.Scrape.MaxRetries = def.Scrape.MaxRetries
	}
	if c.Scrape.MinDelayMillis < 0 {
		c.Scrape.MinDelayMillis = 0
	}
	if c.Scrape.MaxDelayMillis < c.Scrape.MinDelayMillis {
		c.Scrape.MaxDelayMillis = c.Scrape.MinDelayMillis
	}
	if len(c.Scrape.UserAgents) == 0 {
		c.Scrape.UserAgents = def.Scrape.UserAgents
	}

	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = def.LLM.Provider
	}
	if c.LLM.GeminiModel == "" {
		c.LLM.GeminiModel = def.LLM.GeminiModel
	}
	if c.Research.InitialStatus == "" {
		c.Research.InitialStatus = def.Research.InitialStatus
	}
}

func positive(v *int, fallback int) {
	if *v <= 0 {
		*v = fallback
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to UTC", tz)
		loc = time.UTC
	}
	c.Scheduler.location = loc
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "unionwins.db"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Orchestrator: OrchestratorConfig{
			SweepIntervalSeconds:  5,
			StuckTaskTimeoutHours: 12,
			CallTimeoutSeconds:    60,
		},
		Scheduler: SchedulerConfig{
			RequestIntervalHours: 12,
			ScrapeIntervalHours:  24 * 7,
			WindowDays:           2,
			Timezone:             defaultTimezone,
		},
		Scrape: ScrapeConfig{
			Workers:             5,
			BatchSize:           20,
			FetchTimeoutSeconds: 30,
			MaxRetries:          3,
			BackoffMillis:       1000,
			MinDelayMillis:      500,
			MaxDelayMillis:      1500,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
				"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Research: ResearchConfig{
			InitialStatus:   "pending",
			DefaultImageURL: "https://images.unsplash.com/photo-1529107386315-e1a2ed48a620?w=800&h=400&fit=crop&q=80",
		},
		LLM: LLMConfig{
			Provider:        "openai",
			Endpoint:        "https://api.openai.com/v1",
			ResearchModel:   "gpt-5-mini",
			ClassifierModel: "gpt-5-nano",
			ExtractorModel:  "gpt-5.2",
			RepairModel:     "gpt-5.2",
			GeminiModel:     "gemini-2.5-flash",
			TimeoutSeconds:  120,
		},
	}
}
