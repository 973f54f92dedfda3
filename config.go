package main

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Mode selects rule-based or external-model evaluation.
	Mode string `yaml:"invest_mode"`

	ModelProvider   string `yaml:"model_provider"` // "lmstudio" or "anthropic"
	ModelBaseURL    string `yaml:"model_base_url"`
	ModelName       string `yaml:"model_name"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	ExampleCount    int    `yaml:"estimation_example_count"`

	DBPath         string `yaml:"db_path"`
	BacklogPath    string `yaml:"backlog_path"`
	HistoricalPath string `yaml:"historical_path"`
	OutputPath     string `yaml:"output_path"`

	WatchSchedule string `yaml:"watch_schedule"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.Mode, "INVEST_MODE")
	envOverride(&cfg.ModelProvider, "MODEL_PROVIDER")
	envOverride(&cfg.ModelBaseURL, "MODEL_BASE_URL")
	envOverride(&cfg.ModelName, "MODEL_NAME")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverrideInt(&cfg.ExampleCount, "ESTIMATION_EXAMPLE_COUNT")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.BacklogPath, "BACKLOG_PATH")
	envOverride(&cfg.HistoricalPath, "HISTORICAL_PATH")
	envOverride(&cfg.OutputPath, "OUTPUT_PATH")
	envOverride(&cfg.WatchSchedule, "WATCH_SCHEDULE")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")

	// Defaults
	cfg.Mode = NormalizeMode(cfg.Mode)
	if cfg.ModelProvider == "" {
		cfg.ModelProvider = "lmstudio"
	}
	if cfg.ExampleCount == 0 {
		cfg.ExampleCount = 3
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./investbot.db"
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = "./resultados.csv"
	}

	switch cfg.ModelProvider {
	case "lmstudio":
		// Base URL and model name have working local defaults.
	case "anthropic":
		if cfg.Mode == ModeExternal && cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when model_provider=anthropic and invest_mode=external")
		}
	default:
		log.Fatalf("model_provider must be 'lmstudio' or 'anthropic', got '%s'", cfg.ModelProvider)
	}

	if cfg.ExampleCount < 0 {
		log.Fatalf("invalid estimation_example_count '%d': must be >= 0", cfg.ExampleCount)
	}

	return cfg
}

// NormalizeMode maps the accepted spellings onto the two canonical
// modes. Unrecognized values fall back to rules with a warning; an
// empty value is the silent default.
func NormalizeMode(mode string) string {
	switch mode {
	case "", ModeRules, "reglas":
		return ModeRules
	case ModeExternal, "gptoss", "gpt", "advanced":
		return ModeExternal
	default:
		log.Printf("Unrecognized invest mode '%s', using '%s'", mode, ModeRules)
		return ModeRules
	}
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

// SlackConfigured reports whether summary notifications can be posted.
func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}
