// Package config loads the typed Config used by the CLI: defaults
// layered under a YAML config file, a .env file, and MAX_*/DEPSCAN_*
// environment variables. Grounded on rohankatakam-coderisk's
// internal/config/config.go (Viper + godotenv layering idiom).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/arvidnilsson/depscan/internal/models"
)

// Config holds all configuration settings for a depscan run.
type Config struct {
	Platform string       `yaml:"platform"` // "auto", "windows"
	Storage  StorageConfig `yaml:"storage"`
	LLM      LLMConfig    `yaml:"llm"`
	Budget   BudgetConfig `yaml:"budget"`
	Verbose  bool         `yaml:"verbose"`
}

// StorageConfig selects and configures the run-log backend.
type StorageConfig struct {
	Type        string `yaml:"type"` // "sqlite", "postgres"
	PostgresDSN string `yaml:"postgres_dsn"`
	LocalPath   string `yaml:"local_path"`
}

// LLMConfig configures the optional LLM-assisted resolver.
type LLMConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OpenAIAPIKey string `yaml:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model"`
	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`
	UseKeychain  bool   `yaml:"use_keychain"`
}

// BudgetConfig mirrors models.Budget plus the worklist cap, which isn't
// itself part of the Budget entity but shares its envelope semantics.
type BudgetConfig struct {
	MaxToolCalls int `yaml:"max_tool_calls"`
	MaxLatencyMs int `yaml:"max_lat_ms"`
	MaxLoops     int `yaml:"max_loops"`
	MaxFiles     int `yaml:"max_files"`
	WorklistCap  int `yaml:"worklist_cap"`
}

// ToBudget converts the configured budget into the core's models.Budget.
func (b BudgetConfig) ToBudget() models.Budget {
	return models.Budget{
		MaxToolCalls: b.MaxToolCalls,
		MaxLatencyMs: b.MaxLatencyMs,
		MaxLoops:     b.MaxLoops,
		MaxFiles:     b.MaxFiles,
	}
}

// Default returns default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Platform: "auto",
		Storage: StorageConfig{
			Type:      "sqlite",
			LocalPath: filepath.Join(homeDir, ".depscan", "runlog.db"),
		},
		LLM: LLMConfig{
			OpenAIModel: "gpt-4o-mini",
			GeminiModel: "gemini-1.5-flash",
		},
		Budget: BudgetConfig{
			MaxToolCalls: 100,
			MaxLatencyMs: 60_000,
			MaxLoops:     1,
			MaxFiles:     60,
			WorklistCap:  200,
		},
	}
}

// Load loads configuration from file, layering .env values and
// MAX_*/DEPSCAN_* environment overrides on top of defaults.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("platform", cfg.Platform)
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("llm", cfg.LLM)
	v.SetDefault("budget", cfg.Budget)

	v.SetEnvPrefix("DEPSCAN")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".depscan")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".depscan"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadEnvFiles() {
	envFiles := []string{".env.local", ".env", ".env.example"}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			if err := godotenv.Load(file); err == nil {
				continue
			}
		}
	}
	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".depscan", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies MAX_*/DEPSCAN_* environment variable
// overrides to cfg, taking precedence over both the config file and
// viper's own env binding (which only covers DEPSCAN_-prefixed keys).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAIAPIKey = v
	} else if cfg.LLM.OpenAIAPIKey == "" && cfg.LLM.UseKeychain {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if key, err := km.GetAPIKey(); err == nil && key != "" {
				cfg.LLM.OpenAIAPIKey = key
			}
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.LLM.GeminiAPIKey = v
	}
	if v := os.Getenv("LLM_ENABLED"); v != "" {
		cfg.LLM.Enabled = v == "true"
	}

	if v := os.Getenv("STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("LOCAL_DB_PATH"); v != "" {
		cfg.Storage.LocalPath = expandPath(v)
	}

	if v := os.Getenv("MAX_TOOL_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Budget.MaxToolCalls = n
		}
	}
	if v := os.Getenv("MAX_LAT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Budget.MaxLatencyMs = n
		}
	}
	if v := os.Getenv("MAX_LOOPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Budget.MaxLoops = n
		}
	}
	if v := os.Getenv("MAX_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Budget.MaxFiles = n
		}
	}

	if v := os.Getenv("DEPSCAN_PLATFORM"); v != "" {
		cfg.Platform = v
	}
}

func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save writes the configuration back to path as YAML.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("platform", c.Platform)
	v.Set("storage", c.Storage)
	v.Set("llm", c.LLM)
	v.Set("budget", c.Budget)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
