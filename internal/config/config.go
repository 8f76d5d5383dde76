package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config stores runtime configuration loaded from an optional YAML file and the environment.
type Config struct {
	Provider       string `yaml:"provider"`
	GeminiKey      string `yaml:"gemini_api_key"`
	GeminiModel    string `yaml:"gemini_model"`
	OpenAIKey      string `yaml:"openai_api_key"`
	OpenAIEndpoint string `yaml:"openai_api_endpoint"`
	OpenAIModel    string `yaml:"openai_model"`
	OCRModel       string `yaml:"ocr_model"`

	Database  string `yaml:"database_path"`
	UploadDir string `yaml:"upload_dir"`
	OutputDir string `yaml:"output_dir"`
	Port      string `yaml:"port"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	RequestsPerMinute float64       `yaml:"requests_per_minute"`
	BatchSize         int           `yaml:"batch_size"`
	RetryMaxAttempts  int           `yaml:"retry_max_attempts"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	RetryMultiplier   float64       `yaml:"retry_multiplier"`

	UnicodeFont   string `yaml:"pdf_unicode_font"`
	ScannedPDFOCR bool   `yaml:"scanned_pdf_ocr"`
}

func defaults() Config {
	return Config{
		Provider:          ProviderGemini,
		GeminiModel:       "gemini-2.5-flash",
		OpenAIEndpoint:    "https://api.openai.com/v1",
		OpenAIModel:       "gpt-4o-mini",
		Database:          "./data/history.db",
		UploadDir:         "./data/uploads",
		OutputDir:         "./data/output",
		Port:              "8080",
		LogLevel:          "info",
		RequestsPerMinute: 15,
		BatchSize:         1,
		RetryMaxAttempts:  4,
		RetryBaseDelay:    2 * time.Second,
		RetryMultiplier:   2,
	}
}

// Load reads configuration from CONFIG_FILE (if set) and then the environment, which wins.
func Load() (Config, error) {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.Provider = strings.ToLower(getEnv("LLM_PROVIDER", cfg.Provider))
	cfg.GeminiKey = getEnv("GEMINI_API_KEY", cfg.GeminiKey)
	cfg.GeminiModel = getEnv("GEMINI_MODEL", cfg.GeminiModel)
	cfg.OpenAIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIKey)
	cfg.OpenAIEndpoint = getEnv("OPENAI_API_ENDPOINT", cfg.OpenAIEndpoint)
	cfg.OpenAIModel = getEnv("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.OCRModel = getEnv("OCR_MODEL", cfg.OCRModel)
	cfg.Database = getEnv("DATABASE_PATH", cfg.Database)
	cfg.UploadDir = getEnv("UPLOAD_DIR", cfg.UploadDir)
	cfg.OutputDir = getEnv("OUTPUT_DIR", cfg.OutputDir)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = getBool("LOG_PRETTY", cfg.LogPretty)
	cfg.RequestsPerMinute = getFloat("REQUESTS_PER_MINUTE", cfg.RequestsPerMinute)
	cfg.BatchSize = getInt("BATCH_SIZE", cfg.BatchSize)
	cfg.RetryMaxAttempts = getInt("RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts)
	cfg.RetryBaseDelay = getDuration("RETRY_BASE_DELAY", cfg.RetryBaseDelay)
	cfg.RetryMultiplier = getFloat("RETRY_MULTIPLIER", cfg.RetryMultiplier)
	cfg.UnicodeFont = getEnv("PDF_UNICODE_FONT", cfg.UnicodeFont)
	cfg.ScannedPDFOCR = getBool("SCANNED_PDF_OCR", cfg.ScannedPDFOCR)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	for _, dir := range []string{cfg.UploadDir, cfg.OutputDir, filepath.Dir(cfg.Database)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Config{}, fmt.Errorf("ensure dir %s: %w", dir, err)
		}
	}

	return cfg, nil
}

// APIKey returns the credential for the selected provider.
func (c Config) APIKey() string {
	if c.Provider == ProviderOpenAI {
		return c.OpenAIKey
	}
	return c.GeminiKey
}

// Model returns the text model for the selected provider.
func (c Config) Model() string {
	if c.Provider == ProviderOpenAI {
		return c.OpenAIModel
	}
	return c.GeminiModel
}

// VisionModel returns the model used for OCR, defaulting to the text model.
func (c Config) VisionModel() string {
	if c.OCRModel != "" {
		return c.OCRModel
	}
	return c.Model()
}

func (c *Config) validate() error {
	switch c.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q (want %q or %q)", c.Provider, ProviderGemini, ProviderOpenAI)
	}
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
	if c.BatchSize > 2 {
		c.BatchSize = 2
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts)
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("RETRY_BASE_DELAY must be positive, got %s", c.RetryBaseDelay)
	}
	if c.RetryMultiplier <= 1 {
		return fmt.Errorf("RETRY_MULTIPLIER must be greater than 1, got %.2f", c.RetryMultiplier)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("REQUESTS_PER_MINUTE must not be negative")
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}
