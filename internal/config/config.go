// Package config loads configuration from file and environment and owns the
// global logger setup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the root configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	LLM      LLMConfig      `yaml:"llm" mapstructure:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LLMConfig configures the analysis provider and its call shape.
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	// PromptPack points at an optional yaml file overriding the built-in
	// prompt templates.
	PromptPack string `yaml:"prompt_pack" mapstructure:"prompt_pack"`
}

// PipelineConfig tunes the orchestration pipeline.
type PipelineConfig struct {
	ChunkSize           int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	BatchSize           int     `yaml:"batch_size" mapstructure:"batch_size"`
	MaxBatches          int     `yaml:"max_batches" mapstructure:"max_batches"`
	PollTimeoutSecs     int     `yaml:"poll_timeout_secs" mapstructure:"poll_timeout_secs"`
	PollIntervalMillis  int     `yaml:"poll_interval_millis" mapstructure:"poll_interval_millis"`
	UpperThreshold      float64 `yaml:"upper_threshold" mapstructure:"upper_threshold"`
	LowerThreshold      float64 `yaml:"lower_threshold" mapstructure:"lower_threshold"`
	AnalysisCallsPerSec float64 `yaml:"analysis_calls_per_sec" mapstructure:"analysis_calls_per_sec"`
	ExtractConcurrency  int     `yaml:"extract_concurrency" mapstructure:"extract_concurrency"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("USECASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "usecase.db")
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.max_tokens", 8192)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("pipeline.chunk_size", 12000)
	v.SetDefault("pipeline.batch_size", 20)
	v.SetDefault("pipeline.max_batches", 100)
	v.SetDefault("pipeline.poll_timeout_secs", 120)
	v.SetDefault("pipeline.poll_interval_millis", 1500)
	v.SetDefault("pipeline.upper_threshold", 0.95)
	v.SetDefault("pipeline.lower_threshold", 0.75)
	v.SetDefault("pipeline.analysis_calls_per_sec", 0.5)
	v.SetDefault("pipeline.extract_concurrency", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
