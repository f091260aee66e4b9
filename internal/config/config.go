package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Generation GenerationConfig `mapstructure:"generation"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

type GeminiConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	ImageModel   string        `mapstructure:"image_model"`
	VoxelModel   string        `mapstructure:"voxel_model"`
	ImageTimeout time.Duration `mapstructure:"image_timeout"`
	VoxelTimeout time.Duration `mapstructure:"voxel_timeout"`
}

type GenerationConfig struct {
	ImagePromptMaxLen int `mapstructure:"image_prompt_max_len"`
	VoxelPromptMaxLen int `mapstructure:"voxel_prompt_max_len"`
	MaxImagePayload   int `mapstructure:"max_image_payload"`
}

type RateLimitConfig struct {
	ImageMaxRequests int           `mapstructure:"image_max_requests"`
	ImageWindow      time.Duration `mapstructure:"image_window"`
	VoxelMaxRequests int           `mapstructure:"voxel_max_requests"`
	VoxelWindow      time.Duration `mapstructure:"voxel_window"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	// A local .env is optional; missing files are fine.
	godotenv.Load()

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("VOXEL")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// Config file wins; fall back to the environment for the credential.
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "300s")
	viper.SetDefault("server.max_header_bytes", 1<<20)

	viper.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	viper.SetDefault("gemini.image_model", "gemini-2.5-flash-image")
	viper.SetDefault("gemini.voxel_model", "gemini-3-flash-preview")
	viper.SetDefault("gemini.image_timeout", "120s")
	viper.SetDefault("gemini.voxel_timeout", "180s")

	viper.SetDefault("generation.image_prompt_max_len", 500)
	viper.SetDefault("generation.voxel_prompt_max_len", 2000)
	viper.SetDefault("generation.max_image_payload", 15_000_000)

	viper.SetDefault("rate_limit.image_max_requests", 5)
	viper.SetDefault("rate_limit.image_window", "60s")
	viper.SetDefault("rate_limit.voxel_max_requests", 3)
	viper.SetDefault("rate_limit.voxel_window", "60s")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}
