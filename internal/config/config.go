package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Completion Completion `mapstructure:"completion"`
	Venue      Venue      `mapstructure:"venue"`
	Trading    Trading    `mapstructure:"trading"`
	Scheduler  Scheduler  `mapstructure:"scheduler"`
	Logger     Logger     `mapstructure:"logger"`
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
}

// Completion holds the configuration for the natural-language completion service.
type Completion struct {
	BaseURL        string  `mapstructure:"base_url"`
	ApiKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Venue holds the configuration for the order-dispatch venue API.
type Venue struct {
	BaseURL        string  `mapstructure:"base_url"`
	ApiKey         string  `mapstructure:"api_key"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Trading holds the configuration for the trading logic.
type Trading struct {
	QuoteAsset         string   `mapstructure:"quote_asset"`
	SupportedAssets    []string `mapstructure:"supported_assets"`
	DefaultSlippage    float64  `mapstructure:"default_slippage"`
	MaxPriceImpact     float64  `mapstructure:"max_price_impact"`
	MinActionableScore float64  `mapstructure:"min_actionable_score"`
}

// Scheduler holds the configuration for the recurring-trade fire loop.
type Scheduler struct {
	TickInterval int `mapstructure:"tick_interval"`
}

// Server holds the configuration for the HTTP API server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("completion.rate_limit", 2) // requests per second
	viper.SetDefault("completion.rate_limit_burst", 2)
	viper.SetDefault("completion.temperature", 0.3)
	viper.SetDefault("venue.rate_limit", 10)
	viper.SetDefault("venue.rate_limit_burst", 5)
	viper.SetDefault("trading.quote_asset", "USDC")
	viper.SetDefault("trading.default_slippage", 1.0)
	viper.SetDefault("trading.max_price_impact", 5.0)
	viper.SetDefault("trading.min_actionable_score", 0.2)
	viper.SetDefault("scheduler.tick_interval", 30) // seconds

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
