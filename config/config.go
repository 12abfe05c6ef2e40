package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	DB_URL      string `mapstructure:"DB_URL"`
	AutoMigrate bool   `mapstructure:"AUTO_MIGRATE"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`

	// Shared secret agreed with the game aggregator.
	AggregatorSecret string `mapstructure:"AGGREGATOR_SECRET"`

	DefaultCurrency string `mapstructure:"DEFAULT_CURRENCY"`
	// Comma separated "CCY:units-per-USD" pairs, e.g. "USD:1,RUB:90".
	Rates    string `mapstructure:"RATES"`
	RatesURL string `mapstructure:"RATES_URL"`

	PointsRate string `mapstructure:"POINTS_RATE"`

	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	AdminChatID      int64  `mapstructure:"ADMIN_CHAT_ID"`

	RedisAddr          string `mapstructure:"REDIS_ADDR"`
	BonusSweepSchedule string `mapstructure:"BONUS_SWEEP_SCHEDULE"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

// Every key gets a default so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_URL", "")
	v.SetDefault("AGGREGATOR_SECRET", "")
	v.SetDefault("RATES_URL", "")
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("ADMIN_CHAT_ID", 0)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("AUTO_MIGRATE", true)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DEFAULT_CURRENCY", "RUB")
	v.SetDefault("RATES", "USD:1,RUB:90,EUR:0.92")
	v.SetDefault("POINTS_RATE", "0.01")
	v.SetDefault("BONUS_SWEEP_SCHEDULE", "@every 1m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

func LoadConfig(path string) (config Config, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return config, fmt.Errorf("failed to resolve config path: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(filepath.Dir(absPath))
	v.SetConfigName(filepath.Base(absPath))
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}

	if config.AggregatorSecret == "" {
		return config, fmt.Errorf("AGGREGATOR_SECRET is required")
	}

	return config, nil
}

// ParseRates turns the RATES setting into a currency -> units-per-USD table.
func (c Config) ParseRates() (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(c.Rates, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, value, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid rate %q", pair)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil || !rate.IsPositive() {
			return nil, fmt.Errorf("invalid rate value for %s: %q", code, value)
		}
		rates[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	return rates, nil
}

func (c Config) ParsePointsRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.PointsRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid POINTS_RATE %q: %w", c.PointsRate, err)
	}
	return rate, nil
}
