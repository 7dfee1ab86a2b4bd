// Package config загружает конфигурацию приложения через viper.
// Файл ищется по CONFIG_ENV (config/config.<env>.yaml); отсутствующий
// файл не фатален, значения добираются из env-переменных OPENHOUSE_*.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"example.com/openhouse/internal/ohclient"
)

// Config — корневая конфигурация бота.
type Config struct {
	SocketURL string `mapstructure:"socket_url"`
	APIURL    string `mapstructure:"api_url"`

	APIKey       string `mapstructure:"api_key"`
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`

	AutoReconnect     bool          `mapstructure:"auto_reconnect"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	CallbackTimeout   time.Duration `mapstructure:"callback_timeout"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	LogUnhandled      bool          `mapstructure:"log_unhandled"`

	// Путь к мутабельному состоянию бота (комната, админы, приветствие).
	BotConfigPath string `mapstructure:"bot_config_path"`
	LogLevel      string `mapstructure:"log_level"`
}

// Load читает конфигурацию из файла и окружения.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("openhouse")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("socket_url", ohclient.DefaultSocketURL)
	v.SetDefault("api_url", ohclient.DefaultAPIURL)
	v.SetDefault("auto_reconnect", true)
	v.SetDefault("connection_timeout", "15s")
	v.SetDefault("callback_timeout", "10s")
	v.SetDefault("ping_interval", "8s")
	v.SetDefault("bot_config_path", "config/bot.json")
	v.SetDefault("log_level", "info")

	// env-переменные viper видит только через BindEnv при отсутствии файла
	for _, key := range []string{
		"socket_url", "api_url", "api_key", "access_token", "refresh_token",
		"auto_reconnect", "connection_timeout", "callback_timeout",
		"ping_interval", "log_unhandled", "bot_config_path", "log_level",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		// отсутствующий файл не фатален, битый — фатален
		if _, statErr := os.Stat(fileName); statErr == nil {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.APIKey == "" && cfg.AccessToken == "" {
		return nil, fmt.Errorf("config: either api_key or access_token is required")
	}
	return &cfg, nil
}

// ClientConfig переводит конфигурацию в опции клиента.
func (c *Config) ClientConfig() ohclient.Config {
	return ohclient.Config{
		SocketURL:         c.SocketURL,
		APIURL:            c.APIURL,
		APIKey:            c.APIKey,
		AccessToken:       c.AccessToken,
		RefreshToken:      c.RefreshToken,
		AutoReconnect:     c.AutoReconnect,
		ConnectionTimeout: c.ConnectionTimeout,
		CallbackTimeout:   c.CallbackTimeout,
		PingInterval:      c.PingInterval,
		LogUnhandled:      c.LogUnhandled,
	}
}
