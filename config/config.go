// Package config aggregates configuration for the application.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the daemon reads at startup.
type Config struct {
	// DataDir is the root of all persisted state: credentials, activity
	// snapshots, and the disk cache tier.
	DataDir string `mapstructure:"data_dir"`
	// LogDir receives the daily log files. Empty disables file logging.
	LogDir string `mapstructure:"log_dir"`
	// Compress controls gzip for persisted JSON documents.
	Compress bool `mapstructure:"compress"`

	ListenAddr string `mapstructure:"listen_addr"`

	Strava  StravaConfig  `mapstructure:"strava"`
	Weather WeatherConfig `mapstructure:"weather"`

	PollInterval time.Duration `mapstructure:"poll_interval"`
	JobDelay     time.Duration `mapstructure:"job_delay"`
	Concurrency  int           `mapstructure:"concurrency"`

	SentryDSN string `mapstructure:"sentry_dsn"`
}

// StravaConfig covers the OAuth application registered with Strava.
type StravaConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
	TokenURL     string `mapstructure:"token_url"`
	APIURL       string `mapstructure:"api_url"`
	// RefreshWindow is how far ahead of expiry tokens are refreshed.
	RefreshWindow time.Duration `mapstructure:"refresh_window"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
}

// WeatherConfig covers the historical-weather provider.
type WeatherConfig struct {
	APIKey string `mapstructure:"api_key"`
	APIURL string `mapstructure:"api_url"`
}

// Default returns the built-in defaults applied before any file or
// environment override.
func Default() *Config {
	return &Config{
		DataDir:      "./data",
		LogDir:       "./logs",
		Compress:     true,
		ListenAddr:   ":8080",
		PollInterval: 15 * time.Minute,
		JobDelay:     2 * time.Second,
		Concurrency:  4,
		Strava: StravaConfig{
			TokenURL:      "https://www.strava.com/api/v3/oauth/token",
			APIURL:        "https://www.strava.com/api/v3",
			RefreshWindow: 30 * time.Minute,
			HTTPTimeout:   15 * time.Second,
		},
		Weather: WeatherConfig{
			APIURL: "https://api.weatherapi.com/v1",
		},
	}
}

// Load reads configuration from config.yaml (if present) and environment
// variables. Environment variables use the prefix "STRAVAADDON" and the
// dot character in keys is replaced by an underscore, so
// "strava.client_id" becomes "STRAVAADDON_STRAVA_CLIENT_ID".
func Load() (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("STRAVAADDON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing setting the daemon cannot run
// without.
func (c *Config) Validate() error {
	switch {
	case c.Strava.ClientID == "":
		return fmt.Errorf("config: strava.client_id is required")
	case c.Strava.ClientSecret == "":
		return fmt.Errorf("config: strava.client_secret is required")
	case c.Weather.APIKey == "":
		return fmt.Errorf("config: weather.api_key is required")
	case c.DataDir == "":
		return fmt.Errorf("config: data_dir is required")
	}
	return nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
