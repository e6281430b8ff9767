// Package config resolves runtime settings from flags, the environment, an
// optional .env file and an optional YAML file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/mythmaker/internal/gateway"
	"github.com/valpere/mythmaker/internal/refiner"
)

const EnvPrefix = "MYTHMAKER"

// DefaultConfigName is looked up in the home directory when no --config is
// given.
const DefaultConfigName = ".mythmaker.yaml"

var ErrMissingAPIKey = errors.New("API key not found: set GOOGLE_API_KEY, GEMINI_API_KEY or MYTHMAKER_API_KEY")

const (
	KeyAPIKey            = "api_key"
	KeyBaseURL           = "base_url"
	KeyModel             = "model"
	KeyTemperature       = "temperature"
	KeyCallTimeout       = "call_timeout"
	KeyMaxIterations     = "max_iterations"
	KeyAcceptScore       = "accept_score"
	KeyParseFailure      = "parse_failure"
	KeyRequestsPerMinute = "requests_per_minute"
	KeyCompressImages    = "compress_images"
	KeyJPEGQuality       = "jpeg_quality"
	KeyRolesFile         = "roles_file"
	KeyDB                = "db"
)

type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Temperature       float32
	CallTimeout       time.Duration
	MaxIterations     int
	AcceptScore       int
	ParseFailure      string
	RequestsPerMinute int
	CompressImages    bool
	JPEGQuality       int
	RolesFile         string
	DB                string

	// ConfigFile is the YAML file that was read, if any.
	ConfigFile string
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyBaseURL, "")
	v.SetDefault(KeyModel, gateway.DefaultModel)
	v.SetDefault(KeyTemperature, gateway.DefaultTemperature)
	v.SetDefault(KeyCallTimeout, gateway.DefaultCallTimeout)
	v.SetDefault(KeyMaxIterations, refiner.DefaultMaxIterations)
	v.SetDefault(KeyAcceptScore, refiner.DefaultAcceptScore)
	v.SetDefault(KeyParseFailure, refiner.ParseFailureStop.String())
	v.SetDefault(KeyRequestsPerMinute, 0)
	v.SetDefault(KeyCompressImages, false)
	v.SetDefault(KeyJPEGQuality, gateway.DefaultJPEGQuality)
	v.SetDefault(KeyRolesFile, "")
	v.SetDefault(KeyDB, "")
}

// Load resolves the configuration. configFile may be empty, in which case
// $HOME/.mythmaker.yaml is used when it exists. envFile names a dotenv file
// whose variables are exported unless already set; a missing envFile is
// ignored.
func Load(v *viper.Viper, configFile, envFile string) (*Config, error) {
	SetDefaults(v)

	if envFile != "" {
		if err := loadDotEnv(envFile); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(KeyAPIKey, EnvPrefix+"_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind api key: %w", err)
	}

	used, err := readConfigFile(v, configFile)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIKey:            strings.TrimSpace(v.GetString(KeyAPIKey)),
		BaseURL:           v.GetString(KeyBaseURL),
		Model:             v.GetString(KeyModel),
		Temperature:       float32(v.GetFloat64(KeyTemperature)),
		CallTimeout:       v.GetDuration(KeyCallTimeout),
		MaxIterations:     v.GetInt(KeyMaxIterations),
		AcceptScore:       v.GetInt(KeyAcceptScore),
		ParseFailure:      v.GetString(KeyParseFailure),
		RequestsPerMinute: v.GetInt(KeyRequestsPerMinute),
		CompressImages:    v.GetBool(KeyCompressImages),
		JPEGQuality:       v.GetInt(KeyJPEGQuality),
		RolesFile:         v.GetString(KeyRolesFile),
		DB:                v.GetString(KeyDB),
		ConfigFile:        used,
	}

	if _, err := refiner.ParsePolicy(cfg.ParseFailure); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// readConfigFile reads an explicit config file, or the default one from the
// home directory. Environment variables in the file are expanded.
func readConfigFile(v *viper.Viper, configFile string) (string, error) {
	path := configFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", nil
		}
		path = filepath.Join(home, DefaultConfigName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && configFile == "" {
			return "", nil
		}
		return "", fmt.Errorf("read config: %w", err)
	}

	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(os.ExpandEnv(string(data)))); err != nil {
		return "", fmt.Errorf("parse config %s: %w", path, err)
	}
	return path, nil
}

// loadDotEnv exports the variables of a dotenv file that are not already
// set in the environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}

	dotenv := viper.New()
	dotenv.SetConfigFile(path)
	dotenv.SetConfigType("env")
	if err := dotenv.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	for _, key := range dotenv.AllKeys() {
		name := strings.ToUpper(key)
		if os.Getenv(name) != "" {
			continue
		}
		if err := os.Setenv(name, dotenv.GetString(key)); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}

// Validate checks the settings every pipeline run depends on.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call_timeout must not be negative, got %s", c.CallTimeout)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", c.JPEGQuality)
	}
	return nil
}

// GatewayOptions maps the settings onto the model gateway.
func (c *Config) GatewayOptions() gateway.Options {
	temperature := c.Temperature
	return gateway.Options{
		Model:             c.Model,
		Temperature:       &temperature,
		CallTimeout:       c.CallTimeout,
		RequestsPerMinute: c.RequestsPerMinute,
		CompressImages:    c.CompressImages,
		JPEGQuality:       c.JPEGQuality,
	}
}

// RefineConfig maps the settings onto the refine loop.
func (c *Config) RefineConfig() (refiner.Config, error) {
	policy, err := refiner.ParsePolicy(c.ParseFailure)
	if err != nil {
		return refiner.Config{}, err
	}
	return refiner.Config{
		MaxIterations:  c.MaxIterations,
		AcceptScore:    c.AcceptScore,
		OnParseFailure: policy,
	}, nil
}
