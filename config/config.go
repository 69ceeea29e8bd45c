package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "NEON_"

// DefaultServerBaseURL is where the query service lives unless configured.
const DefaultServerBaseURL = "http://localhost:8080/neon"

// Config is the process configuration. Nested keys map to environment
// variables by replacing dots with underscores, so http.address is read
// from NEON_HTTP_ADDRESS.
type Config struct {
	Env           string         `mapstructure:"env"` // development or production
	ServerBaseURL string         `mapstructure:"serverbaseurl"`
	Request       RequestConfig  `mapstructure:"request"`
	HTTP          HTTPConfig     `mapstructure:"http"`
	Database      DBConfig       `mapstructure:"database"`
	Log           LogConfig      `mapstructure:"log"`
	Firebase      FirebaseConfig `mapstructure:"firebase"`
	CORS          CORSConfig     `mapstructure:"cors"`
	Timeline      TimelineConfig `mapstructure:"timeline"`
}

type RequestConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type HTTPConfig struct {
	Address string `mapstructure:"address"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

type FirebaseConfig struct {
	Project     string `mapstructure:"project"`
	Credentials string `mapstructure:"credentials"` // service account JSON, raw or base64
}

type CORSConfig struct {
	Origins string `mapstructure:"origins"` // comma separated
}

type TimelineConfig struct {
	DateField string `mapstructure:"datefield"`
}

// IsDevelopment reports whether the process runs outside production.
func (c *Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development" || c.Env == "dev"
}

// AllowedOrigins splits the configured CORS origins.
func (c CORSConfig) AllowedOrigins() []string {
	if c.Origins == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(c.Origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("serverbaseurl", DefaultServerBaseURL)
	v.SetDefault("request.timeout", 30*time.Second)
	v.SetDefault("http.address", ":8090")
	v.SetDefault("database.path", "./neon.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("firebase.project", "")
	v.SetDefault("firebase.credentials", "")
	v.SetDefault("cors.origins", "")
	v.SetDefault("timeline.datefield", "date")
}

// Load reads configuration from defaults, an optional config file and
// NEON_ environment variables, in increasing order of precedence.
// configFile may be empty.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	// NEON_HTTP_ADDRESS -> http.address
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		if len(pair) != 2 || !strings.HasPrefix(pair[0], EnvPrefix) {
			continue
		}
		propKey := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(pair[0], EnvPrefix), "_", "."))
		v.Set(propKey, pair[1])
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ServerBaseURL = strings.TrimRight(cfg.ServerBaseURL, "/")
	if cfg.ServerBaseURL == "" {
		return nil, fmt.Errorf("serverBaseUrl must not be empty")
	}
	return &cfg, nil
}
