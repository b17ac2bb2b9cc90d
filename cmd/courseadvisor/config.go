package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nkiryanov/courseadvisor/internal/handlers/middleware"
	"github.com/nkiryanov/courseadvisor/internal/logger"
	"github.com/nkiryanov/courseadvisor/internal/service/llm"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultTokenTTL     = 7 * 24 * time.Hour
	defaultCatalogPath  = "courses.json"
	defaultLLMBaseURL   = "http://127.0.0.1:11434/v1"
	defaultLLMModel     = "llama3:latest"
	defaultLLMMaxTokens = 1000
	defaultLLMTimeout   = 30 * time.Second
	defaultLoginRate    = 10
	defaultLoginBurst   = 5
	defaultServiceName  = "courseadvisor"
)

type Config struct {
	// Default logging level
	LogLevel string `yaml:"log_level"`

	// Environment (dev, prod)
	Environment string `yaml:"environment"`

	// Address on which the service will be run
	ListenAddr string `yaml:"run_address"`

	// Shared access secret, either plain or bcrypt hash (see cmd/gensecret)
	// Hash wins when both are set
	UniversalPassword     string `yaml:"universal_password"`
	UniversalPasswordHash string `yaml:"universal_password_hash"`

	// Key to sign access tokens
	// Required to be set
	JWTSecret string `yaml:"jwt_secret"`

	// Access token lifetime
	TokenTTL time.Duration `yaml:"token_ttl"`

	// Catalog file (JSON or YAML), used when database is not set
	CatalogPath string `yaml:"catalog_path"`

	// Database to read catalog from
	DatabaseDSN string `yaml:"database_uri"`

	// Keep only courses that have a regular scheduled section
	CatalogOfferedOnly bool `yaml:"catalog_offered_only"`

	// Model backend
	LLMBaseURL   string        `yaml:"llm_base_url"`
	LLMModel     string        `yaml:"llm_model"`
	LLMAPIKey    string        `yaml:"llm_api_key"`
	LLMAPI       string        `yaml:"llm_api"`
	LLMMaxTokens int           `yaml:"llm_max_tokens"`
	LLMTimeout   time.Duration `yaml:"llm_timeout"`
	LLMRetry     bool          `yaml:"llm_retry"`

	// Login attempts per client IP
	LoginRatePerMinute int `yaml:"login_rate_per_minute"`
	LoginRateBurst     int `yaml:"login_rate_burst"`

	// Proxies (IPs or CIDRs) whose X-Forwarded-For is trusted for the login limit
	TrustedProxies []string `yaml:"trusted_proxies"`

	// In-flight chat requests per token, 0 is unlimited
	MaxConcurrentPerToken int `yaml:"max_concurrent_per_token"`

	// OTLP gRPC collector, tracing is off when empty
	OTelEndpoint string `yaml:"otel_endpoint"`
	OTelInsecure bool   `yaml:"otel_insecure"`
}

func NewConfig() *Config {
	return &Config{
		LogLevel:           defaultLoggingLevel,
		Environment:        defaultEnvironment,
		ListenAddr:         defaultListenAddr,
		TokenTTL:           defaultTokenTTL,
		CatalogPath:        defaultCatalogPath,
		LLMBaseURL:         defaultLLMBaseURL,
		LLMModel:           defaultLLMModel,
		LLMAPI:             llm.APICompletions,
		LLMMaxTokens:       defaultLLMMaxTokens,
		LLMTimeout:         defaultLLMTimeout,
		LoginRatePerMinute: defaultLoginRate,
		LoginRateBurst:     defaultLoginBurst,
	}
}

// Find config file path in flags or env before everything else is loaded
func ConfigFilePath(getenv func(string) string, args []string) string {
	fs := pflag.NewFlagSet("courseadvisor-config", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}

	path := fs.StringP("config", "c", getenv("CONFIG_FILE"), "")
	_ = fs.Parse(args)

	return *path
}

// Load options from YAML file, keys absent in the file keep their values
func (c *Config) LoadFile(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("can't read config file. Err: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("can't parse config file %s. Err: %w", path, err)
	}

	return nil
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			v, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = v
			return nil
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			v, err := strconv.ParseBool(value)
			if err != nil {
				return err
			}
			*o = v
			return nil
		}
	}
	setList := func(o *[]string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = strings.Split(value, ",")
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			v, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = v
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":                 setString(&c.ListenAddr),
		"LOG_LEVEL":                   setString(&c.LogLevel),
		"ENVIRONMENT":                 setString(&c.Environment),
		"UNIVERSAL_PASSWORD":          setString(&c.UniversalPassword),
		"UNIVERSAL_PASSWORD_HASH":     setString(&c.UniversalPasswordHash),
		"JWT_SECRET":                  setString(&c.JWTSecret),
		"TOKEN_TTL":                   setDuration(&c.TokenTTL),
		"CATALOG_PATH":                setString(&c.CatalogPath),
		"DATABASE_URI":                setString(&c.DatabaseDSN),
		"CATALOG_OFFERED_ONLY":        setBool(&c.CatalogOfferedOnly),
		"LLM_BASE_URL":                setString(&c.LLMBaseURL),
		"LLM_MODEL":                   setString(&c.LLMModel),
		"LLM_API_KEY":                 setString(&c.LLMAPIKey),
		"LLM_API":                     setString(&c.LLMAPI),
		"LLM_MAX_TOKENS":              setInt(&c.LLMMaxTokens),
		"LLM_TIMEOUT":                 setDuration(&c.LLMTimeout),
		"LLM_RETRY":                   setBool(&c.LLMRetry),
		"LOGIN_RATE_PER_MINUTE":       setInt(&c.LoginRatePerMinute),
		"LOGIN_RATE_BURST":            setInt(&c.LoginRateBurst),
		"TRUSTED_PROXIES":             setList(&c.TrustedProxies),
		"MAX_CONCURRENT_PER_TOKEN":    setInt(&c.MaxConcurrentPerToken),
		"OTEL_EXPORTER_OTLP_ENDPOINT": setString(&c.OTelEndpoint),
		"OTEL_EXPORTER_OTLP_INSECURE": setBool(&c.OTelInsecure),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s. Err: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("courseadvisor", pflag.ContinueOnError)

	// Parsed earlier by ConfigFilePath, declared to be accepted
	fs.StringP("config", "c", "", "YAML config file")

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.UniversalPassword, "password", "p", c.UniversalPassword, "Shared access secret")
	fs.StringVar(&c.UniversalPasswordHash, "password-hash", c.UniversalPasswordHash, "Bcrypt hash of shared access secret")
	fs.StringVarP(&c.JWTSecret, "secret-key", "s", c.JWTSecret, "Key to sign access tokens")
	fs.DurationVar(&c.TokenTTL, "token-ttl", c.TokenTTL, "Access token lifetime")
	fs.StringVarP(&c.CatalogPath, "catalog", "f", c.CatalogPath, "Catalog file (JSON or YAML)")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database to read catalog from")
	fs.BoolVar(&c.CatalogOfferedOnly, "offered-only", c.CatalogOfferedOnly, "Keep only offered courses")
	fs.StringVar(&c.LLMBaseURL, "llm-url", c.LLMBaseURL, "Model backend base URL")
	fs.StringVarP(&c.LLMModel, "llm-model", "m", c.LLMModel, "Model name")
	fs.StringVar(&c.LLMAPIKey, "llm-api-key", c.LLMAPIKey, "Model backend API key")
	fs.StringVar(&c.LLMAPI, "llm-api", c.LLMAPI, "Model backend API (completions, chat)")
	fs.IntVar(&c.LLMMaxTokens, "llm-max-tokens", c.LLMMaxTokens, "Max tokens of model reply")
	fs.DurationVar(&c.LLMTimeout, "llm-timeout", c.LLMTimeout, "Timeout of one model call")
	fs.BoolVar(&c.LLMRetry, "llm-retry", c.LLMRetry, "Retry model call once on transient failure")
	fs.IntVar(&c.LoginRatePerMinute, "login-rate", c.LoginRatePerMinute, "Login attempts per minute per client")
	fs.IntVar(&c.LoginRateBurst, "login-burst", c.LoginRateBurst, "Login attempts burst per client")
	fs.StringSliceVar(&c.TrustedProxies, "trusted-proxies", c.TrustedProxies, "Proxies allowed to set X-Forwarded-For (IPs or CIDRs)")
	fs.IntVar(&c.MaxConcurrentPerToken, "max-concurrent", c.MaxConcurrentPerToken, "In-flight chat requests per token, 0 is unlimited")
	fs.StringVar(&c.OTelEndpoint, "otel-endpoint", c.OTelEndpoint, "OTLP gRPC collector address")
	fs.BoolVar(&c.OTelInsecure, "otel-insecure", c.OTelInsecure, "Connect to collector without TLS")

	return fs.Parse(args)
}

// Validate checks options that can't be defaulted
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("jwt secret must be set (JWT_SECRET or --secret-key)")
	}
	if c.LLMAPI != llm.APICompletions && c.LLMAPI != llm.APIChat {
		return fmt.Errorf("unknown model api %q", c.LLMAPI)
	}
	if c.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if _, err := middleware.ParseTrustedProxies(c.TrustedProxies); err != nil {
		return err
	}
	return nil
}

// Load config in order: defaults, YAML file, .env, env, flags
func LoadConfig(getenv func(string) string, getwd func() (string, error), args []string) (*Config, error) {
	c := NewConfig()

	if err := c.LoadFile(ConfigFilePath(getenv, args)); err != nil {
		return nil, err
	}
	if err := c.LoadDotEnv(getwd); err != nil {
		return nil, fmt.Errorf("can't load .env. Err: %w", err)
	}
	if err := c.LoadEnv(getenv); err != nil {
		return nil, err
	}
	if err := c.ParseFlags(args); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}
