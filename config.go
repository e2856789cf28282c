package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/api"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/locale"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/output"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/usage"
)

const appDir = "yaoephemeris-mcp"

type cliConfig struct {
	API       apiConfig   `yaml:"api,omitempty"`
	Language  string      `yaml:"language,omitempty"`
	Format    string      `yaml:"format,omitempty"`
	Debug     bool        `yaml:"debug,omitempty"`
	CacheFile string      `yaml:"cache_file,omitempty"`
	Usage     usageConfig `yaml:"usage,omitempty"`
}

type apiConfig struct {
	Key     string `yaml:"key,omitempty"`
	URL     string `yaml:"url,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    string `yaml:"port,omitempty"`
	Timeout string `yaml:"timeout,omitempty"`

	TimeoutDuration time.Duration `yaml:"-"`
	TimeoutSet      bool          `yaml:"-"`
}

type usageConfig struct {
	Driver          string            `yaml:"driver,omitempty"`
	DB              string            `yaml:"db,omitempty"`
	DSN             string            `yaml:"dsn,omitempty"`
	Host            string            `yaml:"host,omitempty"`
	Port            string            `yaml:"port,omitempty"`
	User            string            `yaml:"user,omitempty"`
	Password        string            `yaml:"password,omitempty"`
	Database        string            `yaml:"database,omitempty"`
	Table           string            `yaml:"table,omitempty"`
	Collection      string            `yaml:"collection,omitempty"`
	Prefix          string            `yaml:"prefix,omitempty"`
	Joined          string            `yaml:"joined,omitempty"`
	Separator       string            `yaml:"separator,omitempty"`
	TimeZone        string            `yaml:"timezone,omitempty"`
	WeekStart       string            `yaml:"week_start,omitempty"`
	Granularities   configStringSlice `yaml:"granularities,omitempty"`
	BufferMode      string            `yaml:"buffer_mode,omitempty"`
	BufferDrivers   configStringSlice `yaml:"buffer_drivers,omitempty"`
	BufferSize      int               `yaml:"buffer_size,omitempty"`
	BufferDuration  string            `yaml:"buffer_duration,omitempty"`
	BufferAggregate *bool             `yaml:"buffer_aggregate,omitempty"`
	BufferAsync     *bool             `yaml:"buffer_async,omitempty"`
}

type configStringSlice []string

func (c *cliConfig) normalize() error {
	if c == nil {
		return nil
	}
	if strings.TrimSpace(c.API.Timeout) == "" {
		return nil
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(c.API.Timeout))
	if err != nil {
		return fmt.Errorf("invalid api.timeout: %w", err)
	}
	c.API.TimeoutDuration = parsed
	c.API.TimeoutSet = true
	return nil
}

func (s *configStringSlice) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 {
		return nil
	}

	switch value.Kind {
	case yaml.ScalarNode:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		*s = normalizeStringList(strings.Split(raw, ","))
		return nil
	case yaml.SequenceNode:
		var raw []string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		*s = normalizeStringList(raw)
		return nil
	default:
		return fmt.Errorf("expected a string or a list")
	}
}

func (s configStringSlice) Joined() string {
	if len(s) == 0 {
		return ""
	}
	return strings.Join([]string(s), ",")
}

func normalizeStringList(values []string) []string {
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		cleaned = append(cleaned, trimmed)
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}

func pickString(envValue, cfgValue, defaultValue string) string {
	if strings.TrimSpace(envValue) != "" {
		return envValue
	}
	if strings.TrimSpace(cfgValue) != "" {
		return cfgValue
	}
	return defaultValue
}

// envFirst returns the first non-blank value among the named variables.
func envFirst(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func addConfigFlag(fs *flag.FlagSet, defaultPath string) *string {
	return fs.String("config", defaultPath, "Config file path (YAML, or YAOEPHEMERIS_CONFIG)")
}

// resolveConfig loads the config file named by --config, YAOEPHEMERIS_CONFIG
// or the default location. Only an explicitly named file has to exist.
func resolveConfig(args []string) (*cliConfig, string, error) {
	path, explicit, err := findConfigPath(args)
	if err != nil {
		return nil, "", err
	}
	if !explicit {
		if envPath := strings.TrimSpace(os.Getenv("YAOEPHEMERIS_CONFIG")); envPath != "" {
			path = envPath
			explicit = true
		}
	}

	defaultPath, err := defaultConfigPath()
	if err == nil && strings.TrimSpace(path) == "" {
		path = defaultPath
	}

	if strings.TrimSpace(path) == "" {
		return &cliConfig{}, "", nil
	}

	expanded, err := expandPath(path)
	if err != nil {
		return nil, path, err
	}
	path = filepath.Clean(expanded)

	cfg, err := loadConfigFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return &cliConfig{}, path, nil
		}
		return nil, path, err
	}

	return cfg, path, nil
}

func findConfigPath(args []string) (string, bool, error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		if arg == "--config" || arg == "-config" {
			if i+1 >= len(args) || strings.TrimSpace(args[i+1]) == "" {
				return "", true, fmt.Errorf("--config requires a value")
			}
			return strings.TrimSpace(args[i+1]), true, nil
		}
		for _, prefix := range []string{"--config=", "-config="} {
			if strings.HasPrefix(arg, prefix) {
				value := strings.TrimSpace(strings.TrimPrefix(arg, prefix))
				if value == "" {
					return "", true, fmt.Errorf("--config requires a value")
				}
				return value, true, nil
			}
		}
	}
	return "", false, nil
}

func appConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDir), nil
}

func defaultConfigPath() (string, error) {
	dir, err := appConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" {
		return os.UserHomeDir()
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

func loadConfigFile(path string) (*cliConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return &cliConfig{}, nil
	}

	var cfg cliConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func saveConfigFile(path string, cfg *cliConfig) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config path is empty")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// settings is the resolved runtime configuration of one command.
type settings struct {
	ConfigPath string
	APIKey     string
	APIURL     string
	Timeout    time.Duration
	Language   string
	Format     string
	Debug      bool
	CacheFile  string
	Usage      *usage.Options
}

func (s *settings) Lang() locale.Lang {
	return locale.Parse(s.Language)
}

// FormatMode returns the configured mode and whether it was recognized.
func (s *settings) FormatMode() (output.Mode, bool) {
	return output.ParseMode(s.Format)
}

func (s *settings) newClient(version string) (*api.Client, error) {
	client, err := api.New(s.APIURL, s.APIKey, s.Timeout)
	if err != nil {
		return nil, err
	}
	client.SetLanguage(s.Lang())
	client.SetUserAgent(version)
	return client, nil
}

// maskedKey shows only enough of the key to tell keys apart.
func maskedKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return key[:len(key)/2] + "..."
	}
	return key[:8] + "..."
}

// addSettingsFlags resolves every setting from environment, config file and
// defaults, then registers flags that override them.
func addSettingsFlags(fs *flag.FlagSet, cfg *cliConfig, configPath string) *settings {
	if cfg == nil {
		cfg = &cliConfig{}
	}

	timeout := 30 * time.Second
	if cfg.API.TimeoutSet {
		timeout = cfg.API.TimeoutDuration
	}
	if envTimeout := strings.TrimSpace(os.Getenv("YAOEPHEMERIS_API_TIMEOUT")); envTimeout != "" {
		timeout = parseDurationOrDefault(envTimeout, timeout)
	}

	host := pickString(os.Getenv("MCP_API_HOST"), cfg.API.Host, api.DefaultHost)
	port := pickString(os.Getenv("MCP_API_PORT"), cfg.API.Port, api.DefaultPort)

	defaultCache := ""
	if dir, err := appConfigDir(); err == nil {
		defaultCache = filepath.Join(dir, "user-preferences.json")
	}

	s := &settings{
		ConfigPath: configPath,
		APIKey:     pickString(envFirst("YAOEPHEMERIS_API_KEY", "MCP_API_KEY"), cfg.API.Key, ""),
		APIURL:     pickString(os.Getenv("YAOEPHEMERIS_API_URL"), cfg.API.URL, api.BaseURL(host, port)),
		Timeout:    timeout,
		Language:   pickString(os.Getenv("MCP_LANG"), cfg.Language, string(locale.Japanese)),
		Format:     pickString(os.Getenv("MCP_FORMAT_MODE"), cfg.Format, string(output.ModeCompact)),
		Debug:      parseBoolOrDefault(os.Getenv("DEBUG"), cfg.Debug),
		CacheFile:  pickString(os.Getenv("YAOEPHEMERIS_CACHE_FILE"), cfg.CacheFile, defaultCache),
	}

	fs.StringVar(&s.APIKey, "api-key", s.APIKey, "API key (or YAOEPHEMERIS_API_KEY / MCP_API_KEY / config)")
	fs.StringVar(&s.APIURL, "api-url", s.APIURL, "API base URL (or YAOEPHEMERIS_API_URL, MCP_API_HOST/MCP_API_PORT / config)")
	fs.DurationVar(&s.Timeout, "timeout", s.Timeout, "API request timeout (or YAOEPHEMERIS_API_TIMEOUT / config)")
	fs.StringVar(&s.Language, "lang", s.Language, "Output language: ja|en (or MCP_LANG / config)")
	fs.StringVar(&s.Format, "format-mode", s.Format, "Response format: compact|default|full (or MCP_FORMAT_MODE / config)")
	fs.BoolVar(&s.Debug, "debug", s.Debug, "Debug logging to stderr (or DEBUG / config)")
	fs.StringVar(&s.CacheFile, "cache-file", s.CacheFile, "Preference cache file (or YAOEPHEMERIS_CACHE_FILE / config)")
	s.Usage = addUsageFlags(fs, &cfg.Usage, s.CacheFile)
	return s
}

// addUsageFlags resolves the usage recorder options. The sqlite database
// defaults to usage.db next to the preference cache.
func addUsageFlags(fs *flag.FlagSet, cfg *usageConfig, cacheFile string) *usage.Options {
	if cfg == nil {
		cfg = &usageConfig{}
	}

	defaultDB := ""
	if strings.TrimSpace(cacheFile) != "" {
		defaultDB = filepath.Join(filepath.Dir(cacheFile), "usage.db")
	}
	bufferSize := ""
	if cfg.BufferSize > 0 {
		bufferSize = strconv.Itoa(cfg.BufferSize)
	}
	bufferAggregate := true
	if cfg.BufferAggregate != nil {
		bufferAggregate = *cfg.BufferAggregate
	}
	bufferAsync := false
	if cfg.BufferAsync != nil {
		bufferAsync = *cfg.BufferAsync
	}

	opts := &usage.Options{
		Driver:          pickString(os.Getenv("YAOEPHEMERIS_USAGE_DRIVER"), cfg.Driver, "sqlite"),
		DBPath:          pickString(os.Getenv("YAOEPHEMERIS_USAGE_DB"), cfg.DB, defaultDB),
		DSN:             pickString(os.Getenv("YAOEPHEMERIS_USAGE_DSN"), cfg.DSN, ""),
		Host:            pickString(os.Getenv("YAOEPHEMERIS_USAGE_HOST"), cfg.Host, ""),
		Port:            pickString(os.Getenv("YAOEPHEMERIS_USAGE_PORT"), cfg.Port, ""),
		User:            pickString(os.Getenv("YAOEPHEMERIS_USAGE_USER"), cfg.User, ""),
		Password:        pickString(os.Getenv("YAOEPHEMERIS_USAGE_PASSWORD"), cfg.Password, ""),
		Database:        pickString(os.Getenv("YAOEPHEMERIS_USAGE_DATABASE"), cfg.Database, ""),
		Table:           pickString(os.Getenv("YAOEPHEMERIS_USAGE_TABLE"), cfg.Table, ""),
		Collection:      pickString(os.Getenv("YAOEPHEMERIS_USAGE_COLLECTION"), cfg.Collection, ""),
		Prefix:          pickString(os.Getenv("YAOEPHEMERIS_USAGE_PREFIX"), cfg.Prefix, ""),
		Joined:          pickString("", cfg.Joined, "full"),
		Separator:       pickString("", cfg.Separator, "::"),
		TimeZone:        pickString("", cfg.TimeZone, "UTC"),
		BeginningOfWeek: pickString("", cfg.WeekStart, "monday"),
		Granularities:   cfg.Granularities.Joined(),
		BufferMode:      pickString("", cfg.BufferMode, "off"),
		BufferDrivers:   cfg.BufferDrivers.Joined(),
		BufferDuration:  parseDurationOrDefault(cfg.BufferDuration, time.Second),
		BufferSize:      parseIntOrDefault(bufferSize, 256),
		BufferAggregate: bufferAggregate,
		BufferAsync:     bufferAsync,
	}

	fs.StringVar(&opts.Driver, "usage-driver", opts.Driver, "Usage driver: none|sqlite|postgres|mysql|redis|mongo (or YAOEPHEMERIS_USAGE_DRIVER / config)")
	fs.StringVar(&opts.DBPath, "usage-db", opts.DBPath, "Usage SQLite DB path (or YAOEPHEMERIS_USAGE_DB / config)")
	fs.StringVar(&opts.DSN, "usage-dsn", opts.DSN, "Usage driver DSN/URI (postgres/mysql/redis/mongo)")
	fs.StringVar(&opts.Host, "usage-host", opts.Host, "Usage driver host")
	fs.StringVar(&opts.Port, "usage-port", opts.Port, "Usage driver port")
	fs.StringVar(&opts.User, "usage-user", opts.User, "Usage driver user")
	fs.StringVar(&opts.Password, "usage-password", opts.Password, "Usage driver password")
	fs.StringVar(&opts.Database, "usage-database", opts.Database, "Usage database name (postgres/mysql/mongo)")
	fs.StringVar(&opts.Table, "usage-table", opts.Table, "Usage table name (sqlite/postgres/mysql)")
	fs.StringVar(&opts.Collection, "usage-collection", opts.Collection, "Usage collection name (mongo)")
	fs.StringVar(&opts.Prefix, "usage-prefix", opts.Prefix, "Usage key prefix (redis)")
	fs.StringVar(&opts.BufferMode, "usage-buffer-mode", opts.BufferMode, "Usage write buffering: auto|on|off")
	return opts
}

func parseBoolOrDefault(value string, fallback bool) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDurationOrDefault(value string, fallback time.Duration) time.Duration {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseIntOrDefault(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}
