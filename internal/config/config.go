package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"trifle/internal/auth"
)

const (
	DefaultLogLevel      = "info"
	DefaultAPIURL        = "http://127.0.0.1:7333"
	DefaultListen        = "127.0.0.1:7333"
	DefaultDBFileName    = "trifle.db"
	DefaultDataDirName   = "data"
	DefaultBackend       = "fs"
	DefaultOwner         = "local"
	DefaultRemoteTimeout = "30s"
	DefaultParallelism   = 4

	DefaultMaxValueBytes int64 = 16 << 20
	DefaultRateLimit           = 50.0
	DefaultRateBurst           = 100

	configFileName           = ".trifle.toml"
	stateDirName             = ".trifle"
	configDirEnvKey          = "TRIFLE_CONFIG_DIR"
	trustProjectConfigEnvKey = "TRIFLE_TRUST_PROJECT_CONFIG"
)

// LocalConfig locates the local store.
type LocalConfig struct {
	DBPath string `toml:"db_path"`
	Owner  string `toml:"owner"`
}

// RemoteConfig describes the sync server this client talks to.
type RemoteConfig struct {
	URL         string `toml:"url"`
	Email       string `toml:"email"`
	Token       string `toml:"token"`
	Timeout     string `toml:"timeout"`
	Parallelism int    `toml:"parallelism"`
}

// ServerConfig configures `trifle srv`.
type ServerConfig struct {
	Listen           string            `toml:"listen"`
	DataDir          string            `toml:"data_dir"`
	Backend          string            `toml:"backend"`
	JWTSecret        string            `toml:"jwt_secret"`
	MaxValueBytes    int64             `toml:"max_value_bytes"`
	VerifyFileHashes bool              `toml:"verify_file_hashes"`
	RateLimit        float64           `toml:"rate_limit"`
	RateBurst        int               `toml:"rate_burst"`
	Tokens           []auth.TokenEntry `toml:"tokens"`
}

// Config defines runtime configuration for trifle.
type Config struct {
	LogLevel                 string       `toml:"log_level"`
	Local                    LocalConfig  `toml:"local"`
	Remote                   RemoteConfig `toml:"remote"`
	Server                   ServerConfig `toml:"server"`
	TrustedProjectConfigPath string       `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		Local: LocalConfig{
			Owner: DefaultOwner,
		},
		Remote: RemoteConfig{
			URL:         DefaultAPIURL,
			Timeout:     DefaultRemoteTimeout,
			Parallelism: DefaultParallelism,
		},
		Server: ServerConfig{
			Listen:           DefaultListen,
			Backend:          DefaultBackend,
			MaxValueBytes:    DefaultMaxValueBytes,
			VerifyFileHashes: true,
			RateLimit:        DefaultRateLimit,
			RateBurst:        DefaultRateBurst,
		},
	}
}

// RemoteTimeout parses Remote.Timeout, falling back to the default.
func (c *Config) RemoteTimeout() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.Remote.Timeout))
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultRemoteTimeout)
	}
	return d
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

// ProjectConfigTrusted reports whether Load reads ./.trifle.toml.
func ProjectConfigTrusted() bool {
	if _, ok := overrideConfigPath(); ok {
		return true
	}
	return trustProjectConfig()
}

var allowedKeys = []string{
	"log_level",
	"local.db_path",
	"local.owner",
	"remote.url",
	"remote.email",
	"remote.token",
	"remote.timeout",
	"remote.parallelism",
	"server.listen",
	"server.data_dir",
	"server.backend",
	"server.jwt_secret",
	"server.max_value_bytes",
	"server.verify_file_hashes",
	"server.rate_limit",
	"server.rate_burst",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "log_level":
		return c.LogLevel, nil
	case "local.db_path":
		return c.Local.DBPath, nil
	case "local.owner":
		return c.Local.Owner, nil
	case "remote.url":
		return c.Remote.URL, nil
	case "remote.email":
		return c.Remote.Email, nil
	case "remote.token":
		if c.Remote.Token == "" {
			return "", nil
		}
		return "<set>", nil
	case "remote.timeout":
		return c.Remote.Timeout, nil
	case "remote.parallelism":
		return strconv.Itoa(c.Remote.Parallelism), nil
	case "server.listen":
		return c.Server.Listen, nil
	case "server.data_dir":
		return c.Server.DataDir, nil
	case "server.backend":
		return c.Server.Backend, nil
	case "server.jwt_secret":
		if c.Server.JWTSecret == "" {
			return "", nil
		}
		return "<set>", nil
	case "server.max_value_bytes":
		return strconv.FormatInt(c.Server.MaxValueBytes, 10), nil
	case "server.verify_file_hashes":
		return strconv.FormatBool(c.Server.VerifyFileHashes), nil
	case "server.rate_limit":
		return strconv.FormatFloat(c.Server.RateLimit, 'f', -1, 64), nil
	case "server.rate_burst":
		return strconv.Itoa(c.Server.RateBurst), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	// The file may hold secrets.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	applyEnv(&cfg)
	cfg.normalize()
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"TRIFLE_DB", &cfg.Local.DBPath},
		{"TRIFLE_API_URL", &cfg.Remote.URL},
		{"TRIFLE_EMAIL", &cfg.Remote.Email},
		{"TRIFLE_TOKEN", &cfg.Remote.Token},
		{"TRIFLE_JWT_SECRET", &cfg.Server.JWTSecret},
		{"TRIFLE_DATA_DIR", &cfg.Server.DataDir},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.dst = v
		}
	}
}

// normalize fills derived defaults after files and env are applied.
func (c *Config) normalize() {
	stateDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		stateDir = filepath.Join(home, stateDirName)
	}
	if c.Local.DBPath == "" && stateDir != "" {
		c.Local.DBPath = filepath.Join(stateDir, DefaultDBFileName)
	}
	if c.Server.DataDir == "" && stateDir != "" {
		c.Server.DataDir = filepath.Join(stateDir, DefaultDataDirName)
	}
	if strings.TrimSpace(c.Local.Owner) == "" {
		c.Local.Owner = DefaultOwner
	}
	if c.Remote.Parallelism <= 0 {
		c.Remote.Parallelism = DefaultParallelism
	}
	if c.Server.Backend == "" {
		c.Server.Backend = DefaultBackend
	}
	if c.Server.MaxValueBytes <= 0 {
		c.Server.MaxValueBytes = DefaultMaxValueBytes
	}
	c.Remote.Email = strings.ToLower(strings.TrimSpace(c.Remote.Email))
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "server.max_value_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "remote.parallelism", "server.rate_burst":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "server.rate_limit":
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative number", key)
		}
		return parsed, nil
	case "server.verify_file_hashes":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "remote.timeout":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration", key)
		}
		return value, nil
	case "server.backend":
		if value != "fs" && value != "bolt" {
			return nil, fmt.Errorf("%s must be fs or bolt", key)
		}
		return value, nil
	case "remote.email":
		return strings.ToLower(value), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}
