package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the config file expected inside a data directory.
const FileName = "config.toml"

// DefaultBaseURL is where clients reach the daemon when nothing is configured.
const DefaultBaseURL = "http://127.0.0.1:8045"

// ServerConfig defines the HTTP and IPC listeners.
type ServerConfig struct {
	BindAddress string  `toml:"bindAddress"`
	Port        int     `toml:"port"`
	SocketPath  string  `toml:"socketPath"`
	RateLimit   float64 `toml:"rateLimitRPS"`
	RateBurst   int     `toml:"rateLimitBurst"`
}

// LoggingConfig defines basic logging knobs.
type LoggingConfig struct {
	Level       string `toml:"level"`
	FilePath    string `toml:"filePath"`
	FileMaxSize int    `toml:"fileMaxSizeMB"`
	FileBackups int    `toml:"fileMaxBackups"`
}

// OAuthConfig points at the identity provider used for account login.
type OAuthConfig struct {
	AuthURL      string   `toml:"authUrl"`
	TokenURL     string   `toml:"tokenUrl"`
	UserinfoURL  string   `toml:"userinfoUrl"`
	ClientID     string   `toml:"clientId"`
	ClientSecret string   `toml:"clientSecret"`
	Scopes       []string `toml:"scopes"`
}

// QuotaConfig points at the upstream quota endpoint.
type QuotaConfig struct {
	Endpoint       string `toml:"endpoint"`
	RequestTimeout int    `toml:"requestTimeoutSecs"`
	MaxRetries     int    `toml:"maxRetries"`
}

// WarmupConfig controls account warm-up requests.
type WarmupConfig struct {
	Endpoint     string `toml:"endpoint"`
	CooldownSecs int64  `toml:"cooldownSecs"`
}

// HistoryConfig enables Git snapshots of the data directory.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Branch  string `toml:"branch"`
}

// AppConfig aggregates daemon configuration for a data directory.
type AppConfig struct {
	DataDir string        `toml:"dataDir"`
	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`
	OAuth   OAuthConfig   `toml:"oauth"`
	Quota   QuotaConfig   `toml:"quota"`
	Warmup  WarmupConfig  `toml:"warmup"`
	History HistoryConfig `toml:"history"`
}

// Default returns the configuration used when no file exists yet.
func Default(dataDir string) *AppConfig {
	return &AppConfig{
		DataDir: dataDir,
		Server: ServerConfig{
			BindAddress: "127.0.0.1",
			Port:        8045,
			SocketPath:  "orbit.sock",
			RateLimit:   50,
			RateBurst:   100,
		},
		Logging: LoggingConfig{
			Level:       "info",
			FileMaxSize: 10,
			FileBackups: 3,
		},
		Quota: QuotaConfig{
			RequestTimeout: 30,
			MaxRetries:     3,
		},
		Warmup: WarmupConfig{
			CooldownSecs: 300,
		},
		History: HistoryConfig{
			Branch: "main",
		},
	}
}

// Load reads a config file from path.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(path)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDir reads config.toml from a data directory, falling back to defaults
// when the file does not exist.
func LoadDir(dir string) (*AppConfig, error) {
	path := filepath.Join(dir, FileName)
	cfg, err := Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(dir), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as TOML.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}

// ResolvePath resolves p against base unless p is already absolute.
func ResolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// BaseURL returns the HTTP address clients should dial for this config.
func (cfg *AppConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", cfg.Server.BindAddress, cfg.Server.Port)
}

func (cfg *AppConfig) validate() error {
	if cfg.Server.BindAddress == "" {
		cfg.Server.BindAddress = "127.0.0.1"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8045
	}
	if cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Server.SocketPath == "" {
		cfg.Server.SocketPath = "orbit.sock"
	}
	if cfg.Quota.RequestTimeout <= 0 {
		cfg.Quota.RequestTimeout = 30
	}
	if cfg.Quota.MaxRetries < 0 {
		return fmt.Errorf("quota.maxRetries must not be negative")
	}
	if cfg.Warmup.CooldownSecs <= 0 {
		cfg.Warmup.CooldownSecs = 300
	}
	if cfg.History.Branch == "" {
		cfg.History.Branch = "main"
	}
	return nil
}
