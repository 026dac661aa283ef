package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode represents the server operating mode.
type Mode string

const (
	ModeProd Mode = "prod"
	ModeDev  Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "":
		return ModeProd, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of prod, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but the file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides config file mode).
	ModeFlag string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr     *string
	ExternalOrigin *string
	DataDir        *string
	JWTSecret      *string
	EmailDomain    *string
	StoreDriver    *string
	BlobDriver     *string
	TLSMode        *string
	LoggingLevel   *string
}

// fileConfig mirrors Config but with pointer sections to detect presence.
type fileConfig struct {
	Mode           string `toml:"mode"`
	ListenAddr     string `toml:"listen_addr"`
	ExternalOrigin string `toml:"external_origin"`
	DataDir        string `toml:"data_dir"`

	Auth    *authFileConfig    `toml:"auth"`
	Store   *storeFileConfig   `toml:"store"`
	Blob    *blobFileConfig    `toml:"blob"`
	Chat    *chatFileConfig    `toml:"chat"`
	Wopi    *wopiFileConfig    `toml:"wopi"`
	TLS     *TLSConfig         `toml:"tls"`
	Logging *loggingFileConfig `toml:"logging"`
}

type authFileConfig struct {
	EmailDomain        string `toml:"email_domain"`
	JWTSecret          string `toml:"jwt_secret"`
	AccessTTLHours     int    `toml:"access_ttl_hours"`
	RefreshTTLDays     int    `toml:"refresh_ttl_days"`
	BcryptCost         int    `toml:"bcrypt_cost"`
	LoginRatePerMinute int    `toml:"login_rate_per_minute"`
}

type storeFileConfig struct {
	Driver string `toml:"driver"`
}

type blobFileConfig struct {
	Driver  string                    `toml:"driver"`
	Drivers map[string]map[string]any `toml:"drivers"`
}

type chatFileConfig struct {
	HistoryLimit int `toml:"history_limit"`
}

type wopiFileConfig struct {
	AllowedExtensions []string `toml:"allowed_extensions"`
}

type loggingFileConfig struct {
	Level string `toml:"level"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > mode in config file > default (prod)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay CLI flags
//  5. Validate enum fields
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid
// TOML, Load returns an error (fail fast). Unknown/undecoded TOML keys
// produce a warning but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}

		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	modeStr := "prod"
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}

	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)

	if opts.ConfigPath != "" {
		overlayFileConfig(cfg, &fc)
	}

	overlayFlags(cfg, opts.FlagOverrides)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// presetForMode returns the base config for a given mode.
func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return ProdConfig()
}

// ProdConfig returns production-safe defaults.
func ProdConfig() *Config {
	return &Config{
		Mode:           string(ModeProd),
		ListenAddr:     ":8000",
		ExternalOrigin: "https://localhost:8000",
		DataDir:        ".collab",
		Auth: AuthConfig{
			EmailDomain:        "@urfu.me",
			AccessTTLHours:     24,
			RefreshTTLDays:     30,
			BcryptCost:         12,
			LoginRatePerMinute: 5,
		},
		Store: StoreConfig{Driver: "sqlite"},
		Blob:  BlobConfig{Driver: "s3"},
		Chat:  ChatConfig{HistoryLimit: 20},
		TLS: TLSConfig{
			Mode:          "selfsigned",
			SelfSignedDir: ".collab/certs",
			ACME: ACMEConfig{
				Directory:  "https://acme-v02.api.letsencrypt.org/directory",
				StorageDir: ".collab/acme",
				UseStaging: false,
			},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// DevConfig returns development mode defaults: plain HTTP, local state,
// filesystem blobs and a fixed signing secret.
func DevConfig() *Config {
	cfg := ProdConfig()
	cfg.Mode = string(ModeDev)
	cfg.ExternalOrigin = "http://localhost:8000"
	cfg.Auth.JWTSecret = "dev-secret-do-not-use-in-prod"
	cfg.Auth.BcryptCost = 6
	cfg.Blob.Driver = "fs"
	cfg.TLS.Mode = "off"
	cfg.Logging.Level = "debug"
	return cfg
}

// overlayFileConfig applies TOML file values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.ExternalOrigin != "" {
		cfg.ExternalOrigin = fc.ExternalOrigin
	}
	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}

	if fc.Auth != nil {
		if fc.Auth.EmailDomain != "" {
			cfg.Auth.EmailDomain = fc.Auth.EmailDomain
		}
		if fc.Auth.JWTSecret != "" {
			cfg.Auth.JWTSecret = fc.Auth.JWTSecret
		}
		if fc.Auth.AccessTTLHours != 0 {
			cfg.Auth.AccessTTLHours = fc.Auth.AccessTTLHours
		}
		if fc.Auth.RefreshTTLDays != 0 {
			cfg.Auth.RefreshTTLDays = fc.Auth.RefreshTTLDays
		}
		if fc.Auth.BcryptCost != 0 {
			cfg.Auth.BcryptCost = fc.Auth.BcryptCost
		}
		if fc.Auth.LoginRatePerMinute != 0 {
			cfg.Auth.LoginRatePerMinute = fc.Auth.LoginRatePerMinute
		}
	}

	if fc.Store != nil && fc.Store.Driver != "" {
		cfg.Store.Driver = fc.Store.Driver
	}

	if fc.Blob != nil {
		if fc.Blob.Driver != "" {
			cfg.Blob.Driver = fc.Blob.Driver
		}
		if len(fc.Blob.Drivers) > 0 {
			cfg.Blob.Drivers = fc.Blob.Drivers
		}
	}

	if fc.Chat != nil && fc.Chat.HistoryLimit != 0 {
		cfg.Chat.HistoryLimit = fc.Chat.HistoryLimit
	}

	if fc.Wopi != nil && len(fc.Wopi.AllowedExtensions) > 0 {
		cfg.Wopi.AllowedExtensions = fc.Wopi.AllowedExtensions
	}

	if fc.TLS != nil {
		if fc.TLS.Mode != "" {
			cfg.TLS.Mode = fc.TLS.Mode
		}
		if fc.TLS.CertFile != "" {
			cfg.TLS.CertFile = fc.TLS.CertFile
		}
		if fc.TLS.KeyFile != "" {
			cfg.TLS.KeyFile = fc.TLS.KeyFile
		}
		if fc.TLS.SelfSignedDir != "" {
			cfg.TLS.SelfSignedDir = fc.TLS.SelfSignedDir
		}
		if fc.TLS.ACME.Email != "" {
			cfg.TLS.ACME.Email = fc.TLS.ACME.Email
		}
		if fc.TLS.ACME.Domain != "" {
			cfg.TLS.ACME.Domain = fc.TLS.ACME.Domain
		}
		if fc.TLS.ACME.Directory != "" {
			cfg.TLS.ACME.Directory = fc.TLS.ACME.Directory
		}
		if fc.TLS.ACME.StorageDir != "" {
			cfg.TLS.ACME.StorageDir = fc.TLS.ACME.StorageDir
		}
		cfg.TLS.ACME.UseStaging = fc.TLS.ACME.UseStaging
	}

	if fc.Logging != nil && fc.Logging.Level != "" {
		cfg.Logging.Level = fc.Logging.Level
	}
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	if f.ListenAddr != nil && *f.ListenAddr != "" {
		cfg.ListenAddr = *f.ListenAddr
	}
	if f.ExternalOrigin != nil && *f.ExternalOrigin != "" {
		cfg.ExternalOrigin = *f.ExternalOrigin
	}
	if f.DataDir != nil && *f.DataDir != "" {
		cfg.DataDir = *f.DataDir
	}
	if f.JWTSecret != nil && *f.JWTSecret != "" {
		cfg.Auth.JWTSecret = *f.JWTSecret
	}
	if f.EmailDomain != nil && *f.EmailDomain != "" {
		cfg.Auth.EmailDomain = *f.EmailDomain
	}
	if f.StoreDriver != nil && *f.StoreDriver != "" {
		cfg.Store.Driver = *f.StoreDriver
	}
	if f.BlobDriver != nil && *f.BlobDriver != "" {
		cfg.Blob.Driver = *f.BlobDriver
	}
	if f.TLSMode != nil && *f.TLSMode != "" {
		cfg.TLS.Mode = *f.TLSMode
	}
	if f.LoggingLevel != nil && *f.LoggingLevel != "" {
		cfg.Logging.Level = *f.LoggingLevel
	}
}

// validate checks enum-like config fields and required values.
func validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("invalid store.driver %q: must be one of sqlite, memory", cfg.Store.Driver)
	}

	switch cfg.Blob.Driver {
	case "fs", "s3":
	default:
		return fmt.Errorf("invalid blob.driver %q: must be one of fs, s3", cfg.Blob.Driver)
	}

	switch cfg.TLS.Mode {
	case "off", "static", "selfsigned", "acme":
	default:
		return fmt.Errorf("invalid tls.mode %q: must be one of off, static, selfsigned, acme", cfg.TLS.Mode)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of debug, info, warn, error", cfg.Logging.Level)
	}

	if !strings.HasPrefix(cfg.Auth.EmailDomain, "@") {
		return fmt.Errorf("invalid auth.email_domain %q: must start with '@'", cfg.Auth.EmailDomain)
	}

	if cfg.Mode == string(ModeProd) && cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in prod mode")
	}

	return nil
}
