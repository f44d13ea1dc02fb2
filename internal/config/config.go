// Package config loads deployment settings from a config file, a .env file
// and INVOICER_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rezonia/erp-invoicer/internal/erp"
	"github.com/rezonia/erp-invoicer/internal/model"
)

// EnvPrefix is prepended to every environment variable override
const EnvPrefix = "INVOICER"

// Config holds all application configuration
type Config struct {
	ERP      ERPConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Log      LogConfig
	Seller   SellerConfig
}

// ERPConfig holds the ERP connection and the records invoices refer to
type ERPConfig struct {
	URL       string
	Database  string
	Username  string
	APIKey    string
	CompanyID int64
	JournalID int64
	VATTaxID  int64
	Timeout   time.Duration
	Products  map[model.PurchaseKind]int64 // product template per purchase kind
}

// DatabaseConfig selects the local store
type DatabaseConfig struct {
	Driver   string // postgres, sqlite
	DSN      string
	LogLevel string // silent, error, warn, info
}

// RedisConfig holds Redis connection settings. An empty Addr selects the
// in-process partner lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Debug        bool
}

// SellerConfig names the seller printed on customer documents
type SellerConfig struct {
	Name      string
	VATNumber string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// Load reads configuration. Priority (highest to lowest):
//  1. Environment variables with the INVOICER_ prefix (e.g. INVOICER_ERP_API_KEY)
//  2. .env in the working directory
//  3. the file at path, or config.{toml,yaml} in . and /etc/erp-invoicer
//  4. Built-in defaults
//
// Load does not require the ERP settings; call ERPConfig.Validate before
// issuing invoices.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/erp-invoicer")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		ERP: ERPConfig{
			URL:       v.GetString("erp.url"),
			Database:  v.GetString("erp.database"),
			Username:  v.GetString("erp.username"),
			APIKey:    v.GetString("erp.api_key"),
			CompanyID: v.GetInt64("erp.company_id"),
			JournalID: v.GetInt64("erp.journal_id"),
			VATTaxID:  v.GetInt64("erp.vat_tax_id"),
			Timeout:   v.GetDuration("erp.timeout"),
			Products:  make(map[model.PurchaseKind]int64, len(model.PurchaseKinds)),
		},
		Database: DatabaseConfig{
			Driver:   v.GetString("database.driver"),
			DSN:      v.GetString("database.dsn"),
			LogLevel: v.GetString("database.log_level"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Server: ServerConfig{
			Address:      v.GetString("server.address"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
			Debug:        v.GetBool("server.debug"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Seller: SellerConfig{
			Name:      v.GetString("seller.name"),
			VATNumber: v.GetString("seller.vat_number"),
		},
	}

	for _, kind := range model.PurchaseKinds {
		if id := v.GetInt64("erp.products." + string(kind)); id > 0 {
			cfg.ERP.Products[kind] = id
		}
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.ERP.Timeout == 0 {
		cfg.ERP.Timeout = 30 * time.Second
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "erp-invoicer.db"
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 2 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
}

// validate checks the settings every command needs. ERP settings are checked
// lazily by ERPConfig.Validate.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return model.NewConfigurationError("unsupported database driver "+c.Database.Driver, "database.driver")
	}
	if c.Database.DSN == "" {
		return model.NewConfigurationError("database dsn is required", "database.dsn")
	}
	if c.ERP.Timeout < 0 {
		return model.NewConfigurationError("erp timeout must not be negative", "erp.timeout")
	}
	return nil
}

// Configured reports whether the ERP can be contacted at all
func (c ERPConfig) Configured() bool {
	return c.URL != "" && c.Database != "" && c.Username != "" && c.APIKey != ""
}

// Validate returns a ConfigurationError naming every setting the invoice
// workflow needs but lacks.
func (c ERPConfig) Validate() error {
	var missing []string
	if c.URL == "" {
		missing = append(missing, "erp.url")
	}
	if c.Database == "" {
		missing = append(missing, "erp.database")
	}
	if c.Username == "" {
		missing = append(missing, "erp.username")
	}
	if c.APIKey == "" {
		missing = append(missing, "erp.api_key")
	}
	if c.CompanyID <= 0 {
		missing = append(missing, "erp.company_id")
	}
	if c.JournalID <= 0 {
		missing = append(missing, "erp.journal_id")
	}
	if c.VATTaxID <= 0 {
		missing = append(missing, "erp.vat_tax_id")
	}
	for _, kind := range model.PurchaseKinds {
		if c.Products[kind] <= 0 {
			missing = append(missing, "erp.products."+string(kind))
		}
	}

	if len(missing) > 0 {
		return model.NewConfigurationError("missing required ERP settings", missing...)
	}
	return nil
}

// ProductTemplate returns the product template configured for kind
func (c ERPConfig) ProductTemplate(kind model.PurchaseKind) (int64, bool) {
	id, ok := c.Products[kind]
	return id, ok && id > 0
}

// Credentials returns the login used to open ERP sessions
func (c ERPConfig) Credentials() erp.Credentials {
	return erp.Credentials{
		URL:      c.URL,
		Database: c.Database,
		Username: c.Username,
		APIKey:   c.APIKey,
	}
}
