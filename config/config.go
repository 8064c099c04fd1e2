// Package config loads the vending machine's settings from an optional YAML
// file and VENDING_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/arkantrust/vending-machine/backend/models"
	"github.com/arkantrust/vending-machine/backend/store"
)

// DefaultFile is read from the working directory when no file is named.
const DefaultFile = "vending.yaml"

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Seed replaces the built-in starting inventory for new storage.
	Seed []SeedProduct `yaml:"seed,omitempty" mapstructure:"seed"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port          int    `yaml:"port" mapstructure:"port"`
	AllowedOrigin string `yaml:"allowed_origin" mapstructure:"allowed_origin"`
}

// StorageConfig picks the backend and where it keeps its files.
type StorageConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	InventoryPath string `yaml:"inventory_path" mapstructure:"inventory_path"`
	LedgerPath    string `yaml:"ledger_path" mapstructure:"ledger_path"`
	BoltPath      string `yaml:"bolt_path" mapstructure:"bolt_path"`
	SQLitePath    string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// SeedProduct is one configured starting product. Price is kept as text and
// parsed as a decimal. A quoted YAML price is taken digit for digit; an
// unquoted one is read as a float64 first and only survives exactly up to
// about 15 significant digits, so quote prices in config files.
type SeedProduct struct {
	Name     string `yaml:"name" mapstructure:"name"`
	Price    string `yaml:"price" mapstructure:"price"`
	Quantity int    `yaml:"quantity" mapstructure:"quantity"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          8080,
			AllowedOrigin: "*",
		},
		Storage: StorageConfig{
			Driver:        store.DriverCSV,
			InventoryPath: "inventory.csv",
			LedgerPath:    "ledger.csv",
			BoltPath:      "vending.db",
			SQLitePath:    "vending.sqlite",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path and the
// environment, in increasing order of precedence. An empty path reads
// DefaultFile if it exists. PORT and DB_PATH are honoured as aliases for
// VENDING_SERVER_PORT and VENDING_STORAGE_BOLT_PATH.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("VENDING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.allowed_origin", def.Server.AllowedOrigin)
	v.SetDefault("storage.driver", def.Storage.Driver)
	v.SetDefault("storage.inventory_path", def.Storage.InventoryPath)
	v.SetDefault("storage.ledger_path", def.Storage.LedgerPath)
	v.SetDefault("storage.bolt_path", def.Storage.BoltPath)
	v.SetDefault("storage.sqlite_path", def.Storage.SQLitePath)

	if err := v.BindEnv("server.port", "VENDING_SERVER_PORT", "PORT"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("storage.bolt_path", "VENDING_STORAGE_BOLT_PATH", "DB_PATH"); err != nil {
		return nil, err
	}

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	switch c.Storage.Driver {
	case store.DriverCSV:
		if c.Storage.InventoryPath == "" || c.Storage.LedgerPath == "" {
			return errors.New("csv storage needs storage.inventory_path and storage.ledger_path")
		}
	case store.DriverBolt:
		if c.Storage.BoltPath == "" {
			return errors.New("bolt storage needs storage.bolt_path")
		}
	case store.DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("sqlite storage needs storage.sqlite_path")
		}
	case store.DriverMemory:
	default:
		return fmt.Errorf("%w: %q", store.ErrUnknownDriver, c.Storage.Driver)
	}

	_, err := c.SeedInventory()
	return err
}

// SeedInventory converts the configured seed into products. It returns nil
// when no seed is configured so the store falls back to its built-in one.
func (c *Config) SeedInventory() ([]models.Product, error) {
	if len(c.Seed) == 0 {
		return nil, nil
	}
	products := make([]models.Product, 0, len(c.Seed))
	seen := make(map[string]bool)
	for i, s := range c.Seed {
		if s.Name == "" {
			return nil, fmt.Errorf("seed[%d]: name is required", i)
		}
		key := strings.ToLower(s.Name)
		if seen[key] {
			return nil, fmt.Errorf("seed[%d]: duplicate product %q", i, s.Name)
		}
		seen[key] = true

		price, err := decimal.NewFromString(s.Price)
		if err != nil {
			return nil, fmt.Errorf("seed[%d] %q: price %q: %w", i, s.Name, s.Price, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("seed[%d] %q: negative price", i, s.Name)
		}
		if s.Quantity < 0 {
			return nil, fmt.Errorf("seed[%d] %q: negative quantity", i, s.Name)
		}
		products = append(products, models.Product{Name: s.Name, Price: price, Quantity: s.Quantity})
	}
	return products, nil
}

// StoreOptions maps the configuration onto store.Open's options.
func (c *Config) StoreOptions() (store.Options, error) {
	seed, err := c.SeedInventory()
	if err != nil {
		return store.Options{}, err
	}
	return store.Options{
		Driver:        c.Storage.Driver,
		InventoryPath: c.Storage.InventoryPath,
		LedgerPath:    c.Storage.LedgerPath,
		BoltPath:      c.Storage.BoltPath,
		SQLitePath:    c.Storage.SQLitePath,
		Seed:          seed,
	}, nil
}

// YAML renders the configuration as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
