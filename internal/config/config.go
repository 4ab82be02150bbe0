// Package config loads the ormrel command configuration.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/mickamy/ormrel/internal/modelparse"
	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/schema"
)

// Config is the YAML configuration of the ormrel command.
type Config struct {
	// Dialect is "mysql", "postgres" or "sqlite".
	Dialect string `yaml:"dialect"`
	// Driver is the database/sql driver name. Defaults per dialect.
	Driver      string `yaml:"driver,omitempty"`
	DSN         string `yaml:"dsn"`
	LogLevel    string `yaml:"log_level,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`
	// Models is a Go file or package directory to derive the schema from.
	// Relative paths are resolved against the config file.
	Models string              `yaml:"models,omitempty"`
	Schema []schema.EntityDecl `yaml:"schema,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Dialect:     "sqlite",
		DSN:         ":memory:",
		LogLevel:    "info",
		Concurrency: 4,
	}
}

// Load reads the YAML file at path over Default. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Models != "" && !filepath.IsAbs(cfg.Models) {
		cfg.Models = filepath.Join(filepath.Dir(path), cfg.Models)
	}
	return cfg, nil
}

// Decode reads a YAML configuration over Default.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyFlags overrides fields with the flags explicitly set on fs. Flags
// are matched by name: dialect, driver, dsn, log-level, concurrency and
// models.
func (c *Config) ApplyFlags(fs *flag.FlagSet) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "dialect":
			c.Dialect = v
		case "driver":
			c.Driver = v
		case "dsn":
			c.DSN = v
		case "log-level":
			c.LogLevel = v
		case "models":
			c.Models = v
		case "concurrency":
			n, perr := strconv.Atoi(v)
			if perr != nil {
				err = fmt.Errorf("concurrency: %w", perr)
				return
			}
			c.Concurrency = n
		}
	})
	return err
}

// Validate checks that the configuration can open a database.
func (c *Config) Validate() error {
	if _, err := orm.DialectFor(c.Dialect); err != nil {
		return err //nolint:wrapcheck // already descriptive
	}
	if c.DSN == "" {
		return errors.New("config: dsn is required")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("config: negative concurrency %d", c.Concurrency)
	}
	if _, err := zapcore.ParseLevel(c.level()); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// DriverName returns Driver, or the default driver of Dialect.
func (c *Config) DriverName() string {
	if c.Driver != "" {
		return c.Driver
	}
	d, _ := orm.DialectFor(c.Dialect)
	switch d {
	case orm.MySQL:
		return "mysql"
	case orm.PostgreSQL:
		return "pgx"
	default:
		return "sqlite"
	}
}

// Open opens the configured database.
func (c *Config) Open() (*orm.DB, error) {
	d, err := orm.DialectFor(c.Dialect)
	if err != nil {
		return nil, err //nolint:wrapcheck // already descriptive
	}
	db, err := orm.Open(c.DriverName(), c.DSN, d)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.Dialect, err)
	}
	if d == orm.SQLite && inMemory(c.DSN) {
		// every connection to an in-memory DSN opens a separate empty database
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func inMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func (c *Config) level() string {
	if c.LogLevel == "" {
		return "info"
	}
	return c.LogLevel
}

// Logger builds a zap logger at LogLevel. Debug selects the development
// encoder.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.level())
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	zc := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build() //nolint:wrapcheck // zap errors are descriptive
}

// Declarations returns the inline schema followed by the declarations
// derived from Models.
func (c *Config) Declarations() ([]schema.EntityDecl, error) {
	decls := append([]schema.EntityDecl(nil), c.Schema...)
	if c.Models == "" {
		return decls, nil
	}
	info, err := os.Stat(c.Models)
	if err != nil {
		return nil, fmt.Errorf("models: %w", err)
	}
	var parsed []schema.EntityDecl
	if info.IsDir() {
		parsed, err = modelparse.ParseDir(c.Models)
	} else {
		parsed, err = modelparse.ParseFiles(c.Models)
	}
	if err != nil {
		return nil, fmt.Errorf("models: %w", err)
	}
	return append(decls, parsed...), nil
}

// Catalog builds and freezes the catalog described by the configuration.
func (c *Config) Catalog() (*schema.Catalog, error) {
	decls, err := c.Declarations()
	if err != nil {
		return nil, err
	}
	catalog := schema.NewCatalog()
	if err := catalog.Apply(decls); err != nil {
		return nil, err //nolint:wrapcheck // schema errors carry their prefix
	}
	catalog.Freeze()
	return catalog, nil
}
