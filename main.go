package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/mickamy/ormrel/internal/config"
	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/relation"
	"github.com/mickamy/ormrel/schema"
)

var version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "ormrel:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("ormrel", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the YAML config file")
	fs.String("dialect", "", "database dialect: mysql, postgres or sqlite")
	fs.String("driver", "", "database/sql driver name (default per dialect)")
	fs.String("dsn", "", "data source name")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.Int("concurrency", 0, "concurrent relationship loads")
	fs.String("models", "", "Go file or package directory declaring the models")
	typeName := fs.String("type", "", "entity type to load")
	id := fs.String("id", "", "primary key of the entity to load")
	relations := fs.String("relation", "", "comma-separated relationships to load")
	check := fs.Bool("check", false, "validate the schema, print it as YAML and exit")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return err //nolint:wrapcheck // flag already printed the problem
	}

	if *showVersion {
		_, err := fmt.Fprintln(stdout, "ormrel", version)
		return err //nolint:wrapcheck // stdout
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err //nolint:wrapcheck // already descriptive
		}
		cfg = loaded
	}
	if err := cfg.ApplyFlags(fs); err != nil {
		return err //nolint:wrapcheck // already descriptive
	}
	if err := cfg.Validate(); err != nil {
		return err //nolint:wrapcheck // already descriptive
	}

	logger, err := cfg.Logger()
	if err != nil {
		return err //nolint:wrapcheck // already descriptive
	}
	defer func() { _ = logger.Sync() }()

	catalog, err := cfg.Catalog()
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	logger.Info("schema loaded", zap.Int("entities", len(catalog.Types())))

	if *check {
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(catalog.Declarations()); err != nil {
			return fmt.Errorf("encode schema: %w", err)
		}
		return enc.Close() //nolint:wrapcheck // stdout
	}

	if *typeName == "" || *id == "" {
		return errors.New("-type and -id are required unless -check is set")
	}

	db, err := cfg.Open()
	if err != nil {
		return err //nolint:wrapcheck // already descriptive
	}
	defer func() { _ = db.Close() }()

	r := relation.NewResolver(catalog, db.Debug(orm.NewZapLogger(logger)),
		relation.WithLogger(logger),
		relation.WithConcurrency(cfg.Concurrency),
	)

	entity, err := r.Find(ctx, schema.EntityType(*typeName), parseKey(*id))
	if err != nil {
		return fmt.Errorf("find %s %s: %w", *typeName, *id, err)
	}
	if names := splitList(*relations); len(names) > 0 {
		if err := r.LoadAll(ctx, []*relation.Entity{entity}, names...); err != nil {
			return err //nolint:wrapcheck // relation errors name the relationship
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(entity) //nolint:wrapcheck // stdout
}

// parseKey returns s as an int64 when it is numeric.
func parseKey(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
