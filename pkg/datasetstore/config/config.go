// Package config assembles a datasetstore.Service from declarative server
// configuration.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lakeward/datasetstore/pkg/datasetstore"
	"github.com/lakeward/datasetstore/pkg/datasetstore/classify"
	"github.com/lakeward/datasetstore/pkg/datasetstore/profiles"
	"github.com/lakeward/datasetstore/pkg/datasetstore/repo/memory"
	repopg "github.com/lakeward/datasetstore/pkg/datasetstore/repo/postgres"
	reposqlite "github.com/lakeward/datasetstore/pkg/datasetstore/repo/sqlite"
	"github.com/lakeward/datasetstore/pkg/datasetstore/storage/crypto"
	"github.com/lakeward/datasetstore/pkg/datasetstore/storage/flatfile"
	"github.com/lakeward/datasetstore/pkg/datasetstore/storage/table"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:           "8080",
		Environment:    "development",
		BaseDir:        "./data",
		CatalogType:    "sqlite",
		EnableEvents:   true,
		InlineArchival: true,
	}
}

// ServerConfig represents server configuration for the dataset store service.
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// BaseDir is the root of the fixed storage layout.
	BaseDir string

	// Catalog configuration
	CatalogType string // "memory", "sqlite", "postgres"
	DatabaseURL string // required for postgres

	// Hex-encoded AES key. When empty, encryption requests are logged and
	// versions are stored plaintext.
	EncryptionKey string

	// Server options
	EnableEvents   bool
	InlineArchival bool
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.BaseDir == "" {
		return errors.New("base_dir is required")
	}

	switch c.CatalogType {
	case "memory", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	default:
		return fmt.Errorf("catalog_type must be 'memory', 'sqlite' or 'postgres', got %q", c.CatalogType)
	}

	return nil
}

// BuildService creates a Service instance from the server configuration.
func (c *ServerConfig) BuildService(logger *slog.Logger) (datasetstore.Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cipher, err := c.buildCipher()
	if err != nil {
		return nil, fmt.Errorf("failed to build cipher: %w", err)
	}

	catalog, err := c.buildCatalog()
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog: %w", err)
	}

	flat, err := flatfile.New(flatfile.Config{BaseDir: c.BaseDir, Cipher: cipher, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to build flat-file backend: %w", err)
	}
	tab, err := table.New(table.Config{BaseDir: c.BaseDir, Cipher: cipher, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to build table backend: %w", err)
	}

	options := []datasetstore.Option{
		datasetstore.WithCatalog(catalog),
		datasetstore.WithBackend(flat),
		datasetstore.WithBackend(tab),
		datasetstore.WithClassifier(classify.New()),
		datasetstore.WithResolver(profiles.Default()),
		datasetstore.WithLogger(logger),
		datasetstore.WithInlineArchival(c.InlineArchival),
	}
	if cipher != nil {
		options = append(options, datasetstore.WithCipher(cipher))
	}
	if c.EnableEvents {
		options = append(options, datasetstore.WithEventSink(datasetstore.NewLogEventSink(logger)))
	}

	return datasetstore.New(c.BaseDir, options...)
}

// buildCipher returns nil when no key is configured.
func (c *ServerConfig) buildCipher() (datasetstore.Cipher, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	return crypto.NewAESCTRFromHex(c.EncryptionKey)
}

// buildCatalog creates a Catalog based on the configuration. The sqlite
// catalog lives at metadata/catalog.db under the base directory.
func (c *ServerConfig) buildCatalog() (datasetstore.Catalog, error) {
	switch c.CatalogType {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		layout, err := datasetstore.NewLayout(c.BaseDir)
		if err != nil {
			return nil, err
		}
		return reposqlite.Open(layout.CatalogPath())
	case "postgres":
		pool, err := pgxpool.New(context.Background(), c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported catalog type: %s", c.CatalogType)
	}
}
