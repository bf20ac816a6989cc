package config_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakeward/datasetstore/pkg/datasetstore"
	"github.com/lakeward/datasetstore/pkg/datasetstore/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "./data", cfg.BaseDir)
	assert.Equal(t, "sqlite", cfg.CatalogType)
	assert.True(t, cfg.EnableEvents)
	assert.True(t, cfg.InlineArchival)
}

func TestLoadAppliesOptions(t *testing.T) {
	cfg, err := config.Load(func(c *config.ServerConfig) error {
		c.Port = "9000"
		c.CatalogType = "memory"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "memory", cfg.CatalogType)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.ServerConfig)
		wantErr string
	}{
		{
			name:    "empty port",
			mutate:  func(c *config.ServerConfig) { c.Port = "" },
			wantErr: "port is required",
		},
		{
			name:    "empty base dir",
			mutate:  func(c *config.ServerConfig) { c.BaseDir = "" },
			wantErr: "base_dir is required",
		},
		{
			name:    "postgres without url",
			mutate:  func(c *config.ServerConfig) { c.CatalogType = "postgres" },
			wantErr: "database_url is required",
		},
		{
			name:    "unknown catalog type",
			mutate:  func(c *config.ServerConfig) { c.CatalogType = "etcd" },
			wantErr: "catalog_type must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(func(c *config.ServerConfig) error {
				tt.mutate(c)
				return nil
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuildService(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	build := func(t *testing.T, mutate func(c *config.ServerConfig)) (datasetstore.Service, string) {
		t.Helper()
		base := t.TempDir()
		cfg, err := config.Load(func(c *config.ServerConfig) error {
			c.BaseDir = base
			c.CatalogType = "memory"
			if mutate != nil {
				mutate(c)
			}
			return nil
		})
		require.NoError(t, err)
		svc, err := cfg.BuildService(logger)
		require.NoError(t, err)
		return svc, base
	}

	t.Run("memory catalog round trip", func(t *testing.T) {
		svc, base := build(t, nil)

		src := filepath.Join(t.TempDir(), "sample.txt")
		require.NoError(t, os.WriteFile(src, []byte("configured"), 0o644))

		stored := svc.Store(context.Background(), datasetstore.StoreRequest{
			SourcePath: src,
			Name:       "sample",
		})
		require.True(t, stored.OK, stored.Error)
		assert.FileExists(t, filepath.Join(base, stored.Locator))
	})

	t.Run("sqlite catalog creates the database file", func(t *testing.T) {
		_, base := build(t, func(c *config.ServerConfig) { c.CatalogType = "sqlite" })
		assert.FileExists(t, filepath.Join(base, "metadata", "catalog.db"))
	})

	t.Run("encryption key produces encrypted versions", func(t *testing.T) {
		svc, _ := build(t, func(c *config.ServerConfig) {
			c.EncryptionKey = "6368616e676520746869732070617373" // 16 bytes
		})

		src := filepath.Join(t.TempDir(), "secret.txt")
		require.NoError(t, os.WriteFile(src, []byte("classified"), 0o644))

		stored := svc.Store(context.Background(), datasetstore.StoreRequest{
			SourcePath: src,
			Name:       "secret",
			Strategy: &datasetstore.Strategy{
				StorageMode:   datasetstore.ModeFlatFile,
				VersionScheme: datasetstore.SchemeSequential,
				Versioning:    true,
				Encrypt:       true,
			},
		})
		require.True(t, stored.OK, stored.Error)
		assert.Equal(t, ".enc", filepath.Ext(stored.Locator))
	})

	t.Run("malformed encryption key", func(t *testing.T) {
		cfg, err := config.Load(func(c *config.ServerConfig) error {
			c.BaseDir = t.TempDir()
			c.CatalogType = "memory"
			c.EncryptionKey = "not-hex"
			return nil
		})
		require.NoError(t, err)
		_, err = cfg.BuildService(logger)
		assert.Error(t, err)
	})
}
