package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apotekin/backend/internal/config"
	"apotekin/backend/internal/domain"
	"apotekin/backend/internal/store/memory"
	"apotekin/backend/internal/store/seed"
	"apotekin/backend/internal/store/sqlstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{LogLevel: "warn", LogFormat: "json"})

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "v", line["k"])
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{LogLevel: "chatty", LogFormat: "text"})

	logger.Debug("hidden")
	assert.Zero(t, buf.Len())
	logger.Info("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestOpenRepositoryDefaultsToMemory(t *testing.T) {
	repo, closeFn, err := openRepository(context.Background(), &config.Config{}, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, closeFn)
	assert.IsType(t, &memory.Store{}, repo)
}

func TestOpenRepositorySeedsSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{SQLitePath: filepath.Join(t.TempDir(), "apotekin.db"), SeedDemoData: true}

	repo, closeFn, err := openRepository(ctx, cfg, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, closeFn)
	t.Cleanup(func() { _ = closeFn() })
	assert.IsType(t, &sqlstore.Store{}, repo)

	row, err := repo.GetInventory(ctx, seed.InventoryParacetamol)
	require.NoError(t, err)
	assert.Equal(t, seed.ProductParacetamol, row.ProductID)

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestOpenRepositoryLeavesSQLiteEmptyByDefault(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{SQLitePath: filepath.Join(t.TempDir(), "apotekin.db")}

	repo, closeFn, err := openRepository(ctx, cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	_, err = repo.GetInventory(ctx, seed.InventoryParacetamol)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOpenRepositoryRefusesUnreachablePostgres(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := openRepository(ctx, &config.Config{
		DatabaseURL: "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1",
		SQLitePath:  filepath.Join(t.TempDir(), "ignored.db"),
	}, discardLogger())
	assert.Error(t, err)
}
