package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("SQLite file is created under a new directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "orgrag.db")

		db, err := New(context.Background(), Options{Driver: "sqlite", DSN: path})

		require.NoError(t, err)
		sqlDB, err := db.DB()
		require.NoError(t, err)
		assert.NoError(t, sqlDB.Close())
		assert.FileExists(t, path)
	})

	t.Run("Unknown driver is rejected", func(t *testing.T) {
		_, err := New(context.Background(), Options{Driver: "oracle"})

		assert.ErrorContains(t, err, "unknown database driver")
	})
}
