package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DaddyBoye/helios-server-1/internal/config"
	"github.com/DaddyBoye/helios-server-1/internal/domain"
)

func TestOpenStore_SQLite(t *testing.T) {
	cfg := config.Config{DBDriver: config.DriverSQLite, DBPath: filepath.Join(t.TempDir(), "nested", "helios.db")}

	repo, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	_, err = repo.LoadProgress(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOpenStore_PostgresBadURL(t *testing.T) {
	cfg := config.Config{DBDriver: config.DriverPostgres, DatabaseURL: "://not-a-url"}

	repo, err := openStore(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, repo)
}

func TestRateLimiter_DisabledWithoutRedis(t *testing.T) {
	a := &App{cfg: config.Config{}, log: zap.NewNop()}
	assert.Nil(t, a.rateLimiter(context.Background()))

	a.cfg.RedisURL = "not a redis url"
	assert.Nil(t, a.rateLimiter(context.Background()))
	assert.Nil(t, a.redis)
}
