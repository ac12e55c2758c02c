package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_Defaults(t *testing.T) {
	cfg, err := Setup(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, 30*time.Second, cfg.WaitingTimeout)
	assert.Equal(t, 30*time.Second, cfg.ChoiceTimeout)
	assert.Equal(t, 10, cfg.MatchQueryLimit)
	assert.False(t, cfg.StopOnMajority)
	assert.Equal(t, -2, cfg.ScoreRoundLoss)
	assert.Equal(t, time.Duration(0), cfg.OrphanSweepAfter)
}

func TestSetup_ReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "STORE_BACKEND=redis\nREDIS_URL=localhost:6379\nWAITING_TIMEOUT=45s\nSCORE_GAME_WIN=7\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Setup(path)
	require.NoError(t, err)

	assert.Equal(t, StoreRedis, cfg.StoreBackend)
	assert.Equal(t, "localhost:6379", cfg.RedisUrl)
	assert.Equal(t, 45*time.Second, cfg.WaitingTimeout)
	assert.Equal(t, 7, cfg.ScoreGameWin)
}

func TestSetup_RejectsBackendWithoutAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STORE_BACKEND=mongo\n"), 0o600))

	_, err := Setup(path)
	assert.ErrorIs(t, err, ErrMissingMongo)
}

func TestSetup_RejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STORE_BACKEND=firebase\n"), 0o600))

	_, err := Setup(path)
	assert.ErrorIs(t, err, ErrUnknownStore)
}
