package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rps_arena/internal/domain/user"
)

func TestHistory(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	games := []user.RecentGame{
		{GameID: "g2", OpponentUsername: "bob", Result: user.ResultWin, RoundsWon: 2, RoundsLost: 1, CreatedAt: now},
		{GameID: "g1", Result: user.ResultDraw, RoundsWon: 1, RoundsLost: 1, CreatedAt: now.Add(-time.Hour)},
	}

	var buf bytes.Buffer
	err := History(&buf, user.Profile{Username: "alice"}, user.Stats{Total: 2, Wins: 1, Draws: 1, WinRate: 0.5}, games, now)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, History(&buf, user.Profile{Username: "carol"}, user.Stats{}, nil, time.Now()))
	assert.NotZero(t, buf.Len())
}
