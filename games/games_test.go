package games

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/microcosm-game/microcosm-server/errors"
	"github.com/microcosm-game/microcosm-server/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  MatchConfig
		wantErr bool
	}{
		{
			name:   "ok",
			config: MatchConfig{MaxPlayers: 8, TurnTimeout: time.Minute},
		},
		{
			name:    "no players",
			config:  MatchConfig{MaxPlayers: 0, TurnTimeout: time.Minute},
			wantErr: true,
		},
		{
			name:    "too many players",
			config:  MatchConfig{MaxPlayers: maxMaxPlayers + 1, TurnTimeout: time.Minute},
			wantErr: true,
		},
		{
			name:    "no turn timeout",
			config:  MatchConfig{MaxPlayers: 8},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err, "validation should fail")
				assert.True(t, errors.Is(err, errors.ErrBadRequest), "should blame the request")
				return
			}
			assert.NoError(t, err, "validation should pass")
		})
	}
}

func TestConfigFromSettings(t *testing.T) {
	defaults := MatchConfig{
		MaxPlayers:     DefaultMaxPlayers,
		TurnTimeout:    DefaultTurnTimeout,
		ReconnectGrace: 30 * time.Second,
	}
	t.Run("defaults apply", func(t *testing.T) {
		config := ConfigFromSettings(messages.MatchSettings{Name: "plain"}, defaults)
		assert.Equal(t, "plain", config.Name)
		assert.Equal(t, DefaultMaxPlayers, config.MaxPlayers)
		assert.Equal(t, DefaultTurnTimeout, config.TurnTimeout)
		assert.Equal(t, 30*time.Second, config.ReconnectGrace)
	})
	t.Run("settings override", func(t *testing.T) {
		config := ConfigFromSettings(messages.MatchSettings{
			Name:           "custom",
			MaxPlayers:     3,
			TurnTimeoutSec: 45,
			AllowLateJoin:  true,
		}, defaults)
		assert.Equal(t, 3, config.MaxPlayers)
		assert.Equal(t, 45*time.Second, config.TurnTimeout)
		assert.True(t, config.AllowLateJoin)
	})
}

func TestOffendingPlayer(t *testing.T) {
	t.Run("rule violation", func(t *testing.T) {
		player, ok := OffendingPlayer(NewRuleViolationError("p1", "illegal move"))
		require.True(t, ok, "offender should be found")
		assert.Equal(t, messages.PlayerID("p1"), player)
	})
	t.Run("other error", func(t *testing.T) {
		_, ok := OffendingPlayer(errors.NewInternalError("boom", nil))
		assert.False(t, ok, "no offender for non-violations")
	})
}

func TestPassthroughEngine(t *testing.T) {
	engine := PassthroughEngine{}
	players := []messages.PlayerInfo{
		{ID: "p0", Name: "ada", IsHost: true},
		{ID: "p1", Name: "bob"},
	}
	snapshot, err := engine.InitialSnapshot(players)
	require.NoError(t, err, "initial snapshot should not fail")
	var seed snapshotSeed
	require.NoError(t, json.Unmarshal(snapshot, &seed))
	assert.Len(t, seed.Players, 2)
	newSnapshot, delta, err := engine.ApplyTurn(snapshot, []PlayerBundle{{Player: "p0", Turn: 1}})
	require.NoError(t, err, "apply turn should not fail")
	assert.Equal(t, snapshot, newSnapshot, "snapshot should pass through unchanged")
	assert.Equal(t, snapshot, delta, "delta should mirror the snapshot")
}
