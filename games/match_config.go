package games

import (
	"time"

	"github.com/microcosm-game/microcosm-server/errors"
	"github.com/microcosm-game/microcosm-server/messages"
)

const (
	// DefaultMaxPlayers is used when match creation does not state a capacity.
	DefaultMaxPlayers = 8
	// DefaultTurnTimeout is used when match creation does not state a turn
	// timeout.
	DefaultTurnTimeout = 2 * time.Minute
	// maxMaxPlayers caps the requestable capacity.
	maxMaxPlayers = 14
)

// MatchConfig is the effective configuration a match runs with. Built from
// the client-supplied messages.MatchSettings merged with server defaults.
type MatchConfig struct {
	// Name is the human readable lobby name.
	Name string
	// MaxPlayers is the player capacity.
	MaxPlayers int
	// TurnTimeout forces turn resolution with missing players treated as
	// having submitted empty bundles.
	TurnTimeout time.Duration
	// AllowLateJoin determines whether players may join a running match.
	AllowLateJoin bool
	// ReconnectGrace is how long a disconnected player slot is kept around
	// for the player to reclaim it. Zero removes slots immediately.
	ReconnectGrace time.Duration
	// AllowSoloStart permits starting with only the host present. Bot
	// provisioning is up to the rules engine.
	AllowSoloStart bool
}

// Validate checks the MatchConfig for usable values.
func (config MatchConfig) Validate() error {
	if config.MaxPlayers < 1 || config.MaxPlayers > maxMaxPlayers {
		return errors.Error{
			Code:    errors.ErrBadRequest,
			Message: "max players out of range",
			Details: errors.Details{"max_players": config.MaxPlayers},
		}
	}
	if config.TurnTimeout <= 0 {
		return errors.Error{
			Code:    errors.ErrBadRequest,
			Message: "turn timeout must be positive",
			Details: errors.Details{"turn_timeout": config.TurnTimeout},
		}
	}
	return nil
}

// ConfigFromSettings merges client-supplied settings into the given defaults.
func ConfigFromSettings(settings messages.MatchSettings, defaults MatchConfig) MatchConfig {
	config := defaults
	config.Name = settings.Name
	config.AllowLateJoin = settings.AllowLateJoin
	if settings.MaxPlayers > 0 {
		config.MaxPlayers = settings.MaxPlayers
	}
	if settings.TurnTimeoutSec > 0 {
		config.TurnTimeout = time.Duration(settings.TurnTimeoutSec) * time.Second
	}
	return config
}
