package session

import (
	"context"
	"sort"
	"sync"

	"github.com/microcosm-game/microcosm-server/errors"
	"github.com/microcosm-game/microcosm-server/games"
	"github.com/microcosm-game/microcosm-server/logging"
	"github.com/microcosm-game/microcosm-server/messages"
	"go.uber.org/zap"
)

// joinCodeAttempts is how often match creation retries join code collisions
// before giving up.
const joinCodeAttempts = 16

// EngineFactory creates the rules engine for a new match.
type EngineFactory func() games.Engine

// Registry keeps the live matches addressable by join code. Registry state
// only covers the join-code-to-match table; everything inside a match is
// owned by its games.Coordinator.
type Registry struct {
	// defaults are the match config defaults new matches are built from.
	defaults games.MatchConfig
	// engineFactory creates the rules engine per match.
	engineFactory EngineFactory
	// events receives lifecycle events of all matches.
	events chan<- games.LifecycleEvent

	// lifetime bounds the coordinator goroutines. Ended by Run on shutdown.
	lifetime context.Context
	// endLifetime cancels lifetime.
	endLifetime context.CancelFunc

	// m guards matches.
	m sync.Mutex
	// matches holds the live matches by join code.
	matches map[messages.MatchID]*games.Coordinator

	logger *zap.Logger
}

// NewRegistry creates a Registry that builds matches from the given defaults.
// Matches can be created right away; Run only takes care of shutdown.
func NewRegistry(defaults games.MatchConfig, engineFactory EngineFactory,
	events chan<- games.LifecycleEvent) *Registry {
	lifetime, endLifetime := context.WithCancel(context.Background())
	return &Registry{
		defaults:      defaults,
		engineFactory: engineFactory,
		events:        events,
		lifetime:      lifetime,
		endLifetime:   endLifetime,
		matches:       make(map[messages.MatchID]*games.Coordinator),
		logger:        logging.SessionLogger,
	}
}

// Run blocks until the given context is done, then ends the live matches and
// waits until all of them have stopped.
func (r *Registry) Run(ctx context.Context) {
	<-ctx.Done()
	r.endLifetime()
	r.m.Lock()
	remaining := make([]*games.Coordinator, 0, len(r.matches))
	for _, coordinator := range r.matches {
		remaining = append(remaining, coordinator)
	}
	r.m.Unlock()
	for _, coordinator := range remaining {
		<-coordinator.Done()
	}
}

// CreateMatch creates a match with a fresh join code and starts its
// coordinator.
func (r *Registry) CreateMatch(settings messages.MatchSettings) (*games.Coordinator, error) {
	config := games.ConfigFromSettings(settings, r.defaults)
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate match config", nil)
	}
	r.m.Lock()
	defer r.m.Unlock()
	joinCode, err := r.freeJoinCode()
	if err != nil {
		return nil, errors.Wrap(err, "get free join code", nil)
	}
	coordinator := games.NewCoordinator(joinCode, config, r.engineFactory(), r.events)
	r.matches[joinCode] = coordinator
	go coordinator.Run(r.lifetime)
	go r.removeWhenDone(coordinator)
	r.logger.Info("match created", zap.String("join_code", string(joinCode)),
		zap.String("name", config.Name), zap.Int("max_players", config.MaxPlayers))
	return coordinator, nil
}

// Match looks up the live match for the given join code.
func (r *Registry) Match(joinCode messages.MatchID) (*games.Coordinator, error) {
	r.m.Lock()
	defer r.m.Unlock()
	coordinator, ok := r.matches[joinCode]
	if !ok {
		return nil, errors.Error{
			Code:    errors.ErrNotFound,
			Kind:    errors.KindUnknownJoinCode,
			Message: "unknown join code",
			Details: errors.Details{"join_code": string(joinCode)},
		}
	}
	return coordinator, nil
}

// Lobbies lists the live matches sorted by join code.
func (r *Registry) Lobbies() []messages.LobbyDetails {
	r.m.Lock()
	coordinators := make([]*games.Coordinator, 0, len(r.matches))
	for _, coordinator := range r.matches {
		coordinators = append(coordinators, coordinator)
	}
	r.m.Unlock()
	lobbies := make([]messages.LobbyDetails, 0, len(coordinators))
	for _, coordinator := range coordinators {
		lobbies = append(lobbies, coordinator.Details())
	}
	sort.Slice(lobbies, func(i, j int) bool {
		return lobbies[i].JoinCode < lobbies[j].JoinCode
	})
	return lobbies
}

// MatchCount returns the count of live matches.
func (r *Registry) MatchCount() int {
	r.m.Lock()
	defer r.m.Unlock()
	return len(r.matches)
}

// freeJoinCode generates a join code that is not in use. Callers must hold
// the registry mutex.
func (r *Registry) freeJoinCode() (messages.MatchID, error) {
	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		joinCode, err := GenerateJoinCode()
		if err != nil {
			return "", errors.Wrap(err, "generate join code", nil)
		}
		if _, taken := r.matches[joinCode]; !taken {
			return joinCode, nil
		}
	}
	return "", errors.NewInternalError("no free join code found",
		errors.Details{"attempts": joinCodeAttempts, "live_matches": len(r.matches)})
}

func (r *Registry) removeWhenDone(coordinator *games.Coordinator) {
	<-coordinator.Done()
	r.m.Lock()
	defer r.m.Unlock()
	delete(r.matches, coordinator.JoinCode())
	r.logger.Info("match removed", zap.String("join_code", string(coordinator.JoinCode())),
		zap.Int("live_matches", len(r.matches)))
}
