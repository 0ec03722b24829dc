package app

import (
	"encoding/json"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/gobuffalo/nulls"
	"github.com/microcosm-game/microcosm-server/errors"
	"github.com/microcosm-game/microcosm-server/games"
	"github.com/microcosm-game/microcosm-server/web_server"
	"go.uber.org/zap/zapcore"
)

// defaultLogMaxSize is the maximum size in megabytes of a log file before it
// gets rotated.
const defaultLogMaxSize = 64

// defaultLogKeepDays is how many days rotated log files are kept.
const defaultLogKeepDays = 14

// defaultLeaseDuration is the port mapping lease duration requested from the
// gateway.
const defaultLeaseDuration = time.Hour

// defaultReconnectGrace is how long disconnected player slots are kept for
// reclaiming.
const defaultReconnectGrace = 30 * time.Second

// LogConfig is the configuration for logging.
type LogConfig struct {
	// StdoutLogLevel is the minimum level for stdout logging.
	StdoutLogLevel zapcore.Level `json:"stdout_log_level"`
	// HighPriorityOutput is an optional file that warnings and errors are
	// written to with rotation.
	HighPriorityOutput nulls.String `json:"high_priority_output"`
	// DebugOutput is an optional file that all log output is written to with
	// rotation.
	DebugOutput nulls.String `json:"debug_output"`
	// MaxSize is the maximum size in megabytes of a log file before rotation.
	MaxSize int `json:"max_size"`
	// KeepDays is how many days rotated log files are kept.
	KeepDays int `json:"keep_days"`
}

// PortMappingConfig is the configuration for NAT traversal via the gateway.
type PortMappingConfig struct {
	// Enabled determines whether a port mapping lease is requested at boot.
	Enabled bool `json:"enabled"`
	// InternalPort is an optional override for the port to map. Defaults to
	// the port from Config.ServeAddr.
	InternalPort nulls.Int `json:"internal_port"`
	// LeaseDurationSec is the requested lease duration in seconds.
	LeaseDurationSec int `json:"lease_duration_sec"`
}

// MatchDefaultsConfig holds server-side defaults for created matches.
type MatchDefaultsConfig struct {
	// MaxPlayers is an optional default player capacity.
	MaxPlayers nulls.Int `json:"max_players"`
	// TurnTimeoutSec is an optional default turn timeout in seconds.
	TurnTimeoutSec nulls.Int `json:"turn_timeout_sec"`
	// ReconnectGraceSec is an optional grace in seconds for disconnected
	// players to reclaim their slot.
	ReconnectGraceSec nulls.Int `json:"reconnect_grace_sec"`
	// AllowSoloStart permits starting matches with only the host present.
	AllowSoloStart bool `json:"allow_solo_start"`
}

// Config is the configuration needed in order to boot an App.
type Config struct {
	// ServeAddr is the address, the app will listen for connections on.
	ServeAddr string `json:"serve_addr"`
	// MQTTAddr is an optional address of an MQTT broker that match lifecycle
	// events are published to.
	MQTTAddr nulls.String `json:"mqtt_addr"`
	// PortMapping configures NAT traversal.
	PortMapping PortMappingConfig `json:"port_mapping"`
	// Match holds defaults for created matches.
	Match MatchDefaultsConfig `json:"match"`
	// Log configures logging.
	Log LogConfig `json:"log"`
}

// LoadConfigFromFile reads and parses the Config from the given JSON file.
func LoadConfigFromFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.NewInternalErrorFromErr(err, "read config file",
			errors.Details{"path": path})
	}
	var config Config
	if err := json.Unmarshal(raw, &config); err != nil {
		return Config{}, errors.NewInternalErrorFromErr(err, "parse config file",
			errors.Details{"path": path})
	}
	applyConfigDefaults(&config)
	return config, nil
}

func applyConfigDefaults(config *Config) {
	if config.ServeAddr == "" {
		config.ServeAddr = web_server.DefaultServeAddr
	}
	if config.Log.MaxSize == 0 {
		config.Log.MaxSize = defaultLogMaxSize
	}
	if config.Log.KeepDays == 0 {
		config.Log.KeepDays = defaultLogKeepDays
	}
	if config.PortMapping.LeaseDurationSec == 0 {
		config.PortMapping.LeaseDurationSec = int(defaultLeaseDuration / time.Second)
	}
}

// ValidateConfig checks the Config for usable values.
func ValidateConfig(config Config) error {
	if config.ServeAddr == "" {
		return errors.Error{
			Code:    errors.ErrBadRequest,
			Message: "no serve addr provided",
		}
	}
	if _, _, err := net.SplitHostPort(config.ServeAddr); err != nil {
		return errors.NewInternalErrorFromErr(err, "invalid serve addr",
			errors.Details{"serve_addr": config.ServeAddr})
	}
	if config.PortMapping.Enabled {
		if _, err := servePort(config); err != nil {
			return errors.Wrap(err, "determine port to map", nil)
		}
		if config.PortMapping.LeaseDurationSec <= 0 {
			return errors.Error{
				Code:    errors.ErrBadRequest,
				Message: "port mapping lease duration must be positive",
				Details: errors.Details{"lease_duration_sec": config.PortMapping.LeaseDurationSec},
			}
		}
	}
	if err := matchDefaults(config).Validate(); err != nil {
		return errors.Wrap(err, "validate match defaults", nil)
	}
	return nil
}

// servePort returns the port that clients connect on, preferring the port
// mapping override.
func servePort(config Config) (int, error) {
	if config.PortMapping.InternalPort.Valid {
		return config.PortMapping.InternalPort.Int, nil
	}
	_, portRaw, err := net.SplitHostPort(config.ServeAddr)
	if err != nil {
		return 0, errors.NewInternalErrorFromErr(err, "split serve addr",
			errors.Details{"serve_addr": config.ServeAddr})
	}
	port, err := strconv.Atoi(portRaw)
	if err != nil {
		return 0, errors.NewInternalErrorFromErr(err, "parse serve port",
			errors.Details{"port": portRaw})
	}
	return port, nil
}

// matchDefaults builds the games.MatchConfig defaults from the Config.
func matchDefaults(config Config) games.MatchConfig {
	defaults := games.MatchConfig{
		MaxPlayers:     games.DefaultMaxPlayers,
		TurnTimeout:    games.DefaultTurnTimeout,
		ReconnectGrace: defaultReconnectGrace,
		AllowSoloStart: config.Match.AllowSoloStart,
	}
	if config.Match.MaxPlayers.Valid {
		defaults.MaxPlayers = config.Match.MaxPlayers.Int
	}
	if config.Match.TurnTimeoutSec.Valid {
		defaults.TurnTimeout = time.Duration(config.Match.TurnTimeoutSec.Int) * time.Second
	}
	if config.Match.ReconnectGraceSec.Valid {
		defaults.ReconnectGrace = time.Duration(config.Match.ReconnectGraceSec.Int) * time.Second
	}
	return defaults
}
