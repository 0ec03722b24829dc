package logging

import "go.uber.org/zap"

// Loggers.
var (
	// AppLogger is the main app.App logger.
	AppLogger *zap.Logger
	// GamesLogger is the logger for package games.
	GamesLogger *zap.Logger
	// MessageLogger is used for all incoming and outgoing messages.
	MessageLogger *zap.Logger
	// SessionLogger is the logger for the session registry.
	SessionLogger *zap.Logger
	// PortMapLogger is used for all stuff regarding port mapping.
	PortMapLogger *zap.Logger
	// ReplicaLogger is the logger for client-side state reconciliation.
	ReplicaLogger *zap.Logger
	// WebServerLogger is used for all stuff regarding web servers.
	WebServerLogger *zap.Logger
	// WSLogger is used for all stuff regarding websocket connections.
	WSLogger *zap.Logger
	// BridgeLogger is the logger for the MQTT event bridge.
	BridgeLogger *zap.Logger
)

func init() {
	// Loggers need to be usable before the app applies the real one, mainly in
	// tests.
	ApplyToGlobalLoggers(zap.NewNop())
}

// ApplyToGlobalLoggers applies the given zap.Logger to all global loggers with
// their topic set as logger name.
func ApplyToGlobalLoggers(logger *zap.Logger) {
	AppLogger = logger.Named("app")
	GamesLogger = logger.Named("games")
	MessageLogger = logger.Named("message")
	SessionLogger = logger.Named("session")
	PortMapLogger = logger.Named("portmap")
	ReplicaLogger = logger.Named("replica")
	WebServerLogger = logger.Named("web-server")
	WSLogger = logger.Named("ws")
	BridgeLogger = logger.Named("bridge")
}
