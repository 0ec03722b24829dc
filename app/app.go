package app

import (
	"context"
	"os"
	"time"

	"github.com/microcosm-game/microcosm-server/errors"
	"github.com/microcosm-game/microcosm-server/eventbridge"
	"github.com/microcosm-game/microcosm-server/games"
	"github.com/microcosm-game/microcosm-server/logging"
	"github.com/microcosm-game/microcosm-server/portmap"
	"github.com/microcosm-game/microcosm-server/session"
	"github.com/microcosm-game/microcosm-server/web_server"
	"github.com/microcosm-game/microcosm-server/ws"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

// lifecycleEventBuffer is the capacity of the lifecycle event channel.
// Publishing never blocks matches; a slow bridge misses events.
const lifecycleEventBuffer = 256

// App is a complete Microcosm server instance.
type App struct {
	// config is the main config used for the App.
	config Config
	// webServer is used for http requests and websocket connections.
	webServer *web_server.WebServer
	// wsHub is the hub for websocket connections.
	wsHub *ws.Hub
	// registry keeps the live matches addressable by join code.
	registry *session.Registry
	// reception serves connected clients.
	reception *session.Reception
	// bootstrapper acquires the port mapping lease on the gateway.
	bootstrapper *portmap.Bootstrapper
	// bridge publishes match lifecycle events to MQTT.
	bridge eventbridge.Bridge
	// lifecycleEvents carries events from matches to the bridge.
	lifecycleEvents chan games.LifecycleEvent
}

func NewApp(config Config) *App {
	return &App{
		config: config,
	}
}

// Boot sets everything up based on the set config and boots.
func (app *App) Boot(ctx context.Context) error {
	// Validate config.
	err := ValidateConfig(app.config)
	if err != nil {
		return errors.Error{
			Code:    errors.ErrFatal,
			Err:     err,
			Message: "invalid config",
		}
	}
	// Setup logger.
	logger := setupLogging(app.config.Log)
	logging.ApplyToGlobalLoggers(logger)
	defer func() {
		_ = logger.Sync()
	}()
	// Boot.
	err = app.boot(ctx)
	if err != nil {
		err = errors.Wrap(err, "boot", nil)
		errors.Log(logging.AppLogger, err)
		return err
	}
	return nil
}

func (app *App) boot(ctx context.Context) error {
	logging.AppLogger.Warn("booting up")
	appCtx, shutdown := context.WithCancel(ctx)
	defer shutdown()
	logging.AppLogger.Debug("setting up...")
	// Create lifecycle event channel and MQTT bridge if an address is
	// provided.
	if app.config.MQTTAddr.Valid {
		app.lifecycleEvents = make(chan games.LifecycleEvent, lifecycleEventBuffer)
		bridge, err := eventbridge.NewBridge(eventbridge.Config{MQTTAddr: app.config.MQTTAddr.String})
		if err != nil {
			return errors.Wrap(err, "create event bridge", nil)
		}
		app.bridge = bridge
	}
	// Create match registry and reception.
	app.registry = session.NewRegistry(matchDefaults(app.config), func() games.Engine {
		return games.PassthroughEngine{}
	}, app.lifecycleEvents)
	app.reception = session.NewReception(app.registry)
	// Create websocket hub.
	app.wsHub = ws.NewHub(app.reception)
	// Create port mapping bootstrapper.
	if app.config.PortMapping.Enabled {
		app.bootstrapper = portmap.NewBootstrapper(portmap.DiscoverGateway)
	}
	// Create web server.
	webServer, err := web_server.NewWebServer(web_server.Config{
		ServeAddr:    app.config.ServeAddr,
		WriteTimeout: web_server.DefaultWriteTimeout,
		ReadTimeout:  web_server.DefaultReadTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "create web server", nil)
	}
	app.webServer = webServer
	app.webServer.PopulateRoutes(app.wsHub, app.registry, appCtx)
	logging.AppLogger.Debug("setup completed. booting...")
	// Boot everything.
	runners, runnersCtx := errgroup.WithContext(appCtx)
	runners.Go(func() error {
		app.registry.Run(runnersCtx)
		return nil
	})
	runners.Go(func() error {
		app.wsHub.Run(runnersCtx)
		return nil
	})
	runners.Go(func() error {
		if err := app.webServer.Run(runnersCtx); err != nil {
			return errors.Wrap(err, "run web server", nil)
		}
		return nil
	})
	if app.bridge != nil {
		runners.Go(func() error {
			if err := app.bridge.Run(runnersCtx, app.lifecycleEvents); err != nil && runnersCtx.Err() == nil {
				errors.Log(logging.AppLogger, errors.Wrap(err, "run event bridge", nil))
			}
			return nil
		})
	}
	if app.bootstrapper != nil {
		runners.Go(func() error {
			app.runPortMapping(runnersCtx)
			return nil
		})
	}
	logging.AppLogger.Warn("completed issuing boot commands")
	// Wait for exit.
	<-ctx.Done()
	logging.AppLogger.Warn("shutting down")
	shutdown()
	if err := runners.Wait(); err != nil {
		return errors.Wrap(err, "wait for runners", nil)
	}
	return nil
}

// runPortMapping acquires the port mapping lease and keeps renewing it until
// the given context is done. Mapping failures are logged and never prevent
// serving: without a lease the server is reachable on the LAN only.
func (app *App) runPortMapping(ctx context.Context) {
	port, err := servePort(app.config)
	if err != nil {
		errors.Log(logging.AppLogger, errors.Wrap(err, "determine port to map", nil))
		return
	}
	leaseDuration := time.Duration(app.config.PortMapping.LeaseDurationSec) * time.Second
	lease, err := app.bootstrapper.Acquire(ctx, uint16(port), leaseDuration)
	if err != nil {
		errors.Log(logging.AppLogger, errors.Wrap(err, "acquire port mapping lease", nil))
		return
	}
	logging.AppLogger.Info("port mapping lease acquired",
		zap.Uint16("external_port", lease.ExternalPort),
		zap.String("external_ip", lease.ExternalIP))
	app.bootstrapper.Renew(ctx)
	// Renew returned because the context is done; the lease was released on
	// the way out.
}

// setupLogging builds the application logger from the given LogConfig.
func setupLogging(config LogConfig) *zap.Logger {
	encConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	cores := make([]zapcore.Core, 0)
	// Setup stdout logger with colorful level output.
	stdOutEncConfig := encConfig
	stdOutEncConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(stdOutEncConfig),
		zapcore.Lock(os.Stdout),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= config.StdoutLogLevel
		})))
	// Setup error logger.
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(encConfig),
		zapcore.Lock(os.Stderr),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= zap.ErrorLevel
		})))
	// Setup high priority logger.
	if config.HighPriorityOutput.Valid {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: config.HighPriorityOutput.String,
				MaxSize:  config.MaxSize,
				MaxAge:   config.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.WarnLevel
			})))
	}
	// Setup debug logger.
	if config.DebugOutput.Valid {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: config.DebugOutput.String,
				MaxSize:  config.MaxSize,
				MaxAge:   config.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.DebugLevel
			})))
	}
	// Combine.
	return zap.New(zapcore.NewTee(cores...))
}
