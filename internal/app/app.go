// Package app wires the holding-session layer together: sessions,
// triggers, alias interception, display, scripting and the admin command,
// all hanging off one callback chain the proxy runtime feeds events into.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/siohaza/limbogate/internal/admin"
	"github.com/siohaza/limbogate/internal/bridge"
	"github.com/siohaza/limbogate/internal/callbacks"
	"github.com/siohaza/limbogate/internal/compat"
	"github.com/siohaza/limbogate/internal/display"
	"github.com/siohaza/limbogate/internal/metrics"
	"github.com/siohaza/limbogate/internal/proxy"
	"github.com/siohaza/limbogate/internal/scheduler"
	"github.com/siohaza/limbogate/internal/session"
	"github.com/siohaza/limbogate/internal/trigger"
	"github.com/siohaza/limbogate/internal/world"
	"github.com/siohaza/limbogate/pkg/config"
	"github.com/siohaza/limbogate/pkg/lua"
)

var ErrNoConfigPath = errors.New("no config path to reload from")

// Deps are the proxy runtime and holding-world engine the layer runs on.
type Deps struct {
	Players proxy.Players
	Servers proxy.ServerRegistry
	// Scheduler defaults to a timer based scheduler owned by the App.
	Scheduler proxy.Scheduler
	Engine    world.Factory
	Shim      compat.Shim
	// Dispatcher runs whitelisted commands. Defaults to the Lua command
	// scripts found in the configured commands directory.
	Dispatcher proxy.CommandDispatcher
	Registerer prometheus.Registerer
	Clock      func() time.Time
	ConfigPath string
	Logger     *slog.Logger
}

type App struct {
	deps           Deps
	ownedScheduler *scheduler.Scheduler
	logger         *slog.Logger

	mu  sync.Mutex
	cfg *config.Config

	metrics  *metrics.Metrics
	display  *display.Manager
	registry *session.Registry
	triggers *trigger.Engine
	bridge   *bridge.Interceptor
	api      *lua.API
	commands *lua.CommandManager
	admin    *admin.Command
	chain    *callbacks.CallbackChain
}

func New(cfg *config.Config, deps Deps) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("world engine is required")
	}
	if deps.Players == nil || deps.Servers == nil {
		return nil, errors.New("player and server registries are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Shim == nil {
		deps.Shim = compat.Unavailable{}
	}

	a := &App{
		deps:   deps,
		logger: deps.Logger,
		cfg:    cfg,
	}

	if deps.Scheduler == nil {
		a.ownedScheduler = scheduler.New(deps.Logger)
		a.deps.Scheduler = a.ownedScheduler
	}
	sched := a.deps.Scheduler

	a.metrics = metrics.New(deps.Registerer)
	a.display = display.NewManager(sched, deps.Logger.With("component", "display"))
	a.commands = lua.NewCommandManager(deps.Logger.With("component", "lua"))

	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = a.commands
	}

	a.registry = session.NewRegistry(session.Deps{
		Factory:    deps.Engine,
		Servers:    deps.Servers,
		Dispatcher: dispatcher,
		Shim:       deps.Shim,
		Display:    a.display,
		Scheduler:  sched,
		Activity:   a.markActivity,
		Metrics:    a.metrics,
		Clock:      deps.Clock,
		Logger:     deps.Logger.With("component", "session"),
	}, sessionOptions(cfg))

	a.triggers = trigger.NewEngine(trigger.Deps{
		Sessions:  a.registry,
		Players:   deps.Players,
		Scheduler: sched,
		Clock:     deps.Clock,
		Metrics:   a.metrics,
		Logger:    deps.Logger.With("component", "trigger"),
	}, cfg.Triggers)

	a.bridge = bridge.NewInterceptor(bridge.Deps{
		Sessions:  a.registry,
		Servers:   deps.Servers,
		Scheduler: sched,
		Shim:      deps.Shim,
		Logger:    deps.Logger.With("component", "bridge"),
	}, cfg.Bridge)

	luaDeps := lua.Deps{
		Players:         deps.Players,
		Servers:         deps.Servers,
		Sessions:        a.registry,
		Scheduler:       sched,
		FirstRealServer: a.bridge.FirstRealServer,
		Clock:           deps.Clock,
		Logger:          deps.Logger.With("component", "lua"),
	}
	if overlay, ok := deps.Shim.(*compat.Overlay); ok {
		luaDeps.CurrentServer = overlay.CurrentServer
	}
	a.api = lua.NewAPI(luaDeps)

	a.admin = admin.NewCommand(admin.Deps{
		Sessions:   a.registry,
		Players:    deps.Players,
		Reload:     a.Reload,
		Permission: cfg.Admin.Permission,
		Logger:     deps.Logger.With("component", "admin"),
	})

	a.chain = callbacks.NewCallbackChain()
	a.chain.RegisterWithPriority(callbacks.First, a.bridge)
	a.chain.RegisterWithPriority(callbacks.Normal, a.triggers)
	a.chain.RegisterWithPriority(callbacks.Normal, &lifecycle{app: a})
	a.chain.RegisterWithPriority(callbacks.Last, a.bridge.Releaser())

	return a, nil
}

func sessionOptions(cfg *config.Config) session.Options {
	return session.Options{
		Messages: cfg.Messages,
		DataDir:  cfg.DataDir,
		Debug:    cfg.Debug,
	}
}

func (a *App) markActivity(p proxy.Player) {
	a.triggers.MarkActivity(p)
}

func (a *App) commandsDir(cfg *config.Config) string {
	if filepath.IsAbs(cfg.CommandsDir) {
		return cfg.CommandsDir
	}
	return filepath.Join(cfg.DataDir, cfg.CommandsDir)
}

// Start builds every session, registers the bridge aliases, starts the AFK
// scan and loads command scripts.
func (a *App) Start() error {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()

	start := a.deps.Clock()

	a.registry.LoadAll(cfg.Sessions)
	if len(a.registry.Names()) == 0 {
		return errors.New("no session could be built")
	}

	registered := a.bridge.RegisterAliases()
	a.triggers.Start()

	if err := a.commands.LoadCommands(a.commandsDir(cfg), a.api); err != nil {
		a.logger.Warn("failed to load lua commands", "error", err)
	}

	for _, w := range cfg.Warnings() {
		a.logger.Warn(w)
	}

	a.logger.Info("limbogate started",
		"sessions", len(a.registry.Names()),
		"aliases", registered,
		"commands", a.commands.Count(),
	)
	if cfg.Debug {
		a.logger.Debug("startup finished", "elapsed", a.deps.Clock().Sub(start))
	}
	return nil
}

func (a *App) Stop() {
	a.triggers.Stop()
	a.bridge.UnregisterAliases()
	a.display.ClearAll()
	a.registry.Close()
	a.commands.Close()
	if a.ownedScheduler != nil {
		a.ownedScheduler.Stop()
	}
	a.logger.Info("limbogate stopped")
}

// Reload reads the config file again and applies it.
func (a *App) Reload() error {
	if a.deps.ConfigPath == "" {
		return ErrNoConfigPath
	}

	cfg, err := config.LoadConfig(a.deps.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return a.Apply(cfg)
}

// Apply swaps in cfg. Occupants of sessions that survive are moved into
// the rebuilt session of the same name.
func (a *App) Apply(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()

	a.display.ClearAll()
	a.triggers.Stop()
	a.bridge.UnregisterAliases()

	a.triggers.Reconfigure(cfg.Triggers)
	a.bridge.Reconfigure(cfg.Bridge)

	a.registry.SetOptions(sessionOptions(cfg))
	a.registry.Reload(cfg.Sessions)

	a.bridge.RegisterAliases()
	a.triggers.Start()

	if err := a.commands.Reload(a.commandsDir(cfg), a.api); err != nil {
		a.logger.Warn("failed to reload lua commands", "error", err)
	}

	a.admin.SetPermission(cfg.Admin.Permission)

	for _, w := range cfg.Warnings() {
		a.logger.Warn(w)
	}
	a.logger.Info("limbogate reloaded", "sessions", len(a.registry.Names()), "generation", a.registry.Generation())
	return nil
}

func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Callbacks is what the proxy runtime delivers its events to.
func (a *App) Callbacks() callbacks.Callbacks { return a.chain }
func (a *App) Admin() *admin.Command          { return a.admin }
func (a *App) Registry() *session.Registry    { return a.registry }
func (a *App) Bridge() *bridge.Interceptor    { return a.bridge }
func (a *App) Triggers() *trigger.Engine      { return a.triggers }
func (a *App) Commands() *lua.CommandManager  { return a.commands }
func (a *App) Display() *display.Manager      { return a.display }

// lifecycle drops per-player state once the player leaves the proxy.
type lifecycle struct {
	callbacks.DefaultCallbacks
	app *App
}

func (l *lifecycle) OnDisconnect(ev *proxy.DisconnectEvent) {
	l.app.display.ClearPlayer(ev.Player)
	l.app.registry.OnPlayerLeft(ev.Player)
}
