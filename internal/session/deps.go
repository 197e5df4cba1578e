package session

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/siohaza/limbogate/internal/compat"
	"github.com/siohaza/limbogate/internal/metrics"
	"github.com/siohaza/limbogate/internal/proxy"
	"github.com/siohaza/limbogate/internal/world"
	"github.com/siohaza/limbogate/pkg/config"
)

var ErrSessionNotFound = errors.New("session not found")

// Display shows the join elements of a session and returns a func that
// clears exactly what it showed.
type Display interface {
	ShowJoin(p proxy.Player, cfg config.DisplayConfig) func()
}

type Deps struct {
	Factory    world.Factory
	Servers    proxy.ServerRegistry
	Dispatcher proxy.CommandDispatcher
	Shim       compat.Shim
	Display    Display
	// Scheduler is used when the engine does not hand out a per-player one.
	Scheduler proxy.Scheduler
	// Activity is called whenever a player shows activity in a session.
	Activity func(p proxy.Player)
	Metrics  *metrics.Metrics
	Clock    func() time.Time
	Logger   *slog.Logger
}

type Options struct {
	Messages config.MessagesConfig
	// DataDir resolves relative world file paths.
	DataDir string
	Debug   bool
}

// environment is the immutable view a generation of holdings is built with.
type environment struct {
	Deps
	Options
}

func newEnvironment(deps Deps, opts Options) *environment {
	if deps.Shim == nil {
		deps.Shim = compat.Unavailable{}
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = noDispatcher{}
	}
	if deps.Display == nil {
		deps.Display = noDisplay{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	def := config.DefaultMessages()
	if strings.TrimSpace(opts.Messages.CommandsDisabled) == "" {
		opts.Messages.CommandsDisabled = def.CommandsDisabled
	}
	if strings.TrimSpace(opts.Messages.CommandUnavailable) == "" {
		opts.Messages.CommandUnavailable = def.CommandUnavailable
	}
	if strings.TrimSpace(opts.Messages.CommandRequiresBackend) == "" {
		opts.Messages.CommandRequiresBackend = def.CommandRequiresBackend
	}
	if opts.Messages.CommandFailed == "" {
		opts.Messages.CommandFailed = def.CommandFailed
	}

	return &environment{Deps: deps, Options: opts}
}

func (e *environment) markActivity(p proxy.Player) {
	if e.Activity != nil {
		e.Activity(p)
	}
}

type noDispatcher struct{}

func (noDispatcher) Dispatch(p proxy.Player, line string, done func(error)) {
	done(errors.New("no command dispatcher configured"))
}

type noDisplay struct{}

func (noDisplay) ShowJoin(p proxy.Player, cfg config.DisplayConfig) func() {
	return func() {}
}
