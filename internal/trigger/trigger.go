// Package trigger decides when a connected player is moved into a holding
// session: after a period of inactivity or after a kick whose reason
// matches a fallback pattern.
package trigger

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siohaza/limbogate/internal/callbacks"
	"github.com/siohaza/limbogate/internal/metrics"
	"github.com/siohaza/limbogate/internal/proxy"
	"github.com/siohaza/limbogate/pkg/config"
)

type Sessions interface {
	SendToSession(p proxy.Player, name string) bool
	InSession(p proxy.Player) bool
}

type Deps struct {
	Sessions  Sessions
	Players   proxy.Players
	Scheduler proxy.Scheduler
	Clock     func() time.Time
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type Engine struct {
	callbacks.DefaultCallbacks

	deps Deps

	mu       sync.Mutex
	afk      config.AFKTrigger
	fallback config.FallbackTrigger
	patterns []*regexp.Regexp
	activity map[uuid.UUID]time.Time
	task     proxy.Task
}

func NewEngine(deps Deps, cfg config.TriggersConfig) *Engine {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	e := &Engine{
		deps:     deps,
		activity: make(map[uuid.UUID]time.Time),
	}
	e.Reconfigure(cfg)
	return e
}

// Reconfigure swaps in new trigger policies. Patterns are full-match and
// case-insensitive; invalid ones are skipped with a warning.
func (e *Engine) Reconfigure(cfg config.TriggersConfig) {
	patterns := make([]*regexp.Regexp, 0, len(cfg.Fallback.KickPatterns))
	for _, p := range cfg.Fallback.KickPatterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile("(?i)^(?:" + p + ")$")
		if err != nil {
			e.deps.Logger.Warn("invalid kick pattern, skipping", "pattern", p, "error", err)
			continue
		}
		patterns = append(patterns, re)
	}

	e.mu.Lock()
	e.afk = cfg.AFK
	e.fallback = cfg.Fallback
	e.patterns = patterns
	e.mu.Unlock()
}

// Start (re)starts the idle scan when the AFK trigger is enabled.
func (e *Engine) Start() {
	e.Stop()

	e.mu.Lock()
	afk := e.afk
	e.mu.Unlock()

	if !afk.Enabled {
		return
	}

	interval := time.Duration(max(1, afk.CheckInterval)) * time.Second
	task := e.deps.Scheduler.Every(interval, interval, e.scan)

	e.mu.Lock()
	e.task = task
	e.mu.Unlock()

	e.deps.Logger.Info("afk trigger started",
		"session", afk.Session,
		"idle", time.Duration(max(1, afk.IdleTime))*time.Second,
		"interval", interval,
	)
}

func (e *Engine) Stop() {
	e.mu.Lock()
	task := e.task
	e.task = nil
	e.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
}

func (e *Engine) MarkActivity(p proxy.Player) {
	now := e.deps.Clock()
	e.mu.Lock()
	e.activity[p.ID()] = now
	e.mu.Unlock()
}

func (e *Engine) LastActivity(p proxy.Player) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.activity[p.ID()]
	return t, ok
}

func (e *Engine) Remove(p proxy.Player) {
	e.mu.Lock()
	delete(e.activity, p.ID())
	e.mu.Unlock()
}

// ShouldFallback reports whether a kick with this reason should send the
// player to the fallback session.
func (e *Engine) ShouldFallback(reason string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.fallback.Enabled {
		return false
	}
	for _, re := range e.patterns {
		if re.MatchString(reason) {
			return true
		}
	}
	return false
}

func (e *Engine) scan() {
	e.mu.Lock()
	afk := e.afk
	e.mu.Unlock()

	idle := time.Duration(max(1, afk.IdleTime)) * time.Second
	now := e.deps.Clock()

	for _, p := range e.deps.Players.All() {
		if e.deps.Sessions.InSession(p) {
			continue
		}
		if afk.ExemptPermission != "" && p.HasPermission(afk.ExemptPermission) {
			continue
		}

		e.mu.Lock()
		last, ok := e.activity[p.ID()]
		if !ok {
			e.activity[p.ID()] = now
		}
		e.mu.Unlock()

		if !ok || now.Sub(last) < idle {
			continue
		}

		if e.deps.Sessions.SendToSession(p, afk.Session) {
			e.deps.Metrics.Triggered("afk")
			e.deps.Logger.Info("player idle, moved to holding session", "player", p.Name(), "session", afk.Session)
			if afk.Message != "" {
				p.SendMessage(afk.Message)
			}
		}

		e.mu.Lock()
		e.activity[p.ID()] = now
		e.mu.Unlock()
	}
}

// HandleKick redirects a kicked player to the fallback session and keeps
// them connected when the redirect succeeds.
func (e *Engine) HandleKick(ev *proxy.KickedEvent) bool {
	if !e.ShouldFallback(ev.Reason) {
		return false
	}

	e.mu.Lock()
	fallback := e.fallback
	e.mu.Unlock()

	if !e.deps.Sessions.SendToSession(ev.Player, fallback.Session) {
		return false
	}

	ev.Notify("")
	e.deps.Metrics.Triggered("fallback")
	e.deps.Logger.Info("kicked player moved to fallback session",
		"player", ev.Player.Name(),
		"server", ev.Server.Name,
		"reason", ev.Reason,
	)
	if fallback.Message != "" {
		ev.Player.SendMessage(fallback.Message)
	}
	return true
}

func (e *Engine) OnServerConnected(ev *proxy.ServerConnectedEvent) {
	e.MarkActivity(ev.Player)
}

func (e *Engine) OnChat(ev *proxy.ChatEvent) {
	e.MarkActivity(ev.Player)
}

func (e *Engine) OnKicked(ev *proxy.KickedEvent) {
	e.HandleKick(ev)
}

func (e *Engine) OnDisconnect(ev *proxy.DisconnectEvent) {
	e.Remove(ev.Player)
}
