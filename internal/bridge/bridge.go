// Package bridge exposes holding sessions as virtual backend names and
// hijacks connection attempts to those names before any network I/O.
package bridge

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/siohaza/limbogate/internal/callbacks"
	"github.com/siohaza/limbogate/internal/compat"
	"github.com/siohaza/limbogate/internal/proxy"
	"github.com/siohaza/limbogate/internal/session"
	"github.com/siohaza/limbogate/pkg/config"
)

// initialDelay lets the login finish before the player is spawned.
const initialDelay = 50 * time.Millisecond

type Sessions interface {
	SendToSession(p proxy.Player, name string) bool
	InSession(p proxy.Player) bool
	Handler(p proxy.Player) (*session.Handler, bool)
}

type Deps struct {
	Sessions  Sessions
	Servers   proxy.ServerRegistry
	Scheduler proxy.Scheduler
	Shim      compat.Shim
	Logger    *slog.Logger
}

type Interceptor struct {
	callbacks.DefaultCallbacks

	deps Deps

	mu         sync.RWMutex
	cfg        config.BridgeConfig
	registered []string
	overridden []proxy.ServerInfo
}

func NewInterceptor(deps Deps, cfg config.BridgeConfig) *Interceptor {
	if deps.Shim == nil {
		deps.Shim = compat.Unavailable{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Interceptor{deps: deps, cfg: cfg}
}

// Reconfigure replaces the bridge policy. Aliases registered under the old
// policy stay until UnregisterAliases is called.
func (i *Interceptor) Reconfigure(cfg config.BridgeConfig) {
	i.mu.Lock()
	i.cfg = cfg
	i.mu.Unlock()
}

// RegisterAliases adds a placeholder server for every configured alias and
// returns how many were registered.
func (i *Interceptor) RegisterAliases() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	cfg := i.cfg
	if !cfg.Enabled || !cfg.RegisterAliases {
		return 0
	}

	aliases := make([]string, 0, len(cfg.Aliases))
	for alias := range cfg.Aliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	port := max(1, cfg.StartPort)
	count := 0
	for _, alias := range aliases {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}

		if existing, ok := i.deps.Servers.Server(alias); ok {
			if cfg.OverrideExisting && i.deps.Servers.Unregister(alias) {
				i.deps.Logger.Warn("overriding existing server with limbo alias", "alias", alias, "server", existing)
				i.overridden = append(i.overridden, existing)
			}
			if _, still := i.deps.Servers.Server(alias); still {
				i.deps.Logger.Warn("server already exists, skipping limbo alias", "alias", alias)
				continue
			}
		}

		info := proxy.ServerInfo{Name: alias, Host: cfg.Host, Port: port}
		port++
		if err := i.deps.Servers.Register(info); err != nil {
			i.deps.Logger.Warn("failed to register limbo alias", "alias", alias, "error", err)
			continue
		}
		i.registered = append(i.registered, alias)
		count++
	}

	if count > 0 {
		i.deps.Logger.Info("registered limbo aliases", "count", count)
	}
	return count
}

// UnregisterAliases removes every alias this interceptor added and puts
// back servers it overrode. Calling it twice is harmless.
func (i *Interceptor) UnregisterAliases() {
	i.mu.Lock()
	registered := i.registered
	overridden := i.overridden
	i.registered = nil
	i.overridden = nil
	i.mu.Unlock()

	for _, alias := range registered {
		i.deps.Servers.Unregister(alias)
	}
	for _, info := range overridden {
		if err := i.deps.Servers.Register(info); err != nil {
			i.deps.Logger.Warn("failed to restore overridden server", "server", info.Name, "error", err)
		}
	}
}

func (i *Interceptor) Registered() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]string(nil), i.registered...)
}

// ResolveSession maps a backend name to the session its alias targets.
func (i *Interceptor) ResolveSession(name string) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if !i.cfg.Enabled {
		return "", false
	}
	for alias, target := range i.cfg.Aliases {
		if strings.EqualFold(strings.TrimSpace(alias), name) {
			return target, true
		}
	}
	return "", false
}

func (i *Interceptor) IsManagedAlias(name string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()

	for _, alias := range i.registered {
		if strings.EqualFold(alias, name) {
			return true
		}
	}
	return false
}

// FirstRealServer returns the first catalog entry that is not one of our
// placeholders.
func (i *Interceptor) FirstRealServer() (proxy.ServerInfo, bool) {
	for _, info := range i.deps.Servers.Servers() {
		if !i.IsManagedAlias(info.Name) {
			return info, true
		}
	}
	return proxy.ServerInfo{}, false
}

func (i *Interceptor) OnInitialServer(ev *proxy.InitialServerEvent) {
	if ev.Server == nil {
		return
	}
	name, ok := i.ResolveSession(ev.Server.Name)
	if !ok {
		return
	}

	ev.ClearInitialServer()
	p := ev.Player
	i.deps.Scheduler.After(initialDelay, func() {
		if !p.IsActive() {
			return
		}
		i.deps.Sessions.SendToSession(p, name)
	})
}

func (i *Interceptor) OnPreConnect(ev *proxy.PreConnectEvent) {
	if !ev.Allowed() {
		return
	}
	name, ok := i.ResolveSession(ev.Target.Name)
	if !ok {
		return
	}
	if i.deps.Sessions.SendToSession(ev.Player, name) {
		ev.Deny()
	}
}

// OnPreConnectRelease moves a player out of a holding session towards a
// real backend. It must run after every other pre-connect callback.
func (i *Interceptor) OnPreConnectRelease(ev *proxy.PreConnectEvent) {
	p := ev.Player
	if !ev.Allowed() || !i.deps.Sessions.InSession(p) {
		return
	}

	h, ok := i.deps.Sessions.Handler(p)
	if !ok {
		i.deps.Logger.Warn("player in session without a handler", "player", p.Name())
		i.deps.Shim.Clear(p)
		return
	}
	if _, spawned := h.LimboPlayer(); !spawned {
		i.deps.Logger.Warn("player not spawned yet, letting the proxy connect", "player", p.Name())
		i.deps.Shim.Clear(p)
		return
	}

	ev.Deny()
	i.deps.Shim.Clear(p)
	h.Transfer(ev.Target)
}

// Releaser returns the callback that must be registered with Last priority.
func (i *Interceptor) Releaser() callbacks.Callbacks {
	return &releaser{i: i}
}

type releaser struct {
	callbacks.DefaultCallbacks
	i *Interceptor
}

func (r *releaser) OnPreConnect(ev *proxy.PreConnectEvent) {
	r.i.OnPreConnectRelease(ev)
}
