package session

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/siohaza/limbogate/internal/proxy"
	"github.com/siohaza/limbogate/pkg/config"
)

type binding struct {
	session string
	holding *Holding
	handler *Handler
}

// Registry owns the holding sessions of the current generation and the
// player to session bindings.
type Registry struct {
	// spawnMu orders spawns and leaves so the last binding always matches
	// the handler the engine holds.
	spawnMu sync.Mutex

	mu         sync.RWMutex
	sessions   map[string]*Holding
	bindings   map[uuid.UUID]*binding
	generation uint64

	deps   Deps
	env    *environment
	logger *slog.Logger
}

func NewRegistry(deps Deps, opts Options) *Registry {
	env := newEnvironment(deps, opts)
	return &Registry{
		sessions: make(map[string]*Holding),
		bindings: make(map[uuid.UUID]*binding),
		deps:     deps,
		env:      env,
		logger:   env.Logger,
	}
}

// SetOptions replaces the options used by the next generation of sessions.
func (r *Registry) SetOptions(opts Options) {
	env := newEnvironment(r.deps, opts)
	r.mu.Lock()
	r.env = env
	r.mu.Unlock()
}

// LoadAll builds every enabled definition and swaps them in as a new
// generation. A definition that fails to build is logged and skipped.
func (r *Registry) LoadAll(defs map[string]config.SessionConfig) {
	r.mu.RLock()
	env := r.env
	r.mu.RUnlock()

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	built := make(map[string]*Holding, len(names))
	for _, name := range names {
		def := defs[name]
		if !def.Enabled {
			r.logger.Info("session disabled, skipping", "session", name)
			continue
		}

		h, err := newHolding(name, def, env)
		if err != nil {
			r.logger.Error("failed to build session", "session", name, "error", err)
			continue
		}
		built[name] = h
	}

	r.mu.Lock()
	old := r.sessions
	r.sessions = built
	r.generation++
	gen := r.generation
	r.mu.Unlock()

	for _, h := range old {
		h.dispose()
	}

	r.logger.Info("loaded holding sessions", "count", len(built), "generation", gen)
	r.publish()
}

// Reload detaches every occupant from the previous generation, loads the
// new definitions and moves occupants back into a session of the same name
// when one still exists.
func (r *Registry) Reload(defs map[string]config.SessionConfig) {
	r.mu.Lock()
	previous := r.bindings
	r.bindings = make(map[uuid.UUID]*binding)
	r.mu.Unlock()

	for _, b := range previous {
		b.handler.Detach()
	}

	r.LoadAll(defs)

	for _, b := range previous {
		p := b.handler.player
		if !p.IsActive() {
			continue
		}
		if _, ok := r.holding(b.session); !ok {
			r.logger.Warn("session removed by reload, player left in place", "player", p.Name(), "session", b.session)
			continue
		}
		r.SendToSession(p, b.session)
	}
}

func (r *Registry) holding(name string) (*Holding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[name]
	return h, ok
}

// SendToSession spawns p into the named session. A repeated call re-spawns
// the player and supersedes the earlier handler.
func (r *Registry) SendToSession(p proxy.Player, name string) bool {
	holding, ok := r.holding(name)
	if !ok {
		r.logger.Warn("unknown holding session", "session", name, "player", p.Name())
		r.deps.Metrics.RedirectFailed(name, "unknown_session")
		return false
	}

	handler := holding.newHandler(p, r.leave)

	r.spawnMu.Lock()
	defer r.spawnMu.Unlock()

	r.mu.Lock()
	previous := r.bindings[p.ID()]
	r.bindings[p.ID()] = &binding{session: name, holding: holding, handler: handler}
	r.mu.Unlock()

	if previous != nil {
		previous.handler.Detach()
	}

	if err := holding.spawnPlayer(handler); err != nil {
		r.logger.Error("failed to spawn player into session", "session", name, "player", p.Name(), "error", err)
		r.leave(handler)
		handler.Detach()
		r.deps.Metrics.RedirectFailed(name, "spawn_failed")
		return false
	}

	r.deps.Metrics.Redirect(name)
	r.publish()
	return true
}

// leave drops the binding only if it still belongs to h.
func (r *Registry) leave(h *Handler) {
	r.mu.Lock()
	if b, ok := r.bindings[h.player.ID()]; ok && b.handler == h {
		delete(r.bindings, h.player.ID())
	}
	r.mu.Unlock()
	r.publish()
}

// OnPlayerLeft forgets the player regardless of which handler is bound.
func (r *Registry) OnPlayerLeft(p proxy.Player) {
	r.spawnMu.Lock()
	defer r.spawnMu.Unlock()

	r.mu.Lock()
	b := r.bindings[p.ID()]
	delete(r.bindings, p.ID())
	r.mu.Unlock()

	if b != nil {
		b.handler.release(StateDisconnected)
	}
	r.publish()
}

// lookup treats a binding into a holding that is no longer registered as
// absent.
func (r *Registry) lookup(p proxy.Player) (*binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[p.ID()]
	if !ok || r.sessions[b.session] != b.holding {
		return nil, false
	}
	return b, true
}

func (r *Registry) Session(name string) (*Holding, error) {
	h, ok := r.holding(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	return h, nil
}

// FindSession resolves name case-insensitively.
func (r *Registry) FindSession(name string) (*Holding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.sessions[name]; ok {
		return h, true
	}
	for key, h := range r.sessions {
		if strings.EqualFold(key, name) {
			return h, true
		}
	}
	return nil, false
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

func (r *Registry) PlayerSession(p proxy.Player) (string, bool) {
	b, ok := r.lookup(p)
	if !ok {
		return "", false
	}
	return b.session, true
}

func (r *Registry) InSession(p proxy.Player) bool {
	_, ok := r.lookup(p)
	return ok
}

func (r *Registry) Handler(p proxy.Player) (*Handler, bool) {
	b, ok := r.lookup(p)
	if !ok {
		return nil, false
	}
	return b.handler, true
}

func (r *Registry) PlayerCount(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.sessions[name]
	if !ok {
		return 0
	}
	n := 0
	for _, b := range r.bindings {
		if b.holding == h {
			n++
		}
	}
	return n
}

// Occupancy counts players per session of the current generation.
func (r *Registry) Occupancy() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int, len(r.sessions))
	for name := range r.sessions {
		counts[name] = 0
	}
	for _, b := range r.bindings {
		if r.sessions[b.session] == b.holding {
			counts[b.session]++
		}
	}
	return counts
}

func (r *Registry) TotalPlayers() int {
	total := 0
	for _, n := range r.Occupancy() {
		total += n
	}
	return total
}

func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

func (r *Registry) publish() {
	r.deps.Metrics.SetOccupancy(r.Occupancy())
}

// Close detaches every occupant and disposes all sessions.
func (r *Registry) Close() {
	r.mu.Lock()
	bindings := r.bindings
	sessions := r.sessions
	r.bindings = make(map[uuid.UUID]*binding)
	r.sessions = make(map[string]*Holding)
	r.mu.Unlock()

	for _, b := range bindings {
		b.handler.Detach()
	}
	for _, h := range sessions {
		h.dispose()
	}
}
