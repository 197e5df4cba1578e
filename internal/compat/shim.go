// Package compat provides the fake backend identity adapter. Plugins that
// ask the proxy for a player's current server would otherwise see nothing
// while the player sits in a limbo.
package compat

import (
	"sync"

	"github.com/google/uuid"
	"github.com/siohaza/limbogate/internal/proxy"
)

type Shim interface {
	Available() bool
	Inject(p proxy.Player, server proxy.ServerInfo) bool
	Clear(p proxy.Player) bool
}

// Unavailable is used when the runtime offers no way to fake a connection.
type Unavailable struct{}

func (Unavailable) Available() bool                                { return false }
func (Unavailable) Inject(p proxy.Player, s proxy.ServerInfo) bool { return false }
func (Unavailable) Clear(p proxy.Player) bool                      { return false }

// Overlay records injected identities and answers current-server lookups
// for runtimes that route such lookups through limbogate.
type Overlay struct {
	mu      sync.RWMutex
	servers map[uuid.UUID]proxy.ServerInfo
}

func NewOverlay() *Overlay {
	return &Overlay{
		servers: make(map[uuid.UUID]proxy.ServerInfo),
	}
}

func (o *Overlay) Available() bool {
	return true
}

func (o *Overlay) Inject(p proxy.Player, server proxy.ServerInfo) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.servers[p.ID()] = server
	return true
}

func (o *Overlay) Clear(p proxy.Player) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.servers[p.ID()]; !ok {
		return false
	}
	delete(o.servers, p.ID())
	return true
}

func (o *Overlay) CurrentServer(id uuid.UUID) (proxy.ServerInfo, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s, ok := o.servers[id]
	return s, ok
}

func (o *Overlay) Count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.servers)
}
