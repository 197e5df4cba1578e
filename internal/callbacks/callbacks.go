package callbacks

import (
	"sort"
	"sync"

	"github.com/siohaza/limbogate/internal/proxy"
)

// Priority orders callbacks within a chain. Lower values run first.
type Priority int

const (
	First Priority = iota - 1
	Normal
	Last
)

type Callbacks interface {
	OnInitialServer(ev *proxy.InitialServerEvent)
	OnPreConnect(ev *proxy.PreConnectEvent)
	OnServerConnected(ev *proxy.ServerConnectedEvent)
	OnKicked(ev *proxy.KickedEvent)
	OnChat(ev *proxy.ChatEvent)
	OnDisconnect(ev *proxy.DisconnectEvent)
}

type DefaultCallbacks struct{}

func (d *DefaultCallbacks) OnInitialServer(ev *proxy.InitialServerEvent)     {}
func (d *DefaultCallbacks) OnPreConnect(ev *proxy.PreConnectEvent)           {}
func (d *DefaultCallbacks) OnServerConnected(ev *proxy.ServerConnectedEvent) {}
func (d *DefaultCallbacks) OnKicked(ev *proxy.KickedEvent)                   {}
func (d *DefaultCallbacks) OnChat(ev *proxy.ChatEvent)                       {}
func (d *DefaultCallbacks) OnDisconnect(ev *proxy.DisconnectEvent)           {}

type entry struct {
	priority Priority
	cb       Callbacks
}

// CallbackChain fans proxy events out to every registered callback in
// priority order. Callbacks of equal priority run in registration order.
type CallbackChain struct {
	mu        sync.RWMutex
	callbacks []entry
}

func NewCallbackChain() *CallbackChain {
	return &CallbackChain{
		callbacks: make([]entry, 0),
	}
}

func (c *CallbackChain) Register(cb Callbacks) {
	c.RegisterWithPriority(Normal, cb)
}

func (c *CallbackChain) RegisterWithPriority(priority Priority, cb Callbacks) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// copy so dispatches iterating the old slice are unaffected
	next := make([]entry, 0, len(c.callbacks)+1)
	next = append(next, c.callbacks...)
	next = append(next, entry{priority: priority, cb: cb})
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].priority < next[j].priority
	})
	c.callbacks = next
}

func (c *CallbackChain) snapshot() []entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.callbacks
}

func (c *CallbackChain) OnInitialServer(ev *proxy.InitialServerEvent) {
	for _, e := range c.snapshot() {
		e.cb.OnInitialServer(ev)
	}
}

func (c *CallbackChain) OnPreConnect(ev *proxy.PreConnectEvent) {
	for _, e := range c.snapshot() {
		e.cb.OnPreConnect(ev)
	}
}

func (c *CallbackChain) OnServerConnected(ev *proxy.ServerConnectedEvent) {
	for _, e := range c.snapshot() {
		e.cb.OnServerConnected(ev)
	}
}

func (c *CallbackChain) OnKicked(ev *proxy.KickedEvent) {
	for _, e := range c.snapshot() {
		e.cb.OnKicked(ev)
	}
}

func (c *CallbackChain) OnChat(ev *proxy.ChatEvent) {
	for _, e := range c.snapshot() {
		e.cb.OnChat(ev)
	}
}

func (c *CallbackChain) OnDisconnect(ev *proxy.DisconnectEvent) {
	for _, e := range c.snapshot() {
		e.cb.OnDisconnect(ev)
	}
}
