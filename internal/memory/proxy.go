// Package memory is an in-process proxy runtime and holding-world engine.
// It backs dry runs of the CLI and the package tests.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/siohaza/limbogate/internal/proxy"
)

type Player struct {
	mu sync.Mutex

	id          uuid.UUID
	name        string
	active      bool
	permissions map[string]bool

	messages    []string
	actionBars  []string
	titles      []proxy.Title
	bossBars    map[*proxy.BossBar]bool
	completions map[string]int
	connects    []proxy.ServerInfo

	// ConnectResult decides the outcome of ConnectTo. Nil means success.
	ConnectResult func(target proxy.ServerInfo) proxy.ConnectResult
}

func NewPlayer(name string) *Player {
	return &Player{
		id:          uuid.NewSHA1(uuid.NameSpaceOID, []byte("limbogate:"+name)),
		name:        name,
		active:      true,
		permissions: make(map[string]bool),
		bossBars:    make(map[*proxy.BossBar]bool),
		completions: make(map[string]int),
	}
}

func (p *Player) ID() uuid.UUID { return p.id }
func (p *Player) Name() string  { return p.name }

func (p *Player) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Player) SetActive(active bool) {
	p.mu.Lock()
	p.active = active
	p.mu.Unlock()
}

func (p *Player) Grant(permission string) {
	p.mu.Lock()
	p.permissions[permission] = true
	p.mu.Unlock()
}

func (p *Player) HasPermission(permission string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permissions[permission]
}

func (p *Player) SendMessage(message string) {
	p.mu.Lock()
	p.messages = append(p.messages, message)
	p.mu.Unlock()
}

func (p *Player) SendActionBar(message string) {
	p.mu.Lock()
	p.actionBars = append(p.actionBars, message)
	p.mu.Unlock()
}

func (p *Player) ShowTitle(title proxy.Title) {
	p.mu.Lock()
	p.titles = append(p.titles, title)
	p.mu.Unlock()
}

func (p *Player) ShowBossBar(bar *proxy.BossBar) {
	p.mu.Lock()
	p.bossBars[bar] = true
	p.mu.Unlock()
}

func (p *Player) HideBossBar(bar *proxy.BossBar) {
	p.mu.Lock()
	delete(p.bossBars, bar)
	p.mu.Unlock()
}

func (p *Player) AddChatCompletions(completions []string) {
	p.mu.Lock()
	for _, c := range completions {
		p.completions[c]++
	}
	p.mu.Unlock()
}

func (p *Player) RemoveChatCompletions(completions []string) {
	p.mu.Lock()
	for _, c := range completions {
		if p.completions[c] <= 1 {
			delete(p.completions, c)
			continue
		}
		p.completions[c]--
	}
	p.mu.Unlock()
}

func (p *Player) ConnectTo(server proxy.ServerInfo, done func(proxy.ConnectResult)) {
	p.mu.Lock()
	p.connects = append(p.connects, server)
	decide := p.ConnectResult
	p.mu.Unlock()

	result := proxy.ConnectResult{Success: true}
	if decide != nil {
		result = decide(server)
	}
	if done != nil {
		done(result)
	}
}

func (p *Player) Messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.messages...)
}

func (p *Player) LastMessage() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.messages) == 0 {
		return ""
	}
	return p.messages[len(p.messages)-1]
}

func (p *Player) ActionBars() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actionBars...)
}

func (p *Player) Titles() []proxy.Title {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]proxy.Title(nil), p.titles...)
}

func (p *Player) BossBars() []*proxy.BossBar {
	p.mu.Lock()
	defer p.mu.Unlock()
	bars := make([]*proxy.BossBar, 0, len(p.bossBars))
	for bar := range p.bossBars {
		bars = append(bars, bar)
	}
	return bars
}

func (p *Player) Completions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.completions))
	for c := range p.completions {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (p *Player) Connects() []proxy.ServerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]proxy.ServerInfo(nil), p.connects...)
}

// Players is a proxy.Players backed by a slice kept in join order.
type Players struct {
	mu      sync.RWMutex
	players []proxy.Player
}

func NewPlayers(players ...proxy.Player) *Players {
	return &Players{players: players}
}

func (ps *Players) Add(p proxy.Player) {
	ps.mu.Lock()
	ps.players = append(ps.players, p)
	ps.mu.Unlock()
}

func (ps *Players) Remove(p proxy.Player) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for i, existing := range ps.players {
		if existing.ID() == p.ID() {
			ps.players = append(ps.players[:i], ps.players[i+1:]...)
			return
		}
	}
}

func (ps *Players) All() []proxy.Player {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return append([]proxy.Player(nil), ps.players...)
}

func (ps *Players) ByName(name string) (proxy.Player, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, p := range ps.players {
		if strings.EqualFold(p.Name(), name) {
			return p, true
		}
	}
	return nil, false
}

// Servers is a case-insensitive server catalog that remembers insertion
// order and counts mutations.
type Servers struct {
	mu        sync.RWMutex
	order     []string
	servers   map[string]proxy.ServerInfo
	mutations int
}

func NewServers(servers ...proxy.ServerInfo) *Servers {
	s := &Servers{servers: make(map[string]proxy.ServerInfo)}
	for _, info := range servers {
		key := strings.ToLower(info.Name)
		s.order = append(s.order, key)
		s.servers[key] = info
	}
	return s
}

func (s *Servers) Server(name string) (proxy.ServerInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.servers[strings.ToLower(name)]
	return info, ok
}

func (s *Servers) Servers() []proxy.ServerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]proxy.ServerInfo, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.servers[key])
	}
	return out
}

func (s *Servers) Register(info proxy.ServerInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(info.Name)
	if _, exists := s.servers[key]; exists {
		return fmt.Errorf("server %s already registered", info.Name)
	}
	s.servers[key] = info
	s.order = append(s.order, key)
	s.mutations++
	return nil
}

func (s *Servers) Unregister(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(name)
	if _, exists := s.servers[key]; !exists {
		return false
	}
	delete(s.servers, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mutations++
	return true
}

func (s *Servers) Mutations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mutations
}
