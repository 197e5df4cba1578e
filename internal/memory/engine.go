package memory

import (
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/siohaza/limbogate/internal/proxy"
	"github.com/siohaza/limbogate/internal/world"
)

// Engine is a world.Factory that keeps every world in memory and drives
// session handlers synchronously.
type Engine struct {
	mu        sync.Mutex
	scheduler proxy.Scheduler
	worlds    []*World
	limbos    map[string]*Limbo
	current   map[uuid.UUID]*LimboPlayer
	failing   map[string]error

	// ManualSpawn leaves spawned players in the Spawning state until
	// CompleteSpawn is called.
	ManualSpawn bool
}

func NewEngine(scheduler proxy.Scheduler) *Engine {
	return &Engine{
		scheduler: scheduler,
		limbos:    make(map[string]*Limbo),
		current:   make(map[uuid.UUID]*LimboPlayer),
		failing:   make(map[string]error),
	}
}

// FailLimbo makes CreateLimbo fail for the named session.
func (e *Engine) FailLimbo(name string, err error) {
	e.mu.Lock()
	e.failing[name] = err
	e.mu.Unlock()
}

type World struct {
	Dimension world.Dimension
	Spawn     world.Pose
	Time      int64
	Imports   []Import

	mu       sync.Mutex
	released bool
}

type Import struct {
	Kind       world.FileType
	Path       string
	Offset     world.BlockPos
	LightLevel int
}

func (w *World) Release() {
	w.mu.Lock()
	w.released = true
	w.mu.Unlock()
}

func (w *World) Released() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released
}

type file struct {
	kind world.FileType
	path string
}

func (f *file) ToWorld(target world.World, offset world.BlockPos, lightLevel int) error {
	w, ok := target.(*World)
	if !ok {
		return fmt.Errorf("unsupported world type %T", target)
	}
	w.mu.Lock()
	w.Imports = append(w.Imports, Import{Kind: f.kind, Path: f.path, Offset: offset, LightLevel: lightLevel})
	w.mu.Unlock()
	return nil
}

func (e *Engine) CreateWorld(dim world.Dimension, spawn world.Pose, worldTime int64) (world.World, error) {
	w := &World{Dimension: dim, Spawn: spawn, Time: worldTime}
	e.mu.Lock()
	e.worlds = append(e.worlds, w)
	e.mu.Unlock()
	return w, nil
}

func (e *Engine) OpenWorldFile(kind world.FileType, path string) (world.File, error) {
	return &file{kind: kind, path: path}, nil
}

func (e *Engine) CreateLimbo(w world.World, opts world.Options) (world.Limbo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.failing[opts.Name]; err != nil {
		return nil, err
	}

	mw, _ := w.(*World)
	l := &Limbo{
		engine:  e,
		World:   mw,
		Options: opts,
	}
	e.limbos[opts.Name] = l
	return l, nil
}

// Limbo returns the most recently created limbo with the given name.
func (e *Engine) Limbo(name string) (*Limbo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.limbos[name]
	return l, ok
}

func (e *Engine) Worlds() []*World {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*World(nil), e.worlds...)
}

// Player returns the limbo player currently bound to p.
func (e *Engine) Player(p proxy.Player) (*LimboPlayer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	lp, ok := e.current[p.ID()]
	return lp, ok
}

// Disconnect simulates the client closing its connection.
func (e *Engine) Disconnect(p proxy.Player) {
	e.mu.Lock()
	lp, ok := e.current[p.ID()]
	delete(e.current, p.ID())
	e.mu.Unlock()

	if ok {
		lp.handler.OnDisconnect()
	}
}

func (e *Engine) CompleteSpawn(p proxy.Player) {
	if lp, ok := e.Player(p); ok {
		lp.handler.OnSpawn(lp)
	}
}

type Limbo struct {
	engine  *Engine
	World   *World
	Options world.Options

	mu       sync.Mutex
	commands []string
	disposed bool
}

func (l *Limbo) RegisterCommand(name string) {
	l.mu.Lock()
	l.commands = append(l.commands, name)
	l.mu.Unlock()
}

func (l *Limbo) Commands() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.commands...)
}

func (l *Limbo) Dispose() {
	l.mu.Lock()
	l.disposed = true
	l.mu.Unlock()
}

func (l *Limbo) Disposed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disposed
}

func (l *Limbo) SpawnPlayer(p proxy.Player, h world.SessionHandler) error {
	if l.Disposed() {
		return fmt.Errorf("limbo %s is disposed", l.Options.Name)
	}

	lp := &LimboPlayer{
		player:    p,
		handler:   h,
		limbo:     l,
		scheduler: l.engine.scheduler,
		falling:   true,
	}

	e := l.engine
	e.mu.Lock()
	previous := e.current[p.ID()]
	e.current[p.ID()] = lp
	manual := e.ManualSpawn
	e.mu.Unlock()

	if previous != nil {
		previous.handler.OnDisconnect()
	}

	if !manual {
		h.OnSpawn(lp)
	}
	return nil
}

type LimboPlayer struct {
	player    proxy.Player
	handler   world.SessionHandler
	limbo     *Limbo
	scheduler proxy.Scheduler

	mu          sync.Mutex
	teleports   []world.Pose
	falling     bool
	abilities   int
	disconnects []proxy.ServerInfo
}

func (lp *LimboPlayer) Limbo() *Limbo { return lp.limbo }

func (lp *LimboPlayer) Handler() world.SessionHandler { return lp.handler }

func (lp *LimboPlayer) Teleport(pose world.Pose) {
	lp.mu.Lock()
	lp.teleports = append(lp.teleports, pose)
	lp.mu.Unlock()
}

func (lp *LimboPlayer) EnableFalling() {
	lp.mu.Lock()
	lp.falling = true
	lp.mu.Unlock()
}

func (lp *LimboPlayer) DisableFalling() {
	lp.mu.Lock()
	lp.falling = false
	lp.mu.Unlock()
}

func (lp *LimboPlayer) SendAbilities() {
	lp.mu.Lock()
	lp.abilities++
	lp.mu.Unlock()
}

func (lp *LimboPlayer) Scheduler() proxy.Scheduler {
	return lp.scheduler
}

func (lp *LimboPlayer) Disconnect(target proxy.ServerInfo) {
	lp.mu.Lock()
	lp.disconnects = append(lp.disconnects, target)
	lp.mu.Unlock()

	e := lp.limbo.engine
	e.mu.Lock()
	if e.current[lp.player.ID()] == lp {
		delete(e.current, lp.player.ID())
	}
	e.mu.Unlock()

	lp.handler.OnDisconnect()
}

func (lp *LimboPlayer) Teleports() []world.Pose {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return append([]world.Pose(nil), lp.teleports...)
}

func (lp *LimboPlayer) Falling() bool {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.falling
}

func (lp *LimboPlayer) Disconnects() []proxy.ServerInfo {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return append([]proxy.ServerInfo(nil), lp.disconnects...)
}

func (lp *LimboPlayer) Move(x, y, z float64) {
	lp.handler.OnMove(mgl64.Vec3{x, y, z})
}

func (lp *LimboPlayer) MoveLook(x, y, z float64, yaw, pitch float32) {
	lp.handler.OnMoveLook(mgl64.Vec3{x, y, z}, yaw, pitch)
}

func (lp *LimboPlayer) Chat(message string) {
	lp.handler.OnChat(message)
}

func (lp *LimboPlayer) Packet(packet any) {
	lp.handler.OnGeneric(packet)
}
