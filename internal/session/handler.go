package session

import (
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/siohaza/limbogate/internal/display"
	"github.com/siohaza/limbogate/internal/proxy"
	"github.com/siohaza/limbogate/internal/validation"
	"github.com/siohaza/limbogate/internal/world"
)

// fallbackGrace is how long after the anti-fall delay enforcement is forced
// on when no client packet activated it.
const fallbackGrace = 8 * time.Second

type State int

const (
	StateSpawning State = iota
	StateActive
	StateTransferring
	StateDisconnected
	// StateDetached marks a handler released by a registry reload.
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateActive:
		return "active"
	case StateTransferring:
		return "transferring"
	case StateDisconnected:
		return "disconnected"
	case StateDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Handler drives one player through a holding session. The engine calls
// its world.SessionHandler methods; the registry and the alias interceptor
// call Transfer and Detach. Collaborators are never called with mu held.
type Handler struct {
	holding *Holding
	player  proxy.Player
	onLeft  func(*Handler)
	logger  *slog.Logger

	mu        sync.Mutex
	state     State
	lp        world.LimboPlayer
	spawnedAt time.Time

	enforcing bool
	holdSet   bool
	holdY     float64
	lastYaw   float32
	lastPitch float32

	countdown    int
	tasks        []proxy.Task
	fallback     proxy.Task
	completions  []string
	injected     bool
	clearDisplay func()
}

func (h *Handler) Player() proxy.Player { return h.player }
func (h *Handler) Session() string      { return h.holding.name }

func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// LimboPlayer returns the engine-side player once spawned.
func (h *Handler) LimboPlayer() (world.LimboPlayer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lp, h.lp != nil
}

func (h *Handler) scheduler() proxy.Scheduler {
	h.mu.Lock()
	lp := h.lp
	h.mu.Unlock()

	if lp != nil {
		if s := lp.Scheduler(); s != nil {
			return s
		}
	}
	return h.holding.env.Scheduler
}

// track keeps a task for cancellation. A task started after the handler
// left Active is cancelled straight away.
func (h *Handler) track(task proxy.Task) bool {
	if task == nil {
		return false
	}

	h.mu.Lock()
	if h.state != StateActive {
		h.mu.Unlock()
		task.Cancel()
		return false
	}
	h.tasks = append(h.tasks, task)
	h.mu.Unlock()
	return true
}

func (h *Handler) OnSpawn(lp world.LimboPlayer) {
	env := h.holding.env
	spawn := h.holding.spawn

	h.mu.Lock()
	if h.state != StateSpawning {
		h.mu.Unlock()
		return
	}
	h.state = StateActive
	h.lp = lp
	h.spawnedAt = env.Clock()
	h.lastYaw, h.lastPitch = spawn.Yaw, spawn.Pitch
	h.mu.Unlock()

	switch h.holding.movement {
	case MovementAntiFall:
		delay := time.Duration(max(0, h.holding.cfg.Settings.DisableFallingDelayMs)) * time.Millisecond
		task := h.scheduler().After(delay+fallbackGrace, h.activate)
		if h.track(task) {
			h.mu.Lock()
			h.fallback = task
			h.mu.Unlock()
		}
	case MovementAntiFallNative:
		lp.DisableFalling()
		h.mu.Lock()
		h.enforcing = true
		h.mu.Unlock()
	case MovementConfine:
		lp.DisableFalling()
	case MovementNone:
		lp.EnableFalling()
	}
	lp.SendAbilities()

	if commands := h.holding.Commands(); len(commands) > 0 {
		h.player.AddChatCompletions(commands)
		h.mu.Lock()
		h.completions = commands
		h.mu.Unlock()
	}

	release := env.Display.ShowJoin(h.player, h.holding.cfg.Display)
	h.mu.Lock()
	if h.state == StateActive {
		h.clearDisplay = release
		release = nil
	}
	h.mu.Unlock()
	if release != nil {
		release()
	}

	env.markActivity(h.player)
	h.injectFakeServer()
	h.startAutoReconnect()

	h.logger.Info("player entered holding session", "movement", h.holding.movement)
}

func (h *Handler) injectFakeServer() {
	name := strings.TrimSpace(h.holding.cfg.FakeServer)
	if name == "" {
		return
	}

	env := h.holding.env
	if !env.Shim.Available() {
		h.holding.fakeUnavailable.Do(func() {
			h.holding.logger.Warn("compatibility shim unavailable, fake_server ignored", "fake_server", name)
		})
		return
	}

	server, ok := env.Servers.Server(name)
	if !ok {
		h.holding.fakeMissing.Do(func() {
			h.holding.logger.Warn("fake_server not found in server registry", "fake_server", name)
		})
		return
	}

	if !env.Shim.Inject(h.player, server) {
		h.logger.Debug("fake server injection refused", "fake_server", name)
		return
	}

	h.mu.Lock()
	active := h.state == StateActive
	if active {
		h.injected = true
	}
	h.mu.Unlock()

	if !active {
		env.Shim.Clear(h.player)
	}
}

func (h *Handler) startAutoReconnect() {
	cfg := h.holding.cfg.AutoReconnect
	if !cfg.Enabled || strings.TrimSpace(cfg.Server) == "" {
		return
	}

	h.mu.Lock()
	h.countdown = max(1, cfg.Interval)
	h.mu.Unlock()

	h.track(h.scheduler().Every(time.Second, time.Second, h.reconnectTick))
}

func (h *Handler) reconnectTick() {
	cfg := h.holding.cfg.AutoReconnect
	env := h.holding.env

	h.mu.Lock()
	if h.state != StateActive {
		h.mu.Unlock()
		return
	}
	if h.countdown > 0 {
		remaining := h.countdown
		h.countdown--
		h.mu.Unlock()

		if template := h.holding.cfg.Display.ActionBar.Message; template != "" {
			h.player.SendActionBar(display.FormatCountdown(template, remaining))
		}
		return
	}
	h.countdown = max(1, cfg.Interval)
	h.mu.Unlock()

	target, ok := env.Servers.Server(cfg.Server)
	if !ok {
		h.logger.Debug("auto-reconnect target not registered", "server", cfg.Server)
		return
	}

	if cfg.Message != "" {
		h.player.SendActionBar(cfg.Message)
	}

	h.player.ConnectTo(target, func(result proxy.ConnectResult) {
		if !result.Success {
			if result.Err != nil {
				h.logger.Debug("auto-reconnect attempt failed", "server", target.Name, "error", result.Err)
			}
			return
		}
		if h.State() != StateActive {
			return
		}
		if cfg.SuccessMessage != "" {
			h.player.SendMessage(cfg.SuccessMessage)
		}
		h.Transfer(target)
	})
}

// activate turns on delayed anti-fall enforcement. It is a no-op before the
// configured delay has elapsed since spawn.
func (h *Handler) activate() {
	delay := time.Duration(max(0, h.holding.cfg.Settings.DisableFallingDelayMs)) * time.Millisecond
	spawn := h.holding.spawn

	h.mu.Lock()
	if h.state != StateActive || h.enforcing {
		h.mu.Unlock()
		return
	}
	if h.holding.env.Clock().Sub(h.spawnedAt) < delay {
		h.mu.Unlock()
		return
	}
	h.enforcing = true
	h.holdSet = false
	h.lastYaw, h.lastPitch = spawn.Yaw, spawn.Pitch
	fallback := h.fallback
	h.fallback = nil
	lp := h.lp
	h.mu.Unlock()

	if fallback != nil {
		fallback.Cancel()
	}

	lp.DisableFalling()
	lp.SendAbilities()
	lp.Teleport(spawn)
	h.logger.Debug("anti-fall enforcement active")
}

func (h *Handler) OnGeneric(packet any) {
	if h.holding.movement == MovementAntiFall {
		h.activate()
	}
}

func (h *Handler) OnMove(pos mgl64.Vec3) {
	h.enforce(pos, 0, 0, false)
}

func (h *Handler) OnMoveLook(pos mgl64.Vec3, yaw, pitch float32) {
	h.enforce(pos, yaw, pitch, true)
}

func (h *Handler) enforce(pos mgl64.Vec3, yaw, pitch float32, look bool) {
	movement := h.holding.movement
	spawn := h.holding.spawn
	if movement == MovementAntiFall {
		h.activate()
	}

	h.mu.Lock()
	if h.state != StateActive {
		h.mu.Unlock()
		return
	}
	if !validation.IsValidPosition(pos) || (look && !validation.IsValidRotation(yaw, pitch)) {
		lp := h.lp
		h.mu.Unlock()
		h.logger.Warn("rejected invalid movement", "position", pos, "yaw", yaw, "pitch", pitch)
		lp.Teleport(spawn)
		h.holding.env.Metrics.Correction(h.holding.name, "invalid")
		return
	}
	if look {
		h.lastYaw, h.lastPitch = yaw, pitch
	} else {
		yaw, pitch = h.lastYaw, h.lastPitch
	}

	var (
		target  world.Pose
		correct bool
	)
	switch movement {
	case MovementConfine:
		d := pos.Sub(spawn.Position)
		if math.Abs(d.X()) > confineEpsilon || math.Abs(d.Y()) > confineEpsilon || math.Abs(d.Z()) > confineEpsilon {
			target, correct = spawn, true
		}
	case MovementAntiFall, MovementAntiFallNative:
		if !h.enforcing {
			break
		}
		if !h.holdSet {
			h.holdY, h.holdSet = pos.Y(), true
			break
		}
		if pos.Y() < h.holdY-holdTolerance {
			target = world.NewPose(pos.X(), h.holdY, pos.Z(), yaw, pitch)
			correct = true
		}
	}
	lp := h.lp
	h.mu.Unlock()

	if correct {
		lp.Teleport(target)
		h.holding.env.Metrics.Correction(h.holding.name, movement.String())
	}
}

func (h *Handler) OnChat(message string) {
	env := h.holding.env
	env.markActivity(h.player)

	if h.State() != StateActive {
		return
	}

	if !strings.HasPrefix(message, "/") {
		return
	}
	line := strings.TrimSpace(message)
	if !validation.IsValidChat(line) {
		h.logger.Debug("dropped invalid chat line")
		return
	}
	line = strings.TrimPrefix(line, "/")

	root := ""
	if fields := strings.Fields(line); len(fields) > 0 {
		root = strings.ToLower(fields[0])
	}

	if len(h.holding.commands) == 0 {
		h.player.SendMessage(env.Messages.CommandsDisabled)
		env.Metrics.Command(h.holding.name, "disabled")
		return
	}

	if !h.holding.allows(root) {
		h.player.SendMessage(env.Messages.CommandUnavailable)
		env.Metrics.Command(h.holding.name, "unavailable")
		return
	}

	env.Dispatcher.Dispatch(h.player, line, h.commandDone)
}

func (h *Handler) commandDone(err error) {
	env := h.holding.env

	switch {
	case err == nil:
		env.Metrics.Command(h.holding.name, "allowed")
	case errors.Is(err, proxy.ErrNilReference):
		h.logger.Warn("command failed on a missing backend reference", "error", err)
		h.player.SendMessage(env.Messages.CommandRequiresBackend)
		env.Metrics.Command(h.holding.name, "nil_reference")
	default:
		h.logger.Warn("command failed", "error", err)
		h.player.SendMessage(env.Messages.CommandFailed + err.Error())
		env.Metrics.Command(h.holding.name, "failed")
	}
}

// release moves the handler into a terminal state and frees everything it
// holds. Only the first call wins.
func (h *Handler) release(next State) bool {
	h.mu.Lock()
	switch h.state {
	case StateTransferring, StateDisconnected, StateDetached:
		h.mu.Unlock()
		return false
	}
	h.state = next
	tasks := h.tasks
	h.tasks = nil
	h.fallback = nil
	completions := h.completions
	h.completions = nil
	injected := h.injected
	h.injected = false
	clearDisplay := h.clearDisplay
	h.clearDisplay = nil
	h.mu.Unlock()

	for _, task := range tasks {
		task.Cancel()
	}
	if len(completions) > 0 {
		h.player.RemoveChatCompletions(completions)
	}
	if injected {
		h.holding.env.Shim.Clear(h.player)
	}
	if clearDisplay != nil {
		clearDisplay()
	}
	return true
}

func (h *Handler) OnDisconnect() {
	if !h.release(StateDisconnected) {
		return
	}
	h.logger.Info("player left holding session")
	if h.onLeft != nil {
		h.onLeft(h)
	}
}

// Detach releases the handler without notifying the registry.
func (h *Handler) Detach() {
	h.release(StateDetached)
}

// Transfer hands the player to a real backend through the engine's own
// disconnect path. It returns false when the player was never spawned or
// the handler already terminated.
func (h *Handler) Transfer(target proxy.ServerInfo) bool {
	h.mu.Lock()
	lp := h.lp
	h.mu.Unlock()

	if lp == nil || !h.release(StateTransferring) {
		return false
	}

	lp.Disconnect(target)
	h.holding.env.Metrics.Transfer(h.holding.name)
	h.logger.Info("player transferred out of holding session", "server", target.Name)

	if h.onLeft != nil {
		h.onLeft(h)
	}
	return true
}
