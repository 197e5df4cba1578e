package session

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/siohaza/limbogate/internal/proxy"
	"github.com/siohaza/limbogate/internal/world"
	"github.com/siohaza/limbogate/pkg/config"
)

const (
	defaultReadTimeout = 30000 * time.Millisecond
	minDistance        = 2
	maxDistance        = 32
	maxLightLevel      = 15
)

// Holding is one instantiated session: a world, a limbo built on it and the
// command whitelist players see.
type Holding struct {
	name      string
	cfg       config.SessionConfig
	dimension world.Dimension
	gameMode  world.GameMode
	movement  Movement
	spawn     world.Pose
	commands  []string

	world world.World
	limbo world.Limbo
	env   *environment

	logger *slog.Logger

	fakeUnavailable sync.Once
	fakeMissing     sync.Once
	disposeOnce     sync.Once
}

func newHolding(name string, cfg config.SessionConfig, env *environment) (h *Holding, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while building session: %v", r)
		}
	}()

	h = &Holding{
		name:   name,
		cfg:    cfg,
		env:    env,
		logger: env.Logger.With("session", name),
		spawn:  world.NewPose(cfg.Spawn.X, cfg.Spawn.Y, cfg.Spawn.Z, cfg.Spawn.Yaw, cfg.Spawn.Pitch),
	}

	var ok bool
	if h.dimension, ok = world.ParseDimension(cfg.Dimension); !ok {
		h.logger.Warn("unknown dimension, using OVERWORLD", "dimension", cfg.Dimension)
	}
	if h.gameMode, ok = world.ParseGameMode(cfg.GameMode); !ok {
		h.logger.Warn("unknown gamemode, using ADVENTURE", "gamemode", cfg.GameMode)
	}
	if h.movement, ok = ParseMovement(cfg.Settings.Movement); !ok {
		h.logger.Warn("unknown movement policy, using anti-fall", "movement", cfg.Settings.Movement)
	}

	for _, cmd := range cfg.Commands {
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			continue
		}
		h.commands = append(h.commands, cmd)
	}

	h.world, err = env.Factory.CreateWorld(h.dimension, h.spawn, cfg.WorldTime)
	if err != nil {
		return nil, fmt.Errorf("failed to create world: %w", err)
	}

	if cfg.WorldFile.Enabled {
		h.loadWorldFile()
	}

	opts := world.Options{
		Name:               name,
		GameMode:           h.gameMode,
		ReadTimeout:        sanitizeReadTimeout(h.logger, cfg.Settings.ReadTimeout),
		ShouldRejoin:       cfg.Settings.ShouldRejoin,
		ShouldRespawn:      cfg.Settings.ShouldRespawn,
		ReducedDebugInfo:   cfg.Settings.ReducedDebugInfo,
		ViewDistance:       clampDistance(h.logger, "view_distance", cfg.Settings.ViewDistance),
		SimulationDistance: clampDistance(h.logger, "simulation_distance", cfg.Settings.SimulationDistance),
	}

	h.limbo, err = env.Factory.CreateLimbo(h.world, opts)
	if err != nil {
		h.world.Release()
		return nil, fmt.Errorf("failed to create limbo: %w", err)
	}

	for _, cmd := range h.commands {
		h.limbo.RegisterCommand(cmd)
	}

	h.logger.Info("created holding session",
		"dimension", h.dimension,
		"gamemode", h.gameMode,
		"movement", h.movement,
		"commands", len(h.commands),
	)
	return h, nil
}

func (h *Holding) loadWorldFile() {
	wf := h.cfg.WorldFile

	path := wf.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(h.env.DataDir, path)
	}

	if info, err := os.Stat(path); err != nil || info.IsDir() {
		h.logger.Warn("world file not found, using an empty world", "path", path)
		return
	}

	kind, ok := world.ParseFileType(wf.Type)
	if !ok {
		h.logger.Warn("unknown world file type, using SCHEMATIC", "type", wf.Type)
	}

	file, err := h.env.Factory.OpenWorldFile(kind, path)
	if err != nil {
		h.logger.Error("failed to open world file", "path", path, "error", err)
		return
	}

	offset := world.BlockPos{X: wf.Offset.X, Y: wf.Offset.Y, Z: wf.Offset.Z}
	light := wf.LightLevel
	if light < 0 || light > maxLightLevel {
		h.logger.Warn("light_level out of range, clamping", "light_level", light)
		light = min(max(light, 0), maxLightLevel)
	}

	if err := file.ToWorld(h.world, offset, light); err != nil {
		h.logger.Error("failed to load world file", "path", path, "error", err)
		return
	}

	h.logger.Info("loaded world file", "path", path, "type", kind)
}

func sanitizeReadTimeout(logger *slog.Logger, ms int64) time.Duration {
	if ms <= 0 {
		logger.Warn("invalid read_timeout, must be > 0; using 30000ms", "read_timeout", ms)
		return defaultReadTimeout
	}

	if ms > math.MaxInt32 {
		logger.Warn("read_timeout too large, capping", "read_timeout", ms, "cap", math.MaxInt32)
		ms = math.MaxInt32
	}

	return time.Duration(ms) * time.Millisecond
}

func clampDistance(logger *slog.Logger, field string, v int) int {
	if v >= minDistance && v <= maxDistance {
		return v
	}
	clamped := min(max(v, minDistance), maxDistance)
	logger.Warn("distance out of range, clamping", "field", field, "value", v, "clamped", clamped)
	return clamped
}

func (h *Holding) newHandler(p proxy.Player, onLeft func(*Handler)) *Handler {
	return &Handler{
		holding: h,
		player:  p,
		onLeft:  onLeft,
		state:   StateSpawning,
		logger:  h.logger.With("player", p.Name()),
	}
}

func (h *Holding) spawnPlayer(handler *Handler) error {
	start := h.env.Clock()

	if err := h.limbo.SpawnPlayer(handler.player, handler); err != nil {
		return fmt.Errorf("failed to spawn %s: %w", handler.player.Name(), err)
	}

	if h.env.Debug {
		h.logger.Debug("spawned player", "player", handler.player.Name(), "took", h.env.Clock().Sub(start))
	}
	return nil
}

func (h *Holding) dispose() {
	h.disposeOnce.Do(func() {
		h.limbo.Dispose()
		h.world.Release()
	})
}

func (h *Holding) Name() string                 { return h.name }
func (h *Holding) Config() config.SessionConfig { return h.cfg }
func (h *Holding) Dimension() world.Dimension   { return h.dimension }
func (h *Holding) GameMode() world.GameMode     { return h.gameMode }
func (h *Holding) Movement() Movement           { return h.movement }
func (h *Holding) Spawn() world.Pose            { return h.spawn }

func (h *Holding) Commands() []string {
	return append([]string(nil), h.commands...)
}

func (h *Holding) allows(root string) bool {
	for _, cmd := range h.commands {
		if strings.EqualFold(cmd, root) {
			return true
		}
	}
	return false
}
