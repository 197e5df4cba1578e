package world

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/siohaza/limbogate/internal/proxy"
)

type Pose struct {
	Position mgl64.Vec3
	Yaw      float32
	Pitch    float32
}

func NewPose(x, y, z float64, yaw, pitch float32) Pose {
	return Pose{Position: mgl64.Vec3{x, y, z}, Yaw: yaw, Pitch: pitch}
}

type BlockPos struct {
	X, Y, Z int
}

type Options struct {
	Name               string
	GameMode           GameMode
	ReadTimeout        time.Duration
	ShouldRejoin       bool
	ShouldRespawn      bool
	ReducedDebugInfo   bool
	ViewDistance       int
	SimulationDistance int
}

// Factory is the entry point of the holding-world engine.
type Factory interface {
	CreateWorld(dim Dimension, spawn Pose, worldTime int64) (World, error)
	OpenWorldFile(kind FileType, path string) (File, error)
	CreateLimbo(w World, opts Options) (Limbo, error)
}

type World interface {
	Release()
}

type File interface {
	ToWorld(w World, offset BlockPos, lightLevel int) error
}

type Limbo interface {
	RegisterCommand(name string)
	// SpawnPlayer moves p into the limbo. The engine reports progress
	// through h, possibly after SpawnPlayer has returned.
	SpawnPlayer(p proxy.Player, h SessionHandler) error
	Dispose()
}

// SessionHandler receives engine callbacks for one spawned player.
type SessionHandler interface {
	OnSpawn(lp LimboPlayer)
	OnMove(pos mgl64.Vec3)
	OnMoveLook(pos mgl64.Vec3, yaw, pitch float32)
	OnChat(message string)
	OnGeneric(packet any)
	OnDisconnect()
}

type LimboPlayer interface {
	Teleport(pose Pose)
	EnableFalling()
	DisableFalling()
	SendAbilities()
	Scheduler() proxy.Scheduler
	// Disconnect leaves the limbo and hands the player to target through
	// the engine's own login path.
	Disconnect(target proxy.ServerInfo)
}
