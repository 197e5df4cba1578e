// Package proxy describes the parts of the proxy runtime that limbogate
// consumes: players, the backend server catalog, the task scheduler and the
// command dispatcher. Chat strings use legacy ampersand color codes ("&7").
package proxy

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ErrNilReference marks a command failure caused by code dereferencing
// state that only exists while the player is attached to a real backend.
var ErrNilReference = errors.New("nil reference")

type Player interface {
	ID() uuid.UUID
	Name() string
	IsActive() bool
	HasPermission(permission string) bool

	SendMessage(message string)
	SendActionBar(message string)
	ShowTitle(title Title)
	ShowBossBar(bar *BossBar)
	HideBossBar(bar *BossBar)

	AddChatCompletions(completions []string)
	RemoveChatCompletions(completions []string)

	// ConnectTo requests a connection to a backend. done is invoked once,
	// possibly from another goroutine.
	ConnectTo(server ServerInfo, done func(ConnectResult))
}

type ConnectResult struct {
	Success bool
	Err     error
}

type ServerInfo struct {
	Name string
	Host string
	Port int
}

func (s ServerInfo) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s ServerInfo) String() string {
	return fmt.Sprintf("%s (%s)", s.Name, s.Address())
}

type ServerRegistry interface {
	Server(name string) (ServerInfo, bool)
	Servers() []ServerInfo
	Register(info ServerInfo) error
	Unregister(name string) bool
}

type Players interface {
	All() []Player
	ByName(name string) (Player, bool)
}

type Task interface {
	// Cancel is safe to call any number of times, before or after the
	// task has run.
	Cancel()
}

type Scheduler interface {
	After(delay time.Duration, fn func()) Task
	Every(initial, interval time.Duration, fn func()) Task
}

// CommandDispatcher executes a command line (without the leading slash)
// on behalf of a player and reports the outcome through done.
type CommandDispatcher interface {
	Dispatch(p Player, line string, done func(error))
}

type Title struct {
	Title    string
	Subtitle string
	FadeIn   time.Duration
	Stay     time.Duration
	FadeOut  time.Duration
}

type BossBarColor int

const (
	BossBarWhite BossBarColor = iota
	BossBarPink
	BossBarBlue
	BossBarRed
	BossBarGreen
	BossBarYellow
	BossBarPurple
)

func (c BossBarColor) String() string {
	switch c {
	case BossBarPink:
		return "PINK"
	case BossBarBlue:
		return "BLUE"
	case BossBarRed:
		return "RED"
	case BossBarGreen:
		return "GREEN"
	case BossBarYellow:
		return "YELLOW"
	case BossBarPurple:
		return "PURPLE"
	default:
		return "WHITE"
	}
}

type BossBarOverlay int

const (
	OverlayProgress BossBarOverlay = iota
	OverlayNotched6
	OverlayNotched10
	OverlayNotched12
	OverlayNotched20
)

func (o BossBarOverlay) String() string {
	switch o {
	case OverlayNotched6:
		return "NOTCHED_6"
	case OverlayNotched10:
		return "NOTCHED_10"
	case OverlayNotched12:
		return "NOTCHED_12"
	case OverlayNotched20:
		return "NOTCHED_20"
	default:
		return "PROGRESS"
	}
}

type BossBar struct {
	Name     string
	Progress float32
	Color    BossBarColor
	Overlay  BossBarOverlay
}
