package proxy

// InitialServerEvent fires when the proxy picks the first backend for a
// freshly logged in player, before any connection is attempted.
type InitialServerEvent struct {
	Player Player
	Server *ServerInfo
}

func (e *InitialServerEvent) ClearInitialServer() {
	e.Server = nil
}

// PreConnectEvent fires before the proxy opens a connection to Target.
type PreConnectEvent struct {
	Player Player
	Target ServerInfo
	denied bool
}

func NewPreConnectEvent(p Player, target ServerInfo) *PreConnectEvent {
	return &PreConnectEvent{Player: p, Target: target}
}

func (e *PreConnectEvent) Deny() {
	e.denied = true
}

func (e *PreConnectEvent) Allowed() bool {
	return !e.denied
}

type KickAction int

const (
	// KickDisconnect closes the player's proxy connection.
	KickDisconnect KickAction = iota
	// KickNotify keeps the player connected and shows Message.
	KickNotify
)

type KickedEvent struct {
	Player  Player
	Server  ServerInfo
	Reason  string
	Action  KickAction
	Message string
}

func (e *KickedEvent) Notify(message string) {
	e.Action = KickNotify
	e.Message = message
}

type ChatEvent struct {
	Player  Player
	Message string
}

type ServerConnectedEvent struct {
	Player Player
	Server ServerInfo
}

type DisconnectEvent struct {
	Player Player
}
