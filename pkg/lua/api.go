package lua

import (
	"log/slog"
	"strings"
	"time"

	"github.com/Shopify/go-lua"
	"github.com/google/uuid"
	"github.com/siohaza/limbogate/internal/proxy"
)

type Sessions interface {
	SendToSession(p proxy.Player, name string) bool
	PlayerSession(p proxy.Player) (string, bool)
	Names() []string
	PlayerCount(name string) int
}

type Deps struct {
	Players   proxy.Players
	Servers   proxy.ServerRegistry
	Sessions  Sessions
	Scheduler proxy.Scheduler
	// CurrentServer answers get_current_server, usually from the fake
	// identity overlay.
	CurrentServer   func(id uuid.UUID) (proxy.ServerInfo, bool)
	FirstRealServer func() (proxy.ServerInfo, bool)
	Clock           func() time.Time
	Logger          *slog.Logger
}

// API is the set of Go functions exposed to command scripts.
type API struct {
	deps      Deps
	scheduler proxy.Scheduler
	started   time.Time
}

func NewAPI(deps Deps) *API {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &API{
		deps:      deps,
		scheduler: deps.Scheduler,
		started:   deps.Clock(),
	}
}

func (api *API) RegisterFunctions(vm *VM) {
	vm.RegisterFunction("send_message", api.sendMessage)
	vm.RegisterFunction("send_action_bar", api.sendActionBar)
	vm.RegisterFunction("broadcast_message", api.broadcastMessage)
	vm.RegisterFunction("has_permission", api.hasPermission)
	vm.RegisterFunction("get_player", api.getPlayer)
	vm.RegisterFunction("get_player_count", api.getPlayerCount)

	vm.RegisterFunction("get_session", api.getSession)
	vm.RegisterFunction("get_sessions", api.getSessions)
	vm.RegisterFunction("get_session_count", api.getSessionCount)
	vm.RegisterFunction("send_to_session", api.sendToSession)

	vm.RegisterFunction("connect_player", api.connectPlayer)
	vm.RegisterFunction("get_current_server", api.getCurrentServer)
	vm.RegisterFunction("get_server_time", api.getServerTime)
	vm.RegisterFunction("log", api.log)

	vm.RegisterFunction("schedule_callback", func(state *lua.State) int {
		seconds, _ := state.ToNumber(1)
		callback, _ := state.ToString(2)
		repeat := false
		if state.Top() >= 3 && state.IsBoolean(3) {
			repeat = state.ToBoolean(3)
		}

		interval := time.Duration(seconds * float64(time.Second))
		state.PushInteger(vm.RegisterTimer(callback, interval, repeat))
		return 1
	})
	vm.RegisterFunction("cancel_callback", func(state *lua.State) int {
		id, _ := state.ToInteger(1)
		vm.CancelTimer(id)
		return 0
	})
}

func pushPlayerTable(state *lua.State, p proxy.Player) {
	if p == nil {
		state.PushNil()
		return
	}

	state.NewTable()
	state.PushString(p.Name())
	state.SetField(-2, "name")
	state.PushString(p.ID().String())
	state.SetField(-2, "uuid")
	state.PushBoolean(p.IsActive())
	state.SetField(-2, "active")
}

func PushPlayer(state *lua.State, p proxy.Player) {
	pushPlayerTable(state, p)
}

// playerArg accepts a player table or a player name at idx.
func (api *API) playerArg(state *lua.State, idx int) proxy.Player {
	var name string
	switch {
	case state.IsTable(idx):
		state.Field(idx, "name")
		name, _ = state.ToString(-1)
		state.Pop(1)
	case state.IsString(idx):
		name, _ = state.ToString(idx)
	default:
		return nil
	}

	if api.deps.Players == nil || name == "" {
		return nil
	}
	p, ok := api.deps.Players.ByName(name)
	if !ok {
		return nil
	}
	return p
}

func (api *API) sendMessage(state *lua.State) int {
	p := api.playerArg(state, 1)
	message, _ := state.ToString(2)
	if p != nil {
		p.SendMessage(message)
	}
	return 0
}

func (api *API) sendActionBar(state *lua.State) int {
	p := api.playerArg(state, 1)
	message, _ := state.ToString(2)
	if p != nil {
		p.SendActionBar(message)
	}
	return 0
}

func (api *API) broadcastMessage(state *lua.State) int {
	message, _ := state.ToString(1)
	if api.deps.Players == nil {
		return 0
	}
	for _, p := range api.deps.Players.All() {
		p.SendMessage(message)
	}
	return 0
}

func (api *API) hasPermission(state *lua.State) int {
	p := api.playerArg(state, 1)
	permission, _ := state.ToString(2)
	state.PushBoolean(p != nil && p.HasPermission(permission))
	return 1
}

func (api *API) getPlayer(state *lua.State) int {
	pushPlayerTable(state, api.playerArg(state, 1))
	return 1
}

func (api *API) getPlayerCount(state *lua.State) int {
	if api.deps.Players == nil {
		state.PushInteger(0)
		return 1
	}
	state.PushInteger(len(api.deps.Players.All()))
	return 1
}

func (api *API) getSession(state *lua.State) int {
	p := api.playerArg(state, 1)
	if p == nil || api.deps.Sessions == nil {
		state.PushNil()
		return 1
	}
	name, ok := api.deps.Sessions.PlayerSession(p)
	if !ok {
		state.PushNil()
		return 1
	}
	state.PushString(name)
	return 1
}

func (api *API) getSessions(state *lua.State) int {
	state.NewTable()
	if api.deps.Sessions == nil {
		return 1
	}
	for i, name := range api.deps.Sessions.Names() {
		state.PushString(name)
		state.RawSetInt(-2, i+1)
	}
	return 1
}

func (api *API) getSessionCount(state *lua.State) int {
	name, _ := state.ToString(1)
	if api.deps.Sessions == nil {
		state.PushInteger(0)
		return 1
	}
	state.PushInteger(api.deps.Sessions.PlayerCount(name))
	return 1
}

func (api *API) sendToSession(state *lua.State) int {
	p := api.playerArg(state, 1)
	name, _ := state.ToString(2)
	if p == nil || api.deps.Sessions == nil {
		state.PushBoolean(false)
		return 1
	}
	state.PushBoolean(api.deps.Sessions.SendToSession(p, name))
	return 1
}

// connectPlayer submits a connection request and reports whether a target
// was found. The result of the attempt is only logged.
func (api *API) connectPlayer(state *lua.State) int {
	p := api.playerArg(state, 1)
	name, _ := state.ToString(2)
	if p == nil {
		state.PushBoolean(false)
		return 1
	}

	var (
		target proxy.ServerInfo
		ok     bool
	)
	switch {
	case strings.TrimSpace(name) != "" && api.deps.Servers != nil:
		target, ok = api.deps.Servers.Server(name)
	case api.deps.FirstRealServer != nil:
		target, ok = api.deps.FirstRealServer()
	}
	if !ok {
		state.PushBoolean(false)
		return 1
	}

	logger := api.deps.Logger
	p.ConnectTo(target, func(result proxy.ConnectResult) {
		if !result.Success {
			logger.Debug("script connection failed", "player", p.Name(), "server", target.Name, "error", result.Err)
		}
	})
	state.PushBoolean(true)
	return 1
}

func (api *API) getCurrentServer(state *lua.State) int {
	p := api.playerArg(state, 1)
	if p == nil || api.deps.CurrentServer == nil {
		state.PushNil()
		return 1
	}
	server, ok := api.deps.CurrentServer(p.ID())
	if !ok {
		state.PushNil()
		return 1
	}
	state.PushString(server.Name)
	return 1
}

func (api *API) getServerTime(state *lua.State) int {
	state.PushNumber(api.deps.Clock().Sub(api.started).Seconds())
	return 1
}

func (api *API) log(state *lua.State) int {
	message, _ := state.ToString(1)
	api.deps.Logger.Info("lua", "message", message)
	return 0
}
