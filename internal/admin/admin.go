// Package admin implements the /limbogate operator command.
package admin

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/siohaza/limbogate/internal/proxy"
	"github.com/siohaza/limbogate/internal/session"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const Name = "limbogate"

var Aliases = []string{"limbo", "lg"}

// Sender is whoever typed the command: a player or the console.
type Sender interface {
	HasPermission(permission string) bool
	SendMessage(message string)
}

type Sessions interface {
	Names() []string
	Session(name string) (*session.Holding, error)
	PlayerCount(name string) int
	SendToSession(p proxy.Player, name string) bool
}

type Deps struct {
	Sessions Sessions
	Players  proxy.Players
	// Reload reloads configuration and every component built from it.
	Reload     func() error
	Permission string
	Logger     *slog.Logger
}

type Command struct {
	deps    Deps
	printer *message.Printer

	mu         sync.RWMutex
	permission string
}

var subcommands = []string{"reload", "list", "send", "sendall", "info"}

var messages = map[string]string{
	"no_permission":  "&cYou do not have permission.",
	"reloaded":       "&aLimbogate reloaded.",
	"reload_failed":  "&cReload failed: %s",
	"limbos":         "&eLimbos: &f%s",
	"usage_send":     "&cUsage: /limbogate send <player> <limbo>",
	"usage_sendall":  "&cUsage: /limbogate sendall <limbo>",
	"usage_info":     "&cUsage: /limbogate info <limbo>",
	"sent":           "&aSent &f%s &ato limbo &f%s",
	"send_failed":    "&cFailed to send player. Limbo not found.",
	"player_missing": "&cPlayer not found.",
	"sent_all":       "&aSent &f%d &aplayer(s) to limbo &f%s",
	"limbo_missing":  "&cLimbo not found.",
	"info_name":      "&eLimbo: &f%s",
	"info_players":   "&ePlayers: &f%d",
	"info_dimension": "&eDimension: &f%s",
	"info_gamemode":  "&eGamemode: &f%s",
	"info_movement":  "&eMovement: &f%s",
	"help_header":    "&6Limbogate commands:",
	"help_reload":    "&e/limbogate reload &7- Reload configuration",
	"help_list":      "&e/limbogate list &7- List limbos",
	"help_send":      "&e/limbogate send <player> <limbo> &7- Send a player to a limbo",
	"help_sendall":   "&e/limbogate sendall <limbo> &7- Send every player to a limbo",
	"help_info":      "&e/limbogate info <limbo> &7- Show limbo details",
}

func NewCommand(deps Deps) *Command {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	builder := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, msg := range messages {
		if err := builder.SetString(language.English, key, msg); err != nil {
			deps.Logger.Warn("failed to register admin message", "key", key, "error", err)
		}
	}

	return &Command{
		deps:       deps,
		printer:    message.NewPrinter(language.English, message.Catalog(builder)),
		permission: deps.Permission,
	}
}

// SetPermission changes the permission node checked on every call.
func (c *Command) SetPermission(permission string) {
	c.mu.Lock()
	c.permission = permission
	c.mu.Unlock()
}

func (c *Command) allowed(s Sender) bool {
	c.mu.RLock()
	permission := c.permission
	c.mu.RUnlock()
	return permission == "" || s.HasPermission(permission)
}

func (c *Command) reply(s Sender, key string, args ...interface{}) {
	s.SendMessage(c.printer.Sprintf(key, args...))
}

func (c *Command) Execute(s Sender, args []string) {
	if !c.allowed(s) {
		c.reply(s, "no_permission")
		return
	}

	if len(args) == 0 {
		c.help(s)
		return
	}

	switch strings.ToLower(args[0]) {
	case "reload":
		c.reload(s)
	case "list":
		c.list(s)
	case "send":
		c.send(s, args[1:])
	case "sendall":
		c.sendAll(s, args[1:])
	case "info":
		c.info(s, args[1:])
	default:
		c.help(s)
	}
}

func (c *Command) help(s Sender) {
	for _, key := range []string{"help_header", "help_reload", "help_list", "help_send", "help_sendall", "help_info"} {
		c.reply(s, key)
	}
}

func (c *Command) reload(s Sender) {
	if c.deps.Reload == nil {
		c.reply(s, "reload_failed", "reload is not available")
		return
	}
	if err := c.deps.Reload(); err != nil {
		c.deps.Logger.Error("reload failed", "error", err)
		c.reply(s, "reload_failed", err.Error())
		return
	}
	c.reply(s, "reloaded")
}

func (c *Command) list(s Sender) {
	names := c.deps.Sessions.Names()
	if len(names) == 0 {
		c.reply(s, "limbos", "none")
		return
	}
	c.reply(s, "limbos", strings.Join(names, ", "))
}

func (c *Command) send(s Sender, args []string) {
	if len(args) < 2 {
		c.reply(s, "usage_send")
		return
	}

	p, ok := c.deps.Players.ByName(args[0])
	if !ok {
		c.reply(s, "player_missing")
		return
	}

	if !c.deps.Sessions.SendToSession(p, args[1]) {
		c.reply(s, "send_failed")
		return
	}
	c.reply(s, "sent", p.Name(), args[1])
}

func (c *Command) sendAll(s Sender, args []string) {
	if len(args) < 1 {
		c.reply(s, "usage_sendall")
		return
	}

	name := args[0]
	if _, err := c.deps.Sessions.Session(name); err != nil {
		c.reply(s, "limbo_missing")
		return
	}

	sent := 0
	for _, p := range c.deps.Players.All() {
		if c.deps.Sessions.SendToSession(p, name) {
			sent++
		}
	}
	c.reply(s, "sent_all", sent, name)
}

func (c *Command) info(s Sender, args []string) {
	if len(args) < 1 {
		c.reply(s, "usage_info")
		return
	}

	h, err := c.deps.Sessions.Session(args[0])
	if errors.Is(err, session.ErrSessionNotFound) || h == nil {
		c.reply(s, "limbo_missing")
		return
	}

	c.reply(s, "info_name", h.Name())
	c.reply(s, "info_players", c.deps.Sessions.PlayerCount(h.Name()))
	c.reply(s, "info_dimension", h.Dimension().String())
	c.reply(s, "info_gamemode", h.GameMode().String())
	c.reply(s, "info_movement", h.Movement().String())
}

// Suggest completes the argument being typed, which is the last element
// of args.
func (c *Command) Suggest(s Sender, args []string) []string {
	if !c.allowed(s) {
		return nil
	}

	switch len(args) {
	case 0:
		return append([]string(nil), subcommands...)
	case 1:
		return c.filter(subcommands, args[0])
	case 2:
		switch strings.ToLower(args[0]) {
		case "send":
			return c.filter(c.playerNames(), args[1])
		case "sendall", "info":
			return c.filter(c.deps.Sessions.Names(), args[1])
		}
	case 3:
		if strings.EqualFold(args[0], "send") {
			return c.filter(c.deps.Sessions.Names(), args[2])
		}
	}
	return nil
}

func (c *Command) playerNames() []string {
	players := c.deps.Players.All()
	names := make([]string, 0, len(players))
	for _, p := range players {
		names = append(names, p.Name())
	}
	sort.Strings(names)
	return names
}

func (c *Command) filter(options []string, prefix string) []string {
	fold := cases.Fold()
	prefix = fold.String(prefix)
	var out []string
	for _, option := range options {
		if strings.HasPrefix(fold.String(option), prefix) {
			out = append(out, option)
		}
	}
	return out
}
