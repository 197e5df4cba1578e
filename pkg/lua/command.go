package lua

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/siohaza/limbogate/internal/proxy"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrPermissionDenied = errors.New("you don't have permission to use this command")
)

type LuaCommand struct {
	Name        string
	Aliases     []string
	Permission  string
	Description string
	Usage       string
	Handler     string
	VM          *VM
}

// CommandManager loads one VM per command script and dispatches chat
// commands typed inside holding sessions to them.
type CommandManager struct {
	mu       sync.RWMutex
	commands map[string]*LuaCommand
	aliases  map[string]string
	logger   *slog.Logger
}

func NewCommandManager(logger *slog.Logger) *CommandManager {
	return &CommandManager{
		commands: make(map[string]*LuaCommand),
		aliases:  make(map[string]string),
		logger:   logger,
	}
}

func (cm *CommandManager) LoadCommands(commandsDir string, api *API) error {
	files, err := os.ReadDir(commandsDir)
	if err != nil {
		return fmt.Errorf("failed to read commands directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".lua") {
			continue
		}

		commandPath := filepath.Join(commandsDir, file.Name())
		if err := cm.LoadCommandFile(commandPath, api); err != nil {
			cm.logger.Warn("failed to load command file", "file", file.Name(), "error", err)
			continue
		}
	}

	cm.logger.Info("loaded lua commands", "count", cm.Count())
	return nil
}

// Reload drops every command, stops their timers and loads the directory
// again.
func (cm *CommandManager) Reload(commandsDir string, api *API) error {
	cm.mu.Lock()
	old := cm.commands
	cm.commands = make(map[string]*LuaCommand)
	cm.aliases = make(map[string]string)
	cm.mu.Unlock()

	for _, cmd := range old {
		cmd.VM.Close()
	}

	return cm.LoadCommands(commandsDir, api)
}

func (cm *CommandManager) LoadCommandFile(path string, api *API) error {
	var vm *VM
	if api != nil {
		vm = NewVM(api.scheduler, cm.logger)
		api.RegisterFunctions(vm)
	} else {
		vm = NewVM(nil, cm.logger)
	}

	if err := vm.LoadFile(path); err != nil {
		return err
	}

	name, err := vm.GetGlobalString("name")
	if err != nil {
		return fmt.Errorf("command missing 'name': %w", err)
	}

	cmd := &LuaCommand{
		Name: strings.ToLower(strings.TrimSpace(name)),
		VM:   vm,
	}

	if aliases, err := vm.GetGlobalStrings("aliases"); err == nil {
		cmd.Aliases = aliases
	}

	if desc, err := vm.GetGlobalString("description"); err == nil {
		cmd.Description = desc
	}

	if usage, err := vm.GetGlobalString("usage"); err == nil {
		cmd.Usage = usage
	}

	if perm, err := vm.GetGlobalString("permission"); err == nil {
		cmd.Permission = strings.TrimSpace(perm)
	}

	if handler, err := vm.GetGlobalString("handler"); err == nil {
		cmd.Handler = handler
	} else {
		cmd.Handler = "execute"
	}

	cm.Register(cmd)
	return nil
}

func (cm *CommandManager) Register(cmd *LuaCommand) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if previous, ok := cm.commands[cmd.Name]; ok && previous.VM != cmd.VM {
		cm.logger.Warn("duplicate lua command, replacing", "command", cmd.Name)
		previous.VM.Close()
	}

	cm.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		if alias != "" {
			cm.aliases[strings.ToLower(alias)] = cmd.Name
		}
	}
}

func (cm *CommandManager) Get(name string) *LuaCommand {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	name = strings.ToLower(name)
	if canonical, ok := cm.aliases[name]; ok {
		return cm.commands[canonical]
	}
	return cm.commands[name]
}

func (cm *CommandManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.commands)
}

// Execute runs the handler of cmdName as handler(player, args) and returns
// the string it returned, if any.
func (cm *CommandManager) Execute(p proxy.Player, cmdName string, args []string) (string, error) {
	cmd := cm.Get(cmdName)
	if cmd == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, cmdName)
	}

	if cmd.Permission != "" && !p.HasPermission(cmd.Permission) {
		return "", ErrPermissionDenied
	}

	vm := cmd.VM
	vm.mu.Lock()
	defer vm.mu.Unlock()

	state := vm.state
	state.Global(cmd.Handler)
	if !state.IsFunction(-1) {
		state.Pop(1)
		return "", fmt.Errorf("command handler not found: %s", cmd.Handler)
	}

	PushPlayer(state, p)

	state.NewTable()
	state.PushString(cmdName)
	state.RawSetInt(-2, 0)
	for i, arg := range args {
		state.PushString(arg)
		state.RawSetInt(-2, i+1)
	}

	if err := state.ProtectedCall(2, 1, 0); err != nil {
		state.Pop(1)
		return "", enhanceError(fmt.Sprintf("command %s", cmd.Name), err)
	}

	result := ""
	if state.IsString(-1) {
		result, _ = state.ToString(-1)
	}
	state.Pop(1)

	return result, nil
}

// Dispatch implements proxy.CommandDispatcher. A non-empty handler result
// is sent to the player as chat.
func (cm *CommandManager) Dispatch(p proxy.Player, line string, done func(error)) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		done(fmt.Errorf("%w: empty command", ErrUnknownCommand))
		return
	}

	result, err := cm.Execute(p, fields[0], fields[1:])
	if err == nil && result != "" {
		p.SendMessage(result)
	}
	done(err)
}

// List returns the commands p may run, sorted by name.
func (cm *CommandManager) List(p proxy.Player) []*LuaCommand {
	cm.mu.RLock()
	var commands []*LuaCommand
	for _, cmd := range cm.commands {
		if cmd.Permission == "" || p.HasPermission(cmd.Permission) {
			commands = append(commands, cmd)
		}
	}
	cm.mu.RUnlock()

	sort.Slice(commands, func(i, j int) bool { return commands[i].Name < commands[j].Name })
	return commands
}

func (cm *CommandManager) Close() {
	cm.mu.Lock()
	old := cm.commands
	cm.commands = make(map[string]*LuaCommand)
	cm.aliases = make(map[string]string)
	cm.mu.Unlock()

	for _, cmd := range old {
		cmd.VM.Close()
	}
}
