package lua

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Shopify/go-lua"
	"github.com/siohaza/limbogate/internal/proxy"
)

// VM wraps one Lua state. A state is not safe for concurrent use, so every
// entry point takes mu.
type VM struct {
	mu    sync.Mutex
	state *lua.State

	scheduler proxy.Scheduler
	logger    *slog.Logger

	timerLock sync.Mutex
	timers    map[int]proxy.Task
	timerID   int
	closed    bool
}

func NewVM(scheduler proxy.Scheduler, logger *slog.Logger) *VM {
	state := lua.NewState()
	openSafeLibraries(state)
	return &VM{
		state:     state,
		scheduler: scheduler,
		logger:    logger,
		timers:    make(map[int]proxy.Task),
	}
}

func openSafeLibraries(state *lua.State) {
	lua.OpenLibraries(state)

	state.PushNil()
	state.SetGlobal("io")

	state.PushNil()
	state.SetGlobal("os")

	state.PushNil()
	state.SetGlobal("debug")

	state.PushNil()
	state.SetGlobal("dofile")

	state.PushNil()
	state.SetGlobal("loadfile")
}

func (vm *VM) LoadFile(path string) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if err := lua.DoFile(vm.state, path); err != nil {
		return fmt.Errorf("failed to load lua file %s: %w", path, err)
	}
	return nil
}

func (vm *VM) LoadString(code string) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if err := lua.DoString(vm.state, code); err != nil {
		return fmt.Errorf("failed to load lua string: %w", err)
	}
	return nil
}

// Close cancels every pending timer. The state itself is left to the GC.
func (vm *VM) Close() {
	vm.timerLock.Lock()
	timers := vm.timers
	vm.timers = make(map[int]proxy.Task)
	vm.closed = true
	vm.timerLock.Unlock()

	for _, task := range timers {
		task.Cancel()
	}
}

// RegisterTimer runs the global function callback after interval, and
// keeps running it when repeat is set. It returns -1 without a scheduler.
func (vm *VM) RegisterTimer(callback string, interval time.Duration, repeat bool) int {
	if vm.scheduler == nil {
		return -1
	}

	vm.timerLock.Lock()
	defer vm.timerLock.Unlock()

	if vm.closed {
		return -1
	}

	vm.timerID++
	id := vm.timerID

	run := func() {
		if !repeat {
			vm.timerLock.Lock()
			delete(vm.timers, id)
			vm.timerLock.Unlock()
		}
		vm.mu.Lock()
		err := vm.call(callback)
		vm.mu.Unlock()
		if err != nil {
			vm.logger.Warn("lua timer callback failed", "callback", callback, "error", err)
		}
	}

	if repeat {
		vm.timers[id] = vm.scheduler.Every(interval, interval, run)
	} else {
		vm.timers[id] = vm.scheduler.After(interval, run)
	}
	return id
}

func (vm *VM) CancelTimer(id int) {
	vm.timerLock.Lock()
	task := vm.timers[id]
	delete(vm.timers, id)
	vm.timerLock.Unlock()

	if task != nil {
		task.Cancel()
	}
}

func (vm *VM) PendingTimers() int {
	vm.timerLock.Lock()
	defer vm.timerLock.Unlock()
	return len(vm.timers)
}

func (vm *VM) GetGlobalString(name string) (string, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	vm.state.Global(name)
	if !vm.state.IsString(-1) {
		vm.state.Pop(1)
		return "", fmt.Errorf("global %s is not a string", name)
	}
	value, _ := vm.state.ToString(-1)
	vm.state.Pop(1)
	return value, nil
}

// GetGlobalStrings reads a global that is either a comma separated string
// or an array of strings.
func (vm *VM) GetGlobalStrings(name string) ([]string, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	vm.state.Global(name)
	defer vm.state.Pop(1)

	switch {
	case vm.state.IsString(-1):
		value, _ := vm.state.ToString(-1)
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	case vm.state.IsTable(-1):
		var out []string
		length := vm.state.RawLength(-1)
		for i := 1; i <= length; i++ {
			vm.state.RawGetInt(-1, i)
			if s, ok := vm.state.ToString(-1); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
			vm.state.Pop(1)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("global %s is not a string or table", name)
	}
}

func (vm *VM) HasFunction(name string) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	vm.state.Global(name)
	isFunc := vm.state.IsFunction(-1)
	vm.state.Pop(1)
	return isFunc
}

func (vm *VM) CallFunction(name string, args ...interface{}) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.call(name, args...)
}

func (vm *VM) call(name string, args ...interface{}) error {
	vm.state.Global(name)
	if !vm.state.IsFunction(-1) {
		vm.state.Pop(1)
		return fmt.Errorf("global %s is not a function", name)
	}

	for i, arg := range args {
		switch v := arg.(type) {
		case string:
			vm.state.PushString(v)
		case int:
			vm.state.PushInteger(v)
		case float64:
			vm.state.PushNumber(v)
		case bool:
			vm.state.PushBoolean(v)
		default:
			vm.state.Pop(1 + i)
			return fmt.Errorf("unsupported argument type: %T", arg)
		}
	}

	if err := vm.state.ProtectedCall(len(args), 0, 0); err != nil {
		vm.state.Pop(1)
		return enhanceError(fmt.Sprintf("function %s", name), err)
	}
	return nil
}

func enhanceError(context string, err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "nil value") {
		return fmt.Errorf("[Lua Error] %s: %w: %v", context, proxy.ErrNilReference, err)
	}
	return fmt.Errorf("[Lua Error] %s: %w", context, err)
}

func (vm *VM) RegisterFunction(name string, fn lua.Function) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.state.Register(name, fn)
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
