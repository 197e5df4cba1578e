package memory

import (
	"sync"

	"github.com/siohaza/limbogate/internal/proxy"
)

// Dispatcher records dispatched command lines and completes them with Err.
type Dispatcher struct {
	mu    sync.Mutex
	lines []string
	Err   error
}

func (d *Dispatcher) Dispatch(p proxy.Player, line string, done func(error)) {
	d.mu.Lock()
	d.lines = append(d.lines, line)
	err := d.Err
	d.mu.Unlock()

	if done != nil {
		done(err)
	}
}

func (d *Dispatcher) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}
