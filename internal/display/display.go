package display

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siohaza/limbogate/internal/proxy"
	"github.com/siohaza/limbogate/pkg/config"
)

const tick = 50 * time.Millisecond

type Manager struct {
	mu        sync.Mutex
	active    map[uuid.UUID]*display
	scheduler proxy.Scheduler
	logger    *slog.Logger
}

type display struct {
	player proxy.Player
	bar    *proxy.BossBar
	task   proxy.Task
	once   sync.Once
}

func (d *display) clear() {
	d.once.Do(func() {
		if d.task != nil {
			d.task.Cancel()
		}
		if d.bar != nil {
			d.player.HideBossBar(d.bar)
		}
	})
}

func NewManager(scheduler proxy.Scheduler, logger *slog.Logger) *Manager {
	return &Manager{
		active:    make(map[uuid.UUID]*display),
		scheduler: scheduler,
		logger:    logger,
	}
}

// ShowJoin sends the join chat line, title and action bar, then attaches
// the boss bar and periodic action bar. The returned func clears only this
// display, so a stale caller cannot remove a newer one.
func (m *Manager) ShowJoin(p proxy.Player, cfg config.DisplayConfig) func() {
	onJoin := cfg.OnJoin

	if onJoin.Chat != "" {
		p.SendMessage(onJoin.Chat)
	}

	if onJoin.Title.Enabled {
		p.ShowTitle(proxy.Title{
			Title:    onJoin.Title.Title,
			Subtitle: onJoin.Title.Subtitle,
			FadeIn:   Ticks(onJoin.Title.FadeIn),
			Stay:     Ticks(onJoin.Title.Stay),
			FadeOut:  Ticks(onJoin.Title.FadeOut),
		})
	}

	if onJoin.ActionBar.Enabled && onJoin.ActionBar.Message != "" {
		p.SendActionBar(onJoin.ActionBar.Message)
	}

	d := &display{player: p}

	if cfg.BossBar.Enabled {
		color, ok := ParseColor(cfg.BossBar.Color)
		if !ok {
			m.logger.Warn("unknown boss bar color, using WHITE", "color", cfg.BossBar.Color)
		}
		overlay, ok := ParseOverlay(cfg.BossBar.Style)
		if !ok {
			m.logger.Warn("unknown boss bar style, using PROGRESS", "style", cfg.BossBar.Style)
		}
		d.bar = &proxy.BossBar{
			Name:     cfg.BossBar.Title,
			Progress: ClampProgress(cfg.BossBar.Progress),
			Color:    color,
			Overlay:  overlay,
		}
		p.ShowBossBar(d.bar)
	}

	if cfg.ActionBar.Enabled && cfg.ActionBar.Message != "" {
		interval := Ticks(max(1, cfg.ActionBar.Interval))
		message := cfg.ActionBar.Message
		d.task = m.scheduler.Every(interval, interval, func() {
			p.SendActionBar(message)
		})
	}

	m.mu.Lock()
	previous := m.active[p.ID()]
	m.active[p.ID()] = d
	m.mu.Unlock()

	if previous != nil {
		previous.clear()
	}

	return func() {
		m.mu.Lock()
		if m.active[p.ID()] == d {
			delete(m.active, p.ID())
		}
		m.mu.Unlock()
		d.clear()
	}
}

func (m *Manager) ClearPlayer(p proxy.Player) {
	m.mu.Lock()
	d := m.active[p.ID()]
	delete(m.active, p.ID())
	m.mu.Unlock()

	if d != nil {
		d.clear()
	}
}

func (m *Manager) ClearAll() {
	m.mu.Lock()
	displays := make([]*display, 0, len(m.active))
	for _, d := range m.active {
		displays = append(displays, d)
	}
	m.active = make(map[uuid.UUID]*display)
	m.mu.Unlock()

	for _, d := range displays {
		d.clear()
	}
}

func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func Ticks(n int) time.Duration {
	return time.Duration(n) * tick
}

func FormatCountdown(template string, seconds int) string {
	return strings.ReplaceAll(template, "{countdown}", strconv.Itoa(seconds))
}

func ClampProgress(progress float32) float32 {
	if progress < 0 {
		return 0
	}
	return min(progress, 1)
}

func ParseColor(s string) (proxy.BossBarColor, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WHITE":
		return proxy.BossBarWhite, true
	case "PINK":
		return proxy.BossBarPink, true
	case "BLUE":
		return proxy.BossBarBlue, true
	case "RED":
		return proxy.BossBarRed, true
	case "GREEN":
		return proxy.BossBarGreen, true
	case "YELLOW":
		return proxy.BossBarYellow, true
	case "PURPLE":
		return proxy.BossBarPurple, true
	default:
		return proxy.BossBarWhite, false
	}
}

// ParseOverlay accepts SOLID as an alias for PROGRESS.
func ParseOverlay(s string) (proxy.BossBarOverlay, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PROGRESS", "SOLID":
		return proxy.OverlayProgress, true
	case "NOTCHED_6", "SEGMENTED_6":
		return proxy.OverlayNotched6, true
	case "NOTCHED_10", "SEGMENTED_10":
		return proxy.OverlayNotched10, true
	case "NOTCHED_12", "SEGMENTED_12":
		return proxy.OverlayNotched12, true
	case "NOTCHED_20", "SEGMENTED_20":
		return proxy.OverlayNotched20, true
	default:
		return proxy.OverlayProgress, false
	}
}
