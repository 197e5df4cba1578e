package trigger

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/siohaza/limbogate/internal/memory"
	"github.com/siohaza/limbogate/internal/proxy"
	"github.com/siohaza/limbogate/pkg/config"
)

type fakeSessions struct {
	accept bool
	sent   []string
	in     map[string]bool
}

func (f *fakeSessions) SendToSession(p proxy.Player, name string) bool {
	f.sent = append(f.sent, p.Name()+"->"+name)
	return f.accept
}

func (f *fakeSessions) InSession(p proxy.Player) bool {
	return f.in[p.Name()]
}

func newTestEngine(cfg config.TriggersConfig, sessions *fakeSessions, players ...proxy.Player) (*Engine, *memory.ManualScheduler) {
	sched := memory.NewManualScheduler(time.Unix(0, 0))
	e := NewEngine(Deps{
		Sessions:  sessions,
		Players:   memory.NewPlayers(players...),
		Scheduler: sched,
		Clock:     sched.Now,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, cfg)
	return e, sched
}

func TestShouldFallback(t *testing.T) {
	cfg := config.DefaultConfig().Triggers
	cfg.Fallback.KickPatterns = []string{".*timed out.*", "server closed", "(broken"}
	e, _ := newTestEngine(cfg, &fakeSessions{})

	tests := []struct {
		reason string
		want   bool
	}{
		{"Connection timed out after 30s", true},
		{"CONNECTION TIMED OUT", true},
		{"Server closed", true},
		{"The server closed unexpectedly", false},
		{"", false},
		{"kicked by an operator", false},
	}
	for _, tt := range tests {
		if got := e.ShouldFallback(tt.reason); got != tt.want {
			t.Errorf("ShouldFallback(%q) = %v, want %v", tt.reason, got, tt.want)
		}
	}

	cfg.Fallback.Enabled = false
	e.Reconfigure(cfg)
	if e.ShouldFallback("Connection timed out after 30s") {
		t.Fatalf("disabled fallback must never match")
	}
}

func TestIdleScan(t *testing.T) {
	cfg := config.DefaultConfig().Triggers
	cfg.AFK.Enabled = true
	cfg.AFK.IdleTime = 60
	cfg.AFK.CheckInterval = 10

	alex := memory.NewPlayer("alex")
	boss := memory.NewPlayer("boss")
	boss.Grant(cfg.AFK.ExemptPermission)
	parked := memory.NewPlayer("parked")

	sessions := &fakeSessions{accept: true, in: map[string]bool{"parked": true}}
	e, sched := newTestEngine(cfg, sessions, alex, boss, parked)

	e.MarkActivity(alex)
	e.MarkActivity(boss)
	e.Start()

	sched.Advance(50 * time.Second)
	if len(sessions.sent) != 0 {
		t.Fatalf("redirected too early: %v", sessions.sent)
	}

	sched.Advance(10 * time.Second)
	if diff := cmp.Diff([]string{"alex->afk"}, sessions.sent); diff != "" {
		t.Fatalf("unexpected redirects (-want +got):\n%s", diff)
	}
	if alex.LastMessage() != cfg.AFK.Message {
		t.Fatalf("expected afk message, got %q", alex.LastMessage())
	}
	if last, _ := e.LastActivity(alex); !last.Equal(sched.Now()) {
		t.Fatalf("activity not reset after redirect")
	}

	sched.Advance(10 * time.Second)
	if len(sessions.sent) != 1 {
		t.Fatalf("expected exactly one redirect, got %v", sessions.sent)
	}

	e.Stop()
	sched.Advance(time.Hour)
	if len(sessions.sent) != 1 {
		t.Fatalf("scan kept running after Stop")
	}
}

func TestIdleScanResetsOnFailure(t *testing.T) {
	cfg := config.DefaultConfig().Triggers
	cfg.AFK.Enabled = true
	cfg.AFK.IdleTime = 30
	cfg.AFK.CheckInterval = 30

	alex := memory.NewPlayer("alex")
	sessions := &fakeSessions{}
	e, sched := newTestEngine(cfg, sessions, alex)
	e.Start()

	// first scan only records alex
	sched.Advance(30 * time.Second)
	sched.Advance(30 * time.Second)
	sched.Advance(15 * time.Second)

	if len(sessions.sent) != 1 {
		t.Fatalf("expected one attempt, got %v", sessions.sent)
	}
	if alex.LastMessage() != "" {
		t.Fatalf("failed redirect must not send the message")
	}
	if last, _ := e.LastActivity(alex); !last.Equal(time.Unix(60, 0)) {
		t.Fatalf("expected activity reset at the failing scan, got %v", last)
	}
}

func TestHandleKick(t *testing.T) {
	cfg := config.DefaultConfig().Triggers
	cfg.Fallback.KickPatterns = []string{".*timed out.*"}
	sessions := &fakeSessions{accept: true}
	e, _ := newTestEngine(cfg, sessions)

	alex := memory.NewPlayer("alex")
	ev := &proxy.KickedEvent{Player: alex, Server: proxy.ServerInfo{Name: "survival"}, Reason: "Read timed out"}
	e.OnKicked(ev)

	if ev.Action != proxy.KickNotify || ev.Message != "" {
		t.Fatalf("expected the kick to be turned into a notify, got %+v", ev)
	}
	if alex.LastMessage() != cfg.Fallback.Message {
		t.Fatalf("expected fallback message, got %q", alex.LastMessage())
	}

	other := &proxy.KickedEvent{Player: alex, Reason: "banned"}
	e.OnKicked(other)
	if other.Action != proxy.KickDisconnect || len(sessions.sent) != 1 {
		t.Fatalf("non-matching kick must pass through")
	}
}
