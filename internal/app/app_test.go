package app

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/siohaza/limbogate/internal/compat"
	"github.com/siohaza/limbogate/internal/memory"
	"github.com/siohaza/limbogate/internal/proxy"
	"github.com/siohaza/limbogate/pkg/config"
)

var lobby = proxy.ServerInfo{Name: "lobby", Host: "10.0.0.2", Port: 25565}

const loginScript = `
name = "login"

function execute(player, args)
  return "logged in as " .. player.name
end
`

type harness struct {
	app     *App
	sched   *memory.ManualScheduler
	players *memory.Players
	servers *memory.Servers
	engine  *memory.Engine
	overlay *compat.Overlay
}

func newHarness(t *testing.T, cfg *config.Config, configPath string) *harness {
	t.Helper()

	h := &harness{
		sched:   memory.NewManualScheduler(time.Unix(0, 0)),
		players: memory.NewPlayers(),
		servers: memory.NewServers(lobby),
		overlay: compat.NewOverlay(),
	}
	h.engine = memory.NewEngine(h.sched)

	a, err := New(cfg, Deps{
		Players:    h.players,
		Servers:    h.servers,
		Scheduler:  h.sched,
		Engine:     h.engine,
		Shim:       h.overlay,
		Registerer: prometheus.NewRegistry(),
		Clock:      h.sched.Now,
		ConfigPath: configPath,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.app = a
	t.Cleanup(a.Stop)
	return h
}

func (h *harness) join(name string) *memory.Player {
	p := memory.NewPlayer(name)
	h.players.Add(p)
	return p
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestNewRequiresRuntime(t *testing.T) {
	if _, err := New(nil, Deps{}); err == nil {
		t.Fatalf("expected an error without config")
	}
	if _, err := New(config.DefaultConfig(), Deps{}); err == nil {
		t.Fatalf("expected an error without an engine")
	}
}

func TestStartRegistersSessionsAndAliases(t *testing.T) {
	h := newHarness(t, testConfig(t), "")
	if err := h.app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if diff := cmp.Diff([]string{"afk", "auth", "fallback"}, h.app.Registry().Names()); diff != "" {
		t.Fatalf("unexpected sessions (-want +got):\n%s", diff)
	}

	alias, ok := h.servers.Server("auth")
	if !ok {
		t.Fatalf("auth alias was not registered")
	}
	if alias.Host != "127.0.0.1" || alias.Port != 1 {
		t.Fatalf("unexpected alias placeholder %+v", alias)
	}
}

func TestAliasHijackAndRelease(t *testing.T) {
	h := newHarness(t, testConfig(t), "")
	if err := h.app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	alias, _ := h.servers.Server("auth")
	p := h.join("steve")

	ev := proxy.NewPreConnectEvent(p, alias)
	h.app.Callbacks().OnPreConnect(ev)
	if ev.Allowed() {
		t.Fatalf("connection to the alias was not hijacked")
	}
	if name, _ := h.app.Registry().PlayerSession(p); name != "auth" {
		t.Fatalf("expected steve in auth, got %q", name)
	}

	lp, ok := h.engine.Player(p)
	if !ok {
		t.Fatalf("steve was not spawned")
	}

	release := proxy.NewPreConnectEvent(p, lobby)
	h.app.Callbacks().OnPreConnect(release)
	if release.Allowed() {
		t.Fatalf("release should replace the proxy connection with a limbo transfer")
	}
	if h.app.Registry().InSession(p) {
		t.Fatalf("steve still bound after release")
	}
	if diff := cmp.Diff([]proxy.ServerInfo{lobby}, lp.Disconnects()); diff != "" {
		t.Fatalf("unexpected transfer targets (-want +got):\n%s", diff)
	}
}

func TestKickFallbackAndDisconnect(t *testing.T) {
	h := newHarness(t, testConfig(t), "")
	if err := h.app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	p := h.join("alex")

	kick := &proxy.KickedEvent{Player: p, Server: lobby, Reason: "Server closed"}
	h.app.Callbacks().OnKicked(kick)
	if kick.Action != proxy.KickNotify {
		t.Fatalf("kick was not replaced with a notification")
	}
	if name, _ := h.app.Registry().PlayerSession(p); name != "fallback" {
		t.Fatalf("expected alex in fallback, got %q", name)
	}
	if h.app.Display().Active() == 0 {
		t.Fatalf("join display was not shown")
	}

	h.app.Callbacks().OnDisconnect(&proxy.DisconnectEvent{Player: p})
	if h.app.Registry().InSession(p) {
		t.Fatalf("alex still bound after disconnect")
	}
	if h.app.Display().Active() != 0 {
		t.Fatalf("display survived disconnect")
	}
	if _, ok := h.app.Triggers().LastActivity(p); ok {
		t.Fatalf("activity survived disconnect")
	}
}

func TestApplyRebindsOccupants(t *testing.T) {
	h := newHarness(t, testConfig(t), "")
	if err := h.app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	steve := h.join("steve")
	alex := h.join("alex")
	h.app.Registry().SendToSession(steve, "auth")
	h.app.Registry().SendToSession(alex, "afk")

	cfg := testConfig(t)
	delete(cfg.Sessions, "auth")
	cfg.Bridge.Aliases = map[string]string{"hold": "afk"}
	if err := h.app.Apply(cfg); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if h.app.Registry().Generation() != 2 {
		t.Fatalf("expected generation 2, got %d", h.app.Registry().Generation())
	}
	if name, _ := h.app.Registry().PlayerSession(alex); name != "afk" {
		t.Fatalf("alex was not rebound to afk")
	}
	if h.app.Registry().InSession(steve) {
		t.Fatalf("steve bound to a removed session")
	}
	if _, ok := h.servers.Server("auth"); ok {
		t.Fatalf("stale alias survived apply")
	}
	if _, ok := h.servers.Server("hold"); !ok {
		t.Fatalf("new alias was not registered")
	}
}

func TestWhitelistedCommandRunsScript(t *testing.T) {
	cfg := testConfig(t)
	dir := filepath.Join(cfg.DataDir, cfg.CommandsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "login.lua"), []byte(loginScript), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	h := newHarness(t, cfg, "")
	if err := h.app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.app.Commands().Count() != 1 {
		t.Fatalf("expected the login script to load")
	}

	p := h.join("steve")
	h.app.Registry().SendToSession(p, "auth")
	lp, _ := h.engine.Player(p)

	lp.Chat("/login hunter2")
	if got := p.LastMessage(); got != "logged in as steve" {
		t.Fatalf("unexpected reply %q", got)
	}

	lp.Chat("/spawn")
	if got := p.LastMessage(); got != cfg.Messages.CommandUnavailable {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestReloadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := testConfig(t)
	h := newHarness(t, cfg, path)
	if err := h.app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := h.app.Reload(); err == nil {
		t.Fatalf("expected reload to fail without a file")
	}

	body := `
data_dir = "` + filepath.ToSlash(dir) + `"

[admin]
permission = "ops.limbo"

[sessions.queue]
dimension = "NETHER"
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := h.app.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if diff := cmp.Diff([]string{"queue"}, h.app.Registry().Names()); diff != "" {
		t.Fatalf("unexpected sessions (-want +got):\n%s", diff)
	}

	op := h.join("op")
	op.Grant("ops.limbo")
	h.app.Admin().Execute(op, []string{"info", "queue"})
	if diff := cmp.Diff([]string{
		"&eLimbo: &fqueue",
		"&ePlayers: &f0",
		"&eDimension: &fNETHER",
		"&eGamemode: &fADVENTURE",
		"&eMovement: &fanti-fall",
	}, op.Messages()); diff != "" {
		t.Fatalf("unexpected info (-want +got):\n%s", diff)
	}
}

func TestReloadWithoutPath(t *testing.T) {
	h := newHarness(t, testConfig(t), "")
	if err := h.app.Reload(); !errors.Is(err, ErrNoConfigPath) {
		t.Fatalf("expected ErrNoConfigPath, got %v", err)
	}
}
