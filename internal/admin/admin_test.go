package admin

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/siohaza/limbogate/internal/memory"
	"github.com/siohaza/limbogate/internal/session"
	"github.com/siohaza/limbogate/pkg/config"
)

const perm = "limbogate.admin"

func newTestCommand(t *testing.T, reload func() error) (*Command, *session.Registry, *memory.Player, *memory.Player) {
	t.Helper()

	sched := memory.NewManualScheduler(time.Unix(0, 0))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := session.NewRegistry(session.Deps{
		Factory:   memory.NewEngine(sched),
		Servers:   memory.NewServers(),
		Scheduler: sched,
		Clock:     sched.Now,
		Logger:    logger,
	}, session.Options{})

	s := config.DefaultSession()
	s.Display = config.DisplayConfig{}
	registry.LoadAll(map[string]config.SessionConfig{"afk": s, "auth": s})

	operator := memory.NewPlayer("operator")
	steve := memory.NewPlayer("steve")

	cmd := NewCommand(Deps{
		Sessions:   registry,
		Players:    memory.NewPlayers(operator, steve),
		Reload:     reload,
		Permission: perm,
		Logger:     logger,
	})
	return cmd, registry, operator, steve
}

func TestPermissionRequired(t *testing.T) {
	cmd, _, operator, _ := newTestCommand(t, nil)

	cmd.Execute(operator, []string{"list"})
	if got := operator.LastMessage(); got != "&cYou do not have permission." {
		t.Fatalf("unexpected reply %q", got)
	}
	if got := cmd.Suggest(operator, []string{""}); got != nil {
		t.Fatalf("suggestions leaked without permission: %v", got)
	}
}

func TestListSendAndInfo(t *testing.T) {
	cmd, registry, operator, steve := newTestCommand(t, nil)
	operator.Grant(perm)

	cmd.Execute(operator, []string{"list"})
	if got := operator.LastMessage(); got != "&eLimbos: &fafk, auth" {
		t.Fatalf("unexpected list %q", got)
	}

	cmd.Execute(operator, []string{"send", "steve"})
	if got := operator.LastMessage(); got != "&cUsage: /limbogate send <player> <limbo>" {
		t.Fatalf("unexpected usage %q", got)
	}

	cmd.Execute(operator, []string{"send", "ghost", "afk"})
	if got := operator.LastMessage(); got != "&cPlayer not found." {
		t.Fatalf("unexpected reply %q", got)
	}

	cmd.Execute(operator, []string{"send", "steve", "nowhere"})
	if got := operator.LastMessage(); got != "&cFailed to send player. Limbo not found." {
		t.Fatalf("unexpected reply %q", got)
	}

	cmd.Execute(operator, []string{"SEND", "Steve", "afk"})
	if got := operator.LastMessage(); got != "&aSent &fsteve &ato limbo &fafk" {
		t.Fatalf("unexpected reply %q", got)
	}
	if name, _ := registry.PlayerSession(steve); name != "afk" {
		t.Fatalf("steve not in afk")
	}

	before := len(operator.Messages())
	cmd.Execute(operator, []string{"info", "afk"})
	want := []string{
		"&eLimbo: &fafk",
		"&ePlayers: &f1",
		"&eDimension: &fOVERWORLD",
		"&eGamemode: &fADVENTURE",
		"&eMovement: &fanti-fall",
	}
	if diff := cmp.Diff(want, operator.Messages()[before:]); diff != "" {
		t.Fatalf("unexpected info (-want +got):\n%s", diff)
	}

	cmd.Execute(operator, []string{"info", "nowhere"})
	if got := operator.LastMessage(); got != "&cLimbo not found." {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestSendAll(t *testing.T) {
	cmd, registry, operator, _ := newTestCommand(t, nil)
	operator.Grant(perm)

	cmd.Execute(operator, []string{"sendall", "nowhere"})
	if got := operator.LastMessage(); got != "&cLimbo not found." {
		t.Fatalf("unexpected reply %q", got)
	}

	cmd.Execute(operator, []string{"sendall", "auth"})
	if got := operator.LastMessage(); got != "&aSent &f2 &aplayer(s) to limbo &fauth" {
		t.Fatalf("unexpected reply %q", got)
	}
	if registry.PlayerCount("auth") != 2 {
		t.Fatalf("expected two players in auth")
	}
}

func TestReload(t *testing.T) {
	calls := 0
	fail := false
	cmd, _, operator, _ := newTestCommand(t, func() error {
		calls++
		if fail {
			return errors.New("bad config")
		}
		return nil
	})
	operator.Grant(perm)

	cmd.Execute(operator, []string{"reload"})
	if got := operator.LastMessage(); got != "&aLimbogate reloaded." || calls != 1 {
		t.Fatalf("unexpected reply %q after %d calls", got, calls)
	}

	fail = true
	cmd.Execute(operator, []string{"reload"})
	if got := operator.LastMessage(); got != "&cReload failed: bad config" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestHelpAndSuggestions(t *testing.T) {
	cmd, _, operator, _ := newTestCommand(t, nil)
	operator.Grant(perm)

	cmd.Execute(operator, []string{"bogus"})
	if got := len(operator.Messages()); got != 6 {
		t.Fatalf("expected six help lines, got %d", got)
	}

	tests := []struct {
		args []string
		want []string
	}{
		{[]string{"se"}, []string{"send", "sendall"}},
		{[]string{"send", "St"}, []string{"steve"}},
		{[]string{"send", "steve", "A"}, []string{"afk", "auth"}},
		{[]string{"info", "au"}, []string{"auth"}},
		{[]string{"list", "x"}, nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, cmd.Suggest(operator, tt.args)); diff != "" {
			t.Errorf("Suggest(%v) (-want +got):\n%s", tt.args, diff)
		}
	}
}
