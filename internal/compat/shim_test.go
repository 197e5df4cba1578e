package compat

import (
	"testing"

	"github.com/siohaza/limbogate/internal/memory"
	"github.com/siohaza/limbogate/internal/proxy"
)

func TestOverlay(t *testing.T) {
	o := NewOverlay()
	p := memory.NewPlayer("steve")
	lobby := proxy.ServerInfo{Name: "lobby", Host: "10.0.0.2", Port: 25565}

	if o.Clear(p) {
		t.Fatalf("clearing an unknown player must report false")
	}
	if !o.Inject(p, lobby) {
		t.Fatalf("inject failed")
	}
	if got, ok := o.CurrentServer(p.ID()); !ok || got != lobby {
		t.Fatalf("CurrentServer = %+v, %v", got, ok)
	}
	if o.Count() != 1 {
		t.Fatalf("expected one identity, got %d", o.Count())
	}
	if !o.Clear(p) {
		t.Fatalf("clear failed")
	}
	if _, ok := o.CurrentServer(p.ID()); ok {
		t.Fatalf("identity survived clear")
	}
}

func TestUnavailable(t *testing.T) {
	var s Shim = Unavailable{}
	p := memory.NewPlayer("steve")
	if s.Available() || s.Inject(p, proxy.ServerInfo{Name: "lobby"}) || s.Clear(p) {
		t.Fatalf("Unavailable must refuse everything")
	}
}
