package world

import "testing"

func TestParseDimension(t *testing.T) {
	tests := []struct {
		in   string
		want Dimension
		ok   bool
	}{
		{"overworld", Overworld, true},
		{"NETHER", Nether, true},
		{"the_nether", Nether, true},
		{"End", TheEnd, true},
		{"THE_END", TheEnd, true},
		{"moon", Overworld, false},
		{"", Overworld, false},
	}

	for _, tt := range tests {
		got, ok := ParseDimension(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseDimension(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseGameModeDefaultsToAdventure(t *testing.T) {
	if got, ok := ParseGameMode("creative"); got != Creative || !ok {
		t.Fatalf("expected creative, got %v %v", got, ok)
	}
	if got, ok := ParseGameMode("hardcore"); got != Adventure || ok {
		t.Fatalf("expected adventure fallback, got %v %v", got, ok)
	}
}

func TestParseFileType(t *testing.T) {
	if got, _ := ParseFileType("schem"); got != WorldEditSchem {
		t.Fatalf("expected worldedit schem, got %v", got)
	}
	if got, _ := ParseFileType("Structure"); got != Structure {
		t.Fatalf("expected structure, got %v", got)
	}
	if got, ok := ParseFileType("litematic"); got != Schematic || ok {
		t.Fatalf("expected schematic fallback, got %v %v", got, ok)
	}
}
