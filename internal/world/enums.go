package world

import "strings"

type Dimension int

const (
	Overworld Dimension = iota
	Nether
	TheEnd
)

func (d Dimension) String() string {
	switch d {
	case Nether:
		return "NETHER"
	case TheEnd:
		return "THE_END"
	default:
		return "OVERWORLD"
	}
}

// ParseDimension never fails; unknown values map to Overworld and report
// ok=false so the caller can warn.
func ParseDimension(s string) (Dimension, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OVERWORLD":
		return Overworld, true
	case "NETHER", "THE_NETHER":
		return Nether, true
	case "END", "THE_END":
		return TheEnd, true
	default:
		return Overworld, false
	}
}

type GameMode int

const (
	Adventure GameMode = iota
	Survival
	Creative
	Spectator
)

func (g GameMode) String() string {
	switch g {
	case Survival:
		return "SURVIVAL"
	case Creative:
		return "CREATIVE"
	case Spectator:
		return "SPECTATOR"
	default:
		return "ADVENTURE"
	}
}

func ParseGameMode(s string) (GameMode, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ADVENTURE":
		return Adventure, true
	case "SURVIVAL":
		return Survival, true
	case "CREATIVE":
		return Creative, true
	case "SPECTATOR":
		return Spectator, true
	default:
		return Adventure, false
	}
}

type FileType int

const (
	Schematic FileType = iota
	WorldEditSchem
	Structure
)

func (f FileType) String() string {
	switch f {
	case WorldEditSchem:
		return "WORLDEDIT_SCHEM"
	case Structure:
		return "STRUCTURE"
	default:
		return "SCHEMATIC"
	}
}

func ParseFileType(s string) (FileType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SCHEMATIC":
		return Schematic, true
	case "WORLDEDIT_SCHEM", "SCHEM":
		return WorldEditSchem, true
	case "STRUCTURE":
		return Structure, true
	default:
		return Schematic, false
	}
}
