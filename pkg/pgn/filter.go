package pgn

// Filter is the validity predicate applied to every scanned record.
// The zero value accepts any record that names both players.
type Filter struct {
	// Event must equal the record's Event tag exactly.
	Event string

	// TimeControl must equal the record's TimeControl tag exactly.
	// Empty means the predicate is absent and any time control is accepted.
	TimeControl string

	// MinMoves is the minimum full-move count.
	MinMoves int
}

// Match reports whether g satisfies the filter. Records missing either
// player name never match.
func (f Filter) Match(g *Game) bool {
	if f.Event != "" && g.Tags["Event"] != f.Event {
		return false
	}
	if f.TimeControl != "" && g.Tags["TimeControl"] != f.TimeControl {
		return false
	}
	if g.Moves < f.MinMoves {
		return false
	}
	return g.Tags["White"] != "" && g.Tags["Black"] != ""
}
