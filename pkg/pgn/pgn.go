// Package pgn provides a streaming scanner for PGN game dumps.
//
// The scanner is built for the monthly multi-gigabyte archives: it reads one
// record at a time from an io.Reader, never materialises more than a single
// record in memory, and reuses its internal buffers across records.
//
// Basic usage:
//
//	sc := pgn.NewScanner(r, pgn.ModeHeader)
//	for {
//	    game, err := sc.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Printf("%s vs %s, %d moves\n",
//	        game.Tags["White"], game.Tags["Black"], game.Moves)
//	}
package pgn

// Mode selects how much of each record the scanner materialises.
type Mode int

const (
	// ModeHeader yields tags and the full-move count only. The move text is
	// scanned just far enough to count moves and find the record boundary.
	ModeHeader Mode = iota

	// ModeFull additionally yields the raw bytes of the whole record as it
	// appeared in the stream.
	ModeFull
)

// Game is a single record produced by the scanner.
type Game struct {
	// Tags maps tag names to values, e.g. Tags["White"] == "DrNykterstein".
	Tags map[string]string

	// Moves is the full-move count derived from the move text: the largest
	// move-number marker found outside comments and variations.
	Moves int

	// Raw covers the entire record (tag section, separating blank line, move
	// text) as it appeared in the stream, one trailing newline per line.
	// Only set in ModeFull, and only valid until the next call to Next.
	Raw []byte
}
