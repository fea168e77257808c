package pgn

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildGame renders a record with the given tags and number of full moves.
func buildGame(tags map[string]string, moves int) string {
	var b strings.Builder
	for _, name := range []string{"Event", "Site", "White", "Black", "Result", "TimeControl"} {
		if v, ok := tags[name]; ok {
			fmt.Fprintf(&b, "[%s %q]\n", name, v)
		}
	}
	b.WriteString("\n")
	for i := 1; i <= moves; i++ {
		fmt.Fprintf(&b, "%d. d4 d5 ", i)
	}
	b.WriteString("1/2-1/2\n")
	return b.String()
}

func defaultTags() map[string]string {
	return map[string]string{
		"Event":       "Rated Blitz game",
		"Site":        "https://lichess.org/abcd1234",
		"White":       "Alice",
		"Black":       "Bob",
		"Result":      "1/2-1/2",
		"TimeControl": "300+0",
	}
}

func TestScannerHeaderMode(t *testing.T) {
	input := buildGame(defaultTags(), 40)
	sc := NewScanner(strings.NewReader(input), ModeHeader)

	g, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "Alice", g.Tags["White"])
	assert.Equal(t, "Bob", g.Tags["Black"])
	assert.Equal(t, "Rated Blitz game", g.Tags["Event"])
	assert.Equal(t, 40, g.Moves)
	assert.Nil(t, g.Raw)

	_, err = sc.Next()
	assert.Equal(t, io.EOF, err)
}

func TestScannerFullModeRoundTrip(t *testing.T) {
	// P6: the concatenation of raw records plus inter-record blank lines
	// reproduces the input.
	g1 := buildGame(defaultTags(), 12)
	tags2 := defaultTags()
	tags2["White"] = "Carol"
	g2 := buildGame(tags2, 7)
	input := g1 + "\n" + g2 + "\n"

	sc := NewScanner(strings.NewReader(input), ModeFull)

	var parts []string
	for {
		g, err := sc.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		parts = append(parts, string(g.Raw))
	}
	require.Len(t, parts, 2)
	assert.Equal(t, input, strings.Join(parts, "\n")+"\n")
}

func TestScannerRawInvalidatedByNext(t *testing.T) {
	input := buildGame(defaultTags(), 3) + "\n" + buildGame(defaultTags(), 3)
	sc := NewScanner(strings.NewReader(input), ModeFull)

	g1, err := sc.Next()
	require.NoError(t, err)
	first := string(g1.Raw) // copy before advancing

	g2, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, first, string(g2.Raw), "identical records share scratch content")
	assert.Same(t, &g1.Raw[0], &g2.Raw[0], "Raw aliases the scratch buffer that Next rewrites")
}

func TestMoveCounting(t *testing.T) {
	cases := []struct {
		name     string
		movetext string
		want     int
	}{
		{"plain", "1. e4 e5 2. Nf3 Nc6 3. Bb5 1-0", 3},
		{"black continuation", "1. e4 e5 2. Nf3 2... Nc6 0-1", 2},
		{"comment excluded", "1. e4 { deep line 44. Qh5 } e5 2. Nf3 *", 2},
		{"variation excluded", "1. e4 (1. d4 d5 9. c4) e5 2. Nf3 1-0", 2},
		{"nested", "1. e4 { a { b 30. x } c } e5 (2. d4 (7. f4)) 2. Nf3 1/2-1/2", 2},
		{"clock annotations", `1. e4 { [%clk 0:05:00] } e5 { [%clk 0:05:00] } 2. d4 1-0`, 2},
		{"after terminator ignored", "1. e4 e5 1-0 99. zz", 1},
		{"no numbers", "e4 e5 *", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := "[Event \"x\"]\n\n" + tc.movetext + "\n"
			sc := NewScanner(strings.NewReader(input), ModeHeader)
			g, err := sc.Next()
			require.NoError(t, err)
			assert.Equal(t, tc.want, g.Moves)
		})
	}
}

func TestScannerResyncOnMalformed(t *testing.T) {
	good := buildGame(defaultTags(), 5)
	// Unterminated comment: the record is skipped with a warning.
	bad := "[Event \"x\"]\n[White \"M\"]\n[Black \"N\"]\n\n1. e4 { never closed\n"
	input := bad + "\n" + good

	sc := NewScanner(strings.NewReader(input), ModeHeader)
	var warnings []error
	sc.OnWarning(func(err error) { warnings = append(warnings, err) })

	g, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "Alice", g.Tags["White"])
	assert.Equal(t, 5, g.Moves)

	_, err = sc.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 1, sc.Skipped())
	require.Len(t, warnings, 1)
	assert.IsType(t, &MalformedRecordError{}, warnings[0])
}

func TestScannerMissingBlankLine(t *testing.T) {
	bad := "[Event \"x\"]\n1. e4 e5 1-0\n"
	good := buildGame(defaultTags(), 2)
	sc := NewScanner(strings.NewReader(bad+"\n"+good), ModeHeader)

	g, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, g.Moves)
	assert.Equal(t, 1, sc.Skipped())
}

func TestScannerTruncatedInput(t *testing.T) {
	input := "[Event \"x\"]\n[White \"M\"]\n"
	sc := NewScanner(strings.NewReader(input), ModeHeader)
	_, err := sc.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 1, sc.Skipped())
}

func TestScannerEmptyHeaderBlock(t *testing.T) {
	sc := NewScanner(strings.NewReader("1. e4 e5 2. d4 1-0\n"), ModeHeader)
	g, err := sc.Next()
	require.NoError(t, err)
	assert.Empty(t, g.Tags)
	assert.Equal(t, 2, g.Moves)
}

func TestParseTag(t *testing.T) {
	cases := []struct {
		line, name, value string
	}{
		{`[Event "Rated Blitz game"]`, "Event", "Rated Blitz game"},
		{`  [White "O'Kelly"]  `, "White", "O'Kelly"},
		{`[Opening "Sicilian \"Najdorf\""]`, "Opening", `Sicilian \"Najdorf\"`},
		{`[Annotator]`, "Annotator", ""},
	}
	for _, tc := range cases {
		name, value, ok := parseTag([]byte(tc.line))
		require.True(t, ok, tc.line)
		assert.Equal(t, tc.name, name)
		assert.Equal(t, tc.value, value)
	}
}

func TestFilterMatch(t *testing.T) {
	game := func(moves int, mutate func(map[string]string)) *Game {
		tags := defaultTags()
		if mutate != nil {
			mutate(tags)
		}
		return &Game{Tags: tags, Moves: moves}
	}
	f := Filter{Event: "Rated Blitz game", TimeControl: "300+0", MinMoves: 30}

	assert.True(t, f.Match(game(40, nil)))
	assert.False(t, f.Match(game(29, nil)), "below move threshold")
	assert.False(t, f.Match(game(40, func(m map[string]string) { m["Event"] = "Rated Bullet game" })))
	assert.False(t, f.Match(game(40, func(m map[string]string) { m["TimeControl"] = "60+0" })))
	assert.False(t, f.Match(game(40, func(m map[string]string) { m["White"] = "" })))
	assert.False(t, f.Match(game(40, func(m map[string]string) { delete(m, "Black") })))

	// Absent time-control predicate accepts any time control.
	open := Filter{Event: "Rated Blitz game", MinMoves: 30}
	assert.True(t, open.Match(game(40, func(m map[string]string) { m["TimeControl"] = "60+0" })))
}
