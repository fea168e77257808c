package pgn

import "bytes"

// Result terminator tokens. Any of these ends the move text of a record.
var terminators = [][]byte{
	[]byte("1-0"),
	[]byte("0-1"),
	[]byte("1/2-1/2"),
	[]byte("*"),
}

// movetext accumulates state while scanning a record's move-text block.
// Comments `{...}` and variations `(...)` nest, so both are tracked with
// counters; move-number markers inside either are not counted.
type movetext struct {
	braces  int
	parens  int
	maxMove int
	sawText bool
	done    bool // result terminator seen
}

func (m *movetext) scanLine(line []byte) {
	m.sawText = true
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == '{':
			m.braces++
			i++
		case c == '}':
			if m.braces > 0 {
				m.braces--
			}
			i++
		case m.braces > 0:
			i++
		case c == '(':
			m.parens++
			i++
		case c == ')':
			if m.parens > 0 {
				m.parens--
			}
			i++
		case m.parens > 0 || m.done:
			i++
		case c == '*' && atTokenStart(line, i):
			m.done = true
			i++
		case c >= '0' && c <= '9':
			if atTokenStart(line, i) && m.matchTerminator(line, i) {
				i = len(line)
				break
			}
			i = m.scanNumber(line, i)
		default:
			i++
		}
	}
}

// scanNumber consumes a digit run at i; a run immediately followed by a dot
// is a move-number marker and updates the running maximum. Continuation
// markers like `12...` are consumed whole.
func (m *movetext) scanNumber(line []byte, i int) int {
	n, digits := 0, 0
	j := i
	for j < len(line) && line[j] >= '0' && line[j] <= '9' {
		if digits < 9 {
			n = n*10 + int(line[j]-'0')
			digits++
		}
		j++
	}
	if j < len(line) && line[j] == '.' {
		if n > m.maxMove {
			m.maxMove = n
		}
		for j < len(line) && line[j] == '.' {
			j++
		}
	}
	return j
}

// matchTerminator reports whether a result terminator token starts at i.
func (m *movetext) matchTerminator(line []byte, i int) bool {
	for _, t := range terminators {
		end := i + len(t)
		if end > len(line) {
			continue
		}
		if !bytes.Equal(line[i:end], t) {
			continue
		}
		if end == len(line) || line[end] == ' ' || line[end] == '\t' {
			m.done = true
			return true
		}
	}
	return false
}

func atTokenStart(line []byte, i int) bool {
	return i == 0 || line[i-1] == ' ' || line[i-1] == '\t'
}
