package pgn

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// readerBufSize is sized so that a whole record almost always fits in one
// buffered read; records in the monthly dumps are a few kilobytes at most.
const readerBufSize = 1 << 20

// Scanner reads PGN records sequentially from a byte stream.
//
// A Scanner is a forward-only iterator: Next advances to the following record
// or returns io.EOF. Records that violate the grammar are skipped; the
// scanner resynchronises at the next tag line and reports the skip through
// the warning hook. Any other error from Next is fatal for the stream.
//
// The Scanner owns a scratch buffer that is reused for every record, so a
// Game returned in ModeFull is only valid until the next call to Next.
type Scanner struct {
	r    *bufio.Reader
	mode Mode

	raw  []byte // current record, rebuilt in place each Next
	long []byte // spill buffer for lines longer than the reader buffer

	lineno  int
	skipped int
	warn    func(error)
}

// NewScanner creates a Scanner over r in the given mode. r must yield the
// decompressed text of the dump.
func NewScanner(r io.Reader, mode Mode) *Scanner {
	return &Scanner{
		r:    bufio.NewReaderSize(r, readerBufSize),
		mode: mode,
	}
}

// OnWarning installs a hook invoked once per skipped malformed record.
func (s *Scanner) OnWarning(fn func(error)) { s.warn = fn }

// Skipped reports how many malformed records have been skipped so far.
func (s *Scanner) Skipped() int { return s.skipped }

// Next returns the next record, or io.EOF at end of input. Malformed records
// are skipped internally; an error other than io.EOF means the stream itself
// is unreadable and the scan cannot continue.
func (s *Scanner) Next() (*Game, error) {
	for {
		g, err := s.scanRecord()
		if err == nil {
			return g, nil
		}
		if err == io.EOF {
			return nil, io.EOF
		}
		var malformed *MalformedRecordError
		if !errors.As(err, &malformed) {
			return nil, err
		}
		s.skipped++
		if s.warn != nil {
			s.warn(err)
		}
		if err := s.resync(); err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, err
		}
	}
}

// scanRecord reads one record: an optional tag section, one blank line, then
// a move-text block ended by a blank line or end of input.
func (s *Scanner) scanRecord() (*Game, error) {
	s.raw = s.raw[:0]

	// Skip blank lines between records.
	var line []byte
	for {
		l, err := s.readLine()
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(l)) > 0 {
			line = l
			break
		}
	}

	tags := make(map[string]string, 16)
	sawTags := false
	for isTagLine(line) {
		sawTags = true
		if name, value, ok := parseTag(line); ok {
			tags[name] = value
		}
		s.appendRaw(line)
		l, err := s.readLine()
		if err == io.EOF {
			return nil, newMalformedRecordError("record truncated after tag section", s.lineno)
		}
		if err != nil {
			return nil, err
		}
		line = l
	}

	if sawTags {
		// Exactly one blank line separates the tag section from move text.
		if len(bytes.TrimSpace(line)) > 0 {
			return nil, newMalformedRecordError("missing blank line after tag section", s.lineno)
		}
		s.appendRaw(line)
		l, err := s.readLine()
		if err == io.EOF {
			return nil, newMalformedRecordError("record has no move text", s.lineno)
		}
		if err != nil {
			return nil, err
		}
		line = l
	}

	var moves movetext
	for {
		if len(bytes.TrimSpace(line)) == 0 {
			break
		}
		moves.scanLine(line)
		s.appendRaw(line)
		l, err := s.readLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line = l
	}

	if !moves.sawText {
		return nil, newMalformedRecordError("record has no move text", s.lineno)
	}
	if moves.braces > 0 || moves.parens > 0 {
		return nil, newMalformedRecordError("unterminated comment or variation", s.lineno)
	}

	g := &Game{Tags: tags, Moves: moves.maxMove}
	if s.mode == ModeFull {
		g.Raw = s.raw
	}
	return g, nil
}

// resync discards input until the next line starting with '[', leaving that
// line unconsumed for the following scanRecord.
func (s *Scanner) resync() error {
	for {
		b, err := s.r.Peek(1)
		if err != nil {
			if err == io.EOF {
				return io.EOF
			}
			return newSourceError(err, s.lineno)
		}
		if b[0] == '[' {
			return nil
		}
		if _, err := s.readLine(); err != nil {
			return err
		}
	}
}

// readLine returns the next line without its trailing newline. The returned
// slice aliases the reader's internal buffer and is only valid until the next
// read. io.EOF is returned only when no bytes remain.
func (s *Scanner) readLine() ([]byte, error) {
	line, err := s.r.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		// Rare oversized line: spill into the long-line buffer.
		s.long = append(s.long[:0], line...)
		for err == bufio.ErrBufferFull {
			line, err = s.r.ReadSlice('\n')
			s.long = append(s.long, line...)
		}
		line = s.long
	}
	if err != nil && err != io.EOF {
		return nil, newSourceError(err, s.lineno)
	}
	if err == io.EOF && len(line) == 0 {
		return nil, io.EOF
	}
	s.lineno++
	return trimEOL(line), nil
}

func (s *Scanner) appendRaw(line []byte) {
	if s.mode != ModeFull {
		return
	}
	s.raw = append(s.raw, line...)
	s.raw = append(s.raw, '\n')
}

func trimEOL(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}

// isTagLine reports whether the line opens a tag pair. Surrounding
// whitespace is tolerated.
func isTagLine(line []byte) bool {
	t := bytes.TrimSpace(line)
	return len(t) > 0 && t[0] == '['
}

// parseTag extracts the name and value from a `[Name "Value"]` line. The
// value is the substring between the first and last double quote; lines
// without a quoted value yield the bare name with an empty value.
func parseTag(line []byte) (name, value string, ok bool) {
	t := bytes.TrimSpace(line)
	if len(t) < 2 || t[0] != '[' {
		return "", "", false
	}
	inner := t[1:]
	if inner[len(inner)-1] == ']' {
		inner = inner[:len(inner)-1]
	}
	first := bytes.IndexByte(inner, '"')
	last := bytes.LastIndexByte(inner, '"')
	if first < 0 || last <= first {
		name = string(bytes.TrimSpace(inner))
		return name, "", name != ""
	}
	name = string(bytes.TrimSpace(inner[:first]))
	value = string(inner[first+1 : last])
	return name, value, name != ""
}
