// Package archive implements the sharded per-player output: buffered
// in-memory accumulation of raw game records, flushed as independently
// decodable zstd frames appended to one file per player.
package archive

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
)

// playersDir is the archive subdirectory under the output root.
const playersDir = "players"

// Writer buffers raw game bytes per player and appends them to sharded
// .pgn.zst files. It is single-writer: one pass drives it at a time.
//
// Total buffered bytes across all players stay within the ceiling: an
// append that would cross it triggers a global flush first. A single record
// larger than the ceiling is still accepted into the emptied buffers, so
// residency overshoots by at most one record.
type Writer struct {
	root    string
	ceiling int64

	enc     *zstd.Encoder
	buffers map[string]*bytes.Buffer
	total   int64
	frame   []byte // scratch for encoded frames
}

// NewWriter creates a writer rooted at outDir with the given accumulator
// ceiling in bytes. The players directory is created on first use.
func NewWriter(outDir string, ceiling int64) (*Writer, error) {
	if ceiling <= 0 {
		return nil, fmt.Errorf("archive: ceiling must be positive, got %d", ceiling)
	}
	// EncodeAll on a nil-writer encoder keeps frame encoding fully in
	// memory; a frame reaches the file in a single append write.
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("archive: create encoder: %w", err)
	}
	return &Writer{
		root:    filepath.Join(outDir, playersDir),
		ceiling: ceiling,
		enc:     enc,
		buffers: make(map[string]*bytes.Buffer),
	}, nil
}

// Append buffers one raw game record for username. The record is stored
// followed by one blank line, so decoded frames are always a well-formed
// sequence of records regardless of how flushes split them.
func (w *Writer) Append(username string, raw []byte) error {
	grow := int64(len(raw)) + 1
	if w.total > 0 && w.total+grow > w.ceiling {
		if err := w.FlushAll(); err != nil {
			return err
		}
	}
	buf, ok := w.buffers[username]
	if !ok {
		buf = &bytes.Buffer{}
		w.buffers[username] = buf
	}
	buf.Write(raw)
	buf.WriteByte('\n')
	w.total += grow
	return nil
}

// Buffered reports the current total accumulator residency in bytes.
func (w *Writer) Buffered() int64 { return w.total }

// FlushAll encodes every non-empty accumulator as one zstd frame, appends
// it to the player's file, and fsyncs. All buffers are released afterwards.
func (w *Writer) FlushAll() error {
	names := make([]string, 0, len(w.buffers))
	for name := range w.buffers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		buf := w.buffers[name]
		if buf.Len() == 0 {
			continue
		}
		if err := w.appendFrame(name, buf.Bytes()); err != nil {
			return err
		}
	}
	// Drop the buffers rather than resetting them: with millions of players
	// the map itself is the residency.
	w.buffers = make(map[string]*bytes.Buffer)
	w.total = 0
	return nil
}

// appendFrame encodes content as a single frame and appends it with one
// write. A partially written frame is impossible short of a failed write,
// which is fatal for the dataset anyway.
func (w *Writer) appendFrame(username string, content []byte) error {
	w.frame = w.enc.EncodeAll(content, w.frame[:0])

	path := w.PathFor(username)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("archive: create shard dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", path, err)
	}
	if _, err := f.Write(w.frame); err != nil {
		f.Close()
		return fmt.Errorf("archive: append to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("archive: sync %s: %w", path, err)
	}
	return f.Close()
}

// Remove deletes a player's archive file. Absent files are not an error,
// so the prune can be re-run safely.
func (w *Writer) Remove(username string) error {
	err := os.Remove(w.PathFor(username))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("archive: remove %s: %w", username, err)
	}
	return nil
}

// Close flushes any remaining buffers and releases the encoder.
func (w *Writer) Close() error {
	if err := w.FlushAll(); err != nil {
		return err
	}
	return w.enc.Close()
}

// Dir returns the players directory.
func (w *Writer) Dir() string { return w.root }

// PathFor returns the archive path for a username, preserving the
// username's original case in the filename.
func (w *Writer) PathFor(username string) string {
	return filepath.Join(w.root, Shard(username), username+".pgn.zst")
}

// Shard derives the two-character shard bucket from a username: the
// lowercased first two characters. One-character names are padded with
// '_'; a second character outside [a-z0-9] becomes '_'. Empty names and
// names with a non-alphanumeric lead all fall into the "__" bucket.
func Shard(username string) string {
	if username == "" {
		return "__"
	}
	c0, ok := shardChar(username[0])
	if !ok {
		return "__"
	}
	c1 := byte('_')
	if len(username) > 1 {
		if c, ok := shardChar(username[1]); ok {
			c1 = c
		}
	}
	return string([]byte{c0, c1})
}

func shardChar(c byte) (byte, bool) {
	switch {
	case c >= 'a' && c <= 'z' || c >= '0' && c <= '9':
		return c, true
	case c >= 'A' && c <= 'Z':
		return c + ('a' - 'A'), true
	default:
		return 0, false
	}
}

// WalkFiles calls fn for every player archive currently on disk.
func (w *Writer) WalkFiles(fn func(path string) error) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		return fn(path)
	})
}
