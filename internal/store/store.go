// Package store keeps an append-only JSONL history of delivered messages.
// Files rotate by line count or size: path, path.1 (newest rotation) up to
// path.MaxRotations.
package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	MaxLinesPerFile       = 10000
	MaxBytesPerFile int64 = 8 << 20
	MaxRotations          = 3
)

const maxLineSize = 1 << 20

// Record is one delivered message.
type Record struct {
	Time time.Time `json:"time"`
	From string    `json:"from"`
	Text string    `json:"text"`
}

// Store appends to a history file. It tracks the size and line count of the
// current file so appends do not rescan it.
type Store struct {
	mu    sync.Mutex
	path  string
	lines int
	size  int64
}

func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrapf(err, "create history dir for %s", path)
	}
	s := &Store{path: path}
	st, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, errors.Wrapf(err, "stat %s", path)
	default:
		if s.lines, err = countLines(path); err != nil {
			return nil, err
		}
		s.size = st.Size()
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Append encodes r as one line at the end of the file, rotating first when
// the file has reached MaxLinesPerFile lines or MaxBytesPerFile bytes.
func (s *Store) Append(r Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "encode record")
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full(int64(len(line))) {
		if err := rotate(s.path); err != nil {
			return err
		}
		s.lines, s.size = 0, 0
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrapf(err, "open %s", s.path)
	}
	defer f.Close()
	n, err := f.Write(line)
	s.size += int64(n)
	if err != nil {
		return errors.Wrapf(err, "append %s", s.path)
	}
	s.lines++
	return errors.WithStack(f.Sync())
}

func (s *Store) full(incoming int64) bool {
	if s.size > 0 && s.size+incoming > MaxBytesPerFile {
		return true
	}
	return s.lines >= MaxLinesPerFile
}

// List returns every retained record, oldest first. Lines that fail to
// decode are skipped.
func (s *Store) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for i := MaxRotations; i >= 0; i-- {
		recs, err := readRecords(rotated(s.path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// Tail returns the last n records, oldest first.
func (s *Store) Tail(n int) ([]Record, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return sc
}

func readRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	var out []Record
	sc := newScanner(f)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err == nil {
			out = append(out, r)
		}
	}
	return out, errors.Wrapf(sc.Err(), "read %s", path)
}

// rotate shifts path to path.1, path.1 to path.2 and so on, dropping the
// oldest rotation.
func rotate(path string) error {
	if MaxRotations <= 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "truncate %s", path)
		}
		return nil
	}
	_ = os.Remove(rotated(path, MaxRotations))
	for i := MaxRotations - 1; i >= 0; i-- {
		if err := os.Rename(rotated(path, i), rotated(path, i+1)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "rotate %s", path)
		}
	}
	syncDir(path)
	return nil
}

func countLines(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "read %s", path)
	}
	return bytes.Count(b, []byte{'\n'}), nil
}

func rotated(path string, i int) string {
	if i == 0 {
		return path
	}
	return path + "." + strconv.Itoa(i)
}

func syncDir(path string) {
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return
	}
	defer dir.Close()
	_ = dir.Sync()
}
