package recording

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const (
	fileExtension   = ".json"
	filePermissions = 0644
	dirPermissions  = 0755
)

// FilePath builds the output path for a recording: dir/name-<unix>.json, or
// dir/name.json when timestamp is false.
func FilePath(dir, name string, timestamp bool, now time.Time) string {
	if timestamp {
		name += "-" + strconv.FormatInt(now.Unix(), 10)
	}
	return filepath.Join(dir, name+fileExtension)
}

// JSONFileSink streams rows into a JSON array file. The array is opened on
// creation and closed by Close, so a crashed recording leaves a truncated
// but recoverable file.
type JSONFileSink struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	path   string
	rows   int
	closed bool
}

// CreateJSONFile creates (or truncates) path and writes the opening bracket.
func CreateJSONFile(path string) (*JSONFileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating recording directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("creating recording file: %w", err)
	}

	s := &JSONFileSink{f: f, w: bufio.NewWriter(f), path: path}
	if _, err := s.w.WriteString("["); err != nil {
		f.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("writing recording file: %w", err)
	}
	return s, nil
}

// Path returns the file being written.
func (s *JSONFileSink) Path() string { return s.path }

// Rows returns how many rows have been written.
func (s *JSONFileSink) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// WriteRow appends row to the array, one row per line.
func (s *JSONFileSink) WriteRow(row Row) error {
	b, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encoding row: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.rows > 0 {
		if err := s.w.WriteByte(','); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing row: %w", err)
	}
	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("writing row: %w", err)
	}
	s.rows++
	return s.w.Flush()
}

// Close terminates the array and closes the file. Calling it again is a no-op.
func (s *JSONFileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if _, err := s.w.WriteString("\n]\n"); err != nil {
		s.f.Close() //nolint:errcheck // Original error takes precedence
		return fmt.Errorf("finishing recording file: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		s.f.Close() //nolint:errcheck // Original error takes precedence
		return fmt.Errorf("finishing recording file: %w", err)
	}
	return s.f.Close()
}

// ReadJSONFile loads every row of a recording file.
func ReadJSONFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recording: %w", err)
	}
	defer f.Close() //nolint:errcheck // Read-only

	var rows []Row
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedRow, path, err)
	}
	return rows, nil
}
