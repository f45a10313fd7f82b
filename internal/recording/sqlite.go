package recording

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RandomStudio/tether/internal/infrastructure/database"
)

// Summary describes a stored recording.
type Summary struct {
	Name      string
	Filter    string
	CreatedAt time.Time
	Rows      int
	Duration  time.Duration // sum of row deltas
}

// SQLiteStore keeps recordings in the tables created by the embedded
// migrations.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore wraps an opened, migrated database.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Create starts a new recording named name. Names are unique.
func (s *SQLiteStore) Create(ctx context.Context, name, filter string) (*SQLiteSink, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO recordings (name, filter, created_at) VALUES (?, ?, ?)",
		name, filter, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("creating recording %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating recording %q: %w", name, err)
	}
	// Rows arriving after ctx is cancelled (during shutdown) are still kept.
	return &SQLiteSink{ctx: context.WithoutCancel(ctx), db: s.db, id: id}, nil
}

// Load returns the rows of recording name in recorded order.
func (s *SQLiteStore) Load(ctx context.Context, name string) ([]Row, error) {
	id, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT topic, payload, delta_ms FROM recorded_messages WHERE recording_id = ? ORDER BY seq",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("loading recording %q: %w", name, err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var out []Row
	for rows.Next() {
		var (
			r     Row
			delta int64
		)
		if err := rows.Scan(&r.Topic, (*[]byte)(&r.Message), &delta); err != nil {
			return nil, fmt.Errorf("loading recording %q: %w", name, err)
		}
		r.DeltaTime = uint64(delta) // #nosec G115 -- stored from a uint64
		out = append(out, r)
	}
	return out, rows.Err()
}

// List returns every stored recording, oldest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.name, r.filter, r.created_at, COUNT(m.seq), COALESCE(SUM(m.delta_ms), 0)
		FROM recordings r
		LEFT JOIN recorded_messages m ON m.recording_id = r.id
		GROUP BY r.id
		ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var out []Summary
	for rows.Next() {
		var (
			sum     Summary
			created string
			totalMS int64
		)
		if err := rows.Scan(&sum.Name, &sum.Filter, &created, &sum.Rows, &totalMS); err != nil {
			return nil, fmt.Errorf("listing recordings: %w", err)
		}
		sum.CreatedAt, _ = time.Parse(time.RFC3339Nano, created) //nolint:errcheck // Zero time if unparsable
		sum.Duration = time.Duration(totalMS) * time.Millisecond
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a recording and its rows.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM recordings WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting recording %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return nil
}

func (s *SQLiteStore) lookup(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM recordings WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return 0, fmt.Errorf("looking up recording %q: %w", name, err)
	}
	return id, nil
}

// SQLiteSink appends rows to one stored recording.
type SQLiteSink struct {
	ctx    context.Context
	db     *database.DB
	id     int64
	mu     sync.Mutex
	seq    int64
	closed bool
}

// WriteRow stores row as the next message of the recording.
func (s *SQLiteSink) WriteRow(row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	payload := []byte(row.Message)
	if payload == nil {
		payload = []byte{}
	}
	_, err := s.db.ExecContext(s.ctx,
		"INSERT INTO recorded_messages (recording_id, seq, topic, payload, delta_ms) VALUES (?, ?, ?, ?, ?)",
		s.id, s.seq, row.Topic, payload, int64(row.DeltaTime), // #nosec G115 -- deltas are milliseconds
	)
	if err != nil {
		return fmt.Errorf("storing row: %w", err)
	}
	s.seq++
	return nil
}

// Close marks the sink finished. The database stays open.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
