package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/featuretrack/internal/vision/l5tracks"
	"github.com/banshee-data/featuretrack/internal/vision/pipeline"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ pipeline.FrameObserver = (*Recorder)(nil)

// ErrUnknownSession is returned when a frame is recorded against a session
// that BeginSession never created.
var ErrUnknownSession = errors.New("sqlite: unknown session")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// Store persists tracking sessions.
type Store struct {
	db *sql.DB
}

// Observation is one recorded track position.
type Observation struct {
	FrameIndex uint64
	TrackID    int64
	X, Y       float64
	Status     string
	Age        int
	// Fault is empty unless the track was lost in this frame.
	Fault string
}

// FrameStat is one recorded frame summary.
type FrameStat struct {
	FrameIndex       uint64
	Live             int
	Spawned          int
	Dropped          int
	Reactivated      int
	Respawned        int
	DDAPass          bool
	MeanDisplacement float64
	StdDisplacement  float64
}

// Open opens (creating if needed) the database at path and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps the per-connection pragmas in force.
	db.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := msqlite.WithInstance(db, &msqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}
	// m is not closed: closing it would close db as well.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginSession creates a session row and returns its ID.
func (s *Store) BeginSession(source, configJSON string) (string, error) {
	if strings.TrimSpace(configJSON) == "" {
		configJSON = "{}"
	}
	id := uuid.New().String()
	_, err := s.db.Exec(`
		INSERT INTO tracking_sessions (session_id, source, config_json)
		VALUES (?, ?, ?)`, id, source, configJSON)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// RecordFrame stores the summary of r, an observation for every active
// track, and a lost observation for every dropped track.
func (s *Store) RecordFrame(sessionID string, r *pipeline.FrameResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE tracking_sessions SET frame_count = frame_count + 1
		WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	_, err = tx.Exec(`
		INSERT INTO tracking_frames (
			session_id, frame_index, live, spawned, dropped, reactivated,
			respawned, dda_pass, mean_displacement, std_displacement
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, r.FrameIndex, len(r.Active), len(r.Spawned), len(r.Dropped),
		r.Reactivated, r.Respawned, r.DDAPass, r.MeanDisplacement, r.StdDisplacement)
	if err != nil {
		return fmt.Errorf("insert frame %d: %w", r.FrameIndex, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO track_observations (
			session_id, frame_index, track_id, x, y, status, age, fault
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare observation: %w", err)
	}
	defer stmt.Close()

	insert := func(t l5tracks.Track) error {
		var fault interface{}
		if t.Status == l5tracks.StatusLost {
			fault = t.Fault.String()
		}
		_, err := stmt.Exec(sessionID, r.FrameIndex, t.ID, t.X, t.Y, string(t.Status), t.Age, fault)
		if err != nil {
			return fmt.Errorf("insert observation of track %d: %w", t.ID, err)
		}
		return nil
	}
	for _, t := range r.Active {
		if err := insert(t); err != nil {
			return err
		}
	}
	for _, t := range r.Dropped {
		if err := insert(t); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// TrackObservations returns the recorded path of one track in frame order.
func (s *Store) TrackObservations(sessionID string, trackID int64) ([]Observation, error) {
	rows, err := s.db.Query(`
		SELECT frame_index, track_id, x, y, status, age, fault
		FROM track_observations
		WHERE session_id = ? AND track_id = ?
		ORDER BY frame_index`, sessionID, trackID)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		var fault sql.NullString
		if err := rows.Scan(&o.FrameIndex, &o.TrackID, &o.X, &o.Y, &o.Status, &o.Age, &fault); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Fault = fault.String
		out = append(out, o)
	}
	return out, rows.Err()
}

// FrameStats returns every recorded frame summary of a session in order.
func (s *Store) FrameStats(sessionID string) ([]FrameStat, error) {
	rows, err := s.db.Query(`
		SELECT frame_index, live, spawned, dropped, reactivated, respawned,
		       dda_pass, mean_displacement, std_displacement
		FROM tracking_frames
		WHERE session_id = ?
		ORDER BY frame_index`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var out []FrameStat
	for rows.Next() {
		var f FrameStat
		if err := rows.Scan(&f.FrameIndex, &f.Live, &f.Spawned, &f.Dropped, &f.Reactivated,
			&f.Respawned, &f.DDAPass, &f.MeanDisplacement, &f.StdDisplacement); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FrameCount returns the number of frames recorded for a session.
func (s *Store) FrameCount(sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT frame_count FROM tracking_sessions WHERE session_id = ?`, sessionID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return n, err
}

// Recorder adapts a Store session to pipeline.FrameObserver. Write errors
// are kept and returned by Err; recording stops at the first one.
type Recorder struct {
	store     *Store
	sessionID string
	err       error
}

// NewRecorder returns a recorder writing to sessionID.
func NewRecorder(store *Store, sessionID string) *Recorder {
	return &Recorder{store: store, sessionID: sessionID}
}

// ObserveFrame implements pipeline.FrameObserver.
func (r *Recorder) ObserveFrame(res *pipeline.FrameResult, _ time.Duration) {
	if r.err != nil {
		return
	}
	r.err = r.store.RecordFrame(r.sessionID, res)
}

// Err returns the first recording error.
func (r *Recorder) Err() error {
	return r.err
}
