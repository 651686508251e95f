// Package sqlite stores named TrackMap snapshots in a SQLite database, with
// per-frame statistics alongside for querying from the SQL debug console.
package sqlite

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/lineage/internal/lineage"
	"github.com/banshee-data/lineage/internal/timeutil"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrSnapshotNotFound is returned for unknown snapshot ids.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Store is a snapshot database.
type Store struct {
	db   *sql.DB
	path string

	// CompressionLevel is the zstd level used for snapshot blobs.
	CompressionLevel int
	// Clock stamps new snapshots.
	Clock timeutil.Clock
}

// Snapshot describes one stored TrackMap.
type Snapshot struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	DatasetID uuid.UUID `json:"dataset_id"`
	FrameNum  int       `json:"frame_num"`
	Version   int       `json:"format_version"`
	Created   time.Time `json:"created"`
	Size      int       `json:"size"` // blob size in bytes
}

// Open opens (creating if needed) the database at path and applies all
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps the foreign_keys pragma in force.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db, path: path, CompressionLevel: 3, Clock: timeutil.RealClock{}}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// SaveSnapshot encodes tm in the track file format and stores it under name,
// together with the per-frame statistics.
func (s *Store) SaveSnapshot(name string, tm *lineage.TrackMap) (Snapshot, error) {
	p := lineage.NewProcessor(tm, lineage.ProcessorConfig{CompressionLevel: s.CompressionLevel})
	enc, err := p.Encode()
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode snapshot: %w", err)
	}
	stats := enc.Stats

	snap := Snapshot{
		ID:        uuid.New(),
		Name:      name,
		DatasetID: enc.Dataset,
		FrameNum:  len(stats),
		Version:   lineage.FormatVersion,
		Created:   s.Clock.Now(),
		Size:      len(enc.Data),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Snapshot{}, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO lineage_snapshots
			(snapshot_id, name, dataset_id, frame_num, format_version, created_unix_nanos, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID.String(), snap.Name, snap.DatasetID.String(), snap.FrameNum,
		snap.Version, snap.Created.UnixNano(), enc.Data,
	); err != nil {
		return Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO lineage_frame_stats
			(snapshot_id, frame, cells, vertices, edges, linked_edges)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return Snapshot{}, err
	}
	defer stmt.Close()
	for _, fs := range stats {
		if _, err := stmt.Exec(snap.ID.String(), fs.Frame, fs.Cells, fs.Vertices, fs.Edges, fs.LinkedEdges); err != nil {
			return Snapshot{}, fmt.Errorf("insert frame stats: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// LoadSnapshot replaces the contents of tm with a stored snapshot. A corrupt
// blob leaves tm unchanged.
func (s *Store) LoadSnapshot(id uuid.UUID, tm *lineage.TrackMap) error {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM lineage_snapshots WHERE snapshot_id = ?`, id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("load %s: %w", id, ErrSnapshotNotFound)
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", id, err)
	}
	return lineage.NewProcessor(tm, lineage.DefaultProcessorConfig()).ImportFrom(bytes.NewReader(data))
}

// ListSnapshots returns all snapshots, newest first.
func (s *Store) ListSnapshots() ([]Snapshot, error) {
	rows, err := s.db.Query(`
		SELECT snapshot_id, name, dataset_id, frame_num, format_version, created_unix_nanos, length(data)
		FROM lineage_snapshots
		ORDER BY created_unix_nanos DESC, snapshot_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			snap         Snapshot
			id, dataset  string
			createdNanos int64
		)
		if err := rows.Scan(&id, &snap.Name, &dataset, &snap.FrameNum, &snap.Version, &createdNanos, &snap.Size); err != nil {
			return nil, err
		}
		if snap.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("snapshot id %q: %w", id, err)
		}
		if snap.DatasetID, err = uuid.Parse(dataset); err != nil {
			return nil, fmt.Errorf("dataset id %q: %w", dataset, err)
		}
		snap.Created = time.Unix(0, createdNanos)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// FrameStats returns the per-frame statistics recorded with a snapshot.
func (s *Store) FrameStats(id uuid.UUID) ([]lineage.FrameStats, error) {
	rows, err := s.db.Query(`
		SELECT frame, cells, vertices, edges, linked_edges
		FROM lineage_frame_stats
		WHERE snapshot_id = ?
		ORDER BY frame`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lineage.FrameStats
	for rows.Next() {
		var fs lineage.FrameStats
		if err := rows.Scan(&fs.Frame, &fs.Cells, &fs.Vertices, &fs.Edges, &fs.LinkedEdges); err != nil {
			return nil, err
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}

// DeleteSnapshot removes a snapshot and its statistics.
func (s *Store) DeleteSnapshot(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM lineage_frame_stats WHERE snapshot_id = ?`, id.String()); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM lineage_snapshots WHERE snapshot_id = ?`, id.String())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete %s: %w", id, ErrSnapshotNotFound)
	}
	return tx.Commit()
}
