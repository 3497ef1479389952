package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trackdrop/pkg/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a looked-up album or track does not exist
var ErrNotFound = errors.New("not found")

// Database wraps a *sql.DB holding the album catalog. It is safe for
// concurrent use because the underlying *sql.DB is concurrency-safe.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	insertAlbumStmt    *sql.Stmt
	updateAlbumStmt    *sql.Stmt
	getAlbumStmt       *sql.Stmt
	insertTrackStmt    *sql.Stmt
	getTrackStmt       *sql.Stmt
	getAlbumTracksStmt *sql.Stmt
}

// NewDatabase opens (or creates) a SQLite database at dbPath, ensures the
// schema exists and prepares the hot statements. Caller should Close() it.
func NewDatabase(dbPath string, maxConns int, logger *logrus.Logger) (*Database, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxConns < 1 {
		maxConns = 1
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Database initialized successfully")
	return db, nil
}

// createTables creates tables and indices if they do not already exist.
func (db *Database) createTables() error {
	albumsTable := `
	CREATE TABLE IF NOT EXISTS albums (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		image_key TEXT NOT NULL DEFAULT '',
		artist TEXT NOT NULL,
		available_from DATETIME,
		created_at DATETIME NOT NULL
	);`

	tracksTable := `
	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		album_id TEXT NOT NULL,
		title TEXT NOT NULL,
		file_url TEXT NOT NULL,
		object_key TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT 'audio/mpeg',
		duration INTEGER NOT NULL DEFAULT 0,
		file_size INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (album_id) REFERENCES albums(id) ON DELETE CASCADE
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_albums_created ON albums(created_at);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_album_created ON tracks(album_id, created_at);",
	}

	for _, stmt := range append([]string{albumsTable, tracksTable}, indices...) {
		if _, err := db.conn.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

// prepareStatements prepares commonly used SQL statements
func (db *Database) prepareStatements() error {
	var err error

	db.insertAlbumStmt, err = db.conn.Prepare(`
		INSERT INTO albums (id, title, description, image_url, image_key, artist, available_from, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert album statement: %w", err)
	}

	db.updateAlbumStmt, err = db.conn.Prepare(`
		UPDATE albums SET title = ?, description = ?, image_url = ?, image_key = ?, artist = ?, available_from = ?
		WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare update album statement: %w", err)
	}

	db.getAlbumStmt, err = db.conn.Prepare(`
		SELECT a.id, a.title, a.description, a.image_url, a.image_key, a.artist, a.available_from, a.created_at,
			(SELECT COUNT(*) FROM tracks t WHERE t.album_id = a.id)
		FROM albums a WHERE a.id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get album statement: %w", err)
	}

	db.insertTrackStmt, err = db.conn.Prepare(`
		INSERT INTO tracks (id, album_id, title, file_url, object_key, content_type, duration, file_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert track statement: %w", err)
	}

	db.getTrackStmt, err = db.conn.Prepare(`
		SELECT id, album_id, title, file_url, object_key, content_type, duration, file_size, created_at
		FROM tracks WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get track statement: %w", err)
	}

	db.getAlbumTracksStmt, err = db.conn.Prepare(`
		SELECT id, album_id, title, file_url, object_key, content_type, duration, file_size, created_at
		FROM tracks WHERE album_id = ?
		ORDER BY created_at, rowid`)
	if err != nil {
		return fmt.Errorf("failed to prepare get album tracks statement: %w", err)
	}

	return nil
}

// CreateAlbum stores a new album, assigning its ID and creation time when unset.
func (db *Database) CreateAlbum(album *models.Album) error {
	if album.ID == "" {
		album.ID = uuid.NewString()
	}
	if album.CreatedAt.IsZero() {
		album.CreatedAt = time.Now().UTC()
	}

	_, err := db.insertAlbumStmt.Exec(
		album.ID, album.Title, album.Description, album.ImageURL, album.ImageKey,
		album.Artist, nullTime(album.AvailableFrom), album.CreatedAt.UTC())
	if err != nil {
		db.logger.WithError(err).WithField("title", album.Title).Error("Failed to insert album")
		return fmt.Errorf("insert album: %w", err)
	}

	return nil
}

// UpdateAlbum overwrites the mutable fields of an existing album.
func (db *Database) UpdateAlbum(album *models.Album) error {
	result, err := db.updateAlbumStmt.Exec(
		album.Title, album.Description, album.ImageURL, album.ImageKey,
		album.Artist, nullTime(album.AvailableFrom), album.ID)
	if err != nil {
		return fmt.Errorf("update album %s: %w", album.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update album %s: %w", album.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// GetAlbum returns the album with the given ID, including its track count.
func (db *Database) GetAlbum(id string) (*models.Album, error) {
	album, err := scanAlbum(db.getAlbumStmt.QueryRow(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get album %s: %w", id, err)
	}
	return album, nil
}

// ListAlbums returns all albums, newest first, with track counts.
func (db *Database) ListAlbums() ([]models.Album, error) {
	rows, err := db.conn.Query(`
		SELECT a.id, a.title, a.description, a.image_url, a.image_key, a.artist, a.available_from, a.created_at,
			(SELECT COUNT(*) FROM tracks t WHERE t.album_id = a.id)
		FROM albums a
		ORDER BY a.created_at DESC, a.rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list albums: %w", err)
	}
	defer rows.Close()

	albums := []models.Album{}
	for rows.Next() {
		album, err := scanAlbum(rows)
		if err != nil {
			return nil, fmt.Errorf("list albums: %w", err)
		}
		albums = append(albums, *album)
	}
	return albums, rows.Err()
}

// DeleteAlbum removes an album and all of its tracks in one transaction.
func (db *Database) DeleteAlbum(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete album %s: %w", id, err)
	}
	defer tx.Rollback()

	tracksResult, err := tx.ExecContext(ctx, "DELETE FROM tracks WHERE album_id = ?", id)
	if err != nil {
		return fmt.Errorf("delete tracks of album %s: %w", id, err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM albums WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete album %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete album %s: %w", id, err)
	}

	tracksDeleted, _ := tracksResult.RowsAffected()
	db.logger.WithFields(logrus.Fields{
		"album_id":       id,
		"tracks_deleted": tracksDeleted,
	}).Info("Deleted album")
	return nil
}

// InsertTrack stores a new track, assigning its ID and creation time when unset.
func (db *Database) InsertTrack(track *models.Track) error {
	if track.ID == "" {
		track.ID = uuid.NewString()
	}
	if track.CreatedAt.IsZero() {
		track.CreatedAt = time.Now().UTC()
	}
	if track.ContentType == "" {
		track.ContentType = "audio/mpeg"
	}

	_, err := db.insertTrackStmt.Exec(
		track.ID, track.AlbumID, track.Title, track.FileURL, track.ObjectKey,
		track.ContentType, track.Duration, track.FileSize, track.CreatedAt.UTC())
	if err != nil {
		db.logger.WithError(err).WithFields(logrus.Fields{
			"album_id": track.AlbumID,
			"title":    track.Title,
		}).Error("Failed to insert track")
		return fmt.Errorf("insert track: %w", err)
	}

	return nil
}

// GetTrack returns the track with the given ID.
func (db *Database) GetTrack(id string) (*models.Track, error) {
	track, err := scanTrack(db.getTrackStmt.QueryRow(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get track %s: %w", id, err)
	}
	return track, nil
}

// GetAlbumTracks returns an album's tracks in upload order.
func (db *Database) GetAlbumTracks(albumID string) ([]models.Track, error) {
	rows, err := db.getAlbumTracksStmt.Query(albumID)
	if err != nil {
		return nil, fmt.Errorf("get tracks of album %s: %w", albumID, err)
	}
	defer rows.Close()

	tracks := []models.Track{}
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("get tracks of album %s: %w", albumID, err)
		}
		tracks = append(tracks, *track)
	}
	return tracks, rows.Err()
}

// TrackPosition returns the 1-based position of a track within its album
// and the album's track count.
func (db *Database) TrackPosition(track *models.Track) (position, total int, err error) {
	tracks, err := db.GetAlbumTracks(track.AlbumID)
	if err != nil {
		return 0, 0, err
	}

	for i, t := range tracks {
		if t.ID == track.ID {
			return i + 1, len(tracks), nil
		}
	}
	return 0, 0, ErrNotFound
}

// Ping verifies the database connection is alive.
func (db *Database) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the prepared statements and the underlying connection.
func (db *Database) Close() error {
	statements := []*sql.Stmt{
		db.insertAlbumStmt,
		db.updateAlbumStmt,
		db.getAlbumStmt,
		db.insertTrackStmt,
		db.getTrackStmt,
		db.getAlbumTracksStmt,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				db.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}

	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlbum(row rowScanner) (*models.Album, error) {
	var album models.Album
	var availableFrom sql.NullTime

	if err := row.Scan(&album.ID, &album.Title, &album.Description, &album.ImageURL, &album.ImageKey,
		&album.Artist, &availableFrom, &album.CreatedAt, &album.TrackCount); err != nil {
		return nil, err
	}

	if availableFrom.Valid {
		t := availableFrom.Time
		album.AvailableFrom = &t
	}
	return &album, nil
}

func scanTrack(row rowScanner) (*models.Track, error) {
	var track models.Track
	if err := row.Scan(&track.ID, &track.AlbumID, &track.Title, &track.FileURL, &track.ObjectKey,
		&track.ContentType, &track.Duration, &track.FileSize, &track.CreatedAt); err != nil {
		return nil, err
	}
	return &track, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
