package mbtiles

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/tile"
	_ "modernc.org/sqlite" // SQLite driver
)

// DefaultBatchSize is the number of tiles buffered before flushing to the database.
const DefaultBatchSize = 64

// Options configures a Cache.
type Options struct {
	Metadata Metadata
	// MaxAge expires tiles older than this. Zero keeps tiles forever.
	MaxAge    time.Duration
	BatchSize int
}

// TileEntry is a buffered tile write.
type TileEntry struct {
	Coords    tile.Coords
	Data      []byte // PNG data, gzip-compressed on flush
	FetchedAt time.Time
}

// Cache is a read-write MBTiles database used as a tile cache.
// It is safe for concurrent use.
type Cache struct {
	db        *sql.DB
	path      string
	maxAge    time.Duration
	batchSize int

	mu      sync.Mutex
	pending map[tile.Coords]TileEntry

	now func() time.Time
}

// Open opens or creates the cache at path and writes its metadata.
func Open(path string, opts Options) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time keeps sqlite from returning SQLITE_BUSY
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err := insertMetadata(db, opts.Metadata); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to insert metadata: %w", err)
	}

	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	return &Cache{
		db:        db,
		path:      path,
		maxAge:    opts.MaxAge,
		batchSize: batch,
		pending:   make(map[tile.Coords]TileEntry, batch),
		now:       time.Now,
	}, nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.path
}

func createSchema(db *sql.DB) error {
	// fetched_at is an extension column; MBTiles readers ignore it
	schema := `
		CREATE TABLE IF NOT EXISTS metadata (
			name TEXT NOT NULL,
			value TEXT
		);

		CREATE TABLE IF NOT EXISTS tiles (
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_data BLOB NOT NULL,
			fetched_at INTEGER NOT NULL DEFAULT 0
		);

		CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func insertMetadata(db *sql.DB, meta Metadata) error {
	values := meta.ToMap()
	if len(values) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := tx.Exec("DELETE FROM metadata"); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO metadata (name, value) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare metadata insert: %w", err)
	}
	defer stmt.Close()

	for key, value := range values {
		if _, err := stmt.Exec(key, value); err != nil {
			return fmt.Errorf("failed to insert metadata %q: %w", key, err)
		}
	}
	return tx.Commit()
}

// Get returns the PNG data of a tile. Missing or expired tiles report ok=false.
// Coordinates are XYZ; they are stored as TMS.
func (c *Cache) Get(ctx context.Context, coords tile.Coords) ([]byte, bool, error) {
	c.mu.Lock()
	if e, ok := c.pending[coords]; ok {
		c.mu.Unlock()
		return e.Data, true, nil
	}
	c.mu.Unlock()

	var (
		compressed []byte
		fetchedAt  int64
	)
	err := c.db.QueryRowContext(ctx,
		"SELECT tile_data, fetched_at FROM tiles WHERE zoom_level=? AND tile_column=? AND tile_row=?",
		coords.Z, coords.X, tmsRow(coords),
	).Scan(&compressed, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query tile %s: %w", coords, err)
	}

	if c.maxAge > 0 && fetchedAt > 0 && c.now().Sub(time.Unix(fetchedAt, 0)) > c.maxAge {
		return nil, false, nil
	}

	data, err := gzipDecompress(compressed)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decompress tile %s: %w", coords, err)
	}
	return data, true, nil
}

// Put buffers a tile. The batch is flushed when full.
func (c *Cache) Put(coords tile.Coords, pngData []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending[coords] = TileEntry{Coords: coords, Data: pngData, FetchedAt: c.now()}
	if len(c.pending) >= c.batchSize {
		return c.flushLocked()
	}
	return nil
}

// Flush writes any buffered tiles to the database.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

// flushLocked writes buffered tiles. Must be called with lock held.
func (c *Cache) flushLocked() error {
	if len(c.pending) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data, fetched_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range c.pending {
		compressed, err := gzipCompress(e.Data)
		if err != nil {
			return fmt.Errorf("failed to compress tile %s: %w", e.Coords, err)
		}
		if _, err := stmt.Exec(e.Coords.Z, e.Coords.X, tmsRow(e.Coords), compressed, e.FetchedAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert tile %s: %w", e.Coords, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.pending = make(map[tile.Coords]TileEntry, c.batchSize)
	return nil
}

// Count returns the number of stored tiles, including buffered ones not yet flushed.
func (c *Cache) Count(ctx context.Context) (int, error) {
	if err := c.Flush(); err != nil {
		return 0, err
	}
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tiles").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tiles: %w", err)
	}
	return n, nil
}

// Metadata reads the stored metadata.
func (c *Cache) Metadata(ctx context.Context) (Metadata, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT name, value FROM metadata")
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var name string
		var value sql.NullString
		if err := rows.Scan(&name, &value); err != nil {
			return Metadata{}, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		values[name] = value.String
	}
	if err := rows.Err(); err != nil {
		return Metadata{}, fmt.Errorf("error iterating metadata: %w", err)
	}
	return parseMetadata(values), nil
}

// Close flushes buffered tiles and closes the database.
func (c *Cache) Close() error {
	if err := c.Flush(); err != nil {
		_ = c.db.Close()
		return err
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// tmsRow converts an XYZ row to the TMS row MBTiles stores.
func tmsRow(c tile.Coords) uint32 {
	return (uint32(1) << c.Z) - 1 - c.Y
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		_ = gw.Close()
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}
