// Package urddb ties UrdDB's storage and analytic engines into a single
// database handle.
//
// DB is the server-context value the rest of the process shares: cmd/urddb
// constructs exactly one from configuration and hands it to the protocol
// server. Nothing in this module reaches for an ambient singleton.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	db, err := urddb.Open(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	db.CreateSeries("anomaly_returns", 2)
//	db.Insert("anomaly_returns", []float64{1.2, -0.4})
//
//	anomalies, _ := db.Anomalies("anomaly_returns", 5, 1)
//
// Analytic calls take a snapshot of the target series and compute outside
// storage locks, so a long matrix profile run never blocks inserts.
package urddb

import (
	"fmt"

	"github.com/orneryd/urddb/pkg/config"
	"github.com/orneryd/urddb/pkg/profile"
	"github.com/orneryd/urddb/pkg/search"
	"github.com/orneryd/urddb/pkg/storage"
)

// DB is an UrdDB database instance.
//
// It implements jsonline.Executor, so a DB handle is everything the
// protocol server needs. All methods are safe for concurrent use; the
// storage engine provides the synchronization.
type DB struct {
	engine storage.Engine
}

// Open creates a DB from configuration: a Badger-backed engine when
// Database.DataDir is set, the in-memory engine otherwise.
func Open(cfg *config.Config) (*DB, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	if cfg.Database.DataDir != "" {
		engine, err := storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
			DataDir:    cfg.Database.DataDir,
			SyncWrites: cfg.Database.SyncWrites,
		})
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		return &DB{engine: engine}, nil
	}

	return &DB{engine: storage.NewMemoryEngine()}, nil
}

// NewWithEngine wraps an existing storage engine. Used by tests and by
// callers that manage engine lifecycle themselves.
func NewWithEngine(engine storage.Engine) *DB {
	return &DB{engine: engine}
}

// Close releases the underlying storage engine.
func (db *DB) Close() error {
	return db.engine.Close()
}

// Engine exposes the underlying storage engine.
func (db *DB) Engine() storage.Engine {
	return db.engine
}

// CreateSeries registers a new series with a fixed dimension.
func (db *DB) CreateSeries(name string, dimension int) error {
	return db.engine.CreateSeries(name, dimension)
}

// Insert appends one point to a series and returns its insertion index.
func (db *DB) Insert(series string, values []float64) (int, error) {
	return db.engine.Insert(series, values)
}

// Query returns a snapshot of a series' points in insertion order.
func (db *DB) Query(series string) ([]storage.Point, error) {
	return db.engine.Query(series)
}

// Stats returns a series' dimension and point count.
func (db *DB) Stats(series string) (*storage.SeriesInfo, error) {
	return db.engine.Stats(series)
}

// DeleteSeries removes a series and its points.
func (db *DB) DeleteSeries(series string) error {
	return db.engine.DeleteSeries(series)
}

// ListSeries returns info for every registered series.
func (db *DB) ListSeries() ([]storage.SeriesInfo, error) {
	return db.engine.ListSeries()
}

// FindSimilar returns up to limit stored points whose cosine similarity to
// vec is at least threshold, most similar first.
//
// Returns storage.ErrDimensionMismatch when vec's length differs from the
// series dimension.
func (db *DB) FindSimilar(series string, vec []float64, limit int, threshold float64) ([]search.Match, error) {
	info, err := db.engine.Stats(series)
	if err != nil {
		return nil, err
	}
	if len(vec) != info.Dimension {
		return nil, fmt.Errorf("query vector has %d components, series %q has dimension %d: %w",
			len(vec), series, info.Dimension, storage.ErrDimensionMismatch)
	}

	points, err := db.engine.Query(series)
	if err != nil {
		return nil, err
	}
	return search.FindSimilar(points, vec, limit, threshold), nil
}

// Motifs returns the k most repeated window-length shapes in a series,
// most similar first. A series shorter than the window, or a window
// shorter than 2, yields an empty result.
func (db *DB) Motifs(series string, window, k int) ([]profile.Match, error) {
	mp, err := db.computeProfile(series, window)
	if err != nil {
		return nil, err
	}
	return mp.DiscoverMotifs(k), nil
}

// Anomalies returns the k strongest discords in a series, most anomalous
// first. Same degenerate-input behavior as Motifs.
func (db *DB) Anomalies(series string, window, k int) ([]profile.Match, error) {
	mp, err := db.computeProfile(series, window)
	if err != nil {
		return nil, err
	}
	return mp.DiscoverDiscords(k), nil
}

// computeProfile snapshots a series and computes its matrix profile outside
// any storage lock.
func (db *DB) computeProfile(series string, window int) (*profile.MatrixProfile, error) {
	points, err := db.engine.Query(series)
	if err != nil {
		return nil, err
	}

	values := make([][]float64, len(points))
	for i, p := range points {
		values[i] = p.Values
	}
	return profile.Compute(values, window), nil
}
