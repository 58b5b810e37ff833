package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// BadgerEngine is a persistent series registry backed by BadgerDB.
//
// Storage Layout:
//   - series:<name>                 → JSON series metadata (dimension, count)
//   - point:<name><0x00><index be64> → JSON point values
//
// Point keys embed the insertion index as a big-endian uint64, so a prefix
// iteration over point:<name><0x00> yields points in insertion order with
// no sorting step. The 0x00 terminator after the name keeps prefix scans
// from crossing into another series whose name extends this one.
//
// Durability Policy:
//
//	Every accepted Insert is committed to Badger before the call returns,
//	so an acknowledged point survives a crash. On startup the registry
//	metadata is loaded back from the series: keyspace; nothing is replayed,
//	the value log is the source of truth.
//
// Use Cases:
//   - Production deployments with --data-dir configured
//   - Datasets that must survive restarts
//
// Example:
//
//	engine, err := storage.NewBadgerEngine("./data/urddb")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
//	engine.CreateSeries("motif_returns", 2)
//	engine.Insert("motif_returns", []float64{0.8, -1.3})
//
// Thread Safety:
//
//	Safe for concurrent use. A per-series mutex serializes inserts on the
//	same series so insertion indexes are dense and gap-free; reads run on
//	Badger snapshot transactions.
type BadgerEngine struct {
	db *badger.DB

	// mu guards the meta map (registry of known series).
	mu   sync.RWMutex
	meta map[string]*badgerSeriesMeta

	closed bool
}

// badgerSeriesMeta is the cached registry entry for one series. The same
// struct is what gets serialized under series:<name>.
type badgerSeriesMeta struct {
	// insertMu serializes appends to this series.
	insertMu sync.Mutex

	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Count     int    `json:"count"`
}

// BadgerOptions configures the Badger-backed engine.
type BadgerOptions struct {
	// DataDir is the directory for Badger's LSM tree and value log.
	DataDir string

	// InMemory runs Badger without touching disk. Used in tests.
	InMemory bool

	// SyncWrites forces an fsync on every commit. Slower but survives
	// power loss, not just process crashes. Default false.
	SyncWrites bool

	// Logger receives Badger's internal logs. nil silences them.
	Logger badger.Logger
}

// NewBadgerEngine opens (or creates) a persistent engine at dataDir with
// default options.
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerEngineInMemory opens a Badger engine that never touches disk.
// Same code path as the persistent engine, used by tests that want to
// exercise the Badger serialization without a temp directory.
func NewBadgerEngineInMemory() (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{InMemory: true})
}

// NewBadgerEngineWithOptions opens a Badger engine with explicit options and
// loads the series registry from disk.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	badgerOpts.InMemory = opts.InMemory
	if opts.InMemory {
		badgerOpts.Dir = ""
		badgerOpts.ValueDir = ""
	}
	badgerOpts.SyncWrites = opts.SyncWrites
	badgerOpts.Logger = opts.Logger

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", opts.DataDir, err)
	}

	engine := &BadgerEngine{
		db:   db,
		meta: make(map[string]*badgerSeriesMeta),
	}
	if err := engine.loadRegistry(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load series registry: %w", err)
	}
	return engine, nil
}

// Key construction. Series names are printable and may contain any
// printable byte, ':' included, so the variable-length name is terminated
// with 0x00, a byte that cannot occur inside a name. Without it,
// pointPrefix("a") would be a byte-prefix of pointKey("a:b", i) and a scan
// of "a" would pick up "a:b"'s points.

func seriesKey(name string) []byte {
	return []byte("series:" + name)
}

func pointKey(name string, index int) []byte {
	key := make([]byte, 0, len("point:")+len(name)+1+8)
	key = append(key, "point:"...)
	key = append(key, name...)
	key = append(key, 0x00)
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(index))
	return append(key, idx[:]...)
}

func pointPrefix(name string) []byte {
	prefix := make([]byte, 0, len("point:")+len(name)+1)
	prefix = append(prefix, "point:"...)
	prefix = append(prefix, name...)
	return append(prefix, 0x00)
}

// loadRegistry scans the series: keyspace and rebuilds the in-memory
// registry cache.
func (b *BadgerEngine) loadRegistry() error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("series:")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var meta badgerSeriesMeta
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			})
			if err != nil {
				return err
			}
			b.meta[meta.Name] = &meta
		}
		return nil
	})
}

// CreateSeries registers a new empty series and persists its metadata.
func (b *BadgerEngine) CreateSeries(name string, dimension int) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if dimension < 1 {
		return ErrInvalidDimension
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStorageClosed
	}
	if _, exists := b.meta[name]; exists {
		return ErrAlreadyExists
	}

	meta := &badgerSeriesMeta{Name: name, Dimension: dimension}
	if err := b.writeMeta(meta); err != nil {
		return err
	}
	b.meta[name] = meta
	return nil
}

// Insert appends one point, committing point and updated metadata in a
// single Badger transaction before returning.
func (b *BadgerEngine) Insert(name string, values []float64) (int, error) {
	meta, err := b.getMeta(name)
	if err != nil {
		return 0, err
	}
	if err := ValidateValues(values, meta.Dimension); err != nil {
		return 0, err
	}

	meta.insertMu.Lock()
	defer meta.insertMu.Unlock()

	// Re-check liveness under the registry lock: a DeleteSeries may have
	// removed this series while we waited for the insert lock, and writing
	// now would resurrect its metadata key on disk.
	b.mu.RLock()
	live := !b.closed && b.meta[name] == meta
	b.mu.RUnlock()
	if !live {
		return 0, ErrNotFound
	}

	idx := meta.Count
	point := Point{Index: idx, Values: values}
	encoded, err := json.Marshal(point)
	if err != nil {
		return 0, fmt.Errorf("encode point: %w", err)
	}

	next := badgerSeriesMeta{Name: meta.Name, Dimension: meta.Dimension, Count: idx + 1}
	metaEncoded, err := json.Marshal(&next)
	if err != nil {
		return 0, fmt.Errorf("encode series meta: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(pointKey(name, idx), encoded); err != nil {
			return err
		}
		return txn.Set(seriesKey(name), metaEncoded)
	})
	if err != nil {
		return 0, fmt.Errorf("commit point: %w", err)
	}

	meta.Count = idx + 1
	return idx, nil
}

// Query returns all points in insertion order by iterating the point
// keyspace. Big-endian index keys make key order insertion order.
func (b *BadgerEngine) Query(name string) ([]Point, error) {
	meta, err := b.getMeta(name)
	if err != nil {
		return nil, err
	}

	points := make([]Point, 0, meta.Count)
	err = b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = pointPrefix(name)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var p Point
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			})
			if err != nil {
				return err
			}
			points = append(points, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan points: %w", err)
	}
	return points, nil
}

// Stats returns the series' dimension and current point count.
func (b *BadgerEngine) Stats(name string) (*SeriesInfo, error) {
	meta, err := b.getMeta(name)
	if err != nil {
		return nil, err
	}

	meta.insertMu.Lock()
	count := meta.Count
	meta.insertMu.Unlock()

	return &SeriesInfo{Name: meta.Name, Dimension: meta.Dimension, TotalPoints: count}, nil
}

// DeleteSeries removes a series' metadata and all of its points.
//
// The registry entry is unlinked first, then the keys are deleted under the
// series' insert lock. Lock ordering: insertMu is only ever acquired while
// b.mu is NOT held (Insert re-checks liveness the same way), so a delete
// waiting for an in-flight insert cannot deadlock against it.
func (b *BadgerEngine) DeleteSeries(name string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrStorageClosed
	}
	meta, exists := b.meta[name]
	if !exists {
		b.mu.Unlock()
		return ErrNotFound
	}
	// Unlink before touching disk: once the entry is gone, a racing Insert
	// fails its liveness re-check instead of writing the series back.
	delete(b.meta, name)
	b.mu.Unlock()

	meta.insertMu.Lock()
	defer meta.insertMu.Unlock()

	err := b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(seriesKey(name)); err != nil {
			return err
		}
		for i := 0; i < meta.Count; i++ {
			if err := txn.Delete(pointKey(name, i)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Keys survived on disk; relink the registry entry so the series
		// stays visible rather than orphaned until restart.
		b.mu.Lock()
		if _, taken := b.meta[name]; !taken && !b.closed {
			b.meta[name] = meta
		}
		b.mu.Unlock()
		return fmt.Errorf("delete series %q: %w", name, err)
	}
	return nil
}

// ListSeries returns info for every registered series.
func (b *BadgerEngine) ListSeries() ([]SeriesInfo, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, ErrStorageClosed
	}
	metas := make([]*badgerSeriesMeta, 0, len(b.meta))
	for _, meta := range b.meta {
		metas = append(metas, meta)
	}
	b.mu.RUnlock()

	// Counts are read outside the registry lock; insertMu is never taken
	// while b.mu is held (see DeleteSeries).
	out := make([]SeriesInfo, 0, len(metas))
	for _, meta := range metas {
		meta.insertMu.Lock()
		out = append(out, SeriesInfo{
			Name:        meta.Name,
			Dimension:   meta.Dimension,
			TotalPoints: meta.Count,
		})
		meta.insertMu.Unlock()
	}
	return out, nil
}

// Close flushes and closes the underlying Badger database.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.meta = nil
	return b.db.Close()
}

// writeMeta persists one registry entry. Caller holds b.mu.
func (b *BadgerEngine) writeMeta(meta *badgerSeriesMeta) error {
	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode series meta: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(seriesKey(meta.Name), encoded)
	})
	if err != nil {
		return fmt.Errorf("commit series meta: %w", err)
	}
	return nil
}

// getMeta looks up a registry entry under the read lock.
func (b *BadgerEngine) getMeta(name string) (*badgerSeriesMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrStorageClosed
	}
	meta, exists := b.meta[name]
	if !exists {
		return nil, ErrNotFound
	}
	return meta, nil
}
