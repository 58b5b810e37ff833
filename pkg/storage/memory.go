package storage

import (
	"sync"
)

// memorySeries is one named series held by MemoryEngine.
//
// Each series carries its own RWMutex so a long analytic read on one series
// never blocks inserts on another. The points slice is append-only; Query
// copies the current prefix under the read lock.
type memorySeries struct {
	mu        sync.RWMutex
	name      string
	dimension int
	points    []Point
}

// MemoryEngine is a thread-safe in-memory series registry.
//
// Use Cases:
//   - The default engine when no data directory is configured
//   - Unit testing (no disk I/O, fast cleanup)
//   - Workloads where durability across restarts is not needed
//
// Features:
//   - Thread-safe: registry-level RWMutex for create/delete/list,
//     per-series RWMutex for insert/query
//   - Snapshot reads: Query returns a copy, never a live slice
//   - Append-only: insertion order is preserved verbatim
//
// Performance Characteristics:
//   - Series lookup by name: O(1)
//   - Insert: O(D) (copy one point)
//   - Query: O(n·D) (copy the snapshot)
//
// Thread Safety:
//
//	All public methods are safe for concurrent use. An in-flight Query on
//	one series does not block Inserts on unrelated series.
//
// Example:
//
//	engine := storage.NewMemoryEngine()
//	defer engine.Close()
//
//	engine.CreateSeries("macro_complete", 8)
//	engine.Insert("macro_complete", []float64{1, 2, 3, 4, 5, 6, 7, 8})
//
//	info, _ := engine.Stats("macro_complete")
//	fmt.Printf("%s: %d points, dimension %d\n",
//		info.Name, info.TotalPoints, info.Dimension)
type MemoryEngine struct {
	mu     sync.RWMutex
	series map[string]*memorySeries
	closed bool
}

// NewMemoryEngine creates an empty in-memory series registry.
//
// All data lives in RAM and is lost when the process exits. Use
// NewBadgerEngine for persistence.
//
// Example:
//
//	func TestInsertQuery(t *testing.T) {
//		engine := storage.NewMemoryEngine()
//		defer engine.Close()
//
//		require.NoError(t, engine.CreateSeries("s", 2))
//		_, err := engine.Insert("s", []float64{1, 2})
//		require.NoError(t, err)
//	}
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		series: make(map[string]*memorySeries),
	}
}

// CreateSeries registers a new empty series.
//
// Returns:
//   - ErrInvalidName if name is empty or contains non-printable runes
//   - ErrInvalidDimension if dimension < 1
//   - ErrAlreadyExists if the name is taken (existing series unaffected)
//   - ErrStorageClosed if the engine is closed
func (m *MemoryEngine) CreateSeries(name string, dimension int) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if dimension < 1 {
		return ErrInvalidDimension
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	if _, exists := m.series[name]; exists {
		return ErrAlreadyExists
	}

	m.series[name] = &memorySeries{
		name:      name,
		dimension: dimension,
	}
	return nil
}

// Insert appends one point and returns its insertion index.
//
// The values slice is validated (length, finiteness) before any state
// changes; a failed insert leaves the series untouched. The slice is copied,
// so the caller may reuse its buffer.
func (m *MemoryEngine) Insert(name string, values []float64) (int, error) {
	s, err := m.getSeries(name)
	if err != nil {
		return 0, err
	}

	if err := ValidateValues(values, s.dimension); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := len(s.points)
	s.points = append(s.points, Point{Index: idx, Values: copyValues(values)})
	return idx, nil
}

// Query returns a snapshot of all points in insertion order.
//
// The snapshot is a deep copy: concurrent Inserts after Query returns do not
// mutate it, and callers may modify the returned points freely. Concurrent
// inserts never produce duplicated, torn, or reordered entries in the
// snapshot. The snapshot is always a prefix of the series at some instant.
func (m *MemoryEngine) Query(name string) ([]Point, error) {
	s, err := m.getSeries(name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Point, len(s.points))
	for i, p := range s.points {
		out[i] = Point{Index: p.Index, Values: copyValues(p.Values)}
	}
	return out, nil
}

// Stats returns the series' dimension and current point count.
func (m *MemoryEngine) Stats(name string) (*SeriesInfo, error) {
	s, err := m.getSeries(name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return &SeriesInfo{
		Name:        s.name,
		Dimension:   s.dimension,
		TotalPoints: len(s.points),
	}, nil
}

// DeleteSeries removes a series and all of its points.
func (m *MemoryEngine) DeleteSeries(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	if _, exists := m.series[name]; !exists {
		return ErrNotFound
	}
	delete(m.series, name)
	return nil
}

// ListSeries returns info for every registered series.
func (m *MemoryEngine) ListSeries() ([]SeriesInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	out := make([]SeriesInfo, 0, len(m.series))
	for _, s := range m.series {
		s.mu.RLock()
		out = append(out, SeriesInfo{
			Name:        s.name,
			Dimension:   s.dimension,
			TotalPoints: len(s.points),
		})
		s.mu.RUnlock()
	}
	return out, nil
}

// Close marks the engine closed. Held snapshots remain valid.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.series = nil
	return nil
}

// getSeries looks up a series under the registry read lock.
func (m *MemoryEngine) getSeries(name string) (*memorySeries, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	s, exists := m.series[name]
	if !exists {
		return nil, ErrNotFound
	}
	return s, nil
}
