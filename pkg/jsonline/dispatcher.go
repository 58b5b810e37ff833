package jsonline

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/orneryd/urddb/pkg/profile"
	"github.com/orneryd/urddb/pkg/search"
	"github.com/orneryd/urddb/pkg/storage"
)

// Executor is the database surface the dispatcher routes commands to.
//
// This interface decouples the protocol layer from the concrete database so
// the server can be tested against a mock and the database against no server
// at all. urddb.DB is the production implementation.
//
// All methods are safe for concurrent use; the server calls them from one
// goroutine per connection.
type Executor interface {
	CreateSeries(name string, dimension int) error
	Insert(series string, values []float64) (int, error)
	Query(series string) ([]storage.Point, error)
	Stats(series string) (*storage.SeriesInfo, error)
	DeleteSeries(series string) error
	ListSeries() ([]storage.SeriesInfo, error)

	FindSimilar(series string, vec []float64, limit int, threshold float64) ([]search.Match, error)
	Motifs(series string, window, k int) ([]profile.Match, error)
	Anomalies(series string, window, k int) ([]profile.Match, error)
}

// Dispatcher validates decoded requests and routes them to an Executor.
//
// The dispatcher owns the boundary between untyped wire JSON and typed
// commands: it decodes each request's data into the command's struct,
// checks field constraints, translates storage sentinel errors into
// protocol error kinds, and shapes the response payload. Engine code never
// sees raw JSON and the wire never sees a Go error string it shouldn't.
type Dispatcher struct {
	executor Executor
}

// NewDispatcher creates a dispatcher routing to the given executor.
func NewDispatcher(executor Executor) *Dispatcher {
	return &Dispatcher{executor: executor}
}

// Dispatch handles one decoded request envelope and always returns a
// response. Validation failures come back as Error responses; only the
// framing layer (Server) ever drops a connection.
func (d *Dispatcher) Dispatch(req *Request) *Response {
	switch req.Type {
	case CmdCreateSeries:
		return d.createSeries(req.Data)
	case CmdInsert:
		return d.insert(req.Data)
	case CmdQuery:
		return d.query(req.Data)
	case CmdGetStats:
		return d.getStats(req.Data)
	case CmdFindSimilar:
		return d.findSimilar(req.Data)
	case CmdAnomaly:
		return d.anomaly(req.Data)
	case CmdMotif:
		return d.motif(req.Data)
	case CmdDeleteSeries:
		return d.deleteSeries(req.Data)
	case CmdListSeries:
		return d.listSeries()
	default:
		return errorResponse(KindUnknownCommand, fmt.Sprintf("unknown command type %q", req.Type))
	}
}

func (d *Dispatcher) createSeries(data json.RawMessage) *Response {
	var cmd CreateSeriesCommand
	if resp := decodeCommand(data, &cmd); resp != nil {
		return resp
	}
	if cmd.Name == "" {
		return errorResponse(KindMalformedRequest, "missing field: name")
	}
	if cmd.Dimension < 1 {
		return errorResponse(KindInvalidArgument, fmt.Sprintf("dimension must be positive, got %d", cmd.Dimension))
	}

	if err := d.executor.CreateSeries(cmd.Name, cmd.Dimension); err != nil {
		return storageError(err)
	}
	return &Response{
		Status: StatusCreated,
		Data:   CreatedPayload{Name: cmd.Name, Dimension: cmd.Dimension},
	}
}

func (d *Dispatcher) insert(data json.RawMessage) *Response {
	var cmd InsertCommand
	if resp := decodeCommand(data, &cmd); resp != nil {
		return resp
	}
	if cmd.Series == "" {
		return errorResponse(KindMalformedRequest, "missing field: series")
	}
	if cmd.Values == nil {
		return errorResponse(KindMalformedRequest, "missing field: values")
	}

	idx, err := d.executor.Insert(cmd.Series, cmd.Values)
	if err != nil {
		return storageError(err)
	}
	return &Response{Status: StatusInserted, Data: InsertedPayload{Index: idx}}
}

func (d *Dispatcher) query(data json.RawMessage) *Response {
	cmd, resp := decodeSeriesCommand(data)
	if resp != nil {
		return resp
	}

	points, err := d.executor.Query(cmd.Series)
	if err != nil {
		return storageError(err)
	}

	payload := make([]PointPayload, len(points))
	for i, p := range points {
		payload[i] = PointPayload{Index: p.Index, Values: p.Values}
	}
	return &Response{Status: StatusData, Data: payload}
}

func (d *Dispatcher) getStats(data json.RawMessage) *Response {
	cmd, resp := decodeSeriesCommand(data)
	if resp != nil {
		return resp
	}

	info, err := d.executor.Stats(cmd.Series)
	if err != nil {
		return storageError(err)
	}
	return &Response{
		Status: StatusStats,
		Data: StatsPayload{
			Name:        info.Name,
			TotalPoints: info.TotalPoints,
			Dimension:   info.Dimension,
		},
	}
}

func (d *Dispatcher) findSimilar(data json.RawMessage) *Response {
	var cmd FindSimilarCommand
	if resp := decodeCommand(data, &cmd); resp != nil {
		return resp
	}
	if cmd.Series == "" {
		return errorResponse(KindMalformedRequest, "missing field: series")
	}
	if cmd.Vector == nil {
		return errorResponse(KindMalformedRequest, "missing field: vector")
	}
	if cmd.Limit < 1 {
		return errorResponse(KindInvalidArgument, fmt.Sprintf("limit must be at least 1, got %d", cmd.Limit))
	}
	if cmd.Threshold < 0 || cmd.Threshold > 1 {
		return errorResponse(KindInvalidArgument, fmt.Sprintf("threshold must be in [0, 1], got %v", cmd.Threshold))
	}

	matches, err := d.executor.FindSimilar(cmd.Series, cmd.Vector, cmd.Limit, cmd.Threshold)
	if err != nil {
		return storageError(err)
	}

	payload := make([]SimilarPayload, len(matches))
	for i, m := range matches {
		payload[i] = SimilarPayload{Index: m.Index, Values: m.Values, Similarity: m.Similarity}
	}
	return &Response{Status: StatusSimilar, Data: payload}
}

func (d *Dispatcher) anomaly(data json.RawMessage) *Response {
	cmd, resp := decodeProfileCommand(data)
	if resp != nil {
		return resp
	}

	matches, err := d.executor.Anomalies(cmd.Series, cmd.Window, cmd.K)
	if err != nil {
		return storageError(err)
	}
	return &Response{Status: StatusAnomalies, Data: profilePayload(matches)}
}

func (d *Dispatcher) motif(data json.RawMessage) *Response {
	cmd, resp := decodeProfileCommand(data)
	if resp != nil {
		return resp
	}

	matches, err := d.executor.Motifs(cmd.Series, cmd.Window, cmd.K)
	if err != nil {
		return storageError(err)
	}
	return &Response{Status: StatusMotifs, Data: profilePayload(matches)}
}

func (d *Dispatcher) deleteSeries(data json.RawMessage) *Response {
	cmd, resp := decodeSeriesCommand(data)
	if resp != nil {
		return resp
	}

	if err := d.executor.DeleteSeries(cmd.Series); err != nil {
		return storageError(err)
	}
	return &Response{Status: StatusDeleted, Data: nil}
}

func (d *Dispatcher) listSeries() *Response {
	infos, err := d.executor.ListSeries()
	if err != nil {
		return storageError(err)
	}

	payload := make([]SeriesPayload, len(infos))
	for i, info := range infos {
		payload[i] = SeriesPayload{
			Name:        info.Name,
			Dimension:   info.Dimension,
			TotalPoints: info.TotalPoints,
		}
	}
	return &Response{Status: StatusSeriesList, Data: payload}
}

// decodeCommand unmarshals a command payload, reporting MalformedRequest on
// type mismatches or absent data.
func decodeCommand(data json.RawMessage, into any) *Response {
	if len(data) == 0 {
		return errorResponse(KindMalformedRequest, "missing request data")
	}
	if err := json.Unmarshal(data, into); err != nil {
		return errorResponse(KindMalformedRequest, fmt.Sprintf("invalid request data: %v", err))
	}
	return nil
}

func decodeSeriesCommand(data json.RawMessage) (*SeriesCommand, *Response) {
	var cmd SeriesCommand
	if resp := decodeCommand(data, &cmd); resp != nil {
		return nil, resp
	}
	if cmd.Series == "" {
		return nil, errorResponse(KindMalformedRequest, "missing field: series")
	}
	return &cmd, nil
}

func decodeProfileCommand(data json.RawMessage) (*ProfileCommand, *Response) {
	var cmd ProfileCommand
	if resp := decodeCommand(data, &cmd); resp != nil {
		return nil, resp
	}
	if cmd.Series == "" {
		return nil, errorResponse(KindMalformedRequest, "missing field: series")
	}
	if cmd.K < 1 {
		return nil, errorResponse(KindInvalidArgument, fmt.Sprintf("k must be at least 1, got %d", cmd.K))
	}
	// A window shorter than 2 has no shape; the engine reports it as an
	// empty result rather than an error, matching how clients probe series
	// that are still warming up.
	return &cmd, nil
}

func profilePayload(matches []profile.Match) []ProfilePayload {
	payload := make([]ProfilePayload, len(matches))
	for i, m := range matches {
		payload[i] = ProfilePayload{
			Score:      m.Score,
			WindowSize: m.Window,
			Index:      m.Index,
			IndexMatch: m.MatchIndex,
		}
	}
	return payload
}

// storageError translates engine sentinel errors into protocol error kinds.
// Anything unrecognized is reported as Internal without leaking detail
// beyond the error message itself.
func storageError(err error) *Response {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return errorResponse(KindSeriesNotFound, err.Error())
	case errors.Is(err, storage.ErrAlreadyExists):
		return errorResponse(KindSeriesAlreadyExists, err.Error())
	case errors.Is(err, storage.ErrDimensionMismatch):
		return errorResponse(KindDimensionMismatch, err.Error())
	case errors.Is(err, storage.ErrNonFinite),
		errors.Is(err, storage.ErrInvalidDimension),
		errors.Is(err, storage.ErrInvalidName):
		return errorResponse(KindInvalidArgument, err.Error())
	default:
		return errorResponse(KindInternal, err.Error())
	}
}
