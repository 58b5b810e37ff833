package jsonline

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/urddb/pkg/config"
	"github.com/orneryd/urddb/pkg/urddb"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	db, err := urddb.Open(config.Default())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDispatcher(db)
}

// dispatch builds an envelope from a type and a JSON data literal.
func dispatch(d *Dispatcher, cmdType, data string) *Response {
	return d.Dispatch(&Request{Type: cmdType, Data: json.RawMessage(data)})
}

func errorKind(t *testing.T, resp *Response) string {
	t.Helper()
	require.Equal(t, StatusError, resp.Status)
	errData, ok := resp.Data.(ErrorData)
	require.True(t, ok, "error response data is %T", resp.Data)
	require.NotEmpty(t, errData.Message)
	return errData.Kind
}

func TestDispatcherCreateInsertQuery(t *testing.T) {
	d := newTestDispatcher(t)

	resp := dispatch(d, CmdCreateSeries, `{"name":"s","dimension":2}`)
	require.Equal(t, StatusCreated, resp.Status)
	assert.Equal(t, CreatedPayload{Name: "s", Dimension: 2}, resp.Data)

	resp = dispatch(d, CmdInsert, `{"series":"s","values":[1.0,2.0]}`)
	require.Equal(t, StatusInserted, resp.Status)
	assert.Equal(t, InsertedPayload{Index: 0}, resp.Data)

	resp = dispatch(d, CmdInsert, `{"series":"s","values":[3.0,4.0]}`)
	require.Equal(t, StatusInserted, resp.Status)
	assert.Equal(t, InsertedPayload{Index: 1}, resp.Data)

	resp = dispatch(d, CmdQuery, `{"series":"s"}`)
	require.Equal(t, StatusData, resp.Status)
	points, ok := resp.Data.([]PointPayload)
	require.True(t, ok)
	require.Len(t, points, 2)
	assert.Equal(t, []float64{1.0, 2.0}, points[0].Values)
	assert.Equal(t, []float64{3.0, 4.0}, points[1].Values)

	resp = dispatch(d, CmdGetStats, `{"series":"s"}`)
	require.Equal(t, StatusStats, resp.Status)
	assert.Equal(t, StatsPayload{Name: "s", TotalPoints: 2, Dimension: 2}, resp.Data)
}

func TestDispatcherErrorKinds(t *testing.T) {
	d := newTestDispatcher(t)
	require.Equal(t, StatusCreated, dispatch(d, CmdCreateSeries, `{"name":"s","dimension":2}`).Status)

	tests := []struct {
		name     string
		cmdType  string
		data     string
		wantKind string
	}{
		{"unknown command", "Frobnicate", `{}`, KindUnknownCommand},
		{"missing data", CmdQuery, ``, KindMalformedRequest},
		{"wrong data type", CmdInsert, `{"series":"s","values":"oops"}`, KindMalformedRequest},
		{"missing series field", CmdQuery, `{}`, KindMalformedRequest},
		{"missing values field", CmdInsert, `{"series":"s"}`, KindMalformedRequest},
		{"series not found", CmdQuery, `{"series":"missing"}`, KindSeriesNotFound},
		{"insert into missing series", CmdInsert, `{"series":"missing","values":[1]}`, KindSeriesNotFound},
		{"duplicate create", CmdCreateSeries, `{"name":"s","dimension":2}`, KindSeriesAlreadyExists},
		{"duplicate create different dimension", CmdCreateSeries, `{"name":"s","dimension":5}`, KindSeriesAlreadyExists},
		{"zero dimension", CmdCreateSeries, `{"name":"x","dimension":0}`, KindInvalidArgument},
		{"insert wrong arity", CmdInsert, `{"series":"s","values":[1.0]}`, KindDimensionMismatch},
		{"find similar wrong arity", CmdFindSimilar, `{"series":"s","vector":[1],"limit":1,"threshold":0}`, KindDimensionMismatch},
		{"find similar bad limit", CmdFindSimilar, `{"series":"s","vector":[1,0],"limit":0,"threshold":0}`, KindInvalidArgument},
		{"find similar bad threshold", CmdFindSimilar, `{"series":"s","vector":[1,0],"limit":1,"threshold":1.5}`, KindInvalidArgument},
		{"anomaly bad k", CmdAnomaly, `{"series":"s","window":5,"k":0}`, KindInvalidArgument},
		{"motif bad k", CmdMotif, `{"series":"s","window":5,"k":-1}`, KindInvalidArgument},
		{"delete missing", CmdDeleteSeries, `{"series":"missing"}`, KindSeriesNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := dispatch(d, tt.cmdType, tt.data)
			assert.Equal(t, tt.wantKind, errorKind(t, resp))
		})
	}
}

func TestDispatcherInsertNonFinite(t *testing.T) {
	d := newTestDispatcher(t)
	require.Equal(t, StatusCreated, dispatch(d, CmdCreateSeries, `{"name":"s","dimension":1}`).Status)

	// JSON itself cannot carry NaN/Infinity literals, so a non-finite value
	// arrives as a decode failure rather than a storage rejection.
	resp := dispatch(d, CmdInsert, `{"series":"s","values":[NaN]}`)
	assert.Equal(t, KindMalformedRequest, errorKind(t, resp))

	// The stats are untouched either way.
	stats := dispatch(d, CmdGetStats, `{"series":"s"}`)
	assert.Equal(t, StatsPayload{Name: "s", TotalPoints: 0, Dimension: 1}, stats.Data)
}

func TestDispatcherFindSimilar(t *testing.T) {
	d := newTestDispatcher(t)
	require.Equal(t, StatusCreated, dispatch(d, CmdCreateSeries, `{"name":"t","dimension":2}`).Status)
	for _, values := range []string{`[1,0]`, `[0,1]`, `[1,1]`, `[-1,0]`} {
		resp := dispatch(d, CmdInsert, `{"series":"t","values":`+values+`}`)
		require.Equal(t, StatusInserted, resp.Status)
	}

	t.Run("top matches", func(t *testing.T) {
		resp := dispatch(d, CmdFindSimilar, `{"series":"t","vector":[1,0],"limit":2,"threshold":0}`)
		require.Equal(t, StatusSimilar, resp.Status)
		matches, ok := resp.Data.([]SimilarPayload)
		require.True(t, ok)
		require.Len(t, matches, 2)
		assert.Equal(t, []float64{1, 0}, matches[0].Values)
		assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
		assert.Equal(t, []float64{1, 1}, matches[1].Values)
		assert.InDelta(t, 0.7071, matches[1].Similarity, 1e-4)
	})

	t.Run("threshold filters to one", func(t *testing.T) {
		resp := dispatch(d, CmdFindSimilar, `{"series":"t","vector":[1,0],"limit":2,"threshold":0.8}`)
		require.Equal(t, StatusSimilar, resp.Status)
		matches := resp.Data.([]SimilarPayload)
		require.Len(t, matches, 1)
		assert.Equal(t, []float64{1, 0}, matches[0].Values)
	})
}

func TestDispatcherProfileCommands(t *testing.T) {
	d := newTestDispatcher(t)
	require.Equal(t, StatusCreated, dispatch(d, CmdCreateSeries, `{"name":"p","dimension":1}`).Status)

	t.Run("empty result on short series", func(t *testing.T) {
		resp := dispatch(d, CmdAnomaly, `{"series":"p","window":5,"k":1}`)
		require.Equal(t, StatusAnomalies, resp.Status)
		assert.Empty(t, resp.Data.([]ProfilePayload))

		resp = dispatch(d, CmdMotif, `{"series":"p","window":5,"k":1}`)
		require.Equal(t, StatusMotifs, resp.Status)
		assert.Empty(t, resp.Data.([]ProfilePayload))
	})

	t.Run("anomaly found after spike", func(t *testing.T) {
		for i := 0; i < 19; i++ {
			v, _ := json.Marshal([]float64{math.Sin(float64(i) * math.Pi / 5)})
			resp := dispatch(d, CmdInsert, `{"series":"p","values":`+string(v)+`}`)
			require.Equal(t, StatusInserted, resp.Status)
		}
		resp := dispatch(d, CmdInsert, `{"series":"p","values":[10.0]}`)
		require.Equal(t, StatusInserted, resp.Status)

		resp = dispatch(d, CmdAnomaly, `{"series":"p","window":5,"k":1}`)
		require.Equal(t, StatusAnomalies, resp.Status)
		anomalies := resp.Data.([]ProfilePayload)
		require.Len(t, anomalies, 1)
		assert.Equal(t, 5, anomalies[0].WindowSize)
		assert.Greater(t, anomalies[0].Score, 0.0)
	})
}

func TestDispatcherDeleteAndList(t *testing.T) {
	d := newTestDispatcher(t)
	require.Equal(t, StatusCreated, dispatch(d, CmdCreateSeries, `{"name":"a","dimension":1}`).Status)
	require.Equal(t, StatusCreated, dispatch(d, CmdCreateSeries, `{"name":"b","dimension":2}`).Status)

	resp := dispatch(d, CmdListSeries, `{}`)
	require.Equal(t, StatusSeriesList, resp.Status)
	assert.Len(t, resp.Data.([]SeriesPayload), 2)

	resp = dispatch(d, CmdDeleteSeries, `{"series":"a"}`)
	require.Equal(t, StatusDeleted, resp.Status)

	resp = dispatch(d, CmdListSeries, `{}`)
	list := resp.Data.([]SeriesPayload)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Name)
}
