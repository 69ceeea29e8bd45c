package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"neon/backend/query"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedRequest struct {
	Method      string
	Path        string
	Query       string
	ContentType string
	Body        []byte
}

// fakeQueryServer mimics the query and filter services under /neon.
type fakeQueryServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
	replies  map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeQueryServer(t *testing.T) *fakeQueryServer {
	t.Helper()
	f := &fakeQueryServer{replies: map[string]func(http.ResponseWriter, *http.Request){}}

	r := mux.NewRouter()
	r.PathPrefix("/neon/services/").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{
			Method:      req.Method,
			Path:        req.URL.Path,
			Query:       req.URL.RawQuery,
			ContentType: req.Header.Get("Content-Type"),
			Body:        body,
		})
		reply := f.replies[req.URL.Path]
		f.mu.Unlock()

		if reply == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`))
			return
		}
		reply(w, req)
	})

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeQueryServer) baseURL() string {
	return f.URL + "/neon"
}

func (f *fakeQueryServer) reply(path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies["/neon"+path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func (f *fakeQueryServer) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeQueryServer) last(t *testing.T) recordedRequest {
	t.Helper()
	reqs := f.recorded()
	require.NotEmpty(t, reqs)
	return reqs[len(reqs)-1]
}

func newTestQueryService(f *fakeQueryServer) *QueryService {
	return NewQueryService(f.baseURL(), 5*time.Second, zap.NewNop())
}

func TestExecuteQuery(t *testing.T) {
	srv := newFakeQueryServer(t)
	srv.reply("/services/queryservice/query", http.StatusOK, `{"data":[{"date":"2024-01-01T00:00:00Z","count":3}],"total":3}`)
	qs := newTestQueryService(srv)

	q := query.NewQuery().
		SelectFrom("mongo", "tweets").
		Where("user", query.OpEqual, "bob").
		Aggregate(query.Count, "*", "count").
		IncludeFiltered(true)

	result, err := qs.ExecuteQuery(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, "mongo", result.DataSourceName)
	assert.Equal(t, "tweets", result.DatasetID)
	require.Len(t, result.Data, 1)
	assert.Equal(t, float64(3), result.Data[0]["count"])
	assert.Equal(t, float64(3), result.Extra["total"])

	req := srv.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/neon/services/queryservice/query", req.Path)
	assert.Equal(t, "includefiltered=true", req.Query)
	assert.Equal(t, "application/json", req.ContentType)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(req.Body, &body))
	filter := body["filter"].(map[string]interface{})
	assert.Equal(t, "mongo", filter["dataSourceName"])
	assert.Equal(t, "tweets", filter["datasetId"])

	out, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"date":"2024-01-01T00:00:00Z","count":3}],"total":3,"dataSourceName":"mongo","datasetId":"tweets"}`, string(out))
}

func TestExecuteQueryIncludeFilteredDefaultsToFalse(t *testing.T) {
	srv := newFakeQueryServer(t)
	srv.reply("/services/queryservice/query", http.StatusOK, `{"data":[]}`)
	qs := newTestQueryService(srv)

	result, err := qs.ExecuteQuery(context.Background(), query.NewQuery().SelectFrom("db", "table"))
	require.NoError(t, err)
	assert.Empty(t, result.Data)
	assert.Equal(t, "includefiltered=false", srv.last(t).Query)
}

func TestExecuteQueryMissingData(t *testing.T) {
	srv := newFakeQueryServer(t)
	srv.reply("/services/queryservice/query", http.StatusOK, `{"rows":[]}`)
	qs := newTestQueryService(srv)

	_, err := qs.ExecuteQuery(context.Background(), query.NewQuery().SelectFrom("db", "table"))
	require.Error(t, err)

	var malformedErr *MalformedResponseError
	require.True(t, errors.As(err, &malformedErr))
	assert.Equal(t, "executeQuery", malformedErr.Op)
	assert.Contains(t, malformedErr.Reason, "data")
}

func TestExecuteQueryBadJSON(t *testing.T) {
	srv := newFakeQueryServer(t)
	srv.reply("/services/queryservice/query", http.StatusOK, `not json`)
	qs := newTestQueryService(srv)

	_, err := qs.ExecuteQuery(context.Background(), query.NewQuery().SelectFrom("db", "table"))
	var malformedErr *MalformedResponseError
	require.True(t, errors.As(err, &malformedErr))
	assert.Error(t, malformedErr.Unwrap())
}

func TestExecuteQueryDataNotRows(t *testing.T) {
	srv := newFakeQueryServer(t)
	srv.reply("/services/queryservice/query", http.StatusOK, `{"data":"nope"}`)
	qs := newTestQueryService(srv)

	_, err := qs.ExecuteQuery(context.Background(), query.NewQuery().SelectFrom("db", "table"))
	var malformedErr *MalformedResponseError
	assert.True(t, errors.As(err, &malformedErr))
}

func TestExecuteQueryServerError(t *testing.T) {
	srv := newFakeQueryServer(t)
	srv.reply("/services/queryservice/query", http.StatusInternalServerError, `{"error":"boom"}`)
	qs := newTestQueryService(srv)

	_, err := qs.ExecuteQuery(context.Background(), query.NewQuery().SelectFrom("db", "table"))
	require.Error(t, err)

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, http.StatusInternalServerError, transportErr.StatusCode)
	assert.Contains(t, transportErr.Body, "boom")
	assert.Contains(t, transportErr.URL, "/services/queryservice/query")
}

func TestExecuteQueryUnreachable(t *testing.T) {
	srv := newFakeQueryServer(t)
	base := srv.baseURL()
	srv.Close()

	qs := NewQueryService(base, time.Second, nil)
	_, err := qs.ExecuteQuery(context.Background(), query.NewQuery().SelectFrom("db", "table"))

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Zero(t, transportErr.StatusCode)
	assert.Error(t, transportErr.Unwrap())
}

func TestExecuteQueryInvalidClauseIsNotSent(t *testing.T) {
	srv := newFakeQueryServer(t)
	qs := newTestQueryService(srv)

	q := query.NewQuery().SelectFrom("db", "table").WhereClause(query.And())
	_, err := qs.ExecuteQuery(context.Background(), q)

	var clauseErr *query.InvalidClauseError
	require.True(t, errors.As(err, &clauseErr))
	assert.Empty(t, srv.recorded())
}

func TestFilterEndpoints(t *testing.T) {
	srv := newFakeQueryServer(t)
	srv.reply("/services/queryservice/addfilter", http.StatusOK, `{"filterId":"abc"}`)
	qs := newTestQueryService(srv)
	ctx := context.Background()

	f := query.NewFilter().SelectFrom("db", "table").Where("age", query.OpGreaterThan, 30)

	resp, err := qs.AddFilter(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, "abc", resp["filterId"])
	assert.Equal(t, "db", resp.DataSourceName())
	assert.Equal(t, "table", resp.DatasetID())
	assert.Equal(t, "/neon/services/queryservice/addfilter", srv.last(t).Path)
	assert.JSONEq(t,
		`{"dataSourceName":"db","datasetId":"table","whereClause":{"type":"where","lhs":"age","op":">","rhs":30}}`,
		string(srv.last(t).Body))

	resp, err = qs.ReplaceFilter(ctx, "timelineFilter-1", f)
	require.NoError(t, err)
	assert.Equal(t, "db", resp.DataSourceName())
	assert.Equal(t, "/neon/services/queryservice/replacefilter/timelineFilter-1", srv.last(t).Path)

	_, err = qs.RemoveFilter(ctx, "timelineFilter-1")
	require.NoError(t, err)
	assert.Equal(t, "/neon/services/queryservice/removefilter/timelineFilter-1", srv.last(t).Path)
	assert.Empty(t, srv.last(t).Body)

	_, err = qs.ClearFilters(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/neon/services/queryservice/clearfilters", srv.last(t).Path)
}

func TestBodylessEndpoints(t *testing.T) {
	srv := newFakeQueryServer(t)
	srv.reply("/services/queryservice/clearselection", http.StatusBadGateway, `down`)
	qs := newTestQueryService(srv)
	ctx := context.Background()

	_, err := qs.ClearFilters(ctx)
	require.NoError(t, err)
	req := srv.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/json", req.ContentType)
	assert.Empty(t, req.Body)

	_, err = qs.ClearSelection(ctx)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusBadGateway, transportErr.StatusCode)
	assert.Equal(t, "/neon/services/queryservice/clearselection", srv.last(t).Path)
}

func TestSelectionEndpoints(t *testing.T) {
	srv := newFakeQueryServer(t)
	srv.reply("/services/queryservice/getselectionwhere", http.StatusOK, `[{"_id":1}]`)
	qs := newTestQueryService(srv)
	ctx := context.Background()

	_, err := qs.SetSelectedIDs(ctx, []interface{}{1, "two"})
	require.NoError(t, err)
	assert.Equal(t, "/neon/services/queryservice/setselectedids", srv.last(t).Path)
	assert.JSONEq(t, `[1,"two"]`, string(srv.last(t).Body))

	_, err = qs.AddSelectedIDs(ctx, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(srv.last(t).Body))

	_, err = qs.RemoveSelectedIDs(ctx, []interface{}{3})
	require.NoError(t, err)
	assert.Equal(t, "/neon/services/queryservice/removeselectedids", srv.last(t).Path)

	f := query.NewFilter().SelectFrom("db", "table")
	_, err = qs.SetSelectionWhere(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, "/neon/services/queryservice/setselectionwhere", srv.last(t).Path)

	resp, err := qs.GetSelectionWhere(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{map[string]interface{}{"_id": float64(1)}}, resp["result"])
	assert.Equal(t, "table", resp.DatasetID())

	_, err = qs.ClearSelection(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/neon/services/queryservice/clearselection", srv.last(t).Path)
}

func TestGetFieldNames(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []string
		wantErr bool
	}{
		{name: "array", body: `["a","b"]`, want: []string{"a", "b"}},
		{name: "fieldNames object", body: `{"fieldNames":["x"]}`, want: []string{"x"}},
		{name: "data object", body: `{"data":["y","z"]}`, want: []string{"y", "z"}},
		{name: "missing list", body: `{"other":1}`, wantErr: true},
		{name: "not json", body: `<html>`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeQueryServer(t)
			srv.reply("/services/queryservice/fieldnames", http.StatusOK, tt.body)
			qs := newTestQueryService(srv)

			names, err := qs.GetFieldNames(context.Background(), "db", "table")
			if tt.wantErr {
				var malformedErr *MalformedResponseError
				assert.True(t, errors.As(err, &malformedErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, names.FieldNames)
			assert.Equal(t, "db", names.DataSourceName)
			assert.Equal(t, "table", names.DatasetID)

			req := srv.last(t)
			assert.Equal(t, http.MethodGet, req.Method)
			assert.Equal(t, "datasetid=table&datasourcename=db", req.Query)
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	resp, err := decodeResponse("op", nil)
	require.NoError(t, err)
	assert.Empty(t, resp)

	resp, err = decodeResponse("op", []byte(" null "))
	require.NoError(t, err)
	assert.Empty(t, resp)

	resp, err = decodeResponse("op", []byte(`true`))
	require.NoError(t, err)
	assert.Equal(t, true, resp["result"])

	_, err = decodeResponse("op", []byte(`{`))
	assert.Error(t, err)
}
