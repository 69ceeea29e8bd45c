package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"neon/backend/config"
	"neon/backend/query"

	"go.uber.org/zap"
)

const queryServicePath = "/services/queryservice"

// Keys added to every dataset-scoped response so callers can match an
// answer to the request that produced it.
const (
	DataSourceNameKey = "dataSourceName"
	DatasetIDKey      = "datasetId"
)

// Response is a decoded query service answer merged with the dataset
// identifiers of the request.
type Response map[string]interface{}

// DataSourceName returns the data source the response belongs to.
func (r Response) DataSourceName() string {
	s, _ := r[DataSourceNameKey].(string)
	return s
}

// DatasetID returns the dataset the response belongs to.
func (r Response) DatasetID() string {
	s, _ := r[DatasetIDKey].(string)
	return s
}

// QueryResult is the answer to ExecuteQuery.
type QueryResult struct {
	DataSourceName string                   `json:"dataSourceName"`
	DatasetID      string                   `json:"datasetId"`
	Data           []map[string]interface{} `json:"data"`
	// Extra holds any other top-level fields of the response.
	Extra map[string]interface{} `json:"-"`
}

// MarshalJSON flattens Extra next to the known fields.
func (r *QueryResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Extra)+3)
	for k, v := range r.Extra {
		out[k] = v
	}
	data := r.Data
	if data == nil {
		data = []map[string]interface{}{}
	}
	out["data"] = data
	out[DataSourceNameKey] = r.DataSourceName
	out[DatasetIDKey] = r.DatasetID
	return json.Marshal(out)
}

// FieldNames is the answer to GetFieldNames.
type FieldNames struct {
	DataSourceName string   `json:"dataSourceName"`
	DatasetID      string   `json:"datasetId"`
	FieldNames     []string `json:"fieldNames"`
}

// QueryService talks to the remote query service. It holds no per-request
// state; concurrent responses are not sequenced, so the caller decides which
// answer wins.
type QueryService struct {
	transport
}

// NewQueryService creates a client for the query service at baseURL.
func NewQueryService(baseURL string, timeout time.Duration, logger *zap.Logger) *QueryService {
	return &QueryService{transport: newTransport(baseURL, timeout, logger)}
}

// NewQueryServiceFromConfig creates a client from cfg.ServerBaseURL.
func NewQueryServiceFromConfig(cfg *config.Config, logger *zap.Logger) *QueryService {
	return NewQueryService(cfg.ServerBaseURL, cfg.Request.Timeout, logger)
}

// ExecuteQuery posts q to /query and returns its rows.
func (s *QueryService) ExecuteQuery(ctx context.Context, q *query.Query) (*QueryResult, error) {
	const op = "executeQuery"
	req, err := jsonRequest(op, queryServicePath+"/query", q)
	if err != nil {
		return nil, err
	}
	req.params = url.Values{"includefiltered": {strconv.FormatBool(q.IsIncludeFiltered())}}

	body, err := s.do(ctx, req)
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := decode(op, body, &raw); err != nil {
		return nil, err
	}
	rawData, ok := raw["data"]
	if !ok {
		return nil, malformed(op, "missing data field")
	}

	result := &QueryResult{
		DataSourceName: q.Filter.DataSourceName,
		DatasetID:      q.Filter.DatasetID,
		Extra:          map[string]interface{}{},
	}
	if err := decode(op, rawData, &result.Data); err != nil {
		return nil, err
	}
	for k, v := range raw {
		if k == "data" || k == DataSourceNameKey || k == DatasetIDKey {
			continue
		}
		var value interface{}
		if err := decode(op, v, &value); err != nil {
			return nil, err
		}
		result.Extra[k] = value
	}
	return result, nil
}

// AddFilter registers f with the query service.
func (s *QueryService) AddFilter(ctx context.Context, f *query.Filter) (Response, error) {
	return s.postFilter(ctx, "addFilter", queryServicePath+"/addfilter", f)
}

// ReplaceFilter replaces the filter registered under id with f.
func (s *QueryService) ReplaceFilter(ctx context.Context, id string, f *query.Filter) (Response, error) {
	return s.postFilter(ctx, "replaceFilter", queryServicePath+"/replacefilter/"+url.PathEscape(id), f)
}

// RemoveFilter removes the filter registered under id.
func (s *QueryService) RemoveFilter(ctx context.Context, id string) (Response, error) {
	return s.postEmpty(ctx, "removeFilter", queryServicePath+"/removefilter/"+url.PathEscape(id))
}

// ClearFilters removes every registered filter.
func (s *QueryService) ClearFilters(ctx context.Context) (Response, error) {
	return s.postEmpty(ctx, "clearFilters", queryServicePath+"/clearfilters")
}

// SetSelectionWhere makes the records matching f the current selection.
func (s *QueryService) SetSelectionWhere(ctx context.Context, f *query.Filter) (Response, error) {
	return s.postFilter(ctx, "setSelectionWhere", queryServicePath+"/setselectionwhere", f)
}

// GetSelectionWhere returns the selected records matching f.
func (s *QueryService) GetSelectionWhere(ctx context.Context, f *query.Filter) (Response, error) {
	return s.postFilter(ctx, "getSelectionWhere", queryServicePath+"/getselectionwhere", f)
}

// SetSelectedIDs replaces the selection with ids.
func (s *QueryService) SetSelectedIDs(ctx context.Context, ids []interface{}) (Response, error) {
	return s.postIDs(ctx, "setSelectedIds", queryServicePath+"/setselectedids", ids)
}

// AddSelectedIDs adds ids to the selection.
func (s *QueryService) AddSelectedIDs(ctx context.Context, ids []interface{}) (Response, error) {
	return s.postIDs(ctx, "addSelectedIds", queryServicePath+"/addselectedids", ids)
}

// RemoveSelectedIDs removes ids from the selection.
func (s *QueryService) RemoveSelectedIDs(ctx context.Context, ids []interface{}) (Response, error) {
	return s.postIDs(ctx, "removeSelectedIds", queryServicePath+"/removeselectedids", ids)
}

// ClearSelection empties the selection.
func (s *QueryService) ClearSelection(ctx context.Context) (Response, error) {
	return s.postEmpty(ctx, "clearSelection", queryServicePath+"/clearselection")
}

// GetFieldNames lists the fields of a dataset.
func (s *QueryService) GetFieldNames(ctx context.Context, dataSourceName, datasetID string) (*FieldNames, error) {
	const op = "getFieldNames"
	req := request{
		op:     op,
		method: http.MethodGet,
		path:   queryServicePath + "/fieldnames",
		params: url.Values{"datasourcename": {dataSourceName}, "datasetid": {datasetID}},
	}
	body, err := s.do(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &FieldNames{DataSourceName: dataSourceName, DatasetID: datasetID}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := decode(op, trimmed, &result.FieldNames); err != nil {
			return nil, err
		}
		return result, nil
	}

	var wrapped struct {
		FieldNames []string `json:"fieldNames"`
		Data       []string `json:"data"`
	}
	if err := decode(op, trimmed, &wrapped); err != nil {
		return nil, err
	}
	switch {
	case wrapped.FieldNames != nil:
		result.FieldNames = wrapped.FieldNames
	case wrapped.Data != nil:
		result.FieldNames = wrapped.Data
	default:
		return nil, malformed(op, "missing field name list")
	}
	return result, nil
}

func (s *QueryService) postFilter(ctx context.Context, op, path string, f *query.Filter) (Response, error) {
	req, err := jsonRequest(op, path, f)
	if err != nil {
		return nil, err
	}
	body, err := s.do(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := decodeResponse(op, body)
	if err != nil {
		return nil, err
	}
	resp[DataSourceNameKey] = f.DataSourceName
	resp[DatasetIDKey] = f.DatasetID
	return resp, nil
}

func (s *QueryService) postIDs(ctx context.Context, op, path string, ids []interface{}) (Response, error) {
	if ids == nil {
		ids = []interface{}{}
	}
	req, err := jsonRequest(op, path, ids)
	if err != nil {
		return nil, err
	}
	body, err := s.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeResponse(op, body)
}

func (s *QueryService) postEmpty(ctx context.Context, op, path string) (Response, error) {
	body, err := s.do(ctx, emptyRequest(op, path))
	if err != nil {
		return nil, err
	}
	return decodeResponse(op, body)
}

// decodeResponse accepts an empty body, a JSON object, or any other JSON
// value, which is kept under "result".
func decodeResponse(op string, body []byte) (Response, error) {
	resp := Response{}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return resp, nil
	}
	if trimmed[0] == '{' {
		if err := decode(op, trimmed, &resp); err != nil {
			return nil, err
		}
		return resp, nil
	}
	var value interface{}
	if err := decode(op, trimmed, &value); err != nil {
		return nil, err
	}
	resp["result"] = value
	return resp, nil
}
