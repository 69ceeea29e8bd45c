package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"neon/backend/metrics"

	"go.uber.org/zap"
)

// maxErrorBody caps how much of a failed response is kept for the error.
const maxErrorBody = 4 << 10

// transport posts requests to the query server and decodes JSON answers.
type transport struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func newTransport(baseURL string, timeout time.Duration, logger *zap.Logger) transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type request struct {
	op          string
	method      string
	path        string
	params      url.Values
	contentType string
	body        []byte
}

// emptyRequest is a JSON POST without a body.
func emptyRequest(op, path string) request {
	return request{op: op, method: http.MethodPost, path: path, contentType: "application/json"}
}

func jsonRequest(op, path string, payload interface{}) (request, error) {
	req := emptyRequest(op, path)
	if payload == nil {
		return req, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return req, fmt.Errorf("%s: encode request: %w", op, err)
	}
	req.body = body
	return req, nil
}

func formRequest(op, path string, form url.Values) request {
	return request{
		op:          op,
		method:      http.MethodPost,
		path:        path,
		contentType: "application/x-www-form-urlencoded",
		body:        []byte(form.Encode()),
	}
}

func (t transport) url(path string, params url.Values) string {
	u := t.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// do sends req and returns the raw response body. Failures are reported as
// *TransportError.
func (t transport) do(ctx context.Context, req request) ([]byte, error) {
	target := t.url(req.path, req.params)
	start := time.Now()
	defer func() {
		metrics.QueryServiceLatency.WithLabelValues(req.op).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		metrics.QueryServiceRequests.WithLabelValues(req.op, metrics.OutcomeTransport).Inc()
		return nil, &TransportError{Op: req.op, URL: target, Err: err}
	}
	if req.contentType != "" && req.body != nil {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		metrics.QueryServiceRequests.WithLabelValues(req.op, metrics.OutcomeTransport).Inc()
		t.logger.Warn("query service request failed", zap.String("op", req.op), zap.String("url", target), zap.Error(err))
		return nil, &TransportError{Op: req.op, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.QueryServiceRequests.WithLabelValues(req.op, metrics.OutcomeTransport).Inc()
		return nil, &TransportError{Op: req.op, URL: target, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.QueryServiceRequests.WithLabelValues(req.op, metrics.OutcomeTransport).Inc()
		snippet := data
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		t.logger.Warn("query service returned error status",
			zap.String("op", req.op),
			zap.String("url", target),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet))
		return nil, &TransportError{
			Op:         req.op,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	metrics.QueryServiceRequests.WithLabelValues(req.op, metrics.OutcomeOK).Inc()
	t.logger.Debug("query service request done",
		zap.String("op", req.op),
		zap.String("url", target),
		zap.Duration("elapsed", time.Since(start)))
	return data, nil
}

// decode unmarshals a response body, reporting failures as
// *MalformedResponseError.
func decode(op string, data []byte, out interface{}) error {
	if err := json.Unmarshal(data, out); err != nil {
		metrics.QueryServiceRequests.WithLabelValues(op, metrics.OutcomeMalformed).Inc()
		return &MalformedResponseError{Op: op, Reason: "invalid JSON", Err: err}
	}
	return nil
}

func malformed(op, format string, args ...interface{}) error {
	metrics.QueryServiceRequests.WithLabelValues(op, metrics.OutcomeMalformed).Inc()
	return &MalformedResponseError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

func malformedErr(op, reason string, err error) error {
	metrics.QueryServiceRequests.WithLabelValues(op, metrics.OutcomeMalformed).Inc()
	return &MalformedResponseError{Op: op, Reason: reason, Err: err}
}
