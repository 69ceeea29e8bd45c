package services

import (
	"context"
	"net/url"
	"time"

	"neon/backend/config"

	"go.uber.org/zap"
)

const filterServicePath = "/services/filterservice"

// FilterService discovers datastores, databases, tables and columns for the
// filter builder.
type FilterService struct {
	transport
}

func NewFilterService(baseURL string, timeout time.Duration, logger *zap.Logger) *FilterService {
	return &FilterService{transport: newTransport(baseURL, timeout, logger)}
}

func NewFilterServiceFromConfig(cfg *config.Config, logger *zap.Logger) *FilterService {
	return NewFilterService(cfg.ServerBaseURL, cfg.Request.Timeout, logger)
}

// Hostnames lists the datastore hosts the server knows about.
func (s *FilterService) Hostnames(ctx context.Context) ([]string, error) {
	return s.list(ctx, "hostnames", nil)
}

// Connect points the server at a datastore on hostname. Later discovery
// calls run against that connection.
func (s *FilterService) Connect(ctx context.Context, datastore, hostname string) error {
	req := formRequest("connect", filterServicePath+"/connect", url.Values{
		"datastore": {datastore},
		"hostname":  {hostname},
	})
	_, err := s.do(ctx, req)
	return err
}

func (s *FilterService) DatabaseNames(ctx context.Context) ([]string, error) {
	return s.list(ctx, "databaseNames", nil)
}

func (s *FilterService) TableNames(ctx context.Context, database string) ([]string, error) {
	return s.list(ctx, "tableNames", url.Values{"database": {database}})
}

func (s *FilterService) ColumnNames(ctx context.Context, database, table string) ([]string, error) {
	return s.list(ctx, "columnNames", url.Values{"database": {database}, "table": {table}})
}

func (s *FilterService) list(ctx context.Context, op string, form url.Values) ([]string, error) {
	if form == nil {
		form = url.Values{}
	}
	body, err := s.do(ctx, formRequest(op, filterServicePath+"/"+op, form))
	if err != nil {
		return nil, err
	}
	var names []string
	if err := decode(op, body, &names); err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}
