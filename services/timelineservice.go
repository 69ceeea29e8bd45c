package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"neon/backend/metrics"
	"neon/backend/query"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TimelineFilterPrefix starts the filter key of every timeline.
const TimelineFilterPrefix = "timelineFilter"

// QueryClient is the part of the query service used by timelines and saved
// filter tables.
type QueryClient interface {
	ExecuteQuery(ctx context.Context, q *query.Query) (*QueryResult, error)
	ReplaceFilter(ctx context.Context, id string, f *query.Filter) (Response, error)
	RemoveFilter(ctx context.Context, id string) (Response, error)
}

// TimelineOptions selects what a timeline counts.
type TimelineOptions struct {
	Database    string      `json:"database"`
	Table       string      `json:"table"`
	DateField   string      `json:"dateField"`
	Granularity Granularity `json:"granularity"`
}

// TimelineState is a snapshot of one timeline.
type TimelineState struct {
	Key string `json:"key"`
	TimelineOptions
	Buckets   []Bucket    `json:"buckets"`
	Header    Header      `json:"header"`
	Brush     []time.Time `json:"brush"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type timelineWidget struct {
	opts     TimelineOptions
	timeline *Timeline
	header   Header
	brush    []time.Time
	updated  time.Time
}

func (w *timelineWidget) snapshot(key string) *TimelineState {
	s := &TimelineState{
		Key:             key,
		TimelineOptions: w.opts,
		Header:          w.header,
		Buckets:         []Bucket{},
		Brush:           []time.Time{},
		UpdatedAt:       w.updated,
	}
	if w.timeline != nil {
		s.Buckets = append(s.Buckets, w.timeline.Buckets...)
	}
	s.Brush = append(s.Brush, w.brush...)
	return s
}

// TimelineService keeps the timelines created through the API. Each
// timeline owns one selection filter on the query service, keyed by its
// filter key and always replaced wholesale. When two refreshes of the same
// timeline overlap, the last response to arrive wins.
type TimelineService struct {
	client           QueryClient
	logger           *zap.Logger
	defaultDateField string
	now              func() time.Time

	mu      sync.Mutex
	widgets map[string]*timelineWidget
}

func NewTimelineService(client QueryClient, defaultDateField string, logger *zap.Logger) *TimelineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultDateField == "" {
		defaultDateField = "date"
	}
	return &TimelineService{
		client:           client,
		logger:           logger,
		defaultDateField: defaultDateField,
		now:              time.Now,
		widgets:          make(map[string]*timelineWidget),
	}
}

// Create registers a timeline and runs its first query.
func (s *TimelineService) Create(ctx context.Context, opts TimelineOptions) (*TimelineState, error) {
	if opts.Database == "" || opts.Table == "" {
		return nil, &query.InvalidClauseError{Clause: "timeline", Reason: "database and table are required"}
	}
	if opts.DateField == "" {
		opts.DateField = s.defaultDateField
	}
	if opts.Granularity == "" {
		opts.Granularity = GranularityDay
	}
	if _, err := ParseGranularity(string(opts.Granularity)); err != nil {
		return nil, &query.InvalidClauseError{Clause: "timeline", Reason: err.Error()}
	}

	key := TimelineFilterPrefix + "-" + uuid.New().String()
	s.mu.Lock()
	s.widgets[key] = &timelineWidget{opts: opts}
	s.mu.Unlock()

	state, err := s.Refresh(ctx, key)
	if err != nil {
		s.mu.Lock()
		delete(s.widgets, key)
		s.mu.Unlock()
		return nil, err
	}
	s.logger.Info("timeline created",
		zap.String("key", key),
		zap.String("database", opts.Database),
		zap.String("table", opts.Table),
		zap.String("granularity", string(opts.Granularity)))
	return state, nil
}

// Get returns a snapshot of the timeline stored under key.
func (s *TimelineService) Get(key string) (*TimelineState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.widgets[key]
	if !ok {
		return nil, ErrNotFound
	}
	return w.snapshot(key), nil
}

// Refresh re-runs the timeline query and rebuilds the buckets. The brush is
// reset and its selection filter removed.
func (s *TimelineService) Refresh(ctx context.Context, key string) (*TimelineState, error) {
	return s.refresh(ctx, key, "", false)
}

// refresh re-queries the timeline at granularity g, or at its current one
// when g is empty. The selection filter is removed first when the timeline
// has a brush or clearSelection is set. g is stored only once the new
// buckets are built.
func (s *TimelineService) refresh(ctx context.Context, key string, g Granularity, clearSelection bool) (*TimelineState, error) {
	s.mu.Lock()
	w, ok := s.widgets[key]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	opts := w.opts
	if len(w.brush) > 0 {
		clearSelection = true
	}
	s.mu.Unlock()
	if g != "" {
		opts.Granularity = g
	}

	if clearSelection {
		if _, err := s.client.RemoveFilter(ctx, key); err != nil {
			return nil, err
		}
	}

	q := BuildTimelineQuery(opts.Database, opts.Table, opts.DateField, opts.Granularity)
	result, err := s.client.ExecuteQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	points, err := PointsFromRows(result.Data)
	if err != nil {
		return nil, err
	}
	timeline, err := BucketResults(points, opts.Granularity, s.now())
	if err != nil {
		return nil, malformedErr("timelineBuckets", "results are not sorted by date", err)
	}
	header, err := timeline.FullHeader()
	if err != nil {
		return nil, malformedErr("timelineBuckets", "results are not sorted by date", err)
	}
	metrics.TimelineBuckets.Observe(float64(len(timeline.Buckets)))

	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok = s.widgets[key]
	if !ok {
		return nil, ErrNotFound
	}
	w.opts.Granularity = opts.Granularity
	w.timeline = timeline
	w.header = header
	w.brush = nil
	w.updated = s.now()
	return w.snapshot(key), nil
}

// SetGranularity switches the bucket width, drops the timeline's selection
// and re-queries. On failure the timeline keeps its previous granularity.
func (s *TimelineService) SetGranularity(ctx context.Context, key string, g Granularity) (*TimelineState, error) {
	if _, err := ParseGranularity(string(g)); err != nil {
		return nil, &query.InvalidClauseError{Clause: "timeline", Reason: err.Error()}
	}

	s.mu.Lock()
	w, ok := s.widgets[key]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	changed := w.opts.Granularity != g
	s.mu.Unlock()

	if !changed {
		return s.Get(key)
	}
	return s.refresh(ctx, key, g, true)
}

// Brush selects the buckets from brush[0] to brush[1]. Fewer than two dates
// or an empty range clears the selection and restores the full header. A
// reversed range is put in date order first.
func (s *TimelineService) Brush(ctx context.Context, key string, brush []time.Time) (*TimelineState, error) {
	s.mu.Lock()
	w, ok := s.widgets[key]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	opts := w.opts
	timeline := w.timeline
	s.mu.Unlock()

	if timeline == nil {
		return nil, fmt.Errorf("timeline %s has no data", key)
	}

	reset := len(brush) < 2 || brush[0].Equal(brush[1])
	var header Header
	var err error
	if reset {
		header, err = timeline.FullHeader()
		if err != nil {
			return nil, err
		}
		if _, err := s.client.RemoveFilter(ctx, key); err != nil {
			return nil, err
		}
		brush = nil
	} else {
		brush = []time.Time{brush[0], brush[1]}
		if brush[1].Before(brush[0]) {
			brush[0], brush[1] = brush[1], brush[0]
		}
		header, err = timeline.Header(brush[0], brush[1])
		if err != nil {
			return nil, err
		}
		f := SelectionFilter(opts.Database, opts.Table, opts.DateField, brush[0], brush[1], opts.Granularity)
		if _, err := s.client.ReplaceFilter(ctx, key, f); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok = s.widgets[key]
	if !ok {
		return nil, ErrNotFound
	}
	w.header = header
	w.brush = append([]time.Time(nil), brush...)
	w.updated = s.now()
	return w.snapshot(key), nil
}

// Delete forgets the timeline and removes its selection filter.
func (s *TimelineService) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	_, ok := s.widgets[key]
	delete(s.widgets, key)
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if _, err := s.client.RemoveFilter(ctx, key); err != nil {
		s.logger.Warn("failed to remove timeline selection", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Keys lists the registered timelines.
func (s *TimelineService) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.widgets))
	for k := range s.widgets {
		keys = append(keys, k)
	}
	return keys
}
