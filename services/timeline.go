package services

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"neon/backend/query"
)

// ErrBucketOutOfRange is returned when a date falls outside a timeline.
var ErrBucketOutOfRange = errors.New("bucket index out of range")

// Granularity is the width of a timeline bucket.
type Granularity string

const (
	GranularityHour Granularity = "hour"
	GranularityDay  Granularity = "day"
)

// ParseGranularity accepts "hour" or "day".
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case GranularityHour, GranularityDay:
		return g, nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// Width returns the bucket width.
func (g Granularity) Width() time.Duration {
	if g == GranularityHour {
		return time.Hour
	}
	return 24 * time.Hour
}

// Floor truncates t in UTC to the start of its bucket.
func (g Granularity) Floor(t time.Time) time.Time {
	t = t.UTC()
	hour := t.Hour()
	if g == GranularityDay {
		hour = 0
	}
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, time.UTC)
}

// TimelinePoint is one row of a timeline query: the earliest date of a
// group and the number of records in it.
type TimelinePoint struct {
	Date  time.Time `json:"date"`
	Count float64   `json:"count"`
}

type Bucket struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Header summarizes a range of buckets.
type Header struct {
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	RecordCount float64    `json:"recordCount"`
}

// Timeline is a run of equal-width buckets starting at Reference.
type Timeline struct {
	Granularity Granularity `json:"granularity"`
	Reference   time.Time   `json:"reference"`
	Buckets     []Bucket    `json:"buckets"`
	// Empty is set when the timeline was built from no results.
	Empty bool `json:"empty"`
}

// BucketResults spreads points, sorted by date, over buckets of width g
// spanning the first to the last point. With no points the timeline is a
// single zero bucket at now. A single point yields two buckets at its
// aligned date, each holding its count.
func BucketResults(points []TimelinePoint, g Granularity, now time.Time) (*Timeline, error) {
	width := g.Width()

	if len(points) == 0 {
		start := g.Floor(now)
		return &Timeline{
			Granularity: g,
			Reference:   start,
			Buckets:     []Bucket{{Date: start, Value: 0}},
			Empty:       true,
		}, nil
	}

	if len(points) == 1 {
		start := g.Floor(points[0].Date)
		return &Timeline{
			Granularity: g,
			Reference:   start,
			Buckets: []Bucket{
				{Date: start, Value: points[0].Count},
				{Date: start, Value: points[0].Count},
			},
		}, nil
	}

	start := g.Floor(points[0].Date)
	end := g.Floor(points[len(points)-1].Date)
	span := end.Sub(start)
	if span < 0 {
		span = -span
	}
	n := int(math.Ceil(float64(span)/float64(width))) + 1

	buckets := make([]Bucket, n)
	for i := range buckets {
		buckets[i] = Bucket{Date: start.Add(time.Duration(i) * width)}
	}

	for _, p := range points {
		i := bucketIndex(start, p.Date, width)
		if i < 0 || i >= n {
			return nil, fmt.Errorf("point %s: %w", p.Date.UTC().Format(time.RFC3339), ErrBucketOutOfRange)
		}
		buckets[i].Value += p.Count
	}

	return &Timeline{Granularity: g, Reference: start, Buckets: buckets}, nil
}

func bucketIndex(reference, t time.Time, width time.Duration) int {
	d := t.Sub(reference)
	if d < 0 {
		return -1 - int((-d-1)/width)
	}
	return int(d / width)
}

// Header sums the buckets from the one holding start to the one holding
// end, inclusive. The end date is the end of the last bucket.
func (t *Timeline) Header(start, end time.Time) (Header, error) {
	width := t.Granularity.Width()
	startIdx := bucketIndex(t.Reference, start, width)
	endIdx := bucketIndex(t.Reference, end, width)
	if startIdx > endIdx {
		startIdx, endIdx = endIdx, startIdx
	}
	if startIdx < 0 || endIdx >= len(t.Buckets) {
		return Header{}, fmt.Errorf("range %s to %s: %w",
			start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), ErrBucketOutOfRange)
	}

	var total float64
	for i := startIdx; i <= endIdx; i++ {
		total += t.Buckets[i].Value
	}
	from := t.Granularity.Floor(t.Buckets[startIdx].Date)
	to := t.Granularity.Floor(t.Buckets[endIdx].Date.Add(width))
	return Header{StartDate: &from, EndDate: &to, RecordCount: total}, nil
}

// FullHeader summarizes the whole timeline. An empty timeline has no dates
// and a zero count.
func (t *Timeline) FullHeader() (Header, error) {
	if t.Empty || len(t.Buckets) == 0 {
		return Header{}, nil
	}
	return t.Header(t.Buckets[0].Date, t.Buckets[len(t.Buckets)-1].Date)
}

// BuildTimelineQuery counts the records of a table per hour or day of
// dateField.
func BuildTimelineQuery(database, table, dateField string, g Granularity) *query.Query {
	fields := []query.GroupByField{
		query.GroupByFunc(query.Year, dateField, "year"),
		query.GroupByFunc(query.Month, dateField, "month"),
		query.GroupByFunc(query.Day, dateField, "day"),
	}
	if g == GranularityHour {
		fields = append(fields, query.GroupByFunc(query.Hour, dateField, "hour"))
	}
	return query.NewQuery().
		SelectFrom(database, table).
		Where(dateField, query.OpNotEqual, nil).
		GroupByFields(fields...).
		Aggregate(query.Count, "*", "count").
		Aggregate(query.Min, dateField, "date").
		SortBy("date", query.Ascending)
}

// SelectionFilter matches the records from the bucket holding start up to
// the end of the bucket holding end.
func SelectionFilter(database, table, dateField string, start, end time.Time, g Granularity) *query.Filter {
	return query.NewFilter().
		SelectFrom(database, table).
		WhereClause(query.And(
			query.Where(dateField, query.OpGreaterThanOrEqual, start),
			query.Where(dateField, query.OpLessThan, end.Add(g.Width())),
		))
}

// PointsFromRows reads the date and count columns of a timeline query
// result. Dates may be RFC 3339 strings or epoch milliseconds.
func PointsFromRows(rows []map[string]interface{}) ([]TimelinePoint, error) {
	const op = "timelinePoints"
	points := make([]TimelinePoint, 0, len(rows))
	for i, row := range rows {
		date, err := parseDate(row["date"])
		if err != nil {
			return nil, malformed(op, "row %d: %v", i, err)
		}
		count, err := parseCount(row["count"])
		if err != nil {
			return nil, malformed(op, "row %d: %v", i, err)
		}
		points = append(points, TimelinePoint{Date: date, Count: count})
	}
	return points, nil
}

func parseDate(v interface{}) (time.Time, error) {
	switch d := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, d); err == nil {
			return t.UTC(), nil
		}
		if t, err := time.Parse(query.TimeLayout, d); err == nil {
			return t.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("unparseable date %q", d)
	case float64:
		return time.UnixMilli(int64(d)).UTC(), nil
	case nil:
		return time.Time{}, errors.New("missing date")
	}
	return time.Time{}, fmt.Errorf("unexpected date type %T", v)
}

func parseCount(v interface{}) (float64, error) {
	switch c := v.(type) {
	case float64:
		return c, nil
	case string:
		f, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return 0, fmt.Errorf("unparseable count %q", c)
		}
		return f, nil
	case nil:
		return 0, errors.New("missing count")
	}
	return 0, fmt.Errorf("unexpected count type %T", v)
}
