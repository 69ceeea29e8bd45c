package services

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"neon/backend/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utc(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestGranularity(t *testing.T) {
	g, err := ParseGranularity("hour")
	require.NoError(t, err)
	assert.Equal(t, GranularityHour, g)
	assert.Equal(t, time.Hour, g.Width())
	assert.Equal(t, 24*time.Hour, GranularityDay.Width())

	_, err = ParseGranularity("week")
	assert.Error(t, err)

	ts := time.Date(2024, 3, 5, 13, 47, 12, 500, time.FixedZone("EST", -5*3600))
	assert.Equal(t, utc(2024, 3, 5, 18, 0), GranularityHour.Floor(ts))
	assert.Equal(t, utc(2024, 3, 5, 0, 0), GranularityDay.Floor(ts))
}

func TestBucketResultsEmpty(t *testing.T) {
	now := utc(2024, 1, 2, 15, 30)
	tl, err := BucketResults(nil, GranularityHour, now)
	require.NoError(t, err)

	require.Len(t, tl.Buckets, 1)
	assert.Equal(t, utc(2024, 1, 2, 15, 0), tl.Buckets[0].Date)
	assert.Zero(t, tl.Buckets[0].Value)
	assert.True(t, tl.Empty)

	header, err := tl.FullHeader()
	require.NoError(t, err)
	assert.Nil(t, header.StartDate)
	assert.Nil(t, header.EndDate)
	assert.Zero(t, header.RecordCount)
}

func TestBucketResultsSingle(t *testing.T) {
	d := utc(2024, 1, 2, 15, 42)
	tl, err := BucketResults([]TimelinePoint{{Date: d, Count: 3}}, GranularityHour, time.Now())
	require.NoError(t, err)

	require.Len(t, tl.Buckets, 2)
	for _, b := range tl.Buckets {
		assert.Equal(t, utc(2024, 1, 2, 15, 0), b.Date)
		assert.Equal(t, float64(3), b.Value)
	}

	header, err := tl.FullHeader()
	require.NoError(t, err)
	assert.Equal(t, utc(2024, 1, 2, 15, 0), *header.StartDate)
	assert.Equal(t, utc(2024, 1, 2, 16, 0), *header.EndDate)
	assert.Equal(t, float64(3), header.RecordCount)
}

func TestBucketResultsSpan(t *testing.T) {
	start := utc(2024, 1, 1, 0, 10)
	points := []TimelinePoint{
		{Date: start, Count: 1},
		{Date: start.Add(90 * time.Minute), Count: 2},
		{Date: start.Add(5*time.Hour + 5*time.Minute), Count: 4},
		{Date: start.Add(25 * time.Hour), Count: 8},
	}

	tl, err := BucketResults(points, GranularityHour, time.Now())
	require.NoError(t, err)
	require.Len(t, tl.Buckets, 26)
	assert.Equal(t, utc(2024, 1, 1, 0, 0), tl.Reference)

	for i, b := range tl.Buckets {
		assert.Equal(t, tl.Reference.Add(time.Duration(i)*time.Hour), b.Date)
	}
	assert.Equal(t, float64(1), tl.Buckets[0].Value)
	assert.Equal(t, float64(2), tl.Buckets[1].Value)
	assert.Equal(t, float64(4), tl.Buckets[5].Value)
	assert.Equal(t, float64(8), tl.Buckets[25].Value)
	assert.Zero(t, tl.Buckets[2].Value)
}

func TestBucketResultsSumsSharedBucket(t *testing.T) {
	points := []TimelinePoint{
		{Date: utc(2024, 1, 1, 1, 0), Count: 2},
		{Date: utc(2024, 1, 1, 20, 0), Count: 5},
		{Date: utc(2024, 1, 3, 4, 0), Count: 1},
	}

	tl, err := BucketResults(points, GranularityDay, time.Now())
	require.NoError(t, err)
	require.Len(t, tl.Buckets, 3)
	assert.Equal(t, []float64{7, 0, 1}, []float64{tl.Buckets[0].Value, tl.Buckets[1].Value, tl.Buckets[2].Value})
}

func TestBucketResultsOutOfRange(t *testing.T) {
	points := []TimelinePoint{
		{Date: utc(2024, 1, 1, 5, 0), Count: 1},
		{Date: utc(2024, 1, 1, 3, 0), Count: 1},
		{Date: utc(2024, 1, 1, 6, 0), Count: 1},
	}

	_, err := BucketResults(points, GranularityHour, time.Now())
	assert.True(t, errors.Is(err, ErrBucketOutOfRange))
}

func TestTimelineHeader(t *testing.T) {
	points := make([]TimelinePoint, 0, 10)
	for i := 0; i < 10; i++ {
		points = append(points, TimelinePoint{Date: utc(2024, 1, 1, i, 30), Count: float64(i + 1)})
	}
	tl, err := BucketResults(points, GranularityHour, time.Now())
	require.NoError(t, err)
	require.Len(t, tl.Buckets, 10)

	header, err := tl.Header(utc(2024, 1, 1, 2, 0), utc(2024, 1, 1, 4, 0))
	require.NoError(t, err)
	assert.Equal(t, float64(3+4+5), header.RecordCount)
	assert.Equal(t, utc(2024, 1, 1, 2, 0), *header.StartDate)
	assert.Equal(t, utc(2024, 1, 1, 5, 0), *header.EndDate)

	swapped, err := tl.Header(utc(2024, 1, 1, 4, 0), utc(2024, 1, 1, 2, 0))
	require.NoError(t, err)
	assert.Equal(t, header, swapped)

	full, err := tl.FullHeader()
	require.NoError(t, err)
	assert.Equal(t, float64(55), full.RecordCount)

	_, err = tl.Header(utc(2024, 1, 1, 2, 0), utc(2024, 1, 2, 2, 0))
	assert.True(t, errors.Is(err, ErrBucketOutOfRange))

	_, err = tl.Header(utc(2023, 12, 31, 23, 0), utc(2024, 1, 1, 2, 0))
	assert.True(t, errors.Is(err, ErrBucketOutOfRange))
}

func TestBuildTimelineQuery(t *testing.T) {
	q := BuildTimelineQuery("db", "tweets", "created", GranularityHour)
	require.NoError(t, q.Validate())

	out, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"filter": {
			"dataSourceName": "db",
			"datasetId": "tweets",
			"whereClause": {"type": "where", "lhs": "created", "op": "!=", "rhs": null}
		},
		"groupByClause": {
			"type": "groupBy",
			"fields": [
				{"type": "function", "operation": "year", "field": "created", "name": "year"},
				{"type": "function", "operation": "month", "field": "created", "name": "month"},
				{"type": "function", "operation": "day", "field": "created", "name": "day"},
				{"type": "function", "operation": "hour", "field": "created", "name": "hour"}
			]
		},
		"aggregates": [
			{"type": "aggregate", "aggregationOperation": "count", "aggregationField": "*", "name": "count"},
			{"type": "aggregate", "aggregationOperation": "min", "aggregationField": "created", "name": "date"}
		],
		"sortClauses": [{"fieldName": "date", "sortOrder": "asc"}]
	}`, string(out))

	daily := BuildTimelineQuery("db", "tweets", "created", GranularityDay)
	assert.Len(t, daily.GroupByClause.Fields, 3)
}

func TestSelectionFilter(t *testing.T) {
	f := SelectionFilter("db", "tweets", "date", utc(2024, 1, 1, 2, 0), utc(2024, 1, 1, 4, 0), GranularityHour)
	require.NoError(t, f.Validate())

	b, ok := f.Clause.(*query.BooleanClause)
	require.True(t, ok)
	assert.Equal(t, query.KindAnd, b.Kind)
	require.Len(t, b.Clauses, 2)

	lower := b.Clauses[0].(*query.WhereClause)
	upper := b.Clauses[1].(*query.WhereClause)
	assert.Equal(t, query.OpGreaterThanOrEqual, lower.Operator)
	assert.Equal(t, "2024-01-01T02:00:00.000Z", lower.Value)
	assert.Equal(t, query.OpLessThan, upper.Operator)
	assert.Equal(t, "2024-01-01T05:00:00.000Z", upper.Value)
}

func TestPointsFromRows(t *testing.T) {
	rows := []map[string]interface{}{
		{"date": "2024-01-01T02:30:00Z", "count": float64(4)},
		{"date": float64(utc(2024, 1, 1, 3, 0).UnixMilli()), "count": "2"},
		{"date": "2024-01-01T04:00:00.000Z", "count": float64(1), "year": float64(2024)},
	}
	points, err := PointsFromRows(rows)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, utc(2024, 1, 1, 2, 30), points[0].Date)
	assert.Equal(t, utc(2024, 1, 1, 3, 0), points[1].Date)
	assert.Equal(t, float64(2), points[1].Count)
	assert.Equal(t, utc(2024, 1, 1, 4, 0), points[2].Date)

	bad := [][]map[string]interface{}{
		{{"count": float64(1)}},
		{{"date": "yesterday", "count": float64(1)}},
		{{"date": true, "count": float64(1)}},
		{{"date": "2024-01-01T02:30:00Z"}},
		{{"date": "2024-01-01T02:30:00Z", "count": "many"}},
	}
	for _, rows := range bad {
		_, err := PointsFromRows(rows)
		var malformedErr *MalformedResponseError
		assert.True(t, errors.As(err, &malformedErr), "rows %v", rows)
	}
}
