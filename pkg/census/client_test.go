package census

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/buildpop/internal/model"
	"github.com/sells-group/buildpop/internal/resilience"
)

const tableJSON = `[["NAME","B01003_001E","B25010_001E","state","county","tract"],
["Census Tract 201, Allegheny County, Pennsylvania","3120","2.41","42","003","020100"],
["Census Tract 9800, Allegheny County, Pennsylvania","0",null,"42","003","980000"],
["Census Tract 103, Allegheny County, Pennsylvania","6600","-666666666","42","003","010300"]]`

var testQuery = Query{
	Year:      2020,
	State:     "42",
	County:    "003",
	Variables: []string{model.VarTotalPopulation, model.VarHouseholdSize},
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("secret", WithBaseURL(srv.URL), WithRetry(fastRetry()), WithRateLimit(1000))
}

func TestTractEstimates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2020/acs/acs5", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "NAME,B01003_001E,B25010_001E", q.Get("get"))
		assert.Equal(t, "tract:*", q.Get("for"))
		assert.Equal(t, "state:42 county:003", q.Get("in"))
		assert.Equal(t, "secret", q.Get("key"))
		_, _ = w.Write([]byte(tableJSON))
	})

	got, err := c.TractEstimates(context.Background(), testQuery)
	require.NoError(t, err)
	require.Len(t, got, 6)

	assert.Equal(t, "42003020100", got[0].GEOID)
	assert.Equal(t, model.VarTotalPopulation, got[0].Variable)
	assert.Equal(t, 3120.0, *got[0].Value)
	assert.Equal(t, 2.41, *got[1].Value)
	assert.Equal(t, "Census Tract 201, Allegheny County, Pennsylvania", got[1].Name)

	assert.Nil(t, got[3].Value)
	assert.Equal(t, "42003980000", got[3].GEOID)
	assert.Nil(t, got[5].Value)
}

func TestTractEstimates_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(tableJSON))
	})

	got, err := c.TractEstimates(context.Background(), testQuery)
	require.NoError(t, err)
	assert.Len(t, got, 6)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTractEstimates_GivesUp(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.TractEstimates(context.Background(), testQuery)
	var se *model.ExternalServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTractEstimates_PermanentFailure(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("error: unknown variable 'B99999_001E'"))
	})

	_, err := c.TractEstimates(context.Background(), testQuery)
	var se *model.ExternalServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
	assert.NotContains(t, err.Error(), "secret")
}

func TestTractEstimates_InvalidKey(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("<html><body>Invalid Key</body></html>"))
	})

	_, err := c.TractEstimates(context.Background(), testQuery)
	var se *model.ExternalServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, int32(1), calls.Load())
}

func TestTractEstimates_MissingColumn(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[["NAME","state","county","tract"]]`))
	})

	_, err := c.TractEstimates(context.Background(), testQuery)
	var se *model.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, model.VarTotalPopulation, se.Field)
}

func TestTractEstimates_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.TractEstimates(ctx, testQuery)
	assert.Error(t, err)
}

func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Query)
		setting string
	}{
		{"year", func(q *Query) { q.Year = 2000 }, "census.year"},
		{"state", func(q *Query) { q.State = "PA" }, "census.state"},
		{"county", func(q *Query) { q.County = "3" }, "census.county"},
		{"no vars", func(q *Query) { q.Variables = nil }, "census.variables"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := testQuery
			tt.mutate(&q)
			err := q.validate()
			var ce *model.ConfigurationError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.setting, ce.Setting)
		})
	}
	assert.NoError(t, testQuery.validate())
}

func TestParseValue(t *testing.T) {
	assert.Nil(t, parseValue(""))
	assert.Nil(t, parseValue("-666666666"))
	assert.Nil(t, parseValue("-333333333"))
	require.NotNil(t, parseValue("-2"))
	assert.Equal(t, -2.0, *parseValue("-2"))
	assert.Equal(t, 2.41, *parseValue(" 2.41 "))
}
