// Package census is a client for the Census Bureau Data API, limited to the
// ACS 5-year tract-level estimates the population pipeline needs.
package census

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/buildpop/internal/model"
	"github.com/sells-group/buildpop/internal/resilience"
)

const (
	defaultBaseURL = "https://api.census.gov/data"
	serviceName    = "census"

	// maxVariables is the API's per-request cap on "get" variables,
	// including NAME.
	maxVariables = 50
)

// Estimate is one long-format ACS value. Value is nil when the API returns
// null or a negative annotation code.
type Estimate struct {
	GEOID    string
	Name     string
	Variable string
	Value    *float64
}

// Query selects tract-level estimates for one county.
type Query struct {
	Year      int
	State     string // two-digit FIPS
	County    string // three-digit FIPS
	Variables []string
}

func (q Query) validate() error {
	switch {
	case q.Year < 2009:
		return &model.ConfigurationError{Setting: "census.year", Reason: fmt.Sprintf("ACS 5-year starts in 2009, got %d", q.Year)}
	case len(q.State) != 2:
		return &model.ConfigurationError{Setting: "census.state", Reason: fmt.Sprintf("want 2-digit FIPS, got %q", q.State)}
	case len(q.County) != 3:
		return &model.ConfigurationError{Setting: "census.county", Reason: fmt.Sprintf("want 3-digit FIPS, got %q", q.County)}
	case len(q.Variables) == 0:
		return &model.ConfigurationError{Setting: "census.variables", Reason: "at least one variable is required"}
	case len(q.Variables) >= maxVariables:
		return &model.ConfigurationError{Setting: "census.variables", Reason: fmt.Sprintf("at most %d variables per request", maxVariables-1)}
	}
	return nil
}

// Client fetches ACS estimates.
type Client interface {
	TractEstimates(ctx context.Context, q Query) ([]Estimate, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a Census Data API client. An empty key is allowed; the
// API serves a small number of keyless requests per day.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(5, 5),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger(serviceName, "acs5")
	}
	return c
}

// endpoint builds the request URL without the key.
func (c *httpClient) endpoint(q Query) string {
	params := url.Values{
		"get": {"NAME," + strings.Join(q.Variables, ",")},
		"for": {"tract:*"},
		"in":  {"state:" + q.State + " county:" + q.County},
	}
	return fmt.Sprintf("%s/%d/acs/acs5?%s", c.baseURL, q.Year, params.Encode())
}

// TractEstimates returns one Estimate per (tract, variable), in response
// order. Transient failures are retried with backoff; an invalid key or
// malformed query fails on the first attempt.
func (c *httpClient) TractEstimates(ctx context.Context, q Query) ([]Estimate, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	reqURL := c.endpoint(q)
	if c.apiKey != "" {
		reqURL += "&key=" + url.QueryEscape(c.apiKey)
	}

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, reqURL)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "census: acs5 %d state %s county %s", q.Year, q.State, q.County)
	}
	return parseTable(body, q.Variables)
}

func (c *httpClient) get(ctx context.Context, reqURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "census: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "census: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL carries the key; report the transport error without it.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, &model.ExternalServiceError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "census: read body"), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.HTTPError(serviceName, resp.StatusCode, string(body))
	}

	// An invalid key yields 200 with an HTML page rather than JSON.
	if trimmed := strings.TrimSpace(string(body)); !strings.HasPrefix(trimmed, "[") {
		return nil, &model.ExternalServiceError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Err:        eris.New("response is not a JSON table; check the API key"),
		}
	}
	return body, nil
}

// parseTable decodes the API's array-of-arrays response. The first row is
// the header; state, county and tract columns form the GEOID.
func parseTable(body []byte, vars []string) ([]Estimate, error) {
	var table [][]*string
	if err := json.Unmarshal(body, &table); err != nil {
		return nil, &model.ExternalServiceError{Service: serviceName, Err: eris.Wrap(err, "decode table")}
	}
	if len(table) == 0 {
		return nil, &model.SchemaError{Source: serviceName, Field: "header", Reason: "empty response"}
	}

	col := map[string]int{}
	for i, h := range table[0] {
		if h != nil {
			col[*h] = i
		}
	}
	for _, want := range append([]string{"NAME", "state", "county", "tract"}, vars...) {
		if _, ok := col[want]; !ok {
			return nil, &model.SchemaError{Source: serviceName, Field: want}
		}
	}

	cell := func(row []*string, name string) string {
		i := col[name]
		if i >= len(row) || row[i] == nil {
			return ""
		}
		return *row[i]
	}

	out := make([]Estimate, 0, (len(table)-1)*len(vars))
	for _, row := range table[1:] {
		geoid := cell(row, "state") + cell(row, "county") + cell(row, "tract")
		name := cell(row, "NAME")
		for _, v := range vars {
			out = append(out, Estimate{
				GEOID:    geoid,
				Name:     name,
				Variable: v,
				Value:    parseValue(cell(row, v)),
			})
		}
	}
	return out, nil
}

// parseValue treats empty cells and annotation codes such as -666666666 as
// missing.
func parseValue(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || model.IsAnnotation(v) {
		return nil
	}
	return &v
}
