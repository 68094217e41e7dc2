package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/joshuamhtsang/sine/internal/logging"
)

// QueryClient reads metrics back out of a Prometheus server that is
// scraping this Exporter (or any other sine instance's) /metrics
// endpoint — useful for a scenario runner asserting on link quality
// after a mobility step. Partial results warn through the structured
// Logger rather than failing the whole query.
type QueryClient struct {
	api v1.API
	cfg QueryConfig
	log *logging.Logger
}

// QueryConfig configures a QueryClient.
type QueryConfig struct {
	URL     string
	Timeout time.Duration
}

// QueryResult is one sample read back from Prometheus.
type QueryResult struct {
	Timestamp time.Time
	Value     float64
	Labels    map[string]string
}

// NewQueryClient builds a QueryClient against cfg.URL.
func NewQueryClient(cfg QueryConfig, log *logging.Logger) (*QueryClient, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = logging.Nop()
	}
	apiClient, err := api.NewClient(api.Config{Address: cfg.URL})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}
	return &QueryClient{api: v1.NewAPI(apiClient), cfg: cfg, log: log}, nil
}

// QueryInstant runs an instant query at ts.
func (c *QueryClient) QueryInstant(ctx context.Context, query string, ts time.Time) ([]QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	result, warnings, err := c.api.Query(ctx, query, ts)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	if len(warnings) > 0 {
		c.log.Warn("prometheus query returned warnings", "query", query, "warnings", warnings)
	}
	return parseResult(result)
}

// QueryLatest runs an instant query at the current time.
func (c *QueryClient) QueryLatest(ctx context.Context, query string) ([]QueryResult, error) {
	return c.QueryInstant(ctx, query, time.Now())
}

// QueryRange runs a range query over [start, end] at step.
func (c *QueryClient) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	r := v1.Range{Start: start, End: end, Step: step}
	result, warnings, err := c.api.QueryRange(ctx, query, r)
	if err != nil {
		return nil, fmt.Errorf("range query failed: %w", err)
	}
	if len(warnings) > 0 {
		c.log.Warn("prometheus range query returned warnings", "query", query, "warnings", warnings)
	}
	return parseResult(result)
}

// LatestValue is a convenience wrapper returning a single query's first
// sample value, e.g. for a scenario assertion like "SINR on link X is
// above threshold Y".
func (c *QueryClient) LatestValue(ctx context.Context, query string) (float64, error) {
	results, err := c.QueryLatest(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("query %q returned no results", query)
	}
	return results[0].Value, nil
}

func parseResult(value model.Value) ([]QueryResult, error) {
	var results []QueryResult

	switch v := value.(type) {
	case model.Vector:
		for _, sample := range v {
			results = append(results, QueryResult{
				Timestamp: sample.Timestamp.Time(),
				Value:     float64(sample.Value),
				Labels:    metricToMap(sample.Metric),
			})
		}
	case model.Matrix:
		for _, stream := range v {
			for _, sample := range stream.Values {
				results = append(results, QueryResult{
					Timestamp: sample.Timestamp.Time(),
					Value:     float64(sample.Value),
					Labels:    metricToMap(stream.Metric),
				})
			}
		}
	case *model.Scalar:
		results = append(results, QueryResult{Timestamp: v.Timestamp.Time(), Value: float64(v.Value)})
	default:
		return nil, fmt.Errorf("unsupported prometheus result type: %T", value)
	}

	return results, nil
}

func metricToMap(metric model.Metric) map[string]string {
	labels := make(map[string]string, len(metric))
	for k, v := range metric {
		labels[string(k)] = string(v)
	}
	return labels
}
