// Package ga4 fetches report rows from the GA4 Data API.
package ga4

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gkobilansky/ga4-goat/internal/cvr"
	"github.com/gkobilansky/ga4-goat/internal/jst"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/option"
)

// DefaultPageSize is the number of rows requested per runReport call.
const DefaultPageSize = 10000

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "goat_ga4_requests_total",
	Help: "GA4 runReport calls by outcome.",
}, []string{"outcome"})

// Request describes one report.
type Request struct {
	PropertyID string
	StartDate  time.Time
	EndDate    time.Time
	Dimensions []string
	Metrics    []string
	Filters    []cvr.Filter
}

// Source returns report rows for a request.
type Source interface {
	RunReport(ctx context.Context, req Request) (cvr.Report, error)
}

// Client is a Source backed by the GA4 Data API.
type Client struct {
	svc      *analyticsdata.Service
	pageSize int64
}

var _ Source = (*Client)(nil)

// NewClient authenticates with a service account key file.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("GA4 credentials file is not configured (set GA4_CREDENTIALS_FILE)")
	}
	if _, err := os.Stat(credentialsFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("service account key not found at path: %s", credentialsFile)
	}
	return NewClientWithOptions(ctx, option.WithCredentialsFile(credentialsFile))
}

// NewClientWithOptions builds a client from raw API options.
func NewClientWithOptions(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	svc, err := analyticsdata.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GA4 client: %w", err)
	}
	return &Client{svc: svc, pageSize: DefaultPageSize}, nil
}

// RunReport fetches every page of the report.
func (c *Client) RunReport(ctx context.Context, req Request) (cvr.Report, error) {
	body := BuildRequest(req, c.pageSize)
	property := PropertyName(req.PropertyID)

	var report cvr.Report
	for {
		resp, err := c.svc.Properties.RunReport(property, body).Context(ctx).Do()
		if err != nil {
			requestsTotal.WithLabelValues("error").Inc()
			return cvr.Report{}, fmt.Errorf("failed to run GA4 report for %s: %w", property, err)
		}
		requestsTotal.WithLabelValues("ok").Inc()

		if body.Offset == 0 {
			report.DimensionHeaders, report.MetricHeaders = headers(resp)
		}
		report.Rows = append(report.Rows, rows(resp)...)

		if len(resp.Rows) == 0 || int64(len(report.Rows)) >= resp.RowCount {
			break
		}
		body.Offset = int64(len(report.Rows))
	}

	log.Debug().
		Str("property", property).
		Int("rows", len(report.Rows)).
		Msg("GA4 report fetched")

	return report, nil
}

// PropertyName returns the "properties/ID" resource name.
func PropertyName(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "properties/") {
		return id
	}
	return "properties/" + id
}

// BuildRequest converts req into a runReport body. Dates are civil dates in
// UTC+9.
func BuildRequest(req Request, pageSize int64) *analyticsdata.RunReportRequest {
	body := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{{
			StartDate: jst.FormatDate(req.StartDate),
			EndDate:   jst.FormatDate(req.EndDate),
		}},
		DimensionFilter: FilterExpression(req.Filters),
		Limit:           pageSize,
	}
	for _, d := range req.Dimensions {
		body.Dimensions = append(body.Dimensions, &analyticsdata.Dimension{Name: d})
	}
	for _, m := range req.Metrics {
		body.Metrics = append(body.Metrics, &analyticsdata.Metric{Name: m})
	}
	return body
}

// FilterExpression ANDs the filters together. A filter with several
// candidates becomes an OR group of string filters. Returns nil when there is
// nothing to filter on.
func FilterExpression(filters []cvr.Filter) *analyticsdata.FilterExpression {
	var exprs []*analyticsdata.FilterExpression
	for _, f := range filters {
		if e := filterExpression(f); e != nil {
			exprs = append(exprs, e)
		}
	}

	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	default:
		return &analyticsdata.FilterExpression{
			AndGroup: &analyticsdata.FilterExpressionList{Expressions: exprs},
		}
	}
}

func filterExpression(f cvr.Filter) *analyticsdata.FilterExpression {
	candidates := f.Candidates()
	if f.Dimension == "" || len(candidates) == 0 {
		return nil
	}

	matchType := "EXACT"
	if f.Operator == cvr.OpContains {
		matchType = "CONTAINS"
	}

	var exprs []*analyticsdata.FilterExpression
	for _, c := range candidates {
		exprs = append(exprs, &analyticsdata.FilterExpression{
			Filter: &analyticsdata.Filter{
				FieldName: f.Dimension,
				StringFilter: &analyticsdata.StringFilter{
					MatchType:     matchType,
					Value:         c,
					CaseSensitive: true,
				},
			},
		})
	}
	if len(exprs) == 1 {
		return exprs[0]
	}
	return &analyticsdata.FilterExpression{
		OrGroup: &analyticsdata.FilterExpressionList{Expressions: exprs},
	}
}

// ToReport converts a single response page.
func ToReport(resp *analyticsdata.RunReportResponse) cvr.Report {
	dims, metrics := headers(resp)
	return cvr.Report{DimensionHeaders: dims, MetricHeaders: metrics, Rows: rows(resp)}
}

func headers(resp *analyticsdata.RunReportResponse) (dims, metrics []string) {
	for _, h := range resp.DimensionHeaders {
		dims = append(dims, h.Name)
	}
	for _, h := range resp.MetricHeaders {
		metrics = append(metrics, h.Name)
	}
	return dims, metrics
}

func rows(resp *analyticsdata.RunReportResponse) []cvr.Row {
	out := make([]cvr.Row, 0, len(resp.Rows))
	for _, r := range resp.Rows {
		row := cvr.Row{
			Dimensions: make([]string, len(r.DimensionValues)),
			Metrics:    make([]string, len(r.MetricValues)),
		}
		for i, v := range r.DimensionValues {
			if v != nil {
				row.Dimensions[i] = v.Value
			}
		}
		for i, v := range r.MetricValues {
			if v != nil {
				row.Metrics[i] = v.Value
			}
		}
		out = append(out, row)
	}
	return out
}
