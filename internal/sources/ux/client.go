// Package ux executes Plex UX data sources over the UX REST endpoint with
// basic auth.
package ux

import (
	"context"
	"fmt"
	"pmcautomation/internal/components/assert"
	"pmcautomation/internal/components/restyutil"
	"pmcautomation/internal/components/telemetry"
	"pmcautomation/internal/datasource"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

const (
	ProdHost = "https://cloud.plex.com"
	TestHost = "https://test.cloud.plex.com"
)

const (
	report_client_query     = "client.query"
	report_client_row_limit = "client.row-limit-exceeded"
	report_client_query_all = "client.query-all"
	report_client_rows      = "client.rows"
)

// ExecuteError carries the errors a data source reported while executing.
type ExecuteError struct {
	TransactionNo string
	Messages      []string
}

func (e *ExecuteError) Error() string {
	return fmt.Sprintf("data source execution failed: %s", strings.Join(e.Messages, "; "))
}

// Host returns the UX host of the test or production database.
func Host(test bool) string {
	if test {
		return TestHost
	}
	return ProdHost
}

type Client struct {
	http *resty.Client
	tel  telemetry.API
}

// NewClient creates a client for `src`, which must hold basic auth. The
// host follows src.Test() unless opts.BaseUrl is set.
func NewClient(src datasource.Source, tel telemetry.API, opts restyutil.Options) (*Client, error) {
	assert.NotNil("ux", tel)
	tel = telemetry.NewScopedAPI("ux", tel)

	if src.Kind() != datasource.KindUX {
		return nil, &datasource.ValidationError{
			Field:   "kind",
			Value:   string(src.Kind()),
			Allowed: []string{string(datasource.KindUX)},
		}
	}
	auth, ok := src.BasicAuth()
	if !ok {
		return nil, fmt.Errorf("ux data sources need a username and password, got %T", src.Credential())
	}

	if opts.BaseUrl == "" {
		opts.BaseUrl = Host(src.Test())
	}
	httpClient, err := restyutil.New(opts, tel)
	if err != nil {
		return nil, err
	}
	httpClient.SetBasicAuth(auth.Username, auth.Password)
	httpClient.SetHeader("Content-Type", "application/json")
	httpClient.SetHeader("Accept", "application/json")

	return &Client{http: httpClient, tel: tel}, nil
}

func executeErrors(envelope gjson.Result) []string {
	var messages []string
	for _, e := range envelope.Get("errors").Array() {
		switch {
		case e.IsObject() && e.Get("message").Exists():
			messages = append(messages, e.Get("message").String())
		case e.Type == gjson.String:
			messages = append(messages, e.Str)
		default:
			messages = append(messages, e.Raw)
		}
	}
	return messages
}

// Query executes the data source `in` names and returns its rows.
func (c *Client) Query(ctx context.Context, in *datasource.Input) (datasource.Response, error) {
	if in.Kind() != datasource.KindUX {
		return datasource.Response{}, &datasource.ValidationError{
			Field:   "kind",
			Value:   string(in.Kind()),
			Allowed: []string{string(datasource.KindUX)},
		}
	}

	body, err := in.QueryJSON()
	if err != nil {
		return datasource.Response{}, err
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", in.ID()).
		SetBody(body).
		Post("/api/datasources/{id}/execute")
	if err != nil {
		c.tel.ReportBroken(report_client_query, err, in.ID())
		return datasource.Response{}, err
	}
	err = restyutil.CheckResponse(res)
	if err != nil {
		c.tel.ReportBroken(report_client_query, err, in.ID())
		return datasource.Response{}, err
	}

	envelope := gjson.ParseBytes(res.Body())
	messages := executeErrors(envelope)
	if len(messages) > 0 {
		err := &datasource.ResponseError{
			Kind: datasource.KindUX,
			ID:   in.ID(),
			Err: &ExecuteError{
				TransactionNo: envelope.Get("transactionNo").String(),
				Messages:      messages,
			},
		}
		c.tel.ReportBroken(report_client_query, err)
		return datasource.Response{}, err
	}

	rowLimitExceeded := envelope.Get("rowLimitExceeded").Bool()
	for _, table := range envelope.Get("tables").Array() {
		rowLimitExceeded = rowLimitExceeded || table.Get("rowLimitExceeded").Bool()
	}
	if rowLimitExceeded {
		c.tel.ReportWarning(report_client_row_limit, in.ID())
	}

	rows, err := datasource.NormalizeUX(res.Body())
	if err != nil {
		c.tel.ReportBroken(report_client_query, err, in.ID())
		return datasource.Response{}, err
	}
	c.tel.ReportCount(report_client_rows, int64(len(rows)))

	return datasource.NewResponse(in.ID(), datasource.KindUX, envelope.Value(), rows), nil
}

// QueryAll executes every input with at most `limit` calls in flight and
// returns the responses in the order of `inputs`. The first failure cancels
// the calls that have not finished.
func (c *Client) QueryAll(ctx context.Context, inputs []*datasource.Input, limit int) ([]datasource.Response, error) {
	if limit < 1 {
		limit = 1
	}
	out := make([]datasource.Response, len(inputs))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	for i, in := range inputs {
		group.Go(func() error {
			res, err := c.Query(ctx, in)
			if err != nil {
				return fmt.Errorf("data source %s: %w", in.ID(), err)
			}
			out[i] = res
			return nil
		})
	}
	err := group.Wait()
	if err != nil {
		c.tel.ReportBroken(report_client_query_all, err)
		return nil, err
	}
	return out, nil
}
