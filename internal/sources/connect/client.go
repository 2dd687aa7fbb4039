// Package connect calls the Plex Connect REST api with an api key, once per
// customer (PCN) asked for.
package connect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"pmcautomation/internal/components/assert"
	"pmcautomation/internal/components/restyutil"
	"pmcautomation/internal/components/telemetry"
	"pmcautomation/internal/datasource"
	"reflect"
	"sort"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	ProdHost = "https://connect.plex.com"
	TestHost = "https://test.connect.plex.com"

	HeaderApiKey     = "X-Plex-Connect-Api-Key"
	HeaderCustomerId = "X-Plex-Connect-Customer-Id"
)

// DefaultRateLimit keeps a batch under the Connect api quota of 200 calls per
// minute.
const DefaultRateLimit = 3

const (
	report_client_query = "client.query"
	report_client_rows  = "client.rows"
)

// ResolveURL makes `raw` absolute and points it at the test or production
// host.
func ResolveURL(raw string, test bool) string {
	if !strings.Contains(raw, "://") {
		raw = ProdHost + "/" + strings.TrimPrefix(raw, "/")
	}
	if test {
		return strings.Replace(raw, ProdHost, TestHost, 1)
	}
	return raw
}

type Client struct {
	http *resty.Client
	key  datasource.LiteralKey
	test bool
	// host replaces the Plex hosts when set, it points the client at a proxy
	// or a local stand-in.
	host string
	tel  telemetry.API
}

// NewClient creates a client for `src`, which must hold a literal api key.
func NewClient(src datasource.Source, tel telemetry.API, opts restyutil.Options) (*Client, error) {
	assert.NotNil("connect", tel)
	tel = telemetry.NewScopedAPI("connect", tel)

	if src.Kind() != datasource.KindAPI {
		return nil, &datasource.ValidationError{
			Field:   "kind",
			Value:   string(src.Kind()),
			Allowed: []string{string(datasource.KindAPI)},
		}
	}
	key, ok := src.Key()
	if !ok {
		return nil, fmt.Errorf("connect api needs an api key, got %T", src.Credential())
	}

	if opts.RateLimit == 0 {
		opts.RateLimit = DefaultRateLimit
	}
	httpClient, err := restyutil.New(opts, tel)
	if err != nil {
		return nil, err
	}
	httpClient.SetHeader("Content-Type", "application/json")
	httpClient.SetHeader(HeaderApiKey, string(key))

	return &Client{
		http: httpClient,
		key:  key,
		test: src.Test(),
		host: strings.TrimSuffix(opts.BaseUrl, "/"),
		tel:  tel,
	}, nil
}

func (c *Client) resolve(raw string) string {
	target := ResolveURL(raw, c.test)
	if c.host == "" {
		return target
	}
	for _, plexHost := range []string{TestHost, ProdHost} {
		if strings.HasPrefix(target, plexHost) {
			return c.host + strings.TrimPrefix(target, plexHost)
		}
	}
	return target
}

func sendsBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut
}

// queryParams turns a flat field map into query parameters, list values are
// repeated.
func queryParams(query any) (url.Values, error) {
	params := url.Values{}
	if query == nil {
		return params, nil
	}
	fields, ok := query.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("query parameters must be named, got %T", query)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := fields[name]
		if value == nil {
			continue
		}
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := 0; i < rv.Len(); i++ {
				params.Add(name, datasource.FormatValue(rv.Index(i).Interface()))
			}
			continue
		}
		params.Add(name, datasource.FormatValue(value))
	}
	return params, nil
}

func (c *Client) call(ctx context.Context, in *datasource.Input, target, pcn string) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if pcn != "" {
		req.SetHeader(HeaderCustomerId, pcn)
	}

	if sendsBody(in.Method()) {
		body, err := in.QueryJSON()
		if err != nil {
			return nil, err
		}
		req.SetBody(body)
	} else {
		params, err := queryParams(in.Query())
		if err != nil {
			return nil, err
		}
		req.SetQueryParamsFromValues(params)
	}

	res, err := req.Execute(in.Method(), target)
	if err != nil {
		return nil, err
	}
	err = restyutil.CheckResponse(res)
	if err != nil {
		return nil, err
	}
	return res.Body(), nil
}

// Query calls the url of `in` once for every pcn, in order, and returns the
// concatenated rows. Without any pcn the call is made once for the customer
// the api key belongs to.
func (c *Client) Query(ctx context.Context, in *datasource.Input, pcns ...string) (datasource.Response, error) {
	if in.Kind() != datasource.KindAPI {
		return datasource.Response{}, &datasource.ValidationError{
			Field:   "kind",
			Value:   string(in.Kind()),
			Allowed: []string{string(datasource.KindAPI)},
		}
	}
	target := c.resolve(in.ID())
	if len(pcns) == 0 {
		pcns = []string{""}
	}

	var bodies [][]byte
	for _, pcn := range pcns {
		body, err := c.call(ctx, in, target, pcn)
		if err != nil {
			c.tel.ReportBroken(report_client_query, err, target, pcn)
			return datasource.Response{}, err
		}
		bodies = append(bodies, body)
	}

	rows, err := datasource.NormalizeAPI(bodies...)
	if err != nil {
		c.tel.ReportBroken(report_client_query, err, target)
		return datasource.Response{}, err
	}
	c.tel.ReportCount(report_client_rows, int64(len(rows)))

	raw := make([]json.RawMessage, 0, len(bodies))
	for _, body := range bodies {
		if len(strings.TrimSpace(string(body))) == 0 {
			continue
		}
		raw = append(raw, json.RawMessage(body))
	}
	return datasource.NewResponse(target, datasource.KindAPI, raw, rows), nil
}
