package restyutil

import (
	"encoding/json"
	"pmcautomation/internal/datasource"
	"pmcautomation/pkg/htmlutil"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// ParseErrorBody extracts what a backend said about a failure. A json object
// body comes back as a map, an html error page as its title and text, anything
// else as trimmed text.
func ParseErrorBody(body []byte) (map[string]any, string) {
	if gjson.ValidBytes(body) && gjson.ParseBytes(body).IsObject() {
		var parsed map[string]any
		err := json.Unmarshal(body, &parsed)
		if err == nil {
			return parsed, ""
		}
	}
	if htmlutil.LooksLikeHTML(body) {
		title, text, err := htmlutil.Summary(body)
		if err == nil {
			if title != "" && !strings.HasPrefix(text, title) {
				return nil, strings.TrimSpace(title + ": " + text)
			}
			return nil, text
		}
	}
	return nil, strings.TrimSpace(string(body))
}

// CheckResponse returns a *datasource.APIError for responses with an error
// status and nil otherwise.
func CheckResponse(res *resty.Response) error {
	if !res.IsError() {
		return nil
	}
	body, text := ParseErrorBody(res.Body())
	return &datasource.APIError{
		Status: res.StatusCode(),
		URL:    res.Request.URL,
		Body:   body,
		Text:   text,
	}
}
