package datasource

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrConfigRequired is returned when a reference key must be resolved but
// there is no credential configuration to resolve it against. Callers decide
// whether to fall back to asking the user.
var ErrConfigRequired = errors.New("credential configuration required")

// ErrNoRows is wrapped by ResponseError when a response has nothing to export.
var ErrNoRows = errors.New("no rows")

// ValidationError reports a value outside of its allowed set.
type ValidationError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf(
		"%s must be one of %v, received '%s'",
		e.Field, e.Allowed, e.Value,
	)
}

// LookupError reports a reference key that is missing from a credential store.
type LookupError struct {
	Reference string
	// Source names the store that was searched (a file path, a database).
	Source string
	// Suggestion is the closest known reference, if any is close enough.
	Suggestion string
}

func (e *LookupError) Error() string {
	msg := fmt.Sprintf("reference '%s' not found in %s", e.Reference, e.Source)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean '%s'?)", e.Suggestion)
	}
	return msg
}

// APIError is returned when a request still fails after all retries, it
// carries the error body the backend returned.
type APIError struct {
	Status int
	URL    string
	// Body is the parsed json error body, nil when the body was not json.
	Body map[string]any
	// Text is the raw (or extracted, for html pages) body when Body is nil.
	Text string
}

func (e *APIError) Error() string {
	var detail string
	switch {
	case len(e.Body) > 0:
		encoded, err := json.Marshal(e.Body)
		if err != nil {
			detail = fmt.Sprint(e.Body)
		} else {
			detail = string(encoded)
		}
	case e.Text != "":
		detail = strings.TrimSpace(e.Text)
	default:
		detail = "empty response body"
	}
	if e.URL == "" {
		return fmt.Sprintf("error calling api: status %d: %s", e.Status, detail)
	}
	return fmt.Sprintf("error calling api %s: status %d: %s", e.URL, e.Status, detail)
}

// Message returns the "message" field of the error body if there is one.
func (e *APIError) Message() string {
	msg, _ := e.Body["message"].(string)
	return msg
}

// ResponseError reports a response that cannot be used for what was asked of it.
type ResponseError struct {
	Kind Kind
	ID   string
	Err  error
}

func (e *ResponseError) Error() string {
	if errors.Is(e.Err, ErrNoRows) {
		return fmt.Sprintf("%s response for '%s' has no transformed data to save", e.Kind, e.ID)
	}
	return fmt.Sprintf("%s response for '%s': %s", e.Kind, e.ID, e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}
