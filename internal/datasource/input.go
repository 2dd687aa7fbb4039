package datasource

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Parameter is a single named input of a classic data source call.
type Parameter struct {
	Name  string
	Value string
}

// Input is the payload of a data source call. Fields are assigned explicitly
// and the serialized query is recomputed after every mutation.
//
// Field names starting with an underscore are kept on the input but never
// take part in the query, they are meant for caller bookkeeping.
type Input struct {
	id     string
	kind   Kind
	method string

	fields map[string]any
	// insertion order of fields, classic parameters are sent in this order
	order []string

	query  any
	frozen bool
}

// NewInput creates an empty input for the data source `id` of the given kind.
func NewInput(id string, kind string) (*Input, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}
	in := &Input{
		id:     id,
		kind:   k,
		fields: map[string]any{},
	}
	in.refresh()
	return in, nil
}

// NewAPIInput creates an input for a REST endpoint, `url` is the endpoint and
// `method` the http method (GET when empty).
func NewAPIInput(url, method string) (*Input, error) {
	in, err := NewInput(url, string(KindAPI))
	if err != nil {
		return nil, err
	}
	err = in.SetMethod(method)
	if err != nil {
		return nil, err
	}
	return in, nil
}

var apiMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

// NewRawInput creates an input whose query is the given pre-serialized
// payload. The query of such an input is never recomputed, field mutations
// are still recorded.
func NewRawInput(id string, kind string, payload any) (*Input, error) {
	in, err := NewInput(id, kind)
	if err != nil {
		return nil, err
	}
	in.frozen = true
	in.query = payload
	return in, nil
}

// SetMethod sets the http method of an api input (GET when empty).
func (in *Input) SetMethod(method string) error {
	if in.kind != KindAPI {
		return fmt.Errorf("%s inputs have no http method", in.kind)
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	if !slices.Contains(apiMethods, method) {
		return &ValidationError{Field: "method", Value: method, Allowed: apiMethods}
	}
	in.method = method
	return nil
}

func (in *Input) ID() string {
	return in.id
}

func (in *Input) Kind() Kind {
	return in.kind
}

// Method returns the http method of an api input, it is empty for other kinds.
func (in *Input) Method() string {
	return in.method
}

// Frozen reports whether the input was built from a raw payload.
func (in *Input) Frozen() bool {
	return in.frozen
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, "_")
}

func (in *Input) set(name string, value any) {
	if _, exists := in.fields[name]; !exists {
		in.order = append(in.order, name)
	}
	in.fields[name] = value
}

func (in *Input) remove(name string) {
	if _, exists := in.fields[name]; !exists {
		return
	}
	delete(in.fields, name)
	in.order = slices.DeleteFunc(in.order, func(n string) bool {
		return n == name
	})
}

// Set assigns a field and recomputes the query.
func (in *Input) Set(name string, value any) {
	in.set(name, value)
	if !isHidden(name) {
		in.refresh()
	}
}

// SetFields assigns every field of the map (in sorted key order) and
// recomputes the query once.
func (in *Input) SetFields(fields map[string]any) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		in.set(name, fields[name])
	}
	in.refresh()
}

// Get returns the value of a field, hidden fields included.
func (in *Input) Get(name string) (any, bool) {
	value, ok := in.fields[name]
	return value, ok
}

// Pop removes the named fields, names starting with an underscore are ignored.
func (in *Input) Pop(names ...string) {
	for _, name := range names {
		if isHidden(name) {
			continue
		}
		in.remove(name)
	}
	in.refresh()
}

// Keep removes every field that is not in `keep`, hidden fields are left
// alone. Keep() with no names removes all fields.
func (in *Input) Keep(keep ...string) {
	for _, name := range slices.Clone(in.order) {
		if isHidden(name) || slices.Contains(keep, name) {
			continue
		}
		in.remove(name)
	}
	in.refresh()
}

// PurgeEmpty removes every field holding a nil value, these can cause issues
// when the backend input is not nullable.
func (in *Input) PurgeEmpty() {
	for _, name := range slices.Clone(in.order) {
		if isHidden(name) || in.fields[name] != nil {
			continue
		}
		in.remove(name)
	}
	in.refresh()
}

// Names returns the names of the fields taking part in the query, in the
// order they were first assigned.
func (in *Input) Names() []string {
	var names []string
	for _, name := range in.order {
		if !isHidden(name) {
			names = append(names, name)
		}
	}
	return names
}

// Fields returns a copy of the fields taking part in the query.
func (in *Input) Fields() map[string]any {
	out := make(map[string]any, len(in.fields))
	for name, value := range in.fields {
		if !isHidden(name) {
			out[name] = value
		}
	}
	return out
}

// Query returns the serialized query of the input.
//
//   - api: the flat field map
//   - ux: {"inputs": <field map>}
//   - classic: []Parameter, names prefixed with "@", nil values left out
//
// The returned value is a copy, changing it does not change the input. A raw
// payload is returned as given.
func (in *Input) Query() any {
	if in.frozen {
		return in.query
	}
	switch query := in.query.(type) {
	case map[string]any:
		return copyQuery(query)
	case []Parameter:
		return slices.Clone(query)
	default:
		return query
	}
}

// copyQuery copies the field maps of a query, the ux envelope included.
func copyQuery(query map[string]any) map[string]any {
	out := make(map[string]any, len(query))
	for name, value := range query {
		if inner, ok := value.(map[string]any); ok {
			value = copyQuery(inner)
		}
		out[name] = value
	}
	return out
}

// QueryJSON returns the json encoding of Query().
func (in *Input) QueryJSON() ([]byte, error) {
	return json.Marshal(in.query)
}

func (in *Input) refresh() {
	if in.frozen {
		return
	}
	switch in.kind {
	case KindUX:
		in.query = map[string]any{"inputs": in.Fields()}
	case KindClassic:
		params := []Parameter{}
		for _, name := range in.Names() {
			value := in.fields[name]
			if value == nil {
				continue
			}
			params = append(params, Parameter{
				Name:  "@" + name,
				Value: FormatValue(value),
			})
		}
		in.query = params
	default:
		in.query = in.Fields()
	}
}

// LoadTemplate assigns every input listed in `<dir>/<id>.json`. A template
// lists all the inputs of a data source with their defaults, either at the
// top level or under an "inputs" key. Keys keep the order of the file.
func (in *Input) LoadTemplate(dir string) error {
	path := filepath.Join(dir, fmt.Sprintf("%s.json", in.id))
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read template: %w", err)
	}
	if !gjson.ValidBytes(contents) {
		return fmt.Errorf("read template %s: invalid json", path)
	}

	parsed := gjson.ParseBytes(contents)
	if inputs := parsed.Get("inputs"); inputs.IsObject() {
		parsed = inputs
	}
	if !parsed.IsObject() {
		return fmt.Errorf("read template %s: expected an object of inputs", path)
	}

	parsed.ForEach(func(key, value gjson.Result) bool {
		in.set(key.String(), valueOf(value))
		return true
	})
	in.refresh()
	return nil
}
