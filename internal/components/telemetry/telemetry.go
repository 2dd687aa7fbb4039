package telemetry

import (
	"strings"
)

// API is what every component reports through instead of calling slog or otel
// directly, so tests can assert on what was reported.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that failed in a way somebody has to
	// look at, a data source call that never succeeded or a mail that was never
	// sent.
	//
	// The `id` names the component, not the line that failed. Reading it in a
	// batch log after an overnight run should be enough to find the code. An
	// HTTP failure inside the connect client's Query method is reported as
	// `client.query` under the `connect` scope. Extra detail goes in params.
	//
	// ids are lowercase, use underscores inside a component name and dashes
	// inside a method name.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something that worked but deserves a look, like a
	// UX data source that hit its row limit.
	ReportWarning(id string, params ...any)

	// ReportDebug is only shown on --debug runs.
	ReportDebug(msg string, params ...any)

	// ReportCount reports a count observed at this point in time. Counts are
	// samples, consumers should not sum them.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id it reports with a namespace, "connect: client.query".
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	// unwrap so nested scopes read "keychain.db: ..." rather than "keychain: db: ..."
	if parent, ok := inner.(ScopedAPI); ok {
		return parent.Scope(namespace)
	}
	return ScopedAPI{namespace: namespace, inner: inner}
}

// Scope returns a child scope, its namespace is joined to the parent's with a dot.
func (s ScopedAPI) Scope(namespace string) ScopedAPI {
	return ScopedAPI{
		namespace: strings.Join([]string{s.namespace, namespace}, "."),
		inner:     s.inner,
	}
}

func (s ScopedAPI) Namespace() string {
	return s.namespace
}

func (s ScopedAPI) qualify(id string) string {
	return s.namespace + ": " + id
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.qualify(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.qualify(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.qualify(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.qualify(id), count)
}

// Nop drops every report.
type Nop struct{}

func (Nop) ReportBroken(string, ...any)  {}
func (Nop) ReportWarning(string, ...any) {}
func (Nop) ReportDebug(string, ...any)   {}
func (Nop) ReportCount(string, int64)    {}
