package datasource

import (
	"context"
	"slices"
)

type SourceOptions struct {
	Kind       Kind
	Credential Credential
	// Test selects the test database instead of production.
	Test bool
	// References resolves ReferenceKey credentials, it may be nil when the
	// credential is not a reference.
	References ReferenceStore
}

// Source holds what every data source client shares: its kind, the test or
// production flag and exactly one resolved credential.
type Source struct {
	kind Kind
	test bool
	cred Credential
}

// NewSource validates the kind and resolves the credential once.
func NewSource(ctx context.Context, opts SourceOptions) (Source, error) {
	if !slices.Contains(Kinds, opts.Kind) {
		return Source{}, &ValidationError{
			Field:   "kind",
			Value:   string(opts.Kind),
			Allowed: kindNames(),
		}
	}
	cred, err := Resolve(ctx, opts.Credential, opts.References)
	if err != nil {
		return Source{}, err
	}
	return Source{
		kind: opts.Kind,
		test: opts.Test,
		cred: cred,
	}, nil
}

func (s Source) Kind() Kind {
	return s.kind
}

// Test reports whether calls go to the test database.
func (s Source) Test() bool {
	return s.test
}

// Credential returns the resolved credential, it is either a LiteralKey, a
// BasicAuth or nil.
func (s Source) Credential() Credential {
	return s.cred
}

// Key returns the api key if the credential is one.
func (s Source) Key() (LiteralKey, bool) {
	key, ok := s.cred.(LiteralKey)
	return key, ok
}

// BasicAuth returns the username/password pair if the credential is one.
func (s Source) BasicAuth() (BasicAuth, bool) {
	auth, ok := s.cred.(BasicAuth)
	return auth, ok
}
