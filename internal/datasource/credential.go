package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"pmcautomation/pkg/configutil"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Credential is one of LiteralKey, BasicAuth or ReferenceKey.
type Credential interface {
	credential()
}

// LiteralKey is an api key sent as is.
type LiteralKey string

// BasicAuth is a web service username/password pair.
type BasicAuth struct {
	Username string
	Password string
}

// ReferenceKey is an alias of a BasicAuth stored in a ReferenceStore.
type ReferenceKey string

func (LiteralKey) credential()   {}
func (BasicAuth) credential()    {}
func (ReferenceKey) credential() {}

func (k LiteralKey) LogValue() slog.Value {
	if len(k) <= 4 {
		return slog.StringValue("****")
	}
	return slog.StringValue("****" + string(k[len(k)-4:]))
}

func (b BasicAuth) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", b.Username),
		slog.String("password", "****"),
	)
}

const literalKeyLength = 32

// LooksLikeKey reports whether `raw` has the shape of an api key:
// 32 alphanumeric characters on an api source.
func LooksLikeKey(kind Kind, raw string) bool {
	if kind != KindAPI || utf8.RuneCountInString(raw) != literalKeyLength {
		return false
	}
	for _, r := range raw {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ParseCredential guesses the credential form of a bare string: something
// that LooksLikeKey is a LiteralKey, anything else is a ReferenceKey.
//
// There is no way to force a reference that looks like a key, callers that
// know what they hold should construct the Credential directly.
func ParseCredential(kind Kind, raw string) Credential {
	if LooksLikeKey(kind, raw) {
		return LiteralKey(raw)
	}
	return ReferenceKey(raw)
}

// ReferenceStore resolves reference keys into stored credentials.
type ReferenceStore interface {
	// Lookup returns the credential stored under `ref`, a *LookupError if
	// there is none and an error wrapping ErrConfigRequired if the store
	// itself is not configured.
	Lookup(ctx context.Context, ref string) (BasicAuth, error)
}

// Resolve turns a credential into the form that is sent to the backend:
// literal keys and basic auth pairs come back unchanged, references are looked
// up in `store`. A nil credential resolves to nil.
func Resolve(ctx context.Context, cred Credential, store ReferenceStore) (Credential, error) {
	switch c := cred.(type) {
	case nil:
		return nil, nil
	case LiteralKey, BasicAuth:
		return c, nil
	case ReferenceKey:
		if store == nil {
			return nil, fmt.Errorf("%w: no credential store to resolve '%s'", ErrConfigRequired, string(c))
		}
		auth, err := store.Lookup(ctx, string(c))
		if err != nil {
			return nil, err
		}
		return auth, nil
	default:
		return nil, fmt.Errorf("unsupported credential type %T", cred)
	}
}

// ClosestReference returns the candidate most similar to ref, or "" when none
// is similar enough to be worth suggesting.
func ClosestReference(ref string, candidates []string) string {
	best := ""
	bestScore := 0.85
	for _, c := range candidates {
		score := matchr.JaroWinkler(ref, c, false)
		if score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best
}

type fileEntry struct {
	User string `json:"api_user"`
	Pass string `json:"api_pass"`
}

// FileStore is a ReferenceStore over a json credential file of the form
//
//	{
//	    "PCN_REF": {"api_user": "Username@plex.com", "api_pass": "password"}
//	}
//
// A sibling `<name>.local.json` file is merged over it if present.
type FileStore struct {
	Path string
}

func NewFileStore(path string) FileStore {
	return FileStore{Path: path}
}

func (f FileStore) read() (map[string]fileEntry, error) {
	entries, err := configutil.ReadConfig[map[string]fileEntry](f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: credential file '%s' is missing", ErrConfigRequired, f.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("read credential file: %w", err)
	}
	return entries, nil
}

// References lists every reference key in the file, sorted.
func (f FileStore) References() ([]string, error) {
	entries, err := f.read()
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(entries))
	for ref := range entries {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs, nil
}

func (f FileStore) Lookup(_ context.Context, ref string) (BasicAuth, error) {
	entries, err := f.read()
	if err != nil {
		return BasicAuth{}, err
	}
	entry, ok := entries[ref]
	if !ok {
		refs := make([]string, 0, len(entries))
		for r := range entries {
			refs = append(refs, r)
		}
		sort.Strings(refs)
		return BasicAuth{}, &LookupError{
			Reference:  ref,
			Source:     f.Path,
			Suggestion: ClosestReference(ref, refs),
		}
	}
	return BasicAuth{Username: entry.User, Password: entry.Pass}, nil
}

// ChainStore tries each store in order and returns the first hit.
type ChainStore []ReferenceStore

func (c ChainStore) Lookup(ctx context.Context, ref string) (BasicAuth, error) {
	var errs []error
	for _, store := range c {
		auth, err := store.Lookup(ctx, ref)
		if err == nil {
			return auth, nil
		}
		var lookupErr *LookupError
		if errors.As(err, &lookupErr) || errors.Is(err, ErrConfigRequired) {
			errs = append(errs, err)
			continue
		}
		return BasicAuth{}, err
	}
	if len(errs) == 0 {
		return BasicAuth{}, fmt.Errorf("%w: no credential store to resolve '%s'", ErrConfigRequired, ref)
	}
	// a store that knows nothing about the reference is more useful to report
	// than one that is not configured at all
	for _, err := range errs {
		var lookupErr *LookupError
		if errors.As(err, &lookupErr) {
			return BasicAuth{}, err
		}
	}
	return BasicAuth{}, errs[0]
}
