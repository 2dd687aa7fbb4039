package datasource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testKey = "abcdEFGH1234abcdEFGH1234abcdEFGH"

type countingStore struct {
	calls int
	auth  map[string]BasicAuth
}

func (s *countingStore) Lookup(_ context.Context, ref string) (BasicAuth, error) {
	s.calls++
	auth, ok := s.auth[ref]
	if !ok {
		return BasicAuth{}, &LookupError{Reference: ref, Source: "memory"}
	}
	return auth, nil
}

func TestParseCredential(t *testing.T) {
	require.Len(t, testKey, 32)

	require.Equal(t, LiteralKey(testKey), ParseCredential(KindAPI, testKey))
	// only api sources carry literal keys
	require.Equal(t, ReferenceKey(testKey), ParseCredential(KindUX, testKey))
	require.Equal(t, ReferenceKey(testKey), ParseCredential(KindClassic, testKey))

	require.Equal(t, ReferenceKey("Grand Haven"), ParseCredential(KindAPI, "Grand Haven"))
	require.Equal(t, ReferenceKey(testKey[:31]), ParseCredential(KindAPI, testKey[:31]))
	require.Equal(t, ReferenceKey(testKey[:31]+"-"), ParseCredential(KindAPI, testKey[:31]+"-"))
}

func TestLiteralKeyNeverLookedUp(t *testing.T) {
	store := &countingStore{auth: map[string]BasicAuth{
		testKey: {Username: "should", Password: "not-be-used"},
	}}
	src, err := NewSource(context.Background(), SourceOptions{
		Kind:       KindAPI,
		Credential: ParseCredential(KindAPI, testKey),
		References: store,
	})
	require.NoError(t, err)
	require.Equal(t, 0, store.calls)

	key, ok := src.Key()
	require.True(t, ok)
	require.Equal(t, LiteralKey(testKey), key)
	_, ok = src.BasicAuth()
	require.False(t, ok)
}

func TestNewSource(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{auth: map[string]BasicAuth{
		"Grand Haven": {Username: "GrandHavenWs@plex.com", Password: "secret"},
	}}

	src, err := NewSource(ctx, SourceOptions{
		Kind:       KindUX,
		Credential: ReferenceKey("Grand Haven"),
		References: store,
		Test:       true,
	})
	require.NoError(t, err)
	require.True(t, src.Test())
	auth, ok := src.BasicAuth()
	require.True(t, ok)
	require.Equal(t, "GrandHavenWs@plex.com", auth.Username)
	_, ok = src.Key()
	require.False(t, ok)

	src, err = NewSource(ctx, SourceOptions{
		Kind:       KindClassic,
		Credential: BasicAuth{Username: "u", Password: "p"},
	})
	require.NoError(t, err)
	require.Equal(t, BasicAuth{Username: "u", Password: "p"}, src.Credential())

	_, err = NewSource(ctx, SourceOptions{Kind: KindUX, Credential: ReferenceKey("Unknown"), References: store})
	var lookupErr *LookupError
	require.ErrorAs(t, err, &lookupErr)
	require.Equal(t, "Unknown", lookupErr.Reference)

	_, err = NewSource(ctx, SourceOptions{Kind: KindUX, Credential: ReferenceKey("Grand Haven")})
	require.ErrorIs(t, err, ErrConfigRequired)

	_, err = NewSource(ctx, SourceOptions{Kind: "soap"})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "pcn_config.json")

	store := NewFileStore(path)
	_, err := store.Lookup(ctx, "Grand Haven")
	require.ErrorIs(t, err, ErrConfigRequired)

	err = os.WriteFile(path, []byte(`{
		"Grand Haven": {"api_user": "GrandHavenWs@plex.com", "api_pass": "password"},
		"Spring Lake": {"api_user": "SpringLakeWs@plex.com", "api_pass": "password2"}
	}`), 0600)
	require.NoError(t, err)

	auth, err := store.Lookup(ctx, "Grand Haven")
	require.NoError(t, err)
	require.Equal(t, BasicAuth{Username: "GrandHavenWs@plex.com", Password: "password"}, auth)

	_, err = store.Lookup(ctx, "Grand Havn")
	var lookupErr *LookupError
	require.ErrorAs(t, err, &lookupErr)
	require.Equal(t, "Grand Haven", lookupErr.Suggestion)
	require.True(t, strings.Contains(err.Error(), "did you mean 'Grand Haven'"))

	_, err = store.Lookup(ctx, "Zeeland")
	require.ErrorAs(t, err, &lookupErr)
	require.Equal(t, "", lookupErr.Suggestion)

	err = os.WriteFile(filepath.Join(dir, "pcn_config.local.json"), []byte(`{
		"Grand Haven": {"api_user": "GrandHavenWs@plex.com", "api_pass": "rotated"}
	}`), 0600)
	require.NoError(t, err)
	auth, err = store.Lookup(ctx, "Grand Haven")
	require.NoError(t, err)
	require.Equal(t, "rotated", auth.Password)

	refs, err := store.References()
	require.NoError(t, err)
	require.Equal(t, []string{"Grand Haven", "Spring Lake"}, refs)
}

func TestChainStore(t *testing.T) {
	ctx := context.Background()
	first := &countingStore{auth: map[string]BasicAuth{}}
	second := &countingStore{auth: map[string]BasicAuth{"a": {Username: "u"}}}
	missing := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))

	chain := ChainStore{missing, first, second}
	auth, err := chain.Lookup(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "u", auth.Username)
	require.Equal(t, 1, first.calls)

	_, err = chain.Lookup(ctx, "b")
	var lookupErr *LookupError
	require.True(t, errors.As(err, &lookupErr))

	_, err = ChainStore{missing}.Lookup(ctx, "b")
	require.ErrorIs(t, err, ErrConfigRequired)
}
