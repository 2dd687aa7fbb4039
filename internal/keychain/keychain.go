package keychain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"pmcautomation/internal/components/chrono"
	"pmcautomation/internal/components/telemetry"
	"pmcautomation/internal/datasource"
	"pmcautomation/internal/keychain/db"
	"strings"
	"time"
)

const (
	report_keychain_set    = "store.set"
	report_keychain_delete = "store.delete"
	report_keychain_import = "store.import_file"
	report_keychain_lookup = "store.lookup"
)

// Entry describes a stored credential without its password.
type Entry struct {
	Reference string
	Username  string
	UpdatedAt time.Time
}

// Store keeps reference keys and the basic auth they resolve to in a sqlite
// (or libsql) database. It implements datasource.ReferenceStore.
type Store struct {
	qry    *db.Queries
	makeTx db.MakeTx
	clock  chrono.API
	tel    telemetry.API
}

func NewStore(database *sql.DB, clock chrono.API, tel telemetry.API) Store {
	return Store{
		qry:    db.New(database),
		makeTx: db.NewMakeTx(database),
		clock:  clock,
		tel:    telemetry.NewScopedAPI("keychain", tel),
	}
}

func (s Store) source() string {
	return "keychain"
}

func (s Store) Set(ctx context.Context, ref string, auth datasource.BasicAuth) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return fmt.Errorf("reference must not be empty")
	}
	err := s.qry.SetCredential(ctx, db.SetCredentialParams{
		Reference: ref,
		Username:  auth.Username,
		Password:  auth.Password,
		UpdatedAt: s.clock.Now().Unix(),
	})
	if err != nil {
		s.tel.ReportBroken(report_keychain_set, err, ref)
		return err
	}
	s.tel.ReportDebug("set credential", "reference", ref, "auth", auth)
	return nil
}

// Lookup returns the basic auth stored under `ref`. An empty keychain wraps
// datasource.ErrConfigRequired, a missing reference is a *datasource.LookupError.
func (s Store) Lookup(ctx context.Context, ref string) (datasource.BasicAuth, error) {
	row, err := s.qry.GetCredential(ctx, ref)
	if err == nil {
		return datasource.BasicAuth{Username: row.Username, Password: row.Password}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		s.tel.ReportBroken(report_keychain_lookup, err, ref)
		return datasource.BasicAuth{}, err
	}

	refs, err := s.qry.ListReferences(ctx)
	if err != nil {
		s.tel.ReportBroken(report_keychain_lookup, err, ref)
		return datasource.BasicAuth{}, err
	}
	if len(refs) == 0 {
		return datasource.BasicAuth{}, fmt.Errorf("keychain is empty: %w", datasource.ErrConfigRequired)
	}
	return datasource.BasicAuth{}, &datasource.LookupError{
		Reference:  ref,
		Source:     s.source(),
		Suggestion: datasource.ClosestReference(ref, refs),
	}
}

// Delete removes `ref`, it reports whether anything was removed.
func (s Store) Delete(ctx context.Context, ref string) (bool, error) {
	count, err := s.qry.DeleteCredential(ctx, ref)
	if err != nil {
		s.tel.ReportBroken(report_keychain_delete, err, ref)
		return false, err
	}
	return count > 0, nil
}

func (s Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.qry.ListCredentials(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(rows))
	for i, row := range rows {
		entries[i] = Entry{
			Reference: row.Reference,
			Username:  row.Username,
			UpdatedAt: time.Unix(row.UpdatedAt, 0).In(s.clock.Location()),
		}
	}
	return entries, nil
}

// ImportFile copies every reference of a credential file into the keychain
// in a single transaction and returns how many were imported.
func (s Store) ImportFile(ctx context.Context, path string) (int, error) {
	file := datasource.NewFileStore(path)
	refs, err := file.References()
	if err != nil {
		return 0, err
	}

	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_keychain_import, err, path)
		return 0, err
	}
	defer discard()

	now := s.clock.Now().Unix()
	for _, ref := range refs {
		auth, err := file.Lookup(ctx, ref)
		if err != nil {
			return 0, err
		}
		err = tx.SetCredential(ctx, db.SetCredentialParams{
			Reference: ref,
			Username:  auth.Username,
			Password:  auth.Password,
			UpdatedAt: now,
		})
		if err != nil {
			s.tel.ReportBroken(report_keychain_import, err, path, ref)
			return 0, err
		}
	}

	err = commit()
	if err != nil {
		s.tel.ReportBroken(report_keychain_import, err, path)
		return 0, err
	}
	s.tel.ReportCount(report_keychain_import, int64(len(refs)))
	return len(refs), nil
}
