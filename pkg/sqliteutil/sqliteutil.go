package sqliteutil

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Config points at either a local sqlite file or a remote libsql database.
// Url takes precedence over File when both are set.
type Config struct {
	File      string `json:"file" env:"FILE"`
	Url       string `json:"url" env:"URL"`
	AuthToken string `json:"auth_token" env:"AUTH_TOKEN"`
}

// RemoteDSN returns the libsql connection string of a remote database.
func (config Config) RemoteDSN() (string, error) {
	parsed, err := url.Parse(config.Url)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	if config.AuthToken != "" {
		query := parsed.Query()
		query.Set("authToken", config.AuthToken)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

func (config Config) openLocal() (*sql.DB, error) {
	if config.File == "" {
		return nil, fmt.Errorf("a path was not specified")
	}
	if config.File != ":memory:" {
		if dir := filepath.Dir(config.File); dir != "." {
			err := os.MkdirAll(dir, 0777)
			if err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", config.File)
	if err != nil {
		return nil, err
	}
	// sqlite only allows a single writer, WAL lets readers continue meanwhile
	db.SetMaxOpenConns(1)
	if config.File != ":memory:" {
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// OpenDB opens the database and applies `schema`, which must be idempotent
// ("create table if not exists ...").
func (config Config) OpenDB(schema string) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	if config.Url != "" {
		var dsn string
		dsn, err = config.RemoteDSN()
		if err != nil {
			return nil, err
		}
		db, err = sql.Open("libsql", dsn)
	} else {
		db, err = config.openLocal()
	}
	if err != nil {
		return nil, err
	}

	if schema != "" {
		_, err = db.Exec(schema)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return db, nil
}
