package pgsql

import (
	"fmt"
	"net/url"
)

// ParseServerURI checks that uri is a postgres:// or postgresql:// URL with
// a host, which is required to derive per-database URIs from it.
func ParseServerURI(uri string) (*url.URL, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse server uri: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, fmt.Errorf("parse server uri: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse server uri: missing host")
	}
	return u, nil
}

// WithDatabase returns serverURI with its path replaced by database. Query
// parameters such as sslmode are kept.
func WithDatabase(serverURI, database string) (string, error) {
	u, err := ParseServerURI(serverURI)
	if err != nil {
		return "", err
	}
	u.Path = "/" + database
	u.RawPath = ""
	return u.String(), nil
}

// DatabaseName returns the database a URI points at.
func DatabaseName(uri string) (string, error) {
	u, err := ParseServerURI(uri)
	if err != nil {
		return "", err
	}
	if len(u.Path) <= 1 {
		return "", nil
	}
	return u.Path[1:], nil
}

// Redact hides the password of uri for logging. Unparseable input is
// replaced entirely.
func Redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "<invalid uri>"
	}
	return u.Redacted()
}
