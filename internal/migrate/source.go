package migrate

import (
	"bytes"
	"crypto/sha512"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/giantswarm/pgenv/internal/sentinel"
)

// ErrDuplicateVersion is returned when two files share a version.
const ErrDuplicateVersion = sentinel.Error("duplicate migration version")

// noTransactionMarker on the first line disables the wrapping transaction.
const noTransactionMarker = "-- no-transaction"

// Migration is one versioned SQL script.
type Migration struct {
	Version     int64
	Description string
	SQL         string
	Checksum    []byte // SHA-384 of SQL
	NoTx        bool
}

// LoadDir reads the migrations in dir. A missing directory is an error; an
// empty one yields no migrations.
func LoadDir(dir string) ([]Migration, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open migration source: %s is not a directory", dir)
	}
	return Load(os.DirFS(dir))
}

// Load reads the migrations at the top level of fsys, sorted by version.
// Files without a "<version>_" prefix or a .sql suffix are skipped.
func Load(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migration source: %w", err)
	}

	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m, ok, err := parseName(entry.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		m.SQL = string(content)
		sum := sha512.Sum384(content)
		m.Checksum = sum[:]
		m.NoTx = bytes.HasPrefix(content, []byte(noTransactionMarker))
		out = append(out, m)
	}

	slices.SortFunc(out, func(a, b Migration) int {
		switch {
		case a.Version < b.Version:
			return -1
		case a.Version > b.Version:
			return 1
		}
		return 0
	})
	for i := 1; i < len(out); i++ {
		if out[i].Version == out[i-1].Version {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateVersion, out[i].Version)
		}
	}
	return out, nil
}

// parseName splits "<version>_<description>.sql". ok is false for files that
// are not up migrations.
func parseName(name string) (Migration, bool, error) {
	versionPart, rest, found := strings.Cut(name, "_")
	if !found || !strings.HasSuffix(rest, ".sql") || strings.HasSuffix(rest, ".down.sql") {
		return Migration{}, false, nil
	}
	version, err := strconv.ParseInt(versionPart, 10, 64)
	if err != nil {
		return Migration{}, false, fmt.Errorf("migration %s: invalid version %q: %w", name, versionPart, err)
	}
	if version <= 0 {
		return Migration{}, false, fmt.Errorf("migration %s: version must be positive", name)
	}
	desc := strings.TrimSuffix(strings.TrimSuffix(rest, ".sql"), ".up")
	return Migration{
		Version:     version,
		Description: strings.ReplaceAll(desc, "_", " "),
	}, true, nil
}
