package core

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxDatabaseNameLength is the PostgreSQL identifier limit in bytes.
const MaxDatabaseNameLength = 63

// generatedNamePrefix keeps generated names valid unquoted identifiers.
const generatedNamePrefix = "db_"

// GenerateDatabaseName returns "db_" followed by the 32 hex digits of a
// random UUID.
func GenerateDatabaseName() string {
	u := uuid.New()
	return generatedNamePrefix + hex.EncodeToString(u[:])
}

// ValidateDatabaseName reports names PostgreSQL would reject or truncate.
func ValidateDatabaseName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidDatabaseName)
	case len(name) > MaxDatabaseNameLength:
		return fmt.Errorf("%w: %q is longer than %d bytes", ErrInvalidDatabaseName, name, MaxDatabaseNameLength)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: contains NUL", ErrInvalidDatabaseName)
	}
	return nil
}
