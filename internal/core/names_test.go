package core

import (
	"errors"
	"regexp"
	"strings"
	"testing"
)

var generatedName = regexp.MustCompile(`^db_[0-9a-f]{32}$`)

func TestGenerateDatabaseName_Unique(t *testing.T) {
	t.Parallel()

	const n = 10000
	seen := make(map[string]struct{}, n)
	for range n {
		name := GenerateDatabaseName()
		if !generatedName.MatchString(name) {
			t.Fatalf("GenerateDatabaseName() = %q, want db_ + 32 hex digits", name)
		}
		if _, dup := seen[name]; dup {
			t.Fatalf("duplicate name %q", name)
		}
		seen[name] = struct{}{}
	}
}

func TestValidateDatabaseName(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		name    string
		wantErr bool
	}{
		"simple":             {name: "orders"},
		"generated":          {name: GenerateDatabaseName()},
		"needs quoting":      {name: `My "Db"; DROP`},
		"max length":         {name: strings.Repeat("a", MaxDatabaseNameLength)},
		"empty":              {name: "", wantErr: true},
		"too long":           {name: strings.Repeat("a", MaxDatabaseNameLength+1), wantErr: true},
		"multibyte too long": {name: strings.Repeat("é", 32), wantErr: true},
		"nul byte":           {name: "a\x00b", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			err := ValidateDatabaseName(tc.name)
			if tc.wantErr != (err != nil) {
				t.Fatalf("ValidateDatabaseName(%q) error = %v, wantErr %v", tc.name, err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidDatabaseName) {
				t.Errorf("error %v does not wrap ErrInvalidDatabaseName", err)
			}
		})
	}
}
