package pgsql

import (
	"bytes"
	"testing"
)

func TestIsSystemDatabase(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"template0": true,
		"template1": true,
		"postgres":  true,
		"app":       false,
		"Postgres":  false,
		"":          false,
	}
	for name, want := range tests {
		if got := IsSystemDatabase(name); got != want {
			t.Errorf("IsSystemDatabase(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestConvertValue(t *testing.T) {
	t.Parallel()

	t.Run("text bytes become string", func(t *testing.T) {
		t.Parallel()
		got := convertValue([]byte("12.50"), "NUMERIC")
		if s, ok := got.(string); !ok || s != "12.50" {
			t.Errorf("convertValue() = %#v, want \"12.50\"", got)
		}
	})

	t.Run("bytea stays bytes", func(t *testing.T) {
		t.Parallel()
		in := []byte{0xde, 0xad}
		got, ok := convertValue(in, "BYTEA").([]byte)
		if !ok || !bytes.Equal(got, in) {
			t.Fatalf("convertValue() = %#v, want %v", got, in)
		}
		in[0] = 0
		if got[0] != 0xde {
			t.Error("convertValue() must copy bytea values")
		}
	})

	t.Run("other values pass through", func(t *testing.T) {
		t.Parallel()
		if got := convertValue(int64(7), "INT8"); got != int64(7) {
			t.Errorf("convertValue() = %#v, want 7", got)
		}
		if got := convertValue(nil, "TEXT"); got != nil {
			t.Errorf("convertValue() = %#v, want nil", got)
		}
	})
}

func TestNewClient_NilLogger(t *testing.T) {
	t.Parallel()

	c := NewClient(nil)
	if c.log == nil {
		t.Fatal("expected default logger")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() on empty client: %v", err)
	}
	c.Forget("postgres://u@h:1/x")
}
