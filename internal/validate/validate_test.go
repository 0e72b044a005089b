// SPDX-License-Identifier: MIT
package validate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidator_ListenAddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"port only", ":8089", false},
		{"host and port", "127.0.0.1:8089", false},
		{"ipv6", "[::1]:9000", false},
		{"empty", "", true},
		{"missing port", "localhost", true},
		{"named port", "localhost:http", true},
		{"port zero", ":0", false},
		{"negative port", ":-1", true},
		{"port too large", ":70000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.ListenAddr("api.listen", tt.addr)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_Endpoint(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"host and port", "localhost:6379", false},
		{"ip and port", "10.0.0.5:4317", false},
		{"no host", ":6379", true},
		{"no port", "localhost", true},
		{"port zero", "localhost:0", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Endpoint("cache.redis.addr", tt.addr)
			if tt.wantErr == v.IsValid() {
				t.Errorf("Endpoint(%q) valid=%v, wantErr=%v (%v)", tt.addr, v.IsValid(), tt.wantErr, v.Err())
			}
		})
	}
}

func TestValidator_Range(t *testing.T) {
	tests := []struct {
		name    string
		value   int
		wantErr bool
	}{
		{"lower bound", -43200, false},
		{"upper bound", 50400, false},
		{"zero", 0, false},
		{"below", -43201, true},
		{"above", 50401, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Range("eit.utc_offset", tt.value, -43200, 50400)
			if tt.wantErr == v.IsValid() {
				t.Errorf("Range(%d) valid=%v, wantErr=%v", tt.value, v.IsValid(), tt.wantErr)
			}
		})
	}
}

func TestValidator_FloatRange(t *testing.T) {
	v := New()
	v.FloatRange("telemetry.sampling_rate", 0.5, 0, 1)
	if !v.IsValid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}
	v.FloatRange("telemetry.sampling_rate", 1.5, 0, 1)
	if v.IsValid() {
		t.Fatal("expected error for 1.5")
	}
}

func TestValidator_Directory(t *testing.T) {
	tmp := t.TempDir()

	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(tmp, "data")
		v := New()
		v.Directory("data_dir", dir, false)
		if !v.IsValid() {
			t.Fatalf("unexpected error: %v", v.Err())
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("directory was not created: %v", err)
		}
	})

	t.Run("must exist", func(t *testing.T) {
		v := New()
		v.Directory("data_dir", filepath.Join(tmp, "absent"), true)
		if v.IsValid() {
			t.Fatal("expected error for missing directory")
		}
	})

	t.Run("file is not a directory", func(t *testing.T) {
		file := filepath.Join(tmp, "file")
		if err := os.WriteFile(file, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		v := New()
		v.Directory("data_dir", file, true)
		if v.IsValid() {
			t.Fatal("expected error for regular file")
		}
	})

	t.Run("traversal", func(t *testing.T) {
		v := New()
		v.Directory("data_dir", "../etc", false)
		if v.IsValid() {
			t.Fatal("expected error for traversal")
		}
	})
}

func TestValidator_FileParent(t *testing.T) {
	tmp := t.TempDir()

	v := New()
	v.FileParent("xmltv_path", "")
	v.FileParent("xmltv_path", filepath.Join(tmp, "out", "guide.xml"))
	if !v.IsValid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}
	if _, err := os.Stat(filepath.Join(tmp, "out")); err != nil {
		t.Fatalf("parent directory missing: %v", err)
	}

	v.FileParent("xmltv_path", tmp+string(filepath.Separator))
	if v.IsValid() {
		t.Fatal("expected error for directory path")
	}
}

func TestValidator_SimpleChecks(t *testing.T) {
	v := New()
	v.NotEmpty("db_path", "  ")
	v.OneOf("cache.backend", "memcached", []string{"memory", "redis"})
	v.Positive("eit.chunk_size", 0)
	v.NonNegative("eit.source_id", -1)
	v.PositiveDuration("driver.drain_interval", 0)
	v.Custom("eit.languages", "xx", func(interface{}) error { return errors.New("unknown language") })

	if got := len(v.Errors()); got != 6 {
		t.Fatalf("expected 6 errors, got %d: %v", got, v.Err())
	}

	ok := New()
	ok.NotEmpty("db_path", "eit.db")
	ok.OneOf("cache.backend", "redis", []string{"memory", "redis"})
	ok.Positive("eit.chunk_size", 20)
	ok.NonNegative("eit.source_id", 0)
	ok.PositiveDuration("driver.drain_interval", 2*time.Second)
	if !ok.IsValid() {
		t.Fatalf("unexpected error: %v", ok.Err())
	}
}

func TestValidationError_Format(t *testing.T) {
	v := New()
	if v.Err() != nil {
		t.Fatal("empty validator must return nil error")
	}

	v.AddError("a", "first", 1)
	if got := v.Err().Error(); got != "validation failed for a: first" {
		t.Fatalf("unexpected single error text: %q", got)
	}

	v.AddError("b", "second", 2)
	err := v.Err()
	if !strings.Contains(err.Error(), "; ") {
		t.Fatalf("expected joined errors, got %q", err.Error())
	}

	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatal("expected ValidationError")
	}
	if len(ve.Errors()) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(ve.Errors()))
	}

	// Err returns a snapshot.
	v.AddError("c", "third", 3)
	if len(ve.Errors()) != 2 {
		t.Fatal("snapshot was mutated")
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, s := range []string{"trace", "debug", "info", "warn", "error", " INFO "} {
		if _, err := ParseLogLevel(s); err != nil {
			t.Errorf("ParseLogLevel(%q) unexpected error: %v", s, err)
		}
	}
	if lvl, _ := ParseLogLevel("Warn"); lvl != LogLevelWarn {
		t.Errorf("ParseLogLevel(Warn) = %q", lvl)
	}
	_, err := ParseLogLevel("loud")
	if !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("expected ErrInvalidLogLevel, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), `"loud"`) {
		t.Errorf("error should name the value: %v", err)
	}
}
