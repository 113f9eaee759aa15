// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"unicode/utf8"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversation.json")
	data := []byte(`{"model":"gpt-4o-mini"}`)

	if err := AtomicWriteFile(path, data, 0644, 0755); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("content = %q, want %q", content, data)
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "2024", "out.json")

	if err := AtomicWriteFile(path, []byte("x"), 0644, 0755); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file not created: %v", err)
	}
}

func TestAtomicWriteFile_OverwritesAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	if err := AtomicWriteFile(path, []byte("old"), 0644, 0755); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("new"), 0644, 0755); err != nil {
		t.Fatalf("second write: %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "new" {
		t.Errorf("content = %q, want %q", content, "new")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

func TestAtomicWriteFile_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	path := filepath.Join(t.TempDir(), "secret.toml")

	if err := AtomicWriteFile(path, []byte("k=1"), 0600, 0700); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != 0600 {
		t.Errorf("perm = %o, want 600", got)
	}
}

// =============================================================================
// PREVIEW TESTS
// =============================================================================

func TestPreview(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"collapses newlines", "line one\n\nline  two", 40, "line one line two"},
		{"zero width", "hello", 0, ""},
		{"tiny width", "hello", 2, "he"},
		{"wide runes", "日本語テキスト", 7, "日本..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Preview(tt.in, tt.width)
			if got != tt.want {
				t.Errorf("Preview(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
			}
			if DisplayWidth(got) > tt.width {
				t.Errorf("width %d exceeds %d", DisplayWidth(got), tt.width)
			}
			if !utf8.ValidString(got) {
				t.Errorf("invalid UTF-8: %q", got)
			}
		})
	}
}

func TestDisplayWidth(t *testing.T) {
	if got := DisplayWidth("abc"); got != 3 {
		t.Errorf("DisplayWidth(abc) = %d", got)
	}
	if got := DisplayWidth("日本"); got != 4 {
		t.Errorf("DisplayWidth(日本) = %d", got)
	}
}
