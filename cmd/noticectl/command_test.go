package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseIDs(t *testing.T) {
	got, err := parseIDs(" 1001, 1002 ,,1003")
	if err != nil {
		t.Fatalf("parseIDs: %v", err)
	}
	if len(got) != 3 || got[0] != 1001 || got[2] != 1003 {
		t.Fatalf("unexpected ids: %v", got)
	}
	if _, err := parseIDs("12,abc"); err == nil {
		t.Fatalf("expected error for non-numeric id")
	}
	if got, _ := parseIDs(""); got != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestReadFileDetectsContentType(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "notice.pdf")
	if err := os.WriteFile(pdf, []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := readFile(pdf)
	if err != nil {
		t.Fatalf("readFile: %v", err)
	}
	if f.Name != "notice.pdf" || f.ContentType != "application/pdf" {
		t.Fatalf("unexpected file: %+v", f)
	}
	if f, err := readFile(""); err != nil || f != nil {
		t.Fatalf("empty path should be skipped")
	}
	if _, err := readFile(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
