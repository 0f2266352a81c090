package env

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseSkipsMalformed(t *testing.T) {
	m := Parse([]string{"A=1", "=x", "NOEQ", "B=", "A=2"})
	if len(m) != 2 || m["A"] != "2" || m["B"] != "" {
		t.Fatalf("unexpected map: %#v", m)
	}
}

func TestMergeLayersAndExpansion(t *testing.T) {
	out := Merge(
		[]string{"HOME=/home/u", "RAW=${HOME}"},
		[]string{"APP=${HOME}/app", "MODE=dev"},
		[]string{"MODE=test", "URL=http://${HOST}:1"},
	)
	want := []string{
		"APP=/home/u/app",
		"HOME=/home/u",
		"MODE=test",
		"RAW=${HOME}",
		"URL=http://:1",
	}
	if strings.Join(out, "\n") != strings.Join(want, "\n") {
		t.Fatalf("merge = %#v, want %#v", out, want)
	}
}

func TestExpandCyclicAndUnterminated(t *testing.T) {
	m := Var{"A": "${B}", "B": "${A}"}
	if got := expand("${A}", m); got != "${B}" {
		t.Fatalf("single-pass expansion expected, got %q", got)
	}
	if got := expand("x${A", m); got != "x${A" {
		t.Fatalf("unterminated reference must be kept, got %q", got)
	}
}

func TestLoadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(p, []byte("A=1\n#comment\n\n B = two \nbroken\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	pairs, err := LoadFile(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if strings.Join(pairs, ",") != "A=1,B=two" {
		t.Fatalf("pairs = %#v", pairs)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
