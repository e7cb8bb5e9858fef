package checksum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSumVariantsAgree(t *testing.T) {
	data := []byte("localnative")
	want := Sum(data)
	if len(want) != 64 {
		t.Fatalf("digest length = %d, want 64", len(want))
	}

	got, err := SumReader(strings.NewReader("localnative"))
	if err != nil || got != want {
		t.Errorf("SumReader = %q, %v; want %q", got, err, want)
	}

	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = SumFile(path)
	if err != nil || got != want {
		t.Errorf("SumFile = %q, %v; want %q", got, err, want)
	}

	if _, err := SumFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("SumFile on a missing file should fail")
	}
}
