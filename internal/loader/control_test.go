package loader

import (
	"os"
	"path/filepath"
	"testing"
)

func TestControlFile_WriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "control")

	if ControlFileExists(path) {
		t.Fatal("ControlFileExists = true before any write")
	}
	if err := WriteControlFile(path, "graphs/b.toml"); err != nil {
		t.Fatalf("WriteControlFile: %v", err)
	}
	if !ControlFileExists(path) {
		t.Fatal("ControlFileExists = false after write")
	}
	got, err := ReadControlFile(path)
	if err != nil {
		t.Fatalf("ReadControlFile: %v", err)
	}
	if got != "graphs/b.toml" {
		t.Errorf("ReadControlFile = %q, want %q", got, "graphs/b.toml")
	}
}

func TestReadControlFile_MissingFile(t *testing.T) {
	_, err := ReadControlFile(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error reading a missing control file")
	}
}

func TestListGraphFiles_FiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	names := []string{"b.toml", "a.toml", "notes.txt", "c.TOML"}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("{}"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	got, err := ListGraphFiles(dir)
	if err != nil {
		t.Fatalf("ListGraphFiles: %v", err)
	}
	want := []string{"a.toml", "b.toml", "c.TOML"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want len %d", got, len(want))
	}
	for i, w := range want {
		if filepath.Base(got[i]) != w {
			t.Errorf("got[%d] = %q, want %q", i, filepath.Base(got[i]), w)
		}
	}
}
