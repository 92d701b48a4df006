package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func Test_Real_Exists_Reports_Presence_When_Called(t *testing.T) {
	t.Parallel()

	fsys := NewReal()
	dir := t.TempDir()
	path := filepath.Join(dir, "ibdata1")

	exists, err := fsys.Exists(path)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}

	if exists {
		t.Fatalf("Exists(%q)=true before creation", path)
	}

	writeTestFile(t, path, []byte{0})

	exists, err = fsys.Exists(path)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}

	if !exists {
		t.Fatalf("Exists(%q)=false after creation", path)
	}
}

func Test_Real_ReadDir_Returns_Sorted_Entries_When_Called(t *testing.T) {
	t.Parallel()

	fsys := NewReal()
	dir := t.TempDir()

	for _, name := range []string{"c.ibd", "a.ibd", "b.ibd"} {
		writeTestFile(t, filepath.Join(dir, name), nil)
	}

	entries, err := fsys.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}

	want := []string{"a.ibd", "b.ibd", "c.ibd"}
	if len(names) != len(want) {
		t.Fatalf("names=%v, want=%v", names, want)
	}

	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names=%v, want=%v", names, want)
		}
	}
}

func Test_Real_WriteFileAtomic_Replaces_File_When_Called(t *testing.T) {
	t.Parallel()

	fsys := NewReal()
	path := filepath.Join(t.TempDir(), "record.json")
	writeTestFile(t, path, []byte("old"))

	if err := fsys.WriteFileAtomic(path, []byte("new"), 0o640); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != "new" {
		t.Errorf("content=%q, want=%q", got, "new")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if got, want := info.Mode().Perm(), os.FileMode(0o640); got != want {
		t.Errorf("perm=%v, want=%v", got, want)
	}
}
