package staging

import (
	"path/filepath"
	"sort"
	"testing"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "staging.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestStageListUnstage(t *testing.T) {
	r := openTestRegistry(t)

	if err := r.Stage([]string{"/tmp/a.txt", "/tmp/b.txt"}); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	got, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(got)
	want := []string{"/tmp/a.txt", "/tmp/b.txt"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("List = %v, want %v", got, want)
	}

	if err := r.Unstage([]string{"/tmp/a.txt"}); err != nil {
		t.Fatalf("Unstage: %v", err)
	}
	got, _ = r.List()
	if len(got) != 1 || got[0] != "/tmp/b.txt" {
		t.Fatalf("List after unstage = %v", got)
	}
}

func TestStageDeduplicates(t *testing.T) {
	r := openTestRegistry(t)
	if err := r.Stage([]string{"/tmp/a.txt"}); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := r.Stage([]string{"/tmp/a.txt"}); err != nil {
		t.Fatalf("Stage (again): %v", err)
	}
	got, _ := r.List()
	if len(got) != 1 {
		t.Fatalf("List = %v, want exactly one entry", got)
	}
}

func TestClear(t *testing.T) {
	r := openTestRegistry(t)
	r.Stage([]string{"/tmp/a.txt", "/tmp/b.txt"})
	if err := r.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, _ := r.List()
	if len(got) != 0 {
		t.Fatalf("List after Clear = %v, want empty", got)
	}
}
