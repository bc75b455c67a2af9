package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAddRejectsDirectory(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Add(t.TempDir()); err == nil {
		t.Fatal("directories are not datasets")
	}
}

func TestAddMissingFile(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Add(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Fatal("missing file must error")
	}
}

func TestRescanOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(path, []byte("text\nhello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.SetDebounce(50 * time.Millisecond)

	changed := make(chan string, 1)
	w.OnChange = func(ctx context.Context, p string) error {
		select {
		case changed <- p:
		default:
		}
		return nil
	}

	if err := w.Add(path); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the watch loop a moment to start before touching the file.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("text\nhello\nworld\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-changed:
		if p != path {
			t.Fatalf("changed path = %q, want %q", p, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no rescan after write")
	}
}

func TestUnchangedFileDoesNotRescan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(path, []byte("text\nhello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Add(path); err != nil {
		t.Fatal(err)
	}

	fired := false
	w.OnChange = func(ctx context.Context, p string) error {
		fired = true
		return nil
	}

	// Same modtime and size as registered: the rescan must be a no-op.
	w.mu.RLock()
	state := w.datasets[path]
	w.mu.RUnlock()
	w.rescan(context.Background(), state)

	if fired {
		t.Fatal("rescan fired for an unchanged file")
	}
}
