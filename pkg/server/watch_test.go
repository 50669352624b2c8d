package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gate.yaml")
	if err := os.WriteFile(path, []byte("a"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 8)
	err := Watch(ctx, path, func(context.Context) error {
		reloaded <- struct{}{}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case <-reloaded:
		t.Fatal("reload triggered by an unrelated file")
	case <-time.After(2 * reloadDebounce):
	}

	if err := os.WriteFile(path, []byte("b"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatch_FailedReloadKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gate.yaml")
	if err := os.WriteFile(path, []byte("a"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan int, 8)
	n := 0
	err := Watch(ctx, path, func(context.Context) error {
		n++
		calls <- n
		if n == 1 {
			return errors.New("bad config")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	for want := 1; want <= 2; want++ {
		if err := os.WriteFile(path, []byte{byte('a' + want)}, 0o600); err != nil {
			t.Fatal(err)
		}
		select {
		case got := <-calls:
			if got != want {
				t.Errorf("reload call = %d, want %d", got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("reload %d not triggered", want)
		}
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), "/nonexistent/dir/gate.yaml", func(context.Context) error { return nil }, nil)
	if err == nil {
		t.Error("expected error watching a missing directory")
	}
}
