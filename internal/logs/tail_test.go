package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"hipot/internal/logs"
)

func TestLastReturnsTrailingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hipot-1.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\npartial"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	lines, offset, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if !slices.Equal(lines, []string{"b", "c"}) {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != int64(len("a\nb\nc\n")) {
		t.Fatalf("offset = %d, want end of last complete line", offset)
	}

	lines, _, err = logs.Last(filepath.Join(t.TempDir(), "missing.log"), 5)
	if err != nil || len(lines) != 0 {
		t.Fatalf("missing file: lines=%v err=%v", lines, err)
	}
}

func TestFromRestartsAfterTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hipot-1.log")
	if err := os.WriteFile(path, []byte("new\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	lines, offset, err := logs.From(path, 500)
	if err != nil {
		t.Fatalf("From: %v", err)
	}
	if !slices.Equal(lines, []string{"new"}) || offset != 4 {
		t.Fatalf("From = %#v at %d", lines, offset)
	}
}

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) emit(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
	return nil
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.lines)
}

func TestFollowSwitchesToNewDaemonLog(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "hipot-1.log")
	second := filepath.Join(dir, "hipot-2.log")
	pointer := filepath.Join(dir, "hipot.log")
	if err := os.WriteFile(first, []byte("boot 1\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	if err := os.Symlink(first, pointer); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &collector{}
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, pointer, logs.Options{Lines: 10, Follow: true, Poll: 10 * time.Millisecond}, out.emit)
	}()

	waitForLines(t, out, 1)
	f, err := os.OpenFile(first, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := f.WriteString("stopping 1\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()
	waitForLines(t, out, 2)

	if err := os.WriteFile(second, []byte("boot 2\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	if err := os.Remove(pointer); err != nil {
		t.Fatalf("remove pointer: %v", err)
	}
	if err := os.Symlink(second, pointer); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	waitForLines(t, out, 3)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}
	want := []string{"boot 1", "stopping 1", "boot 2"}
	if got := out.snapshot(); !slices.Equal(got, want) {
		t.Fatalf("lines = %#v, want %#v", got, want)
	}
}

func waitForLines(t *testing.T, c *collector, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(c.snapshot()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d lines, got %#v", n, c.snapshot())
}
