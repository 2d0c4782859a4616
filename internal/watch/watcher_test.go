package watch

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"gm-batch-converter/internal/formats"
	"gm-batch-converter/internal/scan"
)

// counts records notifications.
type counts struct {
	mu   sync.Mutex
	last map[string]int
}

func (c *counts) notify(dir string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		c.last = map[string]int{}
	}
	c.last[dir] = n
}

func (c *counts) get(dir string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.last[dir]
	return n, ok
}

func quiet() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func waitForCount(t *testing.T, c *counts, dir string, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if n, ok := c.get(dir); ok && n == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	n, _ := c.get(dir)
	t.Fatalf("count for %s = %d, want %d", dir, n, want)
}

// TestWatchReportsInitialAndChangedCounts checks create events.
func TestWatchReportsInitialAndChangedCounts(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.png"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c := &counts{}
	w := New(scan.NewScanner(formats.Default()), c.notify, quiet())
	w.delay = 20 * time.Millisecond
	if err := w.Watch(dir, false); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	if n, ok := c.get(dir); !ok || n != 1 {
		t.Fatalf("initial count = %d (%v), want 1", n, ok)
	}

	if err := os.WriteFile(filepath.Join(dir, "b.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitForCount(t, c, dir, 2)
}

// TestWatchSwitchesDirectories stops watching the old directory.
func TestWatchSwitchesDirectories(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()

	c := &counts{}
	w := New(scan.NewScanner(formats.Default()), c.notify, quiet())
	w.delay = 20 * time.Millisecond
	if err := w.Watch(first, false); err != nil {
		t.Fatalf("Watch(first) error = %v", err)
	}
	if err := w.Watch(second, false); err != nil {
		t.Fatalf("Watch(second) error = %v", err)
	}
	defer w.Close()

	if w.Dir() != second {
		t.Fatalf("Dir() = %q, want %q", w.Dir(), second)
	}
	if err := os.WriteFile(filepath.Join(second, "c.gif"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitForCount(t, c, second, 1)
}

// TestWatchMissingDirectory fails without leaking a watcher.
func TestWatchMissingDirectory(t *testing.T) {
	w := New(scan.NewScanner(formats.Default()), nil, quiet())
	if err := w.Watch(filepath.Join(t.TempDir(), "missing"), false); err == nil {
		t.Fatal("expected error")
	}
	if w.Dir() != "" {
		t.Fatalf("Dir() = %q, want empty", w.Dir())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
