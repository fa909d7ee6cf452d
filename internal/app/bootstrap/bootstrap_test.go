package bootstrap

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
)

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{
		"":      ":8080",
		"9090":  ":9090",
		":7070": ":7070",
	}
	for in, want := range cases {
		if got := normalizeAddr(in); got != want {
			t.Fatalf("normalizeAddr(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestLoadWordList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badwords.txt")
	if err := os.WriteFile(path, []byte("# blocked words\nfoo\n\n  bar baz \n"), 0o600); err != nil {
		t.Fatalf("write word list: %v", err)
	}
	words, err := loadWordList(path)
	if err != nil {
		t.Fatalf("load word list: %v", err)
	}
	if len(words) != 2 || words[0] != "foo" || words[1] != "bar baz" {
		t.Fatalf("expected [foo, bar baz], got %v", words)
	}
	if _, err := loadWordList(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatalf("expected error for missing word list")
	}
}

func TestReconciliationWrappersSkipOverlappingTicks(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var runs int32
	started := make(chan struct{})
	release := make(chan struct{})
	job := cron.NewChain(reconciliationWrappers(logger)...).Then(cron.FuncJob(func() {
		atomic.AddInt32(&runs, 1)
		close(started)
		<-release
	}))

	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected first tick to start")
	}

	job.Run()
	close(release)
	<-done

	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("expected overlapping tick to be skipped, got %d runs", got)
	}
}
