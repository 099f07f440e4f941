package lock

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	locksDir := t.TempDir()
	m, err := New(locksDir, "owner")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ok, err := m.Acquire("/watched/root", os.Getpid())
	if err != nil || !ok {
		t.Fatalf("Acquire: ok=%v err=%v", ok, err)
	}

	ok2, err := m.Acquire("/watched/root", os.Getpid())
	if err == nil || ok2 {
		t.Fatalf("expected second acquire to fail, got ok=%v err=%v", ok2, err)
	}
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	m.Release("/watched/root")

	ok3, err := m.Acquire("/watched/root", os.Getpid())
	if err != nil || !ok3 {
		t.Fatalf("expected reacquire after release: ok=%v err=%v", ok3, err)
	}
}

func TestStaleLockRecovered(t *testing.T) {
	locksDir := t.TempDir()
	m, err := New(locksDir, "owner")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// A pid astronomically unlikely to be alive on any test host.
	deadPID := 1 << 30
	path := m.lockPath("/watched/root")
	payload := Payload{PID: deadPID, WatchDir: "/watched/root"}
	body, _ := json.Marshal(payload)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	ok, err := m.Acquire("/watched/root", os.Getpid())
	if err != nil || !ok {
		t.Fatalf("expected stale lock recovery: ok=%v err=%v", ok, err)
	}
}

func TestCorruptLockRecovered(t *testing.T) {
	locksDir := t.TempDir()
	m, err := New(locksDir, "owner")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path := m.lockPath("/watched/root")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	ok, err := m.Acquire("/watched/root", os.Getpid())
	if err != nil || !ok {
		t.Fatalf("expected corrupt lock recovery: ok=%v err=%v", ok, err)
	}
}

// TestStaleLockRecoveredAcrossRealProcess exercises processAlive's actual
// syscall.Signal(0) path against a real OS process, rather than a fabricated
// PID value: it spawns a second copy of this test binary (os.StartProcess,
// the same "re-exec self as a helper" idiom net/os/exec tests use), seeds the
// lock with that child's genuine pid, confirms a concurrent acquirer is
// refused while the child lives, kills the child, and confirms the next
// acquirer recovers the now-stale lock.
func TestStaleLockRecoveredAcrossRealProcess(t *testing.T) {
	if os.Getenv("LOCK_TEST_HELPER_PROCESS") == "1" {
		// Re-exec'd helper: block until the parent test kills us.
		select {}
	}

	dir := t.TempDir()
	root := filepath.Join(dir, "watched")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}

	attr := &os.ProcAttr{Env: append(os.Environ(), "LOCK_TEST_HELPER_PROCESS=1")}
	child, err := os.StartProcess(os.Args[0],
		[]string{os.Args[0], "-test.run=^TestStaleLockRecoveredAcrossRealProcess$"}, attr)
	if err != nil {
		t.Fatalf("spawn helper process: %v", err)
	}

	m, err := New(filepath.Join(dir, "locks"), "owner")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	acquired, err := m.Acquire(root, child.Pid)
	if err != nil || !acquired {
		t.Fatalf("seed lock for live child pid %d: acquired=%v err=%v", child.Pid, acquired, err)
	}

	if _, err := m.Acquire(root, os.Getpid()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy against a live child process, got %v", err)
	}

	if err := child.Kill(); err != nil {
		t.Fatalf("kill helper process: %v", err)
	}
	child.Wait()

	acquired, err = m.Acquire(root, os.Getpid())
	if err != nil {
		t.Fatalf("Acquire after child death: %v", err)
	}
	if !acquired {
		t.Fatal("expected stale lock (dead child pid) to be recovered")
	}
}

func TestLockFileLayout(t *testing.T) {
	locksDir := t.TempDir()
	_, err := New(locksDir, "owner-id")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(locksDir, "owner-id")); err != nil {
		t.Fatalf("expected owner directory to exist: %v", err)
	}
}
