package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/chatd/internal/lock"
)

func TestDir(t *testing.T) {
	t.Setenv("CHATD_HOME", "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".chatd", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestDirHonorsHomeOverride(t *testing.T) {
	base := t.TempDir()
	t.Setenv("CHATD_HOME", base)
	if got, want := Dir("work"), filepath.Join(base, "sessions", "work"); got != want {
		t.Errorf("Dir(work) = %q, want %q", got, want)
	}
}

func TestSocketPath(t *testing.T) {
	got := SocketPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "daemon.sock")) {
		t.Errorf("SocketPath(test) = %q, want suffix sessions/test/daemon.sock", got)
	}
}

func TestLockPath(t *testing.T) {
	got := LockPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "LOCK")) {
		t.Errorf("LockPath(test) = %q, want suffix sessions/test/LOCK", got)
	}
}

func TestCredentialsPath(t *testing.T) {
	got := CredentialsPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "credentials.toml")) {
		t.Errorf("CredentialsPath(test) = %q", got)
	}
}

func TestEnsureDirAndList(t *testing.T) {
	t.Setenv("CHATD_HOME", t.TempDir())

	for _, name := range []string{"work", "main"} {
		if err := EnsureDir(name); err != nil {
			t.Fatal(err)
		}
	}
	info, err := os.Stat(LogDir("main"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("log dir is not a directory")
	}

	// A running daemon holds the session lock.
	lk, err := lock.Acquire(Dir("work"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	sessions, err := List()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].Name != "main" || sessions[0].DaemonRunning {
		t.Errorf("sessions[0] = %+v, want main not running", sessions[0])
	}
	if sessions[1].Name != "work" || !sessions[1].DaemonRunning || sessions[1].PID != os.Getpid() {
		t.Errorf("sessions[1] = %+v, want work running", sessions[1])
	}
}

func TestListNoBaseDir(t *testing.T) {
	t.Setenv("CHATD_HOME", filepath.Join(t.TempDir(), "missing"))
	sessions, err := List()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Errorf("got %d sessions, want 0", len(sessions))
	}
}
